package tracker

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"ghtrack/internal/github"
)

func ev(id, typ string) github.Event {
	return github.Event{ID: id, Type: typ}
}

func ids(events []github.Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.ID)
	}
	return out
}

func TestAdvanceSeedsOnFirstPoll(t *testing.T) {
	t.Parallel()
	feed := []github.Event{
		ev("200", "PushEvent"), // filtered out for repo mode
		ev("150", "IssuesEvent"),
		ev("140", "PullRequestEvent"),
	}
	emit, next := advance(ModeRepo, nil, feed)
	if len(emit) != 0 {
		t.Fatalf("first poll must emit nothing, got %v", ids(emit))
	}
	if next == nil || *next != 150 {
		t.Fatalf("watermark should seed to newest relevant id 150, got %v", next)
	}
}

func TestAdvanceSeedStaysNilOnEmptyFeed(t *testing.T) {
	t.Parallel()
	emit, next := advance(ModeRepo, nil, nil)
	if len(emit) != 0 || next != nil {
		t.Fatalf("empty first poll should stay unseeded, got %v %v", ids(emit), next)
	}

	// A feed with only irrelevant events also leaves the task unseeded.
	emit, next = advance(ModeAuthor, nil, []github.Event{ev("9", "WatchEvent")})
	if len(emit) != 0 || next != nil {
		t.Fatalf("irrelevant-only first poll should stay unseeded, got %v %v", ids(emit), next)
	}
}

func TestAdvanceEmitsAscendingAboveWatermark(t *testing.T) {
	t.Parallel()
	w := int64(100)
	feed := []github.Event{
		ev("105", "IssuesEvent"),
		ev("101", "PullRequestEvent"),
		ev("99", "IssuesEvent"),
		ev("103", "IssuesEvent"),
	}
	emit, next := advance(ModeRepo, &w, feed)
	got := ids(emit)
	want := []string{"101", "103", "105"}
	if len(got) != len(want) {
		t.Fatalf("emitted %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("emitted %v, want %v", got, want)
		}
	}
	if next == nil || *next != 105 {
		t.Fatalf("watermark = %v, want 105", next)
	}
}

func TestAdvanceIdempotentOnRepeatedFeed(t *testing.T) {
	t.Parallel()
	w := int64(100)
	feed := []github.Event{ev("105", "IssuesEvent"), ev("101", "IssuesEvent")}

	emit, next := advance(ModeRepo, &w, feed)
	if len(emit) != 2 {
		t.Fatalf("first pass emitted %v", ids(emit))
	}
	// Same page again: everything is at or below the new watermark.
	emit, next2 := advance(ModeRepo, next, feed)
	if len(emit) != 0 {
		t.Fatalf("second pass must emit nothing, got %v", ids(emit))
	}
	if next2 == nil || *next2 != *next {
		t.Fatalf("watermark moved on no-op pass: %v -> %v", *next, next2)
	}
}

func TestAdvanceSkipsNonNumericIDs(t *testing.T) {
	t.Parallel()
	w := int64(10)
	feed := []github.Event{
		ev("garbage", "IssuesEvent"),
		ev("12", "IssuesEvent"),
		ev("", "IssuesEvent"),
	}
	emit, next := advance(ModeRepo, &w, feed)
	if len(emit) != 1 || emit[0].ID != "12" {
		t.Fatalf("emitted %v, want [12]", ids(emit))
	}
	if next == nil || *next != 12 {
		t.Fatalf("watermark = %v, want 12", next)
	}
}

func TestAdvancePersonModeIsUnfiltered(t *testing.T) {
	t.Parallel()
	w := int64(5)
	feed := []github.Event{
		ev("8", "WatchEvent"),
		ev("7", "ForkEvent"),
		ev("6", "IssuesEvent"),
	}
	emit, _ := advance(ModePerson, &w, feed)
	if len(emit) != 3 {
		t.Fatalf("person mode should pass all types, got %v", ids(emit))
	}
	if emit[0].ID != "6" || emit[2].ID != "8" {
		t.Fatalf("ascending order violated: %v", ids(emit))
	}
}

func TestSummarizeRepoEvent(t *testing.T) {
	t.Parallel()
	payload, _ := json.Marshal(map[string]any{
		"action": "opened",
		"issue":  map[string]any{"title": "Panic on empty input"},
	})
	e := github.Event{ID: "1", Type: "IssuesEvent", Payload: payload}
	got := summarize(ModeRepo, Target{Owner: "go", Repo: "tools"}, e)
	want := "[go/tools] new IssuesEvent: opened Panic on empty input"
	if got != want {
		t.Fatalf("summarize = %q, want %q", got, want)
	}
}

func TestSummarizePullRequestTitleFallback(t *testing.T) {
	t.Parallel()
	payload, _ := json.Marshal(map[string]any{
		"action":       "closed",
		"pull_request": map[string]any{"title": "Add retry"},
	})
	e := github.Event{ID: "2", Type: "PullRequestEvent", Payload: payload}
	got := summarize(ModeAuthor, Target{Username: "alice"}, e)
	want := "[alice] new PullRequestEvent: closed Add retry"
	if got != want {
		t.Fatalf("summarize = %q, want %q", got, want)
	}
}

func TestSummarizePersonEvent(t *testing.T) {
	t.Parallel()
	e := github.Event{
		ID:      "3",
		Type:    "WatchEvent",
		Repo:    github.EventRepo{Name: "go/tools"},
		Payload: json.RawMessage(`{"action":"started"}`),
	}
	got := summarize(ModePerson, Target{Username: "bob"}, e)
	want := "[bob] WatchEvent at go/tools: started"
	if got != want {
		t.Fatalf("summarize = %q, want %q", got, want)
	}
}

func TestSummarizePersonEventWithoutAction(t *testing.T) {
	t.Parallel()
	e := github.Event{
		ID:      "4",
		Type:    "PushEvent",
		Repo:    github.EventRepo{Name: "a/b"},
		Payload: json.RawMessage(`{"size":2}`),
	}
	got := summarize(ModePerson, Target{Username: "bob"}, e)
	want := `[bob] PushEvent at a/b: {"size":2}`
	if got != want {
		t.Fatalf("summarize = %q, want %q", got, want)
	}
}

func TestSummarizePersonTruncatesAtRuneBoundary(t *testing.T) {
	t.Parallel()
	// Long multibyte payload: a byte-wise cut at 100 would split a rune.
	payload := `{"note":"` + strings.Repeat("ツ", 120) + `"}`
	e := github.Event{
		ID:      "5",
		Type:    "PushEvent",
		Repo:    github.EventRepo{Name: "a/b"},
		Payload: json.RawMessage(payload),
	}
	got := summarize(ModePerson, Target{Username: "bob"}, e)
	if !utf8.ValidString(got) {
		t.Fatalf("summary contains invalid UTF-8: %q", got)
	}
	detail := strings.TrimPrefix(got, "[bob] PushEvent at a/b: ")
	if n := utf8.RuneCountInString(detail); n != 100 {
		t.Fatalf("detail rune count = %d, want 100", n)
	}
}
