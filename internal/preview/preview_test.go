package preview

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ghtrack/internal/github"
)

func TestRepoCard(t *testing.T) {
	t.Parallel()
	info := &github.RepoInfo{
		FullName:        "torvalds/linux",
		Description:     "Linux kernel source tree",
		StargazersCount: 170000,
		ForksCount:      50000,
		OpenIssuesCount: 300,
		HTMLURL:         "https://github.com/torvalds/linux",
	}
	info.Owner.AvatarURL = "https://avatars.example/u/1"

	card, err := RepoCard(info)
	if err != nil {
		t.Fatalf("RepoCard error: %v", err)
	}
	if !strings.Contains(card.HTML, "torvalds/linux") || !strings.Contains(card.HTML, "170000") {
		t.Fatalf("HTML missing fields: %s", card.HTML)
	}
	if !strings.Contains(card.Text, "Stars: 170000") {
		t.Fatalf("Text missing stars: %s", card.Text)
	}
	if card.ImageURL != "https://avatars.example/u/1" {
		t.Fatalf("ImageURL = %q", card.ImageURL)
	}
}

func TestRepoCardEmptyDescription(t *testing.T) {
	t.Parallel()
	card, err := RepoCard(&github.RepoInfo{FullName: "a/b"})
	if err != nil {
		t.Fatalf("RepoCard error: %v", err)
	}
	if !strings.Contains(card.Text, "No description") {
		t.Fatalf("missing description placeholder: %s", card.Text)
	}
}

func TestIssueCardTruncatesBody(t *testing.T) {
	t.Parallel()
	info := &github.IssueInfo{
		Number:   123,
		Title:    "Boot hangs on aarch64",
		Body:     strings.Repeat("long body ", 50),
		State:    "open",
		Comments: 7,
		HTMLURL:  "https://github.com/torvalds/linux/issues/123",
	}
	card, err := IssueCard(info)
	if err != nil {
		t.Fatalf("IssueCard error: %v", err)
	}
	if !strings.Contains(card.Text, "#123: Boot hangs on aarch64") {
		t.Fatalf("text header wrong: %s", card.Text)
	}
	if !strings.Contains(card.Text, "...") {
		t.Fatal("long body should be truncated with ellipsis")
	}
	if strings.Contains(card.HTML, strings.Repeat("long body ", 50)) {
		t.Fatal("HTML carries untruncated body")
	}
}

func TestIssueCardEscapesHTML(t *testing.T) {
	t.Parallel()
	card, err := IssueCard(&github.IssueInfo{Number: 1, Title: `<script>alert("x")</script>`})
	if err != nil {
		t.Fatalf("IssueCard error: %v", err)
	}
	if strings.Contains(card.HTML, "<script>") {
		t.Fatal("title not escaped in HTML card")
	}
}

func TestHTTPRenderer(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		w.Write([]byte(`{"url":"https://img.example/card.png"}`))
	}))
	defer srv.Close()

	r := NewHTTPRenderer(srv.URL, 0)
	url, err := r.Render(context.Background(), "<div>card</div>")
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	if url != "https://img.example/card.png" {
		t.Fatalf("url = %q", url)
	}
}

func TestHTTPRendererErrorStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := NewHTTPRenderer(srv.URL, 0)
	if _, err := r.Render(context.Background(), "<div/>"); err == nil {
		t.Fatal("expected error for 500 response")
	}
}
