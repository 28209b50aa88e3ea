package tracker

import (
	"encoding/json"
	"fmt"

	"ghtrack/internal/github"
)

// summarize renders one emitted event as a single notification line.
func summarize(mode Mode, target Target, ev github.Event) string {
	label := target.Label(mode)
	switch mode {
	case ModeRepo, ModeAuthor:
		action, title := issueAction(ev.Payload)
		return fmt.Sprintf("[%s] new %s: %s %s", label, ev.Type, action, title)
	default:
		return fmt.Sprintf("[%s] %s at %s: %s", label, eventType(ev), ev.Repo.Name, personDetail(ev.Payload))
	}
}

func eventType(ev github.Event) string {
	if ev.Type == "" {
		return "UnknownEvent"
	}
	return ev.Type
}

// issueAction extracts the action plus the issue or PR title from an
// IssuesEvent/PullRequestEvent payload.
func issueAction(payload json.RawMessage) (action, title string) {
	var p struct {
		Action string `json:"action"`
		Issue  struct {
			Title string `json:"title"`
		} `json:"issue"`
		PullRequest struct {
			Title string `json:"title"`
		} `json:"pull_request"`
	}
	action = "unknown"
	if len(payload) == 0 || json.Unmarshal(payload, &p) != nil {
		return action, ""
	}
	if p.Action != "" {
		action = p.Action
	}
	title = p.Issue.Title
	if title == "" {
		title = p.PullRequest.Title
	}
	return action, title
}

// personDetail produces a best-effort description for unfiltered events:
// the payload action when present, otherwise a truncated payload dump.
func personDetail(payload json.RawMessage) string {
	var p struct {
		Action string `json:"action"`
	}
	if len(payload) > 0 && json.Unmarshal(payload, &p) == nil && p.Action != "" {
		return p.Action
	}
	s := string(payload)
	if rs := []rune(s); len(rs) > 100 {
		s = string(rs[:100])
	}
	return s
}
