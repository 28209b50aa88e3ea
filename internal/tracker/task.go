// Package tracker implements the polling engine: per-task watch loops over
// the GitHub events feed, watermark-based dedup, and the task registry
// keyed by destination chat.
package tracker

import (
	"context"
	"fmt"
	"strings"

	"ghtrack/internal/github"
)

// Mode selects which feed a task polls and how events are filtered.
type Mode string

const (
	// ModeRepo watches a repository's events feed for issue and PR activity.
	ModeRepo Mode = "repo"
	// ModeAuthor watches a user's public events for issue and PR activity.
	ModeAuthor Mode = "author"
	// ModePerson watches every public event of a user, unfiltered.
	ModePerson Mode = "person"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeRepo:
		return ModeRepo, nil
	case ModeAuthor:
		return ModeAuthor, nil
	case ModePerson:
		return ModePerson, nil
	default:
		return "", fmt.Errorf("unknown tracking mode %q", s)
	}
}

// Target identifies what a task watches. Owner/Repo are set for ModeRepo,
// Username for ModeAuthor and ModePerson.
type Target struct {
	Owner    string `json:"owner,omitempty"`
	Repo     string `json:"repo,omitempty"`
	Username string `json:"username,omitempty"`
}

// Label is the short name used in notifications and task listings:
// "owner/repo" for repository tasks, the username otherwise.
func (t Target) Label(mode Mode) string {
	if mode == ModeRepo {
		return t.Owner + "/" + t.Repo
	}
	return t.Username
}

// Task is the persisted description of one watch. Watermark is nil until
// the first successful poll seeds it.
type Task struct {
	ID        string `json:"id"`
	Mode      Mode   `json:"mode"`
	Target    Target `json:"target"`
	Watermark *int64 `json:"last_event_id"`
}

// Store persists the full task table, keyed by destination then task id.
type Store interface {
	SaveAll(tasks map[string]map[string]Task) error
	LoadAll() (map[string]map[string]Task, error)
}

// EventSource is the slice of the GitHub client the poll loops need.
type EventSource interface {
	RepoEvents(ctx context.Context, owner, repo string) ([]github.Event, error)
	UserEvents(ctx context.Context, username string) ([]github.Event, error)
}

// Sink delivers one notification line to a destination chat.
type Sink interface {
	Notify(dest string, text string)
}

// EventRecorder receives every emitted event, for the optional history
// store. Implementations must not block.
type EventRecorder interface {
	RecordEvent(dest, taskID string, ev github.Event, summary string)
}
