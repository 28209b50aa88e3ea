package github

import (
	"encoding/json"
	"strconv"
	"time"
)

// Event is one entry from the events feed. Payload is kept raw because its
// shape varies per event type; summaries pick out the few fields they need.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Actor     Actor           `json:"actor"`
	Repo      EventRepo       `json:"repo"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

type Actor struct {
	Login string `json:"login"`
}

type EventRepo struct {
	Name string `json:"name"` // "owner/repo"
}

// NumericID parses the feed's string event id. Ids are decimal integers in
// practice; anything else reports ok=false and the event is skipped.
func (e Event) NumericID() (int64, bool) {
	n, err := strconv.ParseInt(e.ID, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// RepoInfo is the subset of the repository object used by preview cards.
type RepoInfo struct {
	FullName        string `json:"full_name"`
	Description     string `json:"description"`
	StargazersCount int    `json:"stargazers_count"`
	ForksCount      int    `json:"forks_count"`
	OpenIssuesCount int    `json:"open_issues_count"`
	HTMLURL         string `json:"html_url"`
	Owner           struct {
		Login     string `json:"login"`
		AvatarURL string `json:"avatar_url"`
	} `json:"owner"`
}

// IssueInfo is the subset of the issue object used by preview cards.
type IssueInfo struct {
	Number   int    `json:"number"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	State    string `json:"state"`
	Comments int    `json:"comments"`
	HTMLURL  string `json:"html_url"`
	User     struct {
		Login string `json:"login"`
	} `json:"user"`
}
