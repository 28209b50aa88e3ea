package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	logx "ghtrack/pkg/logx"
)

const DefaultBaseURL = "https://api.github.com"

type ClientConfig struct {
	BaseURL string
	// Token raises the quota from 60 to 5000 requests/hour. Optional.
	Token          string
	RequestTimeout time.Duration
}

// Client is a minimal REST client for the handful of endpoints the
// tracker needs. Every response, success or failure, feeds the shared
// rate limiter before status handling.
type Client struct {
	base    string
	token   string
	http    *http.Client
	limiter *RateLimiter
	log     logx.Logger
}

func NewClient(cfg ClientConfig, limiter *RateLimiter, log logx.Logger) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if limiter == nil {
		limiter = NewRateLimiter(log)
	}
	return &Client{
		base:    base,
		token:   strings.TrimSpace(cfg.Token),
		http:    &http.Client{Timeout: timeout},
		limiter: limiter,
		log:     log,
	}
}

func (c *Client) RateLimiter() *RateLimiter { return c.limiter }

// RepoEvents returns the first page of the repository events feed,
// newest first.
func (c *Client) RepoEvents(ctx context.Context, owner, repo string) ([]Event, error) {
	var events []Event
	path := fmt.Sprintf("/repos/%s/%s/events", url.PathEscape(owner), url.PathEscape(repo))
	if err := c.getJSON(ctx, path, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// UserEvents returns the first page of a user's public events feed,
// newest first.
func (c *Client) UserEvents(ctx context.Context, username string) ([]Event, error) {
	var events []Event
	path := fmt.Sprintf("/users/%s/events/public", url.PathEscape(username))
	if err := c.getJSON(ctx, path, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// Repo fetches repository metadata for preview cards.
func (c *Client) Repo(ctx context.Context, owner, repo string) (*RepoInfo, error) {
	var info RepoInfo
	path := fmt.Sprintf("/repos/%s/%s", url.PathEscape(owner), url.PathEscape(repo))
	if err := c.getJSON(ctx, path, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Issue fetches one issue (or pull request) for preview cards.
func (c *Client) Issue(ctx context.Context, owner, repo string, number int) (*IssueInfo, error) {
	var info IssueInfo
	path := fmt.Sprintf("/repos/%s/%s/issues/%d", url.PathEscape(owner), url.PathEscape(repo), number)
	if err := c.getJSON(ctx, path, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	if err := c.limiter.CheckAndWait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "ghtrack")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Distinguish the caller's cancellation from a transport failure.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TransportError{Err: err, Timeout: isTimeout(err)}
	}
	defer resp.Body.Close()

	// Quota headers arrive on error responses too.
	c.limiter.Update(resp.Header)

	if resp.StatusCode == http.StatusOK {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return &TransportError{Err: err, Timeout: isTimeout(err)}
		}
		if err := json.Unmarshal(body, out); err != nil {
			return &APIError{Status: resp.StatusCode, Message: "invalid JSON body"}
		}
		return nil
	}

	return c.classifyError(resp)
}

func (c *Client) classifyError(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
		return &RateLimitedError{Wait: c.limiter.backoffFor()}
	default:
		return &APIError{Status: resp.StatusCode, Message: apiMessage(resp.Body)}
	}
}

// apiMessage pulls the "message" field out of a GitHub error body.
// Best-effort; an unreadable body yields an empty message.
func apiMessage(body io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(b, &payload); err != nil {
		return ""
	}
	return payload.Message
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
