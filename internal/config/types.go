package config

import (
	"fmt"
	"strings"
	"time"
)

// Duration fields across the config are Go duration strings ("30s",
// "2m"). They stay strings in the struct so the strict decoder accepts
// both YAML and JSON; parsing happens where the value is consumed.

// ParseDuration interprets one such field. Empty means unset and parses
// to zero; negative values are rejected.
func ParseDuration(field, value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: %q is not a duration", field, value)
	case d < 0:
		return 0, fmt.Errorf("%s: negative durations are not allowed", field)
	}
	return d, nil
}

// DurationOr parses like ParseDuration and substitutes fallback when the
// field is unset or zero.
func DurationOr(field, value string, fallback time.Duration) (time.Duration, error) {
	d, err := ParseDuration(field, value)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return fallback, nil
	}
	return d, nil
}

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	GitHub   GitHubConfig   `json:"github"`
	Tracker  TrackerConfig  `json:"tracker"`
	Logging  LoggingConfig  `json:"logging"`

	History  *HistoryConfig  `json:"history,omitempty"`
	Digest   *DigestConfig   `json:"digest,omitempty"`
	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Preview  *PreviewConfig  `json:"preview,omitempty"`
}

// PreviewConfig points at an HTML-to-image render service used for the
// repository and issue preview cards. When unset, previews fall back to
// plain text.
type PreviewConfig struct {
	RenderURL string `json:"render_url"`
	// RequestTimeout is a Go duration string; default "10s".
	RequestTimeout string `json:"request_timeout,omitempty"`
}

type TelegramConfig struct {
	// Token may be left empty; TELEGRAM_TOKEN is used as a fallback.
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

// GitHubConfig controls the upstream API client.
//
// An api_token raises the unauthenticated quota of 60 requests/hour to
// 5000/hour. GITHUB_TOKEN is used as a fallback when the field is empty.
type GitHubConfig struct {
	APIBaseURL string `json:"api_base_url"`
	APIToken   string `json:"api_token"`
	// PollInterval is a Go duration string; default "60s".
	PollInterval string `json:"poll_interval"`
	// RequestTimeout bounds a single API call; default "15s".
	RequestTimeout string `json:"request_timeout"`
}

type TrackerConfig struct {
	NotifyPrefix string `json:"notify_prefix"`
	// HideErrorNotifications suppresses the per-poll error messages that a
	// failing task would otherwise post to its chat. Errors are still logged.
	HideErrorNotifications bool `json:"hide_error_notifications"`
	// StorePath is the JSON snapshot of all tracked tasks; default
	// "./ghtrack_tasks.json".
	StorePath string `json:"store_path"`
}

// HistoryConfig controls the optional sqlite event history.
// An empty path disables it.
type HistoryConfig struct {
	Path string `json:"path"`
	// BusyTimeout is a Go duration string (sqlite); 0 means default.
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// DigestConfig controls the optional scheduled status digest.
//
// Schedule accepts cron specs (crontab.guru style, @descriptors included,
// e.g. "@daily" or "@every 6h"). An empty schedule or zero chat id
// disables the digest.
type DigestConfig struct {
	Schedule string `json:"schedule"`
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// NotifierConfig controls the outbound delivery pipeline.
type NotifierConfig struct {
	Workers    int `json:"workers"`
	QueueSize  int `json:"queue_size"`
	RatePerSec int `json:"rate_per_sec"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}
