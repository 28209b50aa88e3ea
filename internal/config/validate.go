package config

import (
	"fmt"
	"strings"
)

// Validate checks everything that can be checked without touching the
// network. Token presence is not checked here; the app resolves env
// fallbacks first.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if _, err := ParseDuration("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := ParseDuration("github.poll_interval", cfg.GitHub.PollInterval); err != nil {
		return err
	}
	if _, err := ParseDuration("github.request_timeout", cfg.GitHub.RequestTimeout); err != nil {
		return err
	}

	if u := strings.TrimSpace(cfg.GitHub.APIBaseURL); u != "" {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return fmt.Errorf("github.api_base_url: must be an http(s) URL")
		}
	}

	if n := cfg.Notifier; n != nil {
		if n.Workers < 0 {
			return fmt.Errorf("notifier.workers: must be >= 0")
		}
		if n.QueueSize < 0 {
			return fmt.Errorf("notifier.queue_size: must be >= 0")
		}
		if n.RatePerSec < 0 {
			return fmt.Errorf("notifier.rate_per_sec: must be >= 0")
		}
	}

	if d := cfg.Digest; d != nil {
		if strings.TrimSpace(d.Schedule) != "" && d.ChatID == 0 {
			return fmt.Errorf("digest.chat_id: required when digest.schedule is set")
		}
	}

	if p := cfg.Preview; p != nil {
		if u := strings.TrimSpace(p.RenderURL); u != "" &&
			!strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return fmt.Errorf("preview.render_url: must be an http(s) URL")
		}
		if _, err := ParseDuration("preview.request_timeout", p.RequestTimeout); err != nil {
			return err
		}
	}

	if h := cfg.History; h != nil {
		if _, err := ParseDuration("history.busy_timeout", h.BusyTimeout); err != nil {
			return err
		}
	}

	return nil
}
