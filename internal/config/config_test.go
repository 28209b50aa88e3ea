package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
telegram:
  token: "123:abc"
  owner_user_ids: [42]
  poll_timeout: "10s"
github:
  api_base_url: "https://api.github.com"
  api_token: ""
  poll_interval: "90s"
  request_timeout: "15s"
tracker:
  notify_prefix: "[ghtrack]"
  hide_error_notifications: true
  store_path: "./tasks.json"
logging:
  level: "debug"
  console: true
  file:
    enabled: false
    path: ""
`)

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("Token = %q", cfg.Telegram.Token)
	}
	if len(cfg.Telegram.OwnerUserIDs) != 1 || cfg.Telegram.OwnerUserIDs[0] != 42 {
		t.Fatalf("OwnerUserIDs = %v", cfg.Telegram.OwnerUserIDs)
	}
	if cfg.GitHub.PollInterval != "90s" {
		t.Fatalf("PollInterval = %q", cfg.GitHub.PollInterval)
	}
	if !cfg.Tracker.HideErrorNotifications {
		t.Fatal("HideErrorNotifications should be true")
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get should return the committed config")
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
telegram:
  token: "x"
gthub:
  api_token: "typo section"
`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected error for unknown top-level key")
	}
}

func TestLoadRejectsTrailingJSON(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"telegram":{"token":"x"}}{"extra":1}`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "ok", mutate: func(c *Config) {}},
		{name: "bad interval", mutate: func(c *Config) { c.GitHub.PollInterval = "soon" }, wantErr: true},
		{name: "negative timeout", mutate: func(c *Config) { c.GitHub.RequestTimeout = "-5s" }, wantErr: true},
		{name: "bad base url", mutate: func(c *Config) { c.GitHub.APIBaseURL = "ftp://api" }, wantErr: true},
		{name: "digest without chat", mutate: func(c *Config) {
			c.Digest = &DigestConfig{Schedule: "@daily"}
		}, wantErr: true},
		{name: "notifier negative", mutate: func(c *Config) {
			c.Notifier = &NotifierConfig{Workers: -1}
		}, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				GitHub: GitHubConfig{PollInterval: "60s", RequestTimeout: "15s"},
			}
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "", want: 0},
		{in: "  ", want: 0},
		{in: "90s", want: 90 * time.Second},
		{in: "2m", want: 2 * time.Minute},
		{in: "-5s", wantErr: true},
		{in: "soon", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseDuration("field", tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseDuration(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("ParseDuration(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}

	if d, err := DurationOr("field", "", 15*time.Second); err != nil || d != 15*time.Second {
		t.Fatalf("DurationOr fallback = %v, %v", d, err)
	}
	if d, err := DurationOr("field", "30s", 15*time.Second); err != nil || d != 30*time.Second {
		t.Fatalf("DurationOr explicit = %v, %v", d, err)
	}
}

func TestSubscribeDropsStaleOnFullBuffer(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	first := &Config{}
	second := &Config{Tracker: TrackerConfig{NotifyPrefix: "new"}}
	m.publish(first)
	m.publish(second)

	got := <-ch
	if got != second {
		t.Fatal("expected the newest config to win on a full buffer")
	}
}
