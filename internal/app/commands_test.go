package app

import (
	"testing"

	kit "ghtrack/internal/transport"
)

func TestDestKeyRoundTrip(t *testing.T) {
	t.Parallel()
	targets := []kit.ChatTarget{
		{ChatID: 12345},
		{ChatID: -100987654321, ThreadID: 42},
		{ChatID: 0, ThreadID: 0},
	}
	for _, want := range targets {
		got, ok := parseDest(destKey(want))
		if !ok {
			t.Fatalf("parseDest(%q) failed", destKey(want))
		}
		if got != want {
			t.Fatalf("round trip %q: got %+v, want %+v", destKey(want), got, want)
		}
	}
}

func TestParseDestRejectsGarbage(t *testing.T) {
	t.Parallel()
	for _, dest := range []string{"", "tg:", "tg:abc:0", "tg:1", "xx:1:2", "tg:1:2:3"} {
		if _, ok := parseDest(dest); ok {
			t.Fatalf("parseDest(%q) should fail", dest)
		}
	}
}

func TestAuthorized(t *testing.T) {
	t.Parallel()
	open := &App{}
	if !open.authorized(999) {
		t.Fatal("empty owner list should allow everyone")
	}

	restricted := &App{owners: []int64{1, 2}}
	if !restricted.authorized(2) {
		t.Fatal("listed owner rejected")
	}
	if restricted.authorized(3) {
		t.Fatal("unlisted user accepted")
	}
}

func TestCommandMenuMatchesHelp(t *testing.T) {
	t.Parallel()
	menu := commandMenu()
	if len(menu) == 0 {
		t.Fatal("empty command menu")
	}
	for _, c := range menu {
		if c.Command == "" || c.Description == "" {
			t.Fatalf("incomplete menu entry: %+v", c)
		}
	}
}
