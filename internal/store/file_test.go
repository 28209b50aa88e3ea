package store

import (
	"os"
	"path/filepath"
	"testing"

	"ghtrack/internal/tracker"
	logx "ghtrack/pkg/logx"
)

func newStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tasks.json")
	s, err := NewFileStore(path, logx.Nop())
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	return s, path
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	t.Parallel()
	s, _ := newStore(t)

	w := int64(105)
	in := map[string]map[string]tracker.Task{
		"chat:1": {
			"ab12cd34": {
				ID:        "ab12cd34",
				Mode:      tracker.ModeRepo,
				Target:    tracker.Target{Owner: "go", Repo: "tools"},
				Watermark: &w,
			},
			"ef56ab78": {
				ID:     "ef56ab78",
				Mode:   tracker.ModePerson,
				Target: tracker.Target{Username: "alice"},
				// Watermark nil: not yet seeded
			},
		},
	}
	if err := s.SaveAll(in); err != nil {
		t.Fatalf("SaveAll error: %v", err)
	}

	out, err := s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll error: %v", err)
	}
	got := out["chat:1"]["ab12cd34"]
	if got.Mode != tracker.ModeRepo || got.Target.Owner != "go" {
		t.Fatalf("unexpected task: %+v", got)
	}
	if got.Watermark == nil || *got.Watermark != 105 {
		t.Fatalf("watermark = %v, want 105", got.Watermark)
	}
	if out["chat:1"]["ef56ab78"].Watermark != nil {
		t.Fatal("unseeded watermark must stay nil")
	}
}

func TestLoadMissingFileReturnsEmpty(t *testing.T) {
	t.Parallel()
	s, _ := newStore(t)
	out, err := s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll error: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty table, got %v", out)
	}
}

func TestLoadCorruptFileReturnsEmpty(t *testing.T) {
	t.Parallel()
	s, path := newStore(t)
	if err := os.WriteFile(path, []byte("{half a docu"), 0o600); err != nil {
		t.Fatal(err)
	}
	out, err := s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll error: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty table, got %v", out)
	}
}

func TestSaveLeavesNoTempFile(t *testing.T) {
	t.Parallel()
	s, path := newStore(t)
	if err := s.SaveAll(nil); err != nil {
		t.Fatalf("SaveAll error: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatal("temp file left behind after save")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("snapshot missing: %v", err)
	}
}

func TestSaveOverwritesPrevious(t *testing.T) {
	t.Parallel()
	s, _ := newStore(t)

	w := int64(10)
	if err := s.SaveAll(map[string]map[string]tracker.Task{
		"chat:1": {"a": {ID: "a", Mode: tracker.ModeAuthor, Target: tracker.Target{Username: "x"}, Watermark: &w}},
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveAll(map[string]map[string]tracker.Task{}); err != nil {
		t.Fatal(err)
	}
	out, err := s.LoadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Fatalf("stale tasks survived overwrite: %v", out)
	}
}
