// Package store persists the tracker's task table as a single JSON
// document on disk.
package store

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"ghtrack/internal/tracker"
	logx "ghtrack/pkg/logx"
)

// FileStore writes the whole task table on every save using a temp file
// and an atomic rename, so a crash mid-write never corrupts the snapshot.
type FileStore struct {
	mu   sync.Mutex
	path string
	log  logx.Logger
}

func NewFileStore(path string, log logx.Logger) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("store: path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &FileStore{path: path, log: log}, nil
}

func (s *FileStore) SaveAll(tasks map[string]map[string]tracker.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tasks == nil {
		tasks = map[string]map[string]tracker.Task{}
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(tasks); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// LoadAll reads the snapshot back. A missing file means a fresh install
// and a corrupt file means the snapshot is unusable; both return an empty
// table rather than an error so startup never wedges on bad state.
func (s *FileStore) LoadAll() (map[string]map[string]tracker.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("task snapshot unreadable; starting empty",
				logx.String("path", s.path), logx.Err(err))
		}
		return map[string]map[string]tracker.Task{}, nil
	}

	var tasks map[string]map[string]tracker.Task
	if err := json.Unmarshal(b, &tasks); err != nil {
		s.log.Warn("task snapshot corrupt; starting empty",
			logx.String("path", s.path), logx.Err(err))
		return map[string]map[string]tracker.Task{}, nil
	}
	if tasks == nil {
		tasks = map[string]map[string]tracker.Task{}
	}
	return tasks, nil
}
