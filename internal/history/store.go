package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"hostpulse/internal/models"
)

// Store owns the retained sample window and its on-disk mirror. The file
// is a JSON array rewritten whole on every change.
type Store struct {
	path string
	log  *slog.Logger

	mu     sync.Mutex
	window []models.Sample
}

func NewStore(path string, logger *slog.Logger) *Store {
	return &Store{path: path, log: logger}
}

func (s *Store) Path() string { return s.path }

// Load replaces the in-memory window with the persisted one. A missing or
// unreadable file yields an empty window.
func (s *Store) Load() []models.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window = nil

	b, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("read history file", "path", s.path, "err", err)
		}
		return nil
	}
	var window []models.Sample
	if err := json.Unmarshal(b, &window); err != nil {
		s.log.Warn("history file is corrupt, starting empty", "path", s.path, "err", err)
		return nil
	}
	s.window = window
	s.log.Info("history loaded", "path", s.path, "samples", len(window))
	return cloneWindow(window)
}

// Append adds a sample and synchronously persists the full window. The
// sample stays in memory even when persisting fails.
func (s *Store) Append(sample models.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window = append(s.window, sample)
	return s.persistLocked()
}

// Prune drops samples older than retention relative to now and persists
// if anything was removed.
func (s *Store) Prune(now time.Time, retention time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.window[:0]
	for _, smp := range s.window {
		if now.Sub(smp.Time) <= retention {
			kept = append(kept, smp)
		}
	}
	removed := len(s.window) - len(kept)
	clear(s.window[len(kept):])
	s.window = kept
	if removed == 0 {
		return 0, nil
	}
	return removed, s.persistLocked()
}

func (s *Store) Window() []models.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneWindow(s.window)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.window)
}

func (s *Store) persistLocked() error {
	window := s.window
	if window == nil {
		window = []models.Sample{}
	}
	b, err := json.Marshal(window)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir history dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp history: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close history: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace history: %w", err)
	}
	return nil
}

func cloneWindow(w []models.Sample) []models.Sample {
	if len(w) == 0 {
		return nil
	}
	out := make([]models.Sample, len(w))
	copy(out, w)
	return out
}
