// Package settings serves the per-cycle Settings snapshot. The YAML strategy
// block is the base; an optional JSON file maintained by the configuration
// editor overlays it and is re-read whenever its modification time changes.
package settings

import (
	"log"
	"os"
	"sync"
	"time"

	"StageSentinel/internal/model"
)

// Source hands out immutable settings snapshots with concurrency safety.
type Source struct {
	mu       sync.Mutex
	base     model.Settings
	filePath string
	current  model.Settings
	modTime  time.Time
	loaded   bool
}

// NewSource creates a Source over base, overlaid by filePath when set.
func NewSource(base model.Settings, filePath string) *Source {
	return &Source{base: base.Clone(), filePath: filePath}
}

// Snapshot returns a deep copy of the current settings. The overlay file is
// re-read only when it changed since the last successful load. A file that
// fails to parse is an error on every call until it is fixed.
func (s *Source) Snapshot() (model.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded && !s.changed() {
		return s.current.Clone(), nil
	}
	next, modTime, err := LoadOverlay(s.filePath, s.base)
	if err != nil {
		return model.Settings{}, err
	}
	if s.loaded {
		log.Printf("[INFO] settings reloaded from %s", s.filePath)
	}
	s.current = next
	s.modTime = modTime
	s.loaded = true
	return s.current.Clone(), nil
}

func (s *Source) changed() bool {
	if s.filePath == "" {
		return false
	}
	info, err := os.Stat(s.filePath)
	if err != nil {
		return !s.modTime.IsZero()
	}
	return !info.ModTime().Equal(s.modTime)
}
