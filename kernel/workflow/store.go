package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWorkflowName is used when a session carries no workflow binding.
const DefaultWorkflowName = "default"

// Store publishes the current snapshot to the engine. Reload resolves a new
// snapshot and swaps it atomically, so sessions mid-evaluation keep the
// definition object they started with.
type Store struct {
	loader  *Loader
	current atomic.Pointer[Snapshot]
	log     *slog.Logger
}

func NewStore(loader *Loader, log *slog.Logger) (*Store, error) {
	if loader == nil {
		return nil, fmt.Errorf("workflow: loader is required")
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Store{loader: loader, log: log}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Snapshot returns the current resolved definition set.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Reload resolves definitions from all tiers and swaps the snapshot. On
// failure the previous snapshot stays live.
func (s *Store) Reload() error {
	snap, err := s.loader.Load()
	if err != nil {
		return err
	}
	s.current.Store(snap)
	return nil
}

// Watch reloads on file changes in the user and project tier directories
// until ctx is done. Reload failures keep the last good snapshot and log.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("workflow: watcher: %w", err)
	}
	defer watcher.Close()

	for _, dir := range []string{s.loader.sources.UserDir, s.loader.sources.ProjectDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			s.log.Warn("cannot watch definition dir", "dir", dir, "error", err)
		}
	}

	// Editors fire bursts of writes; debounce before re-resolving.
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isYAML(ev.Name) {
				continue
			}
			pending = time.After(250 * time.Millisecond)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("definition watcher error", "error", err)
		case <-pending:
			pending = nil
			if err := s.Reload(); err != nil {
				s.log.Error("definition reload failed, keeping previous snapshot", "error", err)
				continue
			}
			s.log.Info("workflow definitions reloaded")
		}
	}
}
