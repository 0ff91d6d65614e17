package prompts

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Store serves the active catalog: the embedded defaults merged with an
// optional override file, reloaded when that file changes.
type Store struct {
	path    string
	logger  *zap.Logger
	current atomic.Pointer[Catalog]

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	once    sync.Once
}

// NewStore loads the catalog. An empty path serves the embedded defaults only.
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{path: path, logger: logger}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Catalog returns the active catalog.
func (s *Store) Catalog() *Catalog { return s.current.Load() }

// Render fills the named task from the active catalog.
func (s *Store) Render(name string, data Data) (Rendered, error) {
	return s.Catalog().Render(name, data)
}

// Reload re-reads the override file. On failure the active catalog is kept.
func (s *Store) Reload() error {
	c := Default()
	if s.path != "" {
		override, err := LoadFile(s.path)
		if err != nil {
			return err
		}
		c = c.Merge(override)
	}
	s.current.Store(c)
	return nil
}

// Watch reloads the catalog whenever the override file is written or replaced.
// It returns immediately; Close stops it.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create prompt watcher: %w", err)
	}
	// The directory is watched so editors that replace the file atomically are seen.
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", s.path, err)
	}
	s.watcher = w

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
	return nil
}

func (s *Store) loop(ctx context.Context) {
	defer s.wg.Done()
	target := filepath.Clean(s.path)
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			// Let the writer finish.
			time.Sleep(50 * time.Millisecond)
			if err := s.Reload(); err != nil {
				s.logger.Error("Failed to reload prompt catalog", zap.String("path", s.path), zap.Error(err))
				continue
			}
			s.logger.Info("Prompt catalog reloaded", zap.String("path", s.path))
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("Prompt watcher error", zap.Error(err))
		case <-ctx.Done():
			return
		}
	}
}

// Close stops the watcher, if any.
func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.watcher != nil {
			err = s.watcher.Close()
		}
		s.wg.Wait()
	})
	return err
}
