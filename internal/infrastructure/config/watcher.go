package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// LaunchWatcher reloads a launch file when it changes on disk and hands the
// new value to a callback. Editors often save through rename, so the parent
// directory is watched and events are filtered by name.
type LaunchWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onChange func(*Launch)
	logger   *zap.Logger
	debounce time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewLaunchWatcher creates a watcher for path. Nothing is watched until Start.
func NewLaunchWatcher(path string, onChange func(*Launch), logger *zap.Logger) (*LaunchWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LaunchWatcher{
		path:     filepath.Clean(path),
		watcher:  w,
		onChange: onChange,
		logger:   logger.Named("launch-watcher"),
		debounce: 100 * time.Millisecond,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking.
func (lw *LaunchWatcher) Start(ctx context.Context) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	if lw.running {
		return nil
	}
	if err := lw.watcher.Add(filepath.Dir(lw.path)); err != nil {
		return fmt.Errorf("watch %s: %w", lw.path, err)
	}
	lw.running = true
	go lw.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (lw *LaunchWatcher) Stop() {
	lw.mu.Lock()
	if !lw.running {
		lw.mu.Unlock()
		_ = lw.watcher.Close()
		return
	}
	lw.running = false
	lw.mu.Unlock()

	close(lw.stopCh)
	<-lw.doneCh
	if err := lw.watcher.Close(); err != nil {
		lw.logger.Warn("close watcher", zap.Error(err))
	}
}

func (lw *LaunchWatcher) run(ctx context.Context) {
	defer close(lw.doneCh)

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-lw.stopCh:
			return

		case event, ok := <-lw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != lw.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// Coalesce bursts of writes from a single save.
			pending = time.After(lw.debounce)

		case <-pending:
			pending = nil
			lw.reload()

		case err, ok := <-lw.watcher.Errors:
			if !ok {
				return
			}
			lw.logger.Warn("watch error", zap.Error(err))
		}
	}
}

func (lw *LaunchWatcher) reload() {
	launch, err := LoadLaunch(lw.path)
	if err != nil {
		// Half-written files are common mid-save; keep the previous value.
		lw.logger.Debug("launch reload skipped", zap.String("path", lw.path), zap.Error(err))
		return
	}
	lw.logger.Info("launch file reloaded", zap.String("path", lw.path))
	if lw.onChange != nil {
		lw.onChange(launch)
	}
}
