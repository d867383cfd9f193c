package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ReloadHandler runs when its config file changes on disk.
type ReloadHandler func() error

// Watcher hot-reloads files in the config directory. The rate-limit
// file is the main customer; edits take effect without a restart.
type Watcher struct {
	dir      string
	watcher  *fsnotify.Watcher
	logger   *zap.Logger
	stopCh   chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	handlers map[string][]ReloadHandler
	lastFire map[string]time.Time
}

// debounceWindow swallows the editor save-twice pattern.
const debounceWindow = 500 * time.Millisecond

// NewWatcher builds a watcher over one config directory.
func NewWatcher(dir string, logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	return &Watcher{
		dir:      dir,
		watcher:  fsw,
		logger:   logger,
		stopCh:   make(chan struct{}),
		handlers: make(map[string][]ReloadHandler),
		lastFire: make(map[string]time.Time),
	}, nil
}

// OnChange registers a handler for one file name (not path) in the
// watched directory.
func (w *Watcher) OnChange(filename string, handler ReloadHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[filename] = append(w.handlers[filename], handler)
}

// Start begins watching. Handlers run on the watcher goroutine.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	go w.loop()
	w.logger.Info("Config watcher started", zap.String("dir", w.dir))
	return nil
}

// Stop ends the watch loop.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.watcher.Close()
	})
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.dispatch(filepath.Base(event.Name))
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) dispatch(filename string) {
	w.mu.Lock()
	handlers := w.handlers[filename]
	now := time.Now()
	if now.Sub(w.lastFire[filename]) < debounceWindow {
		w.mu.Unlock()
		return
	}
	w.lastFire[filename] = now
	w.mu.Unlock()

	for _, h := range handlers {
		if err := h(); err != nil {
			w.logger.Warn("Config reload handler failed",
				zap.String("file", filename),
				zap.Error(err),
			)
			continue
		}
		w.logger.Info("Config reloaded", zap.String("file", filename))
	}
}
