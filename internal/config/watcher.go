package config

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads the configuration file when it changes on disk and
// notifies subscribers with the validated result. Invalid or unparseable
// updates are logged and dropped; the last good configuration stays in
// effect.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *zap.Logger

	mu       sync.RWMutex
	current  *Config
	onChange []func(*Config)

	stop     chan struct{}
	finished chan struct{}
}

// NewWatcher loads the initial configuration from path and prepares the
// file watcher. Call Start to begin watching.
func NewWatcher(path string, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	initial, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("load initial config: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	// Watch the directory too: editors and configmap mounts replace the
	// file atomically via rename, which only the directory watch sees.
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch config file: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		logger.Warn("failed to watch config directory", zap.Error(err))
	}

	return &Watcher{
		path:     path,
		watcher:  fw,
		logger:   logger,
		current:  initial,
		stop:     make(chan struct{}),
		finished: make(chan struct{}),
	}, nil
}

// Current returns the last good configuration.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange registers a callback invoked with each successfully reloaded
// configuration. Register before Start.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, fn)
}

// Start begins watching in a background goroutine.
func (w *Watcher) Start() {
	go w.run()
}

// Stop ends watching and blocks until the background goroutine exits.
func (w *Watcher) Stop() {
	close(w.stop)
	<-w.finished
	w.watcher.Close()
}

func (w *Watcher) run() {
	defer close(w.finished)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		case <-w.stop:
			return
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Error("config reload rejected, keeping last good config",
			zap.String("path", w.path),
			zap.Error(err),
		)
		return
	}

	w.mu.Lock()
	w.current = cfg
	callbacks := append(([]func(*Config))(nil), w.onChange...)
	w.mu.Unlock()

	w.logger.Info("configuration reloaded", zap.String("path", w.path))
	for _, fn := range callbacks {
		fn(cfg)
	}
}
