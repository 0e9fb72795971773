package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ReloadHandler is invoked with the freshly loaded config after a file change
type ReloadHandler func(cfg *Config)

// Watcher reloads the config file on change and notifies a handler.
// Editors replace files rather than writing in place, so the parent
// directory is watched and events are filtered by name.
type Watcher struct {
	path    string
	handler ReloadHandler
	watcher *fsnotify.Watcher
	logger  *zap.Logger
}

// NewWatcher creates a watcher for the active config file
func NewWatcher(handler ReloadHandler, logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		path:    Path(),
		handler: handler,
		watcher: fw,
		logger:  logger,
	}, nil
}

// Start begins watching until ctx is cancelled
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return err
	}

	go w.loop(ctx)

	w.logger.Info("Config watcher started", zap.String("path", w.path))
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.watcher.Close()

	// Debounce bursts of events from a single save
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			pending = time.After(200 * time.Millisecond)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", zap.Error(err))
		case <-pending:
			pending = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load()
	if err != nil {
		w.logger.Warn("Config reload failed, keeping previous values", zap.Error(err))
		return
	}
	if err := cfg.Validate(); err != nil {
		w.logger.Warn("Reloaded config invalid, keeping previous values", zap.Error(err))
		return
	}
	w.logger.Info("Config reloaded",
		zap.Float64("confidence_threshold", cfg.Router.ConfidenceThreshold))
	w.handler(cfg)
}
