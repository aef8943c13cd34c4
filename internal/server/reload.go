package server

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// reloadDebounce is how long the Reloader waits after the last write.
const reloadDebounce = 500 * time.Millisecond

// Reloader watches the owners file for changes and triggers hot-reload.
type Reloader struct {
	watcher *fsnotify.Watcher
	reload  func() error
	logger  *zap.Logger
	paths   []string
}

// NewReloader creates a file watcher that reloads the server's owners
// when any of paths changes. Missing paths are skipped.
func NewReloader(server *Server, paths []string) (*Reloader, error) {
	return newReloader(server.ReloadOwners, server.logger, paths)
}

func newReloader(reload func() error, logger *zap.Logger, paths []string) (*Reloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var watched []string
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := watcher.Add(p); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("failed to watch %q: %w", p, err)
		}
		watched = append(watched, p)
	}

	return &Reloader{
		watcher: watcher,
		reload:  reload,
		logger:  logger,
		paths:   watched,
	}, nil
}

// Paths returns the files being watched.
func (r *Reloader) Paths() []string {
	return r.paths
}

// Run watches for file changes and reloads. Blocks until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				// atomic replacement drops the watch on the old inode
				rewatch := event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove)
				name := event.Name
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(reloadDebounce, func() {
					if rewatch {
						if err := r.watcher.Add(name); err != nil {
							r.logger.Warn("cannot re-watch file", zap.String("path", name), zap.Error(err))
						}
					}
					if err := r.reload(); err != nil {
						r.logger.Error("hot-reload failed", zap.Error(err))
					}
				})
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}
