package inference

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"diapredict/logging"
)

// WatchArtifact invalidates the engine whenever the published artifact file
// changes. The watch covers the artifact directory, not the file: publication
// happens by rename, and a watch pinned to the old inode would go blind after
// the first swap. The watcher stops when ctx is cancelled.
func (e *Engine) WatchArtifact(ctx context.Context) error {
	e.watchOnce.Do(func() {
		e.watchErr = e.startWatcher(ctx)
	})
	return e.watchErr
}

func (e *Engine) startWatcher(ctx context.Context) error {
	dir := filepath.Dir(e.store.Path())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create artifact watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	logger := logging.FromContext(ctx)
	target := filepath.Clean(e.store.Path())

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				logger.Debugf("artifact changed on disk (%s), scheduling reload", event.Op)
				e.Invalidate()
			case watchErr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warnf("artifact watcher: %v", watchErr)
			}
		}
	}()
	return nil
}
