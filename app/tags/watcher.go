package tags

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the store whenever its file is written or replaced.
// The directory is watched because atomic replaces swap the file's inode.
// Watch blocks until ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch tag list directory %s: %w", dir, err)
	}

	name := filepath.Base(s.path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			if err := s.Load(); err != nil {
				slog.Warn("Failed to reload tag list", "path", s.path, "error", err)
				continue
			}
			slog.Debug("Tag list reloaded", "path", s.path, "op", event.Op.String())

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Tag list watcher error", "error", err)
		}
	}
}
