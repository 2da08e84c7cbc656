package config

import (
	"context"

	"github.com/fsnotify/fsnotify"
)

type watchLogger interface {
	Printf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Watch reloads path on every write and passes the new config to onChange.
// A reload that fails keeps the previous config; onChange is not called.
// It blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, logger watchLogger, onChange func(*AppConfig)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors often save via rename, which shows up as Create.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(path)
			if err != nil {
				if logger != nil {
					logger.Errorf("config reload %s: %v", path, err)
				}
				continue
			}
			if logger != nil {
				logger.Printf("config reloaded from %s", path)
			}
			onChange(cfg)
			_ = watcher.Add(path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if logger != nil {
				logger.Errorf("config watcher: %v", err)
			}
		}
	}
}
