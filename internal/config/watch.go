package config

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the YAML file at path whenever it changes and hands the
// result to onChange. A failed reload is logged and the previous config stays
// in effect. Watch runs until ctx is cancelled.
//
// The parent directory is watched rather than the file, so saves that write a
// temporary file and rename it over path are picked up too.
func Watch(ctx context.Context, path string, lookup LookupFunc, logger *slog.Logger, onChange func(*Config)) error {
	if logger == nil {
		logger = slog.Default()
	}
	path = filepath.Clean(path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	logger.Info("watching config for changes", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			cfg, err := Load(path, lookup)
			if err != nil {
				logger.Error("config reload failed, keeping previous config", "path", path, "err", err)
				continue
			}
			for _, key := range cfg.Shadowed {
				logger.Warn("config file overrides environment variable", "path", path, "key", key)
			}
			logger.Info("config reloaded", "path", path, "devices", len(cfg.DeviceIDs))
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("config watcher error", "err", err)
		}
	}
}
