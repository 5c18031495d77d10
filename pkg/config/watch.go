package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchLogLevel reloads the config file at path whenever it changes and
// applies log.level to level. Other settings need a restart. It blocks
// until ctx is canceled.
func WatchLogLevel(ctx context.Context, path string, level zap.AtomicLevel, logger *zap.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often replace the file, so watch the directory.
	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch config dir: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			reloadLogLevel(path, level, logger)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

func reloadLogLevel(path string, level zap.AtomicLevel, logger *zap.Logger) {
	cfg, err := Load(path)
	if err != nil {
		logger.Warn("config reload failed, keeping current log level", zap.Error(err))
		return
	}
	next, err := cfg.Log.ZapLevel()
	if err != nil {
		return
	}
	if next != level.Level() {
		level.SetLevel(next)
		logger.Info("log level changed", zap.Stringer("level", next))
	}
}
