package config

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the holder's config file whenever it changes on disk and
// blocks until ctx is cancelled. A reload that fails to parse or
// validate keeps the previous config and logs the error; the running
// service never adopts a broken file.
func Watch(ctx context.Context, holder *Holder, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(holder.Path()); err != nil {
		return err
	}

	logger.Info("watching config file", slog.String("path", holder.Path()))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, loadErr := Load(holder.Path())
			if loadErr == nil {
				loadErr = Validate(cfg)
			}

			if loadErr != nil {
				logger.Warn("config reload failed, keeping previous config",
					slog.String("path", holder.Path()),
					slog.String("error", loadErr.Error()),
				)

				continue
			}

			holder.Update(cfg)
			logger.Info("config reloaded", slog.String("path", holder.Path()))

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logger.Warn("config watcher error", slog.String("error", watchErr.Error()))
		}
	}
}
