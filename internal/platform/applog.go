package platform

import (
	"context"
	"log/slog"
)

// AppLogs is the application-visible log sink: entries land in the
// local structured log and are forwarded to the platform so application
// administrators can see them.
type AppLogs struct {
	logger *slog.Logger
	events Events
}

// NewAppLogs creates an app log sink over the given emitter.
func NewAppLogs(logger *slog.Logger, events Events) *AppLogs {
	if logger == nil {
		logger = slog.Default()
	}

	return &AppLogs{logger: logger, events: events}
}

// Info records an informational application log entry.
func (a *AppLogs) Info(ctx context.Context, msg string, data map[string]any) {
	if a == nil {
		return
	}

	a.logger.Info(msg, slog.Any("data", data))
	a.forward(ctx, "info", msg, data)
}

// Warn records a warning application log entry.
func (a *AppLogs) Warn(ctx context.Context, msg string, data map[string]any) {
	if a == nil {
		return
	}

	a.logger.Warn(msg, slog.Any("data", data))
	a.forward(ctx, "warn", msg, data)
}

// Error records an error application log entry.
func (a *AppLogs) Error(ctx context.Context, msg string, data map[string]any) {
	if a == nil {
		return
	}

	a.logger.Error(msg, slog.Any("data", data))
	a.forward(ctx, "error", msg, data)
}

func (a *AppLogs) forward(ctx context.Context, level, msg string, data map[string]any) {
	if a.events == nil {
		return
	}

	payload := map[string]any{"level": level, "message": msg}
	if len(data) > 0 {
		payload["data"] = data
	}

	a.events.Notify(ctx, EventAppLog, payload)
}
