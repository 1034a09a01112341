// Package platform holds the narrow clients for the hosting platform's
// collaborator services: the event exchange, the file-transfer helper,
// and the application log sink. The endpoint consumes these through
// interfaces so tests can substitute fakes.
package platform

import (
	"context"
	"log/slog"
)

// Event names exchanged with the platform.
const (
	EventUserConnected    = "userConnected"
	EventUserDisconnected = "userDisconnected"
	EventAppLog           = "appLog"
)

// Events is the platform event exchange. SendSync blocks until the
// platform acknowledges (a nil acknowledgement means the listener
// declined); the user lifecycle events are fire-and-forget.
type Events interface {
	SendSync(ctx context.Context, event, functionID, userID string, payload any) (any, error)
	SendUserConnectedEvent(ctx context.Context, functionID, userID string, payload map[string]any)
	SendUserDisconnectedEvent(ctx context.Context, functionID, userID string)
	Notify(ctx context.Context, event string, payload map[string]any)
}

// LogEmitter is an Events implementation that only logs. It stands in
// for the platform exchange in local runs and acknowledges every
// synchronous event.
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter returns an emitter that records events to the logger.
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}

	return &LogEmitter{logger: logger}
}

func (l *LogEmitter) SendSync(_ context.Context, event, functionID, userID string, _ any) (any, error) {
	l.logger.Info("platform event (sync)",
		slog.String("event", event),
		slog.String("function_id", functionID),
		slog.String("user_id", userID),
	)

	return map[string]any{"acknowledged": true}, nil
}

func (l *LogEmitter) SendUserConnectedEvent(_ context.Context, functionID, userID string, _ map[string]any) {
	l.logger.Info("platform event",
		slog.String("event", EventUserConnected),
		slog.String("function_id", functionID),
		slog.String("user_id", userID),
	)
}

func (l *LogEmitter) SendUserDisconnectedEvent(_ context.Context, functionID, userID string) {
	l.logger.Info("platform event",
		slog.String("event", EventUserDisconnected),
		slog.String("function_id", functionID),
		slog.String("user_id", userID),
	)
}

func (l *LogEmitter) Notify(_ context.Context, event string, _ map[string]any) {
	l.logger.Debug("platform event (notify)", slog.String("event", event))
}
