package platform

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

// syncReplyTimeout bounds how long SendSync waits for the platform to
// acknowledge before the caller's context deadline, if any, kicks in.
const syncReplyTimeout = 30 * time.Second

// frame is the JSON wire shape exchanged with the platform over the
// event websocket. Replies echo the ID of the frame they answer.
type frame struct {
	ID         string `json:"id"`
	Event      string `json:"event"`
	FunctionID string `json:"functionId,omitempty"`
	UserID     string `json:"userId,omitempty"`
	Payload    any    `json:"payload,omitempty"`
	Reply      bool   `json:"reply,omitempty"`
}

// WSEmitter implements Events over a single websocket connection to the
// platform's event exchange. Writes are serialized; synchronous sends
// correlate replies by frame ID.
type WSEmitter struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan frame
}

// DialEmitter connects to the platform event exchange and starts the
// reply reader. token is sent as a bearer credential during the
// handshake. ctx bounds the dial only; the connection itself lives until
// Close.
func DialEmitter(ctx context.Context, url, token string, logger *slog.Logger) (*WSEmitter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("platform: dialing event exchange %s: %w", url, err)
	}

	e := &WSEmitter{
		conn:    conn,
		logger:  logger,
		pending: make(map[string]chan frame),
	}

	go e.readLoop()

	logger.Info("connected to platform event exchange", slog.String("url", url))

	return e, nil
}

// readLoop delivers reply frames to their waiting senders. Non-reply
// frames from the platform are logged and dropped — inbound function
// dispatch arrives over HTTP, not this socket.
func (e *WSEmitter) readLoop() {
	ctx := context.Background()

	for {
		var f frame
		if err := wsjson.Read(ctx, e.conn, &f); err != nil {
			e.logger.Warn("event exchange read loop ended", slog.String("error", err.Error()))
			e.failPending()

			return
		}

		if !f.Reply {
			e.logger.Debug("unsolicited frame from platform", slog.String("event", f.Event))
			continue
		}

		e.pendingMu.Lock()
		ch, ok := e.pending[f.ID]
		delete(e.pending, f.ID)
		e.pendingMu.Unlock()

		if ok {
			ch <- f
		}
	}
}

func (e *WSEmitter) failPending() {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()

	for id, ch := range e.pending {
		close(ch)
		delete(e.pending, id)
	}
}

func (e *WSEmitter) write(ctx context.Context, f frame) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if err := wsjson.Write(ctx, e.conn, f); err != nil {
		return fmt.Errorf("platform: writing event %s: %w", f.Event, err)
	}

	return nil
}

// SendSync sends an event and waits for the platform's correlated reply.
// A closed reply channel (connection loss) or timeout surfaces as an
// error; a reply with a nil payload means the listener declined.
func (e *WSEmitter) SendSync(ctx context.Context, event, functionID, userID string, payload any) (any, error) {
	id := uuid.NewString()
	ch := make(chan frame, 1)

	e.pendingMu.Lock()
	e.pending[id] = ch
	e.pendingMu.Unlock()

	defer func() {
		e.pendingMu.Lock()
		delete(e.pending, id)
		e.pendingMu.Unlock()
	}()

	if err := e.write(ctx, frame{ID: id, Event: event, FunctionID: functionID, UserID: userID, Payload: payload}); err != nil {
		return nil, err
	}

	timer := time.NewTimer(syncReplyTimeout)
	defer timer.Stop()

	select {
	case reply, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("platform: event exchange closed awaiting reply to %s", event)
		}

		return reply.Payload, nil
	case <-timer.C:
		return nil, fmt.Errorf("platform: timed out awaiting reply to %s", event)
	case <-ctx.Done():
		return nil, fmt.Errorf("platform: awaiting reply to %s: %w", event, ctx.Err())
	}
}

// SendUserConnectedEvent notifies the platform that a user connected.
// Fire-and-forget: delivery failures are logged, never propagated.
func (e *WSEmitter) SendUserConnectedEvent(ctx context.Context, functionID, userID string, payload map[string]any) {
	e.notify(ctx, frame{ID: uuid.NewString(), Event: EventUserConnected, FunctionID: functionID, UserID: userID, Payload: payload})
}

// SendUserDisconnectedEvent notifies the platform that a user
// disconnected. Fire-and-forget.
func (e *WSEmitter) SendUserDisconnectedEvent(ctx context.Context, functionID, userID string) {
	e.notify(ctx, frame{ID: uuid.NewString(), Event: EventUserDisconnected, FunctionID: functionID, UserID: userID})
}

// Notify sends an arbitrary fire-and-forget event.
func (e *WSEmitter) Notify(ctx context.Context, event string, payload map[string]any) {
	e.notify(ctx, frame{ID: uuid.NewString(), Event: event, Payload: payload})
}

func (e *WSEmitter) notify(ctx context.Context, f frame) {
	if err := e.write(ctx, f); err != nil {
		e.logger.Warn("event delivery failed",
			slog.String("event", f.Event),
			slog.String("error", err.Error()),
		)
	}
}

// Close shuts the websocket down cleanly.
func (e *WSEmitter) Close() error {
	return e.conn.Close(websocket.StatusNormalClosure, "shutting down")
}
