package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/wireflow/internal/streaming"
	"github.com/rendis/wireflow/pkg/schema"
)

// sender is the slice of *server.MCPServer the notifier needs.
type sender interface {
	SendNotificationToSpecificClient(sessionID string, method string, params map[string]any) error
}

// Notifier pushes outward editor events to the sessions watching a game.
type Notifier struct {
	sender   sender
	sessions *SessionRegistry
	logger   *slog.Logger
}

// NewNotifier creates a notifier that pushes via MCP notifications.
func NewNotifier(s sender, sessions *SessionRegistry, logger *slog.Logger) *Notifier {
	return &Notifier{sender: s, sessions: sessions, logger: logger}
}

// Notify delivers ev to every watcher of its game.
// Best-effort: sessions that went away are forgotten.
func (n *Notifier) Notify(ev streaming.Event) int {
	sent := 0
	for _, sessionID := range n.sessions.Watchers(ev.GameID) {
		err := n.sender.SendNotificationToSpecificClient(sessionID, "notifications/message", map[string]any{
			"level":  "info",
			"logger": "wireflow",
			"data":   ev,
		})
		switch {
		case err == nil:
			sent++
		case errors.Is(err, server.ErrSessionNotFound):
			n.sessions.Remove(sessionID)
		default:
			n.logger.Warn("notification failed", "session_id", sessionID, "error", err)
		}
	}
	return sent
}

// Run forwards the outward events of hub until ctx is done.
func (n *Notifier) Run(ctx context.Context, hub streaming.EventHub) error {
	ch, cancel, err := hub.Subscribe(ctx, streaming.EventFilter{EventTypes: schema.OutwardEvents})
	if err != nil {
		return err
	}
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			n.Notify(ev)
		}
	}
}
