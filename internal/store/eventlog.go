package store

import (
	"context"
	"log/slog"

	"github.com/rendis/wireflow/internal/geometry"
	"github.com/rendis/wireflow/internal/logging"
	"github.com/rendis/wireflow/internal/streaming"
	"github.com/rendis/wireflow/pkg/schema"
)

// EventLog persists outward editor events and forwards them to an optional
// live hub. It implements streaming.EventHub.
type EventLog struct {
	store  Store
	live   streaming.EventHub
	logger *slog.Logger
}

var _ streaming.EventHub = (*EventLog)(nil)

// NewEventLog wraps s. live may be nil, in which case Subscribe fails.
func NewEventLog(s Store, live streaming.EventHub, logger *slog.Logger) *EventLog {
	if logger == nil {
		logger = logging.Discard()
	}
	return &EventLog{store: s, live: live, logger: logger}
}

// Publish appends event to the game's log, then forwards it.
func (el *EventLog) Publish(ctx context.Context, event streaming.Event) error {
	rec := &Event{
		GameID:  event.GameID,
		ItemID:  event.ItemID,
		Type:    event.Type,
		Payload: event,
	}
	if err := el.store.AppendEvent(ctx, rec); err != nil {
		return err
	}
	logging.LogWith(logging.WithItemID(logging.WithGameID(ctx, event.GameID), event.ItemID), el.logger).
		Debug("event persisted", "type", event.Type, "sequence", rec.Sequence)

	if el.live == nil {
		return nil
	}
	return el.live.Publish(ctx, event)
}

// Subscribe delegates to the live hub.
func (el *EventLog) Subscribe(ctx context.Context, filter streaming.EventFilter) (<-chan streaming.Event, func(), error) {
	if el.live == nil {
		return nil, nil, schema.NewError(schema.ErrCodeConflict, "event log has no live hub")
	}
	return el.live.Subscribe(ctx, filter)
}

// History returns the events of a game after sequence since.
func (el *EventLog) History(ctx context.Context, gameID string, since int64, types ...string) ([]*Event, error) {
	return el.store.GetEvents(ctx, EventFilter{GameID: gameID, Since: since, Types: types})
}

// ReplayPositions rebuilds the last reported position of every item from the
// coordinates_changed events of a game. A gap in the sequence is an error.
func (el *EventLog) ReplayPositions(ctx context.Context, gameID string) (map[string]geometry.Point, error) {
	events, err := el.store.GetEvents(ctx, EventFilter{GameID: gameID})
	if err != nil {
		return nil, err
	}

	positions := make(map[string]geometry.Point)
	for i, e := range events {
		expected := int64(i + 1)
		if e.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in game %s: expected %d, got %d", gameID, expected, e.Sequence)
		}
		if e.Type != schema.EventCoordinatesChanged || e.ItemID == "" {
			continue
		}
		positions[e.ItemID] = geometry.Point{X: e.Payload.X, Y: e.Payload.Y}
	}
	return positions, nil
}

// ApplyPositions moves the items of a game to their replayed positions.
// Items without a recorded position are left untouched. It returns the
// number of items moved.
func ApplyPositions(items []*schema.Item, positions map[string]geometry.Point) int {
	moved := 0
	for _, it := range items {
		if it == nil {
			continue
		}
		p, ok := positions[it.Key()]
		if !ok {
			continue
		}
		it.AuthoringX, it.AuthoringY = p.X, p.Y
		moved++
	}
	return moved
}
