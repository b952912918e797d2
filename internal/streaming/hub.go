// Package streaming carries diagram events: a synchronous Bus used inside a
// single editor instance, and an EventHub that fans events out to observers
// outside it.
package streaming

import "context"

// Event is one notification emitted by the diagram or the manager.
// Only the fields relevant to Type are set.
type Event struct {
	Type          string  `json:"type"`
	GameID        string  `json:"game_id,omitempty"`
	ItemID        string  `json:"item_id,omitempty"`
	Action        string  `json:"action,omitempty"`
	X             float64 `json:"x,omitempty"`
	Y             float64 `json:"y,omitempty"`
	MultiSelect   bool    `json:"multi_select,omitempty"`
	ShapeID       string  `json:"shape_id,omitempty"`
	ConnectorID   string  `json:"connector_id,omitempty"`
	MiddlePointID string  `json:"middle_point_id,omitempty"`
}

// EventFilter specifies which events a subscriber wants to receive.
type EventFilter struct {
	GameID     string   `json:"game_id,omitempty"`
	ItemID     string   `json:"item_id,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for editor events crossing the host boundary.
type EventHub interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan Event, func(), error)
}
