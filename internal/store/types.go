package store

import (
	"time"

	"github.com/rendis/wireflow/internal/streaming"
)

// GameSummary describes one stored game.
type GameSummary struct {
	GameID    string    `json:"game_id"`
	Items     int       `json:"items"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Event is an immutable entry in the editor event log.
type Event struct {
	ID        int64           `json:"id"`
	GameID    string          `json:"game_id"`
	ItemID    string          `json:"item_id,omitempty"`
	Type      string          `json:"event_type"`
	Payload   streaming.Event `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
	Sequence  int64           `json:"sequence"`
}

// EventFilter narrows GetEvents. GameID is required.
type EventFilter struct {
	GameID string
	Types  []string
	Since  int64 // sequence, exclusive
	Limit  int
}
