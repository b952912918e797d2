package store

import (
	"context"

	"github.com/rendis/wireflow/pkg/schema"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Items
	ReplaceItems(ctx context.Context, gameID string, items []*schema.Item) error
	ListItems(ctx context.Context, gameID string) ([]*schema.Item, error)
	GetItem(ctx context.Context, gameID string, id int64) (*schema.Item, error)
	UpsertItem(ctx context.Context, gameID string, item *schema.Item) error
	DeleteItem(ctx context.Context, gameID string, id int64) error
	ListGames(ctx context.Context) ([]*GameSummary, error)

	// Event log (append-only)
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, filter EventFilter) ([]*Event, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
