package streaming

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/rendis/wireflow/pkg/schema"
)

const defaultChannelBuffer = 64

// allGames buckets the subscribers that did not scope themselves to a game.
const allGames = ""

type subscriber struct {
	ch     chan Event
	filter EventFilter
}

// MemoryHub fans editor events out to observers through buffered channels.
// Subscribers are bucketed by game so a busy editor session does not scan
// the observers of other games. A subscription scoped to one item ends when
// that item's shape is removed from its game: the channel is closed after the
// shape_removed event is delivered.
// It is safe for concurrent use, unlike Bus.
type MemoryHub struct {
	mu      sync.Mutex
	games   map[string]map[uint64]*subscriber
	dropped map[string]uint64
	seq     atomic.Uint64
}

// NewMemoryHub creates a new MemoryHub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{
		games:   make(map[string]map[uint64]*subscriber),
		dropped: make(map[string]uint64),
	}
}

// Publish delivers event to the matching subscribers of its game and to the
// unscoped ones. Non-blocking: an event that does not fit a subscriber's
// buffer is dropped and counted against the game.
func (h *MemoryHub) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, game := range h.bucketsFor(event.GameID) {
		for id, sub := range h.games[game] {
			if !matchFilter(sub.filter, event) {
				continue
			}
			select {
			case sub.ch <- event:
			default:
				h.dropped[event.GameID]++
			}
			if event.Type == schema.EventShapeRemoved && sub.filter.ItemID != "" && sub.filter.ItemID == event.ItemID {
				h.remove(game, id)
			}
		}
	}
	return nil
}

// Subscribe registers an observer. Returns a receive-only channel and a
// cancel function; cancel is idempotent and also safe after the hub closed
// the channel on item removal.
func (h *MemoryHub) Subscribe(ctx context.Context, filter EventFilter) (<-chan Event, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	id := h.seq.Add(1)
	ch := make(chan Event, defaultChannelBuffer)

	h.mu.Lock()
	bucket := h.games[filter.GameID]
	if bucket == nil {
		bucket = make(map[uint64]*subscriber)
		h.games[filter.GameID] = bucket
	}
	bucket[id] = &subscriber{ch: ch, filter: filter}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		h.remove(filter.GameID, id)
		h.mu.Unlock()
	}

	return ch, cancel, nil
}

// Subscribers returns how many observers receive events of gameID, counting
// the unscoped ones.
func (h *MemoryHub) Subscribers(gameID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, game := range h.bucketsFor(gameID) {
		n += len(h.games[game])
	}
	return n
}

// Dropped returns how many events of gameID were lost to full buffers.
func (h *MemoryHub) Dropped(gameID string) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped[gameID]
}

func (h *MemoryHub) bucketsFor(gameID string) []string {
	if gameID == allGames {
		return []string{allGames}
	}
	return []string{gameID, allGames}
}

// remove must be called with mu held.
func (h *MemoryHub) remove(game string, id uint64) {
	bucket := h.games[game]
	sub, ok := bucket[id]
	if !ok {
		return
	}
	delete(bucket, id)
	close(sub.ch)
	if len(bucket) == 0 {
		delete(h.games, game)
	}
}

// matchFilter returns true if the event passes the filter criteria.
func matchFilter(f EventFilter, e Event) bool {
	if f.GameID != "" && f.GameID != e.GameID {
		return false
	}
	if f.ItemID != "" && f.ItemID != e.ItemID {
		return false
	}
	if len(f.EventTypes) > 0 && !slices.Contains(f.EventTypes, e.Type) {
		// Item-scoped observers always learn that their item is gone.
		if !(f.ItemID != "" && e.Type == schema.EventShapeRemoved) {
			return false
		}
	}
	return true
}
