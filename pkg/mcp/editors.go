package mcp

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/rendis/wireflow/internal/diagram"
	"github.com/rendis/wireflow/internal/store"
	"github.com/rendis/wireflow/internal/streaming"
	"github.com/rendis/wireflow/internal/wireflow"
	"github.com/rendis/wireflow/pkg/schema"
)

// editor is one open game: a diagram, its manager, and the items touched
// since the last save.
type editor struct {
	mu      sync.Mutex
	gameID  string
	manager *wireflow.Manager
	changed []int64
	cancel  func()
}

func (e *editor) diagram() *diagram.Diagram { return e.manager.Diagram() }

func (e *editor) track(ev streaming.Event) {
	if id, err := schema.ParseItemKey(ev.ItemID); err == nil {
		e.markChanged(id)
	}
}

func (e *editor) markChanged(id int64) {
	if !slices.Contains(e.changed, id) {
		e.changed = append(e.changed, id)
	}
}

// save writes the conditions and positions of the touched items back to s.
func (e *editor) save(ctx context.Context, s store.Store) ([]int64, error) {
	ids := e.changed
	e.changed = nil
	if len(ids) == 0 {
		return nil, nil
	}
	items := e.manager.Items()
	e.manager.PopulateOutputMessages(items, ids, true)
	for _, id := range ids {
		it := schema.FindItem(items, id)
		if it == nil {
			continue
		}
		if err := s.UpsertItem(ctx, e.gameID, it); err != nil {
			return nil, err
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (e *editor) close() {
	e.cancel()
	e.manager.Close()
}

// editors caches one editor per game.
type editors struct {
	mu     sync.Mutex
	open   map[string]*editor
	store  store.Store
	hub    streaming.EventHub
	logger *slog.Logger
}

func newEditors(s store.Store, hub streaming.EventHub, logger *slog.Logger) *editors {
	return &editors{open: make(map[string]*editor), store: s, hub: hub, logger: logger}
}

// get returns the editor of gameID, loading the game from the store on
// first use.
func (r *editors) get(ctx context.Context, gameID string) (*editor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.open[gameID]; ok {
		return e, nil
	}

	items, err := r.store.ListItems(ctx, gameID)
	if err != nil {
		return nil, err
	}
	logger := r.logger.With("game_id", gameID)
	d := diagram.New(diagram.Config{GameID: gameID, Logger: logger})
	m := wireflow.New(d, wireflow.Options{GameID: gameID, Logger: logger, Hub: r.hub})

	e := &editor{gameID: gameID, manager: m}
	e.cancel = d.Bus().Subscribe(e.track, schema.EventDependenciesChanged, schema.EventCoordinatesChanged)
	m.Load(ctx, items)
	// Loading redraws every condition; nothing is dirty yet.
	e.changed = nil

	r.open[gameID] = e
	logger.Debug("editor opened", "items", len(items))
	return e, nil
}

// drop closes the editor of gameID so the next get reloads it.
func (r *editors) drop(gameID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.open[gameID]; ok {
		e.close()
		delete(r.open, gameID)
	}
}

func (r *editors) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.open {
		e.close()
		delete(r.open, id)
	}
}
