// Package wireflow keeps item conditions and the live diagram in sync.
//
// The build direction turns each item's dependency tree into connectors and
// middle points; the read-back direction turns the diagram back into a tree
// after every user edit. Editing operations mutate the dependency objects
// held by middle points in place and announce dependencies_changed; hosts
// pull the new trees with GetOutputDependency or PopulateOutputMessages.
package wireflow

import (
	"context"
	"log/slog"
	"slices"

	"github.com/rendis/wireflow/internal/diagram"
	"github.com/rendis/wireflow/internal/logging"
	"github.com/rendis/wireflow/internal/streaming"
	"github.com/rendis/wireflow/pkg/schema"
)

// Options configures a Manager.
type Options struct {
	GameID string
	// Selector picks the item field being edited (dependsOn by default).
	Selector schema.Selector
	// Deferred keeps unresolved references pending while items are added
	// one by one, instead of drawing virtual shapes for them right away.
	Deferred bool
	Logger   *slog.Logger
	// Hub receives the outward events when set.
	Hub streaming.EventHub
}

// Manager is the dependency graph manager of one diagram.
type Manager struct {
	diagram  *diagram.Diagram
	bus      *streaming.Bus
	gameID   string
	selector schema.Selector
	deferred bool
	logger   *slog.Logger

	items   []*schema.Item
	pending []string
	// referenced maps a consumer item key to the producer key last seen
	// as its bare terminal target.
	referenced map[string]string
	cancels    []func()
}

// New wires a manager to d and subscribes to its bus.
func New(d *diagram.Diagram, opts Options) *Manager {
	m := &Manager{
		diagram:    d,
		bus:        d.Bus(),
		gameID:     opts.GameID,
		selector:   opts.Selector,
		deferred:   opts.Deferred,
		logger:     opts.Logger,
		referenced: make(map[string]string),
	}
	if m.selector == "" {
		m.selector = schema.SelectorDependsOn
	}
	if m.logger == nil {
		m.logger = d.Logger()
	}
	m.cancels = append(m.cancels,
		m.bus.Subscribe(m.onAttached, schema.EventConnectorAttached),
		m.bus.Subscribe(m.onCoordinates, schema.EventCoordinatesChanged),
	)
	if opts.Hub != nil {
		ctx := logging.WithGameID(context.Background(), opts.GameID)
		m.cancels = append(m.cancels, m.bus.Bridge(ctx, opts.Hub, schema.OutwardEvents...))
	}
	return m
}

// Close drops the bus subscriptions.
func (m *Manager) Close() {
	for _, cancel := range m.cancels {
		cancel()
	}
	m.cancels = nil
}

// Diagram returns the managed diagram.
func (m *Manager) Diagram() *diagram.Diagram { return m.diagram }

// Selector returns the edited item field.
func (m *Manager) Selector() schema.Selector { return m.selector }

// Items returns the item batch.
func (m *Manager) Items() []*schema.Item { return m.items }

// Item returns the loaded item with id, or nil.
func (m *Manager) Item(id int64) *schema.Item { return schema.FindItem(m.items, id) }

// Pending returns the keys of items whose condition is not drawn yet.
func (m *Manager) Pending() []string { return slices.Clone(m.pending) }

// Referenced returns the producer key recorded for a consumer.
func (m *Manager) Referenced(consumerKey string) (string, bool) {
	v, ok := m.referenced[consumerKey]
	return v, ok
}

func (m *Manager) changed(itemKey string) {
	m.bus.Emit(streaming.Event{Type: schema.EventDependenciesChanged, GameID: m.gameID, ItemID: itemKey})
}

func (m *Manager) itemByKey(key string) *schema.Item {
	id, err := schema.ParseItemKey(key)
	if err != nil {
		return nil
	}
	return m.Item(id)
}

func (m *Manager) onCoordinates(e streaming.Event) {
	if it := m.itemByKey(e.ItemID); it != nil {
		it.AuthoringX, it.AuthoringY = e.X, e.Y
	}
}

// RequestNewOutputAction asks the host to name a new output of an item.
func (m *Manager) RequestNewOutputAction(itemID int64) {
	m.bus.Emit(streaming.Event{
		Type:   schema.EventNewOutputAction,
		GameID: m.gameID,
		ItemID: schema.ItemKey(itemID),
	})
}

// AddOutputAction records a host-named action on the item and exposes it
// as an output port.
func (m *Manager) AddOutputAction(itemID int64, action string) (*diagram.Port, error) {
	if action == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "action name is empty")
	}
	key := schema.ItemKey(itemID)
	shape := m.diagram.GetShapeByGeneralItemID(key)
	if shape == nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "item %d has no shape", itemID).WithItem(key)
	}
	if it := m.Item(itemID); it != nil && !slices.Contains(it.Actions, action) {
		it.Actions = append(it.Actions, action)
	}
	nodeType := schema.DependencyTypeAction
	if action == schema.ActionInRange {
		nodeType = schema.DependencyTypeProximity
	}
	port, _ := shape.EnsureOutput(action, nodeType)
	return port, nil
}
