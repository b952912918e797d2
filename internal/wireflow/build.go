package wireflow

import (
	"context"
	"slices"

	"github.com/rendis/wireflow/internal/diagram"
	"github.com/rendis/wireflow/internal/geometry"
	"github.com/rendis/wireflow/internal/logging"
	"github.com/rendis/wireflow/pkg/schema"
)

// Load replaces the item batch: shapes first, then every condition. References
// to items outside the batch end up on virtual shapes.
func (m *Manager) Load(ctx context.Context, items []*schema.Item) {
	m.items = slices.Clone(items)
	m.diagram.InitShapes(items)
	for _, it := range items {
		if it != nil {
			m.build(ctx, it, false)
		}
	}
	m.RetryPending(ctx)
	m.FinalizeBatch(ctx)
}

// AddItem adds one item to the batch and draws it. Pending conditions that
// waited for it are retried.
func (m *Manager) AddItem(ctx context.Context, item *schema.Item) {
	if existing := m.Item(item.ID); existing == nil {
		m.items = append(m.items, item)
	}
	m.diagram.InitShapes([]*schema.Item{item})
	m.build(ctx, item, !m.deferred)
	m.RetryPending(ctx)
}

// RetryPending draws the pending conditions that became resolvable.
func (m *Manager) RetryPending(ctx context.Context) {
	for _, key := range slices.Clone(m.pending) {
		if it := m.itemByKey(key); it != nil {
			m.build(ctx, it, false)
		}
	}
}

// FinalizeBatch draws whatever is still pending, using virtual shapes for
// the items that never showed up.
func (m *Manager) FinalizeBatch(ctx context.Context) {
	for _, key := range slices.Clone(m.pending) {
		if it := m.itemByKey(key); it != nil {
			m.build(ctx, it, true)
		}
	}
}

func (m *Manager) pend(key string) {
	if !slices.Contains(m.pending, key) {
		m.pending = append(m.pending, key)
	}
}

func (m *Manager) settle(key string) {
	m.pending = slices.DeleteFunc(m.pending, func(k string) bool { return k == key })
}

// build draws the item's condition. allowVirtual lets unresolved targets
// get placeholder shapes instead of waiting.
func (m *Manager) build(ctx context.Context, item *schema.Item, allowVirtual bool) {
	key := item.Key()
	log := logging.LogWith(logging.WithItemID(ctx, key), m.logger)

	if !m.diagram.CanCreateInputConnector(item) {
		m.pend(key)
		return
	}
	if m.diagram.GetMainMiddlePoint(key) != nil || m.diagram.GetSingleConnector(key) != nil {
		m.settle(key)
		return
	}

	dep := item.Condition(m.selector)
	switch dep.Kind() {
	case schema.KindEmpty:
	case schema.KindStub:
		m.referenced[key] = schema.ItemKey(dep.GeneralItemID)
	case schema.KindAction, schema.KindProximity:
		if !m.diagram.CanInitConnector(dep) && !allowVirtual {
			log.Debug("terminal target not loaded yet", "target", dep.GeneralItemID)
			m.pend(key)
			return
		}
		if _, err := m.CreateConnector(item, dep); err != nil {
			log.Debug("connector not created", "error", err)
			m.pend(key)
			return
		}
	case schema.KindAnd, schema.KindOr, schema.KindTime:
		if !m.CanInitMiddlePointGroup(dep) && !allowVirtual {
			log.Debug("combinator targets not loaded yet", "kind", dep.Kind().String())
			m.pend(key)
			return
		}
		if _, err := m.InitMiddlePointForConnector(item, dep); err != nil {
			log.Debug("middle point not created", "error", err)
			m.pend(key)
			return
		}
	case schema.KindUnknown:
		log.Warn("unknown dependency type left undrawn", "type", string(dep.Type))
	}
	m.settle(key)
}

// CanInitMiddlePointGroup reports whether every terminal below dep has a
// producer shape.
func (m *Manager) CanInitMiddlePointGroup(dep *schema.Dependency) bool {
	for _, t := range dep.Terminals() {
		if !m.diagram.CanInitConnector(t) {
			return false
		}
	}
	return true
}

// CanInitNodeMessage reports whether the item's condition can be drawn now.
func (m *Manager) CanInitNodeMessage(item *schema.Item) bool {
	if !m.diagram.CanCreateInputConnector(item) {
		return false
	}
	dep := item.Condition(m.selector)
	switch dep.Kind() {
	case schema.KindAction, schema.KindProximity:
		return m.diagram.CanInitConnector(dep)
	case schema.KindAnd, schema.KindOr, schema.KindTime:
		return m.CanInitMiddlePointGroup(dep)
	case schema.KindEmpty, schema.KindStub, schema.KindUnknown:
		return true
	default:
		return true
	}
}

// CreateConnector draws a bare terminal condition as a port-to-port edge.
func (m *Manager) CreateConnector(item *schema.Item, dep *schema.Dependency) (*diagram.Connector, error) {
	key := item.Key()
	in := m.diagram.GetInputPortByGeneralItemID(key)
	if in == nil {
		return nil, schema.NewErrorf(schema.ErrCodeUnresolvedReference, "item %s has no input port", key).WithItem(key)
	}
	out := m.ensureTarget(dep, in.Global)
	c := m.diagram.Connect(out, in, dep)
	m.referenced[key] = out.GeneralItemID
	return c, nil
}

// InitMiddlePointForConnector draws a combinator condition: a root middle
// point on the item's input port and its subtree.
func (m *Manager) InitMiddlePointForConnector(item *schema.Item, dep *schema.Dependency) (*diagram.MiddlePoint, error) {
	root, err := m.diagram.NewMiddlePoint(item.Key(), dep, nil)
	if err != nil {
		return nil, err
	}
	if err := m.renderChildren(root); err != nil {
		return nil, err
	}
	root.Init()
	return root, nil
}

func (m *Manager) renderChildren(mp *diagram.MiddlePoint) error {
	for _, child := range mp.Dependency.Children() {
		switch child.Kind() {
		case schema.KindAction, schema.KindProximity:
			if _, err := m.RenderLastAddedNode(mp, child); err != nil {
				return err
			}
		case schema.KindAnd, schema.KindOr, schema.KindTime:
			sub, err := m.diagram.NewMiddlePoint(mp.GeneralItemID, child, mp)
			if err != nil {
				return err
			}
			if err := m.renderChildren(sub); err != nil {
				return err
			}
			sub.Init()
		case schema.KindEmpty, schema.KindStub, schema.KindUnknown:
			m.logger.Debug("child dependency not drawable", "item_id", mp.GeneralItemID, "kind", child.Kind().String())
		}
	}
	return nil
}

// RenderLastAddedNode draws the terminal dep, just added below mp, as an
// edge from its producer. The producer port, and a virtual shape when the
// item is unknown, are created on demand.
func (m *Manager) RenderLastAddedNode(mp *diagram.MiddlePoint, dep *schema.Dependency) (*diagram.Connector, error) {
	if !dep.IsTerminal() {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "%s is not a terminal", dep.Kind()).WithItem(mp.GeneralItemID)
	}
	out := m.ensureTarget(dep, mp.Position)
	return m.diagram.ConnectOutput(mp, out, dep), nil
}

// ensureTarget returns the producer port of a terminal, creating the port
// and, if needed, a virtual shape left of near.
func (m *Manager) ensureTarget(dep *schema.Dependency, near geometry.Point) *diagram.Port {
	key := schema.ItemKey(dep.GeneralItemID)
	shape := m.diagram.GetShapeByGeneralItemID(key)
	if shape == nil {
		at := near.Sub(geometry.Pt(diagram.ShapeWidth+diagram.MiddlePointGap, diagram.ShapeHeight/2))
		shape = m.diagram.AddVirtualShape(key, at)
		m.logger.Debug("virtual shape created", "item_id", key)
	}
	nodeType := schema.DependencyTypeAction
	if dep.Kind() == schema.KindProximity {
		nodeType = schema.DependencyTypeProximity
	}
	port, created := shape.EnsureOutput(dep.ActionName(), nodeType)
	if created && !shape.Virtual {
		m.logger.Debug("output port created on first reference", "item_id", key, "action", dep.ActionName())
	}
	return port
}

// SetSelector switches the edited item field and redraws every condition.
func (m *Manager) SetSelector(ctx context.Context, sel schema.Selector) {
	if sel == m.selector {
		return
	}
	m.selector = sel
	m.clearConditions()
	for _, it := range m.items {
		if it != nil {
			m.build(ctx, it, false)
		}
	}
	m.FinalizeBatch(ctx)
}

// clearConditions removes every drawn condition without touching the
// dependency values.
func (m *Manager) clearConditions() {
	d := m.diagram
	for _, mp := range d.GetMainMiddlePoints() {
		mp.Remove(diagram.MiddlePointRemoveOptions{})
	}
	for _, c := range slices.Clone(d.Connectors) {
		c.Remove(diagram.RemoveOptions{OnlyConnector: true, RemoveVirtualNode: true})
	}
	m.referenced = make(map[string]string)
	m.pending = nil
}
