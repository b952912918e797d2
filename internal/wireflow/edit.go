package wireflow

import (
	"slices"

	"github.com/rendis/wireflow/internal/diagram"
	"github.com/rendis/wireflow/internal/geometry"
	"github.com/rendis/wireflow/internal/streaming"
	"github.com/rendis/wireflow/pkg/schema"
)

func combinatorOf(t schema.DependencyType, delta int64) (*schema.Dependency, error) {
	if !schema.IsCombinatorType(t) {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "%s is not a combinator type", t)
	}
	return schema.NewCombinator(t, delta)
}

// ChangeSingleDependency wraps the terminal of a direct connector into a new
// root combinator of type t. For a connector feeding a middle point it wraps
// the terminal in place instead.
func (m *Manager) ChangeSingleDependency(c *diagram.Connector, t schema.DependencyType, timeDelta int64) (*diagram.MiddlePoint, error) {
	if !c.IsSingle() {
		if owner := m.diagram.GetMiddlePointByConnector(c); owner != nil && owner.InputConnector != c {
			return m.CreateChildMiddlePointForOutputConnector(c, t)
		}
		return nil, schema.NewError(schema.ErrCodeConflict, "connector is a middle point edge").
			WithDetails(map[string]any{"connector_id": c.ID})
	}
	if !c.IsAttached() {
		return nil, schema.NewError(schema.ErrCodeConflict, "connector is not attached").
			WithDetails(map[string]any{"connector_id": c.ID})
	}
	root, err := combinatorOf(t, timeDelta)
	if err != nil {
		return nil, err
	}
	term := c.Dependency
	if term == nil {
		if term, err = c.Terminal(); err != nil {
			return nil, err
		}
	}
	_ = root.AppendChild(term)

	key := c.InputPort.GeneralItemID
	mp, err := m.diagram.NewMiddlePoint(key, root, nil)
	if err != nil {
		return nil, err
	}
	c.Dependency = term
	mp.AttachOutput(c)
	mp.Init()
	m.changed(key)
	return mp, nil
}

// ChangeMiddlePointType switches the combinator of mp in place, keeping the
// same dependency object so the parent's reference stays valid. And and Or
// swap freely; turning into Time needs at most one child.
func (m *Manager) ChangeMiddlePointType(mp *diagram.MiddlePoint, t schema.DependencyType) error {
	if !schema.IsCombinatorType(t) {
		return schema.NewErrorf(schema.ErrCodeValidation, "%s is not a combinator type", t).WithItem(mp.GeneralItemID)
	}
	dep := mp.Dependency
	if dep.Type == t {
		return nil
	}
	switch dep.Kind() {
	case schema.KindAnd, schema.KindOr:
		if t == schema.DependencyTypeTime {
			if len(dep.Dependencies) > 1 {
				return schema.NewErrorf(schema.ErrCodeConflict, "a time dependency holds one child, %s has %d",
					dep.Kind(), len(dep.Dependencies)).WithItem(mp.GeneralItemID)
			}
			offset := &schema.Dependency{}
			if len(dep.Dependencies) == 1 {
				offset = dep.Dependencies[0]
			}
			dep.Dependencies = nil
			dep.Offset = offset
		}
	case schema.KindTime:
		children := dep.Children()
		if children == nil {
			children = []*schema.Dependency{}
		}
		dep.Dependencies = children
		dep.Offset = nil
		dep.TimeDelta = 0
	case schema.KindEmpty, schema.KindStub, schema.KindAction, schema.KindProximity, schema.KindUnknown:
		return schema.NewErrorf(schema.ErrCodeStructuralMismatch, "middle point holds a %s dependency", dep.Kind()).
			WithItem(mp.GeneralItemID)
	}
	dep.Type = t

	if mp.InputConnector != nil {
		mp.InputConnector.DependencyType = t
	}
	for _, c := range mp.OutputConnectors {
		c.SubType = t
	}
	for _, child := range mp.Children() {
		if child.InputConnector != nil {
			child.InputConnector.SubType = t
		}
	}
	m.changed(mp.GeneralItemID)
	return nil
}

// CreateChildMiddlePointForOutputConnector wraps the terminal carried by c,
// an edge feeding a middle point, into a new child combinator of type t.
func (m *Manager) CreateChildMiddlePointForOutputConnector(c *diagram.Connector, t schema.DependencyType) (*diagram.MiddlePoint, error) {
	parent := m.diagram.GetMiddlePointByConnector(c)
	if parent == nil {
		if c.IsSingle() {
			return m.ChangeSingleDependency(c, t, 0)
		}
		return nil, schema.NewError(schema.ErrCodeNotFound, "connector has no middle point").
			WithDetails(map[string]any{"connector_id": c.ID})
	}
	if parent.InputConnector == c {
		return nil, schema.NewError(schema.ErrCodeConflict, "connector is the input of a middle point").
			WithItem(parent.GeneralItemID)
	}
	wrapped, err := combinatorOf(t, 0)
	if err != nil {
		return nil, err
	}
	term := c.Dependency
	_ = wrapped.AppendChild(term)
	if !parent.Dependency.ReplaceChild(term, wrapped) {
		return nil, schema.NewError(schema.ErrCodeStructuralMismatch, "terminal not found in its middle point").
			WithItem(parent.GeneralItemID)
	}
	child, err := m.diagram.NewMiddlePoint(parent.GeneralItemID, wrapped, parent)
	if err != nil {
		return nil, err
	}
	if c.OutputPort != nil {
		child.Move(geometry.MiddlePoint(c.OutputPort.Global, parent.Position))
	}
	child.AttachOutput(c)
	child.Init()
	m.changed(parent.GeneralItemID)
	return child, nil
}

// CreateChildMiddlePointForInputConnector adds an empty combinator of type
// t below mp.
func (m *Manager) CreateChildMiddlePointForInputConnector(mp *diagram.MiddlePoint, t schema.DependencyType) (*diagram.MiddlePoint, error) {
	dep, err := combinatorOf(t, 0)
	if err != nil {
		return nil, err
	}
	if err := m.checkRoom(mp); err != nil {
		return nil, err
	}
	if err := mp.Dependency.AppendChild(dep); err != nil {
		return nil, err
	}
	child, err := m.diagram.NewMiddlePoint(mp.GeneralItemID, dep, mp)
	if err != nil {
		return nil, err
	}
	child.Init()
	m.changed(mp.GeneralItemID)
	return child, nil
}

// checkRoom refuses a second child under a Time combinator.
func (m *Manager) checkRoom(mp *diagram.MiddlePoint) error {
	if mp.Dependency.Kind() == schema.KindTime && len(mp.Dependency.Children()) > 0 {
		return schema.NewError(schema.ErrCodeConflict, "time dependency already has an offset").WithItem(mp.GeneralItemID)
	}
	return nil
}

// AddDependency appends a terminal on (itemID, action) below mp and draws
// it. The "in range" action makes a proximity terminal at the item's
// location.
func (m *Manager) AddDependency(mp *diagram.MiddlePoint, itemID int64, action string) (*diagram.Connector, error) {
	if err := m.checkRoom(mp); err != nil {
		return nil, err
	}
	term := schema.NewAction(itemID, action)
	if action == schema.ActionInRange {
		term = schema.NewProximity(itemID, 0, 0, diagram.DefaultProximityRadius)
		if it := m.Item(itemID); it != nil && it.ProximityCapable() {
			term.Lat, term.Lng = *it.Lat, *it.Lng
		}
	}
	if err := mp.Dependency.AppendChild(term); err != nil {
		return nil, err
	}
	c, err := m.RenderLastAddedNode(mp, term)
	if err != nil {
		return nil, err
	}
	m.changed(mp.GeneralItemID)
	return c, nil
}

// SetTimeDelta sets the delay of a Time middle point.
func (m *Manager) SetTimeDelta(mp *diagram.MiddlePoint, ms int64) error {
	if mp.Dependency.Kind() != schema.KindTime {
		return schema.NewErrorf(schema.ErrCodeValidation, "%s dependency has no time delta", mp.Dependency.Kind()).
			WithItem(mp.GeneralItemID)
	}
	if ms < 0 {
		return schema.NewErrorf(schema.ErrCodeValidation, "negative time delta %d", ms).WithItem(mp.GeneralItemID)
	}
	mp.Dependency.TimeDelta = ms
	m.changed(mp.GeneralItemID)
	return nil
}

// RemoveConnector deletes a user-selected edge and the part of the
// condition it stands for.
func (m *Manager) RemoveConnector(c *diagram.Connector) error {
	if c.State == diagram.StateRemoved {
		return nil
	}
	if c.IsSingle() {
		key := ""
		if c.InputPort != nil {
			key = c.InputPort.GeneralItemID
		}
		c.Remove(diagram.RemoveOptions{RemoveDependency: true, RemoveVirtualNode: true})
		if key != "" {
			delete(m.referenced, key)
			m.changed(key)
		}
		return nil
	}
	owner := m.diagram.GetMiddlePointByConnector(c)
	if owner == nil {
		c.Remove(diagram.RemoveOptions{RemoveVirtualNode: true})
		return nil
	}
	if owner.InputConnector == c {
		return m.RemoveMiddlePoint(owner)
	}
	c.Remove(diagram.RemoveOptions{RemoveDependency: true, RemoveVirtualNode: true})
	m.changed(owner.GeneralItemID)
	return nil
}

// RemoveMiddlePoint deletes mp and its subtree. A root takes the whole
// condition with it; a child is spliced out of its parent.
func (m *Manager) RemoveMiddlePoint(mp *diagram.MiddlePoint) error {
	key := mp.GeneralItemID
	if mp.IsRoot() {
		delete(m.referenced, key)
	}
	mp.Remove(diagram.MiddlePointRemoveOptions{})
	m.changed(key)
	return nil
}

// RemoveItem drops an item, its shape and every edge touching it.
// Conditions of other items lose the terminals that pointed at it.
func (m *Manager) RemoveItem(itemID int64) error {
	key := schema.ItemKey(itemID)
	shape := m.diagram.GetShapeByGeneralItemID(key)
	if shape == nil && m.Item(itemID) == nil {
		return schema.NewErrorf(schema.ErrCodeNotFound, "item %d not found", itemID).WithItem(key)
	}

	var consumers []string
	for consumer, producer := range m.referenced {
		if producer == key {
			consumers = append(consumers, consumer)
		}
	}
	for _, consumer := range consumers {
		delete(m.referenced, consumer)
	}
	delete(m.referenced, key)
	if shape != nil {
		for _, p := range shape.Outputs {
			for _, c := range p.Connectors {
				if c.InputPort == nil {
					if owner := m.diagram.GetMiddlePointByConnector(c); owner != nil {
						consumers = append(consumers, owner.GeneralItemID)
					}
				}
			}
		}
		m.diagram.RemoveShape(shape)
	}

	m.items = slices.DeleteFunc(slices.Clone(m.items), func(it *schema.Item) bool {
		return it == nil || it.ID == itemID
	})
	m.settle(key)

	m.changed(key)
	for _, consumer := range consumers {
		m.changed(consumer)
	}
	return nil
}

// onAttached turns a user-drawn edge into condition structure. A second
// edge on an input port wraps the condition into an And root, or joins an
// existing And/Or root.
func (m *Manager) onAttached(e streaming.Event) {
	c := m.diagram.GetConnectorByID(e.ConnectorID)
	if c == nil || !c.IsAttached() || !c.IsSingle() {
		return
	}
	consumer := c.InputPort.GeneralItemID
	term, err := c.Terminal()
	if err != nil {
		m.logger.Debug("attached connector has no terminal", "connector_id", c.ID, "error", err)
		return
	}
	c.Dependency = term

	if root := m.diagram.GetMainMiddlePoint(consumer); root != nil {
		switch root.Dependency.Kind() {
		case schema.KindAnd, schema.KindOr:
			_ = root.Dependency.AppendChild(term)
			root.AttachOutput(c)
		default:
			wrapper, err := m.diagram.NewMiddlePoint(consumer, schema.NewAnd(root.Dependency, term), nil)
			if err != nil {
				m.logger.Debug("cannot wrap root", "item_id", consumer, "error", err)
				return
			}
			root.Reparent(wrapper)
			root.Move(wrapper.Position.Sub(geometry.Pt(diagram.MiddlePointGap, 0)))
			wrapper.AttachOutput(c)
			wrapper.Init()
		}
		return
	}

	var other *diagram.Connector
	for _, x := range c.InputPort.Connectors {
		if x != c && x.IsSingle() && x.IsAttached() {
			other = x
			break
		}
	}
	if other == nil {
		m.referenced[consumer] = c.OutputPort.GeneralItemID
		return
	}
	first := other.Dependency
	if first == nil {
		if first, err = other.Terminal(); err != nil {
			m.logger.Debug("existing connector has no terminal", "connector_id", other.ID, "error", err)
			return
		}
		other.Dependency = first
	}
	wrapper, err := m.diagram.NewMiddlePoint(consumer, schema.NewAnd(first, term), nil)
	if err != nil {
		m.logger.Debug("cannot wrap single connector", "item_id", consumer, "error", err)
		return
	}
	wrapper.AttachOutput(other)
	wrapper.AttachOutput(c)
	wrapper.Init()
	delete(m.referenced, consumer)
}
