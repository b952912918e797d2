package diagram

import (
	"slices"

	"github.com/rendis/wireflow/internal/geometry"
	"github.com/rendis/wireflow/pkg/schema"
)

// Middle point placement relative to its consumer.
const (
	MiddlePointGap     = 100.0
	MiddlePointSpacing = 40.0
)

// MiddlePointRemoveOptions controls middle point removal.
type MiddlePointRemoveOptions struct {
	// FromParent is set during a cascade: the parent is going away too, so
	// its dependency is left untouched.
	FromParent bool
}

// MiddlePoint is the marker of one And, Or or Time node of an item's
// condition. Parent and children are linked by id through the diagram.
type MiddlePoint struct {
	ID               string
	GeneralItemID    string // the consuming item
	Dependency       *schema.Dependency
	InputConnector   *Connector   // toward the parent, or the item's input port for roots
	OutputConnectors []*Connector // terminal edges from producer ports
	ParentID         string
	ChildIDs         []string
	Position         geometry.Point
	Toolbar          ActionToolbar

	removed bool
	diagram *Diagram
}

func (m *MiddlePoint) DragTag() string   { return m.ID + ":" + DragTypeMiddlePoint }
func (m *MiddlePoint) Parent() Element   { return nil }
func (m *MiddlePoint) Interactive() bool { return true }

// IsRoot reports whether the middle point feeds the item's input port.
func (m *MiddlePoint) IsRoot() bool { return m.ParentID == "" }

// ParentMiddlePoint returns the parent, or nil for roots.
func (m *MiddlePoint) ParentMiddlePoint() *MiddlePoint {
	return m.diagram.GetMiddlePointByID(m.ParentID)
}

// Owns reports whether c is this middle point's input connector or an
// output connector of it or of any ancestor.
func (m *MiddlePoint) Owns(c *Connector) bool { return m.ownershipDepth(c) >= 0 }

// ownershipDepth is 0 for a direct owner, the ancestor distance for an
// inherited output, and -1 otherwise.
func (m *MiddlePoint) ownershipDepth(c *Connector) int {
	if c == nil {
		return -1
	}
	if m.InputConnector == c {
		return 0
	}
	depth := 0
	seen := map[string]bool{}
	for mp := m; mp != nil && !seen[mp.ID]; mp = mp.ParentMiddlePoint() {
		seen[mp.ID] = true
		if slices.Contains(mp.OutputConnectors, c) {
			return depth
		}
		depth++
	}
	return -1
}

// Children returns the child middle points in order.
func (m *MiddlePoint) Children() []*MiddlePoint {
	out := make([]*MiddlePoint, 0, len(m.ChildIDs))
	for _, id := range m.ChildIDs {
		if c := m.diagram.GetMiddlePointByID(id); c != nil {
			out = append(out, c)
		}
	}
	return out
}

// Init announces the middle point and draws its connectors.
func (m *MiddlePoint) Init() {
	m.refreshConnectors()
	m.diagram.emit(schema.EventMiddlePointInit, func(e *eventArgs) {
		e.MiddlePointID = m.ID
		e.ItemID = m.GeneralItemID
	})
}

// Move places the marker at p and drags the toolbar along when present.
func (m *MiddlePoint) Move(p geometry.Point) {
	m.Position = p
	m.diagram.motion.SetPosition(m.ID, p)
	if m.Toolbar != nil {
		m.Toolbar.Move(p)
	}
	m.refreshConnectors()
}

func (m *MiddlePoint) dragBy(delta geometry.Point) { m.Move(m.Position.Add(delta)) }

// OnDrag is a no-op: Move already refreshed the connectors.
func (m *MiddlePoint) OnDrag() {}

func (m *MiddlePoint) refreshConnectors() {
	if m.InputConnector != nil {
		m.InputConnector.UpdatePath(m.Position.X, m.Position.Y, PathOptions{FixedEnd: true})
	}
	for _, c := range m.OutputConnectors {
		c.UpdatePath(m.Position.X, m.Position.Y, PathOptions{FixedStart: true})
	}
	for _, child := range m.Children() {
		if child.InputConnector != nil {
			child.InputConnector.Refresh()
		}
	}
}

// AddChild links child below m. Structural only.
func (m *MiddlePoint) AddChild(child *MiddlePoint) {
	child.ParentID = m.ID
	if !slices.Contains(m.ChildIDs, child.ID) {
		m.ChildIDs = append(m.ChildIDs, child.ID)
	}
}

// RemoveChild unlinks child. Structural only.
func (m *MiddlePoint) RemoveChild(child *MiddlePoint) {
	m.ChildIDs = slices.DeleteFunc(m.ChildIDs, func(id string) bool { return id == child.ID })
	if child.ParentID == m.ID {
		child.ParentID = ""
	}
}

// GetDependencyIdx returns the index of candidate among the children of
// the middle point's dependency, or -1.
func (m *MiddlePoint) GetDependencyIdx(candidate *schema.Dependency) int {
	if m.Dependency == nil {
		return -1
	}
	return m.Dependency.IndexOf(candidate)
}

// Remove deletes the middle point, its children and its connectors.
// Unless FromParent is set it also detaches its dependency from the
// parent's: a Time parent's offset becomes {}, an And/Or parent loses the
// matching child. A missing match is not an error.
func (m *MiddlePoint) Remove(opts MiddlePointRemoveOptions) {
	if m.removed {
		return
	}
	m.removed = true
	d := m.diagram

	if m.Toolbar != nil {
		m.Toolbar.Remove()
		m.Toolbar = nil
	}
	for _, child := range m.Children() {
		child.Remove(MiddlePointRemoveOptions{FromParent: true})
	}
	for _, c := range slices.Clone(m.OutputConnectors) {
		c.Remove(RemoveOptions{OnlyConnector: true, RemoveVirtualNode: true})
	}
	m.OutputConnectors = nil
	if m.InputConnector != nil {
		in := m.InputConnector
		m.InputConnector = nil
		in.Remove(RemoveOptions{OnlyConnector: true})
	}

	if parent := m.ParentMiddlePoint(); parent != nil {
		if !opts.FromParent && parent.Dependency != nil {
			if !parent.Dependency.RemoveChild(m.Dependency) {
				d.logger.Debug("middle point dependency not found in parent",
					"middle_point_id", m.ID, "parent_id", parent.ID)
			}
		}
		parent.RemoveChild(m)
	}

	d.removeMiddlePoint(m)
	d.emit(schema.EventMiddlePointRemoved, func(e *eventArgs) {
		e.MiddlePointID = m.ID
		e.ItemID = m.GeneralItemID
	})
}

// detachConnector is called by Connector.Remove before the connector
// leaves its ports.
func (m *MiddlePoint) detachConnector(c *Connector, removeDependency bool) {
	if idx := slices.Index(m.OutputConnectors, c); idx >= 0 {
		m.OutputConnectors = slices.Delete(m.OutputConnectors, idx, idx+1)
		if removeDependency && m.Dependency != nil && c.Dependency != nil {
			m.Dependency.RemoveChild(c.Dependency)
		}
		return
	}
	if m.InputConnector == c {
		m.InputConnector = nil
		if removeDependency {
			m.Remove(MiddlePointRemoveOptions{})
		}
	}
}

// AttachOutput routes c into the middle point as a terminal edge, taking
// it from a port or from another middle point.
func (m *MiddlePoint) AttachOutput(c *Connector) {
	if prev := m.diagram.GetMiddlePointByID(c.ToMiddlePoint); prev != nil && prev != m {
		prev.OutputConnectors = slices.DeleteFunc(prev.OutputConnectors, func(x *Connector) bool { return x == c })
	}
	if c.InputPort != nil {
		c.InputPort.RemoveConnector(c)
		m.diagram.dropAttached(c.ID)
		c.InputPort = nil
	}
	c.ToMiddlePoint = m.ID
	c.SubType = m.Dependency.Type
	if !slices.Contains(m.OutputConnectors, c) {
		m.OutputConnectors = append(m.OutputConnectors, c)
	}
	c.State = StateAttached
	c.Refresh()
}

// Reparent moves a root middle point below parent.
func (m *MiddlePoint) Reparent(parent *MiddlePoint) {
	if old := m.ParentMiddlePoint(); old != nil {
		old.RemoveChild(m)
	}
	parent.AddChild(m)
	if in := m.InputConnector; in != nil {
		if in.InputPort != nil {
			in.InputPort.RemoveConnector(in)
			in.InputPort = nil
		}
		in.ToMiddlePoint = parent.ID
		in.SubType = parent.Dependency.Type
		in.Refresh()
	}
}
