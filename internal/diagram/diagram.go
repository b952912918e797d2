package diagram

import (
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/rendis/wireflow/internal/geometry"
	"github.com/rendis/wireflow/internal/logging"
	"github.com/rendis/wireflow/internal/streaming"
	"github.com/rendis/wireflow/pkg/schema"
)

type eventArgs = streaming.Event

// Config holds the collaborators of a Diagram. Zero values get defaults.
type Config struct {
	GameID string
	Bus    *streaming.Bus
	Motion MotionService
	Logger *slog.Logger
	NewID  func() string // id source for shapes, ports, connectors, middle points
}

// Attachment records a connector bound to both an input and an output port.
type Attachment struct {
	ConnectorID  string
	InputPortID  string
	OutputPortID string
}

// Diagram owns every shape, port, connector and middle point of one editor.
// Entities only hold back-references; removal always goes through here.
type Diagram struct {
	Shapes       []*NodeShape
	Ports        []*Port
	Connectors   []*Connector
	MiddlePoints []*MiddlePoint

	// Pan is the canvas offset accumulated by dragging the background.
	Pan geometry.Point

	gameID   string
	bus      *streaming.Bus
	motion   MotionService
	logger   *slog.Logger
	newID    func() string
	selected []string
	attached []Attachment

	target          dragTarget
	openedConnector *Connector
	dragging        bool
	noEvents        bool
	gesture         string
}

// New creates an empty diagram.
func New(cfg Config) *Diagram {
	d := &Diagram{
		gameID: cfg.GameID,
		bus:    cfg.Bus,
		motion: cfg.Motion,
		logger: cfg.Logger,
		newID:  cfg.NewID,
	}
	if d.bus == nil {
		d.bus = streaming.NewBus()
	}
	if d.motion == nil {
		d.motion = NewRectMotion()
	}
	if d.logger == nil {
		d.logger = logging.Default()
	}
	if d.newID == nil {
		d.newID = uuid.NewString
	}
	return d
}

// Bus returns the event bus the diagram emits on.
func (d *Diagram) Bus() *streaming.Bus { return d.bus }

// Logger returns the diagram logger.
func (d *Diagram) Logger() *slog.Logger { return d.logger }

func (d *Diagram) emit(eventType string, fill func(e *eventArgs)) {
	e := streaming.Event{Type: eventType, GameID: d.gameID}
	if fill != nil {
		fill(&e)
	}
	d.bus.Emit(e)
}

// --- shapes ---

// InitShapes creates shapes for every item not represented yet and returns
// the new ones. A virtual placeholder for an item is turned into a real shape.
func (d *Diagram) InitShapes(items []*schema.Item) []*NodeShape {
	var created []*NodeShape
	for _, it := range items {
		if it == nil {
			continue
		}
		if s := d.GetShapeByGeneralItemID(it.Key()); s != nil {
			if s.Virtual {
				d.materialize(s, it)
			}
			continue
		}
		created = append(created, d.AddShape(it))
	}
	return created
}

// AddShape creates the shape of item with its input port and one output
// per declared action, plus "in range" for items with a location.
func (d *Diagram) AddShape(item *schema.Item) *NodeShape {
	s := &NodeShape{
		ID:            d.newID(),
		GeneralItemID: item.Key(),
		Width:         ShapeWidth,
		Height:        ShapeHeight,
		diagram:       d,
	}
	d.Shapes = append(d.Shapes, s)
	d.materialize(s, item)
	d.logger.Debug("shape created", "item_id", s.GeneralItemID, "shape_id", s.ID)
	d.emit(schema.EventShapeCreated, func(e *eventArgs) {
		e.ItemID = s.GeneralItemID
		e.ShapeID = s.ID
	})
	return s
}

func (d *Diagram) materialize(s *NodeShape, item *schema.Item) {
	s.Virtual = false
	s.Name = item.Name
	if dep := item.DependsOn; dep != nil && dep.Kind() != schema.KindEmpty {
		s.DependencyType = dep.Type
	}
	s.Position = geometry.Pt(item.AuthoringX, item.AuthoringY)
	d.motion.SetPosition(s.ID, s.Position)
	s.EnsureInput()
	for _, a := range item.Actions {
		s.EnsureOutput(a, schema.DependencyTypeAction)
	}
	if item.ProximityCapable() {
		s.Location = &ProximityInfo{Lat: *item.Lat, Lng: *item.Lng, Radius: DefaultProximityRadius}
		s.EnsureOutput(schema.ActionInRange, schema.DependencyTypeProximity)
	}
	s.layoutPorts()
}

// AddVirtualShape creates a placeholder for an item that is referenced but
// not loaded. It has outputs only.
func (d *Diagram) AddVirtualShape(generalItemID string, at geometry.Point) *NodeShape {
	s := &NodeShape{
		ID:            d.newID(),
		GeneralItemID: generalItemID,
		Name:          "#" + generalItemID,
		Position:      at,
		Width:         ShapeWidth,
		Height:        ShapeHeight,
		Virtual:       true,
		diagram:       d,
	}
	d.Shapes = append(d.Shapes, s)
	d.motion.SetPosition(s.ID, at)
	d.emit(schema.EventShapeCreated, func(e *eventArgs) {
		e.ItemID = generalItemID
		e.ShapeID = s.ID
	})
	return s
}

// RemoveShape deletes the shape, its ports and every connector on them.
// Terminals carried by middle point edges are spliced out of their owners.
func (d *Diagram) RemoveShape(s *NodeShape) {
	idx := slices.Index(d.Shapes, s)
	if idx < 0 {
		return
	}
	d.Shapes = slices.Delete(d.Shapes, idx, idx+1)
	for _, p := range s.Ports() {
		for _, c := range slices.Clone(p.Connectors) {
			c.Remove(RemoveOptions{RemoveDependency: true})
		}
		d.Ports = slices.DeleteFunc(d.Ports, func(q *Port) bool { return q == p })
	}
	for _, mp := range d.GetMainMiddlePoints() {
		if mp.GeneralItemID == s.GeneralItemID {
			mp.Remove(MiddlePointRemoveOptions{})
		}
	}
	d.selected = slices.DeleteFunc(d.selected, func(id string) bool { return id == s.GeneralItemID })
	d.emit(schema.EventShapeRemoved, func(e *eventArgs) {
		e.ItemID = s.GeneralItemID
		e.ShapeID = s.ID
	})
}

func (s *NodeShape) hasConnectors() bool {
	for _, p := range s.Ports() {
		if len(p.Connectors) > 0 {
			return true
		}
	}
	return false
}

// --- connectors ---

// NewConnector registers an unbound connector.
func (d *Diagram) NewConnector() *Connector {
	c := &Connector{ID: d.newID(), ConnectionSide: SideRight, diagram: d}
	d.Connectors = append(d.Connectors, c)
	d.emit(schema.EventConnectorCreated, func(e *eventArgs) { e.ConnectorID = c.ID })
	return c
}

// Connect links an output port to an input port for the terminal dep
// without emitting change events.
func (d *Diagram) Connect(out, in *Port, dep *schema.Dependency) *Connector {
	c := d.NewConnector()
	c.Dependency = dep
	c.proximityFrom(dep)
	c.bind(out)
	c.bind(in)
	c.State = StateAttached
	d.addAttached(c)
	c.Refresh()
	return c
}

// ConnectOutput links an output port into mp for the terminal dep.
func (d *Diagram) ConnectOutput(mp *MiddlePoint, out *Port, dep *schema.Dependency) *Connector {
	c := d.NewConnector()
	c.Dependency = dep
	c.proximityFrom(dep)
	c.bind(out)
	mp.AttachOutput(c)
	return c
}

func (c *Connector) proximityFrom(dep *schema.Dependency) {
	if dep.Kind() == schema.KindProximity {
		c.Proximity = &ProximityInfo{Lat: dep.Lat, Lng: dep.Lng, Radius: dep.Radius}
	}
}

func (d *Diagram) removeConnector(c *Connector) {
	d.Connectors = slices.DeleteFunc(d.Connectors, func(x *Connector) bool { return x == c })
}

func (d *Diagram) addAttached(c *Connector) {
	if !c.IsAttached() {
		return
	}
	for _, a := range d.attached {
		if a.ConnectorID == c.ID {
			return
		}
	}
	d.attached = append(d.attached, Attachment{
		ConnectorID:  c.ID,
		InputPortID:  c.InputPort.ID,
		OutputPortID: c.OutputPort.ID,
	})
}

func (d *Diagram) dropAttached(connectorID string) {
	d.attached = slices.DeleteFunc(d.attached, func(a Attachment) bool { return a.ConnectorID == connectorID })
}

// GetAttached returns the fully attached connector pairings.
func (d *Diagram) GetAttached() []Attachment {
	return slices.Clone(d.attached)
}

// OpenedConnector returns the connector created by the last port press,
// kept until the next click.
func (d *Diagram) OpenedConnector() *Connector { return d.openedConnector }

// --- middle points ---

// NewMiddlePoint creates the marker for the combinator dep of item
// generalItemID. A nil parent makes it a root wired to the item's input
// port. The caller runs Init once children are in place.
func (d *Diagram) NewMiddlePoint(generalItemID string, dep *schema.Dependency, parent *MiddlePoint) (*MiddlePoint, error) {
	mp := &MiddlePoint{
		ID:            d.newID(),
		GeneralItemID: generalItemID,
		Dependency:    dep,
		diagram:       d,
	}
	in := d.NewConnector()
	in.FromMiddlePoint = mp.ID
	in.Dependency = dep
	in.DependencyType = dep.Type
	in.State = StateAttached

	if parent == nil {
		shape := d.GetShapeByGeneralItemID(generalItemID)
		if shape == nil {
			d.removeConnector(in)
			return nil, schema.NewErrorf(schema.ErrCodeUnresolvedReference, "no shape for item %s", generalItemID).
				WithItem(generalItemID)
		}
		port := shape.EnsureInput()
		in.bind(port)
		mp.Position = port.Global.Sub(geometry.Pt(MiddlePointGap, 0))
	} else {
		parent.AddChild(mp)
		in.ToMiddlePoint = parent.ID
		in.SubType = parent.Dependency.Type
		idx := len(parent.ChildIDs) - 1
		mp.Position = parent.Position.Sub(geometry.Pt(MiddlePointGap, 0)).Add(geometry.Pt(0, float64(idx)*MiddlePointSpacing))
	}
	mp.InputConnector = in
	d.MiddlePoints = append(d.MiddlePoints, mp)
	d.motion.SetPosition(mp.ID, mp.Position)
	return mp, nil
}

func (d *Diagram) removeMiddlePoint(mp *MiddlePoint) {
	d.MiddlePoints = slices.DeleteFunc(d.MiddlePoints, func(x *MiddlePoint) bool { return x == mp })
}

// --- selection ---

func (d *Diagram) toggleSelection(generalItemID string, multi bool) {
	was := slices.Contains(d.selected, generalItemID)
	switch {
	case multi && was:
		d.selected = slices.DeleteFunc(d.selected, func(id string) bool { return id == generalItemID })
	case multi:
		d.selected = append(d.selected, generalItemID)
	case was && len(d.selected) == 1:
		d.selected = nil
	default:
		d.selected = []string{generalItemID}
	}
	d.emit(schema.EventSelectionChanged, func(e *eventArgs) {
		e.ItemID = generalItemID
		e.MultiSelect = multi
	})
}

// Selected returns the selected item ids in selection order.
func (d *Diagram) Selected() []string { return slices.Clone(d.selected) }

// IsSelected reports whether the item is selected.
func (d *Diagram) IsSelected(generalItemID string) bool {
	return slices.Contains(d.selected, generalItemID)
}

// ClearSelection empties the selection.
func (d *Diagram) ClearSelection() {
	if len(d.selected) == 0 {
		return
	}
	d.selected = nil
	d.emit(schema.EventSelectionChanged, nil)
}

// --- gating ---

// CanCreateInputConnector reports whether item has a shape with an input
// port able to receive its condition.
func (d *Diagram) CanCreateInputConnector(item *schema.Item) bool {
	s := d.GetShapeByGeneralItemID(item.Key())
	return s != nil && !s.Virtual && s.InputPort() != nil
}

// CanInitConnector reports whether the terminal dep can be drawn now: the
// producer shape exists, so its output port exists or can be added.
func (d *Diagram) CanInitConnector(dep *schema.Dependency) bool {
	switch dep.Kind() {
	case schema.KindAction, schema.KindProximity:
		return d.GetShapeByGeneralItemID(schema.ItemKey(dep.GeneralItemID)) != nil
	default:
		return false
	}
}

// IsProximityConnector reports whether c leaves an "in range" output.
func (d *Diagram) IsProximityConnector(c *Connector) bool {
	return c.OutputPort != nil && c.OutputPort.NodeType == schema.DependencyTypeProximity
}

// HideToolbars hides every middle point toolbar.
func (d *Diagram) HideToolbars() {
	for _, mp := range d.MiddlePoints {
		if mp.Toolbar != nil {
			mp.Toolbar.Hide()
		}
	}
	d.emit(schema.EventToolbarsHidden, nil)
}
