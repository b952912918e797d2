package diagram

import (
	"math"

	"github.com/rendis/wireflow/internal/geometry"
	"github.com/rendis/wireflow/pkg/schema"
)

// Path constants.
const (
	BezierWeight    = 0.675
	VerticalTangent = 60.0
)

// MarkerNudge offsets the action marker from the path midpoint.
var MarkerNudge = geometry.Pt(0, -2)

// ConnectorState tracks the creation protocol of a connector.
type ConnectorState int

const (
	StateDetached ConnectorState = iota
	StateAttaching
	StateAttached
	StateRemoved
)

func (s ConnectorState) String() string {
	switch s {
	case StateDetached:
		return "detached"
	case StateAttaching:
		return "attaching"
	case StateAttached:
		return "attached"
	case StateRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Side is the edge of a node a connector leaves from.
type Side string

const (
	SideRight  Side = "right"
	SideLeft   Side = "left"
	SideTop    Side = "top"
	SideBottom Side = "bottom"
)

// ProximityInfo is the location part of a proximity terminal.
type ProximityInfo struct {
	Lat, Lng, Radius float64
}

// PathOptions controls how UpdatePath uses the driving coordinate.
type PathOptions struct {
	FixedStart bool // the start stays on its anchor; (x, y) drives the end
	FixedEnd   bool // the end stays on its anchor; (x, y) drives the start
	SwapCoords bool // mirror start and end after resolution
}

// RemoveOptions controls connector removal.
type RemoveOptions struct {
	OnlyConnector     bool // skip middle point and dependency cleanup
	RemoveDependency  bool // splice the terminal out of the owning middle point
	RemoveVirtualNode bool // drop a virtual producer shape left without connectors
}

// Connector is an edge from a producer (output port or middle point) to a
// consumer (input port or middle point). The path always runs from the
// producer side (start) to the consumer side (end).
type Connector struct {
	ID               string
	DependencyType   schema.DependencyType
	SubType          schema.DependencyType // combinator the connector feeds, if any
	Proximity        *ProximityInfo
	InputPort        *Port
	OutputPort       *Port
	BasePoint        *geometry.Point
	IsSelected       bool
	IsHovered        bool
	ConnectionSide   Side
	IsInputConnector bool
	Path             geometry.BezierPath
	Marker           geometry.Point
	State            ConnectorState

	// Dependency is the tree node the connector stands for: the terminal
	// for port edges, the combinator for a middle point's input edge.
	Dependency *schema.Dependency

	// FromMiddlePoint anchors the start at a middle point; ToMiddlePoint
	// anchors the end.
	FromMiddlePoint string
	ToMiddlePoint   string

	free    geometry.Point
	diagram *Diagram
}

func (c *Connector) DragTag() string   { return c.ID + ":" + DragTypeConnector }
func (c *Connector) Parent() Element   { return nil }
func (c *Connector) Interactive() bool { return true }

// Init binds the connector's first end to port.
func (c *Connector) Init(port *Port) {
	c.IsInputConnector = port.IsInput
	c.bind(port)
	c.free = port.Global
	c.State = StateDetached
	c.UpdatePath(c.free.X, c.free.Y, PathOptions{})
}

// bind sets port on the matching end, releasing a previous port of the
// same polarity.
func (c *Connector) bind(port *Port) {
	if port.IsInput {
		if c.InputPort != nil && c.InputPort != port {
			c.InputPort.RemoveConnector(c)
		}
		c.InputPort = port
	} else {
		if c.OutputPort != nil && c.OutputPort != port {
			c.OutputPort.RemoveConnector(c)
		}
		c.OutputPort = port
		c.adoptOutput(port)
	}
	port.AddConnector(c)
}

// adoptOutput derives the terminal type from the producer port.
func (c *Connector) adoptOutput(port *Port) {
	c.DependencyType = port.NodeType
	if !port.IsProximity() {
		return
	}
	if c.Proximity == nil {
		info := ProximityInfo{Radius: DefaultProximityRadius}
		if loc := port.shape.Location; loc != nil {
			info.Lat, info.Lng = loc.Lat, loc.Lng
		}
		c.Proximity = &info
	}
}

// IsAttached reports whether both ports are set.
func (c *Connector) IsAttached() bool {
	return c.InputPort != nil && c.OutputPort != nil
}

// IsSingle reports whether the connector links two ports directly, with no
// middle point involved.
func (c *Connector) IsSingle() bool {
	return c.FromMiddlePoint == "" && c.ToMiddlePoint == ""
}

func (c *Connector) resolveStart() (geometry.Point, bool) {
	if c.OutputPort != nil {
		return c.OutputPort.Global, true
	}
	if mp := c.diagram.GetMiddlePointByID(c.FromMiddlePoint); mp != nil {
		return mp.Position, true
	}
	if c.BasePoint != nil {
		return *c.BasePoint, true
	}
	return c.free, false
}

func (c *Connector) resolveEnd() (geometry.Point, bool) {
	if c.InputPort != nil {
		return c.InputPort.Global, true
	}
	if mp := c.diagram.GetMiddlePointByID(c.ToMiddlePoint); mp != nil {
		return mp.Position, true
	}
	return c.free, false
}

// UpdatePath recomputes the bezier from the current end resolution, using
// (x, y) for whichever end is driven.
func (c *Connector) UpdatePath(x, y float64, opts PathOptions) {
	c.free = geometry.Pt(x, y)
	start, _ := c.resolveStart()
	end, _ := c.resolveEnd()
	switch {
	case opts.FixedStart:
		end = c.free
	case opts.FixedEnd:
		start = c.free
	}
	if opts.SwapCoords {
		start, end = end, start
	}

	dx := math.Abs(end.X-start.X) * BezierWeight
	var p2, p3 geometry.Point
	switch c.ConnectionSide {
	case SideTop:
		p2 = start.Add(geometry.Pt(0, -VerticalTangent))
		p3 = end.Sub(geometry.Pt(dx, 0))
	case SideBottom:
		p2 = start.Add(geometry.Pt(0, VerticalTangent))
		p3 = end.Sub(geometry.Pt(dx, 0))
	case SideLeft:
		p2 = start.Sub(geometry.Pt(dx, 0))
		p3 = end.Add(geometry.Pt(dx, 0))
	default:
		p2 = start.Add(geometry.Pt(dx, 0))
		p3 = end.Sub(geometry.Pt(dx, 0))
	}
	c.Path.SetCoords(start, p2, p3, end)
	c.Marker = c.Path.GetPoint(0.5).Add(MarkerNudge)
}

// UpdateHandle refreshes the path after port moved.
func (c *Connector) UpdateHandle(port *Port) {
	c.Refresh()
}

// Refresh recomputes the path from the current anchors.
func (c *Connector) Refresh() {
	c.UpdatePath(c.free.X, c.free.Y, PathOptions{})
}

// FreeEnd returns the pointer-driven end.
func (c *Connector) FreeEnd() geometry.Point { return c.free }

func (c *Connector) dragBy(delta geometry.Point) {
	c.free = c.free.Add(delta)
}

// OnDrag redraws the connector toward the pointer.
func (c *Connector) OnDrag() {
	c.UpdatePath(c.free.X, c.free.Y, PathOptions{
		FixedStart: !c.IsInputConnector,
		FixedEnd:   c.IsInputConnector,
	})
}

// OnDragEnd resolves the gesture: nil removes the connector, a port binds
// the free end.
func (c *Connector) OnDragEnd(hit *Port) {
	if c.State == StateRemoved {
		return
	}
	c.State = StateAttaching
	if hit == nil {
		c.Remove(RemoveOptions{})
		return
	}
	c.bind(hit)
	c.Refresh()
	if !c.IsAttached() {
		c.State = StateDetached
		return
	}
	c.State = StateAttached
	c.diagram.addAttached(c)
	// Attach handlers may reroute c into a middle point and clear InputPort.
	consumer := c.InputPort.GeneralItemID
	c.diagram.emit(schema.EventConnectorAttached, func(e *eventArgs) {
		e.ConnectorID = c.ID
		e.ItemID = consumer
	})
	c.diagram.emit(schema.EventDependenciesChanged, func(e *eventArgs) {
		e.ItemID = consumer
	})
}

// Remove detaches the connector from both ports and the registry.
// Removing twice is a no-op.
func (c *Connector) Remove(opts RemoveOptions) {
	if c.State == StateRemoved {
		return
	}
	d := c.diagram

	if !opts.OnlyConnector {
		if mp := d.GetMiddlePointByConnector(c); mp != nil {
			mp.detachConnector(c, opts.RemoveDependency)
		}
	}

	producer := c.OutputPort
	if c.InputPort != nil {
		c.InputPort.RemoveConnector(c)
	}
	if c.OutputPort != nil {
		c.OutputPort.RemoveConnector(c)
	}
	d.dropAttached(c.ID)
	d.removeConnector(c)
	c.State = StateRemoved
	if d.openedConnector == c {
		d.openedConnector = nil
	}

	if opts.RemoveVirtualNode && producer != nil {
		if s := producer.shape; s != nil && s.Virtual && !s.hasConnectors() {
			d.RemoveShape(s)
		}
	}

	d.emit(schema.EventConnectorRemoved, func(e *eventArgs) {
		e.ConnectorID = c.ID
		if c.InputPort != nil {
			e.ItemID = c.InputPort.GeneralItemID
		}
	})
}

// Click toggles selection.
func (c *Connector) Click() {
	c.IsSelected = !c.IsSelected
}

// Hover sets the hover flag. The marker only shows when
// ShowsActionAffordance holds.
func (c *Connector) Hover(on bool) {
	c.IsHovered = on
}

// ShowsActionAffordance reports whether hovering exposes the "change
// combinator type" marker: only root edges expose it.
func (c *Connector) ShowsActionAffordance() bool {
	if c.State == StateRemoved {
		return false
	}
	mp := c.diagram.GetMiddlePointByConnector(c)
	return mp == nil || mp.IsRoot()
}

// Terminal returns the dependency the connector's producer port stands for.
func (c *Connector) Terminal() (*schema.Dependency, error) {
	if c.OutputPort == nil {
		return nil, schema.NewError(schema.ErrCodeInconsistentReadBack, "connector has no output port").
			WithDetails(map[string]any{"connector_id": c.ID})
	}
	id, err := schema.ParseItemKey(c.OutputPort.GeneralItemID)
	if err != nil {
		return nil, err
	}
	if c.OutputPort.IsProximity() {
		info := ProximityInfo{}
		if c.Proximity != nil {
			info = *c.Proximity
		}
		return schema.NewProximity(id, info.Lat, info.Lng, info.Radius), nil
	}
	return schema.NewAction(id, c.OutputPort.Action), nil
}
