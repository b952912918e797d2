package diagram

import (
	"github.com/rendis/wireflow/internal/geometry"
	"github.com/rendis/wireflow/pkg/schema"
)

// Default shape dimensions.
const (
	ShapeWidth  = 160.0
	ShapeHeight = 80.0
)

// DefaultProximityRadius is used when a user draws a connector from an
// "in range" output; the host may refine it afterwards.
const DefaultProximityRadius = 20.0

// NodeShape is the box drawn for one item.
type NodeShape struct {
	ID             string
	GeneralItemID  string
	DependencyType schema.DependencyType // root type of the item's condition, if any
	Name           string
	Position       geometry.Point
	Width, Height  float64
	Virtual        bool           // placeholder for an item not in the batch
	Location       *ProximityInfo // set for items with coordinates
	Inputs         []*Port        // zero or one
	Outputs        []*Port

	diagram *Diagram
}

func (s *NodeShape) DragTag() string   { return s.ID + ":" + DragTypeShape }
func (s *NodeShape) Parent() Element   { return nil }
func (s *NodeShape) Interactive() bool { return true }

// Bounds returns the shape rectangle.
func (s *NodeShape) Bounds() geometry.Rectangle {
	return geometry.Rect(s.Position.X, s.Position.Y, s.Width, s.Height)
}

// InputPort returns the input port, or nil.
func (s *NodeShape) InputPort() *Port {
	if len(s.Inputs) == 0 {
		return nil
	}
	return s.Inputs[0]
}

// OutputPort returns the output port for action, or nil.
func (s *NodeShape) OutputPort(action string) *Port {
	for _, p := range s.Outputs {
		if p.Action == action {
			return p
		}
	}
	return nil
}

// EnsureInput creates the input port if the shape has none.
func (s *NodeShape) EnsureInput() *Port {
	if p := s.InputPort(); p != nil {
		return p
	}
	p := &Port{ID: s.diagram.newID(), GeneralItemID: s.GeneralItemID, IsInput: true, shape: s}
	s.Inputs = append(s.Inputs, p)
	s.diagram.Ports = append(s.diagram.Ports, p)
	s.layoutPorts()
	return p
}

// EnsureOutput returns the output port for action, creating it when the
// shape does not expose it yet. created reports whether a port was added.
func (s *NodeShape) EnsureOutput(action string, nodeType schema.DependencyType) (port *Port, created bool) {
	if p := s.OutputPort(action); p != nil {
		return p, false
	}
	if nodeType == "" {
		nodeType = schema.DependencyTypeAction
	}
	p := &Port{
		ID:            s.diagram.newID(),
		GeneralItemID: s.GeneralItemID,
		Action:        action,
		NodeType:      nodeType,
		shape:         s,
	}
	s.Outputs = append(s.Outputs, p)
	s.diagram.Ports = append(s.diagram.Ports, p)
	s.layoutPorts()
	return p, true
}

// layoutPorts places the input at the left edge midpoint and spreads the
// outputs evenly along the right edge, then refreshes every port.
func (s *NodeShape) layoutPorts() {
	for _, p := range s.Inputs {
		p.Offset = geometry.Pt(0, s.Height/2)
	}
	n := float64(len(s.Outputs))
	for i, p := range s.Outputs {
		p.Offset = geometry.Pt(s.Width, s.Height*float64(i+1)/(n+1))
	}
	s.updatePorts()
}

func (s *NodeShape) updatePorts() {
	for _, p := range s.Inputs {
		p.Update()
	}
	for _, p := range s.Outputs {
		p.Update()
	}
}

// Move translates the shape by (dx, dy).
func (s *NodeShape) Move(dx, dy float64) {
	s.SetPosition(s.Position.Add(geometry.Pt(dx, dy)))
}

// SetPosition places the shape's top-left corner at p.
func (s *NodeShape) SetPosition(p geometry.Point) {
	s.Position = p
	s.diagram.motion.SetPosition(s.ID, p)
}

// OnDrag propagates the current position to ports and their connectors.
func (s *NodeShape) OnDrag() {
	s.updatePorts()
}

// OnDragEnd commits the new position outward.
func (s *NodeShape) OnDragEnd() {
	s.updatePorts()
	s.diagram.emit(schema.EventCoordinatesChanged, func(e *eventArgs) {
		e.ItemID = s.GeneralItemID
		e.ShapeID = s.ID
		e.X, e.Y = s.Position.X, s.Position.Y
	})
}

// Click toggles the shape in the diagram selection.
func (s *NodeShape) Click(multi bool) {
	s.diagram.toggleSelection(s.GeneralItemID, multi)
	s.diagram.emit(schema.EventNodeClicked, func(e *eventArgs) {
		e.ItemID = s.GeneralItemID
		e.ShapeID = s.ID
		e.MultiSelect = multi
	})
}

func (s *NodeShape) dragBy(delta geometry.Point) { s.Move(delta.X, delta.Y) }

// Ports returns inputs then outputs.
func (s *NodeShape) Ports() []*Port {
	out := make([]*Port, 0, len(s.Inputs)+len(s.Outputs))
	out = append(out, s.Inputs...)
	return append(out, s.Outputs...)
}
