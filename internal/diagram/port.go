package diagram

import (
	"slices"

	"github.com/rendis/wireflow/internal/geometry"
	"github.com/rendis/wireflow/pkg/schema"
)

// PortSize is the side of the square used to hit-test a port.
const PortSize = 12.0

// Port is a connection point on a node shape. Input ports consume a
// condition; output ports expose one action of the item.
type Port struct {
	ID            string
	GeneralItemID string
	Action        string // empty for inputs
	IsInput       bool
	NodeType      schema.DependencyType // Action or Proximity, outputs only
	Connectors    []*Connector
	Global        geometry.Point
	Offset        geometry.Point // relative to the owning shape

	shape *NodeShape
}

// Shape returns the owning node shape.
func (p *Port) Shape() *NodeShape { return p.shape }

// DragTag implements Element.
func (p *Port) DragTag() string   { return p.ID + ":" + DragTypePort }
func (p *Port) Parent() Element   { return p.shape }
func (p *Port) Interactive() bool { return true }

// Update recomputes the global position from the shape and refreshes every
// attached connector.
func (p *Port) Update() {
	if p.shape != nil {
		p.Global = p.shape.Position.Add(p.Offset)
	}
	for _, c := range p.Connectors {
		c.UpdateHandle(p)
	}
}

// AddConnector attaches c. Adding twice is a no-op.
func (p *Port) AddConnector(c *Connector) {
	if slices.Contains(p.Connectors, c) {
		return
	}
	p.Connectors = append(p.Connectors, c)
}

// RemoveConnector detaches c. A fully attached connector also leaves the
// diagram's attached index. Removing an absent connector is a no-op.
func (p *Port) RemoveConnector(c *Connector) {
	idx := slices.Index(p.Connectors, c)
	if idx < 0 {
		return
	}
	p.Connectors = slices.Delete(p.Connectors, idx, idx+1)
	if c.InputPort != nil && c.OutputPort != nil && p.shape != nil && p.shape.diagram != nil {
		p.shape.diagram.dropAttached(c.ID)
	}
}

// Bounds is the hit-test square centred on the port.
func (p *Port) Bounds() geometry.Rectangle {
	return geometry.Around(p.Global, PortSize)
}

// IsProximity reports whether the port is the "in range" output.
func (p *Port) IsProximity() bool {
	return !p.IsInput && p.NodeType == schema.DependencyTypeProximity
}
