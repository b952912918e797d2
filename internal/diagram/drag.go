package diagram

import (
	"context"
	"log/slog"

	"github.com/rendis/wireflow/internal/geometry"
	"github.com/rendis/wireflow/internal/logging"
)

// dragTarget is what a press can grab: a shape, a connector being drawn, a
// middle point, or the canvas itself.
type dragTarget interface {
	dragBy(delta geometry.Point)
	OnDrag()
}

type panTarget struct{ d *Diagram }

func (p panTarget) dragBy(delta geometry.Point) {
	p.d.Pan = p.d.Pan.Add(delta)
	p.d.motion.SetPosition(DragTypeDiagram, p.d.Pan)
}

func (p panTarget) OnDrag() {}

// Dragging reports whether a drag is in progress.
func (d *Diagram) Dragging() bool { return d.dragging }

// NoEvents reports whether pointer events on shapes are blocked while a
// shape is being dragged.
func (d *Diagram) NoEvents() bool { return d.noEvents }

func (d *Diagram) gestureLogger() *slog.Logger {
	return logging.LogWith(logging.WithGestureID(context.Background(), d.gesture), d.logger)
}

// OnPress grabs the element under the pointer. Pressing a port starts a
// new connector, which becomes both the target and the opened connector.
func (d *Diagram) OnPress(ev PointerEvent) {
	d.gesture = d.newID()
	d.dragging = false
	id, dragType := resolveDragArgs(ev.Target)
	log := d.gestureLogger()

	switch dragType {
	case DragTypeShape:
		if s := d.GetShapeByID(id); s != nil {
			d.target = s
			d.noEvents = true
			return
		}
	case DragTypePort:
		if p := d.GetPortByID(id); p != nil {
			c := d.NewConnector()
			c.Init(p)
			d.target = c
			d.openedConnector = c
			log.Debug("connector opened", "port_id", p.ID, "input", p.IsInput)
			return
		}
	case DragTypeMiddlePoint:
		if mp := d.GetMiddlePointByID(id); mp != nil {
			d.target = mp
			return
		}
	case DragTypeDiagram:
		d.target = panTarget{d}
		return
	}
	log.Debug("press on unknown element", "id", id, "type", dragType)
	d.target = nil
}

// OnDrag moves the target by the pointer delta and propagates geometry.
func (d *Diagram) OnDrag(ev PointerEvent) {
	if d.target == nil {
		return
	}
	d.dragging = true
	d.target.dragBy(geometry.Pt(ev.DX, ev.DY))
	d.target.OnDrag()
}

// OnDragEnd finishes the gesture. A connector's free end is hit-tested
// against shapes, then against the ports of opposite polarity of the hit
// shape. The connector stays the target until the next click.
func (d *Diagram) OnDragEnd(ev PointerEvent) {
	defer func() { d.dragging = false }()
	switch t := d.target.(type) {
	case *Connector:
		hit := d.hitTestPort(t)
		d.gestureLogger().Debug("connector drag end", "connector_id", t.ID, "hit", hit != nil)
		t.OnDragEnd(hit)
		return
	case *NodeShape:
		t.OnDragEnd()
		d.noEvents = false
	case *MiddlePoint:
		t.refreshConnectors()
	case panTarget, nil:
	}
	d.target = nil
}

// OnClick handles a press released without a drag. Clicking outside any
// interactive element hides the toolbars; a pending opened connector that
// never got both ports is discarded.
func (d *Diagram) OnClick(ev PointerEvent) {
	if d.dragging {
		return
	}
	id, dragType := resolveDragArgs(ev.Target)
	switch dragType {
	case DragTypeShape:
		if s := d.GetShapeByID(id); s != nil {
			s.Click(ev.Shift)
		}
		d.noEvents = false
	case DragTypeConnector:
		if c := d.GetConnectorByID(id); c != nil {
			c.Click()
		}
	case DragTypeMiddlePoint:
		if mp := d.GetMiddlePointByID(id); mp != nil && mp.Toolbar != nil {
			mp.Toolbar.Show()
		}
	}

	if ev.Target == nil || !isInteractive(ev.Target) {
		d.HideToolbars()
	}
	if oc := d.openedConnector; oc != nil && oc.State != StateAttached && !oc.IsAttached() {
		oc.Remove(RemoveOptions{})
	}
	d.openedConnector = nil
	d.target = nil
}

func (d *Diagram) hitTestPort(c *Connector) *Port {
	free := geometry.Around(c.free, PortSize)
	var origin *NodeShape
	if c.IsInputConnector && c.InputPort != nil {
		origin = c.InputPort.shape
	} else if c.OutputPort != nil {
		origin = c.OutputPort.shape
	}
	for _, s := range d.Shapes {
		if s == origin || !d.motion.HitTest(free, s.Bounds()) {
			continue
		}
		candidates := s.Inputs
		if c.IsInputConnector {
			candidates = s.Outputs
		}
		for _, p := range candidates {
			if d.motion.HitTest(free, p.Bounds()) {
				return p
			}
		}
	}
	return nil
}
