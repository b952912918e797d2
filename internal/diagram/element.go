// Package diagram holds the live visual graph of the dependency editor:
// node shapes with their ports, the connectors drawn between them, the
// middle points standing for And/Or/Time combinators, and the pointer
// drag-state machine that mutates all of it.
//
// Rendering is not done here. Hosts reach the screen through the Element,
// MotionService and ActionToolbar interfaces.
package diagram

import (
	"strings"

	"github.com/rendis/wireflow/internal/geometry"
)

// Drag types carried in the "id:type" tag of interactive elements.
const (
	DragTypeDiagram     = "diagram"
	DragTypeShape       = "shape"
	DragTypePort        = "port"
	DragTypeMiddlePoint = "middle-point"
	DragTypeConnector   = "connector"
)

// DiagramTag is the tag assumed when no tagged element is found.
const DiagramTag = DragTypeDiagram + ":" + DragTypeDiagram

// Element is a node of the host's element tree that a pointer event lands on.
type Element interface {
	// DragTag returns "id:type", or "" when the element carries no tag.
	DragTag() string
	// Parent returns the enclosing element, nil at the root.
	Parent() Element
	// Interactive reports whether clicks on the element are meaningful to
	// the editor (as opposed to empty canvas).
	Interactive() bool
}

// Tag is a plain Element, handy for hosts and tests.
type Tag struct {
	Value     string
	Up        Element
	Clickable bool
}

func (t *Tag) DragTag() string   { return t.Value }
func (t *Tag) Parent() Element   { return t.Up }
func (t *Tag) Interactive() bool { return t.Clickable }

// MotionService moves rendered elements and hit-tests screen regions.
type MotionService interface {
	SetPosition(elementID string, p geometry.Point)
	HitTest(a, b geometry.Rectangle) bool
}

// RectMotion is the headless MotionService: it remembers the last position
// set per element and hit-tests by rectangle intersection.
type RectMotion struct {
	Positions map[string]geometry.Point
}

// NewRectMotion returns an empty RectMotion.
func NewRectMotion() *RectMotion {
	return &RectMotion{Positions: make(map[string]geometry.Point)}
}

func (m *RectMotion) SetPosition(elementID string, p geometry.Point) {
	m.Positions[elementID] = p
}

func (m *RectMotion) HitTest(a, b geometry.Rectangle) bool {
	return a.Intersects(b)
}

// ActionToolbar is the small menu shown next to a middle point.
type ActionToolbar interface {
	Move(p geometry.Point)
	Show()
	Hide()
	Remove()
}

// PointerEvent is one pointer notification from the host.
type PointerEvent struct {
	Target Element
	X, Y   float64
	DX, DY float64
	Shift  bool // multi-select modifier
}

// resolveDragArgs walks up from el to the first tagged element.
func resolveDragArgs(el Element) (id, dragType string) {
	tag := DiagramTag
	for e := el; e != nil; e = e.Parent() {
		if t := e.DragTag(); t != "" {
			tag = t
			break
		}
	}
	i := strings.LastIndex(tag, ":")
	if i < 0 {
		return tag, DragTypeDiagram
	}
	return tag[:i], tag[i+1:]
}

// isInteractive reports whether any element from el up is interactive.
func isInteractive(el Element) bool {
	for e := el; e != nil; e = e.Parent() {
		if e.Interactive() {
			return true
		}
	}
	return false
}
