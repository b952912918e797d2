package diagram

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/wireflow/internal/geometry"
	"github.com/rendis/wireflow/internal/logging"
	"github.com/rendis/wireflow/internal/streaming"
	"github.com/rendis/wireflow/pkg/schema"
)

// --- helpers ---

type recorder struct {
	events []streaming.Event
}

func (r *recorder) types() []string {
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func (r *recorder) count(eventType string) int {
	n := 0
	for _, e := range r.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func newTestDiagram(t *testing.T) (*Diagram, *recorder) {
	t.Helper()
	seq := 0
	bus := streaming.NewBus()
	rec := &recorder{}
	bus.Subscribe(func(e streaming.Event) { rec.events = append(rec.events, e) })
	d := New(Config{
		GameID: "game-1",
		Bus:    bus,
		Logger: logging.Discard(),
		NewID: func() string {
			seq++
			return fmt.Sprintf("id-%d", seq)
		},
	})
	return d, rec
}

func item(id int64, x, y float64, actions ...string) *schema.Item {
	return &schema.Item{ID: id, Name: fmt.Sprintf("item %d", id), AuthoringX: x, AuthoringY: y, Actions: actions}
}

type fakeToolbar struct {
	moves               []geometry.Point
	shown, hidden, gone int
}

func (f *fakeToolbar) Move(p geometry.Point) { f.moves = append(f.moves, p) }
func (f *fakeToolbar) Show()                 { f.shown++ }
func (f *fakeToolbar) Hide()                 { f.hidden++ }
func (f *fakeToolbar) Remove()               { f.gone++ }

// --- shapes and ports ---

func TestInitShapesLayout(t *testing.T) {
	d, rec := newTestDiagram(t)
	lat, lng := 50.1, 4.2
	loc := item(2, 400, 0)
	loc.Lat, loc.Lng = &lat, &lng

	created := d.InitShapes([]*schema.Item{item(1, 0, 0, "read", "answer"), loc})
	require.Len(t, created, 2)
	assert.Equal(t, 2, rec.count(schema.EventShapeCreated))

	s1 := d.GetShapeByGeneralItemID("1")
	require.NotNil(t, s1)
	assert.Equal(t, geometry.Pt(0, 40), s1.InputPort().Global)
	require.Len(t, s1.Outputs, 2)
	assert.InDelta(t, 80.0/3, s1.Outputs[0].Global.Y, 1e-9)
	assert.InDelta(t, 160.0/3, s1.Outputs[1].Global.Y, 1e-9)
	assert.Equal(t, 160.0, s1.Outputs[0].Global.X)

	inRange := d.GetOutputPortByGeneralItemID("2", schema.ActionInRange)
	require.NotNil(t, inRange)
	assert.True(t, inRange.IsProximity())
	assert.Equal(t, geometry.Pt(560, 40), inRange.Global)

	// Re-running does not duplicate.
	assert.Empty(t, d.InitShapes([]*schema.Item{item(1, 0, 0)}))
	assert.Len(t, d.Shapes, 2)
	assert.Len(t, d.Ports, 5)
}

func TestEnsureOutputCreatesOnce(t *testing.T) {
	d, _ := newTestDiagram(t)
	s := d.AddShape(item(1, 0, 0))

	p, created := s.EnsureOutput("read", "")
	assert.True(t, created)
	assert.Equal(t, schema.DependencyTypeAction, p.NodeType)

	again, created := s.EnsureOutput("read", schema.DependencyTypeAction)
	assert.False(t, created)
	assert.Same(t, p, again)
	assert.Same(t, p, d.GetOutputPortByGeneralItemID("1", "read"))
}

func TestPortConnectorSetIsIdempotent(t *testing.T) {
	d, _ := newTestDiagram(t)
	s := d.AddShape(item(1, 0, 0))
	c := d.NewConnector()
	p := s.InputPort()

	p.AddConnector(c)
	p.AddConnector(c)
	assert.Len(t, p.Connectors, 1)

	p.RemoveConnector(c)
	p.RemoveConnector(c)
	assert.Empty(t, p.Connectors)
}

func TestPortBounds(t *testing.T) {
	d, _ := newTestDiagram(t)
	s := d.AddShape(item(1, 10, 10))
	assert.Equal(t, geometry.Rect(4, 44, 12, 12), s.InputPort().Bounds())
}

// --- connector geometry ---

func TestUpdatePathSides(t *testing.T) {
	d, _ := newTestDiagram(t)
	base := geometry.Pt(0, 0)

	cases := []struct {
		side   Side
		p2, p3 geometry.Point
	}{
		{SideRight, geometry.Pt(6.75, 0), geometry.Pt(3.25, 10)},
		{SideTop, geometry.Pt(0, -60), geometry.Pt(3.25, 10)},
		{SideBottom, geometry.Pt(0, 60), geometry.Pt(3.25, 10)},
		{SideLeft, geometry.Pt(-6.75, 0), geometry.Pt(16.75, 10)},
	}
	for _, tc := range cases {
		t.Run(string(tc.side), func(t *testing.T) {
			c := d.NewConnector()
			c.ConnectionSide = tc.side
			c.BasePoint = &base
			c.UpdatePath(10, 10, PathOptions{})

			assert.Equal(t, base, c.Path.P1)
			assert.Equal(t, tc.p2, c.Path.P2)
			assert.Equal(t, tc.p3, c.Path.P3)
			assert.Equal(t, geometry.Pt(10, 10), c.Path.P4)
			assert.Equal(t, c.Path.GetPoint(0.5).Add(geometry.Pt(0, -2)), c.Marker)
		})
	}
}

func TestUpdatePathTopTangentIsFixed(t *testing.T) {
	d, _ := newTestDiagram(t)
	base := geometry.Pt(0, 0)
	c := d.NewConnector()
	c.ConnectionSide = SideTop
	c.BasePoint = &base
	c.UpdatePath(10, 10, PathOptions{FixedStart: false})

	assert.Equal(t, -60.0, c.Path.P2.Y-c.Path.P1.Y)
	assert.Equal(t, "M0,0 C 0,-60 3.25,10 10,10", c.Path.String())
}

func TestUpdatePathOptions(t *testing.T) {
	d, _ := newTestDiagram(t)
	d.InitShapes([]*schema.Item{item(1, 0, 0, "read"), item(2, 400, 0)})
	out := d.GetOutputPortByGeneralItemID("1", "read")
	in := d.GetInputPortByGeneralItemID("2")
	c := d.Connect(out, in, schema.NewAction(1, "read"))

	c.UpdatePath(300, 300, PathOptions{})
	assert.Equal(t, out.Global, c.Path.P1)
	assert.Equal(t, in.Global, c.Path.P4)

	c.UpdatePath(300, 300, PathOptions{FixedStart: true})
	assert.Equal(t, out.Global, c.Path.P1)
	assert.Equal(t, geometry.Pt(300, 300), c.Path.P4)

	c.UpdatePath(300, 300, PathOptions{FixedEnd: true})
	assert.Equal(t, geometry.Pt(300, 300), c.Path.P1)
	assert.Equal(t, in.Global, c.Path.P4)

	c.UpdatePath(0, 0, PathOptions{SwapCoords: true})
	assert.Equal(t, in.Global, c.Path.P1)
	assert.Equal(t, out.Global, c.Path.P4)
}

// --- connector protocol ---

func TestCreateConnectorAndAttach(t *testing.T) {
	d, rec := newTestDiagram(t)
	d.InitShapes([]*schema.Item{item(1, 0, 0, "read"), item(2, 400, 0)})
	out := d.GetOutputPortByGeneralItemID("1", "read")
	in := d.GetInputPortByGeneralItemID("2")

	d.OnPress(PointerEvent{Target: out})
	c := d.OpenedConnector()
	require.NotNil(t, c)
	assert.Equal(t, StateDetached, c.State)
	assert.False(t, c.IsInputConnector)

	c.OnDragEnd(in)

	assert.Equal(t, StateAttached, c.State)
	assert.Len(t, d.GetInputPortByGeneralItemID("2").Connectors, 1)
	assert.Len(t, d.GetOutputPortByGeneralItemID("1", "read").Connectors, 1)
	assert.Equal(t, []Attachment{{ConnectorID: c.ID, InputPortID: in.ID, OutputPortID: out.ID}}, d.GetAttached())

	types := rec.types()
	require.GreaterOrEqual(t, len(types), 2)
	assert.Equal(t, []string{schema.EventConnectorAttached, schema.EventDependenciesChanged}, types[len(types)-2:])
	assert.Equal(t, "2", rec.events[len(rec.events)-1].ItemID)
}

func TestAttachHandlerMayRerouteConnector(t *testing.T) {
	d, rec := newTestDiagram(t)
	d.InitShapes([]*schema.Item{item(1, 0, 0, "read"), item(2, 400, 0)})
	mp, err := d.NewMiddlePoint("2", schema.NewAnd(), nil)
	require.NoError(t, err)

	d.Bus().Subscribe(func(e streaming.Event) {
		if c := d.GetConnectorByID(e.ConnectorID); c != nil {
			mp.AttachOutput(c)
		}
	}, schema.EventConnectorAttached)

	d.OnPress(PointerEvent{Target: d.GetOutputPortByGeneralItemID("1", "read")})
	c := d.OpenedConnector()
	require.NotNil(t, c)
	require.NotPanics(t, func() { c.OnDragEnd(d.GetInputPortByGeneralItemID("2")) })

	assert.Nil(t, c.InputPort)
	assert.Same(t, mp, d.GetMiddlePointByConnector(c))
	last := rec.events[len(rec.events)-1]
	assert.Equal(t, schema.EventDependenciesChanged, last.Type)
	assert.Equal(t, "2", last.ItemID)
}

func TestDragGestureHitTestsPorts(t *testing.T) {
	d, _ := newTestDiagram(t)
	d.InitShapes([]*schema.Item{item(1, 0, 0, "read"), item(2, 400, 0)})
	out := d.GetOutputPortByGeneralItemID("1", "read")
	in := d.GetInputPortByGeneralItemID("2")

	d.OnPress(PointerEvent{Target: out})
	d.OnDrag(PointerEvent{DX: 120, DY: 0})
	assert.True(t, d.Dragging())
	d.OnDrag(PointerEvent{DX: 118, DY: 2})
	d.OnDragEnd(PointerEvent{})

	require.Len(t, in.Connectors, 1)
	c := in.Connectors[0]
	assert.Same(t, out, c.OutputPort)
	assert.Equal(t, StateAttached, c.State)
	assert.Equal(t, out.Global, c.Path.P1)
	assert.Equal(t, in.Global, c.Path.P4)
	assert.False(t, d.Dragging())
}

func TestDragFromInputPort(t *testing.T) {
	d, _ := newTestDiagram(t)
	d.InitShapes([]*schema.Item{item(1, 0, 0, "read"), item(2, 400, 0)})
	out := d.GetOutputPortByGeneralItemID("1", "read")
	in := d.GetInputPortByGeneralItemID("2")

	d.OnPress(PointerEvent{Target: &Tag{Value: in.ID + ":port"}})
	c := d.OpenedConnector()
	require.NotNil(t, c)
	assert.True(t, c.IsInputConnector)

	d.OnDrag(PointerEvent{DX: -240})
	assert.Equal(t, geometry.Pt(160, 40), c.Path.P1)
	assert.Equal(t, in.Global, c.Path.P4)
	d.OnDragEnd(PointerEvent{})

	assert.True(t, c.IsAttached())
	assert.Same(t, out, c.OutputPort)
}

func TestDanglingDropRemovesConnector(t *testing.T) {
	d, rec := newTestDiagram(t)
	d.InitShapes([]*schema.Item{item(1, 0, 0, "read"), item(2, 400, 0)})
	out := d.GetOutputPortByGeneralItemID("1", "read")

	d.OnPress(PointerEvent{Target: out})
	c := d.OpenedConnector()
	d.OnDrag(PointerEvent{DX: 900, DY: 900})
	d.OnDragEnd(PointerEvent{})

	assert.Equal(t, StateRemoved, c.State)
	assert.NotContains(t, d.Connectors, c)
	assert.Empty(t, out.Connectors)
	assert.Nil(t, d.OpenedConnector())
	assert.Equal(t, 1, rec.count(schema.EventConnectorRemoved))
}

func TestOnDragEndNilRemoves(t *testing.T) {
	d, _ := newTestDiagram(t)
	d.InitShapes([]*schema.Item{item(1, 0, 0, "read")})
	c := d.NewConnector()
	c.Init(d.GetOutputPortByGeneralItemID("1", "read"))

	c.OnDragEnd(nil)
	assert.Empty(t, d.Connectors)
	c.OnDragEnd(nil)
	assert.Equal(t, StateRemoved, c.State)
}

func TestAttachThenRemove(t *testing.T) {
	d, _ := newTestDiagram(t)
	d.InitShapes([]*schema.Item{item(1, 0, 0, "read"), item(2, 400, 0)})
	out := d.GetOutputPortByGeneralItemID("1", "read")
	in := d.GetInputPortByGeneralItemID("2")

	c := d.NewConnector()
	c.Init(out)
	c.OnDragEnd(in)
	require.Len(t, d.GetAttached(), 1)

	c.Remove(RemoveOptions{})
	c.Remove(RemoveOptions{})
	assert.Empty(t, in.Connectors)
	assert.Empty(t, out.Connectors)
	assert.Empty(t, d.GetAttached())
	assert.Nil(t, d.GetConnectorByID(c.ID))
}

func TestRebindReleasesSamePolarity(t *testing.T) {
	d, _ := newTestDiagram(t)
	d.InitShapes([]*schema.Item{item(1, 0, 0, "read"), item(2, 400, 0), item(3, 400, 200)})
	out := d.GetOutputPortByGeneralItemID("1", "read")
	in2 := d.GetInputPortByGeneralItemID("2")
	in3 := d.GetInputPortByGeneralItemID("3")

	c := d.NewConnector()
	c.Init(out)
	c.OnDragEnd(in2)
	c.OnDragEnd(in3)

	assert.Empty(t, in2.Connectors)
	assert.Len(t, in3.Connectors, 1)
	assert.Same(t, in3, c.InputPort)
}

func TestProximityConnector(t *testing.T) {
	d, _ := newTestDiagram(t)
	lat, lng := 1.5, 2.5
	producer := item(1, 0, 0)
	producer.Lat, producer.Lng = &lat, &lng
	d.InitShapes([]*schema.Item{producer, item(2, 400, 0)})

	c := d.NewConnector()
	c.Init(d.GetOutputPortByGeneralItemID("1", schema.ActionInRange))
	c.OnDragEnd(d.GetInputPortByGeneralItemID("2"))

	assert.True(t, d.IsProximityConnector(c))
	term, err := c.Terminal()
	require.NoError(t, err)
	assert.True(t, schema.Equal(schema.NewProximity(1, 1.5, 2.5, DefaultProximityRadius), term))
}

// --- middle points ---

func buildAndTree(t *testing.T, d *Diagram) (*MiddlePoint, *MiddlePoint, *schema.Dependency) {
	t.Helper()
	d.InitShapes([]*schema.Item{item(1, 600, 0), item(2, 0, 0, "read"), item(3, 0, 200, "done")})

	read := schema.NewAction(2, "read")
	done := schema.NewAction(3, "done")
	timed := schema.NewTime(done, 5000)
	root := schema.NewAnd(read, timed)

	rootMP, err := d.NewMiddlePoint("1", root, nil)
	require.NoError(t, err)
	d.ConnectOutput(rootMP, d.GetOutputPortByGeneralItemID("2", "read"), read)
	child, err := d.NewMiddlePoint("1", timed, rootMP)
	require.NoError(t, err)
	d.ConnectOutput(child, d.GetOutputPortByGeneralItemID("3", "done"), done)
	child.Init()
	rootMP.Init()
	return rootMP, child, root
}

func TestMiddlePointStructure(t *testing.T) {
	d, _ := newTestDiagram(t)
	rootMP, child, root := buildAndTree(t, d)

	assert.True(t, rootMP.IsRoot())
	assert.False(t, child.IsRoot())
	assert.Same(t, rootMP, child.ParentMiddlePoint())
	assert.Equal(t, []*MiddlePoint{child}, rootMP.Children())
	assert.Equal(t, []*MiddlePoint{rootMP}, d.GetMainMiddlePoints())
	assert.Same(t, rootMP, d.GetMainMiddlePoint("1"))

	in := d.GetInputPortByGeneralItemID("1")
	assert.Equal(t, in.Global.Sub(geometry.Pt(MiddlePointGap, 0)), rootMP.Position)
	assert.Same(t, rootMP.InputConnector, in.Connectors[0])
	assert.Nil(t, d.GetSingleConnector("1"))

	assert.Same(t, rootMP, d.GetMiddlePointByConnector(rootMP.InputConnector))
	assert.Same(t, rootMP, d.GetMiddlePointByConnector(rootMP.OutputConnectors[0]))
	assert.Same(t, child, d.GetMiddlePointByConnector(child.InputConnector))

	// Outputs of an ancestor are owned by the descendants too; the query
	// still answers with the nearest owner.
	rootOut := rootMP.OutputConnectors[0]
	assert.True(t, child.Owns(rootOut))
	assert.True(t, rootMP.Owns(rootOut))
	assert.False(t, rootMP.Owns(child.OutputConnectors[0]))
	assert.Same(t, child, d.GetMiddlePointByConnector(child.OutputConnectors[0]))

	assert.Equal(t, 1, rootMP.GetDependencyIdx(root.Dependencies[1]))
	assert.Equal(t, 0, rootMP.GetDependencyIdx(schema.NewAction(2, "read")))
	assert.Equal(t, -1, rootMP.GetDependencyIdx(schema.NewAction(9, "x")))

	// Child input connector runs from the child to its parent.
	assert.Equal(t, child.Position, child.InputConnector.Path.P1)
	assert.Equal(t, rootMP.Position, child.InputConnector.Path.P4)

	assert.True(t, rootMP.InputConnector.ShowsActionAffordance())
	assert.False(t, child.InputConnector.ShowsActionAffordance())
	assert.False(t, child.OutputConnectors[0].ShowsActionAffordance())
}

func TestMiddlePointMoveCascades(t *testing.T) {
	d, _ := newTestDiagram(t)
	rootMP, child, _ := buildAndTree(t, d)
	tb := &fakeToolbar{}
	rootMP.Toolbar = tb

	rootMP.Move(geometry.Pt(300, 300))
	assert.Equal(t, []geometry.Point{geometry.Pt(300, 300)}, tb.moves)
	assert.Equal(t, geometry.Pt(300, 300), rootMP.InputConnector.Path.P1)
	assert.Equal(t, geometry.Pt(300, 300), rootMP.OutputConnectors[0].Path.P4)
	assert.Equal(t, geometry.Pt(300, 300), child.InputConnector.Path.P4)

	// No toolbar: nothing to cascade to.
	child.Move(geometry.Pt(10, 10))
	assert.Equal(t, geometry.Pt(10, 10), child.Position)
}

func TestRemoveNonRootMiddlePoint(t *testing.T) {
	d, rec := newTestDiagram(t)
	rootMP, child, root := buildAndTree(t, d)
	connectors := len(d.Connectors)
	childIn := child.InputConnector
	childOut := child.OutputConnectors[0]

	child.Remove(MiddlePointRemoveOptions{})

	assert.Equal(t, []*MiddlePoint{rootMP}, d.MiddlePoints)
	assert.Len(t, root.Dependencies, 1)
	assert.Equal(t, schema.KindAction, root.Dependencies[0].Kind())
	assert.Empty(t, rootMP.ChildIDs)
	assert.Len(t, d.Connectors, connectors-2)
	assert.NotContains(t, d.Connectors, childIn)
	assert.NotContains(t, d.Connectors, childOut)
	assert.Empty(t, d.GetOutputPortByGeneralItemID("3", "done").Connectors)
	assert.Equal(t, 1, rec.count(schema.EventMiddlePointRemoved))

	child.Remove(MiddlePointRemoveOptions{})
	assert.Equal(t, 1, rec.count(schema.EventMiddlePointRemoved))
}

func TestRemoveChildOfTimeClearsOffset(t *testing.T) {
	d, _ := newTestDiagram(t)
	d.InitShapes([]*schema.Item{item(1, 600, 0), item(2, 0, 0, "read")})
	inner := schema.NewOr(schema.NewAction(2, "read"))
	root := schema.NewTime(inner, 1000)

	rootMP, err := d.NewMiddlePoint("1", root, nil)
	require.NoError(t, err)
	child, err := d.NewMiddlePoint("1", inner, rootMP)
	require.NoError(t, err)
	d.ConnectOutput(child, d.GetOutputPortByGeneralItemID("2", "read"), inner.Dependencies[0])

	child.Remove(MiddlePointRemoveOptions{})

	require.NotNil(t, root.Offset)
	assert.Equal(t, schema.KindEmpty, root.Offset.Kind())
	assert.Len(t, d.MiddlePoints, 1)
}

func TestRemoveRootCascades(t *testing.T) {
	d, _ := newTestDiagram(t)
	rootMP, _, root := buildAndTree(t, d)
	tb := &fakeToolbar{}
	rootMP.Toolbar = tb

	rootMP.Remove(MiddlePointRemoveOptions{})

	assert.Empty(t, d.MiddlePoints)
	assert.Empty(t, d.Connectors)
	assert.Equal(t, 1, tb.gone)
	// A cascade leaves the dependency values alone.
	assert.Len(t, root.Dependencies, 2)
}

func TestRemoveOutputConnectorSplicesTerminal(t *testing.T) {
	d, _ := newTestDiagram(t)
	rootMP, _, root := buildAndTree(t, d)

	rootMP.OutputConnectors[0].Remove(RemoveOptions{RemoveDependency: true})

	assert.Len(t, root.Dependencies, 1)
	assert.Equal(t, schema.KindTime, root.Dependencies[0].Kind())
	assert.Empty(t, rootMP.OutputConnectors)
}

func TestRemoveMiddlePointInputConnectorRemovesSubtree(t *testing.T) {
	d, _ := newTestDiagram(t)
	rootMP, child, root := buildAndTree(t, d)

	child.InputConnector.Remove(RemoveOptions{RemoveDependency: true})

	assert.Equal(t, []*MiddlePoint{rootMP}, d.MiddlePoints)
	assert.Len(t, root.Dependencies, 1)
}

func TestNewMiddlePointWithoutShape(t *testing.T) {
	d, _ := newTestDiagram(t)
	_, err := d.NewMiddlePoint("42", schema.NewAnd(), nil)
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeUnresolvedReference))
	assert.Empty(t, d.Connectors)
}

// --- shapes: drag, click, removal ---

func TestShapeDrag(t *testing.T) {
	d, rec := newTestDiagram(t)
	d.InitShapes([]*schema.Item{item(1, 0, 0, "read"), item(2, 400, 0)})
	out := d.GetOutputPortByGeneralItemID("1", "read")
	in := d.GetInputPortByGeneralItemID("2")
	c := d.Connect(out, in, schema.NewAction(1, "read"))
	s2 := d.GetShapeByGeneralItemID("2")

	d.OnPress(PointerEvent{Target: &Tag{Up: s2}})
	assert.True(t, d.NoEvents())
	d.OnDrag(PointerEvent{DX: 50, DY: 20})
	assert.Equal(t, geometry.Pt(450, 60), in.Global)
	assert.Equal(t, in.Global, c.Path.P4)
	d.OnDragEnd(PointerEvent{})
	assert.False(t, d.NoEvents())

	last := rec.events[len(rec.events)-1]
	assert.Equal(t, schema.EventCoordinatesChanged, last.Type)
	assert.Equal(t, "2", last.ItemID)
	assert.Equal(t, 450.0, last.X)
	assert.Equal(t, 20.0, last.Y)
	assert.Equal(t, "game-1", last.GameID)
}

func TestPanDiagram(t *testing.T) {
	d, _ := newTestDiagram(t)
	motion := d.motion.(*RectMotion)

	d.OnPress(PointerEvent{Target: &Tag{}})
	d.OnDrag(PointerEvent{DX: 5, DY: -3})
	d.OnDrag(PointerEvent{DX: 5, DY: -3})
	d.OnDragEnd(PointerEvent{})

	assert.Equal(t, geometry.Pt(10, -6), d.Pan)
	assert.Equal(t, geometry.Pt(10, -6), motion.Positions[DragTypeDiagram])
}

func TestSelection(t *testing.T) {
	d, rec := newTestDiagram(t)
	d.InitShapes([]*schema.Item{item(1, 0, 0), item(2, 400, 0)})
	s1 := d.GetShapeByGeneralItemID("1")
	s2 := d.GetShapeByGeneralItemID("2")

	d.OnClick(PointerEvent{Target: s1})
	assert.Equal(t, []string{"1"}, d.Selected())
	d.OnClick(PointerEvent{Target: s2, Shift: true})
	assert.Equal(t, []string{"1", "2"}, d.Selected())
	d.OnClick(PointerEvent{Target: s1, Shift: true})
	assert.Equal(t, []string{"2"}, d.Selected())
	d.OnClick(PointerEvent{Target: s2})
	assert.Empty(t, d.Selected())
	d.OnClick(PointerEvent{Target: s1})
	assert.True(t, d.IsSelected("1"))
	d.ClearSelection()
	assert.False(t, d.IsSelected("1"))

	assert.Equal(t, 5, rec.count(schema.EventNodeClicked))
}

func TestClickOutsideHidesToolbarsAndDiscardsOpened(t *testing.T) {
	d, rec := newTestDiagram(t)
	rootMP, _, _ := buildAndTree(t, d)
	tb := &fakeToolbar{}
	rootMP.Toolbar = tb

	d.OnClick(PointerEvent{Target: rootMP})
	assert.Equal(t, 1, tb.shown)
	assert.Equal(t, 0, tb.hidden)

	out := d.GetOutputPortByGeneralItemID("2", "read")
	d.OnPress(PointerEvent{Target: out})
	opened := d.OpenedConnector()
	require.NotNil(t, opened)

	d.OnClick(PointerEvent{Target: &Tag{Value: "", Clickable: false}})
	assert.Equal(t, 1, tb.hidden)
	assert.Equal(t, 1, rec.count(schema.EventToolbarsHidden))
	assert.Equal(t, StateRemoved, opened.State)
	assert.Nil(t, d.OpenedConnector())
}

func TestClickConnectorToggles(t *testing.T) {
	d, _ := newTestDiagram(t)
	d.InitShapes([]*schema.Item{item(1, 0, 0, "read"), item(2, 400, 0)})
	c := d.Connect(d.GetOutputPortByGeneralItemID("1", "read"), d.GetInputPortByGeneralItemID("2"), schema.NewAction(1, "read"))

	d.OnClick(PointerEvent{Target: c})
	assert.True(t, c.IsSelected)
	d.OnClick(PointerEvent{Target: c})
	assert.False(t, c.IsSelected)
}

func TestRemoveShapeCascades(t *testing.T) {
	d, rec := newTestDiagram(t)
	rootMP, _, root := buildAndTree(t, d)

	d.RemoveShape(d.GetShapeByGeneralItemID("2"))

	assert.Nil(t, d.GetShapeByGeneralItemID("2"))
	assert.Nil(t, d.GetOutputPortByGeneralItemID("2", "read"))
	assert.Empty(t, rootMP.OutputConnectors)
	assert.Len(t, root.Dependencies, 1)
	assert.Equal(t, 1, rec.count(schema.EventShapeRemoved))

	d.RemoveShape(d.GetShapeByGeneralItemID("1"))
	assert.Empty(t, d.MiddlePoints)
}

func TestVirtualShape(t *testing.T) {
	d, _ := newTestDiagram(t)
	d.InitShapes([]*schema.Item{item(1, 400, 0)})
	v := d.AddVirtualShape("9", geometry.Pt(0, 0))
	out, _ := v.EnsureOutput("read", schema.DependencyTypeAction)
	c := d.Connect(out, d.GetInputPortByGeneralItemID("1"), schema.NewAction(9, "read"))
	assert.False(t, d.CanCreateInputConnector(&schema.Item{ID: 9}))
	assert.True(t, d.CanInitConnector(schema.NewAction(9, "read")))

	c.Remove(RemoveOptions{RemoveVirtualNode: true})
	assert.Nil(t, d.GetShapeByGeneralItemID("9"))
}

func TestVirtualShapeMaterializes(t *testing.T) {
	d, _ := newTestDiagram(t)
	v := d.AddVirtualShape("9", geometry.Pt(0, 0))
	v.EnsureOutput("read", schema.DependencyTypeAction)

	d.InitShapes([]*schema.Item{item(9, 40, 40, "read", "open")})

	assert.Len(t, d.Shapes, 1)
	assert.False(t, v.Virtual)
	assert.NotNil(t, v.InputPort())
	assert.Len(t, v.Outputs, 2)
	assert.Equal(t, geometry.Pt(40, 40), v.Position)
}

func TestGatingQueries(t *testing.T) {
	d, _ := newTestDiagram(t)
	d.InitShapes([]*schema.Item{item(1, 0, 0)})

	assert.True(t, d.CanCreateInputConnector(item(1, 0, 0)))
	assert.False(t, d.CanCreateInputConnector(item(2, 0, 0)))
	assert.True(t, d.CanInitConnector(schema.NewAction(1, "anything")))
	assert.False(t, d.CanInitConnector(schema.NewAction(2, "read")))
	assert.False(t, d.CanInitConnector(schema.NewAnd()))
}

func TestResolveDragArgs(t *testing.T) {
	root := &Tag{}
	group := &Tag{Value: "abc:shape", Up: root}
	leaf := &Tag{Up: group}

	id, typ := resolveDragArgs(leaf)
	assert.Equal(t, "abc", id)
	assert.Equal(t, DragTypeShape, typ)

	id, typ = resolveDragArgs(root)
	assert.Equal(t, DragTypeDiagram, id)
	assert.Equal(t, DragTypeDiagram, typ)

	id, typ = resolveDragArgs(nil)
	assert.Equal(t, DragTypeDiagram, id)
	assert.Equal(t, DragTypeDiagram, typ)

	assert.False(t, isInteractive(leaf))
	assert.True(t, isInteractive(&Tag{Up: &Tag{Clickable: true}}))
}
