package wireflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/wireflow/internal/diagram"
	"github.com/rendis/wireflow/internal/logging"
	"github.com/rendis/wireflow/internal/streaming"
	"github.com/rendis/wireflow/pkg/schema"
)

// --- helpers ---

type fixture struct {
	d      *diagram.Diagram
	m      *Manager
	events []streaming.Event
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{}
	seq := 0
	f.d = diagram.New(diagram.Config{
		GameID: "g",
		Logger: logging.Discard(),
		NewID: func() string {
			seq++
			return fmt.Sprintf("n%d", seq)
		},
	})
	f.d.Bus().Subscribe(func(e streaming.Event) { f.events = append(f.events, e) })
	f.m = New(f.d, opts)
	t.Cleanup(f.m.Close)
	return f
}

func (f *fixture) count(eventType string) int {
	n := 0
	for _, e := range f.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func item(id int64, x float64, dep *schema.Dependency, actions ...string) *schema.Item {
	return &schema.Item{ID: id, Name: fmt.Sprintf("item %d", id), AuthoringX: x, DependsOn: dep, Actions: actions}
}

func located(id int64, x, lat, lng float64) *schema.Item {
	it := item(id, x, nil)
	it.Lat, it.Lng = &lat, &lng
	return it
}

func drawEdge(t *testing.T, d *diagram.Diagram, out, in *diagram.Port) *diagram.Connector {
	t.Helper()
	require.NotNil(t, out)
	require.NotNil(t, in)
	d.OnPress(diagram.PointerEvent{Target: out})
	c := d.OpenedConnector()
	require.NotNil(t, c)
	delta := in.Global.Sub(out.Global)
	d.OnDrag(diagram.PointerEvent{Target: out, DX: delta.X, DY: delta.Y})
	d.OnDragEnd(diagram.PointerEvent{Target: out})
	require.Equal(t, diagram.StateAttached, c.State, "connector should land on the input port")
	d.OnClick(diagram.PointerEvent{})
	return c
}

// --- build and read-back ---

func TestAndWithSingleChildScenario(t *testing.T) {
	f := newFixture(t, Options{})
	one := item(1, 600, schema.NewAnd(schema.NewAction(2, "read")))
	f.m.Load(context.Background(), []*schema.Item{one, item(2, 0, nil)})

	roots := f.d.GetMainMiddlePoints()
	require.Len(t, roots, 1)
	require.Len(t, roots[0].Dependency.Dependencies, 1)
	require.Len(t, roots[0].OutputConnectors, 1)

	require.NoError(t, f.m.RemoveConnector(roots[0].OutputConnectors[0]))

	roots = f.d.GetMainMiddlePoints()
	require.Len(t, roots, 1)
	assert.Empty(t, roots[0].Dependency.Dependencies)

	got := f.m.GetOutputDependency(one)
	assert.Equal(t, schema.KindAnd, got.Kind())
	raw, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"org.celstec.arlearn2.beans.dependencies.AndDependency","dependencies":[]}`, string(raw))
}

func TestRoundTripNestedExpression(t *testing.T) {
	expr := schema.NewAnd(
		schema.NewAction(2, "read"),
		schema.NewOr(
			schema.NewAction(3, "done"),
			schema.NewTime(schema.NewProximity(4, 51.5, 4.25, 30), 5000),
		),
		schema.NewTime(schema.NewAnd(schema.NewAction(2, "answer")), 0),
	)
	want := expr.Clone()

	f := newFixture(t, Options{})
	one := item(1, 800, expr)
	f.m.Load(context.Background(), []*schema.Item{
		one, item(2, 0, nil, "read"), item(3, 0, nil), located(4, 0, 51.5, 4.25),
	})

	assert.Len(t, f.d.MiddlePoints, 5)
	assert.Empty(t, f.m.Pending())
	got := f.m.GetOutputDependency(one)
	assert.True(t, schema.Equal(want, got), "got %s", got)

	// Lazy outputs were created for the referenced actions.
	assert.NotNil(t, f.d.GetOutputPortByGeneralItemID("2", "answer"))
	assert.NotNil(t, f.d.GetOutputPortByGeneralItemID("3", "done"))
	assert.True(t, f.d.GetOutputPortByGeneralItemID("4", schema.ActionInRange).IsProximity())
}

func TestRoundTripThroughJSON(t *testing.T) {
	src := `{"id":1,"authoringX":500,"authoringY":0,"dependsOn":{
		"type":"org.celstec.arlearn2.beans.dependencies.OrDependency",
		"dependencies":[
			{"type":"org.celstec.arlearn2.beans.dependencies.ActionDependency","generalItemId":"2","action":"read"},
			{"type":"org.celstec.arlearn2.beans.dependencies.TimeDependency","offset":
				{"type":"org.celstec.arlearn2.beans.dependencies.ActionDependency","generalItemId":3,"action":"done"},
			 "timeDelta":60000}
		]}}`
	var one schema.Item
	require.NoError(t, json.Unmarshal([]byte(src), &one))

	f := newFixture(t, Options{})
	f.m.Load(context.Background(), []*schema.Item{&one, item(2, 0, nil), item(3, 0, nil)})

	f.m.PopulateOutputMessages(f.m.Items(), []int64{1}, true)
	raw, err := json.Marshal(one.DependsOn)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type":"org.celstec.arlearn2.beans.dependencies.OrDependency",
		"dependencies":[
			{"type":"org.celstec.arlearn2.beans.dependencies.ActionDependency","generalItemId":2,"action":"read"},
			{"type":"org.celstec.arlearn2.beans.dependencies.TimeDependency","offset":
				{"type":"org.celstec.arlearn2.beans.dependencies.ActionDependency","generalItemId":3,"action":"done"},
			 "timeDelta":60000}
		]}`, string(raw))
}

func TestSingleTerminalBuild(t *testing.T) {
	f := newFixture(t, Options{})
	one := item(1, 400, schema.NewAction(2, "read"))
	three := item(3, 400, schema.NewProximity(4, 1, 2, 15))
	f.m.Load(context.Background(), []*schema.Item{one, item(2, 0, nil, "read"), three, located(4, 0, 1, 2)})

	assert.Empty(t, f.d.MiddlePoints)
	c := f.d.GetSingleConnector("1")
	require.NotNil(t, c)
	assert.Len(t, f.d.GetInputPortByGeneralItemID("1").Connectors, 1)
	assert.Len(t, f.d.GetOutputPortByGeneralItemID("2", "read").Connectors, 1)
	assert.True(t, schema.Equal(schema.NewAction(2, "read"), f.m.GetOutputDependency(one)))

	p := f.d.GetSingleConnector("3")
	require.NotNil(t, p)
	assert.True(t, f.d.IsProximityConnector(p))
	assert.True(t, schema.Equal(schema.NewProximity(4, 1, 2, 15), f.m.GetOutputDependency(three)))

	ref, ok := f.m.Referenced("1")
	assert.True(t, ok)
	assert.Equal(t, "2", ref)
}

func TestStubIsKeptAsReference(t *testing.T) {
	f := newFixture(t, Options{})
	one := item(1, 0, &schema.Dependency{GeneralItemID: 7})
	f.m.Load(context.Background(), []*schema.Item{one})

	got := f.m.GetOutputDependency(one)
	require.NotNil(t, got)
	assert.Equal(t, schema.KindStub, got.Kind())
	assert.Equal(t, int64(7), got.GeneralItemID)
}

func TestNoConditionReadsBackNil(t *testing.T) {
	f := newFixture(t, Options{})
	one := item(1, 0, nil)
	f.m.Load(context.Background(), []*schema.Item{one})
	assert.Nil(t, f.m.GetOutputDependency(one))
}

func TestLoadDrawsVirtualShapesForMissingItems(t *testing.T) {
	f := newFixture(t, Options{})
	one := item(1, 600, schema.NewOr(schema.NewAction(9, "read"), schema.NewAction(2, "x")))
	f.m.Load(context.Background(), []*schema.Item{one, item(2, 0, nil)})

	v := f.d.GetShapeByGeneralItemID("9")
	require.NotNil(t, v)
	assert.True(t, v.Virtual)
	assert.Empty(t, f.m.Pending())
	assert.Len(t, f.d.GetMainMiddlePoints(), 1)
}

func TestDeferredBuildWaitsForProducer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{Deferred: true})

	one := item(1, 600, schema.NewAnd(schema.NewAction(2, "read")))
	f.m.AddItem(ctx, one)
	assert.Equal(t, []string{"1"}, f.m.Pending())
	assert.False(t, f.m.CanInitNodeMessage(one))
	assert.Nil(t, f.d.GetShapeByGeneralItemID("2"))

	f.m.AddItem(ctx, item(2, 0, nil, "read"))
	assert.Empty(t, f.m.Pending())
	assert.True(t, f.m.CanInitNodeMessage(one))
	require.Len(t, f.d.GetMainMiddlePoints(), 1)
	assert.Len(t, f.d.GetOutputPortByGeneralItemID("2", "read").Connectors, 1)
}

func TestImmediateBuildUsesVirtualThenMaterializes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	f.m.AddItem(ctx, item(1, 600, schema.NewAction(2, "read")))
	v := f.d.GetShapeByGeneralItemID("2")
	require.NotNil(t, v)
	assert.True(t, v.Virtual)
	assert.Empty(t, f.m.Pending())

	f.m.AddItem(ctx, item(2, 100, nil, "read"))
	assert.False(t, v.Virtual)
	assert.Len(t, f.d.Shapes, 2)
	assert.Len(t, v.OutputPort("read").Connectors, 1)
}

func TestFinalizeBatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{Deferred: true})
	f.m.AddItem(ctx, item(1, 600, schema.NewTime(schema.NewAction(5, "seen"), 10)))
	require.Equal(t, []string{"1"}, f.m.Pending())

	f.m.FinalizeBatch(ctx)
	assert.Empty(t, f.m.Pending())
	assert.True(t, f.d.GetShapeByGeneralItemID("5").Virtual)
}

// --- attach handling ---

func TestDrawnEdgesBuildConditions(t *testing.T) {
	f := newFixture(t, Options{})
	one := item(1, 600, nil)
	f.m.Load(context.Background(), []*schema.Item{one, item(2, 0, nil, "read"), item(3, 0, nil, "done")})
	in := f.d.GetInputPortByGeneralItemID("1")

	drawEdge(t, f.d, f.d.GetOutputPortByGeneralItemID("2", "read"), in)
	assert.True(t, schema.Equal(schema.NewAction(2, "read"), f.m.GetOutputDependency(one)))

	drawEdge(t, f.d, f.d.GetOutputPortByGeneralItemID("3", "done"), in)
	want := schema.NewAnd(schema.NewAction(2, "read"), schema.NewAction(3, "done"))
	assert.True(t, schema.Equal(want, f.m.GetOutputDependency(one)))
	require.Len(t, f.d.GetMainMiddlePoints(), 1)
	assert.Len(t, f.d.GetMainMiddlePoints()[0].OutputConnectors, 2)
	assert.Nil(t, f.d.GetSingleConnector("1"))
	assert.Len(t, in.Connectors, 1)
}

func TestDrawnEdgeJoinsOrRoot(t *testing.T) {
	f := newFixture(t, Options{})
	one := item(1, 600, schema.NewOr(schema.NewAction(2, "read")))
	f.m.Load(context.Background(), []*schema.Item{one, item(2, 0, nil, "read"), item(3, 0, nil, "done")})

	drawEdge(t, f.d, f.d.GetOutputPortByGeneralItemID("3", "done"), f.d.GetInputPortByGeneralItemID("1"))

	want := schema.NewOr(schema.NewAction(2, "read"), schema.NewAction(3, "done"))
	assert.True(t, schema.Equal(want, f.m.GetOutputDependency(one)))
	assert.Len(t, f.d.MiddlePoints, 1)
}

func TestDrawnEdgeWrapsTimeRoot(t *testing.T) {
	f := newFixture(t, Options{})
	timed := schema.NewTime(schema.NewAction(2, "read"), 100)
	one := item(1, 600, timed)
	f.m.Load(context.Background(), []*schema.Item{one, item(2, 0, nil, "read"), item(3, 0, nil, "done")})

	drawEdge(t, f.d, f.d.GetOutputPortByGeneralItemID("3", "done"), f.d.GetInputPortByGeneralItemID("1"))

	want := schema.NewAnd(schema.NewTime(schema.NewAction(2, "read"), 100), schema.NewAction(3, "done"))
	assert.True(t, schema.Equal(want, f.m.GetOutputDependency(one)))
	roots := f.d.GetMainMiddlePoints()
	require.Len(t, roots, 1)
	require.Len(t, roots[0].Children(), 1)
	assert.Same(t, timed, roots[0].Children()[0].Dependency)
}

func TestDrawnEdgeJoinsAndRootThroughGesture(t *testing.T) {
	f := newFixture(t, Options{})
	one := item(1, 600, schema.NewAnd(schema.NewAction(2, "read")))
	f.m.Load(context.Background(), []*schema.Item{one, item(2, 0, nil, "read"), item(3, 0, nil, "done")})
	f.events = nil

	c := drawEdge(t, f.d, f.d.GetOutputPortByGeneralItemID("3", "done"), f.d.GetInputPortByGeneralItemID("1"))

	want := schema.NewAnd(schema.NewAction(2, "read"), schema.NewAction(3, "done"))
	assert.True(t, schema.Equal(want, f.m.GetOutputDependency(one)))
	assert.Nil(t, c.InputPort, "the edge now ends on the root middle point")
	root := f.d.GetMiddlePointByConnector(c)
	require.NotNil(t, root)
	assert.True(t, root.IsRoot())

	var changed []string
	for _, e := range f.events {
		if e.Type == schema.EventDependenciesChanged {
			changed = append(changed, e.ItemID)
		}
	}
	assert.Equal(t, []string{"1"}, changed)
}

func TestDroppingOutsideAnyPortDiscardsConnector(t *testing.T) {
	f := newFixture(t, Options{})
	f.m.Load(context.Background(), []*schema.Item{item(1, 600, nil), item(2, 0, nil, "read")})
	out := f.d.GetOutputPortByGeneralItemID("2", "read")

	f.d.OnPress(diagram.PointerEvent{Target: out})
	c := f.d.OpenedConnector()
	require.NotNil(t, c)
	f.d.OnDrag(diagram.PointerEvent{Target: out, DX: 0, DY: 5000})
	f.d.OnDragEnd(diagram.PointerEvent{Target: out})

	assert.Equal(t, diagram.StateRemoved, c.State)
	assert.Nil(t, f.d.GetConnectorByID(c.ID))
	assert.Nil(t, f.m.GetOutputDependency(f.m.Item(1)))
}

func TestDependenciesChangedFollowsAttach(t *testing.T) {
	f := newFixture(t, Options{})
	f.m.Load(context.Background(), []*schema.Item{item(1, 600, nil), item(2, 0, nil, "read")})
	f.events = nil

	drawEdge(t, f.d, f.d.GetOutputPortByGeneralItemID("2", "read"), f.d.GetInputPortByGeneralItemID("1"))

	var order []string
	for _, e := range f.events {
		if e.Type == schema.EventConnectorAttached || e.Type == schema.EventDependenciesChanged {
			order = append(order, e.Type)
		}
	}
	assert.Equal(t, []string{schema.EventConnectorAttached, schema.EventDependenciesChanged}, order)
}

// --- editing ---

func TestChangeSingleDependency(t *testing.T) {
	f := newFixture(t, Options{})
	one := item(1, 600, schema.NewAction(2, "read"))
	f.m.Load(context.Background(), []*schema.Item{one, item(2, 0, nil, "read")})
	c := f.d.GetSingleConnector("1")
	require.NotNil(t, c)

	mp, err := f.m.ChangeSingleDependency(c, schema.DependencyTypeTime, 2500)
	require.NoError(t, err)
	assert.True(t, mp.IsRoot())
	assert.Nil(t, f.d.GetSingleConnector("1"))
	assert.Contains(t, mp.OutputConnectors, c)

	want := schema.NewTime(schema.NewAction(2, "read"), 2500)
	assert.True(t, schema.Equal(want, f.m.GetOutputDependency(one)))

	_, err = f.m.ChangeSingleDependency(c, schema.DependencyTypeAction, 0)
	assert.Error(t, err)
}

func TestChangeSingleDependencyRejectsTerminalType(t *testing.T) {
	f := newFixture(t, Options{})
	f.m.Load(context.Background(), []*schema.Item{item(1, 600, schema.NewAction(2, "read")), item(2, 0, nil)})

	_, err := f.m.ChangeSingleDependency(f.d.GetSingleConnector("1"), schema.DependencyTypeProximity, 0)
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))
}

func TestChangeMiddlePointType(t *testing.T) {
	f := newFixture(t, Options{})
	and := schema.NewAnd(schema.NewAction(2, "read"), schema.NewAction(3, "done"))
	one := item(1, 600, and)
	f.m.Load(context.Background(), []*schema.Item{one, item(2, 0, nil), item(3, 0, nil)})
	root := f.d.GetMainMiddlePoint("1")

	require.NoError(t, f.m.ChangeMiddlePointType(root, schema.DependencyTypeOr))
	assert.Same(t, and, root.Dependency)
	assert.Equal(t, schema.KindOr, f.m.GetOutputDependency(one).Kind())
	assert.Equal(t, schema.DependencyTypeOr, root.InputConnector.DependencyType)

	err := f.m.ChangeMiddlePointType(root, schema.DependencyTypeTime)
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeConflict))

	require.NoError(t, f.m.RemoveConnector(root.OutputConnectors[1]))
	require.NoError(t, f.m.ChangeMiddlePointType(root, schema.DependencyTypeTime))
	want := schema.NewTime(schema.NewAction(2, "read"), 0)
	assert.True(t, schema.Equal(want, f.m.GetOutputDependency(one)))

	require.NoError(t, f.m.ChangeMiddlePointType(root, schema.DependencyTypeAnd))
	assert.True(t, schema.Equal(schema.NewAnd(schema.NewAction(2, "read")), f.m.GetOutputDependency(one)))
}

func TestWrapTerminalOfMiddlePoint(t *testing.T) {
	f := newFixture(t, Options{})
	one := item(1, 600, schema.NewAnd(schema.NewAction(2, "read"), schema.NewAction(3, "done")))
	f.m.Load(context.Background(), []*schema.Item{one, item(2, 0, nil), item(3, 0, nil)})
	root := f.d.GetMainMiddlePoint("1")
	edge := root.OutputConnectors[1]

	child, err := f.m.CreateChildMiddlePointForOutputConnector(edge, schema.DependencyTypeTime)
	require.NoError(t, err)
	require.NoError(t, f.m.SetTimeDelta(child, 3000))

	want := schema.NewAnd(schema.NewAction(2, "read"), schema.NewTime(schema.NewAction(3, "done"), 3000))
	assert.True(t, schema.Equal(want, f.m.GetOutputDependency(one)))
	assert.Len(t, root.OutputConnectors, 1)
	assert.Equal(t, []*diagram.Connector{edge}, child.OutputConnectors)
	assert.Same(t, child, f.d.GetMiddlePointByConnector(edge))

	assert.Error(t, f.m.SetTimeDelta(child, -1))
	assert.Error(t, f.m.SetTimeDelta(root, 10))
}

func TestAddChildCombinatorAndDependency(t *testing.T) {
	f := newFixture(t, Options{})
	one := item(1, 600, schema.NewOr())
	f.m.Load(context.Background(), []*schema.Item{one, item(2, 0, nil), located(3, 0, 5, 6)})
	root := f.d.GetMainMiddlePoint("1")

	child, err := f.m.CreateChildMiddlePointForInputConnector(root, schema.DependencyTypeAnd)
	require.NoError(t, err)
	_, err = f.m.AddDependency(child, 2, "read")
	require.NoError(t, err)
	_, err = f.m.AddDependency(child, 3, schema.ActionInRange)
	require.NoError(t, err)
	_, err = f.m.AddDependency(root, 9, "scan")
	require.NoError(t, err)

	want := schema.NewOr(
		schema.NewAnd(schema.NewAction(2, "read"), schema.NewProximity(3, 5, 6, diagram.DefaultProximityRadius)),
		schema.NewAction(9, "scan"),
	)
	assert.True(t, schema.Equal(want, f.m.GetOutputDependency(one)), "got %s", f.m.GetOutputDependency(one))
	assert.True(t, f.d.GetShapeByGeneralItemID("9").Virtual)
	assert.NotNil(t, f.d.GetOutputPortByGeneralItemID("2", "read"))
}

func TestTimeHoldsOneChild(t *testing.T) {
	f := newFixture(t, Options{})
	f.m.Load(context.Background(), []*schema.Item{item(1, 600, schema.NewTime(nil, 5)), item(2, 0, nil)})
	root := f.d.GetMainMiddlePoint("1")
	require.NotNil(t, root)

	_, err := f.m.AddDependency(root, 2, "read")
	require.NoError(t, err)
	_, err = f.m.AddDependency(root, 2, "again")
	assert.True(t, schema.HasCode(err, schema.ErrCodeConflict))
	_, err = f.m.CreateChildMiddlePointForInputConnector(root, schema.DependencyTypeOr)
	assert.True(t, schema.HasCode(err, schema.ErrCodeConflict))
}

func TestRemoveNonRootMiddlePoint(t *testing.T) {
	f := newFixture(t, Options{})
	one := item(1, 600, schema.NewAnd(
		schema.NewAction(2, "read"),
		schema.NewOr(schema.NewAction(2, "a"), schema.NewAction(2, "b")),
		schema.NewAction(2, "c"),
	))
	f.m.Load(context.Background(), []*schema.Item{one, item(2, 0, nil)})
	root := f.d.GetMainMiddlePoint("1")
	child := root.Children()[0]
	before := len(f.d.MiddlePoints)

	require.NoError(t, f.m.RemoveMiddlePoint(child))

	assert.Len(t, f.d.MiddlePoints, before-1)
	want := schema.NewAnd(schema.NewAction(2, "read"), schema.NewAction(2, "c"))
	assert.True(t, schema.Equal(want, f.m.GetOutputDependency(one)))
	assert.Empty(t, f.d.GetOutputPortByGeneralItemID("2", "a").Connectors)
}

func TestRemoveTimeOffsetMiddlePoint(t *testing.T) {
	f := newFixture(t, Options{})
	one := item(1, 600, schema.NewTime(schema.NewOr(schema.NewAction(2, "a")), 50))
	f.m.Load(context.Background(), []*schema.Item{one, item(2, 0, nil)})
	root := f.d.GetMainMiddlePoint("1")

	require.NoError(t, f.m.RemoveConnector(root.Children()[0].InputConnector))

	got := f.m.GetOutputDependency(one)
	assert.Equal(t, schema.KindTime, got.Kind())
	assert.Equal(t, schema.KindEmpty, got.Offset.Kind())
	raw, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"org.celstec.arlearn2.beans.dependencies.TimeDependency","offset":{},"timeDelta":50}`, string(raw))
}

func TestRemoveRootAndSingle(t *testing.T) {
	f := newFixture(t, Options{})
	one := item(1, 600, schema.NewAnd(schema.NewAction(2, "read")))
	three := item(3, 600, schema.NewAction(2, "read"))
	f.m.Load(context.Background(), []*schema.Item{one, item(2, 0, nil), three})

	require.NoError(t, f.m.RemoveMiddlePoint(f.d.GetMainMiddlePoint("1")))
	require.NoError(t, f.m.RemoveConnector(f.d.GetSingleConnector("3")))

	assert.Nil(t, f.m.GetOutputDependency(one))
	assert.Nil(t, f.m.GetOutputDependency(three))
	assert.Empty(t, f.d.Connectors)
}

func TestRemoveItem(t *testing.T) {
	f := newFixture(t, Options{})
	one := item(1, 600, schema.NewAnd(schema.NewAction(2, "read"), schema.NewAction(3, "done")))
	four := item(4, 600, schema.NewAction(2, "read"))
	f.m.Load(context.Background(), []*schema.Item{one, item(2, 0, nil), item(3, 0, nil), four})

	require.NoError(t, f.m.RemoveItem(2))

	assert.Nil(t, f.m.Item(2))
	assert.Nil(t, f.d.GetShapeByGeneralItemID("2"))
	assert.True(t, schema.Equal(schema.NewAnd(schema.NewAction(3, "done")), f.m.GetOutputDependency(one)))
	assert.Nil(t, f.m.GetOutputDependency(four))

	err := f.m.RemoveItem(2)
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
}

func TestRemoveItemLeavesCallerSliceAlone(t *testing.T) {
	f := newFixture(t, Options{})
	host := []*schema.Item{item(1, 0, nil), item(2, 200, nil), item(3, 400, nil)}
	f.m.Load(context.Background(), host)

	require.NoError(t, f.m.RemoveItem(1))

	ids := func(items []*schema.Item) []int64 {
		out := make([]int64, 0, len(items))
		for _, it := range items {
			out = append(out, it.ID)
		}
		return out
	}
	assert.Equal(t, []int64{1, 2, 3}, ids(host))
	assert.Equal(t, []int64{2, 3}, ids(f.m.Items()))

	f.m.AddItem(context.Background(), item(4, 600, nil))
	assert.Len(t, host, 3)
	assert.Equal(t, []int64{2, 3, 4}, ids(f.m.Items()))
}

// --- read-back robustness, populate, outward events ---

func TestReadBackKeepsPreviousOnInconsistency(t *testing.T) {
	var buf bytes.Buffer
	f := newFixture(t, Options{Logger: logging.New(&buf, "debug", false)})
	prev := schema.NewAction(2, "read")
	one := item(1, 600, nil)
	f.m.Load(context.Background(), []*schema.Item{one, item(2, 0, nil, "read")})
	one.DependsOn = prev

	// A connector being drawn from the input port has no producer yet.
	f.d.OnPress(diagram.PointerEvent{Target: f.d.GetInputPortByGeneralItemID("1")})

	assert.Same(t, prev, f.m.GetOutputDependency(one))
	assert.Contains(t, buf.String(), "read-back inconsistent")
}

func TestPopulateOutputMessages(t *testing.T) {
	f := newFixture(t, Options{})
	one := item(1, 600, nil)
	two := item(2, 0, nil, "read")
	f.m.Load(context.Background(), []*schema.Item{one, two})
	drawEdge(t, f.d, f.d.GetOutputPortByGeneralItemID("2", "read"), f.d.GetInputPortByGeneralItemID("1"))

	preview := f.m.PopulateOutputMessages(f.m.Items(), []int64{1}, false)
	assert.Nil(t, one.DependsOn)
	require.Contains(t, preview, int64(1))
	assert.True(t, schema.Equal(schema.NewAction(2, "read"), preview[1]))
	assert.NotContains(t, preview, int64(2))

	f.m.PopulateOutputMessages(f.m.Items(), []int64{1}, true)
	assert.True(t, schema.Equal(schema.NewAction(2, "read"), one.DependsOn))
}

func TestDisappearOnSelector(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	one := item(1, 600, schema.NewAction(2, "read"))
	one.DisappearOn = schema.NewOr(schema.NewAction(2, "close"))
	f.m.Load(ctx, []*schema.Item{one, item(2, 0, nil)})
	require.NotNil(t, f.d.GetSingleConnector("1"))

	f.m.SetSelector(ctx, schema.SelectorDisappearOn)
	assert.Equal(t, schema.SelectorDisappearOn, f.m.Selector())
	assert.Nil(t, f.d.GetSingleConnector("1"))
	require.NotNil(t, f.d.GetMainMiddlePoint("1"))

	f.m.PopulateOutputMessages(f.m.Items(), []int64{1}, true)
	assert.True(t, schema.Equal(schema.NewAction(2, "read"), one.DependsOn))
	assert.True(t, schema.Equal(schema.NewOr(schema.NewAction(2, "close")), one.DisappearOn))
}

func TestShapeDragUpdatesItem(t *testing.T) {
	f := newFixture(t, Options{})
	one := item(1, 600, nil)
	f.m.Load(context.Background(), []*schema.Item{one})
	shape := f.d.GetShapeByGeneralItemID("1")

	f.d.OnPress(diagram.PointerEvent{Target: shape})
	f.d.OnDrag(diagram.PointerEvent{DX: 10, DY: 15})
	f.d.OnDragEnd(diagram.PointerEvent{})

	assert.Equal(t, 610.0, one.AuthoringX)
	assert.Equal(t, 15.0, one.AuthoringY)
}

func TestNewOutputAction(t *testing.T) {
	f := newFixture(t, Options{})
	two := item(2, 0, nil)
	f.m.Load(context.Background(), []*schema.Item{two})

	f.m.RequestNewOutputAction(2)
	assert.Equal(t, 1, f.count(schema.EventNewOutputAction))

	port, err := f.m.AddOutputAction(2, "scanned")
	require.NoError(t, err)
	assert.Equal(t, "scanned", port.Action)
	assert.Equal(t, []string{"scanned"}, two.Actions)

	_, err = f.m.AddOutputAction(5, "x")
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
}

func TestOutwardEventsReachHub(t *testing.T) {
	hub := streaming.NewMemoryHub()
	ctx := context.Background()
	ch, cancel, err := hub.Subscribe(ctx, streaming.EventFilter{EventTypes: []string{schema.EventDependenciesChanged}})
	require.NoError(t, err)
	defer cancel()

	f := newFixture(t, Options{GameID: "g", Hub: hub})
	f.m.Load(ctx, []*schema.Item{item(1, 600, schema.NewAnd()), item(2, 0, nil)})
	_, err = f.m.AddDependency(f.d.GetMainMiddlePoint("1"), 2, "read")
	require.NoError(t, err)

	select {
	case e := <-ch:
		assert.Equal(t, "1", e.ItemID)
		assert.Equal(t, "g", e.GameID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dependencies_changed")
	}
}
