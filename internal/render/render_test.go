package render

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/wireflow/internal/diagram"
	"github.com/rendis/wireflow/internal/logging"
	"github.com/rendis/wireflow/internal/wireflow"
	"github.com/rendis/wireflow/pkg/schema"
)

// gameDiagram loads a small game:
//
//	1 intro
//	2 quiz   <- 1:read
//	3 outro  <- AND(1:read, TIME(2:answer_given, 3000))
//	4 bonus  <- 99:read (99 is not in the batch)
func gameDiagram(t *testing.T) *diagram.Diagram {
	t.Helper()
	seq := 0
	d := diagram.New(diagram.Config{
		GameID: "game",
		Logger: logging.Discard(),
		NewID: func() string {
			seq++
			return fmt.Sprintf("n%d", seq)
		},
	})
	m := wireflow.New(d, wireflow.Options{GameID: "game"})
	t.Cleanup(m.Close)

	m.Load(context.Background(), []*schema.Item{
		{ID: 1, Name: "intro", AuthoringX: 0, AuthoringY: 0},
		{ID: 2, Name: "quiz", AuthoringX: 300, AuthoringY: 0, DependsOn: schema.NewAction(1, "read")},
		{ID: 3, Name: "outro", AuthoringX: 600, AuthoringY: 200, DependsOn: schema.NewAnd(
			schema.NewAction(1, "read"),
			schema.NewTime(schema.NewAction(2, "answer_given"), 3000),
		)},
		{ID: 4, Name: "bonus", AuthoringX: 600, AuthoringY: 400, DependsOn: schema.NewAction(99, "read")},
	})
	return d
}

func nodeByLabel(m *Model, label string) *Node {
	for _, n := range m.Nodes {
		if n.Label == label {
			return n
		}
	}
	return nil
}

func TestBuild(t *testing.T) {
	m := Build(gameDiagram(t), "game")

	assert.Equal(t, "game", m.Title)
	require.Len(t, m.Nodes, 7)
	assert.Equal(t, NodeKindVirtual, nodeByLabel(m, "item 99 (missing)").Kind)
	assert.Equal(t, NodeKindAnd, nodeByLabel(m, "AND").Kind)
	assert.Equal(t, NodeKindTime, nodeByLabel(m, "TIME +3000ms").Kind)
	assert.Equal(t, NodeKindItem, nodeByLabel(m, "quiz").Kind)

	require.Len(t, m.Edges, 6)
	intro, quiz := nodeByLabel(m, "intro"), nodeByLabel(m, "quiz")
	and, tm := nodeByLabel(m, "AND"), nodeByLabel(m, "TIME +3000ms")
	outro := nodeByLabel(m, "outro")

	pairs := make(map[string]string)
	for _, e := range m.Edges {
		pairs[e.From+">"+e.To] = e.Label
	}
	assert.Equal(t, "read", pairs[intro.ID+">"+quiz.ID])
	assert.Equal(t, "read", pairs[intro.ID+">"+and.ID])
	assert.Equal(t, "answer_given", pairs[quiz.ID+">"+tm.ID])
	assert.Contains(t, pairs, tm.ID+">"+and.ID)
	assert.Contains(t, pairs, and.ID+">"+outro.ID)
}

func TestBuildLevels(t *testing.T) {
	m := Build(gameDiagram(t), "")

	require.Len(t, m.Levels, 5)
	assert.ElementsMatch(t,
		[]string{nodeByLabel(m, "intro").ID, nodeByLabel(m, "item 99 (missing)").ID},
		m.Levels[0])
	assert.Equal(t, []string{nodeByLabel(m, "TIME +3000ms").ID}, m.Levels[2])
	assert.Equal(t, []string{nodeByLabel(m, "outro").ID}, m.Levels[4])
}

func TestBuildLevelsWithCycle(t *testing.T) {
	m := &Model{
		Nodes: []*Node{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		Edges: []Edge{{From: "a", To: "b"}, {From: "b", To: "a"}},
	}
	assert.Equal(t, [][]string{{"c"}, {"a", "b"}}, buildLevels(m))
}

func TestBuildSkipsDanglingConnector(t *testing.T) {
	d := gameDiagram(t)
	out := d.GetOutputPortByGeneralItemID("1", "read")
	require.NotNil(t, out)
	d.OnPress(diagram.PointerEvent{Target: out})
	require.NotNil(t, d.OpenedConnector())

	assert.Len(t, Build(d, "").Edges, 6)
}

func TestBuildSelection(t *testing.T) {
	d := gameDiagram(t)
	d.GetShapeByGeneralItemID("2").Click(false)

	m := Build(d, "")
	assert.True(t, nodeByLabel(m, "quiz").Selected)
	assert.False(t, nodeByLabel(m, "intro").Selected)
	assert.Contains(t, RenderMermaid(m), "class n_"+nodeByLabel(m, "quiz").ID+" selected")
}

func TestRenderMermaid(t *testing.T) {
	m := Build(gameDiagram(t), "game")
	out := RenderMermaid(m)

	assert.True(t, strings.HasPrefix(out, "graph LR\n"))
	assert.Contains(t, out, "%% game")
	assert.Contains(t, out, `{"AND"}`)
	assert.Contains(t, out, `(["TIME +3000ms"])`)
	assert.Contains(t, out, `[/"item 99 (missing)"/]`)
	assert.Contains(t, out, "-->|read|")
	assert.Contains(t, out, "-->|answer_given|")
	assert.Contains(t, out, "class n_"+nodeByLabel(m, "item 99 (missing)").ID+" virtual")
}

func TestMermaidHelpers(t *testing.T) {
	assert.Equal(t, "n_a_b_c_d", mermaidSafeID("a-b.c:d"))
	assert.Equal(t, "say #quot;hi#quot; #124; bye", mermaidEscapeLabel(`say "hi" | bye`))
}

func TestRenderASCII(t *testing.T) {
	out := RenderASCII(Build(gameDiagram(t), "game"))

	assert.True(t, strings.HasPrefix(out, "=== game ===\n"))
	assert.Contains(t, out, "│ intro │")
	assert.Contains(t, out, "[MISSING]")
	assert.Contains(t, out, "--- connectors ---")
	assert.Contains(t, out, "intro ─(read)→ quiz")
	assert.Contains(t, out, "[TIME +3000ms] ─→ [AND]")
	assert.Contains(t, out, "[AND] ─→ outro")
}

func TestRenderASCIIEmpty(t *testing.T) {
	assert.Equal(t, "", RenderASCII(&Model{}))
}

func TestRenderSVG(t *testing.T) {
	m := Build(gameDiagram(t), "a & b")
	out := RenderSVG(m)

	assert.True(t, strings.HasPrefix(out, `<svg xmlns="http://www.w3.org/2000/svg"`))
	assert.Contains(t, out, "<title>a &amp; b</title>")
	assert.Equal(t, 6, strings.Count(out, "<path "))
	assert.Equal(t, 2, strings.Count(out, "<circle "))
	assert.Equal(t, 5, strings.Count(out, "<rect "))
	assert.Contains(t, out, `stroke-dasharray="5 5"`)
	assert.Contains(t, out, `>answer_given</text>`)

	for _, e := range m.Edges {
		assert.Contains(t, out, `d="`+e.Path.String()+`"`)
	}
}

func TestRenderSVGEmpty(t *testing.T) {
	out := RenderSVG(&Model{})
	assert.Contains(t, out, `viewBox="0 0 40 40"`)
}

func TestRenderImage(t *testing.T) {
	png, err := RenderImage(context.Background(), Build(gameDiagram(t), "game"))
	require.NoError(t, err)
	require.Greater(t, len(png), 8)

	assert.Equal(t, byte(0x89), png[0])
	assert.Equal(t, byte('P'), png[1])
	assert.Equal(t, byte('N'), png[2])
	assert.Equal(t, byte('G'), png[3])
}
