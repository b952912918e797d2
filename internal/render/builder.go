package render

import (
	"fmt"

	"github.com/rendis/wireflow/internal/diagram"
	"github.com/rendis/wireflow/internal/geometry"
	"github.com/rendis/wireflow/pkg/schema"
)

// middlePointSize is the drawn diameter of a middle point.
const middlePointSize = 16.0

// Build snapshots d into a Model. Dangling connectors (one end free) are
// skipped; they only exist during a drag.
func Build(d *diagram.Diagram, title string) *Model {
	m := &Model{Title: title}
	known := make(map[string]bool, len(d.Shapes)+len(d.MiddlePoints))

	for _, s := range d.Shapes {
		kind := NodeKindItem
		if s.Virtual {
			kind = NodeKindVirtual
		}
		m.Nodes = append(m.Nodes, &Node{
			ID:       s.ID,
			Label:    shapeLabel(s),
			Kind:     kind,
			Bounds:   s.Bounds(),
			Selected: d.IsSelected(s.GeneralItemID),
		})
		known[s.ID] = true
	}

	for _, mp := range d.MiddlePoints {
		m.Nodes = append(m.Nodes, &Node{
			ID:     mp.ID,
			Label:  middlePointLabel(mp.Dependency),
			Kind:   middlePointKind(mp.Dependency),
			Bounds: geometry.Around(mp.Position, middlePointSize),
		})
		known[mp.ID] = true
	}

	for _, c := range d.Connectors {
		if c.State == diagram.StateRemoved {
			continue
		}
		from, to := producerOf(c), consumerOf(c)
		if !known[from] || !known[to] {
			continue
		}
		label := ""
		if c.OutputPort != nil {
			label = c.OutputPort.Action
		}
		m.Edges = append(m.Edges, Edge{
			ID:       c.ID,
			From:     from,
			To:       to,
			Label:    label,
			Path:     c.Path,
			Marker:   c.Marker,
			Selected: c.IsSelected,
		})
	}

	m.Levels = buildLevels(m)
	return m
}

func producerOf(c *diagram.Connector) string {
	if c.OutputPort != nil && c.OutputPort.Shape() != nil {
		return c.OutputPort.Shape().ID
	}
	return c.FromMiddlePoint
}

func consumerOf(c *diagram.Connector) string {
	if c.InputPort != nil && c.InputPort.Shape() != nil {
		return c.InputPort.Shape().ID
	}
	return c.ToMiddlePoint
}

func shapeLabel(s *diagram.NodeShape) string {
	if s.Virtual {
		return fmt.Sprintf("item %s (missing)", s.GeneralItemID)
	}
	if s.Name != "" {
		return s.Name
	}
	return "item " + s.GeneralItemID
}

func middlePointKind(dep *schema.Dependency) NodeKind {
	switch dep.Kind() {
	case schema.KindOr:
		return NodeKindOr
	case schema.KindTime:
		return NodeKindTime
	default:
		return NodeKindAnd
	}
}

func middlePointLabel(dep *schema.Dependency) string {
	switch dep.Kind() {
	case schema.KindOr:
		return "OR"
	case schema.KindTime:
		return fmt.Sprintf("TIME +%dms", dep.TimeDelta)
	default:
		return "AND"
	}
}

// buildLevels layers nodes by longest path from a producer-only node
// (Kahn's algorithm). Nodes caught in a cycle share one trailing level.
func buildLevels(m *Model) [][]string {
	inDegree := make(map[string]int, len(m.Nodes))
	next := make(map[string][]string, len(m.Nodes))
	for _, e := range m.Edges {
		inDegree[e.To]++
		next[e.From] = append(next[e.From], e.To)
	}

	level := make(map[string]int, len(m.Nodes))
	var queue []string
	for _, n := range m.Nodes {
		if inDegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	done := make(map[string]bool, len(m.Nodes))
	depth := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		done[id] = true
		depth = max(depth, level[id]+1)
		for _, to := range next[id] {
			level[to] = max(level[to], level[id]+1)
			inDegree[to]--
			if inDegree[to] == 0 {
				queue = append(queue, to)
			}
		}
	}

	levels := make([][]string, depth)
	var stuck []string
	for _, n := range m.Nodes {
		if !done[n.ID] {
			stuck = append(stuck, n.ID)
			continue
		}
		levels[level[n.ID]] = append(levels[level[n.ID]], n.ID)
	}
	if len(stuck) > 0 {
		levels = append(levels, stuck)
	}
	return levels
}

// node looks up a node by id.
func (m *Model) node(id string) *Node {
	for _, n := range m.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}
