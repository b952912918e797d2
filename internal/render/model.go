// Package render exports the live diagram of an editor as Mermaid, ASCII,
// Graphviz PNG or an SVG drawing of the connector paths.
package render

import "github.com/rendis/wireflow/internal/geometry"

// NodeKind classifies a rendered node.
type NodeKind string

const (
	NodeKindItem    NodeKind = "item"
	NodeKindVirtual NodeKind = "virtual" // placeholder for an item outside the batch
	NodeKindAnd     NodeKind = "and"
	NodeKindOr      NodeKind = "or"
	NodeKindTime    NodeKind = "time"
)

// Model is the intermediate representation used by all renderers.
type Model struct {
	Title  string
	Nodes  []*Node
	Edges  []Edge
	Levels [][]string // producer-first layering; cycles end up in the last level
}

// Node is a shape or a middle point.
type Node struct {
	ID       string
	Label    string
	Kind     NodeKind
	Bounds   geometry.Rectangle
	Selected bool
}

// Edge is a connector from a producer to a consumer.
type Edge struct {
	ID       string
	From     string
	To       string
	Label    string
	Path     geometry.BezierPath
	Marker   geometry.Point
	Selected bool
}
