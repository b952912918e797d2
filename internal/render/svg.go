package render

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rendis/wireflow/internal/geometry"
)

// svgMargin pads the view box around the drawing.
const svgMargin = 20.0

// RenderSVG draws the model at its canvas coordinates: shapes as boxes,
// middle points as dots, and connectors as their live bezier paths with the
// action label at the marker point.
func RenderSVG(model *Model) string {
	var b strings.Builder

	box := viewBox(model)
	b.WriteString(fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="%s %s %s %s">`,
		num(box.X), num(box.Y), num(box.Width), num(box.Height)))
	b.WriteString("\n")
	if model.Title != "" {
		b.WriteString("  <title>" + escape(model.Title) + "</title>\n")
	}

	b.WriteString(`  <g class="connectors" fill="none" stroke="#555">` + "\n")
	for _, e := range model.Edges {
		cls := "connector"
		if e.Selected {
			cls += " selected"
		}
		b.WriteString(fmt.Sprintf(`    <path id="%s" class="%s" d="%s"/>`+"\n",
			escape(e.ID), cls, e.Path.String()))
		if e.Label != "" {
			b.WriteString(fmt.Sprintf(`    <text class="action" x="%s" y="%s" text-anchor="middle" stroke="none" fill="#333">%s</text>`+"\n",
				num(e.Marker.X), num(e.Marker.Y), escape(e.Label)))
		}
	}
	b.WriteString("  </g>\n")

	b.WriteString(`  <g class="nodes">` + "\n")
	for _, n := range model.Nodes {
		cls := string(n.Kind)
		if n.Selected {
			cls += " selected"
		}
		switch n.Kind {
		case NodeKindAnd, NodeKindOr, NodeKindTime:
			c := n.Bounds.Center()
			b.WriteString(fmt.Sprintf(`    <circle id="%s" class="middle-point %s" cx="%s" cy="%s" r="%s"><title>%s</title></circle>`+"\n",
				escape(n.ID), cls, num(c.X), num(c.Y), num(n.Bounds.Width/2), escape(n.Label)))
		default:
			r := n.Bounds
			dash := ""
			if n.Kind == NodeKindVirtual {
				dash = ` stroke-dasharray="5 5"`
			}
			b.WriteString(fmt.Sprintf(`    <rect id="%s" class="shape %s" x="%s" y="%s" width="%s" height="%s" rx="6" fill="#fff" stroke="#333"%s/>`+"\n",
				escape(n.ID), cls, num(r.X), num(r.Y), num(r.Width), num(r.Height), dash))
			c := r.Center()
			b.WriteString(fmt.Sprintf(`    <text x="%s" y="%s" text-anchor="middle" dominant-baseline="middle">%s</text>`+"\n",
				num(c.X), num(c.Y), escape(n.Label)))
		}
	}
	b.WriteString("  </g>\n")
	b.WriteString("</svg>\n")

	return b.String()
}

// viewBox bounds every node and every path control point.
func viewBox(model *Model) geometry.Rectangle {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	grow := func(p geometry.Point) {
		minX, minY = math.Min(minX, p.X), math.Min(minY, p.Y)
		maxX, maxY = math.Max(maxX, p.X), math.Max(maxY, p.Y)
	}
	for _, n := range model.Nodes {
		grow(n.Bounds.TopLeft())
		grow(n.Bounds.BottomRight())
	}
	for _, e := range model.Edges {
		for _, p := range []geometry.Point{e.Path.P1, e.Path.P2, e.Path.P3, e.Path.P4} {
			grow(p)
		}
	}
	if math.IsInf(minX, 1) {
		return geometry.Rect(0, 0, 2*svgMargin, 2*svgMargin)
	}
	return geometry.Rect(minX-svgMargin, minY-svgMargin, maxX-minX+2*svgMargin, maxY-minY+2*svgMargin)
}

func num(v float64) string {
	if v == 0 {
		v = 0
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func escape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
