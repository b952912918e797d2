package render

import (
	"fmt"
	"strings"
)

// RenderMermaid renders a Model as a left-to-right Mermaid flowchart.
func RenderMermaid(model *Model) string {
	var b strings.Builder

	b.WriteString("graph LR\n")

	if model.Title != "" {
		b.WriteString(fmt.Sprintf("    %%%% %s\n", model.Title))
	}

	for _, node := range model.Nodes {
		b.WriteString(fmt.Sprintf("    %s\n", mermaidNodeDef(node)))
	}

	for _, edge := range model.Edges {
		label := ""
		if edge.Label != "" {
			label = fmt.Sprintf("|%s|", mermaidEscapeLabel(edge.Label))
		}
		b.WriteString(fmt.Sprintf("    %s -->%s %s\n",
			mermaidSafeID(edge.From), label, mermaidSafeID(edge.To)))
	}

	b.WriteString("\n")
	b.WriteString("    classDef virtual fill:#f4f4f4,stroke:#999,color:#666,stroke-dasharray:5 5\n")
	b.WriteString("    classDef selected stroke:#1a5276,stroke-width:3px\n")

	for _, node := range model.Nodes {
		if node.Kind == NodeKindVirtual {
			b.WriteString(fmt.Sprintf("    class %s virtual\n", mermaidSafeID(node.ID)))
		}
		if node.Selected {
			b.WriteString(fmt.Sprintf("    class %s selected\n", mermaidSafeID(node.ID)))
		}
	}

	return b.String()
}

// mermaidNodeDef returns a Mermaid node definition with the shape of its kind.
func mermaidNodeDef(node *Node) string {
	id := mermaidSafeID(node.ID)
	label := mermaidEscapeLabel(node.Label)

	switch node.Kind {
	case NodeKindAnd:
		return fmt.Sprintf("%s{%q}", id, label)
	case NodeKindOr:
		return fmt.Sprintf("%s{{%q}}", id, label)
	case NodeKindTime:
		return fmt.Sprintf("%s([%q])", id, label)
	case NodeKindVirtual:
		return fmt.Sprintf("%s[/%q/]", id, label)
	default:
		return fmt.Sprintf("%s[%q]", id, label)
	}
}

// mermaidSafeID converts a node id to a Mermaid-safe identifier.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_", ":", "_")
	return "n_" + r.Replace(id)
}

// mermaidEscapeLabel replaces characters Mermaid treats as syntax.
func mermaidEscapeLabel(s string) string {
	r := strings.NewReplacer(`"`, "#quot;", "|", "#124;")
	return r.Replace(s)
}
