package plan

import (
	"fmt"
	"strings"
)

// RenderText draws an ASCII tree of the plan with cost and row estimates,
// suitable for embedding in tool responses at any preset.
func RenderText(t *Tree) string {
	if t == nil || t.Root == nil {
		return "no execution plan available"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s (total cost: %.2f)\n", nodeLabel(t.Root), t.Root.Cost)
	for i, child := range t.Root.Children {
		renderNode(&b, child, "", i == len(t.Root.Children)-1)
	}
	return b.String()
}

func renderNode(b *strings.Builder, n *Node, prefix string, last bool) {
	branch := "├─ "
	childPrefix := prefix + "│  "
	if last {
		branch = "└─ "
		childPrefix = prefix + "   "
	}

	fmt.Fprintf(b, "%s%s%s (cost=%.2f rows=%d)\n", prefix, branch, nodeLabel(n), n.Cost, n.Rows)

	for i, child := range n.Children {
		renderNode(b, child, childPrefix, i == len(n.Children)-1)
	}
}

func nodeLabel(n *Node) string {
	label := n.Operation
	if n.Strategy != "" {
		label += " " + n.Strategy
	}
	if n.Object != "" {
		label += " on " + ObjectRef{Owner: n.Owner, Name: n.Object}.String()
		if n.Alias != "" && n.Alias != n.Object {
			label += " (" + n.Alias + ")"
		}
	}
	if n.Index != "" && n.Index != n.Object {
		label += " using " + n.Index
	}
	return label
}
