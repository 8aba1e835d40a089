package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/triage/pkg/domain"
)

// GraphOverlay contains run data to visualize on the graph.
type GraphOverlay struct {
	VisitedNodes []string
	CurrentNode  string
}

// GenerateMermaid produces a Mermaid flowchart from a graph description.
// It applies semantic styling:
// - Start: ((Circle))
// - Nodes with tools: [[Subroutine]]
// - Terminal: ([Stadium])
// - Default: [Rectangle]
// Edges that share a source and target are merged into one labelled arrow.
func GenerateMermaid(desc domain.GraphDescription, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, node := range desc.Nodes {
		safeID := sanitizeMermaidID(node.Name)

		opener, closer := "[", "]"
		switch {
		case node.Name == desc.Start:
			opener, closer = "((", "))"
		case len(node.Tools) > 0:
			opener, closer = "[[", "]]"
		}

		label := node.Name
		if len(node.Tools) > 0 {
			label = fmt.Sprintf("%s <br/> 🔧 %s", node.Name, strings.Join(node.Tools, ", "))
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, label, closer)
	}

	if hasTerminal(desc) {
		fmt.Fprintf(&sb, "    %s([\"%s\"])\n", sanitizeMermaidID(domain.End), domain.End)
	}

	for _, e := range mergeEdges(desc.Edges) {
		safeCondition := strings.ReplaceAll(e.Label, "\"", "'")
		arrow := fmt.Sprintf("-- \"%s\" -->", safeCondition)
		if e.To == domain.End {
			arrow = fmt.Sprintf("-. \"%s\" .->", safeCondition)
		}
		fmt.Fprintf(&sb, "    %s %s %s\n", sanitizeMermaidID(e.From), arrow, sanitizeMermaidID(e.To))
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visitedSet := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			safeID := sanitizeMermaidID(id)
			if !visitedSet[safeID] && safeID != "" {
				visitedSet[safeID] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
			}
		}

		if overlay.CurrentNode != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.CurrentNode))
		}
	}

	return sb.String()
}

func hasTerminal(desc domain.GraphDescription) bool {
	for _, e := range desc.Edges {
		if e.To == domain.End {
			return true
		}
	}
	return false
}

// mergeEdges joins labels of edges with the same endpoints, keeping first-seen order.
func mergeEdges(edges []domain.Edge) []domain.Edge {
	type key struct{ from, to string }
	idx := make(map[key]int)
	var out []domain.Edge
	for _, e := range edges {
		k := key{e.From, e.To}
		if i, ok := idx[k]; ok {
			out[i].Label += " | " + e.Label
			continue
		}
		idx[k] = len(out)
		out = append(out, e)
	}
	return out
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	if s == domain.End {
		s = "END"
	}
	return s
}
