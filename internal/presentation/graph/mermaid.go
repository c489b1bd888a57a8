package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/parley/pkg/domain"
)

// GraphOverlay contains session data to visualize on the graph.
type GraphOverlay struct {
	Stack   []domain.StackEntry
	Current domain.Position
}

// GenerateMermaid produces a Mermaid flowchart with one subgraph per flow.
// It applies semantic styling:
// - Start node: ((Circle))
// - Skill-call: [[Subroutine]]
// - Waiting node (has onReceive): [/Parallelogram/]
// - Default: [Rectangle]
// Edges leaving the flow (subflow calls, returns, skill-calls) are dotted.
func GenerateMermaid(flows []domain.Flow, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	byID := make(map[string]*domain.Flow, len(flows))
	for i := range flows {
		byID[flows[i].ID] = &flows[i]
	}

	usesEnd := false
	for _, f := range flows {
		fmt.Fprintf(&sb, "    subgraph %s[\"%s\"]\n", sanitizeMermaidID(f.ID), f.ID)
		for _, node := range f.Nodes {
			sb.WriteString(nodeLine(&f, &node))
		}
		sb.WriteString("    end\n")
	}

	for _, f := range flows {
		for _, node := range f.Nodes {
			from := nodeID(f.ID, node.ID)
			if node.IsSkillCall() {
				if target := byID[node.Flow]; target != nil {
					fmt.Fprintf(&sb, "    %s -. \"skill\" .-> %s\n", from, nodeID(target.ID, target.StartNode))
				}
			}
			for _, edge := range node.Next {
				line, end := edgeLine(&f, from, edge, byID)
				usesEnd = usesEnd || end
				sb.WriteString(line)
			}
		}
		if f.CatchAll != nil {
			for _, edge := range f.CatchAll.Next {
				line, end := edgeLine(&f, sanitizeMermaidID(f.ID), edge, byID)
				usesEnd = usesEnd || end
				sb.WriteString(line)
			}
		}
	}

	if usesEnd {
		sb.WriteString("    END_((\"end\"))\n")
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visited := make(map[string]bool)
		for _, e := range overlay.Stack {
			id := nodeID(e.Flow, e.Node)
			if !visited[id] && e.Node != "" {
				visited[id] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", id)
			}
		}
		if !overlay.Current.IsZero() {
			fmt.Fprintf(&sb, "    class %s current;\n", nodeID(overlay.Current.Flow, overlay.Current.Node))
		}
	}

	return sb.String()
}

func nodeLine(f *domain.Flow, node *domain.Node) string {
	opener, closer := "[", "]"
	switch {
	case node.ID == f.StartNode:
		opener, closer = "((", "))"
	case node.IsSkillCall():
		opener, closer = "[[", "]]"
	case node.Waits():
		opener, closer = "[/", "/]"
	}

	label := node.ID
	if node.TimeoutNode != "" {
		label = fmt.Sprintf("%s <br/> ⏱️ %s", node.ID, node.TimeoutNode)
	}
	return fmt.Sprintf("        %s%s\"%s\"%s\n", nodeID(f.ID, node.ID), opener, label, closer)
}

// edgeLine renders one edge and reports whether it points at the shared end node.
func edgeLine(f *domain.Flow, from string, edge domain.Edge, byID map[string]*domain.Flow) (string, bool) {
	if domain.IsEnd(edge.Node) {
		return arrow(from, "END_", edge.Condition, false), true
	}

	tgt := domain.ParseTarget(edge.Node)
	switch tgt.Kind {
	case domain.TargetSubflow:
		node := tgt.Node
		if target := byID[tgt.Flow]; target != nil && node == "" {
			node = target.StartNode
		}
		return arrow(from, nodeID(tgt.Flow, node), edge.Condition, true), false
	case domain.TargetReturn:
		label := "return"
		if tgt.Node != "" {
			label = "return to " + tgt.Node
		}
		ret := sanitizeMermaidID(f.ID) + "__return"
		return fmt.Sprintf("    %s([\"↩ %s\"])\n", ret, label) + arrow(from, ret, edge.Condition, true), false
	default:
		return arrow(from, nodeID(f.ID, tgt.Node), edge.Condition, false), false
	}
}

func arrow(from, to, condition string, jump bool) string {
	a := "-->"
	if jump {
		a = "-.->"
	}
	if condition != "" {
		// Escape double quotes in condition for Mermaid label
		safeCondition := strings.ReplaceAll(condition, "\"", "'")
		a = fmt.Sprintf("-- \"%s\" -->", safeCondition)
		if jump {
			a = fmt.Sprintf("-. \"%s\" .->", safeCondition)
		}
	}
	return fmt.Sprintf("    %s %s %s\n", from, a, to)
}

func nodeID(flowID, node string) string {
	return sanitizeMermaidID(strings.TrimSuffix(flowID, domain.FlowSuffix) + "__" + node)
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
