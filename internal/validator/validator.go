// Package validator checks flow sets before the engine uses them.
package validator

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Error lists every problem that makes a flow set unusable.
type Error struct {
	Problems []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("found %d errors:\n- %s", len(e.Problems), strings.Join(e.Problems, "\n- "))
}

// Validate checks field rules and the invariants the engine relies on:
// unique flow ids, unique node ids per flow and a resolvable start node.
func Validate(flows []domain.Flow) error {
	var problems []string
	seen := make(map[string]bool, len(flows))

	for i := range flows {
		f := &flows[i]

		if err := validate.Struct(f); err != nil {
			problems = append(problems, describe(f.ID, err)...)
		}

		if seen[f.ID] {
			problems = append(problems, fmt.Sprintf("flow '%s' is defined more than once", f.ID))
		}
		seen[f.ID] = true

		nodes := make(map[string]bool, len(f.Nodes))
		for _, n := range f.Nodes {
			if n.ID != "" && nodes[n.ID] {
				problems = append(problems, fmt.Sprintf("flow '%s': node '%s' is defined more than once", f.ID, n.ID))
			}
			nodes[n.ID] = true
		}

		if f.StartNode != "" && f.Node(f.StartNode) == nil {
			problems = append(problems, fmt.Sprintf("flow '%s': start node '%s' does not exist", f.ID, f.StartNode))
		}
	}

	if len(problems) > 0 {
		return &Error{Problems: problems}
	}
	return nil
}

func describe(flowID string, err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{fmt.Sprintf("flow '%s': %v", flowID, err)}
	}

	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		out = append(out, fmt.Sprintf("flow '%s': %s fails rule '%s'", flowID, fe.Namespace(), rule))
	}
	return out
}

// Issue is a non-fatal finding: the engine tolerates it at runtime (usually by ending the flow),
// but it is almost always an authoring mistake.
type Issue struct {
	Flow    string
	Node    string
	Message string
}

func (i Issue) String() string {
	if i.Node == "" {
		return fmt.Sprintf("%s: %s", i.Flow, i.Message)
	}
	return fmt.Sprintf("%s/%s: %s", i.Flow, i.Node, i.Message)
}

// Lint reports broken links and unreachable nodes.
func Lint(flows []domain.Flow) []Issue {
	byID := make(map[string]*domain.Flow, len(flows))
	for i := range flows {
		byID[flows[i].ID] = &flows[i]
	}

	var issues []Issue
	for i := range flows {
		f := &flows[i]
		issues = append(issues, lintFlow(f, byID)...)
	}

	sort.SliceStable(issues, func(a, b int) bool {
		if issues[a].Flow != issues[b].Flow {
			return issues[a].Flow < issues[b].Flow
		}
		return issues[a].Node < issues[b].Node
	})
	return issues
}

func lintFlow(f *domain.Flow, byID map[string]*domain.Flow) []Issue {
	var issues []Issue

	check := func(node, target, what string) {
		if msg := checkTarget(f, target, byID); msg != "" {
			issues = append(issues, Issue{Flow: f.ID, Node: node, Message: fmt.Sprintf("%s %s", what, msg)})
		}
	}

	if f.CatchAll != nil {
		for _, e := range f.CatchAll.Next {
			check("", e.Node, "catch-all edge")
		}
	}
	if f.TimeoutNode != "" {
		check("", f.TimeoutNode, "timeout target")
	}

	for _, n := range f.Nodes {
		for _, e := range n.Next {
			check(n.ID, e.Node, "edge")
		}
		if n.TimeoutNode != "" {
			check(n.ID, n.TimeoutNode, "timeout target")
		}
		if n.Type == domain.NodeSkillCall {
			if _, ok := byID[n.Flow]; !ok {
				issues = append(issues, Issue{Flow: f.ID, Node: n.ID, Message: fmt.Sprintf("skill-call flow '%s' does not exist", n.Flow)})
			}
		}
	}

	for _, id := range unreachable(f) {
		issues = append(issues, Issue{Flow: f.ID, Node: id, Message: "node is unreachable from the start node"})
	}
	return issues
}

func checkTarget(f *domain.Flow, target string, byID map[string]*domain.Flow) string {
	if domain.IsEnd(target) {
		return ""
	}

	t := domain.ParseTarget(target)
	switch t.Kind {
	case domain.TargetSubflow:
		sub, ok := byID[t.Flow]
		if !ok {
			return fmt.Sprintf("targets missing flow '%s'", t.Flow)
		}
		if t.Node != "" && sub.Node(t.Node) == nil {
			return fmt.Sprintf("targets missing node '%s' in flow '%s'", t.Node, t.Flow)
		}
	case domain.TargetReturn:
		// Resolved against the caller at runtime.
	default:
		if f.Node(t.Node) == nil {
			return fmt.Sprintf("targets missing node '%s'", t.Node)
		}
	}
	return ""
}

// unreachable crawls plain node edges from the start node. Nodes only entered through
// "<flow> @ node", "#node", timeouts or catch-all edges count as reachable.
func unreachable(f *domain.Flow) []string {
	visited := map[string]bool{}
	queue := []string{f.StartNode}

	enqueue := func(target string) {
		t := domain.ParseTarget(target)
		if t.Kind == domain.TargetNode && !domain.IsEnd(target) && !visited[t.Node] {
			queue = append(queue, t.Node)
		}
	}

	if f.CatchAll != nil {
		for _, e := range f.CatchAll.Next {
			enqueue(e.Node)
		}
	}
	if f.TimeoutNode != "" {
		enqueue(f.TimeoutNode)
	}
	enqueue(domain.TimeoutNodeID)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true

		n := f.Node(id)
		if n == nil {
			continue
		}
		for _, e := range n.Next {
			enqueue(e.Node)
		}
		if n.TimeoutNode != "" {
			enqueue(n.TimeoutNode)
		}
	}

	var out []string
	for _, n := range f.Nodes {
		if !visited[n.ID] {
			out = append(out, n.ID)
		}
	}
	return out
}
