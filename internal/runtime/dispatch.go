package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/parley/pkg/actions"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/hooks"
)

// dispatch moves the session towards target and runs whatever the landing node asks for.
// It recurses through edges until a node waits for input or the flow ends.
func (e *Engine) dispatch(ctx context.Context, t *turn, target string) error {
	t.depth++
	if t.depth > maxDispatchDepth {
		return fmt.Errorf("%w: more than %d transitions in one turn (flow %q, node %q)",
			domain.ErrDispatchLoop, maxDispatchDepth, t.sctx.Flow, t.sctx.Node)
	}

	sctx := t.sctx
	switched := false
	if sctx.Jumped {
		sctx.Jumped = false
		switched = true
	}
	originalFlow := sctx.Flow

	tgt := domain.ParseTarget(target)
	switch {
	case tgt.Kind == domain.TargetSubflow:
		e.trace(ctx, "FLOW", t, "target", target, "dir", "enter")
		flow := t.flows.get(tgt.Flow)
		if flow == nil {
			return fmt.Errorf("%w: %s", domain.ErrFlowNotFound, tgt.Flow)
		}
		sctx.Flow = flow.ID
		sctx.Node = tgt.Node
		if sctx.Node == "" {
			sctx.Node = flow.StartNode
		}
		switched = true

	case tgt.Kind == domain.TargetReturn:
		e.trace(ctx, "FLOW", t, "target", target, "dir", "return")
		ok, err := e.returnToCaller(t, tgt.Node)
		if err != nil {
			return err
		}
		if !ok {
			e.logger.Warn("return target with no calling flow; ending flow", "session", t.sessionID, "flow", sctx.Flow)
			return e.endFlow(ctx, t)
		}
		switched = true

	case target != sctx.Node:
		e.trace(ctx, "FLOW", t, "target", target)
		sctx.Node = target
		switched = true

	case sctx.Node == "":
		// Fresh context: land on the start node.
		flow := t.flows.get(sctx.Flow)
		if flow == nil {
			return fmt.Errorf("%w: %q", domain.ErrNoCurrentFlow, sctx.Flow)
		}
		sctx.Node = flow.StartNode
		switched = true
	}

	flow := t.flows.get(sctx.Flow)
	if flow == nil {
		return fmt.Errorf("%w: %q", domain.ErrNoCurrentFlow, sctx.Flow)
	}

	node := flow.Node(sctx.Node)
	if node == nil {
		e.logger.Warn("node not found; ending flow", "session", t.sessionID, "flow", flow.ID, "node", sctx.Node)
		return e.endFlow(ctx, t)
	}

	if !switched {
		// The session was parked here and a message arrived.
		if node.OnReceive != nil {
			e.trace(ctx, "RECV", t, "phase", "onReceive")
			if err := e.runInstructions(ctx, t, node.OnReceive); err != nil {
				return err
			}
		}
		return e.advance(ctx, t, node, originalFlow)
	}

	if err := e.push(t, domain.StackEntry{Flow: flow.ID, Node: node.ID}); err != nil {
		return err
	}
	if err := e.saveContext(ctx, sctx); err != nil {
		return err
	}

	enter := &hooks.NodeEnterContext{
		SessionID: t.sessionID,
		Flow:      flow.ID,
		Node:      node.ID,
		Event:     t.event,
		State:     actions.Snapshot(t.state),
	}
	if err := e.beforeNodeEnter.Run(ctx, enter); err != nil {
		return err
	}

	if node.OnEnter != nil {
		e.trace(ctx, "ENTR", t)
		if err := e.runInstructions(ctx, t, node.OnEnter); err != nil {
			return err
		}
	}

	if node.Waits() {
		e.trace(ctx, "WAIT", t)
		return nil
	}
	return e.advance(ctx, t, node, originalFlow)
}

// advance leaves node: a skill-call into another flow delegates, anything else follows edges.
func (e *Engine) advance(ctx context.Context, t *turn, node *domain.Node, originalFlow string) error {
	if node.IsSkillCall() && node.Flow != originalFlow {
		e.trace(ctx, "SKLL", t, "target", node.Flow)
		return e.dispatch(ctx, t, node.Flow)
	}
	return e.followEdges(ctx, t, node.Next)
}

// followEdges takes the first edge whose condition holds. No edges ends the flow;
// edges that all fail leave the session where it is.
func (e *Engine) followEdges(ctx context.Context, t *turn, edges []domain.Edge) error {
	if len(edges) == 0 {
		return e.endFlow(ctx, t)
	}

	taken, err := e.takeFirstEdge(ctx, t, edges)
	if err != nil {
		return err
	}
	if !taken {
		e.trace(ctx, "NOMT", t)
	}
	return nil
}

func (e *Engine) takeFirstEdge(ctx context.Context, t *turn, edges []domain.Edge) (bool, error) {
	for _, edge := range edges {
		ok, err := e.evaluator.Evaluate(ctx, edge.Condition, t.state, t.event)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}

		e.trace(ctx, "MTCH", t, "cond", edge.Condition, "target", edge.Node)
		if domain.IsEnd(edge.Node) {
			return true, e.endFlow(ctx, t)
		}
		return true, e.dispatch(ctx, t, edge.Node)
	}
	return false, nil
}

// returnToCaller drops the trailing entries of the current flow and resumes at the
// caller recorded below them. It reports false when there is no caller.
func (e *Engine) returnToCaller(t *turn, node string) (bool, error) {
	sctx := t.sctx
	stack := sctx.FlowStack
	for len(stack) > 0 && stack[len(stack)-1].Flow == sctx.Flow {
		stack = stack[:len(stack)-1]
	}
	sctx.FlowStack = stack

	if len(stack) == 0 {
		return false, nil
	}

	caller := stack[len(stack)-1]
	if t.flows.get(caller.Flow) == nil {
		return false, fmt.Errorf("%w: %s", domain.ErrFlowNotFound, caller.Flow)
	}
	sctx.Flow = caller.Flow
	sctx.Node = caller.Node
	if node != "" {
		sctx.Node = node
	}
	return true, nil
}

// push records a position, collapses consecutive entries of the same flow to the latest
// one and enforces the stack limit.
func (e *Engine) push(t *turn, entry domain.StackEntry) error {
	stack := compact(append(t.sctx.FlowStack, entry))
	if len(stack) > domain.MaxStackSize {
		return fmt.Errorf("%w: exceeded %d entries (flow %q, node %q); the flows probably loop into each other",
			domain.ErrStackOverflow, domain.MaxStackSize, entry.Flow, entry.Node)
	}
	t.sctx.FlowStack = stack
	return nil
}

func compact(stack []domain.StackEntry) []domain.StackEntry {
	out := make([]domain.StackEntry, 0, len(stack))
	for i, el := range stack {
		if i == len(stack)-1 || stack[i+1].Flow != el.Flow {
			out = append(out, el)
		}
	}
	return out
}

// endFlow runs the before-end hook and removes the context. State is left in the store.
func (e *Engine) endFlow(ctx context.Context, t *turn) error {
	end := &hooks.EndContext{SessionID: t.sessionID}
	if t.sctx != nil {
		end.Flow, end.Node = t.sctx.Flow, t.sctx.Node
	}
	if err := e.beforeEnd.Run(ctx, end); err != nil {
		return err
	}

	e.trace(ctx, "ENDF", t)
	if err := e.deleteContext(ctx, t.sessionID); err != nil {
		return err
	}
	t.ended = true
	return nil
}
