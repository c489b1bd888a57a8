package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/hooks"
)

// handleTimeout escalates a timeout event: node timeout, flow timeout, the flow's
// "timeout" node, the sentinel timeout flow, and finally ending the flow.
func (e *Engine) handleTimeout(ctx context.Context, t *turn) error {
	tc := &hooks.TimeoutContext{
		SessionID: t.sessionID,
		Flow:      t.sctx.Flow,
		Node:      t.sctx.Node,
		Event:     t.event,
	}
	if err := e.beforeTimeout.Run(ctx, tc); err != nil {
		return err
	}

	flow := t.flows.get(t.sctx.Flow)
	if flow == nil {
		return fmt.Errorf("%w: %q", domain.ErrNoCurrentFlow, t.sctx.Flow)
	}

	switch {
	case flow.Node(t.sctx.Node) != nil && flow.Node(t.sctx.Node).TimeoutNode != "":
		e.trace(ctx, "SNDE", t)
		return e.dispatch(ctx, t, flow.Node(t.sctx.Node).TimeoutNode)
	case flow.TimeoutNode != "":
		e.trace(ctx, "SFLW", t)
		return e.dispatch(ctx, t, flow.TimeoutNode)
	case flow.Node(domain.TimeoutNodeID) != nil:
		e.trace(ctx, "DNDE", t)
		return e.dispatch(ctx, t, domain.TimeoutNodeID)
	case t.flows.get(domain.TimeoutFlowID) != nil:
		e.trace(ctx, "DFLW", t)
		return e.dispatch(ctx, t, domain.TimeoutFlowID)
	default:
		e.trace(ctx, "NTHG", t)
		return e.endFlow(ctx, t)
	}
}
