package runtime

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/hooks"
)

// turn carries the mutable data of one ProcessMessage call.
type turn struct {
	sessionID string
	event     domain.Event
	flows     *flowSet
	sctx      *domain.SessionContext
	state     domain.State
	ended     bool
	depth     int
}

// result is what the caller observes: nil once the flow has ended.
func (t *turn) result() domain.State {
	if t.ended {
		return nil
	}
	return t.state
}

// ProcessMessage runs one turn for the session. It never returns an error: faults are
// recovered here, logged and delivered to the error handlers, and the caller receives
// the state as it was when the fault happened. A nil result means the flow ended.
func (e *Engine) ProcessMessage(ctx context.Context, sessionID string, event domain.Event) (result domain.State) {
	t := &turn{sessionID: sessionID, event: event}

	defer func() {
		if r := recover(); r != nil {
			e.fail(sessionID, fmt.Errorf("panic during turn: %v\n%s", r, debug.Stack()))
			result = t.result()
		}
	}()

	if err := e.processTurn(ctx, t); err != nil {
		e.fail(sessionID, err)
	}
	return t.result()
}

func (e *Engine) processTurn(ctx context.Context, t *turn) error {
	flows, err := e.loadedFlows(ctx)
	if err != nil {
		return err
	}
	t.flows = flows

	if t.sctx, err = e.loadOrCreateContext(ctx, t); err != nil {
		return err
	}
	if t.state, err = e.loadState(ctx, t.sessionID); err != nil {
		return err
	}

	if t.event.IsTimeout() {
		if err := e.handleTimeout(ctx, t); err != nil {
			return err
		}
		return e.finish(ctx, t)
	}

	e.trace(ctx, "RECV", t, "type", t.event.Type, "text", truncate(t.event.Text, 20))

	flow := t.flows.get(t.sctx.Flow)
	if flow == nil {
		return fmt.Errorf("%w: session %s points at %q", domain.ErrNoCurrentFlow, t.sessionID, t.sctx.Flow)
	}

	if flow.CatchAll != nil {
		if len(flow.CatchAll.OnReceive) > 0 {
			e.trace(ctx, "KALL", t, "phase", "onReceive")
			if err := e.runInstructions(ctx, t, flow.CatchAll.OnReceive); err != nil {
				return err
			}
		}

		if len(flow.CatchAll.Next) > 0 {
			e.trace(ctx, "KALL", t, "phase", "next")
			taken, err := e.takeFirstEdge(ctx, t, flow.CatchAll.Next)
			if err != nil {
				return err
			}
			if taken {
				return e.finish(ctx, t)
			}
			e.trace(ctx, "KALL", t, "phase", "no match")
		}
	}

	if err := e.dispatch(ctx, t, t.sctx.Node); err != nil {
		return err
	}
	return e.finish(ctx, t)
}

// finish persists what survives the turn.
func (e *Engine) finish(ctx context.Context, t *turn) error {
	if t.ended {
		return nil
	}
	if err := e.saveState(ctx, t.sessionID, t.state); err != nil {
		return err
	}
	return e.saveContext(ctx, t.sctx)
}

func (e *Engine) loadOrCreateContext(ctx context.Context, t *turn) (*domain.SessionContext, error) {
	sctx, err := e.loadContext(ctx, t.sessionID)
	if err != nil || sctx != nil {
		return sctx, err
	}

	cc := &hooks.CreateContext{SessionID: t.sessionID, Event: t.event, Flow: e.defaultFlow}
	if err := e.beforeCreate.Run(ctx, cc); err != nil {
		return nil, err
	}

	flow := t.flows.get(cc.Flow)
	if flow == nil {
		return nil, fmt.Errorf("%w: could not find the default flow %q", domain.ErrFlowNotFound, cc.Flow)
	}

	sctx = domain.NewSessionContext(t.sessionID, flow)
	if err := e.saveContext(ctx, sctx); err != nil {
		return nil, err
	}

	after := *cc
	if err := e.afterCreate.Run(ctx, &after); err != nil {
		return nil, err
	}
	return sctx, nil
}

// JumpOptions tunes JumpTo.
type JumpOptions struct {
	// ResetState clears the session state to an empty map.
	ResetState bool
}

// JumpTo moves the session to flowID (at nodeID, or the flow's start node when empty)
// with a fresh flow stack. It does not advance processing; the next ProcessMessage
// enters the node. Errors are returned to the caller.
func (e *Engine) JumpTo(ctx context.Context, sessionID, flowID, nodeID string, opts JumpOptions) error {
	flows, err := e.loadedFlows(ctx)
	if err != nil {
		return err
	}

	flow := flows.get(flowID)
	if flow == nil {
		return fmt.Errorf("%w: %s", domain.ErrFlowNotFound, flowID)
	}
	if nodeID == "" {
		nodeID = flow.StartNode
	} else if flow.Node(nodeID) == nil {
		return fmt.Errorf("%w: %q in flow %q", domain.ErrNodeNotFound, nodeID, flowID)
	}

	sctx := &domain.SessionContext{
		SessionID: sessionID,
		Flow:      flow.ID,
		Node:      nodeID,
		FlowStack: []domain.StackEntry{{Flow: flow.ID, Node: nodeID}},
		Jumped:    true,
	}
	if err := e.saveContext(ctx, sctx); err != nil {
		return err
	}

	if opts.ResetState {
		return e.saveState(ctx, sessionID, domain.State{})
	}
	return nil
}

// EndFlow ends the session's flow: it runs the before-end hook and deletes the context.
// Session state is kept. The returned state is always nil.
func (e *Engine) EndFlow(ctx context.Context, sessionID string) (domain.State, error) {
	sctx, err := e.loadContext(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	t := &turn{sessionID: sessionID, sctx: sctx}
	return nil, e.endFlow(ctx, t)
}

// CurrentPosition returns the session's flow and node, or the zero Position when the
// session has no active flow.
func (e *Engine) CurrentPosition(ctx context.Context, sessionID string) (domain.Position, error) {
	sctx, err := e.loadContext(ctx, sessionID)
	if err != nil || sctx == nil {
		return domain.Position{}, err
	}
	return domain.Position{Flow: sctx.Flow, Node: sctx.Node}, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
