package runtime

import (
	"context"
	"sync"
	"testing"

	"github.com/aretw0/parley/pkg/actions"
	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/dsl"
	"github.com/aretw0/parley/pkg/output"
	"github.com/stretchr/testify/require"
)

// sent is a message observed by the recording processor, with the position it was sent from.
type sent struct {
	Session string
	Flow    string
	Node    string
	Type    string
	Value   string
}

type harness struct {
	t      *testing.T
	ctx    context.Context
	engine *Engine
	state  *memory.Store
	flows  *memory.FlowStore

	mu   sync.Mutex
	out  []sent
	errs []error
}

func newHarness(t *testing.T, b *dsl.Builder, opts ...EngineOption) *harness {
	t.Helper()

	h := &harness{
		t:     t,
		ctx:   context.Background(),
		state: memory.NewStore(),
		flows: memory.NewFlowStore(b.Flows()...),
	}
	h.engine = NewEngine(h.flows, h.state, opts...)
	h.engine.RegisterOutputProcessor(output.ProcessorFunc{
		Name: "recorder",
		Fn: func(_ context.Context, o output.Output) error {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.out = append(h.out, sent{
				Session: o.Context.SessionID,
				Flow:    o.Context.Flow,
				Node:    o.Context.Node,
				Type:    o.Message.Type,
				Value:   o.Message.Value,
			})
			return nil
		},
	})
	h.engine.OnError(func(err error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.errs = append(h.errs, err)
	})
	return h
}

func (h *harness) action(name string, fn actions.Handler) {
	h.t.Helper()
	require.NoError(h.t, h.engine.Actions().RegisterFunc(name, fn, false))
}

func (h *harness) send(sessionID, text string) domain.State {
	return h.engine.ProcessMessage(h.ctx, sessionID, domain.Event{Type: domain.EventText, Text: text})
}

func (h *harness) timeout(sessionID string) domain.State {
	return h.engine.ProcessMessage(h.ctx, sessionID, domain.Event{Type: domain.EventTimeout})
}

func (h *harness) position(sessionID string) domain.Position {
	h.t.Helper()
	pos, err := h.engine.CurrentPosition(h.ctx, sessionID)
	require.NoError(h.t, err)
	return pos
}

func (h *harness) sessionContext(sessionID string) *domain.SessionContext {
	h.t.Helper()
	sctx, err := h.engine.loadContext(h.ctx, sessionID)
	require.NoError(h.t, err)
	return sctx
}

// values returns the values of the recorded messages, in order.
func (h *harness) values() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.out))
	for _, s := range h.out {
		out = append(out, s.Value)
	}
	return out
}

func (h *harness) errors() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.errs...)
}

func (h *harness) noErrors() {
	h.t.Helper()
	require.Empty(h.t, h.errors())
}

func pos(flow, node string) domain.Position {
	return domain.Position{Flow: flow, Node: node}
}
