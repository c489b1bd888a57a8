package output_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/output"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	id  string
	got []output.Output
	err error
}

func (r *recorder) ID() string { return r.id }

func (r *recorder) Send(ctx context.Context, out output.Output) error {
	r.got = append(r.got, out)
	return r.err
}

func TestDispatcher_SingleProcessorByDefault(t *testing.T) {
	d := output.NewDispatcher()
	first := &recorder{id: "first"}
	second := &recorder{id: "second"}

	d.Register(first)
	d.Register(second)
	assert.Equal(t, []string{"second"}, d.Processors())

	require.NoError(t, d.Dispatch(context.Background(), domain.Message{Type: "#text", Value: "hi"}, nil, domain.Event{}, nil))
	assert.Empty(t, first.got)
	require.Len(t, second.got, 1)
	assert.Equal(t, "hi", second.got[0].Message.Value)
}

func TestDispatcher_MultipleIsolatesFailures(t *testing.T) {
	d := output.NewDispatcher(output.WithMultiple())
	boom := errors.New("boom")

	failing := &recorder{id: "failing", err: boom}
	panicking := output.ProcessorFunc{Name: "panicking", Fn: func(ctx context.Context, out output.Output) error {
		panic("kaboom")
	}}
	ok := &recorder{id: "ok"}

	d.Register(failing)
	d.Register(panicking)
	d.Register(ok)

	sctx := &domain.SessionContext{SessionID: "s1", Flow: "main.flow", Node: "a"}
	state := domain.State{"k": "v"}
	event := domain.Event{Type: "text", Text: "hello"}

	err := d.Dispatch(context.Background(), domain.Message{Type: "#text"}, state, event, sctx)
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "kaboom")

	require.Len(t, ok.got, 1, "later processors still run")
	assert.Equal(t, state, ok.got[0].State)
	assert.Equal(t, event, ok.got[0].Event)
	assert.Same(t, sctx, ok.got[0].Context)
}

func TestDispatcher_ReplaceByIDAndUnregister(t *testing.T) {
	d := output.NewDispatcher(output.WithMultiple())
	d.Register(&recorder{id: "a"})
	d.Register(&recorder{id: "b"})
	d.Register(&recorder{id: "a"})
	assert.Equal(t, []string{"a", "b"}, d.Processors())

	d.Unregister("a")
	assert.Equal(t, []string{"b"}, d.Processors())
}

func TestDispatcher_NoProcessors(t *testing.T) {
	d := output.NewDispatcher()
	assert.NoError(t, d.Dispatch(context.Background(), domain.Message{}, nil, domain.Event{}, nil))
}
