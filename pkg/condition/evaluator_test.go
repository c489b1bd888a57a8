package condition_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/actions"
	"github.com/aretw0/parley/pkg/condition"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingSource records whether expressions reached the action layer.
type countingSource struct {
	*actions.Registry
	names int
}

func (c *countingSource) Names() []string {
	c.names++
	return c.Registry.Names()
}

func TestEvaluate_FastPath(t *testing.T) {
	src := &countingSource{Registry: actions.NewRegistry(nil)}
	ev := condition.New(src)

	for _, expr := range []string{"true", "TRUE", "always", "Always", "yes", "YES", "", "  "} {
		ok, err := ev.Evaluate(context.Background(), expr, nil, domain.Event{})
		require.NoError(t, err, expr)
		assert.True(t, ok, expr)
	}
	assert.Zero(t, src.names, "literals must not reach the evaluator")
}

func TestEvaluate_Expressions(t *testing.T) {
	ev := condition.New(nil)
	state := domain.State{
		"count": 3,
		"user":  map[string]any{"name": "Ana", "vip": true},
		"tags":  []any{"a", "b"},
	}
	event := domain.Event{Type: "text", Text: "Help"}

	cases := []struct {
		expr string
		want bool
	}{
		{`event.text == "Help"`, true},
		{`e.type == "text" && s.count >= 3`, true},
		{`state.count > 5`, false},
		{`state.user.vip`, true},
		{`s.user.name == "Bob" || s.user.name == "Ana"`, true},
		{`lower(e.text) == "help"`, true},
		{`contains(s.tags, "b")`, true},
		{`length(s.tags) == 2`, true},
		{`state.missing == null`, true},
		{`state.missing.deeper.still == null`, true},
		{`state.user.age == null`, true},
		{`e.payload.choice == "x"`, false},
		{`can(regex("^[0-9]+$", e.text))`, false},
		{`"not a bool"`, false},
		{`1`, false},
		{`null`, false},
		{`!(state.count == 3)`, false},
	}

	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			got, err := ev.Evaluate(context.Background(), tc.expr, state, event)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEvaluate_MissingFieldsInGuards(t *testing.T) {
	ev := condition.New(nil)
	event := domain.Event{Type: domain.EventText, Text: "hi"}

	cases := []struct {
		name  string
		expr  string
		state domain.State
		want  bool
	}{
		{"negated missing field", `!s.done`, domain.State{}, true},
		{"negated set field", `!s.done`, domain.State{"done": true}, false},
		{"greater than missing", `s.count > 3`, domain.State{}, false},
		{"greater or equal missing", `s.count >= 3`, domain.State{}, false},
		{"less than missing", `s.count < 3`, domain.State{}, false},
		{"less or equal missing", `3 <= s.count`, domain.State{}, false},
		{"comparison on set field", `s.count > 3`, domain.State{"count": 5}, true},
		{"nested missing path", `!state.user.profile.done && e.text == "hi"`, nil, true},
		{"negated non-empty text", `!event.text`, domain.State{}, false},
		{"negated zero", `!s.count`, domain.State{"count": 0}, true},
		{"negated empty string", `!s.name`, domain.State{"name": ""}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ev.Evaluate(context.Background(), tc.expr, tc.state, event)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEvaluate_MismatchedComparisonIsError(t *testing.T) {
	_, err := condition.New(nil).Evaluate(context.Background(), `s.name > 3`, domain.State{"name": "ana"}, domain.Event{})
	var evalErr *condition.EvalError
	assert.ErrorAs(t, err, &evalErr)
}

func TestEvaluate_MalformedIsError(t *testing.T) {
	ev := condition.New(nil)

	for i := 0; i < 2; i++ {
		_, err := ev.Evaluate(context.Background(), `state.count >`, nil, domain.Event{})
		var evalErr *condition.EvalError
		require.ErrorAs(t, err, &evalErr)
		assert.Equal(t, `state.count >`, evalErr.Expr)
	}
}

func TestEvaluate_UnknownFunctionIsError(t *testing.T) {
	ev := condition.New(nil)
	_, err := ev.Evaluate(context.Background(), `nope(1)`, nil, domain.Event{})
	assert.Error(t, err)
}

func TestEvaluate_DoesNotMutateBindings(t *testing.T) {
	ev := condition.New(nil)
	state := domain.State{"a": 1}

	_, err := ev.Evaluate(context.Background(), `state.b.c == null`, state, domain.Event{})
	require.NoError(t, err)
	assert.Equal(t, domain.State{"a": 1}, state)
}

func TestEvaluate_CallsActions(t *testing.T) {
	reg := actions.NewRegistry(nil)
	require.NoError(t, reg.RegisterFunc("is_vip", func(ctx context.Context, state domain.State, event domain.Event, args map[string]any) (any, error) {
		return args["id"] == "42", nil
	}, false))
	require.NoError(t, reg.RegisterFunc("profile", func(ctx context.Context, state domain.State, event domain.Event, args map[string]any) (any, error) {
		return map[string]any{"tier": "gold", "seen": state["seen"]}, nil
	}, false))

	ev := condition.New(reg)
	state := domain.State{"seen": 2}

	ok, err := ev.Evaluate(context.Background(), `is_vip({ id = "42" })`, state, domain.Event{})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ev.Evaluate(context.Background(), `profile().tier == "gold" && profile().seen == 2`, state, domain.Event{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluate_ActionErrorIsFatal(t *testing.T) {
	reg := actions.NewRegistry(nil)
	boom := errors.New("boom")
	require.NoError(t, reg.RegisterFunc("check", func(ctx context.Context, state domain.State, event domain.Event, args map[string]any) (any, error) {
		return nil, boom
	}, false))

	_, err := condition.New(reg).Evaluate(context.Background(), `check()`, nil, domain.Event{})
	assert.Error(t, err)
}

func TestEvaluate_Timeout(t *testing.T) {
	reg := actions.NewRegistry(nil)
	require.NoError(t, reg.RegisterFunc("slow", func(ctx context.Context, state domain.State, event domain.Event, args map[string]any) (any, error) {
		time.Sleep(500 * time.Millisecond)
		return true, nil
	}, false))

	ev := condition.New(reg, condition.WithTimeout(50*time.Millisecond))

	start := time.Now()
	_, err := ev.Evaluate(context.Background(), `slow()`, nil, domain.Event{})
	assert.ErrorIs(t, err, condition.ErrTimeout)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}
