package runtime

import (
	"context"
	"testing"

	"github.com/aretw0/parley/pkg/condition"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/dsl"
	"github.com/aretw0/parley/pkg/hooks"
	"github.com/aretw0/parley/pkg/output"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatch_EmptyNextEndsFlow(t *testing.T) {
	b := dsl.New()
	b.Flow("main").Node("only").Say("#text", "done")

	h := newHarness(t, b)
	state := h.send("s1", "hi")

	assert.Nil(t, state)
	assert.True(t, h.position("s1").IsZero())
	assert.Equal(t, []string{"done"}, h.values())
	h.noErrors()
}

func TestDispatch_NoMatchingEdgeStays(t *testing.T) {
	b := dsl.New()
	b.Flow("main").
		Node("menu").Say("#text", "menu").Wait().
		Branch(`event.text == "a"`, "a").
		Branch(`event.text == "b"`, "b").
		Node("a").Say("#text", "A").Wait().
		Node("b").Say("#text", "B").Wait()

	h := newHarness(t, b)
	h.send("s1", "hi")

	state := h.send("s1", "zzz")
	assert.NotNil(t, state)
	assert.Equal(t, pos("main.flow", "menu"), h.position("s1"))
	assert.Equal(t, []string{"menu"}, h.values(), "staying does not re-enter the node")

	h.send("s1", "b")
	assert.Equal(t, pos("main.flow", "b"), h.position("s1"))
	h.noErrors()
}

func TestDispatch_FirstTrueEdgeWins(t *testing.T) {
	b := dsl.New()
	b.Flow("main").
		Node("start").Wait().
		Branch(`length(event.text) > 2`, "long").
		Branch(`true`, "short").
		Node("long").Wait().
		Node("short").Wait()

	h := newHarness(t, b)
	h.send("s1", "hi")
	h.send("s1", "hello")
	assert.Equal(t, pos("main.flow", "long"), h.position("s1"))

	h.send("s2", "hi")
	h.send("s2", "yo")
	assert.Equal(t, pos("main.flow", "short"), h.position("s2"))
}

func TestDispatch_EndIsCaseInsensitive(t *testing.T) {
	for _, target := range []string{"end", "END", "End"} {
		t.Run(target, func(t *testing.T) {
			b := dsl.New()
			b.Flow("main").Node("a").Wait().Go(target)

			h := newHarness(t, b)
			h.send("s1", "hi")

			assert.Nil(t, h.send("s1", "bye"))
			assert.True(t, h.position("s1").IsZero())
		})
	}
}

func TestDispatch_UnknownNodeEndsFlow(t *testing.T) {
	b := dsl.New()
	b.Flow("main").Node("a").Go("ghost")

	h := newHarness(t, b)
	assert.Nil(t, h.send("s1", "hi"))
	assert.True(t, h.position("s1").IsZero())
	h.noErrors()
}

func TestDispatch_UnknownSubflowFails(t *testing.T) {
	b := dsl.New()
	b.Flow("main").Node("a").Wait().Go("ghost.flow")

	h := newHarness(t, b)
	h.send("s1", "hi")
	h.send("s1", "go")

	errs := h.errors()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], domain.ErrFlowNotFound)
	assert.Equal(t, pos("main.flow", "a"), h.position("s1"))
}

func subflowFlows() *dsl.Builder {
	b := dsl.New()
	b.Flow("main").
		Node("menu").Say("#text", "menu").Wait().
		Branch(`event.text == "pay"`, "billing.flow @ card").
		Branch(`event.text == "help"`, "help.flow").
		Node("thanks").Say("#text", "thanks").Wait()

	b.Flow("billing").
		Node("intro").Say("#text", "billing intro").Wait().
		Node("card").Say("#text", "card number?").Wait().
		Branch(`event.text == "cancel"`, "#").
		Go("#thanks")

	b.Flow("help").
		Node("topics").Say("#text", "topics").Wait().Go("#")
	return b
}

func TestDispatch_SubflowAtNodeThenReturn(t *testing.T) {
	h := newHarness(t, subflowFlows())

	h.send("s1", "hi")
	h.send("s1", "pay")
	assert.Equal(t, pos("billing.flow", "card"), h.position("s1"))
	assert.Equal(t, []domain.StackEntry{
		{Flow: "main.flow", Node: "menu"},
		{Flow: "billing.flow", Node: "card"},
	}, h.sessionContext("s1").FlowStack)

	h.send("s1", "cancel")
	assert.Equal(t, pos("main.flow", "menu"), h.position("s1"))
	assert.Equal(t, []domain.StackEntry{{Flow: "main.flow", Node: "menu"}}, h.sessionContext("s1").FlowStack)

	assert.Equal(t, []string{"menu", "card number?", "menu"}, h.values())
	h.noErrors()
}

func TestDispatch_SubflowStartNodeAndReturnToNode(t *testing.T) {
	h := newHarness(t, subflowFlows())

	h.send("s1", "hi")
	h.send("s1", "help")
	assert.Equal(t, pos("help.flow", "topics"), h.position("s1"))

	h.send("s1", "ok")
	assert.Equal(t, pos("main.flow", "menu"), h.position("s1"))

	h.send("s1", "pay")
	h.send("s1", "4111")
	assert.Equal(t, pos("main.flow", "thanks"), h.position("s1"))
	h.noErrors()
}

func TestDispatch_ReturnWithoutCallerEndsFlow(t *testing.T) {
	b := dsl.New()
	b.Flow("main").Node("a").Wait().Go("#")

	h := newHarness(t, b)
	h.send("s1", "hi")

	assert.Nil(t, h.send("s1", "back"))
	assert.True(t, h.position("s1").IsZero())
	h.noErrors()
}

func TestDispatch_SkillCall(t *testing.T) {
	b := dsl.New()
	b.Flow("main").
		Node("call").SkillCall("billing.flow").Go("done").
		Node("done").Say("#text", "done").Wait()
	b.Flow("billing").
		Node("invoice").Say("#text", "invoice").Wait().Go("#")

	h := newHarness(t, b)

	h.send("s1", "hi")
	assert.Equal(t, pos("billing.flow", "invoice"), h.position("s1"))

	h.send("s1", "paid")
	assert.Equal(t, pos("main.flow", "done"), h.position("s1"))
	assert.Equal(t, []string{"invoice", "done"}, h.values())
	h.noErrors()
}

func TestDispatch_StackOverflow(t *testing.T) {
	b := dsl.New()
	b.Flow("ping").Node("n").Go("pong.flow")
	b.Flow("pong").Node("n").Go("ping.flow")

	h := newHarness(t, b, WithDefaultFlow("ping.flow"))
	state := h.send("s1", "hi")

	assert.NotNil(t, state)
	errs := h.errors()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], domain.ErrStackOverflow)
}

func TestDispatch_DispatchLoop(t *testing.T) {
	b := dsl.New()
	b.Flow("main").
		Node("a").Go("b").
		Node("b").Go("a")

	h := newHarness(t, b)
	h.send("s1", "hi")

	errs := h.errors()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], domain.ErrDispatchLoop)
}

func TestDispatch_CatchAll(t *testing.T) {
	b := dsl.New()
	b.Flow("main").
		CatchAll("count").
		CatchAllBranch(`event.text == "help"`, "help.flow").
		Node("menu").Say("#text", "menu").Wait().
		Do("seen", nil).
		Branch(`event.text == "never"`, "menu")
	b.Flow("help").Node("h").Say("#text", "help").Wait()

	h := newHarness(t, b)
	h.action("count", func(_ context.Context, s domain.State, _ domain.Event, _ map[string]any) (any, error) {
		n, _ := s["count"].(float64)
		return domain.State{"count": n + 1, "seen": s["seen"]}, nil
	})
	h.action("seen", func(_ context.Context, s domain.State, _ domain.Event, _ map[string]any) (any, error) {
		return domain.State{"count": s["count"], "seen": true}, nil
	})

	state := h.send("s1", "hi")
	assert.Equal(t, float64(1), state["count"])

	state = h.send("s1", "hello")
	assert.Equal(t, float64(2), state["count"])
	assert.Equal(t, true, state["seen"])

	state = h.send("s1", "help")
	assert.Equal(t, float64(3), state["count"])
	assert.Equal(t, pos("help.flow", "h"), h.position("s1"))
	assert.Equal(t, []string{"menu", "help"}, h.values())

	// The catch-all result is persisted.
	raw, err := h.state.Get(h.ctx, "s1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":3,"seen":true}`, string(raw))
	h.noErrors()
}

func TestDispatch_MalformedCondition(t *testing.T) {
	b := dsl.New()
	b.Flow("main").Node("a").Wait().Branch(`state.x ==`, "b").Node("b").Wait()

	h := newHarness(t, b)
	h.send("s1", "hi")
	h.send("s1", "go")

	errs := h.errors()
	require.Len(t, errs, 1)
	var evalErr *condition.EvalError
	assert.ErrorAs(t, errs[0], &evalErr)
	assert.Equal(t, pos("main.flow", "a"), h.position("s1"))
}

func TestDispatch_ConditionSeesStateAndActions(t *testing.T) {
	b := dsl.New()
	b.Flow("main").
		Node("a").Do("login", nil).Wait().
		Branch(`isAdmin() && s.role == "admin"`, "admin").
		Go("user").
		Node("admin").Wait().
		Node("user").Wait()

	h := newHarness(t, b)
	h.action("login", func(context.Context, domain.State, domain.Event, map[string]any) (any, error) {
		return domain.State{"role": "admin"}, nil
	})
	h.action("isAdmin", func(_ context.Context, s domain.State, _ domain.Event, _ map[string]any) (any, error) {
		return s["role"] == "admin", nil
	})

	h.send("s1", "hi")
	h.send("s1", "go")
	assert.Equal(t, pos("main.flow", "admin"), h.position("s1"))
	h.noErrors()
}

func TestDispatch_BeforeNodeEnterHook(t *testing.T) {
	h := newHarness(t, subflowFlows())

	var entered []string
	h.engine.OnBeforeNodeEnter(func(_ context.Context, c *hooks.NodeEnterContext) error {
		entered = append(entered, c.Flow+"/"+c.Node)
		return nil
	})

	h.send("s1", "hi")
	h.send("s1", "pay")
	h.send("s1", "cancel")

	assert.Equal(t, []string{"main.flow/menu", "billing.flow/card", "main.flow/menu"}, entered)
}

func TestDispatch_SameFlowWalkKeepsOneStackEntry(t *testing.T) {
	b := dsl.New()
	b.Flow("main").
		Node("one").Say("#text", "1").Go("two").
		Node("two").Say("#text", "2").Go("three").
		Node("three").Say("#text", "3").Wait()

	h := newHarness(t, b)
	h.send("s1", "hi")

	assert.Equal(t, []string{"1", "2", "3"}, h.values())
	assert.Equal(t, []domain.StackEntry{{Flow: "main.flow", Node: "three"}}, h.sessionContext("s1").FlowStack)
	h.noErrors()
}

func TestDispatch_HooksAndOutputsSeeStateCopies(t *testing.T) {
	b := dsl.New()
	b.Flow("main").
		Node("mark").Do("mark", nil).Go("show").
		Node("show").Say("#text", "marked").Wait()

	h := newHarness(t, b)
	h.action("mark", func(ctx context.Context, state domain.State, event domain.Event, args map[string]any) (any, error) {
		return domain.State{"marked": true}, nil
	})
	h.engine.OnBeforeNodeEnter(func(_ context.Context, c *hooks.NodeEnterContext) error {
		if c.State != nil {
			c.State["hook"] = true
		}
		return nil
	})
	h.engine.RegisterOutputProcessor(output.ProcessorFunc{
		Name: "mutator",
		Fn: func(_ context.Context, o output.Output) error {
			o.State["output"] = true
			return nil
		},
	})

	state := h.send("s1", "hi")
	assert.Equal(t, domain.State{"marked": true}, state)
	h.noErrors()
}

func TestPush_StackLimit(t *testing.T) {
	e := NewEngine(nil, nil)
	t1 := &turn{sctx: &domain.SessionContext{}}

	flows := []string{"a.flow", "b.flow"}
	for i := 0; i < domain.MaxStackSize; i++ {
		require.NoError(t, e.push(t1, domain.StackEntry{Flow: flows[i%2], Node: "n"}))
	}
	assert.Len(t, t1.sctx.FlowStack, domain.MaxStackSize)

	// Same flow as the top entry: compacted, still within the limit.
	require.NoError(t, e.push(t1, domain.StackEntry{Flow: flows[(domain.MaxStackSize-1)%2], Node: "m"}))
	assert.Len(t, t1.sctx.FlowStack, domain.MaxStackSize)

	err := e.push(t1, domain.StackEntry{Flow: flows[domain.MaxStackSize%2], Node: "n"})
	assert.ErrorIs(t, err, domain.ErrStackOverflow)
	assert.Len(t, t1.sctx.FlowStack, domain.MaxStackSize, "a failed push leaves the stack unchanged")
}

func TestCompact(t *testing.T) {
	in := []domain.StackEntry{
		{Flow: "a", Node: "1"},
		{Flow: "a", Node: "2"},
		{Flow: "b", Node: "1"},
		{Flow: "b", Node: "2"},
		{Flow: "a", Node: "3"},
	}
	assert.Equal(t, []domain.StackEntry{
		{Flow: "a", Node: "2"},
		{Flow: "b", Node: "2"},
		{Flow: "a", Node: "3"},
	}, compact(in))
	assert.Empty(t, compact(nil))
}
