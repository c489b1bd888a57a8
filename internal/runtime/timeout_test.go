package runtime

import (
	"context"
	"testing"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/dsl"
	"github.com/aretw0/parley/pkg/hooks"
	"github.com/stretchr/testify/assert"
)

func TestTimeout_Escalation(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *dsl.Builder)
		want  domain.Position
		say   string
	}{
		{
			name: "node timeout",
			build: func(b *dsl.Builder) {
				main := b.Flow("main").Timeout("flow_t")
				main.Node("wait").Wait().Timeout("node_t")
				main.Node("node_t").Say("#text", "node timeout").Wait()
				main.Node("flow_t").Say("#text", "flow timeout").Wait()
				main.Node("timeout").Say("#text", "timeout node").Wait()
				b.Flow("timeout").Node("t").Say("#text", "timeout flow").Wait()
			},
			want: pos("main.flow", "node_t"),
			say:  "node timeout",
		},
		{
			name: "flow timeout",
			build: func(b *dsl.Builder) {
				main := b.Flow("main").Timeout("flow_t")
				main.Node("wait").Wait()
				main.Node("flow_t").Say("#text", "flow timeout").Wait()
				main.Node("timeout").Say("#text", "timeout node").Wait()
				b.Flow("timeout").Node("t").Say("#text", "timeout flow").Wait()
			},
			want: pos("main.flow", "flow_t"),
			say:  "flow timeout",
		},
		{
			name: "timeout node",
			build: func(b *dsl.Builder) {
				main := b.Flow("main")
				main.Node("wait").Wait()
				main.Node("timeout").Say("#text", "timeout node").Wait()
				b.Flow("timeout").Node("t").Say("#text", "timeout flow").Wait()
			},
			want: pos("main.flow", "timeout"),
			say:  "timeout node",
		},
		{
			name: "timeout flow",
			build: func(b *dsl.Builder) {
				b.Flow("main").Node("wait").Wait()
				b.Flow("timeout").Node("t").Say("#text", "timeout flow").Wait()
			},
			want: pos("timeout.flow", "t"),
			say:  "timeout flow",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := dsl.New()
			tt.build(b)

			h := newHarness(t, b)
			h.send("s1", "hi")

			state := h.timeout("s1")
			assert.NotNil(t, state)
			assert.Equal(t, tt.want, h.position("s1"))
			assert.Equal(t, []string{tt.say}, h.values())
			h.noErrors()
		})
	}
}

func TestTimeout_NothingEndsFlow(t *testing.T) {
	b := dsl.New()
	b.Flow("main").Node("wait").Wait()

	h := newHarness(t, b)
	h.send("s1", "hi")

	assert.Nil(t, h.timeout("s1"))
	assert.True(t, h.position("s1").IsZero())
	h.noErrors()
}

func TestTimeout_SkipsCatchAllAndHooks(t *testing.T) {
	b := dsl.New()
	main := b.Flow("main").CatchAll("count")
	main.Node("wait").Wait().Timeout("late")
	main.Node("late").Say("#text", "too late").Wait()

	h := newHarness(t, b)
	calls := 0
	h.action("count", func(context.Context, domain.State, domain.Event, map[string]any) (any, error) {
		calls++
		return nil, nil
	})

	var seen []hooks.TimeoutContext
	h.engine.OnBeforeTimeout(func(_ context.Context, c *hooks.TimeoutContext) error {
		seen = append(seen, *c)
		return nil
	})

	h.send("s1", "hi")
	h.timeout("s1")

	assert.Equal(t, 1, calls, "catch-all does not run on timeouts")
	assert.Equal(t, []hooks.TimeoutContext{{
		SessionID: "s1",
		Flow:      "main.flow",
		Node:      "wait",
		Event:     domain.Event{Type: domain.EventTimeout},
	}}, seen)
}
