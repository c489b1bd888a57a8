package dsl

import (
	"context"
	"testing"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_SimpleFlow(t *testing.T) {
	b := New()

	main := b.Flow("main")
	main.Node("ask_name").
		Say("#text", "What is your name?").
		Wait().
		Do("remember", map[string]any{"name": "{{event.text}}"}).
		Go("greet")

	main.Node("greet").
		Say("#text", "Nice to meet you!").
		End()

	store, err := b.Build()
	require.NoError(t, err)

	flows, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, flows, 1)

	f := flows[0]
	assert.Equal(t, "main.flow", f.ID)
	assert.Equal(t, "ask_name", f.StartNode)

	ask := f.Node("ask_name")
	require.NotNil(t, ask)
	assert.Equal(t, []string{"say #text What is your name?"}, ask.OnEnter)
	assert.Equal(t, []string{`remember {"name":"{{event.text}}"}`}, ask.OnReceive)
	assert.True(t, ask.Waits())
	assert.Equal(t, []domain.Edge{{Node: "greet"}}, ask.Next)

	greet := f.Node("greet")
	require.NotNil(t, greet)
	assert.False(t, greet.Waits())
	assert.Equal(t, "end", greet.Next[0].Node)
}

func TestBuilder_MultipleFlows(t *testing.T) {
	b := New()

	b.Flow("main.flow").
		CatchAll("track").
		CatchAllBranch(`e.text == "help"`, "help.flow").
		Timeout("bye").
		Node("start").SkillCall("billing.flow").Go("bye").
		Node("bye").Say("#text", "Bye").End()

	b.Flow("billing").Start("invoice").
		Node("invoice").Wait().Return("")

	b.Flow("help").Node("menu").Return("start")

	flows := b.Flows()
	require.Len(t, flows, 3)

	main := flows[0]
	require.NotNil(t, main.CatchAll)
	assert.Equal(t, []string{"track"}, main.CatchAll.OnReceive)
	assert.Equal(t, "help.flow", main.CatchAll.Next[0].Node)
	assert.Equal(t, "bye", main.TimeoutNode)
	assert.True(t, main.Nodes[0].IsSkillCall())

	assert.Equal(t, "#", flows[1].Nodes[0].Next[0].Node)
	assert.Equal(t, "#start", flows[2].Nodes[0].Next[0].Node)

	_, err := b.Build()
	assert.NoError(t, err)
}

func TestBuilder_InvalidFlow(t *testing.T) {
	b := New()
	b.Flow("main").Start("ghost").Node("a")

	_, err := b.Build()
	assert.ErrorContains(t, err, "start node 'ghost' does not exist")
}
