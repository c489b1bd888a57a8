package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/dsl"
	"github.com/aretw0/parley/pkg/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	b := dsl.New()
	b.Flow("main").
		Timeout("idle").
		Node("ask").Say("#text", "Name?").Wait().Go("greet").
		Node("greet").Say("#text", "Hi!").End().
		Node("idle").Say("#text", "Still there?").Wait().Go("ask")
	b.Flow("help").
		Node("topics").Say("#text", "Topics").Wait().Go("#")
	flows, err := b.Build()
	require.NoError(t, err)

	engine, err := parley.New("", parley.WithFlowStore(flows))
	require.NoError(t, err)
	return NewServer(engine, session.NewManager(engine.StateStore()), nil)
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return tc.Text
}

func TestSendMessage(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	args := map[string]any{"session_id": "a1", "text": "hello"}
	resp, err := s.handleSendMessage(ctx, call(args), args)
	require.NoError(t, err)
	assert.Equal(t, []domain.Message{{Type: "#text", Value: "Name?"}}, resp.Messages)
	assert.Equal(t, domain.Position{Flow: "main.flow", Node: "ask"}, resp.Position)

	args = map[string]any{"session_id": "a1"}
	resp, err = s.handleSendTimeout(ctx, call(args), args)
	require.NoError(t, err)
	assert.Equal(t, []domain.Message{{Type: "#text", Value: "Still there?"}}, resp.Messages)

	args = map[string]any{"session_id": "a1", "text": "back"}
	resp, err = s.handleSendMessage(ctx, call(args), args)
	require.NoError(t, err)
	assert.Equal(t, "Name?", resp.Messages[0].Value)

	args = map[string]any{"session_id": "a1", "text": "Ana"}
	resp, err = s.handleSendMessage(ctx, call(args), args)
	require.NoError(t, err)
	assert.True(t, resp.Ended)
	assert.Nil(t, resp.State)
}

func TestSendMessage_Rejected(t *testing.T) {
	s := newTestServer(t)

	args := map[string]any{"session_id": "a1", "text": "bad \xff utf8"}
	_, err := s.handleSendMessage(context.Background(), call(args), args)
	assert.ErrorContains(t, err, "input rejected")

	args = map[string]any{"text": "hi"}
	_, err = s.handleSendMessage(context.Background(), call(args), args)
	assert.ErrorContains(t, err, "session_id is required")
}

func TestJumpAndEnd(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	res, err := s.handleJumpTo(ctx, call(map[string]any{"session_id": "j1", "flow": "help.flow"}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))

	var pos domain.Position
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &pos))
	assert.Equal(t, domain.Position{Flow: "help.flow", Node: "topics"}, pos)

	res, err = s.handleJumpTo(ctx, call(map[string]any{"session_id": "j1", "flow": "ghost.flow"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "flow not found")

	res, err = s.handleEndFlow(ctx, call(map[string]any{"session_id": "j1"}))
	require.NoError(t, err)
	assert.Equal(t, "ended", text(t, res))

	res, err = s.handleGetPosition(ctx, call(map[string]any{"session_id": "j1"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"flow":"","node":""}`, text(t, res))
}

func TestFlowsJSON(t *testing.T) {
	s := newTestServer(t)

	out, err := s.flowsJSON(context.Background())
	require.NoError(t, err)

	var flows []domain.Flow
	require.NoError(t, json.Unmarshal([]byte(out), &flows))
	assert.Len(t, flows, 2)
	assert.NotNil(t, s.MCPServer())
}
