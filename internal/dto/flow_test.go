package dto_test

import (
	"testing"

	"github.com/aretw0/parley/internal/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFlow(t *testing.T) {
	raw := map[string]any{
		"startNode": "ask",
		"nodes": []any{
			map[string]any{
				"id":        "ask",
				"onEnter":   "say text What is your name?",
				"onReceive": []any{},
				"next": []any{
					map[string]any{"condition": "true", "node": "end"},
				},
			},
			map[string]any{
				"id":   "help",
				"type": "skill-call",
				"flow": "help.flow",
			},
		},
	}

	flow, err := dto.DecodeFlow(raw, "support/main.yaml")
	require.NoError(t, err)

	assert.Equal(t, "support/main.flow", flow.ID)
	assert.Equal(t, "ask", flow.StartNode)
	require.Len(t, flow.Nodes, 2)

	ask := flow.Nodes[0]
	assert.Equal(t, []string{"say text What is your name?"}, ask.OnEnter, "single string should widen to a list")
	assert.True(t, ask.Waits(), "empty onReceive still waits")
	assert.Equal(t, "end", ask.Next[0].Node)

	help := flow.Nodes[1]
	assert.False(t, help.Waits())
	assert.True(t, help.IsSkillCall())
}

func TestDecodeFlow_KeepsExplicitID(t *testing.T) {
	flow, err := dto.DecodeFlow(map[string]any{
		"id":        "custom.flow",
		"startNode": "a",
		"nodes":     []any{map[string]any{"id": "a"}},
	}, "file.yaml")
	require.NoError(t, err)
	assert.Equal(t, "custom.flow", flow.ID)
}

func TestFlowID(t *testing.T) {
	assert.Equal(t, "main.flow", dto.FlowID("main.yaml"))
	assert.Equal(t, "main.flow", dto.FlowID("main.flow"))
	assert.Equal(t, "main.flow", dto.FlowID("main.flow.json"))
	assert.Equal(t, "a/b.flow", dto.FlowID("a/b"))
}
