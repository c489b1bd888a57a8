package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/adapters/file"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mainYAML = `
startNode: greet
nodes:
  - id: greet
    onEnter: say text Hello!
    onReceive: []
    next:
      - condition: event.text == "help"
        node: help.flow
      - node: end
`

const helpJSON = `{
  "id": "help.flow",
  "startNode": "menu",
  "nodes": [
    {"id": "menu", "onEnter": ["say text How can I help?"], "next": [{"node": "#"}]}
  ]
}`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFlowStore_LoadAll(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.yaml", mainYAML)
	writeFile(t, dir, "nested/help.json", helpJSON)
	writeFile(t, dir, "README.md", "ignored")

	want := []domain.Flow{
		{
			ID:        "main.flow",
			StartNode: "greet",
			Nodes: []domain.Node{{
				ID: "greet",
				Next: []domain.Edge{
					{Condition: `event.text == "help"`, Node: "help.flow"},
					{Node: "end"},
				},
			}},
		},
		{
			ID:        "help.flow",
			StartNode: "menu",
			Nodes:     []domain.Node{{ID: "menu", Next: []domain.Edge{{Node: "#"}}}},
		},
	}

	store := file.NewFlowStore(dir)
	ports.RunFlowStoreContract(t, store, want)

	flows, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	for _, f := range flows {
		if f.ID == "main.flow" {
			assert.True(t, f.Nodes[0].Waits())
			assert.Equal(t, []string{"say text Hello!"}, f.Nodes[0].OnEnter)
		}
	}
}

func TestFlowStore_MultiFlowDocument(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bundle.yml", `
flows:
  - id: a.flow
    startNode: x
    nodes: [{id: x}]
  - id: b.flow
    startNode: y
    nodes: [{id: y}]
`)

	flows, err := file.NewFlowStore(dir).LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, flows, 2)
	assert.Equal(t, "a.flow", flows[0].ID)
	assert.Equal(t, "b.flow", flows[1].ID)
}

func TestFlowStore_Collision(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.yaml", mainYAML)
	writeFile(t, dir, "main.json", `{"startNode":"a","nodes":[{"id":"a"}]}`)

	_, err := file.NewFlowStore(dir).LoadAll(context.Background())
	assert.ErrorContains(t, err, "collision")
}

func TestFlowStore_SkipsNonFlowDocuments(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.yaml", mainYAML)
	writeFile(t, dir, "tools.yaml", "tools:\n  - name: lookup\n    command: ./lookup.sh\n")

	flows, err := file.NewFlowStore(dir).LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, flows, 1)
	assert.Equal(t, "main.flow", flows[0].ID)
}

func TestFlowStore_InvalidDocument(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.yaml", "nodes: [unclosed")

	_, err := file.NewFlowStore(dir).LoadAll(context.Background())
	assert.ErrorContains(t, err, "broken.yaml")
}

func TestFlowStore_Watch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.yaml", mainYAML)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := file.NewFlowStore(dir)
	ch, err := store.Watch(ctx)
	require.NoError(t, err)

	writeFile(t, dir, "main.yaml", mainYAML+"\n# edited\n")

	select {
	case id := <-ch:
		assert.Equal(t, "main.yaml", id)
	case <-time.After(3 * time.Second):
		t.Fatal("expected a change notification")
	}
}
