package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStateStoreContract runs a suite of tests to verify that a StateStore implementation
// adheres to the defined interface contract.
func RunStateStoreContract(t *testing.T, store StateStore) {
	ctx := context.Background()
	key := "contract-test-" + time.Now().Format("20060102150405")

	t.Run("Set and Get", func(t *testing.T) {
		err := store.Set(ctx, key, []byte(`{"foo":"bar"}`))
		require.NoError(t, err, "Set should not return error")

		got, err := store.Get(ctx, key)
		require.NoError(t, err, "Get should not return error")
		assert.JSONEq(t, `{"foo":"bar"}`, string(got))
	})

	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, key, []byte(`{"v":1}`)))
		require.NoError(t, store.Set(ctx, key, []byte(`{"v":2}`)))

		got, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":2}`, string(got))
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := store.Get(ctx, "non-existent-"+key)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, key, []byte(`{}`)))

		err := store.Delete(ctx, key)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Get(ctx, key)
		assert.ErrorIs(t, err, domain.ErrNotFound, "Get after Delete should return ErrNotFound")
	})

	t.Run("Delete Non-Existent", func(t *testing.T) {
		assert.NoError(t, store.Delete(ctx, "never-written-"+key))
	})

	t.Run("Keys Are Independent", func(t *testing.T) {
		stateKey := key + "-session"
		contextKey := stateKey + domain.ContextKeySuffix
		require.NoError(t, store.Set(ctx, stateKey, []byte(`{"s":1}`)))
		require.NoError(t, store.Set(ctx, contextKey, []byte(`{"c":1}`)))

		require.NoError(t, store.Delete(ctx, contextKey))

		got, err := store.Get(ctx, stateKey)
		require.NoError(t, err, "deleting the context must keep the state")
		assert.JSONEq(t, `{"s":1}`, string(got))
	})
}

// RunFlowStoreContract verifies that a FlowStore returns exactly the expected flows.
func RunFlowStoreContract(t *testing.T, store FlowStore, want []domain.Flow) {
	t.Helper()
	ctx := context.Background()

	flows, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, flows, len(want))

	byID := make(map[string]domain.Flow, len(flows))
	for _, f := range flows {
		byID[f.ID] = f
	}

	for _, w := range want {
		got, ok := byID[w.ID]
		if !assert.True(t, ok, "flow %s missing", w.ID) {
			continue
		}
		assert.Equal(t, w.StartNode, got.StartNode, "start node of %s", w.ID)
		assert.Len(t, got.Nodes, len(w.Nodes), "nodes of %s", w.ID)
		for _, n := range w.Nodes {
			gotNode := (&got).Node(n.ID)
			if assert.NotNil(t, gotNode, "node %s/%s missing", w.ID, n.ID) {
				assert.Equal(t, n.Next, gotNode.Next, "edges of %s/%s", w.ID, n.ID)
			}
		}
	}
}
