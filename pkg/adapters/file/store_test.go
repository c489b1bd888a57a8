package file_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aretw0/parley/pkg/adapters/file"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_Contract(t *testing.T) {
	store := file.New(t.TempDir())
	ports.RunStateStoreContract(t, store)
}

func TestFileStore_Layout(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "s1___context", []byte(`{}`)))
	assert.FileExists(t, filepath.Join(dir, "s1___context.json"))

	matches, err := filepath.Glob(filepath.Join(dir, "tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, matches, "temp files must not survive a write")
}

func TestFileStore_RejectsTraversal(t *testing.T) {
	store := file.New(t.TempDir())
	ctx := context.Background()

	assert.Error(t, store.Set(ctx, "../escape", []byte(`{}`)))
	_, err := store.Get(ctx, "")
	assert.Error(t, err)
}
