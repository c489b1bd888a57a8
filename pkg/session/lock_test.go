package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/stretchr/testify/assert"
)

func TestManager_LockLifecycle(t *testing.T) {
	mgr := NewManager(memory.NewStore())
	ctx := context.Background()
	count := 10000

	for i := 0; i < count; i++ {
		sid := fmt.Sprintf("session-%d", i)
		_, _ = mgr.State(ctx, sid)
		_ = mgr.Reset(ctx, sid)
	}

	assert.Empty(t, mgr.locks, "locks must be released once unused")
}
