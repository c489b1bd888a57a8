package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/adapters/redis"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/session"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counter is a Processor performing an unsynchronized read-modify-write,
// which loses updates unless turns of a session are serialized.
type counter struct {
	store ports.StateStore
}

func (c *counter) ProcessMessage(ctx context.Context, sessionID string, _ domain.Event) domain.State {
	n := 0
	if raw, err := c.store.Get(ctx, sessionID); err == nil {
		n = int(raw[0])
	}
	time.Sleep(time.Millisecond)
	_ = c.store.Set(ctx, sessionID, []byte{byte(n + 1)})
	return domain.State{"n": n + 1}
}

func TestManager_SerializesTurns(t *testing.T) {
	store := memory.NewStore()
	mgr := session.NewManager(store)
	proc := &counter{store: store}
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := mgr.Process(ctx, proc, "race-test", domain.Event{Type: domain.EventText})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	raw, err := store.Get(ctx, "race-test")
	require.NoError(t, err)
	assert.Equal(t, byte(50), raw[0])
}

func TestManager_StateAndReset(t *testing.T) {
	store := memory.NewStore()
	mgr := session.NewManager(store)
	ctx := context.Background()

	state, err := mgr.State(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, state)

	require.NoError(t, store.Set(ctx, "s1", []byte(`{"name":"Ana"}`)))
	require.NoError(t, store.Set(ctx, "s1___context", []byte(`{"flow":"main.flow"}`)))

	state, err = mgr.State(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.State{"name": "Ana"}, state)

	require.NoError(t, mgr.Reset(ctx, "s1"))
	assert.Empty(t, store.Keys())
}

type failingLocker struct{}

func (failingLocker) Lock(context.Context, string, time.Duration) (ports.UnlockFunc, error) {
	return nil, errors.New("lock service down")
}

func TestManager_LockerFailure(t *testing.T) {
	store := memory.NewStore()
	mgr := session.NewManager(store, session.WithLocker(failingLocker{}))
	proc := &counter{store: store}

	_, err := mgr.Process(context.Background(), proc, "s1", domain.Event{})
	assert.ErrorContains(t, err, "lock service down")
	assert.Empty(t, store.Keys(), "the turn must not run without the lock")
}

func TestManager_DistributedLock(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	defer client.Close()

	store := redis.NewFromClient(client)
	locker := redis.NewLocker(client, "parley:")

	// Two managers share the Redis state store, as two replicas would.
	a := session.NewManager(store, session.WithLocker(locker), session.WithLockTTL(5*time.Second))
	b := session.NewManager(store, session.WithLocker(locker), session.WithLockTTL(5*time.Second))
	proc := &counter{store: store}
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := a.Process(ctx, proc, "shared", domain.Event{})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := b.Process(ctx, proc, "shared", domain.Event{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	raw, err := store.Get(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, byte(20), raw[0])
}
