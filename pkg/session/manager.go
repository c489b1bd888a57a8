package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed lock outlives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// Processor runs one dialog turn. *parley.Engine satisfies it.
type Processor interface {
	ProcessMessage(ctx context.Context, sessionID string, event domain.Event) domain.State
}

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates session access, ensuring safe concurrent operations.
// It uses reference counting to garbage collect unused locks.
type Manager struct {
	store ports.StateStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the expiry of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a new session manager over the engine's state store.
func NewManager(store ports.StateStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller must lock entry.mu and call release(sessionID) after unlocking.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// Process runs one turn of sessionID while holding the session lock.
// A nil state means the flow ended.
func (m *Manager) Process(ctx context.Context, p Processor, sessionID string, event domain.Event) (domain.State, error) {
	var state domain.State
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		state = p.ProcessMessage(ctx, sessionID, event)
		return nil
	})
	return state, err
}

// State reads the persisted state of a session. Unknown sessions yield an empty state.
func (m *Manager) State(ctx context.Context, sessionID string) (domain.State, error) {
	var state domain.State
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		raw, err := m.store.Get(ctx, sessionID)
		if errors.Is(err, domain.ErrNotFound) {
			state = domain.State{}
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load session state: %w", err)
		}
		if err := json.Unmarshal(raw, &state); err != nil {
			return fmt.Errorf("failed to decode session state: %w", err)
		}
		if state == nil {
			state = domain.State{}
		}
		return nil
	})
	return state, err
}

// Reset forgets a session: both its state and its dialog context are removed.
func (m *Manager) Reset(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		if err := m.store.Delete(ctx, sessionID+domain.ContextKeySuffix); err != nil {
			return fmt.Errorf("failed to delete session context: %w", err)
		}
		if err := m.store.Delete(ctx, sessionID); err != nil {
			return fmt.Errorf("failed to delete session state: %w", err)
		}
		return nil
	})
}

// Store returns the underlying state store.
func (m *Manager) Store() ports.StateStore {
	return m.store
}

// WithLock executes a function while holding the lock for the session.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
