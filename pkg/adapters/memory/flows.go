package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/parley/pkg/domain"
)

// FlowStore implements ports.FlowStore and ports.Watchable over an in-memory set.
// Replace swaps the set and notifies watchers, which makes it useful for tests and embedding.
type FlowStore struct {
	mu       sync.RWMutex
	flows    []domain.Flow
	watchers []chan string
}

// NewFlowStore creates a store holding the given flows.
func NewFlowStore(flows ...domain.Flow) *FlowStore {
	return &FlowStore{flows: cloneFlows(flows)}
}

// LoadAll returns a copy of the current flow set.
func (s *FlowStore) LoadAll(ctx context.Context) ([]domain.Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{}, len(s.flows))
	for _, f := range s.flows {
		if _, dup := seen[f.ID]; dup {
			return nil, fmt.Errorf("duplicate flow id %q", f.ID)
		}
		seen[f.ID] = struct{}{}
	}
	return cloneFlows(s.flows), nil
}

// Replace swaps the flow set and signals every watcher.
func (s *FlowStore) Replace(flows ...domain.Flow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows = cloneFlows(flows)

	for _, w := range s.watchers {
		select {
		case w <- "*":
		default:
			// A pending signal already covers this change.
		}
	}
}

// Watch implements ports.Watchable.
func (s *FlowStore) Watch(ctx context.Context) (<-chan string, error) {
	ch := make(chan string, 1)

	s.mu.Lock()
	s.watchers = append(s.watchers, ch)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, w := range s.watchers {
			if w == ch {
				s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
				break
			}
		}
		close(ch)
	}()

	return ch, nil
}

func cloneFlows(src []domain.Flow) []domain.Flow {
	out := make([]domain.Flow, len(src))
	for i, f := range src {
		out[i] = f
		out[i].Nodes = append([]domain.Node(nil), f.Nodes...)
	}
	return out
}
