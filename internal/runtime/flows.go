package runtime

import (
	"context"
	"fmt"
	"sort"

	"github.com/aretw0/parley/internal/validator"
	"github.com/aretw0/parley/pkg/domain"
)

// flowSet is an immutable snapshot of the loaded flows.
type flowSet struct {
	byID map[string]*domain.Flow
	ids  []string
}

func newFlowSet(flows []domain.Flow) *flowSet {
	s := &flowSet{byID: make(map[string]*domain.Flow, len(flows))}
	for i := range flows {
		f := flows[i]
		s.byID[f.ID] = &f
		s.ids = append(s.ids, f.ID)
	}
	sort.Strings(s.ids)
	return s
}

func (s *flowSet) get(id string) *domain.Flow {
	return s.byID[id]
}

// ReloadFlows replaces the cached flow set. Concurrent turns observe either the
// previous complete set or the new one. On error the previous set is kept.
func (e *Engine) ReloadFlows(ctx context.Context) error {
	e.loadMu.Lock()
	defer e.loadMu.Unlock()

	_, err := e.load(ctx)
	return err
}

func (e *Engine) load(ctx context.Context) (*flowSet, error) {
	flows, err := e.flowStore.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load flows: %w", err)
	}

	if e.validate {
		if err := validator.Validate(flows); err != nil {
			return nil, fmt.Errorf("invalid flows: %w", err)
		}
	}

	set := newFlowSet(flows)
	e.flows.Store(set)
	e.logger.Debug("flows loaded", "count", len(set.ids))
	return set, nil
}

// loadedFlows returns the cached flow set, loading it on first use or after invalidation.
func (e *Engine) loadedFlows(ctx context.Context) (*flowSet, error) {
	if set := e.flows.Load(); set != nil {
		return set, nil
	}

	e.loadMu.Lock()
	defer e.loadMu.Unlock()

	if set := e.flows.Load(); set != nil {
		return set, nil
	}
	return e.load(ctx)
}

// Flows returns the loaded flows sorted by id.
func (e *Engine) Flows(ctx context.Context) ([]domain.Flow, error) {
	set, err := e.loadedFlows(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Flow, 0, len(set.ids))
	for _, id := range set.ids {
		out = append(out, *set.byID[id])
	}
	return out, nil
}
