package loam

import (
	"context"
	"fmt"

	"github.com/aretw0/loam"
	"github.com/aretw0/parley/internal/dto"
	"github.com/aretw0/parley/pkg/domain"
)

// FlowStore adapts a Loam repository to ports.FlowStore and ports.Watchable.
type FlowStore struct {
	Repo *loam.TypedRepository[FlowMetadata]
}

// New creates a new Loam adapter.
func New(repo *loam.TypedRepository[FlowMetadata]) *FlowStore {
	return &FlowStore{
		Repo: repo,
	}
}

// Open initializes a read-only, strict Loam repository at path and wraps it.
func Open(path string) (*FlowStore, error) {
	repo, err := loam.Init(path,
		loam.WithStrict(true),
		loam.WithReadOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam repository: %w", err)
	}
	return New(loam.NewTypedRepository[FlowMetadata](repo)), nil
}

// LoadAll lists every document in the repository and decodes it as a flow.
// Documents without nodes are skipped; two documents yielding the same flow id are an error.
func (s *FlowStore) LoadAll(ctx context.Context) ([]domain.Flow, error) {
	docs, err := s.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	seen := make(map[string]string, len(docs))
	flows := make([]domain.Flow, 0, len(docs))

	for _, doc := range docs {
		if len(doc.Data.Nodes) == 0 {
			continue
		}

		flow, err := dto.DecodeFlow(doc.Data.document(), doc.ID)
		if err != nil {
			return nil, err
		}

		if existing, ok := seen[flow.ID]; ok {
			return nil, fmt.Errorf("collision detected: flow '%s' is defined in both '%s' and '%s'", flow.ID, existing, doc.ID)
		}
		seen[flow.ID] = doc.ID
		flows = append(flows, flow)
	}
	return flows, nil
}

// Watch implements ports.Watchable.
func (s *FlowStore) Watch(ctx context.Context) (<-chan string, error) {
	events, err := s.Repo.Watch(ctx, "**/*.{md,json,yaml,yml}")
	if err != nil {
		return nil, fmt.Errorf("failed to start loam watcher: %w", err)
	}

	ch := make(chan string, 1)

	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				// Loam debounces on its side.
				select {
				case ch <- evt.ID:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}
