package ports

import (
	"context"

	"github.com/aretw0/parley/pkg/domain"
)

// FlowStore defines how the engine retrieves flow definitions.
// This allows the authoring/storage layer (Files, Loam, Memory) to be decoupled.
type FlowStore interface {
	// LoadAll returns the complete set of flows. The engine treats the result as immutable.
	LoadAll(ctx context.Context) ([]domain.Flow, error)
}

// Watchable defines an interface for flow stores that can notify about backend changes.
type Watchable interface {
	// Watch returns a channel that is signaled (with the id of what changed, when known)
	// whenever the underlying flows change. The channel is closed when ctx is done.
	Watch(ctx context.Context) (<-chan string, error)
}
