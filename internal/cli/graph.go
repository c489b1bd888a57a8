package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/parley/internal/presentation/graph"
	"github.com/aretw0/parley/pkg/domain"
)

// RunGraph prints a Mermaid diagram of every flow under opts.Dir.
// When opts.SessionID is set, the session's stack and position are highlighted.
func RunGraph(ctx context.Context, opts ChatOptions, out io.Writer) error {
	store, err := openFlowStore(opts.Store, opts.Dir, createLogger(false))
	if err != nil {
		return err
	}

	flows, err := store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load flows: %w", err)
	}
	if len(flows) == 0 {
		return fmt.Errorf("no flows found in %s", opts.Dir)
	}

	var overlay *graph.GraphOverlay
	if opts.SessionID != "" {
		overlay, err = loadOverlay(ctx, opts)
		if err != nil {
			return err
		}
	}

	fmt.Fprint(out, graph.GenerateMermaid(flows, overlay))
	return nil
}

func loadOverlay(ctx context.Context, opts ChatOptions) (*graph.GraphOverlay, error) {
	state, closeStore, err := openStateStore(opts)
	if err != nil {
		return nil, err
	}
	defer closeStore()

	raw, err := state.Get(ctx, opts.SessionID+domain.ContextKeySuffix)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("session '%s' has no active flow", opts.SessionID)
	}
	if err != nil {
		return nil, err
	}

	var sctx domain.SessionContext
	if err := json.Unmarshal(raw, &sctx); err != nil {
		return nil, fmt.Errorf("failed to decode context: %w", err)
	}
	return &graph.GraphOverlay{
		Stack:   sctx.FlowStack,
		Current: domain.Position{Flow: sctx.Flow, Node: sctx.Node},
	}, nil
}
