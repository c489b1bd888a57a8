package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/parley/pkg/domain"
)

func contextKey(sessionID string) string {
	return sessionID + domain.ContextKeySuffix
}

func (e *Engine) loadContext(ctx context.Context, sessionID string) (*domain.SessionContext, error) {
	raw, err := e.stateStore.Get(ctx, contextKey(sessionID))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load context: %w", err)
	}

	var sctx domain.SessionContext
	if err := json.Unmarshal(raw, &sctx); err != nil {
		return nil, fmt.Errorf("failed to decode context: %w", err)
	}
	if sctx.Flow == "" {
		return nil, nil
	}
	return &sctx, nil
}

func (e *Engine) saveContext(ctx context.Context, sctx *domain.SessionContext) error {
	raw, err := json.Marshal(sctx)
	if err != nil {
		return fmt.Errorf("failed to encode context: %w", err)
	}
	if err := e.stateStore.Set(ctx, contextKey(sctx.SessionID), raw); err != nil {
		return fmt.Errorf("failed to save context: %w", err)
	}
	return nil
}

func (e *Engine) deleteContext(ctx context.Context, sessionID string) error {
	if err := e.stateStore.Delete(ctx, contextKey(sessionID)); err != nil {
		return fmt.Errorf("failed to delete context: %w", err)
	}
	return nil
}

// loadState returns the session state, or an empty state when none is stored.
func (e *Engine) loadState(ctx context.Context, sessionID string) (domain.State, error) {
	raw, err := e.stateStore.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.State{}, nil
		}
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	var state domain.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("failed to decode state: %w", err)
	}
	if state == nil {
		state = domain.State{}
	}
	return state, nil
}

func (e *Engine) saveState(ctx context.Context, sessionID string, state domain.State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if err := e.stateStore.Set(ctx, sessionID, raw); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}
