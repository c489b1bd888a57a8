package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aretw0/parley/pkg/session"
)

// ShowSession prints the persisted state of a session as indented JSON.
func ShowSession(ctx context.Context, opts ChatOptions, out io.Writer) error {
	store, closeStore, err := openStateStore(opts)
	if err != nil {
		return err
	}
	defer closeStore()

	state, err := session.NewManager(store).State(ctx, opts.SessionID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling state: %w", err)
	}
	fmt.Fprintln(out, string(data))
	return nil
}

// ResetSessions removes the state and dialog context of each session.
func ResetSessions(ctx context.Context, opts ChatOptions, ids []string, out io.Writer) error {
	store, closeStore, err := openStateStore(opts)
	if err != nil {
		return err
	}
	defer closeStore()

	mgr := session.NewManager(store)
	var failed int
	for _, id := range ids {
		if err := mgr.Reset(ctx, id); err != nil {
			fmt.Fprintf(out, "Error removing '%s': %v\n", id, err)
			failed++
			continue
		}
		fmt.Fprintf(out, "Removed session '%s'\n", id)
	}
	if failed > 0 {
		return fmt.Errorf("%d sessions could not be removed", failed)
	}
	return nil
}
