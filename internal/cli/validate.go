package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/aretw0/parley/internal/validator"
)

// ValidateOptions configures the validate command.
type ValidateOptions struct {
	Dir    string
	Store  string
	Strict bool // lint issues fail the validation
}

// RunValidate loads every flow and reports structural errors and lint issues.
func RunValidate(ctx context.Context, opts ValidateOptions, out io.Writer) error {
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

	if err := validator.Validate(flows); err != nil {
		return err
	}

	issues := validator.Lint(flows)
	for _, issue := range issues {
		fmt.Fprintf(out, "warning: %s\n", issue)
	}
	if opts.Strict && len(issues) > 0 {
		return fmt.Errorf("%d lint issues", len(issues))
	}

	fmt.Fprintf(out, "%d flows are valid\n", len(flows))
	return nil
}
