package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/presentation/tui"
	"github.com/aretw0/parley/pkg/session"
	"github.com/google/uuid"
)

// RunChat runs an interactive chat session against the flows in opts.Dir.
func RunChat(opts ChatOptions, in io.Reader, out io.Writer) error {
	logger := createLogger(opts.Debug)
	quiet := opts.Headless

	if !quiet {
		tui.PrintBanner(out, parley.Version)
	}

	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}

	sigCtx := NewSignalContext(context.Background())
	defer sigCtx.Cancel()

	state, closeState, err := openStateStore(opts)
	if err != nil {
		return err
	}
	defer closeState()

	engine, err := createEngine(sigCtx, opts, state, logger)
	if err != nil {
		return err
	}

	if opts.Fresh {
		if err := session.NewManager(state).Reset(sigCtx, opts.SessionID); err != nil {
			return fmt.Errorf("failed to reset session: %w", err)
		}
	}

	if opts.Watch {
		if err := engine.Start(sigCtx); err != nil {
			return err
		}
		defer engine.Close()
	} else if err := engine.ReloadFlows(sigCtx); err != nil {
		return err
	}

	if !quiet {
		printSystemMessage(out, "Session '%s' active. Type 'quit' to leave, '%s' to simulate a timeout.",
			opts.SessionID, parley.TimeoutCommand)
		if pos, err := engine.CurrentPosition(sigCtx, opts.SessionID); err == nil && !pos.IsZero() {
			printSystemMessage(out, "Resuming at '%s' in %s.", pos.Node, pos.Flow)
		}
	}

	runner := parley.NewRunner(opts.SessionID)
	runner.Input = in
	runner.Output = out
	runner.Headless = opts.Headless
	if !opts.NoMarkdown && !quiet && tui.IsTerminal(os.Stdout) {
		runner.Renderer = tui.NewRenderer()
	}

	runErr := runner.Run(sigCtx, engine)
	if sigCtx.Err() != nil && runErr == nil {
		runErr = sigCtx.Err()
	}

	if !quiet {
		if sigCtx.Signal() != nil {
			fmt.Fprintln(out)
			printSystemMessage(out, "Interrupted.")
		}
	}
	return handleExecutionError(runErr)
}
