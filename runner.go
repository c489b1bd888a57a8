package parley

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/output"
	"github.com/aretw0/parley/pkg/session"
)

// TimeoutCommand is the input line that sends a timeout event instead of a message.
const TimeoutCommand = "/timeout"

// Runner drives a chat session of the engine over line-based IO.
// This allows for easy testing and integration with different frontends (CLI, TUI, etc).
type Runner struct {
	Input     io.Reader
	Output    io.Writer
	SessionID string
	Headless  bool
	Renderer  ContentRenderer
}

// ContentRenderer is a function that transforms text messages before outputting them.
// This allows for TUI rendering (markdown to ANSI) without coupling the core package.
type ContentRenderer func(string) (string, error)

// NewRunner creates a new Runner for a session.
func NewRunner(sessionID string) *Runner {
	return &Runner{SessionID: sessionID}
}

// Run reads one message per line and processes it until EOF, "exit" or "quit".
// It registers itself as the engine's output processor.
func (r *Runner) Run(ctx context.Context, engine *Engine) error {
	if r.Input == nil {
		return fmt.Errorf("input reader must be set (use os.Stdin)")
	}
	if r.Output == nil {
		return fmt.Errorf("output writer must be set (use os.Stdout)")
	}
	if r.SessionID == "" {
		return fmt.Errorf("session id must be set")
	}

	var mu sync.Mutex
	writer := r.Output
	emit := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintln(writer, s)
	}

	engine.RegisterOutputProcessor(output.ProcessorFunc{
		Name: "runner",
		Fn: func(_ context.Context, out output.Output) error {
			if out.Context != nil && out.Context.SessionID != r.SessionID {
				return nil
			}
			emit(r.format(out.Message))
			return nil
		},
	})
	engine.OnError(func(err error) {
		emit("error: " + err.Error())
	})

	lineReader := bufio.NewReader(r.Input)

	for {
		if !r.Headless {
			fmt.Fprint(writer, "> ")
		}

		text, err := lineReader.ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("input error: %w", err)
		}
		eof := err == io.EOF
		input := strings.TrimSpace(text)

		if input == "exit" || input == "quit" {
			if !r.Headless {
				fmt.Fprintln(writer, "Bye!")
			}
			return nil
		}

		if input != "" {
			event, err := toEvent(input)
			if err != nil {
				emit("error: input rejected: " + err.Error())
			} else if state := engine.ProcessMessage(ctx, r.SessionID, event); state == nil && !r.Headless {
				emit("(conversation ended)")
			}
		}

		if eof {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func toEvent(input string) (domain.Event, error) {
	if input == TimeoutCommand {
		return domain.Event{Type: domain.EventTimeout}, nil
	}
	clean, err := session.SanitizeInput(input)
	if err != nil {
		return domain.Event{}, err
	}
	return domain.Event{Type: domain.EventText, Text: clean}, nil
}

func (r *Runner) format(msg domain.Message) string {
	if msg.Type != "#text" && msg.Type != "text" {
		return fmt.Sprintf("[%s] %s", msg.Type, msg.Value)
	}
	text := msg.Value
	if r.Renderer != nil {
		if rendered, err := r.Renderer(text); err == nil {
			text = rendered
		}
	}
	return strings.TrimSpace(text)
}
