// Package output delivers rendered messages to registered processors.
package output

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
)

// Output is what a processor receives for every rendered message.
type Output struct {
	Message domain.Message
	State   domain.State
	Event   domain.Event
	Context *domain.SessionContext
}

// Processor delivers messages to a channel (chat transport, console, queue).
type Processor interface {
	ID() string
	Send(ctx context.Context, out Output) error
}

// ProcessorFunc adapts a function into a Processor.
type ProcessorFunc struct {
	Name string
	Fn   func(ctx context.Context, out Output) error
}

func (p ProcessorFunc) ID() string { return p.Name }

func (p ProcessorFunc) Send(ctx context.Context, out Output) error { return p.Fn(ctx, out) }

// Dispatcher fans a message out to its processors in registration order.
// Safe for concurrent use.
type Dispatcher struct {
	mu         sync.RWMutex
	processors []Processor
	multiple   bool
	logger     *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMultiple allows more than one processor. By default registering replaces the current one.
func WithMultiple() Option {
	return func(d *Dispatcher) {
		d.multiple = true
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register adds p. A processor with the same id is replaced in place.
func (d *Dispatcher) Register(p Processor) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.multiple {
		d.processors = []Processor{p}
		return
	}
	for i, existing := range d.processors {
		if existing.ID() == p.ID() {
			d.processors[i] = p
			return
		}
	}
	d.processors = append(d.processors, p)
}

// Unregister removes the processor with the given id.
func (d *Dispatcher) Unregister(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, p := range d.processors {
		if p.ID() == id {
			d.processors = append(d.processors[:i], d.processors[i+1:]...)
			return
		}
	}
}

// Processors returns the registered processor ids in order.
func (d *Dispatcher) Processors() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]string, len(d.processors))
	for i, p := range d.processors {
		ids[i] = p.ID()
	}
	return ids
}

// Dispatch sends msg to every processor. A failing processor does not stop the others;
// all failures are joined into the returned error.
func (d *Dispatcher) Dispatch(ctx context.Context, msg domain.Message, state domain.State, event domain.Event, sctx *domain.SessionContext) error {
	d.mu.RLock()
	processors := append([]Processor(nil), d.processors...)
	d.mu.RUnlock()

	if len(processors) == 0 {
		d.logger.Debug("no output processor registered", "type", msg.Type)
		return nil
	}

	out := Output{Message: msg, State: state, Event: event, Context: sctx}

	var errs []error
	for _, p := range processors {
		if err := d.send(ctx, p, out); err != nil {
			d.logger.Error("output processor failed", "processor", p.ID(), "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) send(ctx context.Context, p Processor, out Output) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor %s panicked: %v", p.ID(), r)
		}
	}()
	if err := p.Send(ctx, out); err != nil {
		return fmt.Errorf("processor %s: %w", p.ID(), err)
	}
	return nil
}
