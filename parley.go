package parley

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/internal/runtime"
	"github.com/aretw0/parley/pkg/actions"
	loamAdapter "github.com/aretw0/parley/pkg/adapters/loam"
	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/hooks"
	"github.com/aretw0/parley/pkg/observability"
	"github.com/aretw0/parley/pkg/output"
	"github.com/aretw0/parley/pkg/persistence/middleware"
	"github.com/aretw0/parley/pkg/ports"
)

// ErrorHandler receives every fault recovered while processing a message.
type ErrorHandler = hooks.ErrorHandler

// JumpOptions tunes Engine.JumpTo.
type JumpOptions = runtime.JumpOptions

// Engine is the high-level entry point for the Parley library.
// It wraps the internal runtime and provides a simplified API for consumers.
type Engine struct {
	runtime     *runtime.Engine
	flows       ports.FlowStore
	state       ports.StateStore
	metrics     *observability.Metrics
	stateMws    []middleware.Middleware
	runtimeOpts []runtime.EngineOption
	logger      *slog.Logger
	Name        string
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithFlowStore injects a custom flow store, bypassing the default Loam initialization.
func WithFlowStore(s ports.FlowStore) Option {
	return func(e *Engine) {
		e.flows = s
	}
}

// WithStateStore sets where session state and context are persisted (default: in memory).
func WithStateStore(s ports.StateStore) Option {
	return func(e *Engine) {
		e.state = s
	}
}

// WithStateMiddleware wraps the state store (e.g. encryption, PII masking).
// The first middleware is the outermost one.
func WithStateMiddleware(mws ...middleware.Middleware) Option {
	return func(e *Engine) {
		e.stateMws = append(e.stateMws, mws...)
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithDefaultFlow configures the flow new sessions enter (default: "main.flow").
func WithDefaultFlow(flowID string) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithDefaultFlow(flowID))
	}
}

// WithConditionTimeout overrides the evaluation budget of a single transition condition.
func WithConditionTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithConditionTimeout(d))
	}
}

// WithMultipleOutputs delivers every message to all registered output processors
// instead of only the last one registered.
func WithMultipleOutputs() Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithMultipleOutputs())
	}
}

// WithValidation toggles flow validation on load (enabled by default).
func WithValidation(enabled bool) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithValidation(enabled))
	}
}

// WithMetrics attaches Prometheus collectors to the engine.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New initializes a new Parley Engine.
// By default, flows are read from a Loam repository at flowPath.
// If WithFlowStore is provided, flowPath can be empty and Loam is skipped.
func New(flowPath string, opts ...Option) (*Engine, error) {
	eng := &Engine{}

	for _, opt := range opts {
		opt(eng)
	}

	if eng.flows == nil {
		if flowPath == "" {
			return nil, fmt.Errorf("flowPath is required when no custom flow store is provided")
		}

		absPath, err := filepath.Abs(flowPath)
		if err != nil {
			return nil, fmt.Errorf("invalid path: %w", err)
		}
		eng.Name = filepath.Base(absPath)

		store, err := loamAdapter.Open(absPath)
		if err != nil {
			return nil, err
		}
		eng.flows = store
	} else if flowPath != "" {
		eng.Name = filepath.Base(flowPath)
	}

	if eng.state == nil {
		eng.state = memory.NewStore()
	}
	eng.state = middleware.Chain(eng.state, eng.stateMws...)

	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}
	if eng.Name != "" {
		eng.logger = eng.logger.With("flows", eng.Name)
	}

	runtimeOpts := append([]runtime.EngineOption{runtime.WithLogger(eng.logger)}, eng.runtimeOpts...)
	eng.runtime = runtime.NewEngine(eng.flows, eng.state, runtimeOpts...)

	if eng.metrics != nil {
		eng.metrics.Attach(eng.runtime)
	}

	return eng, nil
}

// Start loads the flows and follows changes of stores that can be watched.
func (e *Engine) Start(ctx context.Context) error {
	return e.runtime.Start(ctx)
}

// Close stops following flow changes.
func (e *Engine) Close() error {
	return e.runtime.Close()
}

// ProcessMessage runs one turn of the session. Faults are delivered to the error
// handlers, never returned. A nil state means the flow ended.
func (e *Engine) ProcessMessage(ctx context.Context, sessionID string, event domain.Event) domain.State {
	return e.runtime.ProcessMessage(ctx, sessionID, event)
}

// JumpTo moves the session to a flow (and node) without processing it.
func (e *Engine) JumpTo(ctx context.Context, sessionID, flowID, nodeID string, opts JumpOptions) error {
	return e.runtime.JumpTo(ctx, sessionID, flowID, nodeID, opts)
}

// EndFlow ends the session's current flow. Its state is kept.
func (e *Engine) EndFlow(ctx context.Context, sessionID string) (domain.State, error) {
	return e.runtime.EndFlow(ctx, sessionID)
}

// CurrentPosition returns where the session is parked, or the zero Position.
func (e *Engine) CurrentPosition(ctx context.Context, sessionID string) (domain.Position, error) {
	return e.runtime.CurrentPosition(ctx, sessionID)
}

// ReloadFlows reloads every flow from the flow store.
func (e *Engine) ReloadFlows(ctx context.Context) error {
	return e.runtime.ReloadFlows(ctx)
}

// Flows returns the loaded flows for visualization or introspection tools.
func (e *Engine) Flows(ctx context.Context) ([]domain.Flow, error) {
	return e.runtime.Flows(ctx)
}

// RegisterActions adds actions. Taking an existing name requires overwrite.
func (e *Engine) RegisterActions(m map[string]actions.Action, overwrite bool) error {
	return e.runtime.RegisterActions(m, overwrite)
}

// RegisterAction adds a single action handler.
func (e *Engine) RegisterAction(name string, h actions.Handler) error {
	return e.runtime.Actions().RegisterFunc(name, h, false)
}

// RegisterActionMetadataProvider adds a metadata source for later registrations.
func (e *Engine) RegisterActionMetadataProvider(p actions.MetadataProvider) {
	e.runtime.RegisterActionMetadataProvider(p)
}

// AvailableActions lists the public actions.
func (e *Engine) AvailableActions() []actions.Info {
	return e.runtime.AvailableActions()
}

// RegisterOutputProcessor adds an output processor.
func (e *Engine) RegisterOutputProcessor(p output.Processor) {
	e.runtime.RegisterOutputProcessor(p)
}

// OnError registers a handler for faults recovered while processing messages.
func (e *Engine) OnError(h ErrorHandler) {
	e.runtime.OnError(h)
}

// OnBeforeCreate registers a hook run before a session context is created.
func (e *Engine) OnBeforeCreate(h hooks.Handler[hooks.CreateContext]) {
	e.runtime.OnBeforeCreate(h)
}

// OnAfterCreate registers a hook run after a session context is created.
func (e *Engine) OnAfterCreate(h hooks.Handler[hooks.CreateContext]) {
	e.runtime.OnAfterCreate(h)
}

// OnBeforeEnd registers a hook run before a flow ends.
func (e *Engine) OnBeforeEnd(h hooks.Handler[hooks.EndContext]) {
	e.runtime.OnBeforeEnd(h)
}

// OnBeforeNodeEnter registers a hook run before a node is entered.
func (e *Engine) OnBeforeNodeEnter(h hooks.Handler[hooks.NodeEnterContext]) {
	e.runtime.OnBeforeNodeEnter(h)
}

// OnBeforeTimeout registers a hook run before a timeout is escalated.
func (e *Engine) OnBeforeTimeout(h hooks.Handler[hooks.TimeoutContext]) {
	e.runtime.OnBeforeTimeout(h)
}

// FlowStore returns the underlying flow store.
func (e *Engine) FlowStore() ports.FlowStore {
	return e.flows
}

// StateStore returns the underlying state store.
func (e *Engine) StateStore() ports.StateStore {
	return e.state
}
