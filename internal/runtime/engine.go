// Package runtime is the dialog engine: it advances sessions through flows one turn at a time.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/actions"
	"github.com/aretw0/parley/pkg/condition"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/hooks"
	"github.com/aretw0/parley/pkg/output"
	"github.com/aretw0/parley/pkg/ports"
)

// maxDispatchDepth bounds the transitions of a single turn.
const maxDispatchDepth = 1000

// Engine is the core state machine runner. One Engine owns the loaded flows,
// the action registry and the hook pipelines; nothing is process-global.
type Engine struct {
	flowStore  ports.FlowStore
	stateStore ports.StateStore
	actions    *actions.Registry
	evaluator  *condition.Evaluator
	output     *output.Dispatcher
	logger     *slog.Logger

	defaultFlow      string
	conditionTimeout time.Duration
	multipleOutputs  bool
	validate         bool

	flows  atomic.Pointer[flowSet]
	loadMu sync.Mutex

	errMu         sync.RWMutex
	errorHandlers []hooks.ErrorHandler

	beforeCreate    *hooks.Pipeline[hooks.CreateContext]
	afterCreate     *hooks.Pipeline[hooks.CreateContext]
	beforeEnd       *hooks.Pipeline[hooks.EndContext]
	beforeNodeEnter *hooks.Pipeline[hooks.NodeEnterContext]
	beforeTimeout   *hooks.Pipeline[hooks.TimeoutContext]

	watchMu     sync.Mutex
	watchCancel context.CancelFunc
	watchDone   chan struct{}
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithDefaultFlow sets the flow new sessions enter (default "main.flow").
func WithDefaultFlow(flowID string) EngineOption {
	return func(e *Engine) {
		e.defaultFlow = flowID
	}
}

// WithConditionTimeout overrides the per-condition evaluation budget.
func WithConditionTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.conditionTimeout = d
	}
}

// WithMultipleOutputs lets several output processors receive every message.
func WithMultipleOutputs() EngineOption {
	return func(e *Engine) {
		e.multipleOutputs = true
	}
}

// WithValidation toggles flow set validation on load (enabled by default).
func WithValidation(enabled bool) EngineOption {
	return func(e *Engine) {
		e.validate = enabled
	}
}

// NewEngine creates a new engine with dependencies.
func NewEngine(flowStore ports.FlowStore, stateStore ports.StateStore, opts ...EngineOption) *Engine {
	e := &Engine{
		flowStore:        flowStore,
		stateStore:       stateStore,
		logger:           logging.NewNop(),
		defaultFlow:      domain.DefaultFlowID,
		conditionTimeout: condition.DefaultTimeout,
		validate:         true,

		beforeCreate:    hooks.NewPipeline[hooks.CreateContext]("before-create"),
		afterCreate:     hooks.NewPipeline[hooks.CreateContext]("after-create"),
		beforeEnd:       hooks.NewPipeline[hooks.EndContext]("before-end"),
		beforeNodeEnter: hooks.NewPipeline[hooks.NodeEnterContext]("before-node-enter"),
		beforeTimeout:   hooks.NewPipeline[hooks.TimeoutContext]("before-timeout"),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.actions = actions.NewRegistry(e.logger)
	e.evaluator = condition.New(e.actions,
		condition.WithTimeout(e.conditionTimeout),
		condition.WithLogger(e.logger),
	)

	outOpts := []output.Option{output.WithLogger(e.logger)}
	if e.multipleOutputs {
		outOpts = append(outOpts, output.WithMultiple())
	}
	e.output = output.NewDispatcher(outOpts...)

	return e
}

// Start loads the flows and, when the flow store supports it, subscribes to change
// notifications that invalidate the cached flow set.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.ReloadFlows(ctx); err != nil {
		return err
	}

	w, ok := e.flowStore.(ports.Watchable)
	if !ok {
		return nil
	}

	e.watchMu.Lock()
	defer e.watchMu.Unlock()
	if e.watchCancel != nil {
		return nil
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	changes, err := w.Watch(watchCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to watch flows: %w", err)
	}

	e.watchCancel = cancel
	e.watchDone = make(chan struct{})
	go e.watchLoop(changes, e.watchDone)
	return nil
}

func (e *Engine) watchLoop(changes <-chan string, done chan struct{}) {
	defer close(done)
	for id := range changes {
		e.logger.Info("flows changed, invalidating cache", "source", id)
		// A load in flight may have read the previous documents; clear after it stores.
		e.loadMu.Lock()
		e.flows.Store(nil)
		e.loadMu.Unlock()
	}
}

// Close stops the change subscription. The engine stays usable; flows are reloaded lazily.
func (e *Engine) Close() error {
	e.watchMu.Lock()
	cancel, done := e.watchCancel, e.watchDone
	e.watchCancel, e.watchDone = nil, nil
	e.watchMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}

// Actions exposes the action registry.
func (e *Engine) Actions() *actions.Registry {
	return e.actions
}

// RegisterActions adds actions. A name collision without overwrite fails.
func (e *Engine) RegisterActions(m map[string]actions.Action, overwrite bool) error {
	return e.actions.Register(m, overwrite)
}

// RegisterActionMetadataProvider adds a provider consulted by later registrations.
func (e *Engine) RegisterActionMetadataProvider(p actions.MetadataProvider) {
	e.actions.RegisterMetadataProvider(p)
}

// AvailableActions lists the public actions.
func (e *Engine) AvailableActions() []actions.Info {
	return e.actions.List()
}

// RegisterOutputProcessor adds (or, in single-output mode, replaces) an output processor.
func (e *Engine) RegisterOutputProcessor(p output.Processor) {
	e.output.Register(p)
}

// OnError registers a handler for faults recovered at the turn boundary.
func (e *Engine) OnError(h hooks.ErrorHandler) {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	e.errorHandlers = append(e.errorHandlers, h)
}

// OnBeforeCreate registers a hook run before a session context is created.
// Setting CreateContext.Flow chooses the flow the session enters.
func (e *Engine) OnBeforeCreate(h hooks.Handler[hooks.CreateContext]) {
	e.beforeCreate.Use(h)
}

// OnAfterCreate registers a hook run after a session context is created.
func (e *Engine) OnAfterCreate(h hooks.Handler[hooks.CreateContext]) {
	e.afterCreate.Use(h)
}

// OnBeforeEnd registers a hook run before a flow ends.
func (e *Engine) OnBeforeEnd(h hooks.Handler[hooks.EndContext]) {
	e.beforeEnd.Use(h)
}

// OnBeforeNodeEnter registers a hook run before a node's onEnter instructions.
func (e *Engine) OnBeforeNodeEnter(h hooks.Handler[hooks.NodeEnterContext]) {
	e.beforeNodeEnter.Use(h)
}

// OnBeforeTimeout registers a hook run before timeout escalation.
func (e *Engine) OnBeforeTimeout(h hooks.Handler[hooks.TimeoutContext]) {
	e.beforeTimeout.Use(h)
}

// fail fans err out to every error handler. A panicking handler does not stop the others.
func (e *Engine) fail(sessionID string, err error) {
	e.logger.Error("turn failed", "session", sessionID, "err", err)

	e.errMu.RLock()
	handlers := append([]hooks.ErrorHandler(nil), e.errorHandlers...)
	e.errMu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("error handler panicked", "panic", r, "stack", string(debug.Stack()))
				}
			}()
			h(err)
		}()
	}
}

// trace logs a turn step at debug level.
func (e *Engine) trace(ctx context.Context, op string, t *turn, args ...any) {
	if !e.logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	attrs := []any{"op", op, "session", t.sessionID}
	if t.sctx != nil {
		attrs = append(attrs, "flow", t.sctx.Flow, "node", t.sctx.Node)
	}
	e.logger.Debug("dialog", append(attrs, args...)...)
}
