package condition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// DefaultTimeout is the wall-clock budget of a single evaluation.
const DefaultTimeout = 5 * time.Second

// ErrTimeout is returned when an evaluation exceeds its budget.
var ErrTimeout = errors.New("condition evaluation timed out")

// EvalError wraps any failure to compile or evaluate a condition.
type EvalError struct {
	Expr string
	Err  error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("condition %q: %v", e.Expr, e.Err)
}

func (e *EvalError) Unwrap() error {
	return e.Err
}

// ActionSource exposes registered actions to expressions.
type ActionSource interface {
	Names() []string
	Call(ctx context.Context, name string, state domain.State, event domain.Event, args map[string]any) (any, bool, error)
}

type compiled struct {
	expr hclsyntax.Expression
	err  error
}

// Evaluator compiles conditions once and evaluates them against state and event.
// Safe for concurrent use.
type Evaluator struct {
	actions ActionSource
	timeout time.Duration
	logger  *slog.Logger

	cache sync.Map // string -> *compiled
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithTimeout overrides the per-evaluation budget.
func WithTimeout(d time.Duration) Option {
	return func(e *Evaluator) {
		e.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) {
		e.logger = logger
	}
}

// New creates an Evaluator. actions may be nil.
func New(actions ActionSource, opts ...Option) *Evaluator {
	e := &Evaluator{
		actions: actions,
		timeout: DefaultTimeout,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IsUnconditional reports whether expr always holds without evaluation.
func IsUnconditional(expr string) bool {
	s := strings.TrimSpace(expr)
	return s == "" ||
		strings.EqualFold(s, "true") ||
		strings.EqualFold(s, "always") ||
		strings.EqualFold(s, "yes")
}

// Evaluate reports whether expr holds. Only a known boolean true counts as true.
// Any compile or evaluation failure is returned as an *EvalError.
func (e *Evaluator) Evaluate(ctx context.Context, expr string, state domain.State, event domain.Event) (bool, error) {
	if IsUnconditional(expr) {
		return true, nil
	}

	c := e.compile(expr)
	if c.err != nil {
		return false, &EvalError{Expr: expr, Err: c.err}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type outcome struct {
		val cty.Value
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()

		evalCtx, err := e.evalContext(ctx, c.expr, state, event)
		if err != nil {
			done <- outcome{err: err}
			return
		}
		val, diags := c.expr.Value(evalCtx)
		if diags.HasErrors() {
			done <- outcome{err: diags}
			return
		}
		done <- outcome{val: val}
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return false, &EvalError{Expr: expr, Err: ErrTimeout}
		}
		return false, &EvalError{Expr: expr, Err: ctx.Err()}
	case out := <-done:
		if out.err != nil {
			return false, &EvalError{Expr: expr, Err: out.err}
		}
		v := out.val
		return v.IsKnown() && !v.IsNull() && v.Type() == cty.Bool && v.True(), nil
	}
}

func (e *Evaluator) compile(src string) *compiled {
	if c, ok := e.cache.Load(src); ok {
		return c.(*compiled)
	}

	expr, diags := hclsyntax.ParseExpression([]byte(src), "condition", hcl.Pos{Line: 1, Column: 1})
	c := &compiled{expr: expr}
	if diags.HasErrors() {
		c.err = diags
	} else {
		makeNullSafe(expr)
	}

	actual, _ := e.cache.LoadOrStore(src, c)
	return actual.(*compiled)
}

func (e *Evaluator) evalContext(ctx context.Context, expr hclsyntax.Expression, state domain.State, event domain.Event) (*hcl.EvalContext, error) {
	stateVal, err := bind(state, expr.Variables(), "state", "s")
	if err != nil {
		return nil, fmt.Errorf("state: %w", err)
	}
	eventVal, err := bind(event, expr.Variables(), "event", "e")
	if err != nil {
		return nil, fmt.Errorf("event: %w", err)
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"state": stateVal,
			"s":     stateVal,
			"event": eventVal,
			"e":     eventVal,
		},
		Functions: e.functions(ctx, state, event),
	}, nil
}

func (e *Evaluator) functions(ctx context.Context, state domain.State, event domain.Event) map[string]function.Function {
	funcs := helperFunctions()
	if e.actions == nil {
		return funcs
	}

	for _, name := range e.actions.Names() {
		if !hclsyntax.ValidIdentifier(name) {
			continue
		}
		funcs[name] = e.actionFunction(ctx, name, state, event)
	}
	return funcs
}

func (e *Evaluator) actionFunction(ctx context.Context, name string, state domain.State, event domain.Event) function.Function {
	return function.New(&function.Spec{
		VarParam: &function.Parameter{
			Name:             "args",
			Type:             cty.DynamicPseudoType,
			AllowNull:        true,
			AllowDynamicType: true,
		},
		Type: function.StaticReturnType(cty.DynamicPseudoType),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			var params map[string]any
			if len(args) > 0 {
				native, err := fromCty(args[0])
				if err != nil {
					return cty.NilVal, err
				}
				if m, ok := native.(map[string]any); ok {
					params = m
				} else if native != nil {
					params = map[string]any{"value": native}
				}
			}

			result, _, err := e.actions.Call(ctx, name, state, event, params)
			if err != nil {
				return cty.NilVal, err
			}
			e.logger.Debug("action called from condition", "action", name)
			return toCty(result)
		},
	})
}
