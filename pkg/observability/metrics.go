package observability

import (
	"context"
	"errors"
	"time"

	"github.com/aretw0/parley/pkg/condition"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/hooks"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "parley"

// Hookable is the part of the engine the metrics attach to.
type Hookable interface {
	OnAfterCreate(h hooks.Handler[hooks.CreateContext])
	OnBeforeEnd(h hooks.Handler[hooks.EndContext])
	OnBeforeNodeEnter(h hooks.Handler[hooks.NodeEnterContext])
	OnBeforeTimeout(h hooks.Handler[hooks.TimeoutContext])
	OnError(h hooks.ErrorHandler)
}

// Processor runs one dialog turn.
type Processor interface {
	ProcessMessage(ctx context.Context, sessionID string, event domain.Event) domain.State
}

// Metrics provides Prometheus metrics for the dialog engine.
type Metrics struct {
	sessionsCreated *prometheus.CounterVec
	nodeEntries     *prometheus.CounterVec
	flowsEnded      *prometheus.CounterVec
	timeouts        *prometheus.CounterVec
	errors          *prometheus.CounterVec
	turnDuration    *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		sessionsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_created_total",
				Help:      "Total number of session contexts created",
			},
			[]string{"flow"},
		),
		nodeEntries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "node_entries_total",
				Help:      "Total number of node entries",
			},
			[]string{"flow", "node"},
		),
		flowsEnded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "flows_ended_total",
				Help:      "Total number of ended flows, by the flow that was active",
			},
			[]string{"flow"},
		),
		timeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "timeouts_total",
				Help:      "Total number of timeout events handled",
			},
			[]string{"flow"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "turn_errors_total",
				Help:      "Total number of turns that failed, by error kind",
			},
			[]string{"kind"},
		),
		turnDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "turn_duration_seconds",
				Help:      "Duration of ProcessMessage calls",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
	}

	collectors := []prometheus.Collector{
		m.sessionsCreated, m.nodeEntries, m.flowsEnded, m.timeouts, m.errors, m.turnDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Attach registers the collecting hooks and error handler on the engine.
func (m *Metrics) Attach(e Hookable) {
	e.OnAfterCreate(func(_ context.Context, c *hooks.CreateContext) error {
		m.sessionsCreated.WithLabelValues(c.Flow).Inc()
		return nil
	})
	e.OnBeforeNodeEnter(func(_ context.Context, c *hooks.NodeEnterContext) error {
		m.nodeEntries.WithLabelValues(c.Flow, c.Node).Inc()
		return nil
	})
	e.OnBeforeEnd(func(_ context.Context, c *hooks.EndContext) error {
		m.flowsEnded.WithLabelValues(c.Flow).Inc()
		return nil
	})
	e.OnBeforeTimeout(func(_ context.Context, c *hooks.TimeoutContext) error {
		m.timeouts.WithLabelValues(c.Flow).Inc()
		return nil
	})
	e.OnError(func(err error) {
		m.errors.WithLabelValues(ErrorKind(err)).Inc()
	})
}

// Instrument wraps p so every turn's latency is observed.
func (m *Metrics) Instrument(p Processor) Processor {
	return &instrumented{next: p, duration: m.turnDuration}
}

type instrumented struct {
	next     Processor
	duration *prometheus.HistogramVec
}

func (i *instrumented) ProcessMessage(ctx context.Context, sessionID string, event domain.Event) domain.State {
	start := time.Now()
	state := i.next.ProcessMessage(ctx, sessionID, event)

	outcome := "continued"
	if state == nil {
		outcome = "ended"
	}
	i.duration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	return state
}

// ErrorKind maps a turn error to a low-cardinality label.
func ErrorKind(err error) string {
	var evalErr *condition.EvalError
	switch {
	case errors.As(err, &evalErr):
		return "condition"
	case errors.Is(err, domain.ErrStackOverflow):
		return "stack_overflow"
	case errors.Is(err, domain.ErrDispatchLoop):
		return "dispatch_loop"
	case errors.Is(err, domain.ErrFlowNotFound), errors.Is(err, domain.ErrNoCurrentFlow):
		return "flow_not_found"
	case errors.Is(err, domain.ErrNodeNotFound):
		return "node_not_found"
	case errors.Is(err, domain.ErrInvalidInstruction):
		return "invalid_instruction"
	default:
		return "other"
	}
}
