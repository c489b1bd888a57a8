package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/logging"
	httpAdapter "github.com/aretw0/parley/pkg/adapters/http"
	mcpAdapter "github.com/aretw0/parley/pkg/adapters/mcp"
	"github.com/aretw0/parley/pkg/adapters/redis"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/observability"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MCP transports accepted by --transport.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// ServeOptions configures the serve and mcp commands.
type ServeOptions struct {
	ChatOptions
	Port      int
	Transport string // mcp only
}

// instrumentedEngine times every turn through the metrics collectors.
type instrumentedEngine struct {
	*parley.Engine
	turns observability.Processor
}

func (e instrumentedEngine) ProcessMessage(ctx context.Context, sessionID string, event domain.Event) domain.State {
	return e.turns.ProcessMessage(ctx, sessionID, event)
}

// service is an engine ready to serve concurrent sessions.
type service struct {
	engine   instrumentedEngine
	sessions *session.Manager
	registry *prometheus.Registry
	logger   *slog.Logger
	close    func()
}

func openService(ctx context.Context, opts ServeOptions, logger *slog.Logger) (*service, error) {
	state, closeState, err := openStateStore(opts.ChatOptions)
	if err != nil {
		return nil, err
	}

	engine, err := createEngine(ctx, opts.ChatOptions, state, logger)
	if err != nil {
		_ = closeState()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	metrics, err := observability.NewMetrics(registry)
	if err != nil {
		_ = closeState()
		return nil, err
	}
	metrics.Attach(engine)

	locker, closeLocker := openLocker(opts.ChatOptions)
	managerOpts := []session.Option{session.WithLogger(logger)}
	if locker != nil {
		managerOpts = append(managerOpts, session.WithLocker(locker))
	}

	if err := engine.Start(ctx); err != nil {
		_ = closeLocker()
		_ = closeState()
		return nil, err
	}

	return &service{
		engine:   instrumentedEngine{Engine: engine, turns: metrics.Instrument(engine)},
		sessions: session.NewManager(state, managerOpts...),
		registry: registry,
		logger:   logger,
		close: func() {
			_ = engine.Close()
			_ = closeLocker()
			_ = closeState()
		},
	}, nil
}

// openLocker returns a distributed locker when sessions live in Redis, so several
// replicas can serve the same sessions.
func openLocker(opts ChatOptions) (ports.DistributedLocker, func() error) {
	if opts.State != StateRedis {
		return nil, func() error { return nil }
	}
	store := redis.New(opts.RedisAddr, "", 0)
	return redis.NewLocker(store.Client(), "parley:"), store.Close
}

// RunServe serves the flows as an HTTP messaging channel until interrupted.
func RunServe(opts ServeOptions, out io.Writer) error {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	logger := logging.NewJSON(os.Stderr, level)

	sigCtx := NewSignalContext(context.Background())
	defer sigCtx.Cancel()

	svc, err := openService(sigCtx, opts, logger)
	if err != nil {
		return err
	}
	defer svc.close()

	channel := httpAdapter.NewServer(svc.engine, svc.sessions, httpAdapter.WithLogger(logger))

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(svc.registry, promhttp.HandlerOpts{}))
	r.Mount("/", channel.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	printSystemMessage(out, "Serving %s on %s (metrics at /metrics).", opts.Dir, srv.Addr)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-sigCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	printSystemMessage(out, "Shutting down...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("could not stop server gracefully: %w", err)
	}
	return nil
}

// RunMCP serves the flows as Model Context Protocol tools over stdio or SSE.
func RunMCP(opts ServeOptions) error {
	// stdout carries the protocol; logs stay on stderr.
	logger := createLogger(opts.Debug)

	sigCtx := NewSignalContext(context.Background())
	defer sigCtx.Cancel()

	svc, err := openService(sigCtx, opts, logger)
	if err != nil {
		return err
	}
	defer svc.close()

	srv := mcpAdapter.NewServer(svc.engine, svc.sessions, logger)
	switch opts.Transport {
	case TransportStdio, "":
		return handleExecutionError(srv.ServeStdio())
	case TransportSSE:
		return handleExecutionError(srv.ServeSSE(sigCtx, opts.Port))
	default:
		return fmt.Errorf("unknown transport %q (use %s or %s)", opts.Transport, TransportStdio, TransportSSE)
	}
}
