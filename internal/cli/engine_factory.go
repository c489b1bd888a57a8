package cli

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/pkg/adapters/file"
	loamAdapter "github.com/aretw0/parley/pkg/adapters/loam"
	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/adapters/process"
	"github.com/aretw0/parley/pkg/adapters/redis"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/hooks"
	"github.com/aretw0/parley/pkg/persistence/middleware"
	"github.com/aretw0/parley/pkg/ports"
)

// openFlowStore builds the flow store selected by kind over dir.
func openFlowStore(kind, dir string, logger *slog.Logger) (ports.FlowStore, error) {
	switch kind {
	case StoreFile:
		return file.NewFlowStore(dir, file.WithLogger(logger)), nil
	case StoreLoam, "":
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("invalid path: %w", err)
		}
		return loamAdapter.Open(abs)
	default:
		return nil, fmt.Errorf("unknown flow store %q (use %s or %s)", kind, StoreLoam, StoreFile)
	}
}

// openStateStore builds the session state backend, wrapped with the masking and
// encryption middlewares when configured. The returned closer releases connections.
func openStateStore(opts ChatOptions) (ports.StateStore, func() error, error) {
	store, closer, err := openStateBackend(opts)
	if err != nil {
		return nil, nil, err
	}

	var mws []middleware.Middleware
	for _, p := range opts.Mask {
		if _, err := regexp.Compile(p); err != nil {
			_ = closer()
			return nil, nil, fmt.Errorf("invalid mask pattern %q: %w", p, err)
		}
	}
	if len(opts.Mask) > 0 {
		mws = append(mws, middleware.NewPIIMiddleware(opts.Mask))
	}
	if raw := os.Getenv(EnvStateKey); raw != "" {
		key, err := hex.DecodeString(raw)
		if err != nil || len(key) != 32 {
			_ = closer()
			return nil, nil, fmt.Errorf("%s must be 64 hex characters (AES-256)", EnvStateKey)
		}
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}))
	}
	return middleware.Chain(store, mws...), closer, nil
}

func openStateBackend(opts ChatOptions) (ports.StateStore, func() error, error) {
	noop := func() error { return nil }

	switch opts.State {
	case StateMemory, "":
		return memory.NewStore(), noop, nil
	case StateFile:
		return file.New(filepath.Join(opts.Dir, ".parley", "sessions")), noop, nil
	case StateRedis:
		store := redis.New(opts.RedisAddr, "", 0)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("redis at %s is unreachable: %w", opts.RedisAddr, err)
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown state backend %q (use %s, %s or %s)", opts.State, StateMemory, StateFile, StateRedis)
	}
}

// resolveDefaultFlow picks the flow new sessions enter: the requested one, then
// main.flow, then a flow named after the directory, then the only flow.
func resolveDefaultFlow(requested, dir string, flows []domain.Flow) string {
	if requested != "" {
		if !domain.IsFlowID(requested) {
			requested += domain.FlowSuffix
		}
		return requested
	}

	ids := make(map[string]bool, len(flows))
	for _, f := range flows {
		ids[f.ID] = true
	}

	if ids[domain.DefaultFlowID] {
		return domain.DefaultFlowID
	}
	if byDir := filepath.Base(dir) + domain.FlowSuffix; ids[byDir] {
		return byDir
	}
	if len(flows) == 1 {
		return flows[0].ID
	}
	return domain.DefaultFlowID
}

// createEngine initializes a Parley engine with standard CLI conventions.
func createEngine(ctx context.Context, opts ChatOptions, state ports.StateStore, logger *slog.Logger) (*parley.Engine, error) {
	flows, err := openFlowStore(opts.Store, opts.Dir, logger)
	if err != nil {
		return nil, err
	}

	loaded, err := flows.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load flows from %s: %w", opts.Dir, err)
	}

	engineOpts := []parley.Option{
		parley.WithFlowStore(flows),
		parley.WithStateStore(state),
		parley.WithLogger(logger),
		parley.WithDefaultFlow(resolveDefaultFlow(opts.Flow, opts.Dir, loaded)),
	}
	if opts.Condition != "" {
		d, err := time.ParseDuration(opts.Condition)
		if err != nil {
			return nil, fmt.Errorf("invalid condition timeout: %w", err)
		}
		engineOpts = append(engineOpts, parley.WithConditionTimeout(d))
	}

	engine, err := parley.New(opts.Dir, engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}

	if err := registerTools(engine, opts.Dir); err != nil {
		return nil, err
	}
	if opts.Debug {
		attachDebugHooks(engine, logger)
	}
	return engine, nil
}

// registerTools exposes the commands listed in the project's tools.yaml as actions.
func registerTools(engine *parley.Engine, dir string) error {
	tools, err := process.LoadTools(filepath.Join(dir, process.DefaultConfigFile))
	if err != nil {
		return err
	}
	if len(tools) == 0 {
		return nil
	}
	acts, err := process.Actions(tools, process.WithBaseDir(dir))
	if err != nil {
		return err
	}
	return engine.RegisterActions(acts, false)
}

// attachDebugHooks logs every lifecycle hook.
func attachDebugHooks(engine *parley.Engine, logger *slog.Logger) {
	engine.OnAfterCreate(func(_ context.Context, c *hooks.CreateContext) error {
		logger.Debug("session created", "session_id", c.SessionID, "flow", c.Flow)
		return nil
	})
	engine.OnBeforeNodeEnter(func(_ context.Context, c *hooks.NodeEnterContext) error {
		logger.Debug("entering node", "session_id", c.SessionID, "flow", c.Flow, "node", c.Node)
		return nil
	})
	engine.OnBeforeTimeout(func(_ context.Context, c *hooks.TimeoutContext) error {
		logger.Debug("timeout", "session_id", c.SessionID, "flow", c.Flow, "node", c.Node)
		return nil
	})
	engine.OnBeforeEnd(func(_ context.Context, c *hooks.EndContext) error {
		logger.Debug("flow ended", "session_id", c.SessionID, "flow", c.Flow, "node", c.Node)
		return nil
	})
}
