// Package actions holds the named side-effecting handlers that flow instructions and
// conditions can invoke.
package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"runtime/debug"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
)

// ErrActionExists is returned when registering a name that is already taken without overwrite.
var ErrActionExists = errors.New("action already registered")

// Handler implements an action. It receives a private snapshot of the session state.
// Returning a new map replaces the session state; any other value leaves it unchanged.
type Handler func(ctx context.Context, state domain.State, event domain.Event, args map[string]any) (any, error)

// Action is a registered handler with optional descriptive metadata.
type Action struct {
	Handler  Handler
	Metadata map[string]any
}

// MetadataProvider supplies metadata for an action at registration time.
// Returning nil defers to the next provider.
type MetadataProvider func(name string) map[string]any

// Info describes a registered action for listings.
type Info struct {
	Name     string         `json:"name"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Registry manages the available actions. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	actions   map[string]Action
	providers []MetadataProvider
	logger    *slog.Logger
}

// NewRegistry creates a new empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Registry{
		actions: make(map[string]Action),
		logger:  logger,
	}
}

// RegisterMetadataProvider adds a provider consulted by later registrations.
func (r *Registry) RegisterMetadataProvider(p MetadataProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = append(r.providers, p)
}

// Register adds the given actions. A missing handler, or a name collision without
// overwrite, fails the whole call and nothing is registered.
func (r *Registry) Register(actions map[string]Action, overwrite bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, a := range actions {
		if a.Handler == nil {
			return fmt.Errorf("action %s has no handler", name)
		}
		if _, exists := r.actions[name]; exists && !overwrite {
			return fmt.Errorf("%w: %s", ErrActionExists, name)
		}
	}

	for name, a := range actions {
		a.Metadata = r.mergeMetadata(name, a.Metadata)
		r.actions[name] = a
	}
	return nil
}

// RegisterFunc is a shorthand for registering a single handler without metadata.
func (r *Registry) RegisterFunc(name string, h Handler, overwrite bool) error {
	return r.Register(map[string]Action{name: {Handler: h}}, overwrite)
}

func (r *Registry) mergeMetadata(name string, own map[string]any) map[string]any {
	var provided map[string]any
	for _, p := range r.providers {
		if m := p(name); m != nil {
			provided = m
			break
		}
	}
	if provided == nil && own == nil {
		return nil
	}

	merged := make(map[string]any, len(provided)+len(own))
	for k, v := range provided {
		merged[k] = v
	}
	for k, v := range own {
		merged[k] = v
	}
	return merged
}

// Lookup returns the action registered under name.
func (r *Registry) Lookup(name string) (Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[name]
	return a, ok
}

// Names returns every registered name, including hidden ones.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns the public actions sorted by name. Names starting with "__" are internal.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.actions))
	for name, a := range r.actions {
		if strings.HasPrefix(name, "__") {
			continue
		}
		infos = append(infos, Info{Name: name, Metadata: a.Metadata})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Call runs the handler registered under name with a snapshot of state and returns its raw result.
// Unknown names return (nil, false, nil). Panics are converted into errors.
func (r *Registry) Call(ctx context.Context, name string, state domain.State, event domain.Event, args map[string]any) (result any, found bool, err error) {
	a, ok := r.Lookup(name)
	if !ok {
		return nil, false, nil
	}
	result, err = r.run(ctx, name, a, Snapshot(state), event, args)
	return result, true, err
}

// Invoke runs an action and applies its result to state.
// An unknown name is a logged no-op. A handler returning the very snapshot it was
// given is an authoring error: it is logged and the prior state is kept.
func (r *Registry) Invoke(ctx context.Context, name string, state domain.State, event domain.Event, args map[string]any) (domain.State, error) {
	a, ok := r.Lookup(name)
	if !ok {
		r.logger.Warn("unknown action", "action", name)
		return state, nil
	}

	snapshot := Snapshot(state)
	result, err := r.run(ctx, name, a, snapshot, event, args)
	if err != nil {
		return state, err
	}

	next, isMap := asState(result)
	if !isMap {
		return state, nil
	}
	if sameMap(next, snapshot) {
		r.logger.Error("action returned its input state; return a new map instead of mutating", "action", name)
		return state, nil
	}
	return next, nil
}

func (r *Registry) run(ctx context.Context, name string, a Action, snapshot domain.State, event domain.Event, args map[string]any) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("action %s panicked: %v\n%s", name, rec, debug.Stack())
		}
	}()

	result, err = a.Handler(ctx, snapshot, event, args)
	if err != nil {
		return nil, fmt.Errorf("action %s failed: %w", name, err)
	}
	return result, nil
}

func asState(v any) (domain.State, bool) {
	switch m := v.(type) {
	case domain.State:
		return m, m != nil
	case map[string]any:
		return domain.State(m), m != nil
	}
	return nil, false
}

func sameMap(a, b domain.State) bool {
	if a == nil || b == nil {
		return false
	}
	return reflect.ValueOf(a).UnsafePointer() == reflect.ValueOf(b).UnsafePointer()
}
