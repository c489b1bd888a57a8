// Package hooks provides ordered, cooperative extension points.
package hooks

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/parley/pkg/domain"
)

// Handler observes (and for some pipelines mutates) a hook payload.
// Returning an error aborts the remaining handlers.
type Handler[T any] func(ctx context.Context, payload *T) error

// Pipeline runs handlers sequentially in registration order. Safe for concurrent use.
type Pipeline[T any] struct {
	name     string
	mu       sync.RWMutex
	handlers []Handler[T]
}

// NewPipeline creates a named pipeline.
func NewPipeline[T any](name string) *Pipeline[T] {
	return &Pipeline[T]{name: name}
}

// Name returns the pipeline name.
func (p *Pipeline[T]) Name() string {
	return p.name
}

// Use appends a handler.
func (p *Pipeline[T]) Use(h Handler[T]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, h)
}

// Len returns the number of handlers.
func (p *Pipeline[T]) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.handlers)
}

// Run invokes every handler in order with the same payload.
func (p *Pipeline[T]) Run(ctx context.Context, payload *T) error {
	p.mu.RLock()
	handlers := append([]Handler[T](nil), p.handlers...)
	p.mu.RUnlock()

	for i, h := range handlers {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h(ctx, payload); err != nil {
			return fmt.Errorf("%s hook #%d: %w", p.name, i, err)
		}
	}
	return nil
}

// ErrorHandler receives every fault recovered at the turn boundary.
type ErrorHandler func(err error)

// CreateContext is passed to the before-create and after-create hooks.
// Before-create handlers may set Flow to choose the flow a new session enters.
type CreateContext struct {
	SessionID string
	Event     domain.Event
	Flow      string
}

// EndContext is passed to the before-end hook.
type EndContext struct {
	SessionID string
	Flow      string
	Node      string
}

// NodeEnterContext is passed to the before-node-enter hook.
type NodeEnterContext struct {
	SessionID string
	Flow      string
	Node      string
	Event     domain.Event
	State     domain.State
}

// TimeoutContext is passed to the before-timeout hook.
type TimeoutContext struct {
	SessionID string
	Flow      string
	Node      string
	Event     domain.Event
}
