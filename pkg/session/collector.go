package session

import (
	"context"
	"sync"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/output"
)

// Collector is an output processor that hands the messages of a turn back to the
// code that started it. Messages of sessions not being captured are dropped.
type Collector struct {
	mu      sync.Mutex
	pending map[string][]domain.Message
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{pending: make(map[string][]domain.Message)}
}

// ID implements output.Processor.
func (c *Collector) ID() string { return "collector" }

// Send implements output.Processor.
func (c *Collector) Send(_ context.Context, out output.Output) error {
	if out.Context == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if msgs, ok := c.pending[out.Context.SessionID]; ok {
		c.pending[out.Context.SessionID] = append(msgs, out.Message)
	}
	return nil
}

// Capture runs fn and returns the messages sent to sessionID meanwhile.
// Captures of the same session must not overlap; run them under the session lock.
func (c *Collector) Capture(sessionID string, fn func()) []domain.Message {
	c.mu.Lock()
	c.pending[sessionID] = []domain.Message{}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, sessionID)
		c.mu.Unlock()
	}()

	fn()

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending[sessionID]
}
