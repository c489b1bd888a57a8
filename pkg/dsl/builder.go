package dsl

import (
	"fmt"

	"github.com/aretw0/parley/internal/validator"
	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
)

// Builder manages the construction of a set of flows.
type Builder struct {
	flows []*FlowBuilder
}

// New creates a new builder.
func New() *Builder {
	return &Builder{}
}

// Flow returns the builder for the flow with the given id, creating it if needed.
// The ".flow" suffix is added when missing.
func (b *Builder) Flow(id string) *FlowBuilder {
	if !domain.IsFlowID(id) {
		id += domain.FlowSuffix
	}
	for _, fb := range b.flows {
		if fb.flow.ID == id {
			return fb
		}
	}
	fb := &FlowBuilder{flow: domain.Flow{ID: id}, builder: b}
	b.flows = append(b.flows, fb)
	return fb
}

// Flows returns the flows as built so far, without validation.
func (b *Builder) Flows() []domain.Flow {
	out := make([]domain.Flow, 0, len(b.flows))
	for _, fb := range b.flows {
		out = append(out, fb.Build())
	}
	return out
}

// Build validates the flows and compiles them into an in-memory flow store.
func (b *Builder) Build() (*memory.FlowStore, error) {
	flows := b.Flows()
	if err := validator.Validate(flows); err != nil {
		return nil, fmt.Errorf("failed to build flows: %w", err)
	}
	return memory.NewFlowStore(flows...), nil
}

// FlowBuilder provides a fluent API for configuring a flow.
type FlowBuilder struct {
	flow    domain.Flow
	nodes   []*NodeBuilder
	builder *Builder
}

// Node returns the builder for the node, creating it if needed.
// The first node created becomes the start node unless Start is called.
func (f *FlowBuilder) Node(id string) *NodeBuilder {
	for _, nb := range f.nodes {
		if nb.node.ID == id {
			return nb
		}
	}
	if f.flow.StartNode == "" {
		f.flow.StartNode = id
	}
	nb := &NodeBuilder{node: domain.Node{ID: id}, flow: f}
	f.nodes = append(f.nodes, nb)
	return nb
}

// Start sets the start node.
func (f *FlowBuilder) Start(id string) *FlowBuilder {
	f.flow.StartNode = id
	return f
}

// Timeout sets the flow-level timeout target.
func (f *FlowBuilder) Timeout(target string) *FlowBuilder {
	f.flow.TimeoutNode = target
	return f
}

// CatchAll adds instructions run on every turn before the current node.
func (f *FlowBuilder) CatchAll(instructions ...string) *FlowBuilder {
	f.catchAll().OnReceive = append(f.catchAll().OnReceive, instructions...)
	return f
}

// CatchAllBranch adds a flow-level edge checked on every turn before the current node.
func (f *FlowBuilder) CatchAllBranch(condition, target string) *FlowBuilder {
	f.catchAll().Next = append(f.catchAll().Next, domain.Edge{Condition: condition, Node: target})
	return f
}

func (f *FlowBuilder) catchAll() *domain.CatchAll {
	if f.flow.CatchAll == nil {
		f.flow.CatchAll = &domain.CatchAll{}
	}
	return f.flow.CatchAll
}

// Flow switches to another flow of the same builder.
func (f *FlowBuilder) Flow(id string) *FlowBuilder {
	return f.builder.Flow(id)
}

// Build returns the underlying domain.Flow.
func (f *FlowBuilder) Build() domain.Flow {
	out := f.flow
	out.Nodes = make([]domain.Node, 0, len(f.nodes))
	for _, nb := range f.nodes {
		out.Nodes = append(out.Nodes, nb.Build())
	}
	return out
}
