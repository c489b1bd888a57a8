package dsl

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/parley/pkg/domain"
)

// NodeBuilder provides a fluent API for configuring a node.
// Instructions go to onEnter until Wait is called, and to onReceive afterwards.
type NodeBuilder struct {
	node domain.Node
	flow *FlowBuilder
}

func (n *NodeBuilder) add(instruction string) *NodeBuilder {
	if n.node.OnReceive != nil {
		n.node.OnReceive = append(n.node.OnReceive, instruction)
	} else {
		n.node.OnEnter = append(n.node.OnEnter, instruction)
	}
	return n
}

// Say adds an output instruction, e.g. Say("#text", "Hello").
func (n *NodeBuilder) Say(msgType, value string) *NodeBuilder {
	if value == "" {
		return n.add("say " + msgType)
	}
	return n.add("say " + msgType + " " + value)
}

// Render adds a template output instruction.
func (n *NodeBuilder) Render(templateID, args string) *NodeBuilder {
	if args == "" {
		return n.add("render " + templateID)
	}
	return n.add("render " + templateID + " " + args)
}

// Do adds an action invocation. Argument values of the form "{{path}}" are resolved at runtime.
func (n *NodeBuilder) Do(action string, args map[string]any) *NodeBuilder {
	if len(args) == 0 {
		return n.add(action)
	}
	raw, err := json.Marshal(args)
	if err != nil {
		panic(fmt.Sprintf("dsl: arguments of %s are not serializable: %v", action, err))
	}
	return n.add(action + " " + string(raw))
}

// Instruction adds a raw instruction string.
func (n *NodeBuilder) Instruction(raw string) *NodeBuilder {
	return n.add(raw)
}

// Wait parks the session on this node until the next message.
func (n *NodeBuilder) Wait() *NodeBuilder {
	if n.node.OnReceive == nil {
		n.node.OnReceive = []string{}
	}
	return n
}

// Go adds an unconditional edge.
func (n *NodeBuilder) Go(target string) *NodeBuilder {
	return n.Branch("", target)
}

// Branch adds a conditional edge.
func (n *NodeBuilder) Branch(condition, target string) *NodeBuilder {
	n.node.Next = append(n.node.Next, domain.Edge{Condition: condition, Node: target})
	return n
}

// End adds an unconditional edge to the reserved end target.
func (n *NodeBuilder) End() *NodeBuilder {
	return n.Go(domain.EndTarget)
}

// Return adds an unconditional edge back to the calling flow.
func (n *NodeBuilder) Return(node string) *NodeBuilder {
	return n.Go(domain.ReturnPrefix + node)
}

// Timeout sets the node-level timeout target.
func (n *NodeBuilder) Timeout(target string) *NodeBuilder {
	n.node.TimeoutNode = target
	return n
}

// SkillCall turns the node into a delegation to another flow.
func (n *NodeBuilder) SkillCall(flowID string) *NodeBuilder {
	n.node.Type = domain.NodeSkillCall
	n.node.Flow = flowID
	return n
}

// Node continues with another node of the same flow.
func (n *NodeBuilder) Node(id string) *NodeBuilder {
	return n.flow.Node(id)
}

// Build returns the underlying domain.Node.
func (n *NodeBuilder) Build() domain.Node {
	out := n.node
	out.OnEnter = append([]string(nil), n.node.OnEnter...)
	if n.node.OnReceive != nil {
		out.OnReceive = append([]string{}, n.node.OnReceive...)
	}
	out.Next = append([]domain.Edge(nil), n.node.Next...)
	return out
}
