package domain

import "strings"

// NodeKind constants define how a node hands off control.
const (
	// NodeStandard runs its instructions and follows its edges.
	NodeStandard = "standard"
	// NodeSkillCall delegates execution into the flow named by Node.Flow.
	NodeSkillCall = "skill-call"
)

// Edge is an ordered, conditioned transition out of a node (or out of a catch-all block).
type Edge struct {
	// Condition is an expression evaluated against state and event.
	// Empty, "true", "always" and "yes" are unconditional.
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty" mapstructure:"condition"`

	// Node is the dispatch target: a node id, "<flow> [@ node]", "#[node]" or "end".
	Node string `json:"node" yaml:"node" mapstructure:"node" validate:"required"`
}

// CatchAll holds flow-level logic evaluated ahead of the current node on every turn.
type CatchAll struct {
	OnReceive []string `json:"onReceive,omitempty" yaml:"onReceive,omitempty" mapstructure:"onReceive"`
	Next      []Edge   `json:"next,omitempty" yaml:"next,omitempty" mapstructure:"next" validate:"dive"`
}

// Node is a step in a Flow.
type Node struct {
	ID   string `json:"id" yaml:"id" mapstructure:"id" validate:"required"`
	Type string `json:"type,omitempty" yaml:"type,omitempty" mapstructure:"type" validate:"omitempty,oneof=standard skill-call"`

	OnEnter []string `json:"onEnter,omitempty" yaml:"onEnter,omitempty" mapstructure:"onEnter"`

	// OnReceive runs when a message arrives while the session is parked on this node.
	// A present but empty list still marks the node as waiting for input.
	OnReceive []string `json:"onReceive" yaml:"onReceive" mapstructure:"onReceive"`

	Next []Edge `json:"next,omitempty" yaml:"next,omitempty" mapstructure:"next" validate:"dive"`

	TimeoutNode string `json:"timeoutNode,omitempty" yaml:"timeoutNode,omitempty" mapstructure:"timeoutNode"`

	// Flow is the target flow id of a skill-call node.
	Flow string `json:"flow,omitempty" yaml:"flow,omitempty" mapstructure:"flow" validate:"required_if=Type skill-call"`
}

// Waits reports whether the node parks the session until the next message.
func (n *Node) Waits() bool {
	return n.OnReceive != nil
}

// IsSkillCall reports whether the node delegates into another flow.
func (n *Node) IsSkillCall() bool {
	return n.Type == NodeSkillCall && n.Flow != ""
}

// Flow is a named directed graph of Nodes. Flows are immutable once loaded.
type Flow struct {
	ID          string    `json:"id" yaml:"id" mapstructure:"id" validate:"required,endswith=.flow"`
	StartNode   string    `json:"startNode" yaml:"startNode" mapstructure:"startNode" validate:"required"`
	Nodes       []Node    `json:"nodes" yaml:"nodes" mapstructure:"nodes" validate:"required,min=1,dive"`
	CatchAll    *CatchAll `json:"catchAll,omitempty" yaml:"catchAll,omitempty" mapstructure:"catchAll"`
	TimeoutNode string    `json:"timeoutNode,omitempty" yaml:"timeoutNode,omitempty" mapstructure:"timeoutNode"`
}

// Node looks up a node by id. It returns nil when the id is unknown.
func (f *Flow) Node(id string) *Node {
	if f == nil || id == "" {
		return nil
	}
	for i := range f.Nodes {
		if f.Nodes[i].ID == id {
			return &f.Nodes[i]
		}
	}
	return nil
}

// IsFlowID reports whether id names a flow rather than a node.
func IsFlowID(id string) bool {
	return strings.HasSuffix(id, FlowSuffix) && len(id) > len(FlowSuffix)
}
