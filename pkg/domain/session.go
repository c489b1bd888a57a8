package domain

// State is the opaque session state threaded through actions.
// The engine never interprets its contents. A nil State signals the flow ended.
type State map[string]any

// StackEntry records a flow-boundary crossing.
type StackEntry struct {
	Flow string `json:"flow"`
	Node string `json:"node"`
}

// SessionContext is the engine-owned position of a session.
type SessionContext struct {
	SessionID string       `json:"sessionId"`
	Flow      string       `json:"flow"`
	Node      string       `json:"node,omitempty"`
	FlowStack []StackEntry `json:"flowStack"`

	// Jumped is set by an external jump and cleared by the next dispatch.
	Jumped bool `json:"hasJumped,omitempty"`
}

// NewSessionContext creates a context positioned at the entry of flow.
// The node stays unset until the first dispatch lands on the start node.
func NewSessionContext(sessionID string, flow *Flow) *SessionContext {
	return &SessionContext{
		SessionID: sessionID,
		Flow:      flow.ID,
		FlowStack: []StackEntry{{Flow: flow.ID, Node: flow.StartNode}},
	}
}

// Position is the current flow/node of a session. The zero value means "no active flow".
type Position struct {
	Flow string `json:"flow"`
	Node string `json:"node"`
}

// IsZero reports whether the position is empty.
func (p Position) IsZero() bool {
	return p.Flow == "" && p.Node == ""
}
