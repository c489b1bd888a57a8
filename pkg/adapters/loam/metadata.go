package loam

// FlowMetadata is the document shape of a flow stored in a Loam repository.
// Nodes stay loosely typed so the shared decoder can widen single instructions into lists
// and keep the difference between a missing and an empty onReceive.
type FlowMetadata struct {
	ID          string           `json:"id" mapstructure:"id"`
	StartNode   string           `json:"startNode" mapstructure:"startNode"`
	Nodes       []map[string]any `json:"nodes" mapstructure:"nodes"`
	CatchAll    map[string]any   `json:"catchAll,omitempty" mapstructure:"catchAll"`
	TimeoutNode string           `json:"timeoutNode,omitempty" mapstructure:"timeoutNode"`
}

func (m FlowMetadata) document() map[string]any {
	nodes := make([]any, len(m.Nodes))
	for i, n := range m.Nodes {
		nodes[i] = n
	}

	doc := map[string]any{
		"startNode": m.StartNode,
		"nodes":     nodes,
	}
	if m.ID != "" {
		doc["id"] = m.ID
	}
	if m.CatchAll != nil {
		doc["catchAll"] = m.CatchAll
	}
	if m.TimeoutNode != "" {
		doc["timeoutNode"] = m.TimeoutNode
	}
	return doc
}
