// Package dto decodes loosely typed flow documents (YAML, JSON, front matter)
// into domain flows.
package dto

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// DecodeFlow converts a generic document into a Flow.
// Scalars are weakly typed, so a single instruction string becomes a one-element list.
// When the document has no id, fallbackID is used and given the flow suffix.
func DecodeFlow(raw map[string]any, fallbackID string) (domain.Flow, error) {
	var flow domain.Flow

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &flow,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      false,
	})
	if err != nil {
		return domain.Flow{}, fmt.Errorf("failed to build decoder: %w", err)
	}

	if err := decoder.Decode(normalize(raw)); err != nil {
		return domain.Flow{}, fmt.Errorf("failed to decode flow %q: %w", fallbackID, err)
	}

	if flow.ID == "" {
		flow.ID = FlowID(fallbackID)
	}
	markWaitingNodes(raw, &flow)
	return flow, nil
}

// FlowID derives a flow id from a document path: "support/main.yaml" -> "support/main.flow".
func FlowID(path string) string {
	id := filepath.ToSlash(path)
	if domain.IsFlowID(id) {
		return id
	}
	if ext := filepath.Ext(id); ext != "" {
		id = strings.TrimSuffix(id, ext)
	}
	if domain.IsFlowID(id) {
		return id
	}
	return id + domain.FlowSuffix
}

// markWaitingNodes keeps the distinction between a missing and an empty onReceive.
// mapstructure leaves an empty list as nil, which would make the node non-waiting.
func markWaitingNodes(raw map[string]any, flow *domain.Flow) {
	nodes, ok := raw["nodes"].([]any)
	if !ok {
		return
	}
	for i, n := range nodes {
		if i >= len(flow.Nodes) {
			return
		}
		m, ok := n.(map[string]any)
		if !ok {
			continue
		}
		if v, present := m["onReceive"]; present && v != nil && flow.Nodes[i].OnReceive == nil {
			flow.Nodes[i].OnReceive = []string{}
		}
	}
}

// normalize converts map[any]any values (older YAML decoders) into map[string]any.
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, sub := range val {
			out[k] = normalize(sub)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, sub := range val {
			out[fmt.Sprintf("%v", k)] = normalize(sub)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, sub := range val {
			out[i] = normalize(sub)
		}
		return out
	default:
		return v
	}
}
