package actions

import "github.com/aretw0/parley/pkg/domain"

// Snapshot returns a deep copy of state. Nested maps and slices are copied;
// other values are shared.
func Snapshot(state domain.State) domain.State {
	if state == nil {
		return domain.State{}
	}
	return domain.State(copyMap(state))
}

func copyMap(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = copyValue(v)
	}
	return dst
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return copyMap(val)
	case domain.State:
		return domain.State(copyMap(val))
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}
