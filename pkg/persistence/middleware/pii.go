package middleware

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

const masked = "***"

type piiMiddleware struct {
	next     ports.StateStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks state values whose keys match the patterns.
// Dialog contexts are stored untouched. Values that are not JSON objects pass through.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.StateStore) ports.StateStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) Set(ctx context.Context, key string, value []byte) error {
	if strings.HasSuffix(key, domain.ContextKeySuffix) {
		return m.next.Set(ctx, key, value)
	}

	var state map[string]any
	if err := json.Unmarshal(value, &state); err != nil || state == nil {
		return m.next.Set(ctx, key, value)
	}

	if !maskMap(state, m.patterns) {
		return m.next.Set(ctx, key, value)
	}

	out, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return m.next.Set(ctx, key, out)
}

func (m *piiMiddleware) Get(ctx context.Context, key string) ([]byte, error) {
	return m.next.Get(ctx, key)
}

func (m *piiMiddleware) Delete(ctx context.Context, key string) error {
	return m.next.Delete(ctx, key)
}

// maskMap masks matching keys in place and reports whether anything changed.
func maskMap(m map[string]any, patterns []*regexp.Regexp) bool {
	changed := false
	for k, v := range m {
		matched := false
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = masked
				matched, changed = true, true
				break
			}
		}
		if matched {
			continue
		}

		// Recurse if map
		if subMap, ok := v.(map[string]any); ok && maskMap(subMap, patterns) {
			changed = true
		}
	}
	return changed
}
