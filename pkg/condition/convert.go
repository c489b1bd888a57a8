package condition

import (
	"encoding/json"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// bind converts v into an object value, adding null leaves for every attribute path
// the expression reads under one of the given root names.
func bind(v any, traversals []hcl.Traversal, roots ...string) (cty.Value, error) {
	native, err := normalize(v)
	if err != nil {
		return cty.NilVal, err
	}

	obj, ok := native.(map[string]any)
	if !ok {
		obj = map[string]any{}
	}

	for _, t := range traversals {
		if len(t) < 2 || !hasRoot(t.RootName(), roots) {
			continue
		}
		fillPath(obj, t[1:])
	}
	return toCty(obj)
}

func hasRoot(name string, roots []string) bool {
	for _, r := range roots {
		if r == name {
			return true
		}
	}
	return false
}

func fillPath(cur map[string]any, steps hcl.Traversal) {
	for i, step := range steps {
		name, ok := stepKey(step)
		if !ok {
			return
		}

		v, exists := cur[name]
		if !exists || v == nil {
			if i == len(steps)-1 {
				cur[name] = nil
				return
			}
			next := map[string]any{}
			cur[name] = next
			cur = next
			continue
		}

		m, ok := v.(map[string]any)
		if !ok {
			return
		}
		cur = m
	}
}

func stepKey(step hcl.Traverser) (string, bool) {
	switch s := step.(type) {
	case hcl.TraverseAttr:
		return s.Name, true
	case hcl.TraverseIndex:
		if s.Key.Type() == cty.String && s.Key.IsKnown() && !s.Key.IsNull() {
			return s.Key.AsString(), true
		}
	}
	return "", false
}

// normalize reduces arbitrary Go values to the JSON data model.
func normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("value is not serializable: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// toCty converts a Go value into a cty value.
func toCty(v any) (cty.Value, error) {
	switch val := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case cty.Value:
		return val, nil
	case string:
		return cty.StringVal(val), nil
	case bool:
		return cty.BoolVal(val), nil
	case float64:
		return cty.NumberFloatVal(val), nil
	case int:
		return cty.NumberIntVal(int64(val)), nil
	case int64:
		return cty.NumberIntVal(val), nil
	case map[string]any:
		if len(val) == 0 {
			return cty.EmptyObjectVal, nil
		}
		attrs := make(map[string]cty.Value, len(val))
		for k, sub := range val {
			cv, err := toCty(sub)
			if err != nil {
				return cty.NilVal, fmt.Errorf("in attribute '%s': %w", k, err)
			}
			attrs[k] = cv
		}
		return cty.ObjectVal(attrs), nil
	case []any:
		if len(val) == 0 {
			return cty.EmptyTupleVal, nil
		}
		elems := make([]cty.Value, len(val))
		for i, sub := range val {
			cv, err := toCty(sub)
			if err != nil {
				return cty.NilVal, err
			}
			elems[i] = cv
		}
		return cty.TupleVal(elems), nil
	default:
		native, err := normalize(val)
		if err != nil {
			return cty.NilVal, err
		}
		return toCty(native)
	}
}

// fromCty converts a cty value back into plain Go data.
func fromCty(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil
	case ty == cty.Number:
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, fmt.Errorf("could not convert number: %w", err)
		}
		return f, nil
	case ty == cty.Bool:
		return v.True(), nil
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			native, err := fromCty(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, native)
		}
		return out, nil
	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any)
		for it := v.ElementIterator(); it.Next(); {
			key, elem := it.Element()
			native, err := fromCty(elem)
			if err != nil {
				return nil, fmt.Errorf("in attribute '%s': %w", key.AsString(), err)
			}
			out[key.AsString()] = native
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
	}
}
