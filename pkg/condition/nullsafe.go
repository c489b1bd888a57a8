package condition

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Guards read fields that may not be set yet. A relational comparison with a null
// operand is false and "!" negates truthiness, so a missing field never fails a turn.
var (
	opNot = &hclsyntax.Operation{Impl: notFunc, Type: cty.Bool}

	relational = map[*hclsyntax.Operation]*hclsyntax.Operation{
		hclsyntax.OpGreaterThan:        {Impl: nullFalse(stdlib.GreaterThanFunc), Type: cty.Bool},
		hclsyntax.OpGreaterThanOrEqual: {Impl: nullFalse(stdlib.GreaterThanOrEqualToFunc), Type: cty.Bool},
		hclsyntax.OpLessThan:           {Impl: nullFalse(stdlib.LessThanFunc), Type: cty.Bool},
		hclsyntax.OpLessThanOrEqual:    {Impl: nullFalse(stdlib.LessThanOrEqualToFunc), Type: cty.Bool},
	}
)

var notFunc = function.New(&function.Spec{
	Params: []function.Parameter{{
		Name:             "val",
		Type:             cty.DynamicPseudoType,
		AllowNull:        true,
		AllowDynamicType: true,
	}},
	Type: function.StaticReturnType(cty.Bool),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		return cty.BoolVal(!truthy(args[0])), nil
	},
})

func nullFalse(cmp function.Function) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "a", Type: cty.Number, AllowNull: true},
			{Name: "b", Type: cty.Number, AllowNull: true},
		},
		Type: function.StaticReturnType(cty.Bool),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			if args[0].IsNull() || args[1].IsNull() {
				return cty.False, nil
			}
			return cmp.Call(args)
		},
	})
}

// truthy follows the usual scripting rules: null, false, 0 and "" are false.
func truthy(v cty.Value) bool {
	if v.IsNull() {
		return false
	}
	switch v.Type() {
	case cty.Bool:
		return v.True()
	case cty.Number:
		return v.AsBigFloat().Sign() != 0
	case cty.String:
		return v.AsString() != ""
	}
	return true
}

// makeNullSafe swaps the negation and relational operators of expr in place.
func makeNullSafe(expr hclsyntax.Expression) {
	hclsyntax.VisitAll(expr, func(n hclsyntax.Node) hcl.Diagnostics {
		switch op := n.(type) {
		case *hclsyntax.UnaryOpExpr:
			if op.Op == hclsyntax.OpLogicalNot {
				op.Op = opNot
			}
		case *hclsyntax.BinaryOpExpr:
			if safe, ok := relational[op.Op]; ok {
				op.Op = safe
			}
		}
		return nil
	})
}
