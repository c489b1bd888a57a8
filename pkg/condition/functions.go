package condition

import (
	"github.com/hashicorp/hcl/v2/ext/tryfunc"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// helperFunctions returns the pure functions available to every condition.
func helperFunctions() map[string]function.Function {
	return map[string]function.Function{
		"abs":       stdlib.AbsoluteFunc,
		"coalesce":  stdlib.CoalesceFunc,
		"contains":  stdlib.ContainsFunc,
		"keys":      stdlib.KeysFunc,
		"length":    stdlib.LengthFunc,
		"lower":     stdlib.LowerFunc,
		"regex":     stdlib.RegexFunc,
		"strlen":    stdlib.StrlenFunc,
		"trimspace": stdlib.TrimSpaceFunc,
		"upper":     stdlib.UpperFunc,
		"try":       tryfunc.TryFunc,
		"can":       tryfunc.CanFunc,
	}
}
