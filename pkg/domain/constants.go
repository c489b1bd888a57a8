package domain

const (
	// MaxStackSize is the hard cap on flow stack entries. Exceeding it aborts the turn.
	MaxStackSize = 100

	// FlowSuffix marks an identifier as a flow reference (e.g. "main.flow").
	FlowSuffix = ".flow"

	// DefaultFlowID is the flow a new session enters unless a hook overrides it.
	DefaultFlowID = "main" + FlowSuffix

	// TimeoutFlowID is the sentinel flow used as the last timeout fallback.
	TimeoutFlowID = "timeout" + FlowSuffix

	// TimeoutNodeID is the conventional per-flow timeout node name.
	TimeoutNodeID = "timeout"

	// EndTarget is the reserved edge target that ends the flow (case-insensitive).
	EndTarget = "end"

	// ReturnPrefix starts a "return from subflow" target, e.g. "#" or "#success".
	ReturnPrefix = "#"

	// ContextKeySuffix is appended to the session id to address the engine-owned context.
	ContextKeySuffix = "___context"
)
