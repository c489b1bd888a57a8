package domain

import "errors"

// ErrNotFound is returned by state stores when a key does not exist.
var ErrNotFound = errors.New("not found")

// ErrFlowNotFound is returned when a flow id cannot be resolved in the loaded flow set.
var ErrFlowNotFound = errors.New("flow not found")

// ErrNodeNotFound is returned when a node cannot be resolved in its flow.
var ErrNodeNotFound = errors.New("node not found")

// ErrNoCurrentFlow is returned when a session context does not point at a loaded flow.
var ErrNoCurrentFlow = errors.New("session has no current flow")

// ErrStackOverflow is returned when the flow stack grows past MaxStackSize.
// It usually means the flows loop between each other without returning.
var ErrStackOverflow = errors.New("flow stack overflow")

// ErrInvalidInstruction is returned when an instruction cannot be parsed.
var ErrInvalidInstruction = errors.New("invalid instruction")

// ErrDispatchLoop is returned when a single turn keeps transitioning without ever
// reaching a waiting node, e.g. two nodes with unconditional edges to each other.
var ErrDispatchLoop = errors.New("dispatch loop detected")
