package domain

import (
	"regexp"
	"strings"
)

// TargetKind classifies a dispatch target string.
type TargetKind int

const (
	// TargetNode is a node in the current flow (possibly empty, meaning the start node).
	TargetNode TargetKind = iota
	// TargetSubflow enters another flow: "<flow>" or "<flow> @ <node>".
	TargetSubflow
	// TargetReturn returns from a subflow: "#" or "#<node>".
	TargetReturn
)

var subflowPattern = regexp.MustCompile(`^\s*(\S+\.flow)\s*(?:@\s*(\S+))?\s*$`)

// Target is a parsed dispatch target.
type Target struct {
	Kind TargetKind
	Flow string // TargetSubflow only
	Node string // optional for TargetSubflow and TargetReturn
}

// ParseTarget classifies a raw edge/dispatch target.
func ParseTarget(raw string) Target {
	if m := subflowPattern.FindStringSubmatch(raw); m != nil {
		return Target{Kind: TargetSubflow, Flow: m[1], Node: m[2]}
	}
	if strings.HasPrefix(raw, ReturnPrefix) {
		return Target{Kind: TargetReturn, Node: strings.TrimSpace(raw[len(ReturnPrefix):])}
	}
	return Target{Kind: TargetNode, Node: raw}
}

// IsEnd reports whether raw is the reserved "end" target.
func IsEnd(raw string) bool {
	return strings.EqualFold(strings.TrimSpace(raw), EndTarget)
}
