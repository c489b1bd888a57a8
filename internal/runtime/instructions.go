package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/aretw0/parley/pkg/actions"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/tidwall/gjson"
)

var indexPattern = regexp.MustCompile(`\[(\d+)\]`)

// instruction is a parsed instruction string.
type instruction struct {
	// output directive ("say"/"render")
	message *domain.Message

	// action invocation
	name string
	args map[string]any
}

// parseInstruction splits raw into an output directive or an action call.
// Malformed output directives return (nil, nil) and are skipped by the caller.
func parseInstruction(raw string) (*instruction, error) {
	for _, verb := range []string{"say ", "render "} {
		if !strings.HasPrefix(raw, verb) {
			continue
		}
		parts := strings.SplitN(raw, " ", 3)
		if len(parts) < 2 || strings.TrimSpace(parts[1]) == "" {
			return nil, nil
		}
		msg := &domain.Message{Type: parts[1]}
		if len(parts) == 3 {
			msg.Value = parts[2]
		}
		return &instruction{message: msg}, nil
	}

	name, argStr, hasArgs := strings.Cut(strings.TrimSpace(raw), " ")
	in := &instruction{name: name, args: map[string]any{}}
	if !hasArgs || strings.TrimSpace(argStr) == "" {
		return in, nil
	}

	if err := json.Unmarshal([]byte(argStr), &in.args); err != nil {
		return nil, fmt.Errorf("%w: action %q has invalid arguments (not a JSON object): %s",
			domain.ErrInvalidInstruction, name, argStr)
	}
	if in.args == nil {
		in.args = map[string]any{}
	}
	return in, nil
}

// resolveArgs replaces "{{path}}" values with the value found at path in
// {state, s, event, e}. Missing paths resolve to nil.
func resolveArgs(args map[string]any, state domain.State, event domain.Event) (map[string]any, error) {
	var scope []byte
	out := make(map[string]any, len(args))

	for k, v := range args {
		s, ok := v.(string)
		if !ok || !strings.HasPrefix(s, "{{") || !strings.HasSuffix(s, "}}") || len(s) < 4 {
			out[k] = v
			continue
		}

		if scope == nil {
			var err error
			scope, err = json.Marshal(map[string]any{"state": state, "s": state, "event": event, "e": event})
			if err != nil {
				return nil, fmt.Errorf("failed to build argument scope: %w", err)
			}
		}

		path := strings.TrimSpace(s[2 : len(s)-2])
		path = indexPattern.ReplaceAllString(path, ".$1")
		if res := gjson.GetBytes(scope, path); res.Exists() {
			out[k] = res.Value()
		} else {
			out[k] = nil
		}
	}
	return out, nil
}

// runInstructions executes instructions in order, threading the state through actions.
func (e *Engine) runInstructions(ctx context.Context, t *turn, list []string) error {
	for _, raw := range list {
		in, err := parseInstruction(raw)
		if err != nil {
			return err
		}
		if in == nil {
			e.logger.Warn("invalid output instruction; expected e.g. \"say #text Something\"", "instruction", raw)
			continue
		}

		if in.message != nil {
			e.trace(ctx, "SEND", t, "type", in.message.Type, "value", truncate(in.message.Value, 20))
			if err := e.output.Dispatch(ctx, *in.message, actions.Snapshot(t.state), t.event, t.sctx); err != nil {
				e.logger.Warn("output dispatch failed", "session", t.sessionID, "err", err)
			}
			continue
		}

		args, err := resolveArgs(in.args, t.state, t.event)
		if err != nil {
			return err
		}

		e.trace(ctx, "EXEC", t, "action", in.name)
		next, err := e.actions.Invoke(ctx, in.name, t.state, t.event, args)
		if err != nil {
			return err
		}
		t.state = next
	}
	return nil
}
