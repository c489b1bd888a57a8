// Package process exposes allow-listed local commands as flow actions.
//
// Arguments reach the command as PARLEY_ARG_<NAME> environment variables, never as
// flags, and the session state is written to its stdin as JSON. A JSON object printed
// on stdout is merged into the session state; any other output is stored under the
// key named by the "save_to" argument, when given.
package process

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/aretw0/parley/pkg/actions"
	"github.com/aretw0/parley/pkg/domain"
)

// EnvArgPrefix prefixes every argument passed to a command.
const EnvArgPrefix = "PARLEY_ARG_"

// SaveToArg names the state key receiving non-JSON output.
const SaveToArg = "save_to"

// Option configures the generated actions.
type Option func(*settings)

type settings struct {
	baseDir string
	timeout time.Duration
}

// WithBaseDir sets the working directory of executed commands.
func WithBaseDir(dir string) Option {
	return func(s *settings) { s.baseDir = dir }
}

// WithTimeout bounds every command without its own timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// Actions builds one action per configured tool, ready for actions.Registry.Register.
func Actions(tools map[string]ToolConfig, opts ...Option) (map[string]actions.Action, error) {
	s := settings{timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(&s)
	}

	out := make(map[string]actions.Action, len(tools))
	for name, tool := range tools {
		timeout := s.timeout
		if tool.Timeout != "" {
			d, err := time.ParseDuration(tool.Timeout)
			if err != nil {
				return nil, fmt.Errorf("tool %s: invalid timeout: %w", name, err)
			}
			timeout = d
		}

		meta := map[string]any{"source": "process", "command": tool.Command}
		if tool.Description != "" {
			meta["description"] = tool.Description
		}
		out[name] = actions.Action{
			Handler:  handler(tool, s.baseDir, timeout),
			Metadata: meta,
		}
	}
	return out, nil
}

func handler(tool ToolConfig, dir string, timeout time.Duration) actions.Handler {
	return func(ctx context.Context, state domain.State, event domain.Event, args map[string]any) (any, error) {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		stdin, err := json.Marshal(map[string]any{"state": state, "event": event})
		if err != nil {
			return nil, fmt.Errorf("tool %s: encode input: %w", tool.Name, err)
		}

		cmd := exec.CommandContext(ctx, tool.Command, tool.Args...)
		cmd.Dir = dir
		cmd.Env = append(cmd.Environ(), environment(tool.Environment, args)...)
		cmd.Stdin = bytes.NewReader(stdin)

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			return nil, fmt.Errorf("tool %s failed: %w: %s", tool.Name, err, strings.TrimSpace(stderr.String()))
		}
		return merge(state, strings.TrimSpace(stdout.String()), args), nil
	}
}

func environment(fixed map[string]string, args map[string]any) []string {
	env := make([]string, 0, len(fixed)+len(args))
	for k, v := range fixed {
		env = append(env, k+"="+v)
	}
	for k, v := range args {
		env = append(env, EnvArgPrefix+strings.ToUpper(k)+"="+stringify(v))
	}
	return env
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int, int64, float64, bool:
		return fmt.Sprint(t)
	default:
		if b, err := json.Marshal(t); err == nil {
			return string(b)
		}
		return fmt.Sprint(t)
	}
}

// merge returns a new state carrying the command output, or nil when the output
// has nowhere to go.
func merge(state domain.State, output string, args map[string]any) any {
	if strings.HasPrefix(output, "{") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(output), &obj); err == nil {
			next := make(map[string]any, len(state)+len(obj))
			for k, v := range state {
				next[k] = v
			}
			for k, v := range obj {
				next[k] = v
			}
			return next
		}
	}

	key, _ := args[SaveToArg].(string)
	if key == "" {
		return nil
	}
	next := make(map[string]any, len(state)+1)
	for k, v := range state {
		next[k] = v
	}
	next[key] = output
	return next
}
