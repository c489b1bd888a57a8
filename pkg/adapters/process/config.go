package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the tool registry file looked up in a project directory.
const DefaultConfigFile = "tools.yaml"

// ToolConfig describes an external command exposed as a flow action.
type ToolConfig struct {
	Name        string            `yaml:"name" json:"name"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Description string            `yaml:"description" json:"description"`
	Timeout     string            `yaml:"timeout" json:"timeout"`
}

// ConfigFile represents the structure of tools.yaml.
type ConfigFile struct {
	Tools []ToolConfig `yaml:"tools" json:"tools"`
}

// LoadTools reads a tool registry (YAML or JSON by extension).
// A missing file yields an empty registry.
func LoadTools(path string) (map[string]ToolConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]ToolConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read tools config: %w", err)
	}

	var cfg ConfigFile
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}

	tools := make(map[string]ToolConfig, len(cfg.Tools))
	for _, tool := range cfg.Tools {
		if tool.Name == "" {
			continue
		}
		if tool.Command == "" {
			return nil, fmt.Errorf("tool %s has no command", tool.Name)
		}
		tools[tool.Name] = tool
	}
	return tools, nil
}
