package agent

import (
	"github.com/flowmatic/flowmatic/engine/core"
)

// Config is the raw on-disk agent shape. Prompt paths are relative to the
// YAML file's parent directory. Unknown fields are tolerated.
type Config struct {
	ID               string           `yaml:"id"`
	Name             string           `yaml:"name"`
	Version          string           `yaml:"version"`
	Description      string           `yaml:"description"`
	SystemPromptPath string           `yaml:"systemPromptPath"`
	UserPromptPath   string           `yaml:"userPromptPath"`
	Model            core.ModelConfig `yaml:"model"`
	AllowedTools     []string         `yaml:"allowedTools"`
	Metadata         map[string]any   `yaml:"metadata"`
}

// Validate checks the fields required before an agent can be hydrated.
func (c *Config) Validate() error {
	missing := make([]string, 0, 3)
	if c.ID == "" {
		missing = append(missing, "id")
	}
	if c.Model.Provider == "" {
		missing = append(missing, "model.provider")
	}
	if c.Model.Name == "" {
		missing = append(missing, "model.name")
	}
	if len(missing) > 0 {
		return core.NewError(nil, ErrCodeConfigInvalid, map[string]any{
			"missing_fields": missing,
		})
	}
	return nil
}

// Definition is the hydrated, in-memory agent: prompts fully resolved with
// includes expanded and metadata placeholders substituted. Treat as immutable
// once constructed; the registry hands out the same instance to all readers.
type Definition struct {
	ID           string
	Name         string
	Version      string
	Description  string
	SystemPrompt string
	UserPrompt   string
	Model        core.ModelConfig
	AllowedTools []string
	Metadata     map[string]any
}
