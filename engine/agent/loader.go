package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/flowmatic/flowmatic/engine/core"
	"gopkg.in/yaml.v3"
)

// maxIncludeDepth caps recursive include expansion, which also bounds
// include cycles.
const maxIncludeDepth = 16

var includePattern = regexp.MustCompile(`\{\{include:(.*?)\}\}`)

// Loader hydrates agent definitions from YAML files. The base path confines
// prompt includes: a resolved include path escaping it is rejected.
type Loader struct {
	basePath string
}

// NewLoader creates a loader rooted at the catalog base directory.
func NewLoader(basePath string) *Loader {
	abs, err := filepath.Abs(basePath)
	if err != nil {
		abs = filepath.Clean(basePath)
	}
	return &Loader{basePath: abs}
}

// Load reads one agent YAML file and returns the hydrated definition.
// All relative prompt paths resolve against the file's parent directory.
func (l *Loader) Load(yamlPath string) (*Definition, error) {
	data, err := os.ReadFile(yamlPath)
	if err != nil {
		return nil, core.NewError(err, ErrCodeFileIO, map[string]any{"file": yamlPath})
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, core.NewError(err, ErrCodeConfigInvalid, map[string]any{"file": yamlPath})
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	promptDir := filepath.Dir(yamlPath)

	systemPrompt, err := l.loadPrompt(promptDir, cfg.SystemPromptPath, cfg.Metadata)
	if err != nil {
		return nil, err
	}
	userPrompt, err := l.loadPrompt(promptDir, cfg.UserPromptPath, cfg.Metadata)
	if err != nil {
		return nil, err
	}

	return &Definition{
		ID:           cfg.ID,
		Name:         cfg.Name,
		Version:      cfg.Version,
		Description:  cfg.Description,
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Model:        cfg.Model,
		AllowedTools: cfg.AllowedTools,
		Metadata:     cfg.Metadata,
	}, nil
}

// loadPrompt reads and fully processes one prompt file. A blank path yields
// the empty string.
func (l *Loader) loadPrompt(promptDir, relPath string, metadata map[string]any) (string, error) {
	raw, err := l.readPromptFile(promptDir, relPath)
	if err != nil {
		return "", err
	}
	expanded, err := l.expandIncludes(raw, promptDir, 0)
	if err != nil {
		return "", err
	}
	return substitutePlaceholders(expanded, metadata), nil
}

// readPromptFile resolves a relative prompt path against the prompt base
// directory and rejects paths escaping the catalog root.
func (l *Loader) readPromptFile(promptDir, relPath string) (string, error) {
	if strings.TrimSpace(relPath) == "" {
		return "", nil
	}
	fullPath := filepath.Clean(filepath.Join(promptDir, relPath))
	if !strings.HasPrefix(fullPath, l.basePath+string(filepath.Separator)) && fullPath != l.basePath {
		return "", core.NewError(nil, ErrCodePathEscape, map[string]any{
			"file": fullPath,
			"base": l.basePath,
		})
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", core.NewError(err, ErrCodeFileIO, map[string]any{"file": fullPath})
	}
	return string(data), nil
}

// expandIncludes replaces every {{include: path}} token with the referenced
// file's content, recursively. Include paths resolve against the prompt base
// directory regardless of nesting, matching how prompt authors reference
// sibling files from shared snippets.
func (l *Loader) expandIncludes(content, promptDir string, depth int) (string, error) {
	if depth > maxIncludeDepth {
		return "", core.NewError(
			fmt.Errorf("include nesting exceeds %d levels", maxIncludeDepth),
			ErrCodeIncludeDepth,
			nil,
		)
	}
	matches := includePattern.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return content, nil
	}
	var sb strings.Builder
	last := 0
	for _, m := range matches {
		sb.WriteString(content[last:m[0]])
		includePath := strings.TrimSpace(content[m[2]:m[3]])
		included, err := l.readPromptFile(promptDir, includePath)
		if err != nil {
			return "", err
		}
		expanded, err := l.expandIncludes(included, promptDir, depth+1)
		if err != nil {
			return "", err
		}
		sb.WriteString(expanded)
		last = m[1]
	}
	sb.WriteString(content[last:])
	return sb.String(), nil
}

// substitutePlaceholders replaces {{key}} tokens with stringified metadata
// values. Unknown keys stay literal.
func substitutePlaceholders(content string, metadata map[string]any) string {
	if len(metadata) == 0 {
		return content
	}
	for key, value := range metadata {
		token := "{{" + key + "}}"
		content = strings.ReplaceAll(content, token, fmt.Sprintf("%v", value))
	}
	return content
}
