package core

import (
	"fmt"
	"strings"
)

// ProviderName identifies an LM provider backend.
type ProviderName string

const (
	ProviderOpenAI    ProviderName = "openai"
	ProviderGoogle    ProviderName = "google"
	ProviderGemini    ProviderName = "gemini"
	ProviderAnthropic ProviderName = "anthropic"
	ProviderClaude    ProviderName = "claude"
	ProviderOllama    ProviderName = "ollama"
	ProviderDeepSeek  ProviderName = "deepseek"
	ProviderGroq      ProviderName = "groq"
	ProviderAzure     ProviderName = "azure"
	ProviderAzureAlt  ProviderName = "azure-openai"
)

// ModelConfig selects a provider, model and sampling temperature for an agent.
type ModelConfig struct {
	Provider    ProviderName `json:"provider"              yaml:"provider"`
	Name        string       `json:"name"                  yaml:"name"`
	Temperature float64      `json:"temperature,omitempty" yaml:"temperature,omitempty"`
}

// Normalized returns the provider name lowered and trimmed, so YAML authors
// can write "OpenAI" or "Claude " interchangeably.
func (m ModelConfig) Normalized() ProviderName {
	return ProviderName(strings.ToLower(strings.TrimSpace(string(m.Provider))))
}

// CacheKey is the tuple identity used by the model cache.
func (m ModelConfig) CacheKey() string {
	return fmt.Sprintf("%s:%s:%g", m.Normalized(), m.Name, m.Temperature)
}
