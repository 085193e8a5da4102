package llm

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/flowmatic/flowmatic/engine/core"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	deepSeekBaseURL = "https://api.deepseek.com"
	groqBaseURL     = "https://api.groq.com/openai/v1"

	openAITimeout = 60 * time.Second

	// defaultCacheSize bounds the model cache. Clients are keyed by
	// (provider, model, temperature); in practice a deployment has a
	// handful of distinct tuples, so eviction only ever fires as a safety
	// valve against unbounded catalog churn.
	defaultCacheSize = 128
)

// Credentials carries provider keys and endpoints resolved from process
// configuration. Missing entries surface on first use of the provider.
type Credentials struct {
	OpenAIAPIKey    string
	GeminiAPIKey    string
	AnthropicAPIKey string
	DeepSeekAPIKey  string
	GroqAPIKey      string
	OllamaBaseURL   string
	AzureEndpoint   string
	AzureAPIKey     string
}

// Factory produces cached ChatModel instances keyed by
// (provider, model name, temperature).
type Factory struct {
	creds Credentials
	cache *lru.Cache[string, ChatModel]
	mu    sync.Mutex
}

// NewFactory creates a model factory with the given credentials.
func NewFactory(creds Credentials) *Factory {
	cache, _ := lru.New[string, ChatModel](defaultCacheSize)
	return &Factory{creds: creds, cache: cache}
}

// GetModel returns the cached client for the model tuple, constructing one on
// first use. Construction is serialized so a key is only ever built once.
func (f *Factory) GetModel(ctx context.Context, cfg core.ModelConfig) (ChatModel, error) {
	key := cfg.CacheKey()
	if model, ok := f.cache.Get(key); ok {
		return model, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if model, ok := f.cache.Get(key); ok {
		return model, nil
	}

	model, err := f.buildModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	wrapped := newLangchainModel(model, cfg)
	f.cache.Add(key, wrapped)
	return wrapped, nil
}

// Invalidate drops a cached client, forcing reconstruction on next use.
func (f *Factory) Invalidate(cfg core.ModelConfig) {
	f.cache.Remove(cfg.CacheKey())
}

func (f *Factory) buildModel(ctx context.Context, cfg core.ModelConfig) (llms.Model, error) {
	switch provider := cfg.Normalized(); provider {
	case core.ProviderOpenAI:
		key, err := f.requireKey(provider, f.creds.OpenAIAPIKey)
		if err != nil {
			return nil, err
		}
		return openai.New(
			openai.WithModel(cfg.Name),
			openai.WithToken(key),
			openai.WithHTTPClient(&http.Client{Timeout: openAITimeout}),
		)

	case core.ProviderGemini, core.ProviderGoogle:
		key, err := f.requireKey(provider, f.creds.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		return googleai.New(ctx,
			googleai.WithAPIKey(key),
			googleai.WithDefaultModel(cfg.Name),
		)

	case core.ProviderAnthropic, core.ProviderClaude:
		key, err := f.requireKey(provider, f.creds.AnthropicAPIKey)
		if err != nil {
			return nil, err
		}
		return anthropic.New(
			anthropic.WithToken(key),
			anthropic.WithModel(cfg.Name),
		)

	case core.ProviderOllama:
		baseURL := f.creds.OllamaBaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return ollama.New(
			ollama.WithModel(cfg.Name),
			ollama.WithServerURL(baseURL),
		)

	case core.ProviderDeepSeek:
		key, err := f.requireKey(provider, f.creds.DeepSeekAPIKey)
		if err != nil {
			return nil, err
		}
		return openai.New(
			openai.WithModel(cfg.Name),
			openai.WithToken(key),
			openai.WithBaseURL(deepSeekBaseURL),
		)

	case core.ProviderGroq:
		key, err := f.requireKey(provider, f.creds.GroqAPIKey)
		if err != nil {
			return nil, err
		}
		return openai.New(
			openai.WithModel(cfg.Name),
			openai.WithToken(key),
			openai.WithBaseURL(groqBaseURL),
		)

	case core.ProviderAzure, core.ProviderAzureAlt:
		key, err := f.requireKey(provider, f.creds.AzureAPIKey)
		if err != nil {
			return nil, err
		}
		if f.creds.AzureEndpoint == "" {
			return nil, core.NewError(nil, ErrCodeMissingCredential, map[string]any{
				"provider": provider,
				"missing":  "endpoint",
			})
		}
		// On Azure the model name denotes the deployment name.
		return openai.New(
			openai.WithAPIType(openai.APITypeAzure),
			openai.WithBaseURL(f.creds.AzureEndpoint),
			openai.WithToken(key),
			openai.WithModel(cfg.Name),
		)

	default:
		return nil, core.NewError(nil, ErrCodeUnsupportedProvider, map[string]any{
			"provider": provider,
		})
	}
}

func (f *Factory) requireKey(provider core.ProviderName, key string) (string, error) {
	if key == "" {
		return "", core.NewError(nil, ErrCodeMissingCredential, map[string]any{
			"provider": provider,
		})
	}
	return key, nil
}
