package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmatic/flowmatic/engine/core"
)

func TestFactory_GetModel(t *testing.T) {
	ctx := context.Background()

	t.Run("Should return the cached instance on repeated calls", func(t *testing.T) {
		factory := NewFactory(Credentials{OpenAIAPIKey: "test-key"})
		cfg := core.ModelConfig{Provider: core.ProviderOpenAI, Name: "gpt-4o", Temperature: 0.2}
		first, err := factory.GetModel(ctx, cfg)
		require.NoError(t, err)
		second, err := factory.GetModel(ctx, cfg)
		require.NoError(t, err)
		assert.Same(t, first, second)
	})

	t.Run("Should build distinct instances per temperature", func(t *testing.T) {
		factory := NewFactory(Credentials{OpenAIAPIKey: "test-key"})
		warm, err := factory.GetModel(ctx, core.ModelConfig{Provider: core.ProviderOpenAI, Name: "gpt-4o", Temperature: 0.9})
		require.NoError(t, err)
		cold, err := factory.GetModel(ctx, core.ModelConfig{Provider: core.ProviderOpenAI, Name: "gpt-4o", Temperature: 0.1})
		require.NoError(t, err)
		assert.NotSame(t, warm, cold)
	})

	t.Run("Should treat provider names case-insensitively", func(t *testing.T) {
		factory := NewFactory(Credentials{OpenAIAPIKey: "test-key"})
		lower, err := factory.GetModel(ctx, core.ModelConfig{Provider: "openai", Name: "gpt-4o"})
		require.NoError(t, err)
		upper, err := factory.GetModel(ctx, core.ModelConfig{Provider: "OpenAI", Name: "gpt-4o"})
		require.NoError(t, err)
		assert.Same(t, lower, upper)
	})

	t.Run("Should build an ollama client without credentials", func(t *testing.T) {
		factory := NewFactory(Credentials{})
		model, err := factory.GetModel(ctx, core.ModelConfig{Provider: core.ProviderOllama, Name: "llama3"})
		require.NoError(t, err)
		assert.NotNil(t, model)
	})

	t.Run("Should fail with missing_credential when the key is absent", func(t *testing.T) {
		factory := NewFactory(Credentials{})
		_, err := factory.GetModel(ctx, core.ModelConfig{Provider: core.ProviderOpenAI, Name: "gpt-4o"})
		require.Error(t, err)
		assert.True(t, core.IsCode(err, ErrCodeMissingCredential))
	})

	t.Run("Should fail with missing_credential when azure lacks an endpoint", func(t *testing.T) {
		factory := NewFactory(Credentials{AzureAPIKey: "test-key"})
		_, err := factory.GetModel(ctx, core.ModelConfig{Provider: core.ProviderAzure, Name: "my-deployment"})
		require.Error(t, err)
		assert.True(t, core.IsCode(err, ErrCodeMissingCredential))
	})

	t.Run("Should fail with unsupported_provider for unknown providers", func(t *testing.T) {
		factory := NewFactory(Credentials{})
		_, err := factory.GetModel(ctx, core.ModelConfig{Provider: "watson", Name: "granite"})
		require.Error(t, err)
		assert.True(t, core.IsCode(err, ErrCodeUnsupportedProvider))
	})

	t.Run("Should rebuild after invalidation", func(t *testing.T) {
		factory := NewFactory(Credentials{OpenAIAPIKey: "test-key"})
		cfg := core.ModelConfig{Provider: core.ProviderOpenAI, Name: "gpt-4o"}
		first, err := factory.GetModel(ctx, cfg)
		require.NoError(t, err)
		factory.Invalidate(cfg)
		second, err := factory.GetModel(ctx, cfg)
		require.NoError(t, err)
		assert.NotSame(t, first, second)
	})
}
