package llm

import (
	"context"

	"github.com/flowmatic/flowmatic/engine/core"
	"github.com/tmc/langchaingo/llms"
)

// ChatModel is the single contract the engine needs from a provider client:
// one prompt in, one completion out.
type ChatModel interface {
	Chat(ctx context.Context, prompt string) (string, error)
}

// langchainModel adapts a langchaingo model to the ChatModel contract,
// applying the agent's sampling temperature on every call.
type langchainModel struct {
	model    llms.Model
	provider core.ProviderName
	config   core.ModelConfig
}

func newLangchainModel(model llms.Model, cfg core.ModelConfig) *langchainModel {
	return &langchainModel{
		model:    model,
		provider: cfg.Normalized(),
		config:   cfg,
	}
}

func (m *langchainModel) Chat(ctx context.Context, prompt string) (string, error) {
	opts := []llms.CallOption{}
	if m.config.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(m.config.Temperature))
	}
	response, err := llms.GenerateFromSinglePrompt(ctx, m.model, prompt, opts...)
	if err != nil {
		return "", Classify(err, m.provider)
	}
	return response, nil
}
