package config

import "time"

// Config is the full process configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"    validate:"required"`
	GenAI     GenAIConfig     `koanf:"genai"     validate:"required"`
	Worker    WorkerConfig    `koanf:"worker"    validate:"required"`
	Providers ProvidersConfig `koanf:"providers"`
	Log       LogConfig       `koanf:"log"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port" validate:"gte=1,lte=65535"`
}

// GenAIConfig points the engine at the on-disk agent/workflow catalog.
type GenAIConfig struct {
	// BasePath is the directory holding the agents/ and workflows/ subtrees.
	BasePath string `koanf:"base_path" validate:"required"`
	// EnforceAllowedAgents makes router runs reject a manager choice outside
	// allowedAgents instead of accepting it verbatim.
	EnforceAllowedAgents bool `koanf:"enforce_allowed_agents"`
}

// WorkerConfig sizes the execution pool and job retention.
type WorkerConfig struct {
	Count int `koanf:"count" validate:"gte=1"`
	// JobTTL is how long terminal job records are kept. Zero disables sweeping.
	JobTTL time.Duration `koanf:"job_ttl"`
	// SweepSchedule is a cron expression for the retention sweep.
	SweepSchedule string `koanf:"sweep_schedule"`
}

// ProvidersConfig carries per-provider credentials and endpoints.
type ProvidersConfig struct {
	OpenAIAPIKey    SensitiveString `koanf:"openai_api_key"    env:"OPENAI_API_KEY"`
	GeminiAPIKey    SensitiveString `koanf:"gemini_api_key"    env:"GEMINI_API_KEY"`
	AnthropicAPIKey SensitiveString `koanf:"anthropic_api_key" env:"ANTHROPIC_API_KEY"`
	DeepSeekAPIKey  SensitiveString `koanf:"deepseek_api_key"  env:"DEEPSEEK_API_KEY"`
	GroqAPIKey      SensitiveString `koanf:"groq_api_key"      env:"GROQ_API_KEY"`
	OllamaBaseURL   string          `koanf:"ollama_base_url"   env:"OLLAMA_BASE_URL"`
	AzureEndpoint   string          `koanf:"azure_endpoint"    env:"AZURE_OPENAI_ENDPOINT"`
	AzureAPIKey     SensitiveString `koanf:"azure_api_key"     env:"AZURE_OPENAI_API_KEY"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

// Default returns the built-in configuration baseline.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		GenAI: GenAIConfig{},
		Worker: WorkerConfig{
			Count:         4,
			JobTTL:        0,
			SweepSchedule: "@every 10m",
		},
		Providers: ProvidersConfig{
			OllamaBaseURL: "http://localhost:11434",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
