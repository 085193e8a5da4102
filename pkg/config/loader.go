package config

import (
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// envMappings routes well-known environment variables onto config paths.
// Provider credentials keep their conventional names; everything else is
// namespaced under FLOWMATIC_.
var envMappings = map[string]string{
	"FLOWMATIC_SERVER_HOST":                  "server.host",
	"FLOWMATIC_SERVER_PORT":                  "server.port",
	"FLOWMATIC_GENAI_BASE_PATH":              "genai.base_path",
	"FLOWMATIC_GENAI_ENFORCE_ALLOWED_AGENTS": "genai.enforce_allowed_agents",
	"FLOWMATIC_WORKER_COUNT":                 "worker.count",
	"FLOWMATIC_WORKER_JOB_TTL":               "worker.job_ttl",
	"FLOWMATIC_WORKER_SWEEP_SCHEDULE":        "worker.sweep_schedule",
	"FLOWMATIC_LOG_LEVEL":                    "log.level",
	"FLOWMATIC_LOG_JSON":                     "log.json",
	"OPENAI_API_KEY":                         "providers.openai_api_key",
	"GEMINI_API_KEY":                         "providers.gemini_api_key",
	"GOOGLE_API_KEY":                         "providers.gemini_api_key",
	"ANTHROPIC_API_KEY":                      "providers.anthropic_api_key",
	"DEEPSEEK_API_KEY":                       "providers.deepseek_api_key",
	"GROQ_API_KEY":                           "providers.groq_api_key",
	"OLLAMA_BASE_URL":                        "providers.ollama_base_url",
	"AZURE_OPENAI_ENDPOINT":                  "providers.azure_endpoint",
	"AZURE_OPENAI_API_KEY":                   "providers.azure_api_key",
}

// Load builds the process configuration: defaults, then environment
// overrides, then validation.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := k.Load(env.Provider(".", env.Opt{
		TransformFunc: func(key, value string) (string, any) {
			if path, ok := envMappings[key]; ok {
				return path, value
			}
			return "", nil
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &cfg,
			TagName:          "koanf",
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				sensitiveStringDecodeHook,
			),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// sensitiveStringDecodeHook converts plain strings into SensitiveString
// fields during unmarshaling.
func sensitiveStringDecodeHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(SensitiveString("")) {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		return SensitiveString(v), nil
	case []byte:
		return SensitiveString(v), nil
	default:
		return data, nil
	}
}
