package provider

import (
	"fmt"
	"strings"
)

// ModelConfig maps one logical model name to a concrete vendor model.
// Upper layers only ever reference the logical name; which vendor model backs
// it is decided here so upgrades never touch calling code.
type ModelConfig struct {
	LogicalName        string
	ProviderModel      string
	MaxTokens          int
	DefaultTemperature float64
}

// DefaultLogicalModel is the logical model name agents use unless configured
// otherwise.
const DefaultLogicalModel = "ide-chat"

// Config is the registry entry for one provider.
type Config struct {
	Name    string
	BaseURL string
	Models  map[string]ModelConfig
}

// Built-in provider configurations. The "ide-chat" logical model is the one
// the IDE helper agent uses by default.
var (
	KimiConfig = Config{
		Name:    "kimi",
		BaseURL: "https://api.moonshot.cn/v1",
		Models: map[string]ModelConfig{
			"ide-chat": {
				LogicalName:        "ide-chat",
				ProviderModel:      "kimi-k2-turbo-preview",
				MaxTokens:          8192,
				DefaultTemperature: 0.7,
			},
		},
	}

	GLMConfig = Config{
		Name:    "glm",
		BaseURL: "https://open.bigmodel.cn/api/paas/v4",
		Models: map[string]ModelConfig{
			"ide-chat": {
				LogicalName:        "ide-chat",
				ProviderModel:      "glm-4.6",
				MaxTokens:          8192,
				DefaultTemperature: 0.7,
			},
		},
	}

	OpenAIConfig = Config{
		Name:    "openai",
		BaseURL: "https://api.openai.com/v1",
		Models: map[string]ModelConfig{
			"ide-chat": {
				LogicalName:        "ide-chat",
				ProviderModel:      "gpt-4o-mini",
				MaxTokens:          8192,
				DefaultTemperature: 0.7,
			},
		},
	}

	AnthropicConfig = Config{
		Name: "anthropic",
		Models: map[string]ModelConfig{
			"ide-chat": {
				LogicalName:        "ide-chat",
				ProviderModel:      "claude-3-5-sonnet-20241022",
				MaxTokens:          8192,
				DefaultTemperature: 0.7,
			},
		},
	}
)

var registry = map[string]Config{
	"kimi":      KimiConfig,
	"glm":       GLMConfig,
	"openai":    OpenAIConfig,
	"anthropic": AnthropicConfig,
}

// LookupConfig returns the Config for a provider name (case insensitive).
func LookupConfig(name string) (Config, error) {
	cfg, ok := registry[strings.ToLower(name)]
	if !ok {
		return Config{}, fmt.Errorf("unknown provider: %q", name)
	}
	return cfg, nil
}

// ResolveModel maps (provider, logical model name) to its ModelConfig. When
// the logical name is unknown it falls through to treating the name as a
// literal vendor model id, so callers can bypass the registry deliberately.
func ResolveModel(providerName, logicalName string) (ModelConfig, error) {
	cfg, err := LookupConfig(providerName)
	if err != nil {
		return ModelConfig{}, err
	}
	if mc, ok := cfg.Models[logicalName]; ok {
		return mc, nil
	}
	return ModelConfig{
		LogicalName:   logicalName,
		ProviderModel: logicalName,
	}, nil
}
