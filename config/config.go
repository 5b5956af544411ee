// Package config loads runtime settings from the environment, with optional
// .env file support for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/codeloom-ai/codeloom/core"
)

// Settings hold everything the process reads from its environment. Provider
// credentials are optional here; the adapter that needs one fails with a
// ValidationError at call time when it is missing.
type Settings struct {
	// DefaultProvider selects the provider adapter ("kimi", "glm", "openai",
	// "anthropic").
	DefaultProvider string

	// DefaultModel is the logical model name passed through the registry.
	DefaultModel string

	KimiAPIKey      string
	GLMAPIKey       string
	OpenAIAPIKey    string
	AnthropicAPIKey string

	// HTTPTimeoutSeconds bounds each provider HTTP call.
	HTTPTimeoutSeconds float64

	// StorageRoot is where the JSON store keeps conversation directories.
	StorageRoot string

	// WorkspaceRoot sandboxes the built-in coding tools.
	WorkspaceRoot string

	LogLevel  string
	LogFormat string // json or text

	EnableTools        bool
	MaxToolRounds      int
	MaxContextMessages int

	// StreamChunkSize sizes synthetic deltas for buffered streaming replay.
	StreamChunkSize int
}

// Load reads settings from the environment. When envFile is non-empty and
// exists it is loaded first without overriding variables already set, so real
// environment always wins over .env contents.
func Load(envFile string) (*Settings, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("load env file %s: %w", envFile, err)
			}
		}
	}

	s := &Settings{
		DefaultProvider:    getEnv("CODELOOM_PROVIDER", "kimi"),
		DefaultModel:       getEnv("CODELOOM_MODEL", "ide-chat"),
		KimiAPIKey:         os.Getenv("KIMI_API_KEY"),
		GLMAPIKey:          os.Getenv("GLM_API_KEY"),
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey:    os.Getenv("ANTHROPIC_API_KEY"),
		HTTPTimeoutSeconds: getEnvFloat("CODELOOM_HTTP_TIMEOUT", 30.0),
		StorageRoot:        getEnv("CODELOOM_STORAGE_ROOT", ".storage"),
		WorkspaceRoot:      getEnv("CODELOOM_WORKSPACE_ROOT", "."),
		LogLevel:           getEnv("CODELOOM_LOG_LEVEL", "info"),
		LogFormat:          getEnv("CODELOOM_LOG_FORMAT", "json"),
		EnableTools:        getEnvBool("CODELOOM_ENABLE_TOOLS", false),
		MaxToolRounds:      getEnvInt("CODELOOM_MAX_TOOL_ROUNDS", 5),
		MaxContextMessages: getEnvInt("CODELOOM_MAX_CONTEXT_MESSAGES", 20),
		StreamChunkSize:    getEnvInt("CODELOOM_STREAM_CHUNK_SIZE", 64),
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks value ranges, not credential presence.
func (s *Settings) Validate() error {
	if s.HTTPTimeoutSeconds < 1 {
		return &core.ValidationError{Code: "INVALID_TIMEOUT", Message: "http timeout must be at least 1 second"}
	}
	if s.MaxContextMessages < 1 || s.MaxContextMessages > 100 {
		return &core.ValidationError{Code: "INVALID_CONTEXT_LIMIT", Message: "max context messages must be within 1..100"}
	}
	if s.MaxToolRounds < 1 {
		return &core.ValidationError{Code: "INVALID_TOOL_ROUNDS", Message: "max tool rounds must be at least 1"}
	}
	if s.StreamChunkSize < 1 {
		return &core.ValidationError{Code: "INVALID_CHUNK_SIZE", Message: "stream chunk size must be at least 1"}
	}
	return nil
}

// APIKeyFor returns the credential configured for a provider name, or "".
func (s *Settings) APIKeyFor(providerName string) string {
	switch strings.ToLower(providerName) {
	case "kimi":
		return s.KimiAPIKey
	case "glm":
		return s.GLMAPIKey
	case "openai":
		return s.OpenAIAPIKey
	case "anthropic":
		return s.AnthropicAPIKey
	default:
		return ""
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(strings.ToLower(v))
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
