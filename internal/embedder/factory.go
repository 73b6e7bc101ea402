package embedder

import (
	"fmt"
	"os"
)

// Environment variables consulted by NewFromEnv
const (
	EnvProvider     = "QMD_EMBEDDING_PROVIDER"
	EnvModel        = "QMD_EMBEDDING_MODEL"
	EnvJinaAPIKey   = "JINA_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
)

// Config selects and configures a provider explicitly
type Config struct {
	Provider string
	APIKey   string
	Model    string
}

// New creates an embedder from an explicit config
func New(cfg Config) (Embedder, error) {
	switch cfg.Provider {
	case ProviderJina:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: jina requires an API key", ErrNoProviderEnabled)
		}
		return NewJinaProvider(cfg.APIKey, cfg.Model), nil
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: openai requires an API key", ErrNoProviderEnabled)
		}
		return NewOpenAIProvider(cfg.APIKey, cfg.Model), nil
	case ProviderLocal:
		return NewLocalProvider(), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// NewFromEnv creates an embedder based on environment variables.
// QMD_EMBEDDING_PROVIDER forces a provider; otherwise the first API key
// found wins (Jina before OpenAI), falling back to the local provider.
func NewFromEnv() (Embedder, error) {
	cfg := Config{
		Provider: os.Getenv(EnvProvider),
		Model:    os.Getenv(EnvModel),
	}
	if cfg.Provider == "" {
		cfg.Provider = DetectProvider()
	}

	switch cfg.Provider {
	case ProviderJina:
		cfg.APIKey = os.Getenv(EnvJinaAPIKey)
	case ProviderOpenAI:
		cfg.APIKey = os.Getenv(EnvOpenAIAPIKey)
	}
	return New(cfg)
}

// DetectProvider picks a provider from available API keys
func DetectProvider() string {
	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}
	return ProviderLocal
}
