package ai

import (
	"fmt"
	"time"

	"github.com/asepsopiyan/keris-lite/internal/config"
)

// NewBackends builds the embedding backend and generator selected by
// cfg.Provider. Both share one client so they share its rate limiter.
func NewBackends(cfg config.LLMConfig) (EmbeddingBackend, Generator, error) {
	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	switch cfg.Provider {
	case config.ProviderOllama:
		client := NewOllamaClient(OllamaConfig{
			BaseURL:           cfg.Ollama.BaseURL,
			ChatModel:         cfg.Ollama.ChatModel,
			EmbedModel:        cfg.Ollama.EmbedModel,
			MaxConcurrency:    cfg.MaxConcurrency,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Timeout:           timeout,
		})
		return client, client, nil
	case config.ProviderOpenAI:
		client := NewOpenAICompatibleClient(OpenAIConfig{
			BaseURL:           cfg.OpenAI.BaseURL,
			APIKey:            cfg.OpenAI.APIKey,
			ChatModel:         cfg.OpenAI.ChatModel,
			EmbedModel:        cfg.OpenAI.EmbedModel,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Timeout:           timeout,
		})
		return client, client, nil
	default:
		return nil, nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}

// NewProviderFromConfig wires a Provider around the configured backend.
func NewProviderFromConfig(cfg config.LLMConfig, backend EmbeddingBackend, opts ...ProviderOption) *Provider {
	base := []ProviderOption{
		WithBatchSize(cfg.BatchSize),
		WithTimeout(time.Duration(cfg.RequestTimeoutSeconds) * time.Second),
	}
	return NewProvider(backend, append(base, opts...)...)
}
