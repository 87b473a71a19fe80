package llm

import (
	"fmt"
	"net/http"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// ProviderConfig selects the backend serving completions and embeddings.
type ProviderConfig struct {
	Provider       string
	APIKey         string
	BaseURL        string // Ollama server URL, or an OpenAI-compatible endpoint
	Model          string
	EmbeddingModel string
	Timeout        time.Duration
}

func (c ProviderConfig) httpClient() *http.Client {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// NewModel returns the chat model for the configured provider.
func NewModel(cfg ProviderConfig) (llms.Model, error) {
	switch cfg.Provider {
	case ProviderOpenAI, "":
		opts := []openai.Option{
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.Model),
			openai.WithHTTPClient(cfg.httpClient()),
		}
		if cfg.EmbeddingModel != "" {
			opts = append(opts, openai.WithEmbeddingModel(cfg.EmbeddingModel))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LLM: %w", err)
		}
		return model, nil
	case ProviderOllama:
		model, err := ollama.New(
			ollama.WithModel(cfg.Model),
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithHTTPClient(cfg.httpClient()),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LLM: %w", err)
		}
		return model, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// NewEmbeddingClient returns the client that computes embeddings. Ollama serves
// embeddings from a separate model, so it gets its own client.
func NewEmbeddingClient(cfg ProviderConfig) (embeddings.EmbedderClient, error) {
	switch cfg.Provider {
	case ProviderOllama:
		client, err := ollama.New(
			ollama.WithModel(cfg.EmbeddingModel),
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithHTTPClient(cfg.httpClient()),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
		return client, nil
	default:
		model, err := NewModel(cfg)
		if err != nil {
			return nil, err
		}
		client, ok := model.(embeddings.EmbedderClient)
		if !ok {
			return nil, fmt.Errorf("provider %q cannot create embeddings", cfg.Provider)
		}
		return client, nil
	}
}
