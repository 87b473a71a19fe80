package config

import (
	"fmt"
	"net/url"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// LLM
	if !oneOf(c.LLM.Provider, "openai", "ollama") {
		errors = append(errors, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("unknown provider %q (want openai or ollama)", c.LLM.Provider),
		})
	}

	if c.LLM.Provider == "openai" && c.LLM.APIKey == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.api_key",
			Message: "OpenAI API key is required",
		})
	}

	if c.LLM.Provider == "ollama" && c.LLM.BaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "Ollama base URL is required",
		})
	}

	if c.LLM.BaseURL != "" {
		if u, err := url.Parse(c.LLM.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, ValidationError{
				Field:   "llm.base_url",
				Message: "invalid base URL",
			})
		}
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 4096 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 4096",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if c.LLM.ContextLimit < 1 || c.LLM.ContextLimit > 20 {
		errors = append(errors, ValidationError{
			Field:   "llm.context_limit",
			Message: "context_limit must be between 1 and 20",
		})
	}

	// Embeddings
	if c.Embedding.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "embedding.batch_size",
			Message: "batch_size must be positive",
		})
	}

	if c.Embedding.Workers < 1 {
		errors = append(errors, ValidationError{
			Field:   "embedding.workers",
			Message: "workers must be positive",
		})
	}

	// Storage
	if !oneOf(c.Store.Backend, "chromem", "pgvector", "qdrant") {
		errors = append(errors, ValidationError{
			Field:   "store.backend",
			Message: fmt.Sprintf("unknown vector store %q", c.Store.Backend),
		})
	}

	if !oneOf(c.Chats.Backend, "badger", "postgres") {
		errors = append(errors, ValidationError{
			Field:   "chats.backend",
			Message: fmt.Sprintf("unknown chat store %q", c.Chats.Backend),
		})
	}

	needsDB := c.Store.Backend == "pgvector" || c.Chats.Backend == "postgres"
	if needsDB && c.Database.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "database.url",
			Message: "database URL is required for the postgres backends",
		})
	}

	if c.Database.URL != "" {
		if u, err := url.Parse(c.Database.URL); err != nil || u.Scheme == "" {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "invalid database URL",
			})
		}
	}

	if c.Database.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	if dim, ok := EmbeddingDim(c.Embedding.Model); ok && c.Store.Backend == "pgvector" && c.Database.VectorDim > 0 && c.Database.VectorDim != dim {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: fmt.Sprintf("vector_dim %d does not match %s (%d dimensions)", c.Database.VectorDim, c.Embedding.Model, dim),
		})
	}

	if c.Database.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.batch_size",
			Message: "batch_size must be positive",
		})
	}

	// Uploads
	if c.Files.MaxFileSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "files.max_file_size",
			Message: "max_file_size must be positive",
		})
	}

	for _, ext := range c.Files.AllowedExtensions {
		if ext == "" || strings.ContainsAny(ext, "./\\") {
			errors = append(errors, ValidationError{
				Field:   "files.allowed_extensions",
				Message: fmt.Sprintf("invalid extension format: %q", ext),
			})
		}
	}

	// Scraper
	if c.Scraper.MaxDepth < 1 {
		errors = append(errors, ValidationError{
			Field:   "scraper.max_depth",
			Message: "max_depth must be positive",
		})
	}

	if c.Scraper.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	for _, ext := range c.Scraper.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") && ext != "" && ext != "/" {
			errors = append(errors, ValidationError{
				Field:   "scraper.allowed_extensions",
				Message: fmt.Sprintf("invalid extension format: %s", ext),
			})
		}
	}

	// Processor
	if c.Processor.ChunkSize < 100 || c.Processor.ChunkSize > 5000 {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_size",
			Message: "chunk_size must be between 100 and 5000",
		})
	}

	if c.Processor.ChunkOverlap < 0 || c.Processor.ChunkOverlap > 500 || c.Processor.ChunkOverlap >= c.Processor.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_overlap",
			Message: "chunk_overlap must be between 0 and 500 and less than chunk_size",
		})
	}

	if !oneOf(c.Processor.Strategy, "window", "recursive") {
		errors = append(errors, ValidationError{
			Field:   "processor.strategy",
			Message: fmt.Sprintf("unknown chunking strategy %q", c.Processor.Strategy),
		})
	}

	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "server.port",
			Message: "port must be between 1 and 65535",
		})
	}

	return errors
}
