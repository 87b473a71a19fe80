package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Cache stores embeddings by CacheKey.
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, vector []float32)
}

type EmbedderConfig struct {
	Model     string
	BatchSize int
	// RateLimit is the number of embedding requests allowed per second; 0 disables it.
	RateLimit float64
}

// Embedder turns text into vectors, consulting the cache before the provider.
type Embedder struct {
	config   EmbedderConfig
	embedder embeddings.Embedder
	limiter  *rate.Limiter
	cache    Cache
	logger   *zap.Logger
}

// NewEmbedder wraps client. cache may be nil.
func NewEmbedder(client embeddings.EmbedderClient, config EmbedderConfig, cache Cache, logger *zap.Logger) (*Embedder, error) {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	emb, err := embeddings.NewEmbedder(client,
		embeddings.WithBatchSize(config.BatchSize),
		embeddings.WithStripNewLines(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}

	return &Embedder{
		config:   config,
		embedder: emb,
		limiter:  limiter,
		cache:    cache,
		logger:   logger,
	}, nil
}

// NewEmbedderWithConfig builds the embedding client for the provider and wraps it.
func NewEmbedderWithConfig(provider ProviderConfig, config EmbedderConfig, cache Cache, logger *zap.Logger) (*Embedder, error) {
	if config.Model == "" {
		config.Model = provider.EmbeddingModel
	}
	client, err := NewEmbeddingClient(provider)
	if err != nil {
		return nil, err
	}
	return NewEmbedder(client, config, cache, logger)
}

// CacheKey identifies the embedding of text under model.
func CacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// EmbedDocuments returns one vector per text, in order.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	var (
		missing []string
		slots   []int
	)
	for i, text := range texts {
		if e.cache != nil {
			if v, ok := e.cache.Get(ctx, CacheKey(e.config.Model, text)); ok {
				vectors[i] = v
				continue
			}
		}
		missing = append(missing, text)
		slots = append(slots, i)
	}

	if len(missing) == 0 {
		return vectors, nil
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	computed, err := e.embedder.EmbedDocuments(ctx, missing)
	if err != nil {
		e.logger.Error("failed to generate embeddings", zap.Int("count", len(missing)), zap.Error(err))
		return nil, fmt.Errorf("embed documents: %w", err)
	}
	if len(computed) != len(missing) {
		return nil, fmt.Errorf("embed documents: got %d vectors for %d texts", len(computed), len(missing))
	}

	for j, v := range computed {
		vectors[slots[j]] = v
		if e.cache != nil {
			e.cache.Set(ctx, CacheKey(e.config.Model, missing[j]), v)
		}
	}

	e.logger.Debug("generated embeddings",
		zap.Int("requested", len(texts)),
		zap.Int("cached", len(texts)-len(missing)))
	return vectors, nil
}

// EmbedQuery returns the vector of a search query.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := CacheKey(e.config.Model, text)
	if e.cache != nil {
		if v, ok := e.cache.Get(ctx, key); ok {
			return v, nil
		}
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	v, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if e.cache != nil {
		e.cache.Set(ctx, key, v)
	}
	return v, nil
}
