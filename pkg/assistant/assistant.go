// Package assistant ties extraction, embedding, retrieval, chat sessions and
// business analytics into the operations exposed by the server and the CLI.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/xhad/pai/internal/models"
	"github.com/xhad/pai/internal/types"
	"github.com/xhad/pai/pkg/business"
	"github.com/xhad/pai/pkg/chats"
	"github.com/xhad/pai/pkg/files"
	"github.com/xhad/pai/pkg/llm"
	"github.com/xhad/pai/pkg/scraper"
)

var (
	ErrEmptyDocument     = errors.New("no text content extracted from document")
	ErrNoDocumentContent = errors.New("no document content found")
	ErrScraperDisabled   = errors.New("url ingestion is not configured")
	ErrEmptyMessage      = errors.New("message is empty")
)

const apology = "I apologize, but I encountered an error processing your request. Please try again."

type Config struct {
	// ContextLimit is the number of chunks retrieved for a chat question.
	ContextLimit int
	// HistoryLimit is the number of stored chat messages replayed into a prompt.
	HistoryLimit int
	// TurnLimit is the number of conversation turns replayed by ProcessMessage.
	TurnLimit int
	// MaxTurns caps the turns kept per conversation.
	MaxTurns       int
	AnalysisChunks int
	EmbedBatchSize int
	Workers        int
}

func (c *Config) defaults() {
	if c.ContextLimit <= 0 {
		c.ContextLimit = 5
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 10
	}
	if c.TurnLimit <= 0 {
		c.TurnLimit = 10
	}
	if c.MaxTurns <= 0 {
		c.MaxTurns = 50
	}
	if c.AnalysisChunks <= 0 {
		c.AnalysisChunks = 20
	}
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = 32
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
}

// Pinger is implemented by optional backing services checked by Health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the components an Assistant orchestrates. Scraper, Files and Cache
// are optional.
type Deps struct {
	Processor types.Processor
	Embedder  types.Embedder
	Store     types.VectorStore
	Chat      *llm.ChatEngine
	Chats     *chats.Manager
	Business  *business.Analyzer
	Scraper   *scraper.Scraper
	Files     *files.Manager
	Cache     Pinger
}

type Assistant struct {
	config    Config
	processor types.Processor
	embedder  types.Embedder
	store     types.VectorStore
	chat      *llm.ChatEngine
	chats     *chats.Manager
	business  *business.Analyzer
	scraper   *scraper.Scraper
	files     *files.Manager
	cache     Pinger
	pool      *ants.Pool
	logger    *zap.Logger
	now       func() time.Time

	mu    sync.Mutex
	turns map[string][]models.Turn
}

func New(config Config, deps Deps, logger *zap.Logger) (*Assistant, error) {
	switch {
	case deps.Processor == nil:
		return nil, errors.New("processor is required")
	case deps.Embedder == nil:
		return nil, errors.New("embedder is required")
	case deps.Store == nil:
		return nil, errors.New("vector store is required")
	case deps.Chat == nil:
		return nil, errors.New("chat engine is required")
	case deps.Chats == nil:
		return nil, errors.New("chat manager is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Business == nil {
		deps.Business = business.NewAnalyzer(logger)
	}
	config.defaults()

	pool, err := ants.NewPool(config.Workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	return &Assistant{
		config:    config,
		processor: deps.Processor,
		embedder:  deps.Embedder,
		store:     deps.Store,
		chat:      deps.Chat,
		chats:     deps.Chats,
		business:  deps.Business,
		scraper:   deps.Scraper,
		files:     deps.Files,
		cache:     deps.Cache,
		pool:      pool,
		logger:    logger,
		now:       time.Now,
		turns:     make(map[string][]models.Turn),
	}, nil
}

func (a *Assistant) Chats() *chats.Manager { return a.chats }

func (a *Assistant) Files() *files.Manager { return a.files }

// Close releases the worker pool, the vector store and the chat repository.
func (a *Assistant) Close() error {
	a.pool.Release()
	return errors.Join(a.store.Close(), a.chats.Repository().Close())
}

// Stats reports the state of every component.
func (a *Assistant) Stats(ctx context.Context) (*Stats, error) {
	total, err := a.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}
	docs, err := a.chats.Repository().ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	chatStats, err := a.chats.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to collect chat stats: %w", err)
	}

	docTypes := make(map[string]int)
	for _, d := range docs {
		docTypes[string(d.Type)] += d.Chunks
	}

	a.mu.Lock()
	turns := 0
	for _, t := range a.turns {
		turns += len(t)
	}
	a.mu.Unlock()

	return &Stats{
		VectorStore: VectorStats{
			TotalChunks:     total,
			UniqueDocuments: len(docs),
			DocumentTypes:   docTypes,
			StoreType:       a.store.Name(),
		},
		BusinessData:      a.business.Stats(),
		Chats:             chatStats,
		ConversationTurns: turns,
		SystemStatus:      "operational",
	}, nil
}

// Reset empties the knowledge base: vectors, catalog, business data and the
// in-memory conversations. Persisted chats are kept.
func (a *Assistant) Reset(ctx context.Context) error {
	if err := a.store.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset vector store: %w", err)
	}
	if err := a.chats.Repository().ResetDocuments(ctx); err != nil {
		return fmt.Errorf("failed to reset document catalog: %w", err)
	}
	a.business.Reset()

	a.mu.Lock()
	a.turns = make(map[string][]models.Turn)
	a.mu.Unlock()

	a.logger.Info("knowledge base reset")
	return nil
}

// Health probes each component. Any unhealthy component makes the system
// unhealthy; a warning degrades it to warning.
func (a *Assistant) Health(ctx context.Context) Health {
	components := map[string]string{
		"chat_engine": StatusHealthy,
	}

	if _, err := a.store.Count(ctx); err != nil {
		a.logger.Warn("vector store unhealthy", zap.Error(err))
		components["vector_store"] = StatusUnhealthy
	} else {
		components["vector_store"] = StatusHealthy
	}

	if _, err := a.chats.Repository().ListDocuments(ctx); err != nil {
		a.logger.Warn("chat store unhealthy", zap.Error(err))
		components["chat_store"] = StatusUnhealthy
	} else {
		components["chat_store"] = StatusHealthy
	}

	if a.files != nil {
		if _, err := a.files.Stats(); err != nil {
			a.logger.Warn("upload folder unavailable", zap.Error(err))
			components["file_system"] = StatusWarning
		} else {
			components["file_system"] = StatusHealthy
		}
	}

	if a.cache != nil {
		if err := a.cache.Ping(ctx); err != nil {
			a.logger.Warn("embedding cache unreachable", zap.Error(err))
			components["cache"] = StatusWarning
		} else {
			components["cache"] = StatusHealthy
		}
	}

	status := StatusHealthy
	for _, s := range components {
		if s == StatusUnhealthy {
			status = StatusUnhealthy
			break
		}
		if s == StatusWarning {
			status = StatusWarning
		}
	}

	return Health{Status: status, Components: components, Timestamp: a.now()}
}
