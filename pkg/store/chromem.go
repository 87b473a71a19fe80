package store

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/xhad/pai/internal/models"
)

var errNoEmbeddingFunc = errors.New("chromem store requires precomputed embeddings")

// ChromemStore keeps chunks in a chromem-go collection, persisted to a directory
// when one is configured.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	name       string
	path       string
	mu         sync.RWMutex
	logger     *zap.Logger
}

func NewChromem(path, collection string, logger *zap.Logger) (*ChromemStore, error) {
	if collection == "" {
		collection = "personal_assistant"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var db *chromem.DB
	if path != "" {
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to create persistent chromem DB: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	s := &ChromemStore{db: db, name: collection, path: path, logger: logger}
	if err := s.open(); err != nil {
		return nil, err
	}
	logger.Info("vector store ready",
		zap.String("collection", collection),
		zap.String("path", path),
		zap.Int("chunks", s.collection.Count()))
	return s, nil
}

// open must be called with mu held or before the store is shared.
func (s *ChromemStore) open() error {
	embed := func(context.Context, string) ([]float32, error) {
		return nil, errNoEmbeddingFunc
	}
	col, err := s.db.GetOrCreateCollection(s.name, nil, embed)
	if err != nil {
		return fmt.Errorf("failed to open collection %s: %w", s.name, err)
	}
	s.collection = col
	return nil
}

func (s *ChromemStore) Name() string { return BackendChromem }

func (s *ChromemStore) Add(ctx context.Context, chunks []models.Chunk, vectors [][]float32) ([]string, error) {
	if err := checkLengths(chunks, vectors); err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return []string{}, nil
	}

	ids := chunkIDs(chunks)
	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = chromem.Document{
			ID:        ids[i],
			Content:   sanitizeUTF8(c.Content),
			Metadata:  chunkMetadata(c),
			Embedding: vectors[i],
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return nil, fmt.Errorf("failed to add chunks: %w", err)
	}
	return ids, nil
}

func (s *ChromemStore) Search(ctx context.Context, vector []float32, n int, documentID string) ([]models.SearchHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := s.collection.Count()
	if n <= 0 || count == 0 {
		return nil, nil
	}
	if n > count {
		n = count
	}

	var where map[string]string
	if documentID != "" {
		where = map[string]string{models.MetaDocumentID: documentID}
	}

	results, err := s.collection.QueryEmbedding(ctx, vector, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}

	hits := make([]models.SearchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, models.SearchHit{
			Chunk: chunkFromMetadata(r.ID, r.Content, r.Metadata),
			Score: r.Similarity,
		})
	}
	return hits, nil
}

func (s *ChromemStore) DeleteDocument(ctx context.Context, documentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.collection.Count()
	if err := s.collection.Delete(ctx, map[string]string{models.MetaDocumentID: documentID}, nil); err != nil {
		return false, fmt.Errorf("failed to delete document %s: %w", documentID, err)
	}
	return s.collection.Count() < before, nil
}

func (s *ChromemStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collection.Count(), nil
}

// Reset drops the collection and creates it again empty.
func (s *ChromemStore) Reset(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.DeleteCollection(s.name); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", s.name, err)
	}
	s.logger.Warn("vector store reset", zap.String("collection", s.name))
	return s.open()
}

// Close is a no-op; chromem writes each document through to disk as it is added.
func (s *ChromemStore) Close() error {
	return nil
}
