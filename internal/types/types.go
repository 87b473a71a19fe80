package types

import (
	"context"

	"github.com/xhad/pai/internal/models"
)

// Core interfaces
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorStore holds chunk embeddings. documentID may be empty to search every document.
type VectorStore interface {
	Add(ctx context.Context, chunks []models.Chunk, vectors [][]float32) ([]string, error)
	Search(ctx context.Context, vector []float32, n int, documentID string) ([]models.SearchHit, error)
	DeleteDocument(ctx context.Context, documentID string) (bool, error)
	Count(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
	Name() string
	Close() error
}

type Processor interface {
	Extract(ctx context.Context, path string) (models.Document, error)
	Chunk(content string) []string
	Process(docs []models.Document) ([]models.ProcessedDocument, error)
}
