package store

import (
	"context"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xhad/pai/internal/models"
	"github.com/xhad/pai/internal/types"
)

const (
	BackendChromem  = "chromem"
	BackendPgvector = "pgvector"
	BackendQdrant   = "qdrant"
)

// Config selects and configures a vector store backend.
type Config struct {
	Backend    string
	Collection string
	// Path is the chromem persistence directory; empty keeps the store in memory.
	Path       string
	QdrantAddr string
	VectorStoreConfig
}

// New opens the configured backend.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (types.VectorStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("store", cfg.Backend))

	switch cfg.Backend {
	case BackendChromem, "":
		return NewChromem(cfg.Path, cfg.Collection, logger)
	case BackendPgvector:
		return NewWithConfig(ctx, cfg.VectorStoreConfig, logger)
	case BackendQdrant:
		return NewQdrant(cfg.QdrantAddr, cfg.Collection, logger)
	default:
		return nil, fmt.Errorf("unknown vector store backend %q", cfg.Backend)
	}
}

// chunkMetadata is the flat metadata stored alongside a chunk. The document id and
// index are always present so every backend can filter on them.
func chunkMetadata(c models.Chunk) map[string]string {
	meta := make(map[string]string, len(c.Metadata)+2)
	for k, v := range c.Metadata {
		meta[k] = sanitizeUTF8(v)
	}
	meta[models.MetaDocumentID] = c.DocumentID
	meta[models.MetaChunkIndex] = strconv.Itoa(c.Index)
	return meta
}

// chunkFromMetadata is the inverse of chunkMetadata.
func chunkFromMetadata(id, content string, meta map[string]string) models.Chunk {
	index, _ := strconv.Atoi(meta[models.MetaChunkIndex])
	return models.Chunk{
		ID:         id,
		DocumentID: meta[models.MetaDocumentID],
		Index:      index,
		Content:    content,
		Metadata:   meta,
	}
}

// chunkIDs returns the id of every chunk, assigning a fresh uuid where one is missing.
func chunkIDs(chunks []models.Chunk) []string {
	ids := make([]string, len(chunks))
	for i := range chunks {
		if chunks[i].ID == "" {
			chunks[i].ID = uuid.NewString()
		}
		ids[i] = chunks[i].ID
	}
	return ids
}

func checkLengths(chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks))
	}
	return nil
}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
