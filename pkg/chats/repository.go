// Package chats persists chat sessions and the catalog of ingested documents.
package chats

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xhad/pai/internal/models"
)

const (
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
)

var (
	ErrChatNotFound     = errors.New("chat not found")
	ErrDocumentNotFound = errors.New("document not found")
)

// Repository stores chat sessions and document catalog rows.
type Repository interface {
	SaveChat(ctx context.Context, chat *models.ChatSession) error
	// LoadChat returns ErrChatNotFound for unknown ids.
	LoadChat(ctx context.Context, chatID string) (*models.ChatSession, error)
	DeleteChat(ctx context.Context, chatID string) (bool, error)
	ListChats(ctx context.Context) ([]*models.ChatSession, error)

	PutDocument(ctx context.Context, doc models.DocumentInfo) error
	// GetDocument returns ErrDocumentNotFound for unknown ids.
	GetDocument(ctx context.Context, documentID string) (*models.DocumentInfo, error)
	ListDocuments(ctx context.Context) ([]models.DocumentInfo, error)
	DeleteDocument(ctx context.Context, documentID string) (bool, error)
	ResetDocuments(ctx context.Context) error

	// Location describes where the data lives, for stats output.
	Location() string
	Close() error
}

// Config selects and configures a repository backend.
type Config struct {
	Backend string
	// Path is the badger directory; empty keeps the data in memory.
	Path        string
	DatabaseURL string
}

// Open returns the configured repository.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (Repository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Backend {
	case BackendBadger, "":
		return OpenBadger(cfg.Path, logger)
	case BackendPostgres:
		return OpenPostgres(ctx, cfg.DatabaseURL, logger)
	default:
		return nil, fmt.Errorf("unknown chat store backend %q", cfg.Backend)
	}
}
