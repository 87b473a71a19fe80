package chats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xhad/pai/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS chats (
	chat_id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	session JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS chats_updated_at_idx ON chats (updated_at DESC);

CREATE TABLE IF NOT EXISTS document_catalog (
	document_id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	type TEXT NOT NULL,
	chunks INTEGER NOT NULL,
	upload_date TIMESTAMPTZ NOT NULL,
	size BIGINT NOT NULL,
	source TEXT NOT NULL DEFAULT ''
);
`

// PostgresRepository stores sessions as JSONB rows next to a document catalog table.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var _ Repository = (*PostgresRepository)(nil)

// OpenPostgres connects to databaseURL and creates the tables if needed.
func OpenPostgres(ctx context.Context, databaseURL string, logger *zap.Logger) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create chat tables: %w", err)
	}
	logger.Debug("chat store ready", zap.String("backend", BackendPostgres))
	return &PostgresRepository{pool: pool, logger: logger}, nil
}

func (r *PostgresRepository) Location() string {
	cfg := r.pool.Config().ConnConfig
	return fmt.Sprintf("postgres://%s:%d/%s", cfg.Host, cfg.Port, cfg.Database)
}

func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func (r *PostgresRepository) SaveChat(ctx context.Context, chat *models.ChatSession) error {
	data, err := json.Marshal(chat)
	if err != nil {
		return fmt.Errorf("encode chat %s: %w", chat.ChatID, err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO chats (chat_id, title, created_at, updated_at, session)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (chat_id) DO UPDATE SET
			title = EXCLUDED.title,
			updated_at = EXCLUDED.updated_at,
			session = EXCLUDED.session`,
		chat.ChatID, chat.Title, chat.CreatedAt, chat.UpdatedAt, data)
	if err != nil {
		return fmt.Errorf("save chat %s: %w", chat.ChatID, err)
	}
	return nil
}

func (r *PostgresRepository) LoadChat(ctx context.Context, chatID string) (*models.ChatSession, error) {
	var data []byte
	err := r.pool.QueryRow(ctx, `SELECT session FROM chats WHERE chat_id = $1`, chatID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrChatNotFound, chatID)
	}
	if err != nil {
		return nil, fmt.Errorf("load chat %s: %w", chatID, err)
	}
	var chat models.ChatSession
	if err := json.Unmarshal(data, &chat); err != nil {
		return nil, fmt.Errorf("decode chat %s: %w", chatID, err)
	}
	return &chat, nil
}

func (r *PostgresRepository) DeleteChat(ctx context.Context, chatID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM chats WHERE chat_id = $1`, chatID)
	if err != nil {
		return false, fmt.Errorf("delete chat %s: %w", chatID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) ListChats(ctx context.Context) ([]*models.ChatSession, error) {
	rows, err := r.pool.Query(ctx, `SELECT chat_id, session FROM chats ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var chats []*models.ChatSession
	for rows.Next() {
		var (
			id   string
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("list chats: %w", err)
		}
		var chat models.ChatSession
		if err := json.Unmarshal(data, &chat); err != nil {
			r.logger.Warn("skipping unreadable chat", zap.String("chat_id", id), zap.Error(err))
			continue
		}
		chats = append(chats, &chat)
	}
	return chats, rows.Err()
}

func (r *PostgresRepository) PutDocument(ctx context.Context, doc models.DocumentInfo) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO document_catalog (document_id, filename, type, chunks, upload_date, size, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (document_id) DO UPDATE SET
			filename = EXCLUDED.filename,
			type = EXCLUDED.type,
			chunks = EXCLUDED.chunks,
			upload_date = EXCLUDED.upload_date,
			size = EXCLUDED.size,
			source = EXCLUDED.source`,
		doc.DocumentID, doc.Filename, string(doc.Type), doc.Chunks, doc.UploadDate, doc.Size, doc.Source)
	if err != nil {
		return fmt.Errorf("save document %s: %w", doc.DocumentID, err)
	}
	return nil
}

const documentColumns = `document_id, filename, type, chunks, upload_date, size, source`

func scanDocument(row pgx.Row) (models.DocumentInfo, error) {
	var (
		doc     models.DocumentInfo
		docType string
	)
	err := row.Scan(&doc.DocumentID, &doc.Filename, &docType, &doc.Chunks, &doc.UploadDate, &doc.Size, &doc.Source)
	doc.Type = models.DocumentType(docType)
	return doc, err
}

func (r *PostgresRepository) GetDocument(ctx context.Context, documentID string) (*models.DocumentInfo, error) {
	doc, err := scanDocument(r.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM document_catalog WHERE document_id = $1`, documentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", documentID, err)
	}
	return &doc, nil
}

func (r *PostgresRepository) ListDocuments(ctx context.Context) ([]models.DocumentInfo, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+documentColumns+` FROM document_catalog ORDER BY upload_date DESC`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []models.DocumentInfo
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("list documents: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (r *PostgresRepository) DeleteDocument(ctx context.Context, documentID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM document_catalog WHERE document_id = $1`, documentID)
	if err != nil {
		return false, fmt.Errorf("delete document %s: %w", documentID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) ResetDocuments(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, `TRUNCATE document_catalog`); err != nil {
		return fmt.Errorf("reset documents: %w", err)
	}
	return nil
}
