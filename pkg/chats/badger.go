package chats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"go.uber.org/zap"

	"github.com/xhad/pai/internal/models"
)

const (
	chatPrefix     = "chat:"
	documentPrefix = "doc:"
)

// badgerLogger adapts zap to the badger.Logger interface.
type badgerLogger struct {
	logger *zap.SugaredLogger
}

var _ badger.Logger = (*badgerLogger)(nil)

func (bl *badgerLogger) Errorf(msg string, items ...any)   { bl.logger.Errorf(msg, items...) }
func (bl *badgerLogger) Warningf(msg string, items ...any) { bl.logger.Warnf(msg, items...) }
func (bl *badgerLogger) Infof(msg string, items ...any)    { bl.logger.Debugf(msg, items...) }
func (bl *badgerLogger) Debugf(msg string, items ...any)   { bl.logger.Debugf(msg, items...) }

// BadgerRepository keeps sessions and catalog rows as JSON values in BadgerDB.
type BadgerRepository struct {
	db     *badger.DB
	path   string
	logger *zap.Logger
}

var _ Repository = (*BadgerRepository)(nil)

// OpenBadger opens the database at path, creating the directory if needed. An
// empty path opens an in-memory database.
func OpenBadger(path string, logger *zap.Logger) (*BadgerRepository, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0755); err != nil {
			return nil, fmt.Errorf("create chat store dir: %w", err)
		}
		opts = badger.DefaultOptions(path)
	}
	opts.Logger = &badgerLogger{logger: logger.Sugar()}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open chat store: %w", err)
	}
	location := path
	if location == "" {
		location = "memory"
	}
	return &BadgerRepository{db: db, path: location, logger: logger}, nil
}

func (r *BadgerRepository) Location() string { return r.path }

func (r *BadgerRepository) Close() error {
	return r.db.Close()
}

func (r *BadgerRepository) put(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *badger.Txn) error {
		return tx.Set([]byte(key), data)
	})
}

// get decodes the value at key into v, returning badger.ErrKeyNotFound when absent.
func (r *BadgerRepository) get(key string, v any) error {
	return r.db.View(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
}

func (r *BadgerRepository) delete(key string) (bool, error) {
	var found bool
	err := r.db.Update(func(tx *badger.Txn) error {
		_, err := tx.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return tx.Delete([]byte(key))
	})
	return found, err
}

// scan calls fn with every value under prefix. Values that fail to decode are
// logged and skipped.
func (r *BadgerRepository) scan(prefix string, fn func(val []byte) error) error {
	return r.db.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			item := iter.Item()
			err := item.Value(fn)
			if err != nil {
				r.logger.Warn("skipping unreadable record",
					zap.ByteString("key", item.KeyCopy(nil)), zap.Error(err))
			}
		}
		return nil
	})
}

func (r *BadgerRepository) SaveChat(_ context.Context, chat *models.ChatSession) error {
	if err := r.put(chatPrefix+chat.ChatID, chat); err != nil {
		return fmt.Errorf("save chat %s: %w", chat.ChatID, err)
	}
	return nil
}

func (r *BadgerRepository) LoadChat(_ context.Context, chatID string) (*models.ChatSession, error) {
	var chat models.ChatSession
	err := r.get(chatPrefix+chatID, &chat)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrChatNotFound, chatID)
	}
	if err != nil {
		return nil, fmt.Errorf("load chat %s: %w", chatID, err)
	}
	return &chat, nil
}

func (r *BadgerRepository) DeleteChat(_ context.Context, chatID string) (bool, error) {
	return r.delete(chatPrefix + chatID)
}

func (r *BadgerRepository) ListChats(context.Context) ([]*models.ChatSession, error) {
	var chats []*models.ChatSession
	err := r.scan(chatPrefix, func(val []byte) error {
		var chat models.ChatSession
		if err := json.Unmarshal(val, &chat); err != nil {
			return err
		}
		chats = append(chats, &chat)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return chats, nil
}

func (r *BadgerRepository) PutDocument(_ context.Context, doc models.DocumentInfo) error {
	if err := r.put(documentPrefix+doc.DocumentID, doc); err != nil {
		return fmt.Errorf("save document %s: %w", doc.DocumentID, err)
	}
	return nil
}

func (r *BadgerRepository) GetDocument(_ context.Context, documentID string) (*models.DocumentInfo, error) {
	var doc models.DocumentInfo
	err := r.get(documentPrefix+documentID, &doc)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", documentID, err)
	}
	return &doc, nil
}

func (r *BadgerRepository) ListDocuments(context.Context) ([]models.DocumentInfo, error) {
	var docs []models.DocumentInfo
	err := r.scan(documentPrefix, func(val []byte) error {
		var doc models.DocumentInfo
		if err := json.Unmarshal(val, &doc); err != nil {
			return err
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

func (r *BadgerRepository) DeleteDocument(_ context.Context, documentID string) (bool, error) {
	return r.delete(documentPrefix + documentID)
}

func (r *BadgerRepository) ResetDocuments(context.Context) error {
	if err := r.db.DropPrefix([]byte(documentPrefix)); err != nil {
		return fmt.Errorf("reset documents: %w", err)
	}
	return nil
}
