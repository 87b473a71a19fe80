package chats

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xhad/pai/internal/models"
	"github.com/xhad/pai/pkg/llm"
)

const (
	DefaultHistoryLimit = 50
	DefaultListLimit    = 100
	DefaultSearchLimit  = 20
)

// Manager owns the chat lifecycle on top of a Repository.
type Manager struct {
	repo   Repository
	logger *zap.Logger
	now    func() time.Time

	// mu serialises read-modify-write cycles on sessions.
	mu sync.Mutex
}

func NewManager(repo Repository, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{repo: repo, logger: logger, now: time.Now}
}

// Repository exposes the underlying store.
func (m *Manager) Repository() Repository {
	return m.repo
}

// CreateChat starts an empty session. A blank title becomes "Chat <timestamp>".
func (m *Manager) CreateChat(ctx context.Context, title string) (*models.ChatSession, error) {
	now := m.now()
	title = strings.TrimSpace(title)
	if title == "" {
		title = llm.DefaultTitle(now)
	}
	chat := &models.ChatSession{
		ChatID:           uuid.NewString(),
		Title:            title,
		CreatedAt:        now,
		UpdatedAt:        now,
		Messages:         []models.ChatMessage{},
		ContextDocuments: []string{},
	}
	if err := m.repo.SaveChat(ctx, chat); err != nil {
		return nil, err
	}
	m.logger.Info("created chat", zap.String("chat_id", chat.ChatID), zap.String("title", title))
	return chat, nil
}

func (m *Manager) Load(ctx context.Context, chatID string) (*models.ChatSession, error) {
	return m.repo.LoadChat(ctx, chatID)
}

// AddMessage appends a message and merges documents into the chat context.
// A "tokens_used" metadata entry is added to the chat's token total.
func (m *Manager) AddMessage(ctx context.Context, chatID string, role models.Role, content string, documents []string, metadata map[string]interface{}) (*models.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	chat, err := m.repo.LoadChat(ctx, chatID)
	if err != nil {
		return nil, err
	}

	now := m.now()
	if documents == nil {
		documents = []string{}
	}
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	msg := models.ChatMessage{
		ID:              uuid.NewString(),
		Role:            role,
		Content:         content,
		Timestamp:       now,
		DocumentContext: documents,
		Metadata:        metadata,
	}
	chat.Messages = append(chat.Messages, msg)
	chat.UpdatedAt = now
	chat.Metadata.MessageCount = len(chat.Messages)
	chat.Metadata.TotalTokens += tokensUsed(metadata)

	for _, doc := range documents {
		if !contains(chat.ContextDocuments, doc) {
			chat.ContextDocuments = append(chat.ContextDocuments, doc)
		}
	}
	chat.Metadata.DocumentCount = len(chat.ContextDocuments)

	if err := m.repo.SaveChat(ctx, chat); err != nil {
		return nil, err
	}
	return &msg, nil
}

func tokensUsed(metadata map[string]interface{}) int {
	switch v := metadata["tokens_used"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// History returns the last limit messages of a chat; limit <= 0 returns all of them.
func (m *Manager) History(ctx context.Context, chatID string, limit int) ([]models.ChatMessage, error) {
	chat, err := m.repo.LoadChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	msgs := chat.Messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func sortByUpdated(chats []*models.ChatSession) {
	sort.SliceStable(chats, func(i, j int) bool {
		return chats[i].UpdatedAt.After(chats[j].UpdatedAt)
	})
}

func summaries(chats []*models.ChatSession, limit int) []models.ChatSummary {
	if limit > 0 && len(chats) > limit {
		chats = chats[:limit]
	}
	out := make([]models.ChatSummary, 0, len(chats))
	for _, c := range chats {
		out = append(out, c.Summary())
	}
	return out
}

// List returns chat summaries, most recently updated first.
func (m *Manager) List(ctx context.Context, limit int) ([]models.ChatSummary, error) {
	chats, err := m.repo.ListChats(ctx)
	if err != nil {
		return nil, err
	}
	sortByUpdated(chats)
	return summaries(chats, limit), nil
}

// Search matches query case-insensitively against titles and message content.
func (m *Manager) Search(ctx context.Context, query string, limit int) ([]models.ChatSummary, error) {
	chats, err := m.repo.ListChats(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))

	var matched []*models.ChatSession
	for _, c := range chats {
		if matches(c, q) {
			matched = append(matched, c)
		}
	}
	sortByUpdated(matched)
	return summaries(matched, limit), nil
}

func matches(c *models.ChatSession, q string) bool {
	if strings.Contains(strings.ToLower(c.Title), q) {
		return true
	}
	for _, msg := range c.Messages {
		if strings.Contains(strings.ToLower(msg.Content), q) {
			return true
		}
	}
	return false
}

func (m *Manager) Delete(ctx context.Context, chatID string) (bool, error) {
	deleted, err := m.repo.DeleteChat(ctx, chatID)
	if err != nil {
		return false, err
	}
	if deleted {
		m.logger.Info("deleted chat", zap.String("chat_id", chatID))
	}
	return deleted, nil
}

func (m *Manager) UpdateTitle(ctx context.Context, chatID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("title must not be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	chat, err := m.repo.LoadChat(ctx, chatID)
	if err != nil {
		return err
	}
	chat.Title = title
	chat.UpdatedAt = m.now()
	return m.repo.SaveChat(ctx, chat)
}

// ContextDocuments lists the documents referenced so far in a chat.
func (m *Manager) ContextDocuments(ctx context.Context, chatID string) ([]string, error) {
	chat, err := m.repo.LoadChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return chat.ContextDocuments, nil
}

func (m *Manager) Stats(ctx context.Context) (models.ChatStats, error) {
	chats, err := m.repo.ListChats(ctx)
	if err != nil {
		return models.ChatStats{}, err
	}
	stats := models.ChatStats{
		TotalChats:  len(chats),
		StoragePath: m.repo.Location(),
	}
	for _, c := range chats {
		stats.TotalMessages += len(c.Messages)
		stats.TotalDocuments += len(c.ContextDocuments)
	}
	return stats, nil
}
