package models

import (
	"time"
	"unicode/utf8"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type ChatMessage struct {
	ID              string                 `json:"id"`
	Role            Role                   `json:"role"`
	Content         string                 `json:"content"`
	Timestamp       time.Time              `json:"timestamp"`
	DocumentContext []string               `json:"document_context"`
	Metadata        map[string]interface{} `json:"metadata"`
}

type ChatMetadata struct {
	MessageCount  int `json:"message_count"`
	DocumentCount int `json:"document_count"`
	TotalTokens   int `json:"total_tokens"`
}

// ChatSession is a persisted conversation with its full message log.
type ChatSession struct {
	ChatID           string        `json:"chat_id"`
	Title            string        `json:"title"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
	Messages         []ChatMessage `json:"messages"`
	ContextDocuments []string      `json:"context_documents"`
	Metadata         ChatMetadata  `json:"metadata"`
}

const lastMessagePreview = 100

type ChatSummary struct {
	ChatID        string    `json:"chat_id"`
	Title         string    `json:"title"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	MessageCount  int       `json:"message_count"`
	DocumentCount int       `json:"document_count"`
	LastMessage   string    `json:"last_message"`
}

func (s *ChatSession) Summary() ChatSummary {
	last := "No messages yet"
	if n := len(s.Messages); n > 0 {
		last = preview(s.Messages[n-1].Content, lastMessagePreview)
	}
	return ChatSummary{
		ChatID:        s.ChatID,
		Title:         s.Title,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
		MessageCount:  s.Metadata.MessageCount,
		DocumentCount: s.Metadata.DocumentCount,
		LastMessage:   last,
	}
}

func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

type ChatStats struct {
	TotalChats     int    `json:"total_chats"`
	TotalMessages  int    `json:"total_messages"`
	TotalDocuments int    `json:"total_documents"`
	StoragePath    string `json:"storage_path"`
}

// Turn is one exchange of the stateless assistant conversation.
type Turn struct {
	User           string    `json:"user"`
	Assistant      string    `json:"assistant"`
	Timestamp      time.Time `json:"timestamp"`
	ConversationID string    `json:"conversation_id,omitempty"`
}
