package assistant

import (
	"time"

	"github.com/xhad/pai/internal/models"
	"github.com/xhad/pai/pkg/business"
)

const (
	ResponseDocumentBased = "document_based"
	ResponseGeneral       = "general"
)

// UploadResult reports how a document was indexed.
type UploadResult struct {
	Success       bool                `json:"success"`
	DocumentID    string              `json:"document_id"`
	ChunksCreated int                 `json:"chunks_created"`
	ChunkIDs      []string            `json:"chunk_ids"`
	Document      models.DocumentInfo `json:"document_info"`
	BusinessData  bool                `json:"business_data"`
	Message       string              `json:"message"`
}

// ConversationReply is the answer of the stateless conversation flow. Failures
// are reported in Error with an apology as Response.
type ConversationReply struct {
	Response         string    `json:"response"`
	ContextUsed      bool      `json:"context_used"`
	ContextSources   int       `json:"context_sources"`
	BusinessAnalysis bool      `json:"business_analysis"`
	Error            string    `json:"error,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// ChatReply is the answer of a persistent chat session.
type ChatReply struct {
	Success           bool      `json:"success"`
	Response          string    `json:"response"`
	ChatID            string    `json:"chat_id"`
	ResponseType      string    `json:"response_type"`
	ContextDocuments  []string  `json:"context_documents"`
	ContextChunksUsed int       `json:"context_chunks_used"`
	TokensUsed        int       `json:"tokens_used"`
	Timestamp         time.Time `json:"timestamp"`
}

type Analysis struct {
	Success        bool      `json:"success"`
	DocumentID     string    `json:"document_id"`
	AnalysisType   string    `json:"analysis_type"`
	Analysis       string    `json:"analysis"`
	ChunksAnalyzed int       `json:"chunks_analyzed"`
	TokensUsed     int       `json:"tokens_used"`
	Timestamp      time.Time `json:"timestamp"`
}

type SearchResult struct {
	Query        string             `json:"query"`
	Results      []string           `json:"results"`
	Sources      []string           `json:"sources"`
	Hits         []models.SearchHit `json:"hits"`
	TotalResults int                `json:"total_results"`
}

type VectorStats struct {
	TotalChunks     int            `json:"total_chunks"`
	UniqueDocuments int            `json:"unique_documents"`
	DocumentTypes   map[string]int `json:"document_types"`
	StoreType       string         `json:"store_type"`
}

type Stats struct {
	VectorStore       VectorStats      `json:"vector_store"`
	BusinessData      business.Stats   `json:"business_data"`
	Chats             models.ChatStats `json:"chats"`
	ConversationTurns int              `json:"conversation_turns"`
	SystemStatus      string           `json:"system_status"`
}

const (
	StatusHealthy   = "healthy"
	StatusWarning   = "warning"
	StatusUnhealthy = "unhealthy"
)

type Health struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
	Timestamp  time.Time         `json:"timestamp"`
}
