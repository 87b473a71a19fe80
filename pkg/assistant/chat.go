package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xhad/pai/internal/models"
	"github.com/xhad/pai/pkg/business"
	"github.com/xhad/pai/pkg/chats"
	"github.com/xhad/pai/pkg/llm"
)

// ProcessMessage answers message within an in-memory conversation. It never
// fails: errors are reported in the reply next to an apology.
func (a *Assistant) ProcessMessage(ctx context.Context, message, conversationID string, includeContext bool) ConversationReply {
	isBusiness := business.IsBusinessQuery(message)
	reply := ConversationReply{BusinessAnalysis: isBusiness}

	var docs []string
	if includeContext {
		hits, err := a.retrieve(ctx, message, "", a.config.ContextLimit)
		if err != nil {
			a.logger.Warn("context search failed", zap.Error(err))
		}
		for _, hit := range hits {
			if strings.TrimSpace(hit.Content) != "" {
				docs = append(docs, hit.Content)
			}
		}
	}

	var businessContext string
	if isBusiness {
		businessContext = a.business.InsightsContext()
	}

	a.mu.Lock()
	turns := append([]models.Turn(nil), a.turns[conversationID]...)
	a.mu.Unlock()

	messages := llm.ConversationMessages(message, turns, a.config.TurnLimit, docs, businessContext)
	completion, err := a.chat.Complete(ctx, messages)
	reply.Timestamp = a.now()
	if err != nil {
		a.logger.Error("conversation failed", zap.String("conversation_id", conversationID), zap.Error(err))
		reply.Response = apology
		reply.Error = err.Error()
		return reply
	}

	a.mu.Lock()
	history := append(a.turns[conversationID], models.Turn{
		User:           message,
		Assistant:      completion.Content,
		Timestamp:      reply.Timestamp,
		ConversationID: conversationID,
	})
	if len(history) > a.config.MaxTurns {
		history = history[len(history)-a.config.MaxTurns:]
	}
	a.turns[conversationID] = history
	a.mu.Unlock()

	reply.Response = completion.Content
	reply.ContextUsed = len(docs) > 0
	reply.ContextSources = len(docs)
	return reply
}

// Turns returns the remembered turns of a conversation.
func (a *Assistant) Turns(conversationID string) []models.Turn {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.Turn(nil), a.turns[conversationID]...)
}

// Chat answers message inside a persistent chat session, creating the chat when
// chatID is empty. documentID restricts retrieval to one document.
func (a *Assistant) Chat(ctx context.Context, message, chatID, documentID string) (*ChatReply, error) {
	return a.respond(ctx, message, chatID, documentID, nil)
}

// ChatStream is Chat with the reply delivered to onChunk as it is generated.
func (a *Assistant) ChatStream(ctx context.Context, message, chatID, documentID string, onChunk func(chunk string) error) (*ChatReply, error) {
	return a.respond(ctx, message, chatID, documentID, onChunk)
}

// OpenChat returns chatID after checking it exists. An empty chatID starts a
// new chat titled after firstMessage.
func (a *Assistant) OpenChat(ctx context.Context, chatID, firstMessage string) (string, error) {
	if chatID != "" {
		if _, err := a.chats.Load(ctx, chatID); err != nil {
			return "", err
		}
		return chatID, nil
	}
	if strings.TrimSpace(firstMessage) == "" {
		return "", ErrEmptyMessage
	}
	chat, err := a.chats.CreateChat(ctx, a.chat.Title(ctx, firstMessage))
	if err != nil {
		return "", err
	}
	return chat.ChatID, nil
}

func (a *Assistant) respond(ctx context.Context, message, chatID, documentID string, onChunk func(string) error) (*ChatReply, error) {
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyMessage
	}

	chatID, err := a.OpenChat(ctx, chatID, message)
	if err != nil {
		return nil, err
	}

	hits, err := a.retrieve(ctx, message, documentID, a.config.ContextLimit)
	if err != nil {
		a.logger.Warn("context search failed", zap.String("chat_id", chatID), zap.Error(err))
	}
	var excerpts []string
	var sources []string
	seen := make(map[string]bool)
	for _, hit := range hits {
		if strings.TrimSpace(hit.Content) == "" {
			continue
		}
		excerpts = append(excerpts, hit.Content)
		source := hit.DocumentID
		if source == "" {
			source = "Unknown Document"
		}
		if !seen[source] {
			seen[source] = true
			sources = append(sources, source)
		}
	}

	history, err := a.chats.History(ctx, chatID, chats.DefaultHistoryLimit)
	if err != nil {
		return nil, err
	}
	messages := llm.ContextAwareMessages(message, excerpts, history, a.config.HistoryLimit)

	var completion *llm.Completion
	if onChunk != nil {
		completion, err = a.chat.Stream(ctx, messages, onChunk)
	} else {
		completion, err = a.chat.Complete(ctx, messages)
	}
	if err != nil {
		return nil, fmt.Errorf("chat %s: %w", chatID, err)
	}

	if _, err := a.chats.AddMessage(ctx, chatID, models.RoleUser, message, sources, nil); err != nil {
		return nil, err
	}
	if sources == nil {
		sources = []string{}
	}
	_, err = a.chats.AddMessage(ctx, chatID, models.RoleAssistant, completion.Content, sources, map[string]interface{}{
		"model":                a.chat.Model(),
		"tokens_used":          completion.TotalTokens,
		"has_document_context": len(excerpts) > 0,
		"context_documents":    sources,
	})
	if err != nil {
		return nil, err
	}

	responseType := ResponseGeneral
	if len(excerpts) > 0 {
		responseType = ResponseDocumentBased
	}
	return &ChatReply{
		Success:           true,
		Response:          completion.Content,
		ChatID:            chatID,
		ResponseType:      responseType,
		ContextDocuments:  sources,
		ContextChunksUsed: len(excerpts),
		TokensUsed:        completion.TotalTokens,
		Timestamp:         a.now(),
	}, nil
}

var (
	documentSuggestions = []string{
		"Can you summarize the main points from the uploaded document?",
		"What are the key findings or recommendations?",
		"Are there any specific details I should pay attention to?",
		"How does this relate to similar topics?",
	}
	businessSuggestions = []string{
		"Can you create a forecast based on this data?",
		"What are the business implications?",
		"How can I improve these metrics?",
	}
	academicSuggestions = []string{
		"Can you help me outline this for a paper?",
		"What additional research might be needed?",
		"How should I cite this information?",
	}
	genericSuggestions = []string{
		"Upload a document to get started with analysis",
		"What would you like help with today?",
		"Tell me about your current project",
		"How can I assist with your work?",
	}

	businessWords = []string{"business", "revenue", "profit", "expense", "financial"}
	academicWords = []string{"research", "study", "analysis", "academic"}
)

const maxSuggestions = 4

// Suggestions proposes follow-up questions for a chat. An unknown chat has none.
func (a *Assistant) Suggestions(ctx context.Context, chatID string) ([]string, error) {
	chat, err := a.chats.Load(ctx, chatID)
	if err != nil {
		if errors.Is(err, chats.ErrChatNotFound) {
			return []string{}, nil
		}
		return nil, err
	}

	var suggestions []string
	if len(chat.ContextDocuments) > 0 {
		suggestions = append(suggestions, documentSuggestions...)
	}

	recent := chat.Messages
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}
	for i := len(recent) - 1; i >= 0; i-- {
		if recent[i].Role != models.RoleAssistant {
			continue
		}
		last := strings.ToLower(recent[i].Content)
		if containsAny(last, businessWords) {
			suggestions = append(suggestions, businessSuggestions...)
		}
		if containsAny(last, academicWords) {
			suggestions = append(suggestions, academicSuggestions...)
		}
		break
	}

	if len(suggestions) == 0 {
		suggestions = genericSuggestions
	}
	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}
	return append([]string(nil), suggestions...), nil
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

const analysisQuery = "document content summary analysis"

// AnalyzeDocument runs one analysis kind over up to AnalysisChunks chunks of a
// document. Unknown kinds fall back to a summary.
func (a *Assistant) AnalyzeDocument(ctx context.Context, documentID, kind string) (*Analysis, error) {
	hits, err := a.retrieve(ctx, analysisQuery, documentID, a.config.AnalysisChunks)
	if err != nil {
		return nil, err
	}

	parts := make([]string, 0, len(hits))
	for _, hit := range hits {
		if strings.TrimSpace(hit.Content) != "" {
			parts = append(parts, hit.Content)
		}
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("%s: %w", documentID, ErrNoDocumentContent)
	}

	completion, kind, err := a.chat.Analyze(ctx, kind, strings.Join(parts, "\n\n"))
	if err != nil {
		return nil, fmt.Errorf("failed to analyze %s: %w", documentID, err)
	}

	return &Analysis{
		Success:        true,
		DocumentID:     documentID,
		AnalysisType:   kind,
		Analysis:       completion.Content,
		ChunksAnalyzed: len(parts),
		TokensUsed:     completion.TotalTokens,
		Timestamp:      a.now(),
	}, nil
}

func (a *Assistant) retrieve(ctx context.Context, query, documentID string, n int) ([]models.SearchHit, error) {
	vector, err := a.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return a.store.Search(ctx, vector, n, documentID)
}
