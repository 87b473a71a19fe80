package assistant_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/pai/internal/models"
	"github.com/xhad/pai/pkg/assistant"
	"github.com/xhad/pai/pkg/chats"
)

func TestChatWithDocumentContext(t *testing.T) {
	e := newEnv(t, assistant.Config{})
	ctx := context.Background()

	_, err := e.a.UploadDocument(ctx, writeFile(t, "notes.txt", revenueNotes), "")
	require.NoError(t, err)

	e.model.WithResponseQueue(`"Revenue Review"`, "Revenue grew in the north.", "It kept growing.")

	reply, err := e.a.Chat(ctx, "How did revenue grow?", "", "")
	require.NoError(t, err)
	assert.True(t, reply.Success)
	assert.NotEmpty(t, reply.ChatID)
	assert.Equal(t, "Revenue grew in the north.", reply.Response)
	assert.Equal(t, assistant.ResponseDocumentBased, reply.ResponseType)
	assert.Equal(t, []string{"notes.txt"}, reply.ContextDocuments)
	assert.Equal(t, 5, reply.ContextChunksUsed)
	assert.Equal(t, 42, reply.TokensUsed)
	assert.Contains(t, lastPrompt(t, e.model), "--- Document Excerpt 5 ---")

	chat, err := e.a.Chats().Load(ctx, reply.ChatID)
	require.NoError(t, err)
	assert.Equal(t, "Revenue Review", chat.Title)
	require.Len(t, chat.Messages, 2)
	assert.Equal(t, models.RoleUser, chat.Messages[0].Role)
	assert.Equal(t, []string{"notes.txt"}, chat.Messages[0].DocumentContext)
	assert.Equal(t, models.RoleAssistant, chat.Messages[1].Role)
	assert.Equal(t, "mock-model", chat.Messages[1].Metadata["model"])
	assert.Equal(t, true, chat.Messages[1].Metadata["has_document_context"])
	assert.Equal(t, 42, chat.Metadata.TotalTokens)
	assert.Equal(t, []string{"notes.txt"}, chat.ContextDocuments)

	// The follow-up replays the earlier exchange.
	reply, err = e.a.Chat(ctx, "And after that?", reply.ChatID, "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "It kept growing.", reply.Response)
	prompt := lastPrompt(t, e.model)
	assert.Contains(t, prompt, "How did revenue grow?")
	assert.Contains(t, prompt, "Revenue grew in the north.")

	chat, err = e.a.Chats().Load(ctx, reply.ChatID)
	require.NoError(t, err)
	assert.Len(t, chat.Messages, 4)
	assert.Equal(t, 84, chat.Metadata.TotalTokens)
}

func TestChatGeneral(t *testing.T) {
	e := newEnv(t, assistant.Config{})
	ctx := context.Background()

	chat, err := e.a.Chats().CreateChat(ctx, "Small talk")
	require.NoError(t, err)

	reply, err := e.a.Chat(ctx, "Tell me a joke", chat.ChatID, "")
	require.NoError(t, err)
	assert.Equal(t, chat.ChatID, reply.ChatID)
	assert.Equal(t, assistant.ResponseGeneral, reply.ResponseType)
	assert.Empty(t, reply.ContextDocuments)
	assert.Equal(t, 0, reply.ContextChunksUsed)
	assert.Equal(t, "Mock response", reply.Response)
	assert.NotContains(t, lastPrompt(t, e.model), "RELEVANT DOCUMENT CONTENT")
}

func TestChatErrors(t *testing.T) {
	e := newEnv(t, assistant.Config{})
	ctx := context.Background()

	_, err := e.a.Chat(ctx, "  ", "", "")
	assert.ErrorIs(t, err, assistant.ErrEmptyMessage)

	_, err = e.a.Chat(ctx, "hi", "missing", "")
	assert.ErrorIs(t, err, chats.ErrChatNotFound)

	chat, err := e.a.Chats().CreateChat(ctx, "Broken")
	require.NoError(t, err)
	boom := errors.New("model offline")
	e.model.WithError(boom)

	_, err = e.a.Chat(ctx, "hi", chat.ChatID, "")
	assert.ErrorIs(t, err, boom)

	chat, err = e.a.Chats().Load(ctx, chat.ChatID)
	require.NoError(t, err)
	assert.Empty(t, chat.Messages, "failed exchanges are not persisted")
}

func TestChatStream(t *testing.T) {
	e := newEnv(t, assistant.Config{})
	ctx := context.Background()
	e.model.WithResponseQueue("Streaming", "one two three")

	var parts []string
	reply, err := e.a.ChatStream(ctx, "count to three", "", "", func(chunk string) error {
		parts = append(parts, chunk)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "one two three", reply.Response)
	assert.Equal(t, []string{"one ", "two ", "three"}, parts)
	assert.Equal(t, "one two three", strings.Join(parts, ""))

	chat, err := e.a.Chats().Load(ctx, reply.ChatID)
	require.NoError(t, err)
	assert.Equal(t, "Streaming", chat.Title)
	assert.Len(t, chat.Messages, 2)
}

func TestProcessMessage(t *testing.T) {
	e := newEnv(t, assistant.Config{MaxTurns: 2})
	ctx := context.Background()
	e.model.WithResponseQueue("first", "second", "third")

	reply := e.a.ProcessMessage(ctx, "hello", "c1", true)
	assert.Equal(t, "first", reply.Response)
	assert.False(t, reply.ContextUsed)
	assert.False(t, reply.BusinessAnalysis)
	assert.Empty(t, reply.Error)

	reply = e.a.ProcessMessage(ctx, "how are you", "c1", true)
	assert.Equal(t, "second", reply.Response)
	prompt := lastPrompt(t, e.model)
	assert.Contains(t, prompt, "hello")
	assert.Contains(t, prompt, "first")

	e.a.ProcessMessage(ctx, "bye", "c1", true)
	turns := e.a.Turns("c1")
	require.Len(t, turns, 2)
	assert.Equal(t, "how are you", turns[0].User)
	assert.Equal(t, "third", turns[1].Assistant)
	assert.Empty(t, e.a.Turns("c2"))
}

func TestProcessMessageContext(t *testing.T) {
	e := newEnv(t, assistant.Config{})
	ctx := context.Background()

	_, err := e.a.UploadDocument(ctx, writeFile(t, "expenses.csv", expensesCSV), "")
	require.NoError(t, err)

	reply := e.a.ProcessMessage(ctx, "What is my revenue forecast?", "", true)
	assert.True(t, reply.ContextUsed)
	assert.Positive(t, reply.ContextSources)
	assert.True(t, reply.BusinessAnalysis)
	prompt := lastPrompt(t, e.model)
	assert.Contains(t, prompt, "**Relevant Document Context:**")
	assert.Contains(t, prompt, "Financial data from expenses.csv")

	reply = e.a.ProcessMessage(ctx, "What is my revenue forecast?", "", false)
	assert.False(t, reply.ContextUsed)
}

func TestProcessMessageFailure(t *testing.T) {
	e := newEnv(t, assistant.Config{})
	e.model.WithError(errors.New("rate limited"))

	reply := e.a.ProcessMessage(context.Background(), "hello", "c1", false)
	assert.Contains(t, reply.Response, "I apologize")
	assert.Contains(t, reply.Error, "rate limited")
	assert.Empty(t, e.a.Turns("c1"))
}

func TestSuggestions(t *testing.T) {
	e := newEnv(t, assistant.Config{})
	ctx := context.Background()

	got, err := e.a.Suggestions(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, got)

	chat, err := e.a.Chats().CreateChat(ctx, "Fresh")
	require.NoError(t, err)
	got, err = e.a.Suggestions(ctx, chat.ChatID)
	require.NoError(t, err)
	assert.Equal(t, "Upload a document to get started with analysis", got[0])
	assert.Len(t, got, 4)

	tests := []struct {
		name      string
		documents []string
		reply     string
		expected  []string
	}{
		{
			name:  "business reply",
			reply: "Your revenue is up.",
			expected: []string{
				"Can you create a forecast based on this data?",
				"What are the business implications?",
				"How can I improve these metrics?",
			},
		},
		{
			name:  "business and academic reply",
			reply: "This research shows profit growth.",
			expected: []string{
				"Can you create a forecast based on this data?",
				"What are the business implications?",
				"How can I improve these metrics?",
				"Can you help me outline this for a paper?",
			},
		},
		{
			name:      "document context comes first",
			documents: []string{"report.pdf"},
			reply:     "Revenue doubled.",
			expected: []string{
				"Can you summarize the main points from the uploaded document?",
				"What are the key findings or recommendations?",
				"Are there any specific details I should pay attention to?",
				"How does this relate to similar topics?",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat, err := e.a.Chats().CreateChat(ctx, tt.name)
			require.NoError(t, err)
			_, err = e.a.Chats().AddMessage(ctx, chat.ChatID, models.RoleUser, "question", tt.documents, nil)
			require.NoError(t, err)
			_, err = e.a.Chats().AddMessage(ctx, chat.ChatID, models.RoleAssistant, tt.reply, nil, nil)
			require.NoError(t, err)

			got, err := e.a.Suggestions(ctx, chat.ChatID)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestAnalyzeDocument(t *testing.T) {
	e := newEnv(t, assistant.Config{AnalysisChunks: 3})
	ctx := context.Background()

	_, err := e.a.AnalyzeDocument(ctx, "missing", "summary")
	assert.ErrorIs(t, err, assistant.ErrNoDocumentContent)

	_, err = e.a.UploadDocument(ctx, writeFile(t, "notes.txt", revenueNotes), "")
	require.NoError(t, err)
	e.model.WithResponseQueue("Revenue is growing steadily.")

	analysis, err := e.a.AnalyzeDocument(ctx, "notes.txt", "unknown-kind")
	require.NoError(t, err)
	assert.True(t, analysis.Success)
	assert.Equal(t, "summary", analysis.AnalysisType)
	assert.Equal(t, "Revenue is growing steadily.", analysis.Analysis)
	assert.Equal(t, 3, analysis.ChunksAnalyzed)
	assert.Equal(t, 42, analysis.TokensUsed)

	call, ok := e.model.LastCall()
	require.True(t, ok)
	assert.InDelta(t, 0.3, call.Options.Temperature, 1e-9)
	assert.Contains(t, lastPrompt(t, e.model), "Document Content:\n")

	e.model.WithResponseQueue("Key points.")
	analysis, err = e.a.AnalyzeDocument(ctx, "notes.txt", "key_points")
	require.NoError(t, err)
	assert.Equal(t, "key_points", analysis.AnalysisType)
}

func TestOpenChat(t *testing.T) {
	e := newEnv(t, assistant.Config{})
	ctx := context.Background()
	e.model.WithResponseQueue("Pricing questions", "Prices rose.")

	chatID, err := e.a.OpenChat(ctx, "", "why did prices rise?")
	require.NoError(t, err)
	require.NotEmpty(t, chatID)

	chat, err := e.a.Chats().Load(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, "Pricing questions", chat.Title)
	assert.Empty(t, chat.Messages)

	same, err := e.a.OpenChat(ctx, chatID, "")
	require.NoError(t, err)
	assert.Equal(t, chatID, same)

	reply, err := e.a.Chat(ctx, "why did prices rise?", chatID, "")
	require.NoError(t, err)
	assert.Equal(t, chatID, reply.ChatID)
	assert.Equal(t, "Prices rose.", reply.Response)

	_, err = e.a.OpenChat(ctx, "missing", "hi")
	assert.ErrorIs(t, err, chats.ErrChatNotFound)
	_, err = e.a.OpenChat(ctx, "", " ")
	assert.ErrorIs(t, err, assistant.ErrEmptyMessage)
}
