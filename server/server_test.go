package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xhad/pai/internal/mocks"
	"github.com/xhad/pai/pkg/assistant"
	"github.com/xhad/pai/pkg/chats"
	"github.com/xhad/pai/pkg/files"
	"github.com/xhad/pai/pkg/llm"
	"github.com/xhad/pai/pkg/processor"
	"github.com/xhad/pai/pkg/store"
	"github.com/xhad/pai/server"
)

func newServer(t *testing.T, streaming bool) (*httptest.Server, *mocks.MockLLM) {
	t.Helper()
	logger := zap.NewNop()

	model := mocks.NewMockLLM()
	engine, err := llm.NewWithModel(model, llm.ChatConfig{Model: "mock-model"}, logger)
	require.NoError(t, err)
	vs, err := store.NewChromem("", "test", logger)
	require.NoError(t, err)
	repo, err := chats.OpenBadger("", logger)
	require.NoError(t, err)
	uploads, err := files.New(files.Config{
		UploadFolder:      t.TempDir(),
		MaxFileSize:       1 << 20,
		AllowedExtensions: []string{"txt", "csv"},
	}, logger)
	require.NoError(t, err)

	a, err := assistant.New(assistant.Config{}, assistant.Deps{
		Processor: processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 200, ChunkOverlap: 20}, logger),
		Embedder:  mocks.NewMockEmbedder(),
		Store:     vs,
		Chat:      engine,
		Chats:     chats.NewManager(repo, logger),
		Files:     uploads,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	srv := httptest.NewServer(server.New(a, server.Config{Streaming: streaming}, logger).Router())
	t.Cleanup(srv.Close)
	return srv, model
}

func do(t *testing.T, method, url string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	return send(t, req)
}

func send(t *testing.T, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func upload(t *testing.T, base, filename, content, customName string) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	if customName != "" {
		require.NoError(t, mw.WriteField("custom_name", customName))
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, base+"/api/v1/upload", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return send(t, req)
}

func TestHealth(t *testing.T) {
	srv, _ := newServer(t, false)

	status, body := do(t, http.MethodGet, srv.URL+"/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
	components := body["components"].(map[string]interface{})
	assert.Equal(t, "healthy", components["file_system"])

	status, body = do(t, http.MethodGet, srv.URL+"/", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Personal AI Assistant API", body["message"])
}

func TestChatRoutes(t *testing.T) {
	srv, model := newServer(t, false)
	api := srv.URL + "/api/v1"
	model.WithResponseQueue("Greeting", "Hello there")

	status, body := do(t, http.MethodPost, api+"/chat", map[string]string{"message": ""})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid request", body["error"])
	assert.Contains(t, body["details"], "message must be between 1 and 5000")
	assert.NotEmpty(t, body["timestamp"])

	status, body = do(t, http.MethodPost, api+"/chat", map[string]string{"message": strings.Repeat("x", 5001)})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = do(t, http.MethodPost, api+"/chat", map[string]string{"message": "Hi"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Hello there", body["response"])
	assert.Equal(t, "general", body["response_type"])
	chatID := body["chat_id"].(string)

	status, body = do(t, http.MethodPost, api+"/chat/"+chatID+"/message", map[string]string{"message": "Again"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, chatID, body["chat_id"])

	status, body = do(t, http.MethodGet, api+"/chat/"+chatID, nil)
	require.Equal(t, http.StatusOK, status)
	chat := body["chat"].(map[string]interface{})
	assert.Equal(t, "Greeting", chat["title"])
	assert.Len(t, chat["messages"], 4)

	status, body = do(t, http.MethodGet, api+"/chat/missing", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Chat not found", body["error"])

	status, _ = do(t, http.MethodPost, api+"/chat/missing/message", map[string]string{"message": "hi"})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = do(t, http.MethodPut, api+"/chat/"+chatID+"/title", map[string]string{"title": "Renamed"})
	assert.Equal(t, http.StatusOK, status)

	status, body = do(t, http.MethodGet, api+"/chat/list", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["total"])
	first := body["chats"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "Renamed", first["title"])

	status, body = do(t, http.MethodGet, api+"/chats/search?query=renamed", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["total"])

	status, _ = do(t, http.MethodGet, api+"/chats/search", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = do(t, http.MethodGet, api+"/chat/"+chatID+"/suggestions", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["suggestions"], 4)

	status, body = do(t, http.MethodGet, api+"/chat/stats", nil)
	require.Equal(t, http.StatusOK, status)
	stats := body["stats"].(map[string]interface{})
	assert.Equal(t, float64(4), stats["total_messages"])

	status, _ = do(t, http.MethodDelete, api+"/chat/"+chatID, nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = do(t, http.MethodDelete, api+"/chat/"+chatID, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = do(t, http.MethodPost, api+"/chat/new", map[string]string{"title": "Plans"})
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["chat_id"])
}

func TestMessageRoute(t *testing.T) {
	srv, model := newServer(t, false)
	model.WithResponseQueue("Stateless reply")

	status, body := do(t, http.MethodPost, srv.URL+"/api/v1/message", map[string]interface{}{
		"message":         "How is revenue?",
		"conversation_id": "c1",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Stateless reply", body["response"])
	assert.Equal(t, true, body["business_analysis"])
}

const expensesCSV = `Date,Description,Amount
2024-01-05,Office supplies,100
2024-01-20,Flight to NYC,400
2024-02-03,Team lunch,50
2024-02-15,Software subscription,1200.5
2024-03-01,Hotel stay,300
`

func TestDocumentRoutes(t *testing.T) {
	srv, model := newServer(t, false)
	api := srv.URL + "/api/v1"

	status, body := upload(t, srv.URL, "virus.exe", "MZ", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["details"], "file type not allowed")

	status, body = upload(t, srv.URL, "notes.txt", "Rockets launch into space from the coast.", "Space: notes?")
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Space_ notes_", body["document_id"])
	assert.Equal(t, float64(1), body["chunks_created"])
	fileInfo := body["file_info"].(map[string]interface{})
	savedName := fileInfo["saved_filename"].(string)
	assert.True(t, strings.HasSuffix(savedName, ".txt"))

	status, body = upload(t, srv.URL, "empty.txt", "   ", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = do(t, http.MethodGet, api+"/documents", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["total"])

	status, body = do(t, http.MethodPost, api+"/search", map[string]interface{}{"query": "rockets", "limit": 51})
	assert.Equal(t, http.StatusBadRequest, status)
	status, body = do(t, http.MethodPost, api+"/search", map[string]interface{}{"query": ""})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = do(t, http.MethodPost, api+"/search", map[string]interface{}{"query": "rockets launch"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["total_results"])
	assert.Equal(t, []interface{}{"Space_ notes_"}, body["sources"])

	model.WithResponseQueue("A short summary.")
	status, body = do(t, http.MethodPost, api+"/documents/Space_%20notes_/analyze", map[string]string{"analysis_type": "summary"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "A short summary.", body["analysis"])

	status, _ = do(t, http.MethodPost, api+"/documents/missing/analyze", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = do(t, http.MethodGet, api+"/files", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["files"], 1)

	status, _ = do(t, http.MethodDelete, api+"/documents/Space_%20notes_", nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = do(t, http.MethodDelete, api+"/documents/Space_%20notes_", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = do(t, http.MethodDelete, api+"/files/"+savedName, nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = do(t, http.MethodDelete, api+"/files/"+savedName, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = do(t, http.MethodPost, api+"/files/cleanup?days=1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), body["deleted_count"])

	status, _ = do(t, http.MethodPost, api+"/ingest/url", map[string]string{"url": "https://example.com"})
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestBusinessRoutes(t *testing.T) {
	srv, _ := newServer(t, false)
	api := srv.URL + "/api/v1"

	status, body := upload(t, srv.URL, "expenses.csv", expensesCSV, "")
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, true, body["business_data"])
	assert.Equal(t, "expenses.csv", body["document_id"])

	status, body = do(t, http.MethodPost, api+"/analyze/business", map[string]string{"query": "spending"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Analysis complete for 1 financial documents", body["message"])

	tests := []struct {
		name     string
		body     map[string]interface{}
		expected int
	}{
		{"default periods", map[string]interface{}{"document_id": "expenses.csv"}, http.StatusOK},
		{"zero periods", map[string]interface{}{"document_id": "expenses.csv", "periods": 0}, http.StatusBadRequest},
		{"too many periods", map[string]interface{}{"document_id": "expenses.csv", "periods": 61}, http.StatusBadRequest},
		{"missing id", map[string]interface{}{"periods": 3}, http.StatusBadRequest},
		{"unknown document", map[string]interface{}{"document_id": "nope.csv"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, http.MethodPost, api+"/forecast", tt.body)
			assert.Equal(t, tt.expected, status, body)
		})
	}

	status, body = do(t, http.MethodPost, api+"/forecast", map[string]interface{}{"document_id": "expenses.csv"})
	require.Equal(t, http.StatusOK, status)
	fc := body["forecast"].(map[string]interface{})
	assert.Len(t, fc["forecast_values"], 12)

	status, body = do(t, http.MethodGet, api+"/stats", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "operational", body["system_status"])
	vector := body["vector_store"].(map[string]interface{})
	assert.Equal(t, float64(1), vector["unique_documents"])

	status, _ = do(t, http.MethodPost, api+"/reset", nil)
	require.Equal(t, http.StatusOK, status)
	status, body = do(t, http.MethodGet, api+"/documents", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), body["total"])
}

func TestWebSocket(t *testing.T) {
	srv, model := newServer(t, true)
	model.WithResponseQueue("Socket chat", "one two three")

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.DialContext(context.Background(), wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(server.Message{Type: "chat", Content: ""}))
	var msg server.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, server.MsgError, msg.Type)

	require.NoError(t, conn.WriteJSON(server.Message{Type: "chat", Content: "count to three"}))
	var (
		streamed    []string
		streamChats []string
		chatID      string
	)
	for {
		var msg server.Message
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == server.MsgStream {
			streamed = append(streamed, msg.Content)
			streamChats = append(streamChats, msg.ChatID)
			continue
		}
		require.Equal(t, server.MsgResponse, msg.Type, msg.Content)
		assert.Equal(t, "one two three", msg.Content)
		chatID = msg.ChatID
		break
	}
	assert.Equal(t, []string{"one ", "two ", "three"}, streamed)
	// a new chat's id is known from the first fragment on
	require.NotEmpty(t, chatID)
	assert.Equal(t, []string{chatID, chatID, chatID}, streamChats)

	require.NoError(t, conn.WriteJSON(server.Message{Type: "chat", Content: "again", ChatID: "no-such-chat"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, server.MsgError, msg.Type)
	assert.Equal(t, "no-such-chat", msg.ChatID)

	require.NoError(t, conn.WriteJSON(server.Message{Type: "chat", Content: "https://example.com"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, server.MsgStatus, msg.Type)
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, server.MsgError, msg.Type)
	assert.Contains(t, msg.Content, "not configured")
}
