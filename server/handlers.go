package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xhad/pai/pkg/assistant"
	"github.com/xhad/pai/pkg/business"
	"github.com/xhad/pai/pkg/chats"
	"github.com/xhad/pai/pkg/files"
)

const (
	maxMessageLength    = 5000
	maxQueryLength      = 1000
	maxSearchLimit      = 50
	maxCustomNameLength = 255
	maxMultipartMemory  = 32 << 20
)

var errInvalidRequest = errors.New("invalid request")

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errInvalidRequest, err)
	}
	return nil
}

func lengthBetween(field, s string, lo, hi int) error {
	n := utf8.RuneCountInString(s)
	if n < lo || n > hi {
		return fmt.Errorf("%w: %s must be between %d and %d characters", errInvalidRequest, field, lo, hi)
	}
	return nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errInvalidRequest, key)
	}
	return n, nil
}

// cleanCustomName replaces characters that are unsafe in file names.
func cleanCustomName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > maxCustomNameLength {
		return "", fmt.Errorf("%w: custom_name must be at most %d characters", errInvalidRequest, maxCustomNameLength)
	}
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(`<>:"/\|?*`, r) {
			return '_'
		}
		return r
	}, name), nil
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	s.writeError(w, http.StatusBadRequest, "Invalid request", err)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	h := s.assistant.Health(r.Context())
	status := http.StatusOK
	if h.Status == assistant.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

type chatRequest struct {
	Message    string `json:"message"`
	ChatID     string `json:"chat_id,omitempty"`
	DocumentID string `json:"document_id,omitempty"`
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	s.answer(w, r, req)
}

func (s *Server) chatMessage(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	req.ChatID = chi.URLParam(r, "id")
	s.answer(w, r, req)
}

func (s *Server) answer(w http.ResponseWriter, r *http.Request, req chatRequest) {
	if err := lengthBetween("message", req.Message, 1, maxMessageLength); err != nil {
		s.badRequest(w, err)
		return
	}
	reply, err := s.assistant.Chat(r.Context(), req.Message, req.ChatID, req.DocumentID)
	if err != nil {
		s.fail(w, "Error processing chat message", err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

type messageRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	IncludeContext *bool  `json:"include_context,omitempty"`
}

// message serves the stateless conversation flow.
func (s *Server) message(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	if err := lengthBetween("message", req.Message, 1, maxMessageLength); err != nil {
		s.badRequest(w, err)
		return
	}
	include := req.IncludeContext == nil || *req.IncludeContext
	writeJSON(w, http.StatusOK, s.assistant.ProcessMessage(r.Context(), req.Message, req.ConversationID, include))
}

func (s *Server) newChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			s.badRequest(w, err)
			return
		}
	}
	chat, err := s.assistant.Chats().CreateChat(r.Context(), req.Title)
	if err != nil {
		s.fail(w, "Error creating chat", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"chat_id": chat.ChatID,
		"chat":    chat,
	})
}

func (s *Server) listChats(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", chats.DefaultListLimit)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	list, err := s.assistant.Chats().List(r.Context(), limit)
	if err != nil {
		s.fail(w, "Error listing chats", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"chats":   list,
		"total":   len(list),
	})
}

func (s *Server) chatStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.assistant.Chats().Stats(r.Context())
	if err != nil {
		s.fail(w, "Error getting chat stats", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "stats": stats})
}

func (s *Server) getChat(w http.ResponseWriter, r *http.Request) {
	chat, err := s.assistant.Chats().Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "Chat not found", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "chat": chat})
}

func (s *Server) updateTitle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	if err := lengthBetween("title", strings.TrimSpace(req.Title), 1, maxCustomNameLength); err != nil {
		s.badRequest(w, err)
		return
	}
	if err := s.assistant.Chats().UpdateTitle(r.Context(), chi.URLParam(r, "id"), req.Title); err != nil {
		s.fail(w, "Error updating chat title", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Chat title updated successfully",
	})
}

func (s *Server) deleteChat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deleted, err := s.assistant.Chats().Delete(r.Context(), id)
	if err != nil {
		s.fail(w, "Error deleting chat", err)
		return
	}
	if !deleted {
		s.writeError(w, http.StatusNotFound, "Chat not found", fmt.Errorf("%w: %s", chats.ErrChatNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Chat deleted successfully",
	})
}

func (s *Server) suggestions(w http.ResponseWriter, r *http.Request) {
	list, err := s.assistant.Suggestions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "Error getting suggestions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "suggestions": list})
}

func (s *Server) searchChats(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if err := lengthBetween("query", query, 1, maxQueryLength); err != nil {
		s.badRequest(w, err)
		return
	}
	limit, err := queryInt(r, "limit", 10)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	results, err := s.assistant.Chats().Search(r.Context(), query, limit)
	if err != nil {
		s.fail(w, "Error searching chats", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"results": results,
		"query":   query,
		"total":   len(results),
	})
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	if s.files == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Uploads are not configured", nil)
		return
	}
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		s.badRequest(w, err)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "No file provided", files.ErrNoFile)
		return
	}
	defer file.Close()

	customName, err := cleanCustomName(r.FormValue("custom_name"))
	if err != nil {
		s.badRequest(w, err)
		return
	}

	saved, err := s.files.Save(header.Filename, customName, file)
	if err != nil {
		s.fail(w, "Error saving file", err)
		return
	}

	documentID := customName
	if documentID == "" {
		documentID = saved.SavedFilename
	}
	result, err := s.assistant.UploadDocument(r.Context(), saved.Path, documentID)
	if err != nil {
		if rmErr := s.files.Delete(saved.SavedFilename); rmErr != nil {
			s.logger.Warn("failed to remove unprocessed upload", zap.Error(rmErr))
		}
		s.fail(w, "Error processing document", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":           result.Success,
		"message":           result.Message,
		"document_id":       result.DocumentID,
		"chunks_created":    result.ChunksCreated,
		"document_info":     result.Document,
		"business_data":     result.BusinessData,
		"file_info":         saved,
		"original_filename": header.Filename,
	})
}

func (s *Server) ingestURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	if err := lengthBetween("url", req.URL, 1, 2048); err != nil {
		s.badRequest(w, err)
		return
	}
	results, err := s.assistant.IngestURL(r.Context(), req.URL, nil)
	if err != nil {
		s.fail(w, "Error ingesting url", err)
		return
	}
	chunks := 0
	for _, res := range results {
		chunks += res.ChunksCreated
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":        true,
		"documents":      results,
		"pages":          len(results),
		"chunks_created": chunks,
	})
}

func (s *Server) documents(w http.ResponseWriter, r *http.Request) {
	docs, err := s.assistant.Documents(r.Context())
	if err != nil {
		s.fail(w, "Error retrieving documents", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"documents": docs,
		"total":     len(docs),
	})
}

func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	found, err := s.assistant.DeleteDocument(r.Context(), id)
	if err != nil {
		s.fail(w, "Error deleting document", err)
		return
	}
	if !found {
		s.writeError(w, http.StatusNotFound, "Document not found", fmt.Errorf("%w: %s", chats.ErrDocumentNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("Document %s deleted successfully", id),
	})
}

func (s *Server) analyzeDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AnalysisType string `json:"analysis_type"`
	}
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			s.badRequest(w, err)
			return
		}
	}
	analysis, err := s.assistant.AnalyzeDocument(r.Context(), chi.URLParam(r, "id"), req.AnalysisType)
	if err != nil {
		s.fail(w, "Error analyzing document", err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

type searchRequest struct {
	Query      string `json:"query"`
	DocumentID string `json:"document_id,omitempty"`
	Limit      *int   `json:"limit,omitempty"`
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	if err := lengthBetween("query", req.Query, 1, maxQueryLength); err != nil {
		s.badRequest(w, err)
		return
	}
	limit := 10
	if req.Limit != nil {
		limit = *req.Limit
	}
	if limit < 1 || limit > maxSearchLimit {
		s.badRequest(w, fmt.Errorf("%w: limit must be between 1 and %d", errInvalidRequest, maxSearchLimit))
		return
	}

	result, err := s.assistant.SearchDocuments(r.Context(), req.Query, req.DocumentID, limit)
	if err != nil {
		s.fail(w, "Error searching documents", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) businessInsights(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	if err := lengthBetween("query", req.Query, 1, maxQueryLength); err != nil {
		s.badRequest(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.assistant.BusinessInsights(req.Query))
}

func (s *Server) forecast(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocumentID string `json:"document_id"`
		Periods    *int   `json:"periods,omitempty"`
	}
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	if strings.TrimSpace(req.DocumentID) == "" {
		s.badRequest(w, fmt.Errorf("%w: document_id is required", errInvalidRequest))
		return
	}
	periods := business.DefaultPeriods
	if req.Periods != nil {
		periods = *req.Periods
	}
	if periods < 1 || periods > business.MaxPeriods {
		s.badRequest(w, fmt.Errorf("%w: periods must be between 1 and %d", business.ErrInvalidPeriods, business.MaxPeriods))
		return
	}

	fc, err := s.assistant.Forecast(req.DocumentID, periods)
	if err != nil {
		s.fail(w, "Error creating forecast", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"forecast": fc,
	})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.assistant.Stats(r.Context())
	if err != nil {
		s.fail(w, "Error getting stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) listFiles(w http.ResponseWriter, r *http.Request) {
	if s.files == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Uploads are not configured", nil)
		return
	}
	list, err := s.files.List()
	if err != nil {
		s.fail(w, "Error listing files", err)
		return
	}
	stats, err := s.files.Stats()
	if err != nil {
		s.fail(w, "Error listing files", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"files": list,
		"stats": stats,
	})
}

func (s *Server) deleteFile(w http.ResponseWriter, r *http.Request) {
	if s.files == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Uploads are not configured", nil)
		return
	}
	name := chi.URLParam(r, "name")
	if err := s.files.Delete(name); err != nil {
		s.fail(w, "Error deleting file", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("File %s deleted successfully", name),
	})
}

func (s *Server) cleanupFiles(w http.ResponseWriter, r *http.Request) {
	if s.files == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Uploads are not configured", nil)
		return
	}
	days, err := queryInt(r, "days", 30)
	if err != nil || days < 1 {
		s.badRequest(w, fmt.Errorf("%w: days must be a positive integer", errInvalidRequest))
		return
	}
	result, err := s.files.CleanupOlderThan(days)
	if err != nil {
		s.fail(w, "Error cleaning up files", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	if err := s.assistant.Reset(r.Context()); err != nil {
		s.fail(w, "Error resetting knowledge base", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Knowledge base reset successfully",
	})
}
