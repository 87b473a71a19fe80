// Package server exposes the assistant over REST and a WebSocket chat endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/xhad/pai/pkg/assistant"
	"github.com/xhad/pai/pkg/business"
	"github.com/xhad/pai/pkg/chats"
	"github.com/xhad/pai/pkg/files"
	"github.com/xhad/pai/pkg/processor"
)

const APIPrefix = "/api/v1"

type Config struct {
	Addr string
	// Streaming sends WebSocket replies fragment by fragment.
	Streaming      bool
	AllowedOrigins []string
}

type Server struct {
	config    Config
	assistant *assistant.Assistant
	files     *files.Manager
	logger    *zap.Logger
	now       func() time.Time
}

func New(a *assistant.Assistant, config Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = []string{"*"}
	}
	return &Server{
		config:    config,
		assistant: a,
		files:     a.Files(),
		logger:    logger,
		now:       time.Now,
	}
}

// Router builds the chi router with all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"message": "Personal AI Assistant API",
			"docs":    APIPrefix + "/health",
		})
	})

	r.Route(APIPrefix, func(r chi.Router) {
		r.Get("/health", s.health)
		r.Get("/ws", s.handleWebSocket)

		// Chat sessions
		r.Post("/chat", s.chat)
		r.Post("/chat/new", s.newChat)
		r.Get("/chat/list", s.listChats)
		r.Get("/chat/stats", s.chatStats)
		r.Get("/chat/{id}", s.getChat)
		r.Post("/chat/{id}/message", s.chatMessage)
		r.Put("/chat/{id}/title", s.updateTitle)
		r.Delete("/chat/{id}", s.deleteChat)
		r.Get("/chat/{id}/suggestions", s.suggestions)
		r.Get("/chats/search", s.searchChats)
		r.Post("/message", s.message)

		// Documents
		r.Post("/upload", s.upload)
		r.Post("/ingest/url", s.ingestURL)
		r.Get("/documents", s.documents)
		r.Delete("/documents/{id}", s.deleteDocument)
		r.Post("/documents/{id}/analyze", s.analyzeDocument)
		r.Post("/search", s.search)

		// Business analytics
		r.Post("/analyze/business", s.businessInsights)
		r.Post("/forecast", s.forecast)

		// Administration
		r.Get("/stats", s.stats)
		r.Get("/files", s.listFiles)
		r.Delete("/files/{name}", s.deleteFile)
		r.Post("/files/cleanup", s.cleanupFiles)
		r.Post("/reset", s.reset)
	})

	return r
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", s.config.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error     string    `json:"error"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string, err error) {
	resp := errorResponse{Error: msg, Timestamp: s.now()}
	if err != nil {
		resp.Details = err.Error()
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, zap.Error(err))
	}
	writeJSON(w, status, resp)
}

// fail writes err with the status matching its sentinel.
func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	s.writeError(w, statusFor(err), msg, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, chats.ErrChatNotFound),
		errors.Is(err, chats.ErrDocumentNotFound),
		errors.Is(err, business.ErrDocumentNotFound),
		errors.Is(err, files.ErrFileNotFound),
		errors.Is(err, assistant.ErrNoDocumentContent):
		return http.StatusNotFound
	case errors.Is(err, files.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, assistant.ErrEmptyMessage),
		errors.Is(err, assistant.ErrEmptyDocument),
		errors.Is(err, processor.ErrUnsupportedType),
		errors.Is(err, files.ErrExtensionNotAllowed),
		errors.Is(err, files.ErrNoFile),
		errors.Is(err, business.ErrInvalidPeriods),
		errors.Is(err, business.ErrMissingColumns),
		errors.Is(err, business.ErrInsufficientData),
		errors.Is(err, business.ErrNoFinancialData):
		return http.StatusBadRequest
	case errors.Is(err, assistant.ErrScraperDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
