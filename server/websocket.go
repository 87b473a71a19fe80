package server

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xhad/pai/pkg/assistant"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// Message types sent over the socket.
const (
	MsgStatus   = "status"
	MsgProgress = "progress"
	MsgStream   = "stream"
	MsgResponse = "response"
	MsgError    = "error"
)

// Message is one frame in either direction. Clients send Content with an
// optional ChatID and DocumentID; the server echoes the chat id it used.
type Message struct {
	Type       string      `json:"type"`
	Content    string      `json:"content"`
	ChatID     string      `json:"chat_id,omitempty"`
	DocumentID string      `json:"document_id,omitempty"`
	Data       interface{} `json:"data,omitempty"`
}

// handleWebSocket serves one client. Messages are handled in order, so replies
// never interleave.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
		s.handleMessage(r, conn, msg)
	}
}

func (s *Server) handleMessage(r *http.Request, conn *websocket.Conn, msg Message) {
	ctx := r.Context()
	query := strings.TrimSpace(msg.Content)
	if err := lengthBetween("message", query, 1, maxMessageLength); err != nil {
		s.send(conn, Message{Type: MsgError, Content: err.Error()})
		return
	}

	if url := urlPattern.FindString(query); url != "" {
		s.send(conn, Message{Type: MsgStatus, Content: fmt.Sprintf("Processing URL: %s", url)})

		results, err := s.assistant.IngestURL(ctx, url, func(done, total int) {
			s.send(conn, Message{Type: MsgProgress, Content: fmt.Sprintf("Indexed %d of %d pages", done, total)})
		})
		if err != nil {
			s.send(conn, Message{Type: MsgError, Content: fmt.Sprintf("Failed to ingest URL: %v", err)})
			return
		}
		s.send(conn, Message{Type: MsgStatus, Content: fmt.Sprintf("Indexed %d documents", len(results)), Data: results})

		// Only continue with chat if the message holds more than the URL.
		if query == url {
			return
		}
	}

	var (
		reply *assistant.ChatReply
		err   error
	)
	if s.config.Streaming {
		// Resolve the chat first so every stream frame carries its id.
		chatID, openErr := s.assistant.OpenChat(ctx, msg.ChatID, query)
		if openErr != nil {
			s.send(conn, Message{Type: MsgError, Content: fmt.Sprintf("Error: %v", openErr), ChatID: msg.ChatID})
			return
		}
		reply, err = s.assistant.ChatStream(ctx, query, chatID, msg.DocumentID, func(chunk string) error {
			return conn.WriteJSON(Message{Type: MsgStream, Content: chunk, ChatID: chatID})
		})
	} else {
		reply, err = s.assistant.Chat(ctx, query, msg.ChatID, msg.DocumentID)
	}
	if err != nil {
		s.send(conn, Message{Type: MsgError, Content: fmt.Sprintf("Error: %v", err), ChatID: msg.ChatID})
		return
	}
	s.send(conn, Message{Type: MsgResponse, Content: reply.Response, ChatID: reply.ChatID, Data: reply})
}

func (s *Server) send(conn *websocket.Conn, msg Message) {
	if err := conn.WriteJSON(msg); err != nil {
		s.logger.Warn("failed to send websocket message", zap.Error(err))
	}
}
