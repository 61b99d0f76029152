// Package webchat serves general chat over a WebSocket connection.
package webchat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/net/websocket"

	"github.com/wolfman30/maison-chat-platform/internal/conversation"
	httpmiddleware "github.com/wolfman30/maison-chat-platform/internal/http/middleware"
	"github.com/wolfman30/maison-chat-platform/pkg/logging"
)

// GeneralChatter runs one general chat turn.
type GeneralChatter interface {
	HandleGeneralChat(ctx context.Context, req conversation.GeneralChatRequest) (*conversation.GeneralChatResponse, error)
}

// InboundMessage is what the widget sends.
type InboundMessage struct {
	Type      string `json:"type"` // "message", "ping"
	Text      string `json:"text"`
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

// OutboundMessage is what we send to the widget.
type OutboundMessage struct {
	Type           string `json:"type"` // "message", "typing", "pong", "error"
	Text           string `json:"text,omitempty"`
	SessionID      string `json:"session_id,omitempty"`
	ConversationID int64  `json:"conversation_id,omitempty"`
	Intent         string `json:"intent,omitempty"`
	Timestamp      string `json:"timestamp,omitempty"`
}

// Handler manages web chat connections.
type Handler struct {
	chat        GeneralChatter
	origins     httpmiddleware.OriginPolicy
	turnTimeout time.Duration
	logger      *logging.Logger
	active      atomic.Int64
}

// NewHandler creates a web chat handler. An empty origin list accepts any
// origin, including none.
func NewHandler(chat GeneralChatter, allowedOrigins []string, logger *logging.Logger) *Handler {
	if chat == nil {
		panic("webchat: chat service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		chat:        chat,
		origins:     httpmiddleware.NewOriginPolicy(allowedOrigins),
		turnTimeout: time.Minute,
		logger:      logger,
	}
}

// ActiveConnections reports the number of open sockets.
func (h *Handler) ActiveConnections() int64 {
	return h.active.Load()
}

// HandleWebSocket upgrades to WebSocket and handles real-time messaging.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	srv := websocket.Server{
		Handshake: h.handshake,
		Handler: func(conn *websocket.Conn) {
			h.serveWS(conn, r)
		},
	}
	srv.ServeHTTP(w, r)
}

func (h *Handler) handshake(cfg *websocket.Config, r *http.Request) error {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return nil
	}
	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("webchat: bad origin: %w", err)
	}
	cfg.Origin = u
	if !h.origins.Open() && !h.origins.Allows(origin) {
		return fmt.Errorf("webchat: origin %q not allowed", origin)
	}
	return nil
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	h.active.Add(1)
	defer h.active.Add(-1)

	sessionID := r.URL.Query().Get("session")
	userID := r.URL.Query().Get("user")
	h.logger.Info("webchat: connection opened", "session_id", sessionID, "logged_in", userID != "")

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("webchat: connection closed", "session_id", sessionID, "error", err)
			return
		}

		switch msg.Type {
		case "ping":
			h.send(conn, OutboundMessage{Type: "pong"})
			continue
		case "message":
		default:
			continue
		}
		if strings.TrimSpace(msg.Text) == "" {
			continue
		}
		if msg.SessionID != "" {
			sessionID = msg.SessionID
		}
		if msg.UserID != "" {
			userID = msg.UserID
		}

		h.send(conn, OutboundMessage{Type: "typing"})
		sessionID = h.processMessage(r.Context(), conn, msg.Text, sessionID, userID)
	}
}

// processMessage runs one turn and returns the session id to use next.
func (h *Handler) processMessage(ctx context.Context, conn *websocket.Conn, text, sessionID, userID string) string {
	ctx, cancel := context.WithTimeout(ctx, h.turnTimeout)
	defer cancel()

	resp, err := h.chat.HandleGeneralChat(ctx, conversation.GeneralChatRequest{
		Message:   text,
		SessionID: sessionID,
		UserID:    userID,
	})
	if err != nil {
		_, body := conversation.StatusFor(err)
		h.logger.Warn("webchat: chat turn failed", "session_id", sessionID, "error", err)
		h.send(conn, OutboundMessage{Type: "error", Text: body})
		if errors.Is(err, conversation.ErrSessionExpired) {
			return ""
		}
		return sessionID
	}

	h.send(conn, OutboundMessage{
		Type:           "message",
		Text:           resp.Response,
		SessionID:      resp.SessionID,
		ConversationID: resp.ConversationID,
		Intent:         resp.Intent,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	})
	return resp.SessionID
}

func (h *Handler) send(conn *websocket.Conn, msg OutboundMessage) {
	if err := websocket.JSON.Send(conn, msg); err != nil {
		h.logger.Debug("webchat: send failed", "type", msg.Type, "error", err)
	}
}
