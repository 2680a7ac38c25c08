package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/neo/rapport_backend/internal/logging"
)

// WebSocket message types
const (
	MessageTypeMessage = "message"
	MessageTypeRetry   = "retry"
	MessageTypeWelcome = "welcome"
	MessageTypeTyping  = "typing"
	MessageTypeReply   = "reply"
	MessageTypeError   = "error"
)

// ClientMessage is sent by the trainee over the socket
type ClientMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// ServerMessage is sent to the trainee over the socket
type ServerMessage struct {
	Type    string       `json:"type"`
	Reply   string       `json:"reply,omitempty"`
	Opening interface{}  `json:"opening,omitempty"`
	Error   *SocketError `json:"error,omitempty"`
}

// SocketError mirrors ErrorResponse for socket clients
type SocketError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 16 * 1024
)

func (s *Server) setupWebSocketRoutes() {
	s.router.GET("/ws/conversations/:id",
		s.requireFeature(func(f FeatureFlags) bool { return f.EnableWebSocket }),
		s.conversationSocketHandler)
}

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return s.config.originAllowed(r.Header.Get("Origin"))
		},
		EnableCompression: true,
	}
}

// socketConn serializes writes to one connection
type socketConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (sc *socketConn) send(msg ServerMessage) error {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	sc.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return sc.ws.WriteJSON(msg)
}

func (sc *socketConn) ping() error {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	return sc.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (s *Server) conversationSocketHandler(c *gin.Context) {
	conversationID := c.Param("id")

	// Unknown conversations are rejected before the upgrade
	opening, err := s.manager.Opening(c.Request.Context(), conversationID)
	if err != nil {
		c.Error(err)
		return
	}

	ws, err := s.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.LogWebSocketEvent("upgrade_failed", conversationID, "", map[string]interface{}{"error": err})
		return
	}
	defer ws.Close()

	clientID := uuid.NewString()
	conn := &socketConn{ws: ws}
	logging.LogWebSocketEvent("connected", conversationID, clientID, nil)
	defer logging.LogWebSocketEvent("disconnected", conversationID, clientID, nil)

	ws.SetReadLimit(maxMessageSize)
	pongWait := s.config.PingInterval * 2
	if pongWait > 0 {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if s.config.PingInterval > 0 {
		go s.keepAlive(ctx, conn)
	}

	if err := conn.send(ServerMessage{Type: MessageTypeWelcome, Opening: opening}); err != nil {
		return
	}

	for {
		var msg ClientMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.LogWebSocketEvent("read_failed", conversationID, clientID, map[string]interface{}{"error": err})
			}
			return
		}
		if pongWait > 0 {
			ws.SetReadDeadline(time.Now().Add(pongWait))
		}

		if err := s.handleSocketMessage(ctx, conn, conversationID, msg); err != nil {
			logging.LogWebSocketEvent("write_failed", conversationID, clientID, map[string]interface{}{"error": err})
			return
		}
	}
}

// handleSocketMessage processes one client message. Messages on a single
// connection are handled in order; only write errors are returned.
func (s *Server) handleSocketMessage(ctx context.Context, conn *socketConn, conversationID string, msg ClientMessage) error {
	var reply string
	var err error

	switch msg.Type {
	case MessageTypeMessage:
		if err := conn.send(ServerMessage{Type: MessageTypeTyping}); err != nil {
			return err
		}
		reply, err = s.manager.SubmitMessage(ctx, conversationID, msg.Message)
	case MessageTypeRetry:
		if !s.featureFlags.GetFlags().EnableReplyRetry {
			err = errFeatureDisabled
			break
		}
		if err := conn.send(ServerMessage{Type: MessageTypeTyping}); err != nil {
			return err
		}
		reply, err = s.manager.RegenerateReply(ctx, conversationID)
	default:
		return conn.send(ServerMessage{Type: MessageTypeError, Error: &SocketError{
			Code:    CodeValidationFailed,
			Message: "unknown message type: " + msg.Type,
		}})
	}

	if err != nil {
		_, code, message := classifyError(err)
		return conn.send(ServerMessage{Type: MessageTypeError, Error: &SocketError{Code: code, Message: message}})
	}
	return conn.send(ServerMessage{Type: MessageTypeReply, Reply: reply})
}

func (s *Server) keepAlive(ctx context.Context, conn *socketConn) {
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		}
	}
}
