package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/fuomag9/meshwatch/internal/auth"
)

// ErrHubFull is returned when the broadcast queue cannot take a message.
var ErrHubFull = errors.New("broadcast queue full")

const writeTimeout = 10 * time.Second

// Message represents a WebSocket message
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Client represents a WebSocket client
type Client struct {
	ID      string
	Subject string
	Conn    *websocket.Conn
	Hub     *Hub
	Send    chan []byte
}

// Hub maintains active clients and broadcasts messages
type Hub struct {
	logger         *zap.Logger
	clients        map[*Client]bool
	broadcast      chan []byte
	register       chan *Client
	mu             sync.RWMutex
	jwtSecret      string
	allowedOrigins []string
}

// NewHub creates a new Hub. allowedOrigins may be full URLs or host
// patterns.
func NewHub(logger *zap.Logger, jwtSecret string, allowedOrigins []string) *Hub {
	patterns := make([]string, 0, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			origin = u.Host
		}
		patterns = append(patterns, origin)
	}

	return &Hub{
		logger:         logger,
		clients:        make(map[*Client]bool),
		broadcast:      make(chan []byte, 256),
		register:       make(chan *Client),
		jwtSecret:      jwtSecret,
		allowedOrigins: patterns,
	}
}

// Run dispatches messages until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info("ws_client_connected", zap.String("client_id", client.ID), zap.String("subject", client.Subject))

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					// too slow to keep up
					delete(h.clients, client)
					close(client.Send)
					h.logger.Warn("ws_client_dropped", zap.String("client_id", client.ID))
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.Send)
		h.logger.Info("ws_client_disconnected", zap.String("client_id", client.ID))
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues a message for all connected clients. It never blocks.
func (h *Hub) Broadcast(msgType string, payload interface{}) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
	}

	msgJSON, err := json.Marshal(Message{Type: msgType, Payload: payloadJSON})
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- msgJSON:
		return nil
	default:
		return ErrHubFull
	}
}

// HandleWebSocket authenticates and upgrades a connection
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token, err := auth.TokenFromRequest(r)
	if err != nil {
		h.logger.Warn("ws_rejected", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	subject, err := auth.ParseToken(h.jwtSecret, token)
	if err != nil {
		h.logger.Warn("ws_rejected", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	allowedOrigins := h.allowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"localhost:3000"}
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: allowedOrigins,
	})
	if err != nil {
		h.logger.Warn("ws_upgrade_failed", zap.Error(err))
		return
	}

	client := &Client{
		ID:      uuid.NewString(),
		Subject: subject,
		Conn:    conn,
		Hub:     h,
		Send:    make(chan []byte, 256),
	}

	select {
	case h.register <- client:
	case <-r.Context().Done():
		conn.Close(websocket.StatusGoingAway, "")
		return
	}

	go client.writePump()
	client.readPump(r.Context())
}

func isNormalClose(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway, websocket.StatusNoStatusRcvd:
		return true
	}
	return errors.Is(err, context.Canceled)
}

// readPump reads until the connection fails, then unregisters the client
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.Hub.remove(c)
		c.Conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := c.Conn.Read(ctx)
		if err != nil {
			if !isNormalClose(err) {
				c.Hub.logger.Warn("ws_read_failed", zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.Hub.logger.Debug("ws_bad_message", zap.String("client_id", c.ID), zap.Error(err))
			continue
		}
		c.handleMessage(msg)
	}
}

// writePump writes queued messages until Send is closed
func (c *Client) writePump() {
	for message := range c.Send {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := c.Conn.Write(ctx, websocket.MessageText, message)
		cancel()
		if err != nil {
			if !isNormalClose(err) {
				c.Hub.logger.Warn("ws_write_failed", zap.String("client_id", c.ID), zap.Error(err))
			}
			c.Conn.Close(websocket.StatusInternalError, "write failed")
			return
		}
	}
	c.Conn.Close(websocket.StatusGoingAway, "")
}

// handleMessage answers client pings; other messages are ignored
func (c *Client) handleMessage(msg Message) {
	switch msg.Type {
	case "ping":
		response, _ := json.Marshal(Message{Type: "pong", Payload: json.RawMessage(`{}`)})
		c.Hub.mu.RLock()
		_, alive := c.Hub.clients[c]
		if alive {
			select {
			case c.Send <- response:
			default:
			}
		}
		c.Hub.mu.RUnlock()
	default:
		c.Hub.logger.Debug("ws_unknown_message", zap.String("client_id", c.ID), zap.String("type", msg.Type))
	}
}
