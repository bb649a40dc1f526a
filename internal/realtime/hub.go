package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nayasahai/recovery/internal/auth"
	"github.com/nayasahai/recovery/internal/cases"
	"github.com/nayasahai/recovery/internal/config"
	"github.com/nayasahai/recovery/internal/metrics"
)

const (
	channelPrefix = "realtime:user:"

	sendBufferSize = 64
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// MessageType names the kind of event pushed to clients
type MessageType string

const (
	MessageTypeCaseUpdated MessageType = "case.updated"
	MessageTypeCaseDeleted MessageType = "case.deleted"
	MessageTypeHeartbeat   MessageType = "heartbeat"
)

// Message is the frame written to websocket clients
type Message struct {
	Type      MessageType `json:"type"`
	Topic     string      `json:"topic"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
	UserID    string      `json:"user_id,omitempty"`
}

// envelope carries a message between hub instances over Redis
type envelope struct {
	Origin string          `json:"origin"`
	UserID string          `json:"user_id"`
	Data   json.RawMessage `json:"data"`
}

type delivery struct {
	userID string
	data   []byte
}

// Hub tracks websocket clients and pushes case events to the clients of
// the owning user. Only Run mutates the client set.
type Hub struct {
	id         string
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	deliver    chan delivery
	redis      *redis.Client
	upgrader   websocket.Upgrader
	logger     *zap.Logger
	metrics    *metrics.Collector
	mutex      sync.RWMutex
	done       chan struct{}
}

// Client is one websocket connection
type Client struct {
	ID     string
	UserID string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
}

// NewHub creates a hub. A nil redis client keeps delivery local to this
// instance.
func NewHub(cfg config.WebSocketConfig, client *redis.Client, logger *zap.Logger, collector *metrics.Collector) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = 1024
	}
	if cfg.WriteBufferSize <= 0 {
		cfg.WriteBufferSize = 1024
	}

	h := &Hub{
		id:         uuid.New().String(),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan delivery, 256),
		redis:      client,
		logger:     logger,
		metrics:    collector,
		done:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
	}
	if !cfg.CheckOrigin {
		h.upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}
	return h
}

// Run owns the client set until ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				h.drop(client)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			if h.metrics != nil {
				h.metrics.ConnectionOpened()
			}
			h.logger.Debug("Client connected",
				zap.String("client_id", client.ID),
				zap.String("user_id", client.UserID))

		case client := <-h.unregister:
			h.mutex.Lock()
			if h.clients[client] {
				h.drop(client)
			}
			h.mutex.Unlock()
			h.logger.Debug("Client disconnected", zap.String("client_id", client.ID))

		case d := <-h.deliver:
			h.mutex.Lock()
			for client := range h.clients {
				if client.UserID != d.userID {
					continue
				}
				select {
				case client.send <- d.data:
				default:
					h.logger.Warn("Dropping slow client", zap.String("client_id", client.ID))
					h.drop(client)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// drop removes client. Callers hold the write lock.
func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
	if h.metrics != nil {
		h.metrics.ConnectionClosed()
	}
}

// CaseUpdated pushes the stored case to the owner's clients
func (h *Hub) CaseUpdated(ownerID string, rec *cases.CaseRecord) {
	h.publish(ownerID, &Message{
		Type:    MessageTypeCaseUpdated,
		Topic:   "cases",
		Payload: rec,
		UserID:  ownerID,
	})
}

// CaseDeleted tells the owner's clients a case is gone
func (h *Hub) CaseDeleted(ownerID, caseID string) {
	h.publish(ownerID, &Message{
		Type:    MessageTypeCaseDeleted,
		Topic:   "cases",
		Payload: gin.H{"id": caseID},
		UserID:  ownerID,
	})
}

func (h *Hub) publish(userID string, message *Message) {
	if err := h.BroadcastToUser(userID, message); err != nil {
		h.logger.Warn("Failed to broadcast message",
			zap.String("user_id", userID),
			zap.String("type", string(message.Type)),
			zap.Error(err))
	}
}

// BroadcastToUser sends message to every client of userID on this instance
// and, when Redis is configured, on every other instance
func (h *Hub) BroadcastToUser(userID string, message *Message) error {
	message.Timestamp = time.Now().UTC()
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	h.enqueue(userID, data)
	return h.publishToRedis(userID, data)
}

func (h *Hub) enqueue(userID string, data []byte) {
	select {
	case h.deliver <- delivery{userID: userID, data: data}:
	case <-h.done:
	default:
		h.logger.Warn("Delivery queue full, dropping message", zap.String("user_id", userID))
	}
}

func (h *Hub) publishToRedis(userID string, data []byte) error {
	if h.redis == nil {
		return nil
	}
	payload, err := json.Marshal(envelope{Origin: h.id, UserID: userID, Data: data})
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	return h.redis.Publish(ctx, channelPrefix+userID, payload).Err()
}

// SubscribeToRedis relays messages published by other instances to local
// clients until ctx is cancelled
func (h *Hub) SubscribeToRedis(ctx context.Context) {
	if h.redis == nil {
		return
	}

	pubsub := h.redis.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-pubsub.Channel():
			if !ok {
				return
			}
			h.relay(msg.Channel, msg.Payload)
		}
	}
}

func (h *Hub) relay(channel, payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		h.logger.Warn("Discarding malformed relay message", zap.String("channel", channel), zap.Error(err))
		return
	}
	if env.Origin == h.id {
		return
	}
	if env.UserID != strings.TrimPrefix(channel, channelPrefix) {
		h.logger.Warn("Relay message user mismatch", zap.String("channel", channel))
		return
	}
	h.enqueue(env.UserID, env.Data)
}

// HandleWebSocket upgrades an authenticated request to a websocket
func (h *Hub) HandleWebSocket(c *gin.Context) {
	sess := auth.SessionFromContext(c)
	if sess.OwnerID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:     uuid.New().String(),
		UserID: sess.OwnerID,
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// ConnectedClients returns the number of open connections
func (h *Hub) ConnectedClients() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// ClientsForUser returns the number of open connections owned by userID
func (h *Hub) ClientsForUser(userID string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	n := 0
	for client := range h.clients {
		if client.UserID == userID {
			n++
		}
	}
	return n
}

// readPump discards client frames and keeps the read deadline fresh
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("WebSocket read error", zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}
	}
}

// writePump writes queued messages and pings to the connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
