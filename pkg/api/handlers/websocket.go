package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/goclaw/actiond/pkg/api/events"
	"github.com/goclaw/actiond/pkg/api/middleware"
	"github.com/goclaw/actiond/pkg/api/response"
	"github.com/goclaw/actiond/pkg/logger"
	"github.com/goclaw/actiond/pkg/toast"
)

const (
	defaultWSMaxConnections = 100
	defaultPingInterval     = 30 * time.Second
	defaultPongTimeout      = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultSendBuffer       = 32
	relayBuffer             = 256

	// EventSnapshot is the first message every client receives.
	EventSnapshot = "toast.snapshot"
	// EventError answers a client command that failed.
	EventError = "error"
)

var errConnectionLimit = errors.New("websocket connection limit reached")

// WebSocketConfig configures websocket handler behavior.
type WebSocketConfig struct {
	AllowedOrigins []string
	MaxConnections int
	PingInterval   time.Duration
	PongTimeout    time.Duration
}

// EventMessage is the websocket event format.
type EventMessage struct {
	Seq       uint64    `json:"seq,omitempty"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// SnapshotPayload carries the toasts visible when a client connects.
type SnapshotPayload struct {
	Toasts []toast.Toast `json:"toasts"`
}

// CommandError reports a failed click or dismiss.
type CommandError struct {
	Command string `json:"command"`
	Key     string `json:"key"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type incomingMessage struct {
	Type string `json:"type"`
	Key  string `json:"key"`
}

type wsClient struct {
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		conn: conn,
		send: make(chan []byte, defaultSendBuffer),
	}
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		close(c.send)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// ConnectionManager manages active websocket clients.
type ConnectionManager struct {
	mu             sync.RWMutex
	clients        map[*wsClient]struct{}
	maxConnections int
}

// NewConnectionManager creates a manager with max connection limit.
func NewConnectionManager(maxConnections int) *ConnectionManager {
	if maxConnections <= 0 {
		maxConnections = defaultWSMaxConnections
	}
	return &ConnectionManager{
		clients:        make(map[*wsClient]struct{}),
		maxConnections: maxConnections,
	}
}

// Register adds client after queueing first as its first message. Messages
// broadcast after Register returns are queued behind first.
func (m *ConnectionManager) Register(client *wsClient, first []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.clients) >= m.maxConnections {
		return errConnectionLimit
	}
	if first != nil {
		client.send <- first
	}
	m.clients[client] = struct{}{}
	return nil
}

// Unregister unregisters a websocket client.
func (m *ConnectionManager) Unregister(client *wsClient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[client]; !ok {
		return
	}
	delete(m.clients, client)
	client.close()
}

// Count returns active connection count.
func (m *ConnectionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// CanAccept reports whether there is capacity for one more connection.
func (m *ConnectionManager) CanAccept() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients) < m.maxConnections
}

// Broadcast sends event to every client. Clients that cannot keep up are
// disconnected; they resynchronise from the snapshot on reconnect.
func (m *ConnectionManager) Broadcast(event EventMessage) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	m.mu.RLock()
	clients := make([]*wsClient, 0, len(m.clients))
	for client := range m.clients {
		clients = append(clients, client)
	}
	m.mu.RUnlock()

	for _, client := range clients {
		slow := false
		m.mu.RLock()
		if _, live := m.clients[client]; live {
			select {
			case client.send <- payload:
			default:
				slow = true
			}
		}
		m.mu.RUnlock()
		if slow {
			m.Unregister(client)
		}
	}
	return nil
}

// Close closes all active websocket connections.
func (m *ConnectionManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for client := range m.clients {
		client.close()
		delete(m.clients, client)
	}
}

// WebSocketHandler streams toast events on /ws/toasts. Clients receive a
// snapshot of the visible toasts, then every change. They may send
// {"type":"click","key":...} or {"type":"dismiss","key":...}.
type WebSocketHandler struct {
	log          logger.Logger
	stack        ToastStack
	manager      *ConnectionManager
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	pongTimeout  time.Duration
	writeTimeout time.Duration
}

// NewWebSocketHandler creates a websocket handler driving stack.
func NewWebSocketHandler(log logger.Logger, stack ToastStack, cfg WebSocketConfig) *WebSocketHandler {
	if log == nil {
		log = logger.Global()
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = defaultWSMaxConnections
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaultPongTimeout
	}

	handler := &WebSocketHandler{
		log:          log.With("component", "ws.toasts"),
		stack:        stack,
		manager:      NewConnectionManager(cfg.MaxConnections),
		pingInterval: cfg.PingInterval,
		pongTimeout:  cfg.PongTimeout,
		writeTimeout: defaultWriteTimeout,
	}

	allowedOrigins := append([]string(nil), cfg.AllowedOrigins...)
	handler.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return isWebSocketOriginAllowed(r, allowedOrigins)
		},
	}

	return handler
}

// Relay forwards broadcaster events to connected clients until ctx is done.
func (h *WebSocketHandler) Relay(ctx context.Context, b *events.Broadcaster) {
	sub := b.Subscribe(relayBuffer)
	defer b.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if err := h.Broadcast(EventMessage(ev)); err != nil {
				h.log.Warn("failed to encode toast event", "type", ev.Type, "error", err)
			}
		}
	}
}

// ServeHTTP upgrades HTTP to websocket and starts client loops.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "websocket upgrade required", middleware.RequestIDOrUnknown(r))
		return
	}
	if !h.manager.CanAccept() {
		response.Error(w, http.StatusServiceUnavailable, response.ErrCodeServiceUnavailable, errConnectionLimit.Error(), middleware.RequestIDOrUnknown(r))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	snapshot, err := json.Marshal(EventMessage{
		Type:      EventSnapshot,
		Timestamp: time.Now().UTC(),
		Payload:   SnapshotPayload{Toasts: h.stack.List()},
	})
	if err != nil {
		_ = conn.Close()
		return
	}

	client := newWSClient(conn)
	if err := h.manager.Register(client, snapshot); err != nil {
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many websocket connections"),
			time.Now().Add(h.writeTimeout),
		)
		_ = conn.Close()
		return
	}

	go h.writePump(client)
	h.readPump(client)
}

func (h *WebSocketHandler) readPump(client *wsClient) {
	defer h.manager.Unregister(client)

	readDeadline := h.pingInterval + h.pongTimeout
	client.conn.SetReadLimit(1 << 16)
	_ = client.conn.SetReadDeadline(time.Now().Add(readDeadline))
	client.conn.SetPongHandler(func(_ string) error {
		return client.conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("websocket read error", "error", err)
			}
			return
		}
		h.handleIncomingMessage(client, data)
	}
}

func (h *WebSocketHandler) writePump(client *wsClient) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		h.manager.Unregister(client)
	}()

	for {
		select {
		case message, ok := <-client.send:
			if !ok {
				_ = client.conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(h.writeTimeout),
				)
				return
			}
			_ = client.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			if err := client.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(h.writeTimeout)); err != nil {
				return
			}
		}
	}
}

func (h *WebSocketHandler) handleIncomingMessage(client *wsClient, raw []byte) {
	var message incomingMessage
	if err := json.Unmarshal(raw, &message); err != nil {
		h.reply(client, CommandError{Code: response.ErrCodeBadRequest, Message: "invalid json"})
		return
	}

	command := strings.ToLower(strings.TrimSpace(message.Type))
	key := strings.TrimSpace(message.Key)

	var err error
	switch command {
	case "click":
		err = h.stack.Click(key)
	case "dismiss":
		if _, ok := h.stack.Get(key); !ok {
			err = toast.ErrNotFound
		} else {
			h.stack.Dismiss(key)
		}
	default:
		h.reply(client, CommandError{Command: command, Key: key, Code: response.ErrCodeBadRequest, Message: "unknown command"})
		return
	}
	if err != nil {
		h.reply(client, CommandError{Command: command, Key: key, Code: response.ErrorCodeFromError(err), Message: err.Error()})
	}
}

// reply queues a message for one client. It never blocks the read loop.
func (h *WebSocketHandler) reply(client *wsClient, cmdErr CommandError) {
	payload, err := json.Marshal(EventMessage{Type: EventError, Timestamp: time.Now().UTC(), Payload: cmdErr})
	if err != nil {
		return
	}
	h.manager.mu.RLock()
	defer h.manager.mu.RUnlock()
	if _, live := h.manager.clients[client]; !live {
		return
	}
	select {
	case client.send <- payload:
	default:
	}
}

// Broadcast sends an event to every websocket client.
func (h *WebSocketHandler) Broadcast(event EventMessage) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return h.manager.Broadcast(event)
}

// Count returns the number of connected clients.
func (h *WebSocketHandler) Count() int {
	return h.manager.Count()
}

// Close closes all websocket clients.
func (h *WebSocketHandler) Close() {
	h.manager.Close()
}

// isWebSocketOriginAllowed accepts same-host origins and the configured ones.
func isWebSocketOriginAllowed(r *http.Request, allowedOrigins []string) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if middleware.OriginAllowed(origin, allowedOrigins) {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(originURL.Host, r.Host)
}
