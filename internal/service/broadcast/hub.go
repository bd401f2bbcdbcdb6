package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"SOCPulse/internal/domain/models"
	applogger "SOCPulse/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrUnauthorized is returned by a TokenVerifier for rejected tokens.
var ErrUnauthorized = errors.New("unauthorized")

// TokenVerifier maps a connection token to a user id.
type TokenVerifier func(token string) (string, error)

// StaticTokens accepts only the listed tokens. An empty map accepts any
// non-empty token as user "analyst".
func StaticTokens(tokens map[string]string) TokenVerifier {
	return func(token string) (string, error) {
		if len(tokens) == 0 {
			return "analyst", nil
		}
		if user, ok := tokens[token]; ok {
			return user, nil
		}
		return "", ErrUnauthorized
	}
}

// HubConfig tunes per-connection behaviour.
type HubConfig struct {
	SendBuffer   int           `yaml:"send_buffer" default:"64"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	PingInterval time.Duration `yaml:"ping_interval" default:"30s"`
	ReadLimit    int64         `yaml:"read_limit" default:"65536"`
}

type client struct {
	id     string
	user   string
	conn   *websocket.Conn
	send   chan []byte
	mu     sync.RWMutex
	filter map[models.EventType]bool
}

func (c *client) wants(t models.EventType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.filter) == 0 || c.filter[t]
}

func (c *client) subscribe(types []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filter = make(map[models.EventType]bool)
	for _, t := range types {
		if t == "all" {
			c.filter = nil
			return
		}
		c.filter[models.EventType(t)] = true
	}
}

// Hub fans envelopes out to websocket subscribers. Slow clients whose
// buffer is full are disconnected rather than blocking Publish.
type Hub struct {
	cfg      HubConfig
	verify   TokenVerifier
	upgrader websocket.Upgrader
	logger   *applogger.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

func NewHub(cfg HubConfig, verify TokenVerifier, logger *applogger.Logger) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = 64 << 10
	}
	if verify == nil {
		verify = StaticTokens(nil)
	}
	if logger == nil {
		logger = applogger.NewNop()
	}
	return &Hub{
		cfg:     cfg,
		verify:  verify,
		logger:  logger,
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish implements repository.Broadcaster.
func (h *Hub) Publish(_ context.Context, env models.Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	h.mu.RLock()
	var slow []*client
	for c := range h.clients {
		if !c.wants(env.Type) {
			continue
		}
		select {
		case c.send <- b:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("ws client too slow, dropping", applogger.String("client", c.id))
		h.remove(c)
	}
	return nil
}

// ServeHTTP upgrades the request. Connections without a valid token are
// closed with policy-violation (1008).
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", applogger.Error(err))
		return
	}

	token := r.URL.Query().Get("token")
	user := ""
	if token == "" {
		err = ErrUnauthorized
	} else {
		user, err = h.verify(token)
	}
	if err != nil {
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Authentication required")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	c := &client{
		id:   uuid.NewString(),
		user: user,
		conn: conn,
		send: make(chan []byte, h.cfg.SendBuffer),
	}
	if !h.add(c) {
		_ = conn.Close()
		return
	}
	h.logger.Info("ws client connected", applogger.String("client", c.id), applogger.String("user", user))

	h.reply(c, control("connection_established", map[string]interface{}{
		"message": "Connected to AI alerts stream",
		"user_id": user,
	}))

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

type inbound struct {
	Type       string   `json:"type"`
	AlertTypes []string `json:"alert_types"`
}

func (h *Hub) readLoop(c *client) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
		h.logger.Info("ws client disconnected", applogger.String("client", c.id))
	}()

	c.conn.SetReadLimit(h.cfg.ReadLimit)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			h.reply(c, control("error", map[string]interface{}{"message": "Invalid message format"}))
			continue
		}
		switch msg.Type {
		case "subscribe":
			types := msg.AlertTypes
			if len(types) == 0 {
				types = []string{"all"}
			}
			c.subscribe(types)
			h.reply(c, control("subscription_confirmed", map[string]interface{}{"alert_types": types}))
		case "ping":
			h.reply(c, control("pong", nil))
		}
	}
}

func (h *Hub) reply(c *client, b []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- b:
	default:
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case b, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	return nil
}

func control(t string, fields map[string]interface{}) []byte {
	m := map[string]interface{}{"type": t, "timestamp": time.Now().UTC()}
	for k, v := range fields {
		m[k] = v
	}
	b, _ := json.Marshal(m)
	return b
}
