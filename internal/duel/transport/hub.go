// Package transport exposes the duel engine over websockets.
package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"algoarena/internal/duel/model"
	"algoarena/pkg/utils/contextkey"
	"algoarena/pkg/utils/logger"

	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

// Config tunes connection handling.
type Config struct {
	SendBuffer      int           `yaml:"sendBuffer"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	PongTimeout     time.Duration `yaml:"pongTimeout"`
	PingInterval    time.Duration `yaml:"pingInterval"`
	MaxMessageBytes int64         `yaml:"maxMessageBytes"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"`
}

func (c *Config) applyDefaults() {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = 60 * time.Second
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongTimeout {
		c.PingInterval = c.PongTimeout * 9 / 10
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 256 << 10
	}
}

// ConnMetrics counts open connections.
type ConnMetrics interface {
	ConnOpened()
	ConnClosed()
}

type noopConnMetrics struct{}

func (noopConnMetrics) ConnOpened() {}
func (noopConnMetrics) ConnClosed() {}

// Hub tracks live connections and delivers server events to them. Delivery
// never blocks: a connection whose buffer is full is closed.
type Hub struct {
	cfg     Config
	metrics ConnMetrics
	conns   *xsync.MapOf[string, *Conn]
}

func NewHub(cfg Config, metrics ConnMetrics) *Hub {
	cfg.applyDefaults()
	if metrics == nil {
		metrics = noopConnMetrics{}
	}
	return &Hub{cfg: cfg, metrics: metrics, conns: xsync.NewMapOf[string, *Conn]()}
}

// Send delivers one event to connID. Unknown connections are ignored.
func (h *Hub) Send(connID string, event string, payload any) {
	conn, ok := h.conns.Load(connID)
	if !ok {
		return
	}
	msg, err := encode(event, payload)
	if err != nil {
		logger.Error(conn.ctx, "encode websocket event failed", zap.String("event", event), zap.Error(err))
		return
	}
	h.deliver(conn, msg)
}

// Broadcast delivers one event to every connection.
func (h *Hub) Broadcast(event string, payload any) {
	msg, err := encode(event, payload)
	if err != nil {
		logger.Error(context.Background(), "encode websocket broadcast failed", zap.String("event", event), zap.Error(err))
		return
	}
	h.conns.Range(func(_ string, conn *Conn) bool {
		h.deliver(conn, msg)
		return true
	})
}

// Count returns the number of registered connections.
func (h *Hub) Count() int {
	return h.conns.Size()
}

// CloseAll closes every connection.
func (h *Hub) CloseAll() {
	h.conns.Range(func(_ string, conn *Conn) bool {
		conn.close()
		return true
	})
}

func (h *Hub) deliver(conn *Conn, msg []byte) {
	if !conn.enqueue(msg) {
		logger.Warn(conn.ctx, "websocket send buffer full, closing connection")
		conn.close()
	}
}

func (h *Hub) register(conn *Conn) {
	h.conns.Store(conn.id, conn)
	h.metrics.ConnOpened()
}

func (h *Hub) unregister(conn *Conn) {
	if _, loaded := h.conns.LoadAndDelete(conn.id); loaded {
		h.metrics.ConnClosed()
	}
}

func encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(model.Envelope{Event: event, Data: data})
}

// Conn is one websocket client. Writes happen only on the write pump.
type Conn struct {
	id     string
	userID string
	ws     *websocket.Conn
	ctx    context.Context
	send   chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func newConn(ctx context.Context, id, userID string, ws *websocket.Conn, buffer int) *Conn {
	ctx = context.WithValue(ctx, contextkey.ConnID, id)
	ctx = context.WithValue(ctx, contextkey.UserID, userID)
	return &Conn{
		id:     id,
		userID: userID,
		ws:     ws,
		ctx:    ctx,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
}

func (c *Conn) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

func (c *Conn) writePump(cfg Config) {
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debug(c.ctx, "websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
