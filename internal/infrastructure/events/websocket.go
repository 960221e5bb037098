package events

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Hub bridges the alert bus onto WebSocket connections so monitoring
// dashboards receive critical fraud alerts in real time.
type Hub struct {
	bus    *Bus
	topic  string
	logger *zap.Logger

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[uuid.UUID]*client
	done    chan struct{}
	once    sync.Once
}

type client struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan Message
}

func NewHub(bus *Bus, topic string, logger *zap.Logger) *Hub {
	return &Hub{
		bus:    bus,
		topic:  topic,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		clients: make(map[uuid.UUID]*client),
		done:    make(chan struct{}),
	}
}

// Run consumes the alert topic and fans messages out to connected clients.
// Blocks until Stop is called or the bus closes.
func (h *Hub) Run() {
	ch, cancel := h.bus.Subscribe(h.topic)
	defer cancel()

	for {
		select {
		case <-h.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(msg)
		}
	}
}

// Stop disconnects all clients and stops the hub
func (h *Hub) Stop() {
	h.once.Do(func() {
		close(h.done)
		h.mu.Lock()
		for id, c := range h.clients {
			close(c.send)
			delete(h.clients, id)
		}
		h.mu.Unlock()
	})
}

func (h *Hub) broadcast(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("websocket client is not draining, dropping alert",
				zap.String("client_id", c.id.String()))
		}
	}
}

// ServeHTTP upgrades the connection and registers it with the hub
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		id:   uuid.New(),
		conn: conn,
		send: make(chan Message, subscriberBuffer),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	h.logger.Info("alert feed client connected", zap.String("client_id", c.id.String()))

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	h.mu.Unlock()
	c.conn.Close()
}

// readPump discards inbound frames; the feed is one-way. Its real job is
// keeping the pong deadline fresh and noticing disconnects.
func (h *Hub) readPump(c *client) {
	defer h.unregister(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
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
