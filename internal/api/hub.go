package api

import (
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"solana-presale/internal/domain"
	"solana-presale/internal/observability"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
	clientBuffer = 64
)

// Hub fans committed ledger events out to WebSocket subscribers.
// It implements presale.Publisher. A subscriber that falls behind by more
// than its buffer loses events rather than stalling commits.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *log.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	conn   *websocket.Conn
	saleID string
	all    bool // stream every sale
	send   chan EventResponse
	done   chan struct{}
}

// NewHub creates a new Hub.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

// Publish queues e for every subscriber watching its sale.
func (h *Hub) Publish(e *domain.LedgerEvent) {
	msg := newEventResponse(e)

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !c.all && c.saleID != e.SaleID {
			continue
		}
		select {
		case c.send <- msg:
		default:
			observability.RecordStreamDrop()
		}
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and streams events until the peer disconnects.
// The optional "sale" query parameter restricts the stream to one sale; the
// value "_" selects the singleton sale.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	c := &client{
		conn: conn,
		all:  !r.URL.Query().Has("sale"),
		send: make(chan EventResponse, clientBuffer),
		done: make(chan struct{}),
	}
	if !c.all {
		c.saleID = r.URL.Query().Get("sale")
		if c.saleID == SingletonSaleID {
			c.saleID = ""
		}
	}

	h.register(c)
	defer h.unregister(c)

	go h.readLoop(c)
	h.writeLoop(c)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	observability.UpdateStreamSubscribers(n)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	c.conn.Close()
	observability.UpdateStreamSubscribers(n)
}

// readLoop consumes control frames and signals done when the peer goes away.
func (h *Hub) readLoop(c *client) {
	defer close(c.done)

	c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeLoop sends queued events and periodic pings.
func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				h.logger.Printf("WebSocket write failed: %v", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
