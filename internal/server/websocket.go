package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aleksandr-dontsov/portfolio-manager/internal/common"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ViewHub fans one portfolio view's recomputed payloads out to its
// WebSocket clients. A slow client is dropped rather than allowed to
// stall the broadcast.
type ViewHub struct {
	clients    map[*viewClient]bool
	broadcast  chan []byte
	register   chan *viewClient
	unregister chan *viewClient
	done       chan struct{}
	closeOnce  sync.Once
	mu         sync.RWMutex
	logger     *common.Logger
}

// viewClient is one connected WebSocket client.
type viewClient struct {
	hub  *ViewHub
	conn *websocket.Conn
	send chan []byte
}

// NewViewHub creates a hub. Run must be started as a goroutine.
func NewViewHub(logger *common.Logger) *ViewHub {
	return &ViewHub{
		clients:    make(map[*viewClient]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *viewClient),
		unregister: make(chan *viewClient),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run is the hub's main event loop.
func (h *ViewHub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug().Int("clients", h.ClientCount()).Msg("View stream client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug().Int("clients", h.ClientCount()).Msg("View stream client disconnected")

		case data := <-h.broadcast:
			h.mu.RLock()
			var slow []*viewClient
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					slow = append(slow, client)
				}
			}
			h.mu.RUnlock()

			if len(slow) > 0 {
				h.mu.Lock()
				for _, c := range slow {
					delete(h.clients, c)
					close(c.send)
				}
				h.mu.Unlock()
				h.logger.Warn().Int("dropped", len(slow)).Msg("Dropped slow view stream clients")
			}
		}
	}
}

// Stop signals the hub's event loop to exit and disconnect clients.
func (h *ViewHub) Stop() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Broadcast queues a payload for every connected client. Dropped when
// the broadcast buffer is full; the next recompute supersedes it anyway.
func (h *ViewHub) Broadcast(data []byte) {
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn().Msg("View broadcast channel full, dropping payload")
	}
}

// ServeWS upgrades the connection and registers the client. initial is
// sent immediately so a new client does not wait for the next quote.
func (h *ViewHub) ServeWS(w http.ResponseWriter, r *http.Request, initial []byte) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &viewClient{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
	}
	if initial != nil {
		client.send <- initial
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

// ClientCount returns the number of connected clients.
func (h *ViewHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// writePump sends queued payloads to the WebSocket connection.
func (c *viewClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads from the connection, mainly to detect close.
func (c *viewClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
