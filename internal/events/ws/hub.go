// Package ws streams feed events to browsers over WebSocket.
//
// One goroutine (Run) owns the client set. Connections register and
// unregister through channels; Publish hands encoded events to the same loop.
// Each client has a buffered send queue drained by its write pump; a client
// whose queue is full is dropped rather than allowed to stall the feed.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sakif/photosphere/internal/events"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
	broadcastQueue = 256
)

// Hub maintains active clients and broadcasts events to all of them.
type Hub struct {
	clients    map[*client]struct{}
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
	stopOnce   sync.Once
	upgrader   websocket.Upgrader
	logger     *slog.Logger
}

var _ events.Publisher = (*Hub)(nil)

// NewHub creates a hub. Call Run in its own goroutine before serving.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan []byte, broadcastQueue),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The REST API is open to any origin; the live feed matches it.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Run processes registrations and broadcasts until ctx is cancelled or Close
// is called. All client connections are closed on exit.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		// Unblocks pumps still trying to unregister.
		h.Close()
		for c := range h.clients {
			delete(h.clients, c)
			close(c.send)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.logger.Debug("live feed client connected", slog.Int("clients", len(h.clients)))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.logger.Debug("live feed client disconnected", slog.Int("clients", len(h.clients)))
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					delete(h.clients, c)
					close(c.send)
					h.logger.Warn("live feed client too slow, dropped")
				}
			}
		}
	}
}

// Close stops Run. Safe to call more than once.
func (h *Hub) Close() error {
	h.stopOnce.Do(func() { close(h.done) })
	return nil
}

// Publish implements events.Publisher. It never blocks: when the broadcast
// queue is full the event is dropped for live subscribers.
func (h *Hub) Publish(_ context.Context, e events.Event) {
	msg, err := json.Marshal(e)
	if err != nil {
		h.logger.Error("failed to encode live feed event", slog.String("error", err.Error()))
		return
	}

	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("live feed queue full, event dropped", slog.String("type", e.Type))
	}
}

// ServeHTTP upgrades the request and attaches the connection to the hub.
//
// HTTP: GET /api/feed/live
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		h.logger.Warn("live feed upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	case <-r.Context().Done():
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}
