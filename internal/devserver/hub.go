package devserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/example/slotsync/internal/transport"
)

// Hub fans push events out to the websocket subscribers of each channel.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[string]map[*websocket.Conn]struct{}
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: map[string]map[*websocket.Conn]struct{}{},
	}
}

// Handle upgrades an HTTP request on /ws/{channel} to a websocket
// subscription. The connection stays registered until the peer closes it.
func (h *Hub) Handle(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")
	if channel != transport.ChannelSlots && channel != transport.ChannelSessions {
		http.Error(w, "unknown channel", http.StatusNotFound)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "channel", channel, "error", err)
		return
	}
	h.register(channel, conn)
	go h.readLoop(channel, conn)
}

func (h *Hub) register(channel string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[channel] == nil {
		h.conns[channel] = map[*websocket.Conn]struct{}{}
	}
	h.conns[channel][conn] = struct{}{}
}

func (h *Hub) unregister(channel string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns[channel], conn)
	conn.Close()
}

// readLoop drains inbound frames so close frames are processed. Subscribers
// never send application data.
func (h *Hub) readLoop(channel string, conn *websocket.Conn) {
	defer h.unregister(channel, conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast sends a push event carrying entity to every subscriber of the
// channel. Connections that fail to accept the write are dropped.
func (h *Hub) Broadcast(channel string, action transport.Action, entity any) {
	data, err := json.Marshal(entity)
	if err != nil {
		h.logger.Error("encode push event", "channel", channel, "error", err)
		return
	}
	event := transport.PushEvent{Action: action, Data: data}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns[channel] {
		if err := conn.WriteJSON(event); err != nil {
			h.logger.Warn("drop subscriber", "channel", channel, "error", err)
			delete(h.conns[channel], conn)
			conn.Close()
		}
	}
}
