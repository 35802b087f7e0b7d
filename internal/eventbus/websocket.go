package eventbus

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WebSocketHub is one concrete subscriber that fans Bus events out over
// websocket connections. Grounded on the teacher's internal/websocket
// hub contract (NewHub, Run, HandleWebSocket, broadcast channel — the
// pack carried only hub_test.go for this package, no implementation to
// adapt; the contract below is reconstructed from that test).
type WebSocketHub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]bool

	broadcast chan Event
}

// NewWebSocketHub constructs a hub subscribed to bus for every event
// type.
func NewWebSocketHub(bus *Bus, allowedOrigins []string) *WebSocketHub {
	h := &WebSocketHub{
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Event, 256),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if len(allowedOrigins) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				for _, o := range allowedOrigins {
					if o == "*" || o == origin {
						return true
					}
				}
				return false
			},
		},
	}

	ch, _ := bus.Subscribe(256)
	go func() {
		for evt := range ch {
			h.broadcast <- evt
		}
	}()

	return h
}

// Run blocks, fanning out every event on the broadcast channel to every
// connected client.
func (h *WebSocketHub) Run() {
	for evt := range h.broadcast {
		data, err := json.Marshal(evt)
		if err != nil {
			log.Warn().Err(err).Str("component", "websocket_hub").Msg("failed to marshal event")
			continue
		}

		h.mu.Lock()
		for conn := range h.clients {
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				conn.Close()
				delete(h.clients, conn)
			}
		}
		h.mu.Unlock()
	}
}

// HandleWebSocket upgrades an incoming HTTP request to a websocket
// connection and registers it as a client.
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("component", "websocket_hub").Msg("upgrade failed")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	emitted := Event{Type: EventConnectionAck}
	if data, err := json.Marshal(emitted); err == nil {
		_ = conn.WriteMessage(websocket.TextMessage, data)
	}

	go h.readLoop(conn)
}

func (h *WebSocketHub) readLoop(conn *websocket.Conn) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
