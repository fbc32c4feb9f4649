package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"gunfight/internal/game"
)

const (
	// MaxWSConnectionsTotal caps WebSocket connections across all IPs.
	MaxWSConnectionsTotal = 500

	// MaxWSConnectionsPerIP caps WebSocket connections per source IP.
	MaxWSConnectionsPerIP = 10
)

// wsClient tracks one WebSocket connection with its source IP.
type wsClient struct {
	conn *websocket.Conn
	ip   string
}

// wsEnvelope is the wire format of the live event feed.
type wsEnvelope struct {
	Event     string          `json:"event"`
	Timestamp int64           `json:"timestamp"`
	Sequence  uint64          `json:"sequence"`
	Data      json.RawMessage `json:"data"`
}

// WebSocketHub fans combat events out to connected clients. It
// implements game.EventSink: publishing never blocks, a full broadcast
// channel drops the message for slow consumers rather than stalling the
// combat path.
type WebSocketHub struct {
	log        zerolog.Logger
	clients    map[*websocket.Conn]*wsClient
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *websocket.Conn
	mu         sync.RWMutex

	wsLimiter *WebSocketRateLimiter
	upgrader  websocket.Upgrader
}

// NewWebSocketHub creates a hub with per-IP connection limiting.
func NewWebSocketHub(origins *originChecker, log zerolog.Logger) *WebSocketHub {
	hubLog := log.With().Str("component", "ws-hub").Logger()
	return &WebSocketHub{
		log:        hubLog,
		clients:    make(map[*websocket.Conn]*wsClient),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *websocket.Conn),
		wsLimiter:  NewWebSocketRateLimiter(MaxWSConnectionsPerIP),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origins.Allowed(origin) {
					return true
				}
				hubLog.Warn().Str("origin", origin).Msg("websocket origin rejected")
				RecordConnectionRejected("origin")
				return false
			},
		},
	}
}

// Run drives the hub's register/unregister/broadcast loop.
func (h *WebSocketHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.conn] = client
			count := len(h.clients)
			h.mu.Unlock()

			h.log.Debug().Str("ip", client.ip).Int("total", count).Msg("client connected")
			UpdateWSConnections(count)

		case conn := <-h.unregister:
			h.mu.Lock()
			if client, ok := h.clients[conn]; ok {
				h.wsLimiter.Release(client.ip)
				delete(h.clients, conn)
				conn.Close()
			}
			count := len(h.clients)
			h.mu.Unlock()

			h.log.Debug().Int("total", count).Msg("client disconnected")
			UpdateWSConnections(count)

		case message := <-h.broadcast:
			var dead []*websocket.Conn
			h.mu.RLock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					dead = append(dead, conn)
				}
			}
			h.mu.RUnlock()

			for _, conn := range dead {
				h.mu.Lock()
				if client, ok := h.clients[conn]; ok {
					h.wsLimiter.Release(client.ip)
					delete(h.clients, conn)
					conn.Close()
				}
				h.mu.Unlock()
			}
			IncrementWSMessages()
		}
	}
}

// Publish implements game.EventSink: combat events stream to every
// connected client fire-and-forget.
func (h *WebSocketHub) Publish(ev game.Event) {
	msg, err := json.Marshal(wsEnvelope{
		Event:     ev.Name,
		Timestamp: ev.Timestamp,
		Sequence:  ev.Sequence,
		Data:      ev.Payload,
	})
	if err != nil {
		return
	}

	select {
	case h.broadcast <- msg:
	default:
		// channel full: drop under backpressure
	}
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades a connection, enforcing the total and per-IP
// caps before committing resources.
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := GetClientIP(r)

	if h.ClientCount() >= MaxWSConnectionsTotal {
		h.log.Warn().Int("total", MaxWSConnectionsTotal).Msg("websocket total limit reached")
		RecordConnectionRejected("ws_total_limit")
		http.Error(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}

	if !h.wsLimiter.Allow(ip) {
		h.log.Warn().Str("ip", ip).Msg("websocket per-IP limit reached")
		RecordConnectionRejected("ws_ip_limit")
		http.Error(w, "Too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		h.wsLimiter.Release(ip)
		return
	}

	h.register <- &wsClient{conn: conn, ip: ip}

	// The feed is one-way; the read loop only detects disconnects.
	go func() {
		defer func() {
			h.unregister <- conn
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
