package http

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"quiz-round-service/internal/domain"
)

const (
	writeTimeout   = 10 * time.Second
	pingInterval   = 15 * time.Second
	sendBufferSize = 16
)

// Hub fans broadcast events out to the websocket clients of this replica.
// It is fed by the cross-process broadcaster subscription, so every replica
// relays every lifecycle event regardless of which process produced it.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
	}
}

type wsEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Relay forwards a broadcast event to every connected client. Plugs directly
// into the broadcaster's subscribe callback.
func (h *Hub) Relay(event string, data json.RawMessage) {
	message, err := json.Marshal(wsEnvelope{Event: event, Data: data})
	if err != nil {
		log.Warn().Err(err).Msg("marshal ws envelope")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- message:
		default:
			// Slow client: drop the connection rather than block the relay.
			close(client.send)
			delete(h.clients, client)
		}
	}
}

// ServeWS upgrades the request and streams lifecycle events to the client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, sendBufferSize)}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.relayPresence(count)

	go client.writePump()
	client.readPump()

	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		close(client.send)
		delete(h.clients, client)
	}
	count = len(h.clients)
	h.mu.Unlock()
	h.relayPresence(count)
}

func (h *Hub) relayPresence(count int) {
	data, _ := json.Marshal(map[string]int{"count": count})
	h.Relay(domain.EventPresence, data)
}

// ClientCount reports the number of connected clients on this replica.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(writeTimeout))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames; the socket is broadcast-only. It returns
// when the client disconnects.
func (c *wsClient) readPump() {
	c.conn.SetReadLimit(1024)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
