package api

import (
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/maxot/showrunner/internal/domain"
	"github.com/maxot/showrunner/internal/notify"
)

// getClientIP extracts the real client IP, checking proxy headers first
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // players join from their own devices
	},
}

// WebSocketClient represents one connected show client
type WebSocketClient struct {
	hub        *WebSocketHub
	conn       *websocket.Conn
	send       chan []byte
	remoteAddr string

	id string

	mu       sync.Mutex
	role     string
	nickname string
}

// ID returns the connection identifier used by the session
func (c *WebSocketClient) ID() string {
	return c.id
}

// Identity returns the role and nickname claimed by this client
func (c *WebSocketClient) Identity() (role, nickname string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role, c.nickname
}

func (c *WebSocketClient) setIdentity(role, nickname string) {
	c.mu.Lock()
	c.role = role
	c.nickname = nickname
	c.mu.Unlock()
}

// WebSocketHub manages show client connections and routes outgoing
// messages to them by audience
type WebSocketHub struct {
	clients    map[*WebSocketClient]bool
	register   chan *WebSocketClient
	unregister chan *WebSocketClient
	mu         sync.RWMutex

	onClose func(connID, cause string)
}

// NewWebSocketHub creates a new hub. onClose is called with the connection
// ID whenever a client drops; nil is allowed.
func NewWebSocketHub(onClose func(connID, cause string)) *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[*WebSocketClient]bool),
		register:   make(chan *WebSocketClient),
		unregister: make(chan *WebSocketClient),
		onClose:    onClose,
	}
}

// Run starts the hub's main loop
func (h *WebSocketHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("client connected from %s (%d total)", client.remoteAddr, total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("client disconnected from %s (%d total)", client.remoteAddr, total)
			if h.onClose != nil {
				h.onClose(client.id, "connection closed")
			}
		}
	}
}

// Deliver routes a raw message to the clients matching a NATS subject
func (h *WebSocketHub) Deliver(subject string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		role, nickname := client.Identity()
		if !audienceMatch(subject, role, nickname) {
			continue
		}
		select {
		case client.send <- data:
		default:
			// slow client, drop the message rather than block the fan-out
			log.Printf("client %s send buffer full, dropping message", client.remoteAddr)
		}
	}
}

func audienceMatch(subject, role, nickname string) bool {
	switch {
	case subject == notify.SubjectAll:
		return role != ""
	case subject == notify.SubjectPlayers:
		return role == domain.RolePlayer
	case subject == notify.SubjectInformer:
		return role == domain.RoleInformer
	case subject == notify.SubjectAdmin:
		return role == domain.RoleAdmin
	case strings.HasPrefix(subject, "show.player."):
		return role == domain.RolePlayer && nickname == strings.TrimPrefix(subject, "show.player.")
	default:
		return false
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleWebSocket upgrades HTTP to WebSocket and manages the connection
func (r *Router) handleWebSocket(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}

	client := &WebSocketClient{
		hub:        r.wsHub,
		conn:       conn,
		send:       make(chan []byte, 256),
		remoteAddr: getClientIP(req),
		id:         uuid.NewString(),
	}

	r.wsHub.register <- client

	go client.writePump()
	go r.readPump(client)
}

// readPump reads client messages and hands them to the dispatcher
func (r *Router) readPump(c *WebSocketClient) {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNoStatusReceived) {
				log.Printf("websocket error: %v", err)
			}
			break
		}
		r.dispatch(c, data)
	}
}

// writePump sends messages to the WebSocket
func (c *WebSocketClient) writePump() {
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

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Drain queued messages into this write
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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
