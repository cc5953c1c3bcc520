package websocket

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"pawedaran/internal/domain"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// CORS is enforced by the HTTP layer in front of the hub
		return true
	},
}

// Hub fans out messages to the websocket connections of a user, or of every
// connected SUPERADMIN.
type Hub struct {
	connections map[int64]map[*Connection]bool
	admins      map[*Connection]bool

	register   chan *Connection
	unregister chan *Connection

	broadcast chan delivery

	// done is closed when Run returns; pumps and late upgrades stop waiting on the hub
	done chan struct{}

	mu sync.RWMutex
}

type Connection struct {
	ws     *websocket.Conn
	userID int64
	admin  bool
	send   chan *Message
	hub    *Hub
}

type Message struct {
	UserID  int64       `json:"user_id,omitempty"`
	Type    string      `json:"type"`
	Channel string      `json:"channel,omitempty"`
	Data    interface{} `json:"data"`
}

type delivery struct {
	userID int64
	admins bool
	msg    *Message
}

func NewHub() *Hub {
	return &Hub{
		connections: make(map[int64]map[*Connection]bool),
		admins:      make(map[*Connection]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan delivery, 256),
		done:        make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			// close sockets outside the lock; the pumps then unregister themselves
			h.mu.RLock()
			var conns []*Connection
			for _, m := range h.connections {
				for c := range m {
					conns = append(conns, c)
				}
			}
			h.mu.RUnlock()

			for _, c := range conns {
				_ = c.ws.Close()
			}
			return

		case conn := <-h.register:
			h.mu.Lock()
			if h.connections[conn.userID] == nil {
				h.connections[conn.userID] = make(map[*Connection]bool)
			}
			h.connections[conn.userID][conn] = true
			if conn.admin {
				h.admins[conn] = true
			}
			h.mu.Unlock()

		case conn := <-h.unregister:
			h.mu.Lock()
			h.remove(conn)
			h.mu.Unlock()

		case d := <-h.broadcast:
			h.mu.Lock()
			for _, conn := range h.targets(d) {
				select {
				case conn.send <- d.msg:
				default:
					h.remove(conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

// targets must be called with mu held.
func (h *Hub) targets(d delivery) []*Connection {
	var out []*Connection
	if d.admins {
		for c := range h.admins {
			out = append(out, c)
		}
		return out
	}
	for c := range h.connections[d.userID] {
		out = append(out, c)
	}
	return out
}

// remove must be called with mu held.
func (h *Hub) remove(conn *Connection) {
	connections, ok := h.connections[conn.userID]
	if !ok {
		return
	}
	if _, exists := connections[conn]; !exists {
		return
	}
	delete(connections, conn)
	delete(h.admins, conn)
	close(conn.send)
	if len(connections) == 0 {
		delete(h.connections, conn.userID)
	}
}

// Broadcast queues message for every connection of userID. Messages are dropped
// when the queue is full.
func (h *Hub) Broadcast(userID int64, message *Message) {
	message.UserID = userID
	h.enqueue(delivery{userID: userID, msg: message})
}

// BroadcastAdmins queues message for every connected SUPERADMIN.
func (h *Hub) BroadcastAdmins(message *Message) {
	h.enqueue(delivery{admins: true, msg: message})
}

func (h *Hub) enqueue(d delivery) {
	select {
	case h.broadcast <- d:
	default:
		log.Printf("[WS] broadcast queue is full, dropping %q message (user=%d admins=%t)", d.msg.Type, d.userID, d.admins)
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request, requester domain.Requester) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] upgrade error: %v", err)
		return
	}

	conn := &Connection{
		ws:     ws,
		userID: requester.ID,
		admin:  requester.IsSuperAdmin(),
		send:   make(chan *Message, 256),
		hub:    h,
	}

	select {
	case h.register <- conn:
	case <-h.done:
		ws.Close()
		return
	}

	go conn.writePump()
	go conn.readPump()
}

const (
	writeWait = 10 * time.Second

	pongWait = 60 * time.Second

	pingPeriod = (pongWait * 9) / 10
)

func (c *Connection) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.ws.Close()
	}()

	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WS] read error: %v", err)
			}
			return
		}
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.ws.WriteJSON(message); err != nil {
				log.Printf("[WS] write error: %v", err)
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.hub.done:
			return
		}
	}
}
