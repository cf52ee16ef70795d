package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Msg is a message sent to clients. Type discriminates the payload
// shape: trade, orderBook, marketActivity, portfolio, liveStats,
// contestUpdate; Data carries whatever fields that type needs.
type Msg struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerId,omitempty"`
	Data     any    `json:"data,omitempty"`
}

// Hub manages per-player WebSocket subscriptions, so a client watching
// one player's order book only receives that player's trade/book
// messages instead of every fill in the exchange. Messages with no
// natural player scope (contest updates, live-stats ticks, portfolio
// pushes) go out to every connection via BroadcastAll.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*conn]bool // playerID -> set of conns
	allConn map[*conn]bool
}

type conn struct {
	ws     *websocket.Conn
	send   chan []byte
	hub    *Hub
	player string
}

func NewHub() *Hub {
	return &Hub{
		rooms:   make(map[string]map[*conn]bool),
		allConn: make(map[*conn]bool),
	}
}

// Publish sends a message to every subscriber of a player's room. Its
// signature matches engine.PublishFunc so the matching engine can hand
// Hub.Publish straight to NewManager.
func (h *Hub) Publish(playerID, msgType string, data any) {
	msg := Msg{Type: msgType, PlayerID: playerID, Data: data}
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.RLock()
	room := h.rooms[playerID]
	h.mu.RUnlock()
	for c := range room {
		select {
		case c.send <- b:
		default:
			// slow client, drop
		}
	}
}

// BroadcastAll sends a message to every connected client regardless of
// room subscription: scheduler events like contestUpdate and liveStats
// have no single player to scope to.
func (h *Hub) BroadcastAll(msgType string, data any) {
	msg := Msg{Type: msgType, Data: data}
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.allConn {
		select {
		case c.send <- b:
		default:
		}
	}
}

// HandleWS is the HTTP handler for WebSocket connections.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}
	c := &conn{
		ws:   wsConn,
		send: make(chan []byte, 64),
		hub:  h,
	}
	h.mu.Lock()
	h.allConn[c] = true
	h.mu.Unlock()

	go c.writePump()
	go c.readPump()
}

func (c *conn) readPump() {
	defer func() {
		c.hub.removeConn(c)
		c.ws.Close()
	}()
	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			break
		}
		// Parse subscription message: {"action":"subscribe","playerId":"..."}
		var sub struct {
			Action   string `json:"action"`
			PlayerID string `json:"playerId"`
		}
		if err := json.Unmarshal(msg, &sub); err != nil {
			continue
		}
		switch sub.Action {
		case "subscribe":
			c.hub.subscribe(c, sub.PlayerID)
		case "unsubscribe":
			c.hub.unsubscribe(c, sub.PlayerID)
		}
	}
}

func (c *conn) writePump() {
	defer c.ws.Close()
	for msg := range c.send {
		if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			break
		}
	}
}

func (h *Hub) subscribe(c *conn, playerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.player != "" {
		if room, ok := h.rooms[c.player]; ok {
			delete(room, c)
			if len(room) == 0 {
				delete(h.rooms, c.player)
			}
		}
	}
	c.player = playerID
	room, ok := h.rooms[playerID]
	if !ok {
		room = make(map[*conn]bool)
		h.rooms[playerID] = room
	}
	room[c] = true
}

func (h *Hub) unsubscribe(c *conn, playerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room, ok := h.rooms[playerID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, playerID)
		}
	}
	if c.player == playerID {
		c.player = ""
	}
}

func (h *Hub) removeConn(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.allConn, c)
	if c.player != "" {
		if room, ok := h.rooms[c.player]; ok {
			delete(room, c)
			if len(room) == 0 {
				delete(h.rooms, c.player)
			}
		}
	}
	close(c.send)
}
