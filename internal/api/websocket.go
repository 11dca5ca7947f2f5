package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/FocuswithJustin/TeiSync/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

// Message types exchanged on /ws/sessions/{id}.
const (
	MsgCaret  = "caret"  // client: caret moved on one side
	MsgMarker = "marker" // client: footnote lookup on one side
	MsgSync   = "sync"   // server: resolution of a caret, sent to the whole session
	MsgNote   = "note"   // server: marker lookup result, sent to the asker
	MsgError  = "error"  // server: rejected client message
)

// ClientMessage is a message from a websocket client.
type ClientMessage struct {
	Type   string `json:"type"`
	Side   string `json:"side"`
	Offset int    `json:"offset"`
	Seq    int64  `json:"seq,omitempty"`
}

// ServerMessage is a message to websocket clients.
type ServerMessage struct {
	Type    string         `json:"type"`
	Seq     int64          `json:"seq,omitempty"`
	Sync    *ResolveResult `json:"sync,omitempty"`
	Note    *MarkerResult  `json:"note,omitempty"`
	Message string         `json:"message,omitempty"`
}

// Client is one websocket connection attached to a session room.
type Client struct {
	hub     *Hub
	room    string
	store   *SessionStore
	conn    *websocket.Conn
	send    chan []byte
	limiter *tokenBucket
}

type roomMessage struct {
	room string
	data []byte
}

type directMessage struct {
	client *Client
	data   []byte
}

// Hub tracks websocket clients per session. Only the Run goroutine writes to
// or closes a client's send channel.
type Hub struct {
	mu         sync.RWMutex
	rooms      map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan roomMessage
	direct     chan directMessage
	closeRoom  chan string
	done       chan struct{}
	stopOnce   sync.Once
}

// NewHub creates a hub. Call Run to start it.
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan roomMessage, 256),
		direct:     make(chan directMessage, 256),
		closeRoom:  make(chan string),
		done:       make(chan struct{}),
	}
}

// Run processes hub events until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for room, clients := range h.rooms {
				for c := range clients {
					close(c.send)
				}
				delete(h.rooms, room)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			if h.rooms[c.room] == nil {
				h.rooms[c.room] = make(map[*Client]bool)
			}
			h.rooms[c.room][c] = true
			n := len(h.rooms[c.room])
			h.mu.Unlock()
			logging.WebSocketEvent("client_connected", n, "session_id", c.room)

		case c := <-h.unregister:
			h.mu.Lock()
			n := h.remove(c)
			h.mu.Unlock()
			logging.WebSocketEvent("client_disconnected", n, "session_id", c.room)

		case m := <-h.broadcast:
			h.mu.Lock()
			for c := range h.rooms[m.room] {
				select {
				case c.send <- m.data:
				default:
					// Send buffer full.
					h.remove(c)
				}
			}
			h.mu.Unlock()

		case m := <-h.direct:
			h.mu.Lock()
			if h.rooms[m.client.room][m.client] {
				select {
				case m.client.send <- m.data:
				default:
					h.remove(m.client)
				}
			}
			h.mu.Unlock()

		case room := <-h.closeRoom:
			h.mu.Lock()
			for c := range h.rooms[room] {
				h.remove(c)
			}
			h.mu.Unlock()
		}
	}
}

// remove detaches c and returns the remaining room size. h.mu must be held.
func (h *Hub) remove(c *Client) int {
	clients := h.rooms[c.room]
	if clients[c] {
		delete(clients, c)
		close(c.send)
	}
	if len(clients) == 0 {
		delete(h.rooms, c.room)
	}
	return len(clients)
}

// Stop ends Run and closes every client.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Count returns the number of clients attached to room.
func (h *Hub) Count(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Broadcast queues data for every client in room.
func (h *Hub) Broadcast(room string, data []byte) {
	select {
	case h.broadcast <- roomMessage{room: room, data: data}:
	case <-h.done:
	default:
		logging.Warn("broadcast channel full, dropping message", "session_id", room)
	}
}

// CloseRoom disconnects every client of room.
func (h *Hub) CloseRoom(room string) {
	select {
	case h.closeRoom <- room:
	case <-h.done:
	}
}

func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) drop(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) reply(c *Client, data []byte) {
	select {
	case h.direct <- directMessage{client: c, data: data}:
	case <-h.done:
	default:
	}
}

// isOriginAllowed matches origin against exact entries, "*" and
// "*.domain" patterns.
func isOriginAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		switch {
		case a == "*", a == origin:
			return true
		case strings.HasPrefix(a, "*."):
			if strings.HasSuffix(origin, a[1:]) {
				return true
			}
		}
	}
	return false
}

// checkOrigin allows requests without an Origin header (non-browser
// clients) and, when allowed is non-empty, only listed browser origins.
func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		if isOriginAllowed(origin, allowed) {
			return true
		}
		logging.SecurityEvent("websocket_origin_rejected", "api", "origin", origin)
		return false
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(s.cfg.WebSocket.MaxMessageSize)

	rate := float64(s.cfg.WebSocket.MaxMessageRate)
	c := &Client{
		hub:     s.hub,
		room:    sess.ID,
		store:   s.sessions,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		limiter: newTokenBucket(rate*2, rate),
	}
	if !s.hub.add(c) {
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.drop(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Warn("websocket unexpected close", "session_id", c.room, "error", err)
			}
			return
		}
		if !c.limiter.allow() {
			logging.SecurityEvent("websocket_rate_limited", "api", "session_id", c.room)
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "rate limit exceeded"),
				time.Now().Add(writeWait))
			return
		}
		c.handle(data)
	}
}

// handle answers one client message.
func (c *Client) handle(data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.replyError(0, "invalid message: "+err.Error())
		return
	}
	side, err := ParseSide(msg.Side)
	if err != nil {
		c.replyError(msg.Seq, err.Error())
		return
	}
	if msg.Offset < 0 {
		c.replyError(msg.Seq, "offset must be >= 0")
		return
	}

	// Get also keeps the session from expiring while clients are active.
	sess, err := c.store.Get(c.room)
	if err != nil {
		c.replyError(msg.Seq, err.Error())
		return
	}

	switch msg.Type {
	case MsgCaret:
		res := resolve(sess, side, msg.Offset)
		c.hub.Broadcast(c.room, encode(ServerMessage{Type: MsgSync, Seq: msg.Seq, Sync: &res}))
	case MsgMarker:
		doc := sess.pair.Source
		if side == SideDest {
			doc = sess.pair.Dest
		}
		res := markerAt(doc, side, msg.Offset)
		c.hub.reply(c, encode(ServerMessage{Type: MsgNote, Seq: msg.Seq, Note: &res}))
	default:
		c.replyError(msg.Seq, "unknown message type "+msg.Type)
	}
}

func (c *Client) replyError(seq int64, message string) {
	c.hub.reply(c, encode(ServerMessage{Type: MsgError, Seq: seq, Message: message}))
}

func encode(m ServerMessage) []byte {
	data, err := json.Marshal(m)
	if err != nil {
		logging.Error("failed to marshal websocket message", "error", err)
		return []byte(`{"type":"error","message":"internal error"}`)
	}
	return data
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
