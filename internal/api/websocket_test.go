package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dial(t *testing.T, ts *httptest.Server, id string, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/sessions/" + id
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("Dial() error = %v (status %d)", err, status)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) ServerMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg ServerMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return msg
}

// waitForClients polls until the hub has registered n clients in room.
func waitForClients(t *testing.T, srv *Server, room string, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for srv.hub.Count(room) != n {
		if time.Now().After(deadline) {
			t.Fatalf("room %s has %d clients, want %d", room, srv.hub.Count(room), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebSocketCaretBroadcast(t *testing.T) {
	srv, ts := newTestServer(t, nil)
	sess := createSession(t, ts, "src.xml", "dst.xml")

	a := dial(t, ts, sess.ID, nil)
	b := dial(t, ts, sess.ID, nil)
	waitForClients(t, srv, sess.ID, 2)

	if err := a.WriteJSON(ClientMessage{Type: MsgCaret, Side: "source", Offset: 16, Seq: 7}); err != nil {
		t.Fatal(err)
	}
	for name, conn := range map[string]*websocket.Conn{"sender": a, "peer": b} {
		msg := readMessage(t, conn)
		if msg.Type != MsgSync || msg.Seq != 7 || msg.Sync == nil {
			t.Fatalf("%s got %+v", name, msg)
		}
		if !msg.Sync.Found || msg.Sync.Target != SideDest || msg.Sync.At != 17 || msg.Sync.Match.Key != "p|p2" {
			t.Errorf("%s sync = %+v", name, msg.Sync)
		}
	}
}

func TestWebSocketMarkerRepliesToSender(t *testing.T) {
	srv, ts := newTestServer(t, nil)
	sess := createSession(t, ts, "src.xml", "dst.xml")

	a := dial(t, ts, sess.ID, nil)
	b := dial(t, ts, sess.ID, nil)
	waitForClients(t, srv, sess.ID, 2)

	if err := a.WriteJSON(ClientMessage{Type: MsgMarker, Side: "source", Offset: 5, Seq: 1}); err != nil {
		t.Fatal(err)
	}
	msg := readMessage(t, a)
	if msg.Type != MsgNote || msg.Note == nil || !msg.Note.Found || msg.Note.Annotation.Text != "greeting" {
		t.Errorf("marker reply = %+v", msg)
	}

	// b only sees the next caret broadcast, not a's marker reply.
	if err := a.WriteJSON(ClientMessage{Type: MsgCaret, Side: "dest", Offset: 0, Seq: 2}); err != nil {
		t.Fatal(err)
	}
	if msg := readMessage(t, b); msg.Type != MsgSync || msg.Seq != 2 {
		t.Errorf("peer got %+v, want sync seq 2", msg)
	}
}

func TestWebSocketErrors(t *testing.T) {
	srv, ts := newTestServer(t, nil)
	sess := createSession(t, ts, "src.xml", "dst.xml")
	conn := dial(t, ts, sess.ID, nil)
	waitForClients(t, srv, sess.ID, 1)

	tests := []struct {
		name string
		send string
		want string
	}{
		{"not json", `{`, "invalid message"},
		{"bad side", `{"type":"caret","side":"left","offset":1,"seq":3}`, "unsupported side"},
		{"negative", `{"type":"caret","side":"source","offset":-4}`, "offset must be >= 0"},
		{"unknown type", `{"type":"scroll","side":"source","offset":1}`, "unknown message type scroll"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(tt.send)); err != nil {
				t.Fatal(err)
			}
			msg := readMessage(t, conn)
			if msg.Type != MsgError || !strings.Contains(msg.Message, tt.want) {
				t.Errorf("got %+v, want error containing %q", msg, tt.want)
			}
		})
	}
}

func TestWebSocketUnknownSession(t *testing.T) {
	_, ts := newTestServer(t, nil)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/sessions/00000000-0000-0000-0000-000000000000"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("Dial() to unknown session should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("response = %v, want 404", resp)
	}
}

func TestWebSocketClosedWithSession(t *testing.T) {
	srv, ts := newTestServer(t, nil)
	sess := createSession(t, ts, "src.xml", "dst.xml")
	conn := dial(t, ts, sess.ID, nil)
	waitForClients(t, srv, sess.ID, 1)

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/sessions/"+sess.ID, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNoStatusReceived, websocket.CloseNormalClosure) {
		t.Errorf("ReadMessage() error = %v, want close", err)
	}
	waitForClients(t, srv, sess.ID, 0)
}

func TestWebSocketOrigin(t *testing.T) {
	srv, ts := newTestServer(t, func(c *Config) { c.AllowedOrigins = []string{"https://app.example", "*.reader.example"} })
	sess := createSession(t, ts, "src.xml", "dst.xml")

	dial(t, ts, sess.ID, http.Header{"Origin": {"https://app.example"}})
	dial(t, ts, sess.ID, http.Header{"Origin": {"https://zh.reader.example"}})
	dial(t, ts, sess.ID, nil)
	waitForClients(t, srv, sess.ID, 3)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/sessions/" + sess.ID
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evilreader.example"}})
	if err == nil {
		t.Fatal("Dial() from a disallowed origin should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("response = %v, want 403", resp)
	}
}

func TestWebSocketRateLimit(t *testing.T) {
	srv, ts := newTestServer(t, func(c *Config) { c.WebSocket.MaxMessageRate = 1 })
	sess := createSession(t, ts, "src.xml", "dst.xml")
	conn := dial(t, ts, sess.ID, nil)
	waitForClients(t, srv, sess.ID, 1)

	// Burst is twice the rate; the third message closes the connection.
	for i := 0; i < 3; i++ {
		conn.WriteJSON(ClientMessage{Type: MsgCaret, Side: "source", Offset: 0})
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
			t.Errorf("ReadMessage() error = %v, want policy violation", err)
		}
		break
	}
}

func TestIsOriginAllowed(t *testing.T) {
	allowed := []string{"https://a.example", "*.b.example"}
	tests := []struct {
		origin string
		want   bool
	}{
		{"https://a.example", true},
		{"https://x.b.example", true},
		{"https://xb.example", false},
		{"https://c.example", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isOriginAllowed(tt.origin, allowed); got != tt.want {
			t.Errorf("isOriginAllowed(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
	if !isOriginAllowed("https://any", []string{"*"}) {
		t.Error("* should allow any origin")
	}
}

func TestHubStop(t *testing.T) {
	// Run is not started: every hub call must still return once stopped.
	h := NewHub()
	h.Stop()
	h.Stop()

	c := &Client{hub: h, room: "r", send: make(chan []byte, 1)}
	if h.add(c) {
		t.Error("add() after Stop should fail")
	}
	h.Broadcast("r", []byte("x"))
	h.CloseRoom("r")
}
