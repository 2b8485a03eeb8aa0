package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"chatsync/pkg/auth"
	"chatsync/pkg/config"
	"chatsync/pkg/fanout"
	"chatsync/pkg/gateway"
	"chatsync/pkg/membership"
	"chatsync/pkg/models"
	"chatsync/pkg/msglog"
	"chatsync/pkg/store"
	"chatsync/pkg/subs"
)

const (
	backendKey  = "bk-test"
	frontendKey = "fk-test"
	signingKey  = "sign-test"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("open store: %v", err)
	}

	var sc config.SecurityConfig
	sc.APIKeys.Backend = []string{backendKey}
	sc.APIKeys.Frontend = []string{frontendKey}
	sc.SigningKeys = []string{signingKey}
	sc.RateLimit.RPS = 10000
	sc.RateLimit.Burst = 10000
	sec := auth.FromConfig(sc)

	reg := subs.NewRegistry()
	membership.SetRevocationHook(reg.DropMember)
	d := fanout.New(reg, 2, 64)
	d.Start()
	msglog.SetPublisher(d.Publish)

	wscfg := config.WebSocketConfig{
		MaxMessageSize: 64 * 1024,
		WriteWait:      config.Duration(5 * time.Second),
		PongWait:       config.Duration(30 * time.Second),
		PingInterval:   config.Duration(25 * time.Second),
	}
	gw := gateway.New(reg, sec, wscfg, 64)

	srv := httptest.NewServer(NewRouter(sec, gw))
	t.Cleanup(func() {
		srv.Close()
		d.Stop()
		membership.SetRevocationHook(nil)
		msglog.SetPublisher(func(string, models.Message) {})
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return srv
}

// doJSON issues a backend-key request acting as user and decodes the
// response into out when non-nil.
func doJSON(t *testing.T, srv *httptest.Server, method, path, user string, body, out any) int {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("X-API-Key", backendKey)
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func seedUsers(t *testing.T, srv *httptest.Server, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if code := doJSON(t, srv, http.MethodPost, "/v1/users", "", models.User{ID: id, Username: id}, nil); code != http.StatusCreated {
			t.Fatalf("create user %s: status %d", id, code)
		}
	}
}

func TestMessagingFlow(t *testing.T) {
	srv := newTestServer(t)
	seedUsers(t, srv, "alice", "bob")

	var g models.Group
	if code := doJSON(t, srv, http.MethodPost, "/v1/groups", "alice",
		map[string]string{"name": "general", "type": "community"}, &g); code != http.StatusCreated {
		t.Fatalf("create group: status %d", code)
	}

	if code := doJSON(t, srv, http.MethodPost, "/v1/groups/"+g.ID+"/join", "bob", nil, nil); code != http.StatusOK {
		t.Fatalf("join: status %d", code)
	}

	var sent models.Message
	if code := doJSON(t, srv, http.MethodPost, "/v1/groups/"+g.ID+"/messages", "bob",
		map[string]string{"content": "hello room"}, &sent); code != http.StatusCreated {
		t.Fatalf("send: status %d", code)
	}
	if sent.Seq == 0 || sent.Sender != "bob" {
		t.Fatalf("bad message returned: %+v", sent)
	}

	var page struct {
		Messages []models.Message `json:"messages"`
	}
	if code := doJSON(t, srv, http.MethodGet, "/v1/groups/"+g.ID+"/messages", "alice", nil, &page); code != http.StatusOK {
		t.Fatalf("page: status %d", code)
	}
	if len(page.Messages) != 1 || *page.Messages[0].Content != "hello room" {
		t.Fatalf("page = %+v", page.Messages)
	}

	// outsider cannot read: not found, not forbidden
	seedUsers(t, srv, "eve")
	if code := doJSON(t, srv, http.MethodGet, "/v1/groups/"+g.ID+"/messages", "eve", nil, nil); code != http.StatusNotFound {
		t.Fatalf("outsider page: status %d, want 404", code)
	}
}

func TestBanBlocksWrites(t *testing.T) {
	srv := newTestServer(t)
	seedUsers(t, srv, "alice", "bob")

	var g models.Group
	doJSON(t, srv, http.MethodPost, "/v1/groups", "alice", map[string]string{"name": "general", "type": "community"}, &g)
	doJSON(t, srv, http.MethodPost, "/v1/groups/"+g.ID+"/join", "bob", nil, nil)

	if code := doJSON(t, srv, http.MethodPost, "/v1/groups/"+g.ID+"/members/bob/ban", "alice",
		map[string]bool{"banned": true}, nil); code != http.StatusOK {
		t.Fatalf("ban: status %d", code)
	}
	if code := doJSON(t, srv, http.MethodPost, "/v1/groups/"+g.ID+"/messages", "bob",
		map[string]string{"content": "still here?"}, nil); code != http.StatusForbidden {
		t.Fatalf("banned send: status %d, want 403", code)
	}
	if code := doJSON(t, srv, http.MethodPost, "/v1/groups/"+g.ID+"/members/bob/ban", "alice",
		map[string]bool{"banned": false}, nil); code != http.StatusOK {
		t.Fatalf("unban: status %d", code)
	}
	if code := doJSON(t, srv, http.MethodPost, "/v1/groups/"+g.ID+"/messages", "bob",
		map[string]string{"content": "back"}, nil); code != http.StatusCreated {
		t.Fatalf("post-unban send: status %d", code)
	}
}

func TestTombstoneFlow(t *testing.T) {
	srv := newTestServer(t)
	seedUsers(t, srv, "alice", "bob")

	var g models.Group
	doJSON(t, srv, http.MethodPost, "/v1/groups", "alice", map[string]string{"name": "general", "type": "community"}, &g)
	doJSON(t, srv, http.MethodPost, "/v1/groups/"+g.ID+"/join", "bob", nil, nil)

	var sent models.Message
	doJSON(t, srv, http.MethodPost, "/v1/groups/"+g.ID+"/messages", "bob", map[string]string{"content": "oops"}, &sent)

	var del models.Message
	if code := doJSON(t, srv, http.MethodDelete, "/v1/groups/"+g.ID+"/messages/"+sent.ID, "alice", nil, &del); code != http.StatusOK {
		t.Fatalf("moderator delete: status %d", code)
	}
	if del.Type != models.TypeDeleted || del.Content != nil || del.Seq != sent.Seq {
		t.Fatalf("tombstone wrong: %+v", del)
	}

	var versions struct {
		Versions []models.Message `json:"versions"`
	}
	if code := doJSON(t, srv, http.MethodGet, "/v1/groups/"+g.ID+"/messages/"+sent.ID+"/versions", "alice", nil, &versions); code != http.StatusOK {
		t.Fatalf("versions: status %d", code)
	}
	if len(versions.Versions) != 2 {
		t.Fatalf("got %d versions, want 2", len(versions.Versions))
	}
}

func TestReactionEndpoints(t *testing.T) {
	srv := newTestServer(t)
	seedUsers(t, srv, "alice")

	var g models.Group
	doJSON(t, srv, http.MethodPost, "/v1/groups", "alice", map[string]string{"name": "general", "type": "community"}, &g)
	var sent models.Message
	doJSON(t, srv, http.MethodPost, "/v1/groups/"+g.ID+"/messages", "alice", map[string]string{"content": "react"}, &sent)

	var reacted models.Message
	if code := doJSON(t, srv, http.MethodPost, "/v1/groups/"+g.ID+"/messages/"+sent.ID+"/reactions", "alice",
		map[string]string{"emoji": "🎉"}, &reacted); code != http.StatusOK {
		t.Fatalf("react: status %d", code)
	}
	if len(reacted.Reactions["🎉"]) != 1 {
		t.Fatalf("reactions = %v", reacted.Reactions)
	}
	reacted = models.Message{}
	if code := doJSON(t, srv, http.MethodDelete, "/v1/groups/"+g.ID+"/messages/"+sent.ID+"/reactions/🎉", "alice", nil, &reacted); code != http.StatusOK {
		t.Fatalf("unreact: status %d", code)
	}
	if len(reacted.Reactions["🎉"]) != 0 {
		t.Fatalf("reaction not removed: %v", reacted.Reactions)
	}
}

func TestSignEndpoint(t *testing.T) {
	srv := newTestServer(t)
	var out struct {
		User      string `json:"user"`
		Signature string `json:"signature"`
	}
	if code := doJSON(t, srv, http.MethodPost, "/v1/sign", "", map[string]string{"user": "alice"}, &out); code != http.StatusOK {
		t.Fatalf("sign: status %d", code)
	}
	if !auth.VerifySignature([]string{signingKey}, "alice", out.Signature) {
		t.Fatalf("issued signature does not verify")
	}
}

func TestInvalidInputIsBadRequest(t *testing.T) {
	srv := newTestServer(t)
	seedUsers(t, srv, "alice")

	var g models.Group
	if code := doJSON(t, srv, http.MethodPost, "/v1/groups", "alice",
		map[string]string{"name": "general", "type": "community"}, &g); code != http.StatusCreated {
		t.Fatalf("create group: status %d", code)
	}

	if code := doJSON(t, srv, http.MethodPost, "/v1/groups/"+g.ID+"/messages", "alice",
		map[string]string{"content": "   "}, nil); code != http.StatusBadRequest {
		t.Fatalf("blank content append: status %d, want 400", code)
	}

	var sent models.Message
	if code := doJSON(t, srv, http.MethodPost, "/v1/groups/"+g.ID+"/messages", "alice",
		map[string]string{"content": "hello"}, &sent); code != http.StatusCreated {
		t.Fatalf("send: status %d", code)
	}
	if code := doJSON(t, srv, http.MethodPost, "/v1/groups/"+g.ID+"/messages/"+sent.ID+"/reactions", "alice",
		map[string]string{"emoji": ""}, nil); code != http.StatusBadRequest {
		t.Fatalf("empty emoji react: status %d, want 400", code)
	}
}

func TestPresenceEndpoint(t *testing.T) {
	srv := newTestServer(t)
	seedUsers(t, srv, "alice", "bob")

	var u models.User
	if code := doJSON(t, srv, http.MethodPut, "/v1/users/alice/presence", "alice",
		map[string]string{"status": "away"}, &u); code != http.StatusOK {
		t.Fatalf("set presence: status %d", code)
	}
	if u.Status != models.StatusAway {
		t.Fatalf("status = %q, want away", u.Status)
	}

	if code := doJSON(t, srv, http.MethodPut, "/v1/users/alice/presence", "bob",
		map[string]string{"status": "online"}, nil); code != http.StatusForbidden {
		t.Fatalf("presence for another user: status %d, want 403", code)
	}

	if code := doJSON(t, srv, http.MethodPut, "/v1/users/alice/presence", "alice",
		map[string]string{"status": "invisible"}, nil); code != http.StatusBadRequest {
		t.Fatalf("invalid status: status %d, want 400", code)
	}
}

func dialWS(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") +
		"/ws?user=" + user + "&sig=" + auth.Sign(signingKey, user)
	hdr := http.Header{}
	hdr.Set("X-API-Key", frontendKey)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, hdr)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("parse frame %q: %v", raw, err)
	}
	return m
}

func frameType(t *testing.T, m map[string]json.RawMessage) string {
	t.Helper()
	var typ string
	if err := json.Unmarshal(m["type"], &typ); err != nil {
		t.Fatalf("frame has no type: %v", m)
	}
	return typ
}

func TestWebSocketPush(t *testing.T) {
	srv := newTestServer(t)
	seedUsers(t, srv, "alice", "bob")

	var g models.Group
	doJSON(t, srv, http.MethodPost, "/v1/groups", "alice", map[string]string{"name": "general", "type": "community"}, &g)
	doJSON(t, srv, http.MethodPost, "/v1/groups/"+g.ID+"/join", "bob", nil, nil)

	conn := dialWS(t, srv, "bob")
	if err := conn.WriteJSON(map[string]string{"action": "subscribe", "group": g.ID}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if typ := frameType(t, readFrame(t, conn)); typ != "subscribed" {
		t.Fatalf("ack type = %q, want subscribed", typ)
	}

	var sent models.Message
	doJSON(t, srv, http.MethodPost, "/v1/groups/"+g.ID+"/messages", "alice", map[string]string{"content": "live"}, &sent)

	push := readFrame(t, conn)
	if typ := frameType(t, push); typ != "message.new" {
		t.Fatalf("push type = %q, want message.new", typ)
	}
	var msg models.Message
	if err := json.Unmarshal(push["message"], &msg); err != nil {
		t.Fatalf("push payload: %v", err)
	}
	if msg.ID != sent.ID || msg.Seq != sent.Seq {
		t.Fatalf("push message %+v does not match %+v", msg, sent)
	}
}

func TestWebSocketSubscribeDenied(t *testing.T) {
	srv := newTestServer(t)
	seedUsers(t, srv, "alice", "eve")

	var g models.Group
	doJSON(t, srv, http.MethodPost, "/v1/groups", "alice", map[string]string{"name": "general", "type": "community"}, &g)

	conn := dialWS(t, srv, "eve")
	if err := conn.WriteJSON(map[string]string{"action": "subscribe", "group": g.ID}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if typ := frameType(t, readFrame(t, conn)); typ != "error" {
		t.Fatalf("frame type = %q, want error", typ)
	}
}

func TestWebSocketBanRevokesSubscription(t *testing.T) {
	srv := newTestServer(t)
	seedUsers(t, srv, "alice", "bob")

	var g models.Group
	doJSON(t, srv, http.MethodPost, "/v1/groups", "alice", map[string]string{"name": "general", "type": "community"}, &g)
	doJSON(t, srv, http.MethodPost, "/v1/groups/"+g.ID+"/join", "bob", nil, nil)

	conn := dialWS(t, srv, "bob")
	if err := conn.WriteJSON(map[string]string{"action": "subscribe", "group": g.ID}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if typ := frameType(t, readFrame(t, conn)); typ != "subscribed" {
		t.Fatalf("no subscribe ack")
	}

	doJSON(t, srv, http.MethodPost, "/v1/groups/"+g.ID+"/members/bob/ban", "alice", map[string]bool{"banned": true}, nil)

	// the revocation surfaces as an error frame followed by close
	frame := readFrame(t, conn)
	if typ := frameType(t, frame); typ != "error" {
		t.Fatalf("frame type = %q, want error", typ)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("connection still open after revocation")
	}
}

func userStatus(t *testing.T, srv *httptest.Server, id string) string {
	t.Helper()
	var u models.User
	if code := doJSON(t, srv, http.MethodGet, "/v1/users/"+id, "", nil, &u); code != http.StatusOK {
		t.Fatalf("get user %s: status %d", id, code)
	}
	return u.Status
}

func TestLastDisconnectFlipsOffline(t *testing.T) {
	srv := newTestServer(t)
	seedUsers(t, srv, "alice")

	first := dialWS(t, srv, "alice")
	second := dialWS(t, srv, "alice")
	if got := userStatus(t, srv, "alice"); got != models.StatusOnline {
		t.Fatalf("status = %q, want online", got)
	}

	// closing one of two tabs must not take the user offline
	first.Close()
	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		if got := userStatus(t, srv, "alice"); got != models.StatusOnline {
			t.Fatalf("status = %q after first disconnect, want online", got)
		}
		time.Sleep(20 * time.Millisecond)
	}

	second.Close()
	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if userStatus(t, srv, "alice") == models.StatusOffline {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("user still %q after last disconnect", userStatus(t, srv, "alice"))
}
