// Package subs tracks which live connections are subscribed to which
// groups. The registry is purely in-memory: it is rebuilt from scratch
// as clients reconnect and resubscribe after a restart.
package subs

import (
	"sync"

	"chatsync/pkg/logger"
	"chatsync/pkg/metrics"
)

// Conn is the registry's view of a live connection. TrySend must not
// block; it reports false when the connection cannot keep up.
type Conn interface {
	ID() string
	User() string
	TrySend(payload []byte) bool
	Kick(reason string)
}

type Registry struct {
	mu      sync.RWMutex
	byGroup map[string]map[string]Conn
	byConn  map[string]map[string]struct{}
	conns   map[string]Conn
}

func NewRegistry() *Registry {
	return &Registry{
		byGroup: make(map[string]map[string]Conn),
		byConn:  make(map[string]map[string]struct{}),
		conns:   make(map[string]Conn),
	}
}

// Subscribe attaches the connection to a group feed. Authorization is
// the caller's job; the registry only does bookkeeping. Resubscribing
// is a no-op.
func (r *Registry) Subscribe(c Conn, group string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byGroup[group]; !ok {
		r.byGroup[group] = make(map[string]Conn)
	}
	if _, ok := r.byGroup[group][c.ID()]; ok {
		return
	}
	r.byGroup[group][c.ID()] = c
	if _, ok := r.byConn[c.ID()]; !ok {
		r.byConn[c.ID()] = make(map[string]struct{})
	}
	r.byConn[c.ID()][group] = struct{}{}
	r.conns[c.ID()] = c
	metrics.Subscriptions.Inc()
}

// Unsubscribe detaches the connection from one group.
func (r *Registry) Unsubscribe(connID, group string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remove(connID, group)
}

// Drop removes every subscription held by the connection. Called on
// disconnect.
func (r *Registry) Drop(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for group := range r.byConn[connID] {
		r.remove(connID, group)
	}
	delete(r.conns, connID)
}

// DropMember tears down all of a user's subscriptions to a group and
// tells the affected connections why. Wired to the membership
// revocation hook so a ban takes effect on live sessions immediately.
func (r *Registry) DropMember(user, group string) {
	r.mu.Lock()
	var kicked []Conn
	for connID, c := range r.byGroup[group] {
		if c.User() == user {
			r.remove(connID, group)
			kicked = append(kicked, c)
		}
	}
	r.mu.Unlock()
	for _, c := range kicked {
		c.Kick("membership revoked for group " + group)
	}
	if len(kicked) > 0 {
		logger.Info("subscriptions_revoked", "user", user, "group", group, "conns", len(kicked))
	}
}

// Subscribers snapshots the group's current subscriber set.
func (r *Registry) Subscribers(group string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Conn, 0, len(r.byGroup[group]))
	for _, c := range r.byGroup[group] {
		out = append(out, c)
	}
	return out
}

// Subscribed reports whether the connection currently holds the group.
func (r *Registry) Subscribed(connID, group string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byGroup[group][connID]
	return ok
}

// caller holds r.mu
func (r *Registry) remove(connID, group string) {
	if _, ok := r.byGroup[group][connID]; !ok {
		return
	}
	delete(r.byGroup[group], connID)
	if len(r.byGroup[group]) == 0 {
		delete(r.byGroup, group)
	}
	delete(r.byConn[connID], group)
	if len(r.byConn[connID]) == 0 {
		delete(r.byConn, connID)
	}
	metrics.Subscriptions.Dec()
}
