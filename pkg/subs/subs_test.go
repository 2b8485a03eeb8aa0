package subs

import (
	"sync"
	"testing"
)

type fakeConn struct {
	id   string
	user string

	mu     sync.Mutex
	sent   [][]byte
	kicked string
	full   bool
}

func (f *fakeConn) ID() string   { return f.id }
func (f *fakeConn) User() string { return f.user }

func (f *fakeConn) TrySend(p []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	f.sent = append(f.sent, p)
	return true
}

func (f *fakeConn) Kick(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kicked = reason
}

func TestSubscribeUnsubscribe(t *testing.T) {
	r := NewRegistry()
	c := &fakeConn{id: "c1", user: "alice"}

	r.Subscribe(c, "g1")
	if !r.Subscribed("c1", "g1") {
		t.Fatalf("subscription not recorded")
	}
	if got := r.Subscribers("g1"); len(got) != 1 {
		t.Fatalf("got %d subscribers, want 1", len(got))
	}
	// resubscribe is a no-op
	r.Subscribe(c, "g1")
	if got := r.Subscribers("g1"); len(got) != 1 {
		t.Fatalf("resubscribe duplicated: %d", len(got))
	}

	r.Unsubscribe("c1", "g1")
	if r.Subscribed("c1", "g1") {
		t.Fatalf("subscription survived unsubscribe")
	}
}

func TestDropRemovesAllSubscriptions(t *testing.T) {
	r := NewRegistry()
	c := &fakeConn{id: "c1", user: "alice"}
	r.Subscribe(c, "g1")
	r.Subscribe(c, "g2")

	r.Drop("c1")
	if r.Subscribed("c1", "g1") || r.Subscribed("c1", "g2") {
		t.Fatalf("drop left subscriptions behind")
	}
}

func TestDropMemberKicksOnlyThatUser(t *testing.T) {
	r := NewRegistry()
	banned := &fakeConn{id: "c1", user: "bob"}
	bystander := &fakeConn{id: "c2", user: "alice"}
	elsewhere := &fakeConn{id: "c3", user: "bob"}
	r.Subscribe(banned, "g1")
	r.Subscribe(bystander, "g1")
	r.Subscribe(elsewhere, "g2")

	r.DropMember("bob", "g1")

	if r.Subscribed("c1", "g1") {
		t.Fatalf("banned user still subscribed")
	}
	if banned.kicked == "" {
		t.Fatalf("banned conn not told")
	}
	if !r.Subscribed("c2", "g1") {
		t.Fatalf("bystander lost subscription")
	}
	if !r.Subscribed("c3", "g2") {
		t.Fatalf("other group subscription lost")
	}
}
