package msglog

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"chatsync/pkg/errdefs"
	"chatsync/pkg/membership"
	"chatsync/pkg/models"
	"chatsync/pkg/store"
)

func openStore(t *testing.T) {
	t.Helper()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("open store: %v", err)
	}
	resetSequencers()
	SetPublisher(func(string, models.Message) {})
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
}

func seedGroup(t *testing.T, users ...string) string {
	t.Helper()
	for _, u := range users {
		if _, err := membership.CreateUser(models.User{ID: u, Username: u}); err != nil {
			t.Fatalf("create user %s: %v", u, err)
		}
	}
	g, err := membership.CreateGroup(users[0], "general", models.GroupCommunity)
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	for _, u := range users[1:] {
		if _, err := membership.Join(u, g.ID, ""); err != nil {
			t.Fatalf("join %s: %v", u, err)
		}
	}
	return g.ID
}

func text(s string) models.Message {
	return models.Message{Content: &s}
}

func TestAppendAssignsIncreasingSeqs(t *testing.T) {
	openStore(t)
	gid := seedGroup(t, "alice")

	var last int64
	for i := 0; i < 10; i++ {
		m, err := Append("alice", gid, text(fmt.Sprintf("msg %d", i)))
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if m.Seq <= last {
			t.Fatalf("seq %d not greater than %d", m.Seq, last)
		}
		last = m.Seq
	}
}

func TestAppendConcurrentSeqsUnique(t *testing.T) {
	openStore(t)
	gid := seedGroup(t, "alice")

	const n = 50
	var wg sync.WaitGroup
	seqs := make(chan int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := Append("alice", gid, text(fmt.Sprintf("c %d", i)))
			if err != nil {
				t.Errorf("append: %v", err)
				return
			}
			seqs <- m.Seq
		}(i)
	}
	wg.Wait()
	close(seqs)

	seen := map[int64]bool{}
	for s := range seqs {
		if seen[s] {
			t.Fatalf("order key %d assigned twice", s)
		}
		seen[s] = true
	}
	if len(seen) != n {
		t.Fatalf("got %d keys, want %d", len(seen), n)
	}
}

func TestSeqRecoveryAfterReopen(t *testing.T) {
	dir := t.TempDir()
	if err := store.Open(dir); err != nil {
		t.Fatalf("open store: %v", err)
	}
	resetSequencers()
	SetPublisher(func(string, models.Message) {})
	gid := seedGroup(t, "alice")
	m1, err := Append("alice", gid, text("one"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := store.Open(dir); err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer store.Close()
	resetSequencers()
	m2, err := Append("alice", gid, text("two"))
	if err != nil {
		t.Fatalf("append after reopen: %v", err)
	}
	if m2.Seq <= m1.Seq {
		t.Fatalf("recovered seq %d not greater than %d", m2.Seq, m1.Seq)
	}
}

func TestAppendAuthz(t *testing.T) {
	openStore(t)
	gid := seedGroup(t, "alice", "bob")
	if _, err := membership.CreateUser(models.User{ID: "eve", Username: "eve"}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	if _, err := Append("eve", gid, text("hi")); !errors.Is(err, errdefs.ErrNotFound) {
		t.Fatalf("outsider append err = %v, want ErrNotFound", err)
	}
	if _, err := membership.SetBan("alice", "bob", gid, true); err != nil {
		t.Fatalf("ban: %v", err)
	}
	if _, err := Append("bob", gid, text("hi")); !errors.Is(err, errdefs.ErrForbidden) {
		t.Fatalf("banned append err = %v, want ErrForbidden", err)
	}
}

func TestAppendIdempotentResend(t *testing.T) {
	openStore(t)
	gid := seedGroup(t, "alice")

	m1, err := Append("alice", gid, models.Message{ID: "msg_fixed", Content: strp("hello")})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	m2, err := Append("alice", gid, models.Message{ID: "msg_fixed", Content: strp("hello")})
	if err != nil {
		t.Fatalf("resend: %v", err)
	}
	if m2.Seq != m1.Seq {
		t.Fatalf("resend minted new order key %d, want %d", m2.Seq, m1.Seq)
	}
	msgs, err := Page("alice", gid, 0, 0)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("resend duplicated the message: %d entries", len(msgs))
	}
}

func strp(s string) *string { return &s }

func TestReplyToCrossGroupRejected(t *testing.T) {
	openStore(t)
	gid1 := seedGroup(t, "alice")
	g2, err := membership.CreateGroup("alice", "other", models.GroupCommunity)
	if err != nil {
		t.Fatalf("create group: %v", err)
	}

	m, err := Append("alice", gid1, text("root"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := Append("alice", g2.ID, models.Message{Content: strp("re"), ReplyTo: m.ID}); !errors.Is(err, errdefs.ErrInvalidReference) {
		t.Fatalf("cross-group reply err = %v, want ErrInvalidReference", err)
	}
	if _, err := Append("alice", gid1, models.Message{Content: strp("re"), ReplyTo: "msg_missing"}); !errors.Is(err, errdefs.ErrInvalidReference) {
		t.Fatalf("dangling reply err = %v, want ErrInvalidReference", err)
	}
	if _, err := Append("alice", gid1, models.Message{Content: strp("re"), ReplyTo: m.ID}); err != nil {
		t.Fatalf("same-group reply: %v", err)
	}
}

func TestPageSemantics(t *testing.T) {
	openStore(t)
	gid := seedGroup(t, "alice")

	var seqs []int64
	for i := 0; i < 9; i++ {
		m, err := Append("alice", gid, text(fmt.Sprintf("m%d", i)))
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		seqs = append(seqs, m.Seq)
	}

	// newest page, oldest-first within the page
	page, err := Page("alice", gid, 0, 3)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(page) != 3 {
		t.Fatalf("got %d messages, want 3", len(page))
	}
	if page[0].Seq != seqs[6] || page[2].Seq != seqs[8] {
		t.Fatalf("newest page seqs %d..%d, want %d..%d", page[0].Seq, page[2].Seq, seqs[6], seqs[8])
	}

	// walk backwards with the cursor
	page2, err := Page("alice", gid, page[0].Seq, 3)
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if page2[0].Seq != seqs[3] || page2[2].Seq != seqs[5] {
		t.Fatalf("second page seqs %d..%d, want %d..%d", page2[0].Seq, page2[2].Seq, seqs[3], seqs[5])
	}

	// exhausted history
	page4, err := Page("alice", gid, seqs[0], 3)
	if err != nil {
		t.Fatalf("page 4: %v", err)
	}
	if len(page4) != 0 {
		t.Fatalf("got %d messages past the oldest, want 0", len(page4))
	}
}

func TestTombstone(t *testing.T) {
	openStore(t)
	gid := seedGroup(t, "alice", "bob")

	m, err := Append("bob", gid, text("delete me"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	// a plain member cannot delete someone else's message
	if _, err := membership.CreateUser(models.User{ID: "carol", Username: "carol"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := membership.Join("carol", gid, ""); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := Tombstone("carol", gid, m.ID); !errors.Is(err, errdefs.ErrForbidden) {
		t.Fatalf("peer delete err = %v, want ErrForbidden", err)
	}

	// sender deletes their own
	del, err := Tombstone("bob", gid, m.ID)
	if err != nil {
		t.Fatalf("tombstone: %v", err)
	}
	if !del.Tombstoned() || del.Content != nil {
		t.Fatalf("tombstone kept content: %+v", del)
	}
	if del.Seq != m.Seq || del.ID != m.ID {
		t.Fatalf("tombstone changed identity: %+v", del)
	}

	// idempotent
	if _, err := Tombstone("bob", gid, m.ID); err != nil {
		t.Fatalf("repeat tombstone: %v", err)
	}
	// owner moderates
	m2, err := Append("bob", gid, text("again"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := Tombstone("alice", gid, m2.ID); err != nil {
		t.Fatalf("moderator tombstone: %v", err)
	}

	// tombstones stay in the page, typed deleted
	page, err := Page("alice", gid, 0, 0)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("got %d messages, want 2", len(page))
	}
	for _, pm := range page {
		if pm.Type != models.TypeDeleted {
			t.Fatalf("message %s not tombstoned in page", pm.ID)
		}
	}
}

func TestReactions(t *testing.T) {
	openStore(t)
	gid := seedGroup(t, "alice", "bob")

	m, err := Append("alice", gid, text("react to me"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	r1, err := React("bob", gid, m.ID, "👍")
	if err != nil {
		t.Fatalf("react: %v", err)
	}
	if got := r1.Reactions["👍"]; len(got) != 1 || got[0] != "bob" {
		t.Fatalf("reactions = %v", r1.Reactions)
	}
	// duplicate react is a no-op
	r2, err := React("bob", gid, m.ID, "👍")
	if err != nil {
		t.Fatalf("repeat react: %v", err)
	}
	if len(r2.Reactions["👍"]) != 1 {
		t.Fatalf("duplicate reaction recorded: %v", r2.Reactions)
	}
	// remove, then remove again
	r3, err := Unreact("bob", gid, m.ID, "👍")
	if err != nil {
		t.Fatalf("unreact: %v", err)
	}
	if len(r3.Reactions["👍"]) != 0 {
		t.Fatalf("reaction survived removal: %v", r3.Reactions)
	}
	if _, err := Unreact("bob", gid, m.ID, "👍"); err != nil {
		t.Fatalf("repeat unreact: %v", err)
	}

	// reacting to a tombstone is rejected
	if _, err := Tombstone("alice", gid, m.ID); err != nil {
		t.Fatalf("tombstone: %v", err)
	}
	if _, err := React("bob", gid, m.ID, "👍"); !errors.Is(err, errdefs.ErrInvalidReference) {
		t.Fatalf("react to tombstone err = %v, want ErrInvalidReference", err)
	}
}

func TestValidationErrorsAreTyped(t *testing.T) {
	openStore(t)
	gid := seedGroup(t, "alice")

	if _, err := Append("alice", gid, text("   ")); !errors.Is(err, errdefs.ErrInvalidReference) {
		t.Fatalf("blank content err = %v, want ErrInvalidReference", err)
	}

	m, err := Append("alice", gid, text("ok"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := React("alice", gid, m.ID, ""); !errors.Is(err, errdefs.ErrInvalidReference) {
		t.Fatalf("empty emoji err = %v, want ErrInvalidReference", err)
	}
}

func TestTombstoneDoesNotClobberConcurrentReactions(t *testing.T) {
	openStore(t)
	gid := seedGroup(t, "alice", "bob")

	m, err := Append("alice", gid, text("contested"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	// Reactions race the tombstone: each React either commits before the
	// tombstone and survives in the stored record, or observes the
	// tombstone and is rejected. A committed reaction must never vanish.
	const n = 20
	var wg sync.WaitGroup
	landed := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := React("bob", gid, m.ID, fmt.Sprintf("e%d", i))
			switch {
			case err == nil:
				landed[i] = true
			case errors.Is(err, errdefs.ErrInvalidReference):
			default:
				t.Errorf("react %d: %v", i, err)
			}
		}(i)
	}
	if _, err := Tombstone("alice", gid, m.ID); err != nil {
		t.Fatalf("tombstone: %v", err)
	}
	wg.Wait()

	final, err := Get("alice", gid, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !final.Tombstoned() {
		t.Fatalf("message not tombstoned: %+v", final)
	}
	for i := 0; i < n; i++ {
		emoji := fmt.Sprintf("e%d", i)
		if landed[i] && len(final.Reactions[emoji]) == 0 {
			t.Fatalf("acked reaction %s lost from stored message", emoji)
		}
		if !landed[i] && len(final.Reactions[emoji]) != 0 {
			t.Fatalf("rejected reaction %s present on tombstone", emoji)
		}
	}
}

func TestPublisherReceivesCommits(t *testing.T) {
	openStore(t)
	gid := seedGroup(t, "alice")

	var mu sync.Mutex
	var events []string
	SetPublisher(func(kind string, msg models.Message) {
		mu.Lock()
		events = append(events, kind)
		mu.Unlock()
	})

	m, err := Append("alice", gid, text("hello"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := React("alice", gid, m.ID, "🎉"); err != nil {
		t.Fatalf("react: %v", err)
	}
	if _, err := Tombstone("alice", gid, m.ID); err != nil {
		t.Fatalf("tombstone: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{EventNew, EventUpdated, EventDeleted}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("event %d = %q, want %q", i, events[i], want[i])
		}
	}
}

func TestVersionsRecordHistory(t *testing.T) {
	openStore(t)
	gid := seedGroup(t, "alice")

	m, err := Append("alice", gid, text("v1"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := React("alice", gid, m.ID, "👀"); err != nil {
		t.Fatalf("react: %v", err)
	}
	if _, err := Tombstone("alice", gid, m.ID); err != nil {
		t.Fatalf("tombstone: %v", err)
	}

	versions, err := Versions("alice", gid, m.ID)
	if err != nil {
		t.Fatalf("versions: %v", err)
	}
	if len(versions) != 3 {
		t.Fatalf("got %d versions, want 3", len(versions))
	}
	if versions[0].Type != models.TypeText || versions[2].Type != models.TypeDeleted {
		t.Fatalf("version order wrong: first %s last %s", versions[0].Type, versions[2].Type)
	}
}
