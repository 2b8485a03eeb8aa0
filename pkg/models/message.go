package models

import "sort"

// Message types. A message is immutable once committed except for the
// transition to TypeDeleted, which nulls the content but keeps id and
// order key.
const (
	TypeText    = "text"
	TypeSystem  = "system"
	TypeDeleted = "deleted"
)

type Message struct {
	ID     string `json:"id"`
	Group  string `json:"group"`
	Sender string `json:"sender"`
	// Seq is the per-group order key; strictly increasing, assigned at
	// commit time. Order keys are never reused.
	Seq int64 `json:"seq"`
	// TS is the wall-clock send timestamp (ns).
	TS   int64  `json:"ts"`
	Type string `json:"type"`
	// Content is nil only when Type == TypeDeleted.
	Content *string `json:"content"`
	// ReplyTo references a message in the same group, or is empty.
	ReplyTo  string         `json:"reply_to,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	// Reactions maps emoji -> user ids; at most one entry per (user, emoji).
	Reactions map[string][]string `json:"reactions,omitempty"`
}

// Tombstoned reports whether the message has been soft-deleted.
func (m *Message) Tombstoned() bool { return m.Type == TypeDeleted }

// AddReaction records (user, emoji). Returns false when the pair was
// already present; duplicates are a no-op, not an error.
func (m *Message) AddReaction(user, emoji string) bool {
	if m.Reactions == nil {
		m.Reactions = make(map[string][]string)
	}
	users := m.Reactions[emoji]
	for _, u := range users {
		if u == user {
			return false
		}
	}
	users = append(users, user)
	sort.Strings(users)
	m.Reactions[emoji] = users
	return true
}

// RemoveReaction removes (user, emoji) if present. Returns false when the
// pair was absent.
func (m *Message) RemoveReaction(user, emoji string) bool {
	users, ok := m.Reactions[emoji]
	if !ok {
		return false
	}
	for i, u := range users {
		if u == user {
			users = append(users[:i], users[i+1:]...)
			if len(users) == 0 {
				delete(m.Reactions, emoji)
			} else {
				m.Reactions[emoji] = users
			}
			return true
		}
	}
	return false
}
