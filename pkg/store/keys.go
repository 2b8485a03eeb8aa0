package store

import (
	"fmt"
	"strings"
)

// Key layout (all values JSON):
//
//	group:<gid>:meta               group metadata
//	group:<gid>:member:<uid>       membership row
//	group:<gid>:msg:<seq>          the per-group message log, seq zero-padded
//	msg:<id>                       latest message by id
//	version:msg:<id>:<ts>-<n>      immutable per-message version history
//	user:<uid>                     user profile
//	notif:<uid>:<ts>-<n>           per-user notification feed
//
// The zero-padded seq makes lexicographic key order equal numeric order,
// so a bounded iterator walks the log in seq order.

func checkID(kind, id string) error {
	if id == "" {
		return fmt.Errorf("empty %s id", kind)
	}
	if len(id) > 128 || strings.ContainsRune(id, ':') {
		return fmt.Errorf("invalid %s id %q", kind, id)
	}
	return nil
}

// GroupMetaKey returns the metadata key for a group.
func GroupMetaKey(gid string) string { return "group:" + gid + ":meta" }

// MemberKey returns the membership key for (group, user).
func MemberKey(gid, uid string) string { return "group:" + gid + ":member:" + uid }

// MemberPrefix returns the iteration prefix for a group's memberships.
func MemberPrefix(gid string) string { return "group:" + gid + ":member:" }

// MsgKey returns the log key for (group, seq).
func MsgKey(gid string, seq int64) (string, error) {
	if err := checkID("group", gid); err != nil {
		return "", err
	}
	if seq <= 0 {
		return "", fmt.Errorf("invalid seq %d", seq)
	}
	return fmt.Sprintf("group:%s:msg:%020d", gid, seq), nil
}

// MsgPrefix returns the iteration prefix for a group's message log.
func MsgPrefix(gid string) string { return "group:" + gid + ":msg:" }

// MsgIDKey returns the by-id key for a message.
func MsgIDKey(id string) string { return "msg:" + id }

// VersionKey returns the version-history key for a message mutation.
func VersionKey(id string, ts int64, n uint64) (string, error) {
	if err := checkID("message", id); err != nil {
		return "", err
	}
	return fmt.Sprintf("version:msg:%s:%020d-%06d", id, ts, n), nil
}

// VersionPrefix returns the iteration prefix for a message's versions.
func VersionPrefix(id string) string { return "version:msg:" + id + ":" }

// MemberOfKey returns the reverse-index key listing a user's groups.
// Written and deleted in the same batch as the membership row.
func MemberOfKey(uid, gid string) string { return "memberof:" + uid + ":" + gid }

// MemberOfPrefix returns the iteration prefix for a user's groups.
func MemberOfPrefix(uid string) string { return "memberof:" + uid + ":" }

// UserKey returns the profile key for a user.
func UserKey(uid string) string { return "user:" + uid }

// UserPrefix is the iteration prefix for all user profiles.
const UserPrefix = "user:"

// NotifKey returns the feed key for a notification.
func NotifKey(uid string, ts int64, n uint64) string {
	return fmt.Sprintf("notif:%s:%020d-%06d", uid, ts, n)
}

// NotifPrefix returns the iteration prefix for a user's notifications.
func NotifPrefix(uid string) string { return "notif:" + uid + ":" }

// PrefixUpperBound returns the smallest key greater than every key with
// the given prefix, for use as an iterator UpperBound.
func PrefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil // prefix is all 0xff; no upper bound
}
