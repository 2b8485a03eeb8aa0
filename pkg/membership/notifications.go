package membership

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"chatsync/pkg/logger"
	"chatsync/pkg/models"
	"chatsync/pkg/store"
	"chatsync/pkg/utils"
)

// notifSeq breaks key collisions when two notifications land on the
// same nanosecond.
var notifSeq uint64

// notify appends a notification record to the target user's feed.
// Best-effort: a failed write is logged, never propagated, so a
// moderation action cannot fail on its audit trail.
func notify(user, group, typ, message string, payload map[string]any) {
	n := models.Notification{
		ID:        utils.GenNotifID(),
		Group:     group,
		User:      user,
		Type:      typ,
		Message:   message,
		Payload:   payload,
		CreatedTS: time.Now().UTC().UnixNano(),
	}
	val, err := json.Marshal(n)
	if err != nil {
		logger.Error("notification_marshal_failed", "user", user, "error", err)
		return
	}
	key := store.NotifKey(user, n.CreatedTS, atomic.AddUint64(&notifSeq, 1))
	if err := store.Set(key, val, false); err != nil {
		logger.Error("notification_write_failed", "user", user, "error", err)
	}
}

// Notifications lists a user's feed oldest-first, capped at limit
// (limit <= 0 means all).
func Notifications(user string, limit int) ([]models.Notification, error) {
	if _, err := GetUser(user); err != nil {
		return nil, err
	}
	vals, err := store.ListPrefix(store.NotifPrefix(user), limit)
	if err != nil {
		return nil, err
	}
	out := make([]models.Notification, 0, len(vals))
	for _, v := range vals {
		var n models.Notification
		if err := json.Unmarshal(v, &n); err != nil {
			return nil, fmt.Errorf("corrupt notification for %s: %w", user, err)
		}
		out = append(out, n)
	}
	return out, nil
}
