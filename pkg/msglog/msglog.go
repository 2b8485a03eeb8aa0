// Package msglog is the durable per-group message log. Every mutation
// commits in a single synced batch before it is acknowledged or pushed;
// order keys are assigned at commit time and never reused.
package msglog

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"chatsync/pkg/errdefs"
	"chatsync/pkg/logger"
	"chatsync/pkg/membership"
	"chatsync/pkg/metrics"
	"chatsync/pkg/models"
	"chatsync/pkg/store"
	"chatsync/pkg/utils"
	"chatsync/pkg/validation"
)

// Push event kinds emitted after a commit.
const (
	EventNew     = "message.new"
	EventDeleted = "message.deleted"
	EventUpdated = "message.updated"
)

// PublishFunc receives every committed mutation, after durability.
type PublishFunc func(kind string, msg models.Message)

var (
	publish PublishFunc = func(string, models.Message) {}

	retryAttempts = 3
	retryBackoff  = 50 * time.Millisecond

	versionSeq uint64
)

// SetPublisher installs the after-commit hook. Must be called before
// the log starts serving writes.
func SetPublisher(fn PublishFunc) {
	if fn != nil {
		publish = fn
	}
}

// SetRetry configures the bounded retry applied to durable writes.
func SetRetry(attempts int, backoff time.Duration) {
	if attempts > 0 {
		retryAttempts = attempts
	}
	if backoff > 0 {
		retryBackoff = backoff
	}
}

// applyDurable applies the batch with sync, retrying transient failures
// with backoff. Exhaustion maps to Unavailable so callers never ack an
// unflushed write.
func applyDurable(apply func() error, op string) error {
	var err error
	for i := 0; i < retryAttempts; i++ {
		err = apply()
		if err == nil {
			return nil
		}
		metrics.AppendRetries.Inc()
		logger.Warn("durable_write_retry", "op", op, "attempt", i+1, "error", err)
		time.Sleep(retryBackoff << i)
	}
	return fmt.Errorf("%w: %s: %v", errdefs.ErrUnavailable, op, err)
}

// Append commits a new message to the group log. The returned message
// carries the assigned id, order key and timestamp. Re-sending an id
// that already committed returns the stored message unchanged.
func Append(actor, group string, in models.Message) (models.Message, error) {
	if err := membership.Authorize(actor, group, models.ActionWrite); err != nil {
		return models.Message{}, err
	}
	switch in.Type {
	case "":
		in.Type = models.TypeText
	case models.TypeText, models.TypeSystem:
	default:
		return models.Message{}, fmt.Errorf("%w: message type %q", errdefs.ErrInvalidReference, in.Type)
	}
	var content string
	if in.Content != nil {
		content = *in.Content
	}
	if err := validation.ValidateContent(content, in.Metadata); err != nil {
		return models.Message{}, fmt.Errorf("%s: %w", err, errdefs.ErrInvalidReference)
	}
	if in.ID != "" {
		if len(in.ID) > 128 || strings.Contains(in.ID, ":") {
			return models.Message{}, fmt.Errorf("%w: message id %q", errdefs.ErrInvalidReference, in.ID)
		}
		if existing, err := getByID(in.ID); err == nil {
			if existing.Group != group || existing.Sender != actor {
				return models.Message{}, fmt.Errorf("%w: message id %s", errdefs.ErrInvalidReference, in.ID)
			}
			return existing, nil
		}
	}
	if in.ReplyTo != "" {
		target, err := getByID(in.ReplyTo)
		if err != nil || target.Group != group {
			return models.Message{}, fmt.Errorf("%w: reply_to %s", errdefs.ErrInvalidReference, in.ReplyTo)
		}
	}

	msg := models.Message{
		ID:       in.ID,
		Group:    group,
		Sender:   actor,
		TS:       time.Now().UTC().UnixNano(),
		Type:     in.Type,
		Content:  &content,
		ReplyTo:  in.ReplyTo,
		Metadata: in.Metadata,
	}
	if msg.ID == "" {
		msg.ID = utils.GenID()
	}

	start := time.Now()
	s := groupSeq(group)
	s.mu.Lock()
	defer s.mu.Unlock()

	seq, err := s.next(group)
	if err != nil {
		return models.Message{}, err
	}
	msg.Seq = seq
	if err := commit(msg, "append"); err != nil {
		return models.Message{}, err
	}
	s.committed(seq)

	metrics.AppendsTotal.Inc()
	metrics.AppendSeconds.Observe(time.Since(start).Seconds())
	logger.Info("message_appended", "group", group, "msg", msg.ID, "seq", seq, "sender", actor)
	publish(EventNew, msg)
	return msg, nil
}

// Tombstone soft-deletes a message: content is nulled, id and order key
// survive so pagination stays stable. Sender may delete their own;
// anyone who can moderate the group may delete any.
func Tombstone(actor, group, id string) (models.Message, error) {
	msg, err := load(actor, group, id, models.ActionRead)
	if err != nil {
		return models.Message{}, err
	}
	if msg.Sender != actor {
		if err := membership.Authorize(actor, group, models.ActionModerate); err != nil {
			return models.Message{}, err
		}
	}

	// Same per-group lock as appends and reactions: the re-read under it
	// keeps a racing reaction commit from being overwritten by a stale
	// copy.
	s := groupSeq(group)
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, err = getByID(id)
	if err != nil {
		return models.Message{}, err
	}
	if msg.Tombstoned() {
		return msg, nil
	}
	msg.Type = models.TypeDeleted
	msg.Content = nil
	if err := commit(msg, "tombstone"); err != nil {
		return models.Message{}, err
	}
	metrics.TombstonesTotal.Inc()
	logger.Info("message_tombstoned", "group", group, "msg", id, "actor", actor)
	publish(EventDeleted, msg)
	return msg, nil
}

// Get returns a single message; tombstones are returned as-is.
func Get(actor, group, id string) (models.Message, error) {
	return load(actor, group, id, models.ActionRead)
}

// load authorizes the actor and fetches a message, checking it belongs
// to the named group.
func load(actor, group, id string, action models.Action) (models.Message, error) {
	if err := membership.Authorize(actor, group, action); err != nil {
		return models.Message{}, err
	}
	msg, err := getByID(id)
	if err != nil {
		return models.Message{}, err
	}
	if msg.Group != group {
		return models.Message{}, fmt.Errorf("%w: message %s", errdefs.ErrNotFound, id)
	}
	return msg, nil
}

func getByID(id string) (models.Message, error) {
	val, err := store.Get(store.MsgIDKey(id))
	if err != nil {
		if store.IsNotFound(err) {
			return models.Message{}, fmt.Errorf("%w: message %s", errdefs.ErrNotFound, id)
		}
		return models.Message{}, err
	}
	var msg models.Message
	if err := json.Unmarshal(val, &msg); err != nil {
		return models.Message{}, fmt.Errorf("corrupt message %s: %w", id, err)
	}
	return msg, nil
}

// commit writes the log record, the by-id record and a version entry in
// one synced batch.
func commit(msg models.Message, op string) error {
	val, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	logKey, err := store.MsgKey(msg.Group, msg.Seq)
	if err != nil {
		return err
	}
	verKey, err := store.VersionKey(msg.ID, time.Now().UTC().UnixNano(), atomic.AddUint64(&versionSeq, 1))
	if err != nil {
		return err
	}
	b := store.NewBatch()
	if err := b.Set([]byte(logKey), val, nil); err != nil {
		return err
	}
	if err := b.Set([]byte(store.MsgIDKey(msg.ID)), val, nil); err != nil {
		return err
	}
	if err := b.Set([]byte(verKey), val, nil); err != nil {
		return err
	}
	return applyDurable(func() error { return store.ApplyBatch(b, true) }, op)
}

// Versions lists the stored mutation history for a message, oldest
// first.
func Versions(actor, group, id string) ([]models.Message, error) {
	if _, err := load(actor, group, id, models.ActionRead); err != nil {
		return nil, err
	}
	vals, err := store.ListPrefix(store.VersionPrefix(id), 0)
	if err != nil {
		return nil, err
	}
	out := make([]models.Message, 0, len(vals))
	for _, v := range vals {
		var m models.Message
		if err := json.Unmarshal(v, &m); err != nil {
			return nil, fmt.Errorf("corrupt version for %s: %w", id, err)
		}
		out = append(out, m)
	}
	return out, nil
}
