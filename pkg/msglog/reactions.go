package msglog

import (
	"fmt"

	"chatsync/pkg/errdefs"
	"chatsync/pkg/logger"
	"chatsync/pkg/models"
	"chatsync/pkg/validation"
)

// React records (actor, emoji) on a message. Duplicate reactions are a
// silent no-op; the stored message is returned either way.
func React(actor, group, id, emoji string) (models.Message, error) {
	return mutateReaction(actor, group, id, emoji, true)
}

// Unreact removes (actor, emoji). Removing an absent reaction is a
// silent no-op.
func Unreact(actor, group, id, emoji string) (models.Message, error) {
	return mutateReaction(actor, group, id, emoji, false)
}

func mutateReaction(actor, group, id, emoji string, add bool) (models.Message, error) {
	if err := validation.ValidateEmoji(emoji); err != nil {
		return models.Message{}, fmt.Errorf("%s: %w", err, errdefs.ErrInvalidReference)
	}
	if _, err := load(actor, group, id, models.ActionRead); err != nil {
		return models.Message{}, err
	}

	// Reaction writes contend on the same per-group lock as appends and
	// tombstones so two racing mutations cannot clobber each other's
	// read-modify-write.
	s := groupSeq(group)
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, err := getByID(id)
	if err != nil {
		return models.Message{}, err
	}
	if msg.Tombstoned() {
		return models.Message{}, fmt.Errorf("%w: message %s is deleted", errdefs.ErrInvalidReference, id)
	}
	var changed bool
	if add {
		changed = msg.AddReaction(actor, emoji)
	} else {
		changed = msg.RemoveReaction(actor, emoji)
	}
	if !changed {
		return msg, nil
	}
	if err := commit(msg, "react"); err != nil {
		return models.Message{}, err
	}
	logger.Info("message_reaction", "group", group, "msg", id, "user", actor, "emoji", emoji, "added", add)
	publish(EventUpdated, msg)
	return msg, nil
}
