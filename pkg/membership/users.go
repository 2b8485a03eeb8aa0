package membership

import (
	"encoding/json"
	"fmt"
	"time"

	"chatsync/pkg/errdefs"
	"chatsync/pkg/logger"
	"chatsync/pkg/models"
	"chatsync/pkg/store"
	"chatsync/pkg/utils"
	"chatsync/pkg/validation"
)

// CreateUser registers a profile. Signup is idempotent: a second create
// for an existing id returns the stored profile unchanged.
func CreateUser(u models.User) (models.User, error) {
	if err := validation.ValidateUser(u); err != nil {
		return models.User{}, fmt.Errorf("%s: %w", err, errdefs.ErrInvalidReference)
	}
	if u.ID != "" {
		if existing, err := GetUser(u.ID); err == nil {
			return existing, nil
		}
	} else {
		u.ID = utils.GenUserID()
	}
	if u.Status == "" {
		u.Status = models.StatusOffline
	}
	if u.LastActive == 0 {
		u.LastActive = time.Now().UTC().UnixNano()
	}
	val, err := json.Marshal(u)
	if err != nil {
		return models.User{}, err
	}
	if err := store.Set(store.UserKey(u.ID), val, true); err != nil {
		return models.User{}, err
	}
	logger.Info("user_created", "user", u.ID, "username", u.Username)
	return u, nil
}

// GetUser returns a profile by id.
func GetUser(id string) (models.User, error) {
	var u models.User
	b, err := store.Get(store.UserKey(id))
	if err != nil {
		if store.IsNotFound(err) {
			return u, fmt.Errorf("user %s: %w", id, errdefs.ErrNotFound)
		}
		return u, err
	}
	if err := json.Unmarshal(b, &u); err != nil {
		return u, fmt.Errorf("corrupt user %s: %w", id, err)
	}
	return u, nil
}

// SetPresence transitions a user's status and stamps last_active when
// the user comes online.
func SetPresence(id, status string) (models.User, error) {
	if !models.ValidStatus(status) {
		return models.User{}, fmt.Errorf("invalid status %q: %w", status, errdefs.ErrInvalidReference)
	}
	u, err := GetUser(id)
	if err != nil {
		return models.User{}, err
	}
	if u.Status == status {
		return u, nil
	}
	u.Status = status
	if status == models.StatusOnline {
		u.LastActive = time.Now().UTC().UnixNano()
	}
	if err := putUser(u); err != nil {
		return models.User{}, err
	}
	logger.Debug("presence_changed", "user", id, "status", status)
	return u, nil
}

// Touch stamps last_active for an active user.
func Touch(id string) error {
	u, err := GetUser(id)
	if err != nil {
		return err
	}
	u.LastActive = time.Now().UTC().UnixNano()
	return putUser(u)
}

// ListUsers returns all profiles; the presence sweeper walks this.
func ListUsers() ([]models.User, error) {
	vals, err := store.ListPrefix(store.UserPrefix, 0)
	if err != nil {
		return nil, err
	}
	out := make([]models.User, 0, len(vals))
	for _, v := range vals {
		var u models.User
		if err := json.Unmarshal(v, &u); err != nil {
			return nil, fmt.Errorf("corrupt user record: %w", err)
		}
		out = append(out, u)
	}
	return out, nil
}

func putUser(u models.User) error {
	val, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return store.Set(store.UserKey(u.ID), val, true)
}
