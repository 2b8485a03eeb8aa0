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

// CreateGroup writes the group metadata and the creator's owner
// membership in one durable batch, so a group can never exist without
// its owner row.
func CreateGroup(creator, name, typ string) (models.Group, error) {
	if err := validation.ValidateGroup(name, typ); err != nil {
		return models.Group{}, fmt.Errorf("%s: %w", err, errdefs.ErrInvalidReference)
	}
	if _, err := GetUser(creator); err != nil {
		return models.Group{}, err
	}
	g := models.Group{
		ID:        utils.GenGroupID(),
		Name:      name,
		Type:      typ,
		Creator:   creator,
		CreatedTS: time.Now().UTC().UnixNano(),
	}
	gval, err := json.Marshal(g)
	if err != nil {
		return models.Group{}, err
	}
	m := models.Membership{
		User:     creator,
		Group:    g.ID,
		Role:     models.RoleOwner,
		JoinedTS: g.CreatedTS,
	}
	mval, err := json.Marshal(m)
	if err != nil {
		return models.Group{}, err
	}
	b := store.NewBatch()
	b.Set([]byte(store.GroupMetaKey(g.ID)), gval, nil)
	b.Set([]byte(store.MemberKey(g.ID, creator)), mval, nil)
	b.Set([]byte(store.MemberOfKey(creator, g.ID)), []byte(g.ID), nil)
	if err := store.ApplyBatch(b, true); err != nil {
		return models.Group{}, err
	}
	logger.Info("group_created", "group", g.ID, "type", typ, "creator", creator)
	return g, nil
}

// GetGroup returns group metadata.
func GetGroup(id string) (models.Group, error) {
	var g models.Group
	b, err := store.Get(store.GroupMetaKey(id))
	if err != nil {
		if store.IsNotFound(err) {
			return g, fmt.Errorf("group %s: %w", id, errdefs.ErrNotFound)
		}
		return g, err
	}
	if err := json.Unmarshal(b, &g); err != nil {
		return g, fmt.Errorf("corrupt group %s: %w", id, err)
	}
	return g, nil
}

// GroupsFor returns the groups a user belongs to, via the reverse
// index, in stable id order.
func GroupsFor(user string) ([]models.Group, error) {
	if _, err := GetUser(user); err != nil {
		return nil, err
	}
	ids, err := store.ListPrefix(store.MemberOfPrefix(user), 0)
	if err != nil {
		return nil, err
	}
	out := make([]models.Group, 0, len(ids))
	for _, id := range ids {
		g, err := GetGroup(string(id))
		if err != nil {
			// tolerate index entries whose group is gone
			continue
		}
		out = append(out, g)
	}
	return out, nil
}
