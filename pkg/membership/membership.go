// Package membership is the authoritative record of which users belong
// to which groups and what they may do there. Every authorization
// decision in the engine routes through Authorize; no other package
// re-derives role logic.
package membership

import (
	"encoding/json"
	"fmt"
	"time"

	"chatsync/pkg/errdefs"
	"chatsync/pkg/logger"
	"chatsync/pkg/models"
	"chatsync/pkg/store"
)

// RevocationHook is invoked after a membership loses read capability
// (ban or leave) so live subscriptions can be force-dropped. The
// subscription registry installs it at startup.
type RevocationHook func(user, group string)

var revoke RevocationHook

// SetRevocationHook installs the hook; nil disables it.
func SetRevocationHook(h RevocationHook) { revoke = h }

func fireRevoke(user, group string) {
	if revoke != nil {
		revoke(user, group)
	}
}

// IsMember returns the membership row for (user, group).
func IsMember(user, group string) (models.Membership, error) {
	var m models.Membership
	b, err := store.Get(store.MemberKey(group, user))
	if err != nil {
		if store.IsNotFound(err) {
			return m, fmt.Errorf("membership %s/%s: %w", user, group, errdefs.ErrNotFound)
		}
		return m, err
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("corrupt membership %s/%s: %w", user, group, err)
	}
	return m, nil
}

// Authorize gates action for user on group. nil means allowed. A missing
// row yields NotFound; a banned row or an insufficient role yields
// Forbidden. This is the single policy entry point.
func Authorize(user, group string, action models.Action) error {
	m, err := IsMember(user, group)
	if err != nil {
		return err
	}
	if m.Banned {
		return fmt.Errorf("user %s banned in %s: %w", user, group, errdefs.ErrForbidden)
	}
	switch action {
	case models.ActionRead, models.ActionWrite:
		return nil
	case models.ActionModerate:
		if !models.CanModerate(m.Role) {
			return fmt.Errorf("role %s cannot moderate %s: %w", m.Role, group, errdefs.ErrForbidden)
		}
		return nil
	default:
		return fmt.Errorf("unknown action %q: %w", action, errdefs.ErrForbidden)
	}
}

// Join adds user to group. Re-joining is a no-op returning the existing
// row, never an error; a concurrent duplicate join resolves silently to
// the stored row. Roles above member are honored only for the group's
// creator (bootstrap of owner happens in CreateGroup).
func Join(user, group, requestedRole string) (models.Membership, error) {
	if _, err := GetUser(user); err != nil {
		return models.Membership{}, err
	}
	g, err := GetGroup(group)
	if err != nil {
		return models.Membership{}, err
	}
	if existing, err := IsMember(user, group); err == nil {
		return existing, nil
	}

	role := models.RoleMember
	if requestedRole != "" && requestedRole != models.RoleMember {
		if !models.ValidRole(requestedRole) || requestedRole == models.RoleOwner || g.Creator != user {
			return models.Membership{}, fmt.Errorf("cannot join %s as %s: %w", group, requestedRole, errdefs.ErrForbidden)
		}
		role = requestedRole
	}

	m := models.Membership{
		User:     user,
		Group:    group,
		Role:     role,
		JoinedTS: time.Now().UTC().UnixNano(),
	}
	if err := putMembership(m); err != nil {
		return models.Membership{}, err
	}
	logger.Info("member_joined", "group", group, "user", user, "role", role)
	return m, nil
}

// Leave removes the membership row. The user's live subscriptions to
// the group are dropped.
func Leave(user, group string) error {
	if _, err := IsMember(user, group); err != nil {
		return err
	}
	b := store.NewBatch()
	b.Delete([]byte(store.MemberKey(group, user)), nil)
	b.Delete([]byte(store.MemberOfKey(user, group)), nil)
	if err := store.ApplyBatch(b, true); err != nil {
		return err
	}
	logger.Info("member_left", "group", group, "user", user)
	fireRevoke(user, group)
	return nil
}

// SetBan sets or clears the ban flag on target's membership. The actor
// must strictly outrank the target and may not act on themselves. A
// fresh ban drops the target's live subscriptions and leaves a
// notification record.
func SetBan(actor, target, group string, banned bool) (models.Membership, error) {
	m, err := changeMember(actor, target, group)
	if err != nil {
		return models.Membership{}, err
	}
	if m.Banned == banned {
		return m, nil
	}
	m.Banned = banned
	if err := putMembership(m); err != nil {
		return models.Membership{}, err
	}
	verb := "unbanned"
	if banned {
		verb = "banned"
		fireRevoke(target, group)
	}
	logger.Info("member_ban_changed", "group", group, "target", target, "actor", actor, "banned", banned)
	notify(target, group, models.NotifSystem,
		fmt.Sprintf("you were %s", verb),
		map[string]any{"actor": actor, "banned": banned})
	return m, nil
}

// SetRole changes target's role. Same outranking rule as SetBan, and
// the actor cannot grant a rank at or above their own.
func SetRole(actor, target, group, role string) (models.Membership, error) {
	if !models.ValidRole(role) || role == models.RoleOwner {
		return models.Membership{}, fmt.Errorf("invalid role %q: %w", role, errdefs.ErrInvalidReference)
	}
	m, err := changeMember(actor, target, group)
	if err != nil {
		return models.Membership{}, err
	}
	am, _ := IsMember(actor, group)
	if models.RoleRank(role) >= models.RoleRank(am.Role) {
		return models.Membership{}, fmt.Errorf("cannot grant role %s: %w", role, errdefs.ErrForbidden)
	}
	if m.Role == role {
		return m, nil
	}
	m.Role = role
	if err := putMembership(m); err != nil {
		return models.Membership{}, err
	}
	logger.Info("member_role_changed", "group", group, "target", target, "actor", actor, "role", role)
	notify(target, group, models.NotifActivity,
		fmt.Sprintf("your role is now %s", role),
		map[string]any{"actor": actor, "role": role})
	return m, nil
}

// changeMember enforces the shared moderation preconditions: both rows
// exist, actor != target, actor strictly outranks target.
func changeMember(actor, target, group string) (models.Membership, error) {
	if actor == target {
		return models.Membership{}, fmt.Errorf("cannot moderate yourself: %w", errdefs.ErrForbidden)
	}
	am, err := IsMember(actor, group)
	if err != nil {
		return models.Membership{}, err
	}
	if am.Banned {
		return models.Membership{}, fmt.Errorf("actor %s banned: %w", actor, errdefs.ErrForbidden)
	}
	tm, err := IsMember(target, group)
	if err != nil {
		return models.Membership{}, err
	}
	if !models.Outranks(am.Role, tm.Role) {
		return models.Membership{}, fmt.Errorf("%s does not outrank %s: %w", am.Role, tm.Role, errdefs.ErrForbidden)
	}
	return tm, nil
}

// Members returns all membership rows of a group.
func Members(group string) ([]models.Membership, error) {
	if _, err := GetGroup(group); err != nil {
		return nil, err
	}
	vals, err := store.ListPrefix(store.MemberPrefix(group), 0)
	if err != nil {
		return nil, err
	}
	out := make([]models.Membership, 0, len(vals))
	for _, v := range vals {
		var m models.Membership
		if err := json.Unmarshal(v, &m); err != nil {
			return nil, fmt.Errorf("corrupt membership in %s: %w", group, err)
		}
		out = append(out, m)
	}
	return out, nil
}

func putMembership(m models.Membership) error {
	val, err := json.Marshal(m)
	if err != nil {
		return err
	}
	b := store.NewBatch()
	b.Set([]byte(store.MemberKey(m.Group, m.User)), val, nil)
	b.Set([]byte(store.MemberOfKey(m.User, m.Group)), []byte(m.Group), nil)
	return store.ApplyBatch(b, true)
}
