package models

// Roles in rank order. SetBan and SetRole require the actor to strictly
// outrank the target.
const (
	RoleOwner     = "owner"
	RoleAdmin     = "admin"
	RoleModerator = "moderator"
	RoleMember    = "member"
)

// Actions gated by Membership.Authorize.
type Action string

const (
	ActionRead     Action = "read"
	ActionWrite    Action = "write"
	ActionModerate Action = "moderate"
)

// Membership is the authorization relation between a user and a group.
// At most one row exists per (user, group); a banned member keeps the
// row but loses read/write capability.
type Membership struct {
	User     string `json:"user"`
	Group    string `json:"group"`
	Role     string `json:"role"`
	Banned   bool   `json:"banned"`
	JoinedTS int64  `json:"joined_ts"`
}

var roleRank = map[string]int{
	RoleMember:    0,
	RoleModerator: 1,
	RoleAdmin:     2,
	RoleOwner:     3,
}

// ValidRole reports whether r is a known role.
func ValidRole(r string) bool {
	_, ok := roleRank[r]
	return ok
}

// RoleRank returns the numeric rank of a role; unknown roles rank lowest.
func RoleRank(r string) int { return roleRank[r] }

// CanModerate reports whether the role may perform moderate actions.
func CanModerate(role string) bool { return roleRank[role] >= roleRank[RoleModerator] }

// Outranks reports whether role a is strictly above role b.
func Outranks(a, b string) bool { return roleRank[a] > roleRank[b] }
