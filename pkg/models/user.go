package models

// Presence statuses. Users are never hard-deleted; status is the only
// lifecycle marker.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
	StatusAway    = "away"
)

type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Status      string `json:"status"`
	// LastActive is the last activity timestamp (ns); maintained by the
	// gateway and swept by the presence runner.
	LastActive int64 `json:"last_active"`
}

// ValidStatus reports whether s is a known presence status.
func ValidStatus(s string) bool {
	return s == StatusOnline || s == StatusOffline || s == StatusAway
}
