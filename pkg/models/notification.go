package models

// Notification kinds.
const (
	NotifActivity = "activity"
	NotifSystem   = "system"
	NotifCustom   = "custom"
)

// Notification is a stored per-user record of something that happened in
// a group (ban, role change). Only storage and listing live here;
// delivery to devices is someone else's problem.
type Notification struct {
	ID        string         `json:"id"`
	Group     string         `json:"group"`
	User      string         `json:"user"`
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedTS int64          `json:"created_ts"`
}
