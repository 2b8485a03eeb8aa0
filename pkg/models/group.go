package models

// Group types mirror the product surface: one-to-one chats, open
// communities, and project rooms.
const (
	GroupDirect    = "direct"
	GroupCommunity = "community"
	GroupProject   = "project"
)

type Group struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Creator   string `json:"creator"`
	CreatedTS int64  `json:"created_ts"`
}

// ValidGroupType reports whether t is a known group type.
func ValidGroupType(t string) bool {
	return t == GroupDirect || t == GroupCommunity || t == GroupProject
}
