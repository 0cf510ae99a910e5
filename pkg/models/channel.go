package models

// ChannelTypeText is the only channel kind whose message log is readable
// through the protocol.
const ChannelTypeText = "text"

// Channel is a named message stream with a per-kind permission map.
// Channel names are globally unique. Permission sets contain role names,
// never user IDs.
type Channel struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Position int    `json:"position,omitempty"`
	// Permissions maps a permission kind (view, send, delete, edit_own,
	// delete_own, react) to the roles allowed. Defaulting for absent kinds
	// is decided by the perms package, not here.
	Permissions map[string][]string `json:"permissions,omitempty"`
}
