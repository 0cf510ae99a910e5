package models

// BannedRole is the role name that marks a user as banned. Banned users
// fail authentication and are excluded from user listings.
const BannedRole = "banned"

// User is the stored record for one identity, keyed by username. The first
// role in Roles determines the display color.
type User struct {
	Roles []string `json:"roles"`
}

// HasRole reports whether the user carries the named role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Banned reports whether the user carries the banned role.
func (u *User) Banned() bool { return u.HasRole(BannedRole) }

// UserInfo is the wire representation of a user, as sent in users_list,
// users_online and user_connect packets.
type UserInfo struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	Color    string   `json:"color,omitempty"`
}

// Role describes a named group. Roles are looked up by name only; there is
// no hierarchy.
type Role struct {
	Color       string `json:"color,omitempty"`
	Description string `json:"description,omitempty"`
}
