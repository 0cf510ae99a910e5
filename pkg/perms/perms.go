// Package perms evaluates channel permissions for role sets. Evaluation is
// a pure function of the channel's permission map; there is no role
// hierarchy, only flat set-membership tests.
package perms

import "originchats/pkg/models"

// Kind enumerates the recognized permission kinds.
type Kind string

const (
	View      Kind = "view"
	Send      Kind = "send"
	Delete    Kind = "delete"
	EditOwn   Kind = "edit_own"
	DeleteOwn Kind = "delete_own"
	React     Kind = "react"
)

// defaultAllow reports the policy for a kind absent from a channel's
// permission map: view/send/delete default to "no roles allowed",
// edit_own/delete_own/react default to "all roles allowed".
func defaultAllow(k Kind) bool {
	switch k {
	case EditOwn, DeleteOwn, React:
		return true
	default:
		return false
	}
}

// Allowed reports whether any of the roles grants kind on the channel.
func Allowed(ch models.Channel, roles []string, k Kind) bool {
	allowed, ok := ch.Permissions[string(k)]
	if !ok {
		return defaultAllow(k)
	}
	for _, r := range roles {
		for _, a := range allowed {
			if r == a {
				return true
			}
		}
	}
	return false
}

// Visible filters channels down to those the role set may view, keeping
// input order.
func Visible(channels []models.Channel, roles []string) []models.Channel {
	out := make([]models.Channel, 0, len(channels))
	for _, ch := range channels {
		if Allowed(ch, roles, View) {
			out = append(out, ch)
		}
	}
	return out
}

// CanRead reports whether the role set may read a channel's log through
// the protocol: the channel must be visible and of the text kind.
func CanRead(ch models.Channel, roles []string) bool {
	return ch.Type == models.ChannelTypeText && Allowed(ch, roles, View)
}
