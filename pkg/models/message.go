package models

// ReplyRef points at the message a reply targets. It is captured when the
// reply is created and is not updated if the target is later edited or
// deleted.
type ReplyRef struct {
	ID   string `json:"id"`
	User string `json:"user"`
}

// Message is one entry in a channel log. IDs are unique within a channel;
// append order is chronological order.
type Message struct {
	ID        string `json:"id"`
	User      string `json:"user"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
	Type      string `json:"type"`
	Pinned    bool   `json:"pinned"`
	// Edited is set on the first successful edit and never reverted.
	Edited  bool      `json:"edited,omitempty"`
	ReplyTo *ReplyRef `json:"reply_to,omitempty"`
	// Reactions maps emoji -> usernames. Empty emoji entries are pruned.
	Reactions map[string][]string `json:"reactions,omitempty"`
}

// HasReaction reports whether user already reacted with emoji.
func (m *Message) HasReaction(emoji, user string) bool {
	for _, u := range m.Reactions[emoji] {
		if u == user {
			return true
		}
	}
	return false
}
