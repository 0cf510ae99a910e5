package protocol

import "time"

// Command is one decoded inbound packet. All commands share this flat
// shape; the Cmd discriminator decides which fields are meaningful.
type Command struct {
	Cmd       string `json:"cmd"`
	Channel   string `json:"channel,omitempty"`
	Content   string `json:"content,omitempty"`
	ID        string `json:"id,omitempty"`
	ReplyTo   string `json:"reply_to,omitempty"`
	Emoji     string `json:"emoji,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	User      string `json:"user,omitempty"`
	Plugin    string `json:"plugin,omitempty"`
	Validator string `json:"validator,omitempty"`
}

// Result is the outbound envelope for one command. Every result carries a
// cmd field echoing the action name or "error"; results destined for all
// connections carry global: true.
type Result map[string]any

// Cmd returns the result's discriminator.
func (r Result) Cmd() string {
	s, _ := r["cmd"].(string)
	return s
}

// IsGlobal reports whether the transport should fan the result out to all
// connections.
func (r Result) IsGlobal() bool {
	g, _ := r["global"].(bool)
	return g
}

// ErrorResult builds a typed error envelope with a human-readable message.
func ErrorResult(msg string) Result {
	return Result{"cmd": "error", "val": msg}
}

// RateLimitResult builds the rate-limited envelope. The wait hint is
// reported in milliseconds so callers can back off.
func RateLimitResult(wait time.Duration) Result {
	return Result{"cmd": "rate_limit", "length": wait.Milliseconds()}
}
