package protocol

// Session is the per-connection state consulted on every dispatch. It is
// populated exactly once by the authentication flow before any command is
// dispatched for the connection, and only read afterwards.
type Session struct {
	// ID identifies the connection, not the user.
	ID            string
	Authenticated bool
	Username      string
}
