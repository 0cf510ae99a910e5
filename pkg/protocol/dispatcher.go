// Package protocol implements the command dispatcher: the state machine
// that maps inbound command packets to validated, authorized, rate-limited
// actions and result envelopes. Every command is a one-shot
// request/response; there is no multi-step handshake beyond the one-time
// authentication exchange handled by the transport.
package protocol

import (
	"encoding/json"
	"fmt"

	"originchats/pkg/models"
	"originchats/pkg/plugin"
	"originchats/pkg/ratelimit"
	"originchats/pkg/telemetry"
)

// RoleOwner gates the administrative commands (plugin and rate-limit
// management).
const RoleOwner = "owner"

// Repository is the storage boundary the dispatcher mutates through.
// Absent entities surface as store.ErrNotFound, never as panics or
// connection failures.
type Repository interface {
	GetUser(name string) (models.User, error)
	GetUserRoles(name string) []string
	GetUsers() ([]models.UserInfo, error)
	UserInfo(name string) (models.UserInfo, error)
	GetChannel(name string) (models.Channel, error)
	ListChannels() ([]models.Channel, error)
	SaveMessage(channel string, m models.Message) error
	GetMessage(channel, id string) (models.Message, error)
	ListMessages(channel string, limit int) ([]models.Message, error)
	EditMessage(channel, id, content string) error
	DeleteMessage(channel, id string) error
	AddReaction(channel, id, emoji, user string) error
	RemoveReaction(channel, id, emoji, user string) error
	GetReplies(channel, id string, limit int) ([]models.Message, error)
}

// Presence reports the usernames behind currently authenticated
// connections. Implemented by the transport hub.
type Presence interface {
	Online() []string
}

// Limits holds the payload shape limits consulted before any side effect.
type Limits struct {
	MaxContent     int
	FetchDefault   int
	RepliesDefault int
}

func (l *Limits) normalize() {
	if l.MaxContent <= 0 {
		l.MaxContent = 2000
	}
	if l.FetchDefault <= 0 {
		l.FetchDefault = 100
	}
	if l.RepliesDefault <= 0 {
		l.RepliesDefault = 50
	}
}

// Dispatcher routes decoded commands. Safe for concurrent use from many
// connections: it holds no per-command state and its collaborators
// serialize their own mutations.
type Dispatcher struct {
	repo     Repository
	limiter  *ratelimit.Limiter
	plugins  *plugin.Registry
	presence Presence
	limits   Limits
}

// New builds a dispatcher. presence may be nil until the transport is
// wired; users_online then reports server data unavailable.
func New(repo Repository, limiter *ratelimit.Limiter, plugins *plugin.Registry, presence Presence, limits Limits) *Dispatcher {
	limits.normalize()
	return &Dispatcher{
		repo:     repo,
		limiter:  limiter,
		plugins:  plugins,
		presence: presence,
		limits:   limits,
	}
}

// SetPresence wires the transport hub after construction.
func (d *Dispatcher) SetPresence(p Presence) { d.presence = p }

// Dispatch decodes and executes one raw command, returning exactly one
// result envelope. Malformed or unknown commands produce error results;
// they never terminate the connection.
func (d *Dispatcher) Dispatch(sess *Session, raw []byte) Result {
	var c Command
	if err := json.Unmarshal(raw, &c); err != nil {
		telemetry.CommandError("decode")
		return ErrorResult("Invalid message format: expected a JSON object")
	}
	res := d.dispatch(sess, &c)
	telemetry.CommandProcessed(c.Cmd)
	switch res.Cmd() {
	case "error":
		telemetry.CommandError(c.Cmd)
	case "rate_limit":
		telemetry.RateLimited()
	}
	return res
}

func (d *Dispatcher) dispatch(sess *Session, c *Command) Result {
	if c.Cmd == "ping" {
		return Result{"cmd": "pong", "val": "pong"}
	}
	if !sess.Authenticated || sess.Username == "" {
		return ErrorResult("User not authenticated")
	}
	switch c.Cmd {
	case "message_new":
		return d.messageNew(sess, c)
	case "typing":
		return d.typing(sess, c)
	case "message_edit":
		return d.messageEdit(sess, c)
	case "message_delete":
		return d.messageDelete(sess, c)
	case "message_react_add":
		return d.reactionAdd(sess, c)
	case "message_react_remove":
		return d.reactionRemove(sess, c)
	case "messages_get":
		return d.messagesGet(sess, c)
	case "message_get":
		return d.messageGet(sess, c)
	case "message_replies":
		return d.messageReplies(sess, c)
	case "channels_get":
		return d.channelsGet(sess)
	case "users_list":
		return d.usersList()
	case "users_online":
		return d.usersOnline()
	case "plugins_list":
		return d.pluginsList(sess)
	case "plugins_reload":
		return d.pluginsReload(sess, c)
	case "rate_limit_status":
		return d.rateLimitStatus(sess, c)
	case "rate_limit_reset":
		return d.rateLimitReset(sess, c)
	default:
		return ErrorResult(fmt.Sprintf("Unknown command: %s", c.Cmd))
	}
}

// roles resolves the session user's roles, or an error result when the
// user has none on record.
func (d *Dispatcher) roles(sess *Session) ([]string, Result) {
	roles := d.repo.GetUserRoles(sess.Username)
	if len(roles) == 0 {
		return nil, ErrorResult("User roles not found")
	}
	return roles, nil
}

// isOwner reports whether the session's user carries the owner role.
func (d *Dispatcher) isOwner(sess *Session) bool {
	for _, r := range d.repo.GetUserRoles(sess.Username) {
		if r == RoleOwner {
			return true
		}
	}
	return false
}
