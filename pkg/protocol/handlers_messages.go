package protocol

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"originchats/pkg/models"
	"originchats/pkg/perms"
	"originchats/pkg/plugin"
	"originchats/pkg/telemetry"
)

// allowedOnKnown is perms.Allowed with the unknown-channel deny rule: a
// channel that does not exist grants nothing, including default-allow
// kinds.
func (d *Dispatcher) allowedOnKnown(name string, roles []string, k perms.Kind) bool {
	ch, err := d.repo.GetChannel(name)
	if err != nil {
		return false
	}
	return perms.Allowed(ch, roles, k)
}

func (d *Dispatcher) messageNew(sess *Session, c *Command) Result {
	if c.Channel == "" || c.Content == "" {
		return ErrorResult("Invalid chat message format")
	}
	content := strings.TrimSpace(c.Content)
	if content == "" {
		return ErrorResult("Message content cannot be empty")
	}
	if len(content) > d.limits.MaxContent {
		return ErrorResult(fmt.Sprintf("Message too long. Maximum length is %d characters", d.limits.MaxContent))
	}
	if ok, wait := d.limiter.Allow(sess.Username); !ok {
		return RateLimitResult(wait)
	}
	roles, errRes := d.roles(sess)
	if errRes != nil {
		return errRes
	}
	if !d.allowedOnKnown(c.Channel, roles, perms.Send) {
		return ErrorResult("You do not have permission to send messages in this channel")
	}

	var replyRef *models.ReplyRef
	if c.ReplyTo != "" {
		target, err := d.repo.GetMessage(c.Channel, c.ReplyTo)
		if err != nil {
			return ErrorResult("The message you're trying to reply to was not found")
		}
		replyRef = &models.ReplyRef{ID: c.ReplyTo, User: target.User}
	}

	msg := models.Message{
		ID:        uuid.NewString(),
		User:      sess.Username,
		Content:   content,
		Timestamp: time.Now().UTC().UnixMilli(),
		Type:      "message",
		Pinned:    false,
		ReplyTo:   replyRef,
	}
	if err := d.repo.SaveMessage(c.Channel, msg); err != nil {
		return ErrorResult("Failed to save message")
	}

	d.plugins.Emit(plugin.EventNewMessage, plugin.Session{User: sess.Username, Roles: roles}, map[string]any{
		"content": content,
		"channel": c.Channel,
		"user":    sess.Username,
		"message": msg,
	})
	telemetry.PluginEvent(plugin.EventNewMessage)

	return Result{"cmd": "message_new", "message": msg, "channel": c.Channel, "global": true}
}

func (d *Dispatcher) typing(sess *Session, c *Command) Result {
	if c.Channel == "" {
		return ErrorResult("Channel name not provided")
	}
	if ok, wait := d.limiter.Allow(sess.Username); !ok {
		return RateLimitResult(wait)
	}
	d.plugins.Emit(plugin.EventTyping, plugin.Session{User: sess.Username, Roles: d.repo.GetUserRoles(sess.Username)}, map[string]any{
		"user":    sess.Username,
		"channel": c.Channel,
	})
	telemetry.PluginEvent(plugin.EventTyping)
	return Result{"cmd": "typing", "user": sess.Username, "channel": c.Channel, "global": true}
}

func (d *Dispatcher) messageEdit(sess *Session, c *Command) Result {
	if c.ID == "" || c.Channel == "" || c.Content == "" {
		return ErrorResult("Invalid message edit format")
	}
	if len(c.Content) > d.limits.MaxContent {
		return ErrorResult(fmt.Sprintf("Message too long. Maximum length is %d characters", d.limits.MaxContent))
	}
	if ok, wait := d.limiter.Allow(sess.Username); !ok {
		return RateLimitResult(wait)
	}
	msg, err := d.repo.GetMessage(c.Channel, c.ID)
	if err != nil {
		return ErrorResult("Message not found or cannot be edited")
	}
	roles, errRes := d.roles(sess)
	if errRes != nil {
		return errRes
	}
	// Only the author may edit; there is no cross-user edit path.
	if msg.User != sess.Username {
		return ErrorResult("You do not have permission to edit this message")
	}
	if !d.allowedOnKnown(c.Channel, roles, perms.EditOwn) {
		return ErrorResult("You do not have permission to edit your own message in this channel")
	}
	if err := d.repo.EditMessage(c.Channel, c.ID, c.Content); err != nil {
		return ErrorResult("Failed to edit message")
	}
	return Result{"cmd": "message_edit", "id": c.ID, "content": c.Content, "channel": c.Channel, "global": true}
}

func (d *Dispatcher) messageDelete(sess *Session, c *Command) Result {
	if c.ID == "" || c.Channel == "" {
		return ErrorResult("Invalid message delete format")
	}
	msg, err := d.repo.GetMessage(c.Channel, c.ID)
	if err != nil {
		return ErrorResult("Message not found or cannot be deleted")
	}
	roles, errRes := d.roles(sess)
	if errRes != nil {
		return errRes
	}
	if msg.User == sess.Username {
		if !d.allowedOnKnown(c.Channel, roles, perms.DeleteOwn) {
			return ErrorResult("You do not have permission to delete your own message in this channel")
		}
	} else {
		if !d.allowedOnKnown(c.Channel, roles, perms.Delete) {
			return ErrorResult("You do not have permission to delete this message")
		}
	}
	if err := d.repo.DeleteMessage(c.Channel, c.ID); err != nil {
		return ErrorResult("Failed to delete message")
	}
	return Result{"cmd": "message_delete", "id": c.ID, "channel": c.Channel, "global": true}
}

func (d *Dispatcher) reactionAdd(sess *Session, c *Command) Result {
	if c.ID == "" {
		return ErrorResult("Message ID is required")
	}
	if c.Emoji == "" {
		return ErrorResult("Emoji is required")
	}
	roles, errRes := d.roles(sess)
	if errRes != nil {
		return errRes
	}
	if !d.allowedOnKnown(c.Channel, roles, perms.React) {
		return ErrorResult("You do not have permission to add reactions to this message")
	}
	if err := d.repo.AddReaction(c.Channel, c.ID, c.Emoji, sess.Username); err != nil {
		return ErrorResult("Failed to add reaction")
	}
	return Result{"cmd": "message_react_add", "id": c.ID, "emoji": c.Emoji, "channel": c.Channel, "from": sess.Username, "global": true}
}

func (d *Dispatcher) reactionRemove(sess *Session, c *Command) Result {
	if c.ID == "" {
		return ErrorResult("Message ID is required")
	}
	if c.Emoji == "" {
		return ErrorResult("Emoji is required")
	}
	roles, errRes := d.roles(sess)
	if errRes != nil {
		return errRes
	}
	if !d.allowedOnKnown(c.Channel, roles, perms.React) {
		return ErrorResult("You do not have permission to remove reactions from this message")
	}
	if err := d.repo.RemoveReaction(c.Channel, c.ID, c.Emoji, sess.Username); err != nil {
		return ErrorResult("Failed to remove reaction")
	}
	return Result{"cmd": "message_react_remove", "id": c.ID, "emoji": c.Emoji, "channel": c.Channel, "from": sess.Username, "global": true}
}

// readAccess authorizes the read commands: the channel must be visible to
// the user's roles and of the text kind.
func (d *Dispatcher) readAccess(sess *Session, channel string) Result {
	user, err := d.repo.GetUser(sess.Username)
	if err != nil {
		return ErrorResult("User not found")
	}
	ch, err := d.repo.GetChannel(channel)
	if err != nil || !perms.CanRead(ch, user.Roles) {
		return ErrorResult("Access denied to this channel")
	}
	return nil
}

func (d *Dispatcher) messagesGet(sess *Session, c *Command) Result {
	if c.Channel == "" {
		return ErrorResult("Invalid channel name")
	}
	if errRes := d.readAccess(sess, c.Channel); errRes != nil {
		return errRes
	}
	limit := c.Limit
	if limit <= 0 {
		limit = d.limits.FetchDefault
	}
	msgs, err := d.repo.ListMessages(c.Channel, limit)
	if err != nil {
		return ErrorResult("Failed to load messages")
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return Result{"cmd": "messages_get", "channel": c.Channel, "messages": msgs}
}

func (d *Dispatcher) messageGet(sess *Session, c *Command) Result {
	if c.Channel == "" || c.ID == "" {
		return ErrorResult("Channel name and message ID are required")
	}
	if errRes := d.readAccess(sess, c.Channel); errRes != nil {
		return errRes
	}
	msg, err := d.repo.GetMessage(c.Channel, c.ID)
	if err != nil {
		return ErrorResult("Message not found")
	}
	return Result{"cmd": "message_get", "channel": c.Channel, "message": msg}
}

func (d *Dispatcher) messageReplies(sess *Session, c *Command) Result {
	if c.Channel == "" || c.ID == "" {
		return ErrorResult("Channel name and message ID are required")
	}
	if errRes := d.readAccess(sess, c.Channel); errRes != nil {
		return errRes
	}
	limit := c.Limit
	if limit <= 0 {
		limit = d.limits.RepliesDefault
	}
	replies, err := d.repo.GetReplies(c.Channel, c.ID, limit)
	if err != nil {
		return ErrorResult("Failed to load replies")
	}
	if replies == nil {
		replies = []models.Message{}
	}
	return Result{"cmd": "message_replies", "channel": c.Channel, "message_id": c.ID, "replies": replies}
}

func (d *Dispatcher) channelsGet(sess *Session) Result {
	user, err := d.repo.GetUser(sess.Username)
	if err != nil {
		return ErrorResult("User not found")
	}
	all, err := d.repo.ListChannels()
	if err != nil {
		return ErrorResult("Failed to load channels")
	}
	return Result{"cmd": "channels_get", "val": perms.Visible(all, user.Roles)}
}

func (d *Dispatcher) usersList() Result {
	users, err := d.repo.GetUsers()
	if err != nil {
		return ErrorResult("Failed to load users")
	}
	if users == nil {
		users = []models.UserInfo{}
	}
	return Result{"cmd": "users_list", "users": users}
}

func (d *Dispatcher) usersOnline() Result {
	if d.presence == nil {
		return ErrorResult("Server data not available")
	}
	online := make([]models.UserInfo, 0)
	for _, name := range d.presence.Online() {
		info, err := d.repo.UserInfo(name)
		if err != nil {
			continue
		}
		online = append(online, info)
	}
	return Result{"cmd": "users_online", "users": online}
}
