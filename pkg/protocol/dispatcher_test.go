package protocol

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"originchats/pkg/models"
	"originchats/pkg/plugin"
	"originchats/pkg/ratelimit"
	"originchats/pkg/store"
)

type fakePresence struct{ names []string }

func (f *fakePresence) Online() []string { return f.names }

type fixture struct {
	d  *Dispatcher
	st *store.Store
}

func newFixture(t *testing.T, rl ratelimit.Config) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.SaveRole("owner", models.Role{Color: "#ffd700"}))
	require.NoError(t, st.SaveRole("user", models.Role{}))
	_, err = st.AddUser("alice", []string{"user"})
	require.NoError(t, err)
	_, err = st.AddUser("bob", []string{"user"})
	require.NoError(t, err)
	_, err = st.AddUser("root", []string{"owner"})
	require.NoError(t, err)

	require.NoError(t, st.SaveChannel(models.Channel{
		Name: "general", Type: "text", Position: 0,
		Permissions: map[string][]string{"view": {"user", "owner"}, "send": {"user", "owner"}},
	}))
	require.NoError(t, st.SaveChannel(models.Channel{
		Name: "staff", Type: "text", Position: 1,
		Permissions: map[string][]string{"view": {"owner"}, "send": {"owner"}},
	}))

	d := New(st, ratelimit.New(rl), plugin.NewRegistry(), &fakePresence{}, Limits{MaxContent: 100})
	return &fixture{d: d, st: st}
}

func session(user string) *Session {
	return &Session{ID: "conn-1", Authenticated: user != "", Username: user}
}

func dispatch(t *testing.T, f *fixture, sess *Session, cmd map[string]any) Result {
	t.Helper()
	raw, err := json.Marshal(cmd)
	require.NoError(t, err)
	return f.d.Dispatch(sess, raw)
}

func assertError(t *testing.T, res Result, msg string) {
	t.Helper()
	assert.Equal(t, "error", res.Cmd())
	assert.Equal(t, msg, res["val"])
}

func TestPingBeforeAuth(t *testing.T) {
	f := newFixture(t, ratelimit.Config{Enabled: false})
	res := dispatch(t, f, session(""), map[string]any{"cmd": "ping"})
	assert.Equal(t, "pong", res.Cmd())
	assert.False(t, res.IsGlobal())
}

func TestUnauthenticatedRejected(t *testing.T) {
	f := newFixture(t, ratelimit.Config{Enabled: false})
	res := dispatch(t, f, session(""), map[string]any{"cmd": "message_new", "channel": "general", "content": "hi"})
	assertError(t, res, "User not authenticated")
}

func TestMalformedPacket(t *testing.T) {
	f := newFixture(t, ratelimit.Config{Enabled: false})
	res := f.d.Dispatch(session("alice"), []byte("not json"))
	assertError(t, res, "Invalid message format: expected a JSON object")
}

func TestUnknownCommand(t *testing.T) {
	f := newFixture(t, ratelimit.Config{Enabled: false})
	res := dispatch(t, f, session("alice"), map[string]any{"cmd": "frobnicate"})
	assertError(t, res, "Unknown command: frobnicate")
}

func TestMessageNew(t *testing.T) {
	f := newFixture(t, ratelimit.Config{Enabled: false})
	res := dispatch(t, f, session("alice"), map[string]any{"cmd": "message_new", "channel": "general", "content": "hello world"})

	require.Equal(t, "message_new", res.Cmd())
	assert.True(t, res.IsGlobal())
	assert.Equal(t, "general", res["channel"])

	msg, ok := res["message"].(models.Message)
	require.True(t, ok)
	assert.Equal(t, "alice", msg.User)
	assert.Equal(t, "hello world", msg.Content)
	assert.NotEmpty(t, msg.ID)

	// persisted
	stored, err := f.st.GetMessage("general", msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello world", stored.Content)
}

func TestMessageNewValidation(t *testing.T) {
	f := newFixture(t, ratelimit.Config{Enabled: false})
	alice := session("alice")

	res := dispatch(t, f, alice, map[string]any{"cmd": "message_new", "channel": "general", "content": "   "})
	assertError(t, res, "Message content cannot be empty")

	res = dispatch(t, f, alice, map[string]any{"cmd": "message_new", "content": "hi"})
	assertError(t, res, "Invalid chat message format")

	res = dispatch(t, f, alice, map[string]any{"cmd": "message_new", "channel": "general"})
	assertError(t, res, "Invalid chat message format")

	long := make([]byte, 101)
	for i := range long {
		long[i] = 'a'
	}
	res = dispatch(t, f, alice, map[string]any{"cmd": "message_new", "channel": "general", "content": string(long)})
	assertError(t, res, "Message too long. Maximum length is 100 characters")
}

func TestMessageNewPermissionDenied(t *testing.T) {
	f := newFixture(t, ratelimit.Config{Enabled: false})
	res := dispatch(t, f, session("alice"), map[string]any{"cmd": "message_new", "channel": "staff", "content": "hi"})
	assertError(t, res, "You do not have permission to send messages in this channel")

	// unknown channels behave like forbidden ones
	res = dispatch(t, f, session("alice"), map[string]any{"cmd": "message_new", "channel": "ghost", "content": "hi"})
	assertError(t, res, "You do not have permission to send messages in this channel")
}

func TestMessageNewReply(t *testing.T) {
	f := newFixture(t, ratelimit.Config{Enabled: false})
	alice := session("alice")

	res := dispatch(t, f, alice, map[string]any{"cmd": "message_new", "channel": "general", "content": "root"})
	rootID := res["message"].(models.Message).ID

	res = dispatch(t, f, alice, map[string]any{"cmd": "message_new", "channel": "general", "content": "re", "reply_to": rootID})
	require.Equal(t, "message_new", res.Cmd())
	reply := res["message"].(models.Message)
	require.NotNil(t, reply.ReplyTo)
	assert.Equal(t, rootID, reply.ReplyTo.ID)
	assert.Equal(t, "alice", reply.ReplyTo.User)

	res = dispatch(t, f, alice, map[string]any{"cmd": "message_new", "channel": "general", "content": "re", "reply_to": "missing"})
	assertError(t, res, "The message you're trying to reply to was not found")
}

func TestRateLimitedSend(t *testing.T) {
	f := newFixture(t, ratelimit.Config{Enabled: true, MessagesPerMinute: 30, BurstLimit: 1, Cooldown: 60 * time.Second})
	alice := session("alice")

	res := dispatch(t, f, alice, map[string]any{"cmd": "message_new", "channel": "general", "content": "one"})
	require.Equal(t, "message_new", res.Cmd())

	res = dispatch(t, f, alice, map[string]any{"cmd": "message_new", "channel": "general", "content": "two"})
	require.Equal(t, "rate_limit", res.Cmd())
	assert.Equal(t, int64(60000), res["length"])

	// denied sends must not be persisted
	msgs, err := f.st.ListMessages("general", 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestMessageEdit(t *testing.T) {
	f := newFixture(t, ratelimit.Config{Enabled: false})
	alice := session("alice")

	res := dispatch(t, f, alice, map[string]any{"cmd": "message_new", "channel": "general", "content": "v1"})
	id := res["message"].(models.Message).ID

	res = dispatch(t, f, alice, map[string]any{"cmd": "message_edit", "channel": "general", "id": id, "content": "v2"})
	require.Equal(t, "message_edit", res.Cmd())
	assert.True(t, res.IsGlobal())
	assert.Equal(t, "v2", res["content"])

	stored, err := f.st.GetMessage("general", id)
	require.NoError(t, err)
	assert.Equal(t, "v2", stored.Content)
	assert.True(t, stored.Edited)
}

func TestMessageEditNeverCrossUser(t *testing.T) {
	f := newFixture(t, ratelimit.Config{Enabled: false})

	res := dispatch(t, f, session("alice"), map[string]any{"cmd": "message_new", "channel": "general", "content": "mine"})
	id := res["message"].(models.Message).ID

	// even the owner role cannot edit someone else's message
	res = dispatch(t, f, session("root"), map[string]any{"cmd": "message_edit", "channel": "general", "id": id, "content": "hacked"})
	assertError(t, res, "You do not have permission to edit this message")

	stored, err := f.st.GetMessage("general", id)
	require.NoError(t, err)
	assert.Equal(t, "mine", stored.Content)
}

func TestMessageEditMissing(t *testing.T) {
	f := newFixture(t, ratelimit.Config{Enabled: false})
	res := dispatch(t, f, session("alice"), map[string]any{"cmd": "message_edit", "channel": "general", "id": "ghost", "content": "x"})
	assertError(t, res, "Message not found or cannot be edited")
}

func TestMessageDeleteOwn(t *testing.T) {
	f := newFixture(t, ratelimit.Config{Enabled: false})
	alice := session("alice")

	res := dispatch(t, f, alice, map[string]any{"cmd": "message_new", "channel": "general", "content": "bye"})
	id := res["message"].(models.Message).ID

	res = dispatch(t, f, alice, map[string]any{"cmd": "message_delete", "channel": "general", "id": id})
	require.Equal(t, "message_delete", res.Cmd())
	assert.True(t, res.IsGlobal())

	_, err := f.st.GetMessage("general", id)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMessageDeleteForeignRequiresDeletePerm(t *testing.T) {
	f := newFixture(t, ratelimit.Config{Enabled: false})

	res := dispatch(t, f, session("alice"), map[string]any{"cmd": "message_new", "channel": "general", "content": "keep"})
	id := res["message"].(models.Message).ID

	// bob lacks the delete permission (default deny)
	res = dispatch(t, f, session("bob"), map[string]any{"cmd": "message_delete", "channel": "general", "id": id})
	assertError(t, res, "You do not have permission to delete this message")

	// grant delete to owners and retry as root
	require.NoError(t, f.st.SaveChannel(models.Channel{
		Name: "general", Type: "text",
		Permissions: map[string][]string{"view": {"user", "owner"}, "send": {"user", "owner"}, "delete": {"owner"}},
	}))
	res = dispatch(t, f, session("root"), map[string]any{"cmd": "message_delete", "channel": "general", "id": id})
	assert.Equal(t, "message_delete", res.Cmd())
}

func TestReactions(t *testing.T) {
	f := newFixture(t, ratelimit.Config{Enabled: false})

	res := dispatch(t, f, session("alice"), map[string]any{"cmd": "message_new", "channel": "general", "content": "react to me"})
	id := res["message"].(models.Message).ID

	res = dispatch(t, f, session("bob"), map[string]any{"cmd": "message_react_add", "channel": "general", "id": id, "emoji": "🔥"})
	require.Equal(t, "message_react_add", res.Cmd())
	assert.True(t, res.IsGlobal())
	assert.Equal(t, "bob", res["from"])
	assert.Equal(t, "🔥", res["emoji"])

	res = dispatch(t, f, session("bob"), map[string]any{"cmd": "message_react_remove", "channel": "general", "id": id, "emoji": "🔥"})
	require.Equal(t, "message_react_remove", res.Cmd())

	res = dispatch(t, f, session("bob"), map[string]any{"cmd": "message_react_remove", "channel": "general", "id": id, "emoji": "🔥"})
	assertError(t, res, "Failed to remove reaction")

	res = dispatch(t, f, session("bob"), map[string]any{"cmd": "message_react_add", "channel": "general", "emoji": "🔥"})
	assertError(t, res, "Message ID is required")

	res = dispatch(t, f, session("bob"), map[string]any{"cmd": "message_react_add", "channel": "general", "id": id})
	assertError(t, res, "Emoji is required")
}

func TestMessagesGet(t *testing.T) {
	f := newFixture(t, ratelimit.Config{Enabled: false})
	alice := session("alice")

	for i := 0; i < 5; i++ {
		dispatch(t, f, alice, map[string]any{"cmd": "message_new", "channel": "general", "content": fmt.Sprintf("m%d", i)})
	}

	res := dispatch(t, f, alice, map[string]any{"cmd": "messages_get", "channel": "general", "limit": 3})
	require.Equal(t, "messages_get", res.Cmd())
	assert.False(t, res.IsGlobal())
	msgs := res["messages"].([]models.Message)
	require.Len(t, msgs, 3)
	assert.Equal(t, "m4", msgs[2].Content)

	// access control: alice cannot read staff
	res = dispatch(t, f, alice, map[string]any{"cmd": "messages_get", "channel": "staff"})
	assertError(t, res, "Access denied to this channel")

	res = dispatch(t, f, alice, map[string]any{"cmd": "messages_get"})
	assertError(t, res, "Invalid channel name")
}

func TestMessageGetAndReplies(t *testing.T) {
	f := newFixture(t, ratelimit.Config{Enabled: false})
	alice := session("alice")

	res := dispatch(t, f, alice, map[string]any{"cmd": "message_new", "channel": "general", "content": "root"})
	id := res["message"].(models.Message).ID
	dispatch(t, f, alice, map[string]any{"cmd": "message_new", "channel": "general", "content": "re", "reply_to": id})

	res = dispatch(t, f, alice, map[string]any{"cmd": "message_get", "channel": "general", "id": id})
	require.Equal(t, "message_get", res.Cmd())
	assert.Equal(t, "root", res["message"].(models.Message).Content)

	res = dispatch(t, f, alice, map[string]any{"cmd": "message_replies", "channel": "general", "id": id})
	require.Equal(t, "message_replies", res.Cmd())
	assert.Equal(t, id, res["message_id"])
	assert.Len(t, res["replies"].([]models.Message), 1)

	res = dispatch(t, f, alice, map[string]any{"cmd": "message_get", "channel": "general", "id": "ghost"})
	assertError(t, res, "Message not found")

	res = dispatch(t, f, alice, map[string]any{"cmd": "message_get", "channel": "general"})
	assertError(t, res, "Channel name and message ID are required")
}

func TestChannelsGetFiltersByRole(t *testing.T) {
	f := newFixture(t, ratelimit.Config{Enabled: false})

	res := dispatch(t, f, session("alice"), map[string]any{"cmd": "channels_get"})
	require.Equal(t, "channels_get", res.Cmd())
	visible := res["val"].([]models.Channel)
	require.Len(t, visible, 1)
	assert.Equal(t, "general", visible[0].Name)

	res = dispatch(t, f, session("root"), map[string]any{"cmd": "channels_get"})
	assert.Len(t, res["val"].([]models.Channel), 2)
}

func TestUsersList(t *testing.T) {
	f := newFixture(t, ratelimit.Config{Enabled: false})
	res := dispatch(t, f, session("alice"), map[string]any{"cmd": "users_list"})
	require.Equal(t, "users_list", res.Cmd())
	users := res["users"].([]models.UserInfo)
	require.Len(t, users, 3)
	assert.Equal(t, "alice", users[0].Username)
}

func TestUsersOnline(t *testing.T) {
	f := newFixture(t, ratelimit.Config{Enabled: false})
	f.d.SetPresence(&fakePresence{names: []string{"alice", "root"}})

	res := dispatch(t, f, session("alice"), map[string]any{"cmd": "users_online"})
	require.Equal(t, "users_online", res.Cmd())
	users := res["users"].([]models.UserInfo)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)
	assert.Equal(t, "#ffd700", users[1].Color)
}

func TestUsersOnlineNoPresence(t *testing.T) {
	f := newFixture(t, ratelimit.Config{Enabled: false})
	f.d.SetPresence(nil)
	res := dispatch(t, f, session("alice"), map[string]any{"cmd": "users_online"})
	assertError(t, res, "Server data not available")
}

func TestPluginAdminOwnerOnly(t *testing.T) {
	f := newFixture(t, ratelimit.Config{Enabled: false})

	res := dispatch(t, f, session("alice"), map[string]any{"cmd": "plugins_list"})
	assertError(t, res, "Access denied: owner role required")

	res = dispatch(t, f, session("root"), map[string]any{"cmd": "plugins_list"})
	assert.Equal(t, "plugins_list", res.Cmd())

	res = dispatch(t, f, session("root"), map[string]any{"cmd": "plugins_reload"})
	require.Equal(t, "plugins_reload", res.Cmd())
	assert.Equal(t, "All plugins reloaded successfully", res["val"])

	res = dispatch(t, f, session("root"), map[string]any{"cmd": "plugins_reload", "plugin": "nope"})
	assertError(t, res, "Failed to reload plugin 'nope'")
}

func TestRateLimitStatus(t *testing.T) {
	f := newFixture(t, ratelimit.Config{Enabled: true, MessagesPerMinute: 30, BurstLimit: 5, Cooldown: 60 * time.Second})

	res := dispatch(t, f, session("alice"), map[string]any{"cmd": "rate_limit_status"})
	require.Equal(t, "rate_limit_status", res.Cmd())
	assert.Equal(t, "alice", res["user"])

	// peeking at someone else requires owner
	res = dispatch(t, f, session("alice"), map[string]any{"cmd": "rate_limit_status", "user": "bob"})
	assertError(t, res, "Access denied: can only check your own rate limit status")

	res = dispatch(t, f, session("root"), map[string]any{"cmd": "rate_limit_status", "user": "bob"})
	require.Equal(t, "rate_limit_status", res.Cmd())
	assert.Equal(t, "bob", res["user"])
}

func TestRateLimitStatusDisabled(t *testing.T) {
	f := newFixture(t, ratelimit.Config{Enabled: false})
	res := dispatch(t, f, session("alice"), map[string]any{"cmd": "rate_limit_status"})
	assertError(t, res, "Rate limiter not available or disabled")
}

func TestRateLimitReset(t *testing.T) {
	f := newFixture(t, ratelimit.Config{Enabled: true, MessagesPerMinute: 30, BurstLimit: 1, Cooldown: 60 * time.Second})

	// alice trips the limiter
	dispatch(t, f, session("alice"), map[string]any{"cmd": "message_new", "channel": "general", "content": "one"})
	res := dispatch(t, f, session("alice"), map[string]any{"cmd": "message_new", "channel": "general", "content": "two"})
	require.Equal(t, "rate_limit", res.Cmd())

	res = dispatch(t, f, session("alice"), map[string]any{"cmd": "rate_limit_reset", "user": "alice"})
	assertError(t, res, "Access denied: owner role required")

	res = dispatch(t, f, session("root"), map[string]any{"cmd": "rate_limit_reset"})
	assertError(t, res, "User parameter is required")

	res = dispatch(t, f, session("root"), map[string]any{"cmd": "rate_limit_reset", "user": "alice"})
	require.Equal(t, "rate_limit_reset", res.Cmd())
	assert.Equal(t, "Rate limit reset for user alice", res["val"])

	res = dispatch(t, f, session("alice"), map[string]any{"cmd": "message_new", "channel": "general", "content": "three"})
	assert.Equal(t, "message_new", res.Cmd())
}
