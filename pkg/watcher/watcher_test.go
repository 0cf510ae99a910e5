package watcher

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"originchats/pkg/store"
)

type captureBroadcaster struct{ ch chan []byte }

func (c *captureBroadcaster) Broadcast(packet []byte) { c.ch <- packet }

func TestSeedFileChangeBroadcasts(t *testing.T) {
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	bc := &captureBroadcaster{ch: make(chan []byte, 8)}
	w := New(dir, st, bc, json.Marshal)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()
	// give fsnotify time to arm before writing
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, store.SeedUsers), []byte(`{"alice": {"roles": ["user"]}}`), 0o644))

	var packet map[string]any
	select {
	case raw := <-bc.ch:
		require.NoError(t, json.Unmarshal(raw, &packet))
	case <-time.After(3 * time.Second):
		t.Fatal("no broadcast after seed change")
	}
	assert.Equal(t, "users_list", packet["cmd"])
	users := packet["users"].([]any)
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].(map[string]any)["username"])

	// store was updated too
	assert.Equal(t, []string{"user"}, st.GetUserRoles("alice"))

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestChannelsChangeBroadcastsChannels(t *testing.T) {
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	bc := &captureBroadcaster{ch: make(chan []byte, 8)}
	w := New(dir, st, bc, json.Marshal)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, store.SeedChannels), []byte(`[{"name": "general", "type": "text"}]`), 0o644))

	var packet map[string]any
	select {
	case raw := <-bc.ch:
		require.NoError(t, json.Unmarshal(raw, &packet))
	case <-time.After(3 * time.Second):
		t.Fatal("no broadcast after seed change")
	}
	assert.Equal(t, "channels_get", packet["cmd"])
	channels := packet["val"].([]any)
	require.Len(t, channels, 1)
	assert.Equal(t, "general", channels[0].(map[string]any)["name"])
}

func TestUnrelatedFilesIgnored(t *testing.T) {
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	bc := &captureBroadcaster{ch: make(chan []byte, 8)}
	w := New(dir, st, bc, json.Marshal)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644))

	select {
	case raw := <-bc.ch:
		t.Fatalf("unexpected broadcast: %s", raw)
	case <-time.After(500 * time.Millisecond):
	}
}
