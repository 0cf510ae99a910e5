// Package watcher mirrors operator edits to the seed JSON files into the
// store and notifies connected clients. Events are debounced because
// editors produce bursts of writes for one save.
package watcher

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"originchats/pkg/logger"
	"originchats/pkg/models"
	"originchats/pkg/store"
)

const debounce = 200 * time.Millisecond

// Broadcaster fans one packet out to every authenticated connection.
type Broadcaster interface {
	Broadcast(packet []byte)
}

// Encoder turns a result map into a wire packet. Split out so the watcher
// does not depend on the transport's encoding.
type Encoder func(v any) ([]byte, error)

// Watcher re-imports seed files when they change on disk.
type Watcher struct {
	dir    string
	st     *store.Store
	bc     Broadcaster
	encode Encoder
}

// New builds a watcher over the seed directory.
func New(dir string, st *store.Store, bc Broadcaster, encode Encoder) *Watcher {
	return &Watcher{dir: dir, st: st, bc: bc, encode: encode}
}

// Run watches until ctx is cancelled. The seed directory must exist.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return err
	}
	logger.Info("watcher_started", "dir", w.dir)

	pending := make(map[string]bool)
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			name := filepath.Base(ev.Name)
			switch name {
			case store.SeedUsers, store.SeedRoles, store.SeedChannels:
				pending[name] = true
				if timer == nil {
					timer = time.NewTimer(debounce)
				} else {
					timer.Reset(debounce)
				}
				fire = timer.C
			}

		case <-fire:
			for name := range pending {
				w.apply(name)
			}
			pending = make(map[string]bool)
			fire = nil

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher_error", "error", err)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// apply re-imports one seed file and pushes the refreshed view to clients.
func (w *Watcher) apply(name string) {
	path := filepath.Join(w.dir, name)
	if err := w.st.ImportSeedFile(path); err != nil {
		logger.Error("seed_reimport_failed", "file", name, "error", err)
		return
	}
	logger.Info("seed_reimported", "file", name)

	switch name {
	case store.SeedUsers, store.SeedRoles:
		users, err := w.st.GetUsers()
		if err != nil {
			logger.Error("users_refresh_failed", "error", err)
			return
		}
		if users == nil {
			users = []models.UserInfo{}
		}
		w.push(map[string]any{"cmd": "users_list", "users": users})
	case store.SeedChannels:
		channels, err := w.st.ListChannels()
		if err != nil {
			logger.Error("channels_refresh_failed", "error", err)
			return
		}
		w.push(map[string]any{"cmd": "channels_get", "val": channels})
	}
}

func (w *Watcher) push(v any) {
	packet, err := w.encode(v)
	if err != nil {
		logger.Error("watcher_encode_failed", "error", err)
		return
	}
	w.bc.Broadcast(packet)
}
