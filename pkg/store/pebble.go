package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"originchats/pkg/logger"
)

// ErrNotFound is returned when a user, role, channel or message does not
// exist. Callers translate it into empty results or protocol errors; it
// never terminates a connection.
var ErrNotFound = errors.New("not found")

// Store is a pebble-backed repository for users, roles, channels and
// per-channel message logs.
//
// Key layout:
//
//	user:<name>                    -> models.User
//	role:<name>                    -> models.Role
//	channel:<name>                 -> models.Channel
//	msg:<channel>:<padded ts>-<seq> -> models.Message (log order = time order)
//	msgidx:<channel>:<id>          -> log key, for O(1) lookup by message id
type Store struct {
	db *pebble.DB

	// seq breaks ties between messages sharing a nanosecond timestamp.
	seqMu sync.Mutex
	seq   uint64

	// locks serializes read-modify-write sequences per logical key
	// (one channel log, one user record).
	locks sync.Map
}

// Open opens (or creates) a pebble database at path.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	logger.Info("pebble_opened", "path", path)
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	logger.Info("pebble_closed")
	return err
}

// lock acquires the serialization lock for a logical key and returns the
// unlock func.
func (s *Store) lock(key string) func() {
	v, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *Store) nextSeq() uint64 {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	s.seq++
	return s.seq
}

// get reads a raw value. The returned slice is a copy safe to retain.
func (s *Store) get(key string) ([]byte, error) {
	v, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	out := append([]byte(nil), v...)
	_ = closer.Close()
	return out, nil
}

func (s *Store) set(key string, val []byte) error {
	return s.db.Set([]byte(key), val, pebble.Sync)
}

func (s *Store) delete(key string) error {
	return s.db.Delete([]byte(key), pebble.Sync)
}

// scan visits every key with the given prefix in order. The value slice
// passed to fn is only valid during the call.
func (s *Store) scan(prefix string, fn func(key string, val []byte) error) error {
	upper := append([]byte(prefix), 0xff)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: upper,
	})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(string(iter.Key()), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}
