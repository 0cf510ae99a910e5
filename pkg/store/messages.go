package store

import (
	"encoding/json"
	"fmt"
	"time"

	"originchats/pkg/logger"
	"originchats/pkg/models"
)

func logPrefix(channel string) string { return "msg:" + channel + ":" }
func idxPrefix(channel string) string { return "msgidx:" + channel + ":" }
func idxKey(channel, id string) string {
	return idxPrefix(channel) + id
}

// SaveMessage appends a message to a channel log. The key carries a
// sortable nanosecond timestamp plus a sequence counter so append order is
// also chronological order; an index entry keyed by message id points back
// at the log key for direct lookup.
func (s *Store) SaveMessage(channel string, msg models.Message) error {
	if msg.ID == "" {
		return fmt.Errorf("message id must not be empty")
	}
	unlock := s.lock(logPrefix(channel))
	defer unlock()

	ts := time.Now().UTC()
	if msg.Timestamp == 0 {
		msg.Timestamp = ts.UnixMilli()
	}
	if msg.Type == "" {
		msg.Type = "message"
	}
	key := fmt.Sprintf("%s%020d-%06d", logPrefix(channel), ts.UnixNano(), s.nextSeq())
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := s.set(key, data); err != nil {
		logger.Error("save_message_failed", "channel", channel, "key", key, "error", err)
		return err
	}
	if err := s.set(idxKey(channel, msg.ID), []byte(key)); err != nil {
		return err
	}
	logger.Debug("message_saved", "channel", channel, "id", msg.ID)
	return nil
}

// logKeyFor resolves the log key for a message id via the index.
func (s *Store) logKeyFor(channel, id string) (string, error) {
	b, err := s.get(idxKey(channel, id))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// GetMessage returns one message by id.
func (s *Store) GetMessage(channel, id string) (models.Message, error) {
	var m models.Message
	key, err := s.logKeyFor(channel, id)
	if err != nil {
		return m, err
	}
	b, err := s.get(key)
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("decode message %s: %w", id, err)
	}
	return m, nil
}

// ListMessages returns the last limit messages of a channel in log order.
// limit <= 0 means no cap. An unknown channel yields an empty list.
func (s *Store) ListMessages(channel string, limit int) ([]models.Message, error) {
	var out []models.Message
	err := s.scan(logPrefix(channel), func(key string, val []byte) error {
		var m models.Message
		if err := json.Unmarshal(val, &m); err != nil {
			logger.Warn("skip_bad_message_record", "key", key, "error", err)
			return nil
		}
		out = append(out, m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// mutateMessage applies fn to a stored message under the channel lock and
// writes it back if fn returns true.
func (s *Store) mutateMessage(channel, id string, fn func(*models.Message) (bool, error)) error {
	unlock := s.lock(logPrefix(channel))
	defer unlock()
	key, err := s.logKeyFor(channel, id)
	if err != nil {
		return err
	}
	b, err := s.get(key)
	if err != nil {
		return err
	}
	var m models.Message
	if err := json.Unmarshal(b, &m); err != nil {
		return fmt.Errorf("decode message %s: %w", id, err)
	}
	changed, err := fn(&m)
	if err != nil || !changed {
		return err
	}
	nb, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return s.set(key, nb)
}

// EditMessage replaces the content of a message and sets its edited flag.
func (s *Store) EditMessage(channel, id, content string) error {
	err := s.mutateMessage(channel, id, func(m *models.Message) (bool, error) {
		m.Content = content
		m.Edited = true
		return true, nil
	})
	if err == nil {
		logger.Debug("message_edited", "channel", channel, "id", id)
	}
	return err
}

// DeleteMessage removes a message and its index entry.
func (s *Store) DeleteMessage(channel, id string) error {
	unlock := s.lock(logPrefix(channel))
	defer unlock()
	key, err := s.logKeyFor(channel, id)
	if err != nil {
		return err
	}
	if err := s.delete(key); err != nil {
		return err
	}
	if err := s.delete(idxKey(channel, id)); err != nil {
		return err
	}
	logger.Debug("message_deleted", "channel", channel, "id", id)
	return nil
}

// AddReaction records that user reacted with emoji. Reacting twice with
// the same emoji is a no-op, not an error.
func (s *Store) AddReaction(channel, id, emoji, user string) error {
	return s.mutateMessage(channel, id, func(m *models.Message) (bool, error) {
		if m.HasReaction(emoji, user) {
			return false, nil
		}
		if m.Reactions == nil {
			m.Reactions = make(map[string][]string)
		}
		m.Reactions[emoji] = append(m.Reactions[emoji], user)
		return true, nil
	})
}

// RemoveReaction removes user's reaction. Removing a reaction that does
// not exist returns ErrNotFound without mutating the message. Emptied
// emoji entries are pruned.
func (s *Store) RemoveReaction(channel, id, emoji, user string) error {
	return s.mutateMessage(channel, id, func(m *models.Message) (bool, error) {
		users, ok := m.Reactions[emoji]
		if !ok {
			return false, ErrNotFound
		}
		for i, u := range users {
			if u == user {
				users = append(users[:i], users[i+1:]...)
				if len(users) == 0 {
					delete(m.Reactions, emoji)
				} else {
					m.Reactions[emoji] = users
				}
				if len(m.Reactions) == 0 {
					m.Reactions = nil
				}
				return true, nil
			}
		}
		return false, ErrNotFound
	})
}

// GetReplies returns up to limit messages whose reply reference targets id.
func (s *Store) GetReplies(channel, id string, limit int) ([]models.Message, error) {
	var out []models.Message
	err := s.scan(logPrefix(channel), func(key string, val []byte) error {
		if limit > 0 && len(out) >= limit {
			return nil
		}
		var m models.Message
		if err := json.Unmarshal(val, &m); err != nil {
			return nil
		}
		if m.ReplyTo != nil && m.ReplyTo.ID == id {
			out = append(out, m)
		}
		return nil
	})
	return out, err
}

// PurgeCount removes the newest count messages from a channel. It fails
// when the log holds fewer than count messages.
func (s *Store) PurgeCount(channel string, count int) error {
	unlock := s.lock(logPrefix(channel))
	defer unlock()
	type entry struct{ key, id string }
	var entries []entry
	err := s.scan(logPrefix(channel), func(key string, val []byte) error {
		var m models.Message
		id := ""
		if err := json.Unmarshal(val, &m); err == nil {
			id = m.ID
		}
		entries = append(entries, entry{key: key, id: id})
		return nil
	})
	if err != nil {
		return err
	}
	if len(entries) < count {
		return fmt.Errorf("channel %s has %d messages, cannot purge %d", channel, len(entries), count)
	}
	for _, e := range entries[len(entries)-count:] {
		if err := s.delete(e.key); err != nil {
			return err
		}
		if e.id != "" {
			if err := s.delete(idxKey(channel, e.id)); err != nil {
				return err
			}
		}
	}
	logger.Info("messages_purged", "channel", channel, "count", count)
	return nil
}

// PurgeOlderThan removes messages created before cutoff and returns how
// many were deleted.
func (s *Store) PurgeOlderThan(channel string, cutoff time.Time) (int, error) {
	unlock := s.lock(logPrefix(channel))
	defer unlock()
	type entry struct{ key, id string }
	var old []entry
	err := s.scan(logPrefix(channel), func(key string, val []byte) error {
		var m models.Message
		if err := json.Unmarshal(val, &m); err != nil {
			return nil
		}
		if m.Timestamp < cutoff.UnixMilli() {
			old = append(old, entry{key: key, id: m.ID})
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, e := range old {
		if err := s.delete(e.key); err != nil {
			return 0, err
		}
		if e.id != "" {
			if err := s.delete(idxKey(channel, e.id)); err != nil {
				return 0, err
			}
		}
	}
	return len(old), nil
}
