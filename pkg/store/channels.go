package store

import (
	"encoding/json"
	"fmt"
	"sort"

	"originchats/pkg/logger"
	"originchats/pkg/models"
)

func channelKey(name string) string { return "channel:" + name }

// GetChannel returns channel metadata by name.
func (s *Store) GetChannel(name string) (models.Channel, error) {
	var c models.Channel
	b, err := s.get(channelKey(name))
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("decode channel %s: %w", name, err)
	}
	return c, nil
}

// SaveChannel writes channel metadata. The channel name is the unique key.
func (s *Store) SaveChannel(c models.Channel) error {
	if c.Name == "" {
		return fmt.Errorf("channel name must not be empty")
	}
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.set(channelKey(c.Name), b)
}

// DeleteChannel removes channel metadata and its whole message log.
func (s *Store) DeleteChannel(name string) error {
	unlock := s.lock(logPrefix(name))
	defer unlock()
	if err := s.delete(channelKey(name)); err != nil {
		return err
	}
	var keys []string
	collect := func(key string, _ []byte) error {
		keys = append(keys, key)
		return nil
	}
	_ = s.scan(logPrefix(name), collect)
	_ = s.scan(idxPrefix(name), collect)
	for _, k := range keys {
		if err := s.delete(k); err != nil {
			return err
		}
	}
	logger.Info("channel_deleted", "channel", name, "keys", len(keys))
	return nil
}

// ListChannels returns all channels ordered by their configured position,
// then name for stability.
func (s *Store) ListChannels() ([]models.Channel, error) {
	var out []models.Channel
	err := s.scan("channel:", func(key string, val []byte) error {
		var c models.Channel
		if err := json.Unmarshal(val, &c); err != nil {
			logger.Warn("skip_bad_channel_record", "key", key, "error", err)
			return nil
		}
		out = append(out, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}
