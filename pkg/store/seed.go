package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"originchats/pkg/logger"
	"originchats/pkg/models"
)

// Seed file names recognized in the data dir. External edits to these
// files are mirrored into the store (and broadcast) by the watcher.
const (
	SeedUsers    = "users.json"
	SeedRoles    = "roles.json"
	SeedChannels = "channels.json"
)

// ImportSeedDir imports every recognized seed file present in dir. Missing
// files are skipped; a missing dir is a no-op so the server can start with
// no data at all.
func (s *Store) ImportSeedDir(dir string) error {
	if dir == "" {
		return nil
	}
	for _, name := range []string{SeedRoles, SeedUsers, SeedChannels} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := s.ImportSeedFile(path); err != nil {
			return err
		}
	}
	return nil
}

// ImportSeedFile imports one seed file, dispatching on its base name.
func (s *Store) ImportSeedFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed %s: %w", path, err)
	}
	switch filepath.Base(path) {
	case SeedUsers:
		var users map[string]models.User
		if err := json.Unmarshal(b, &users); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		for name, u := range users {
			if err := s.SaveUser(name, u); err != nil {
				return err
			}
		}
		logger.Info("seed_imported", "file", path, "users", len(users))
	case SeedRoles:
		var roles map[string]models.Role
		if err := json.Unmarshal(b, &roles); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		for name, r := range roles {
			if err := s.SaveRole(name, r); err != nil {
				return err
			}
		}
		logger.Info("seed_imported", "file", path, "roles", len(roles))
	case SeedChannels:
		var chans []models.Channel
		if err := json.Unmarshal(b, &chans); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		for i, c := range chans {
			// position follows file order unless set explicitly
			if c.Position == 0 {
				c.Position = i
			}
			if err := s.SaveChannel(c); err != nil {
				return err
			}
		}
		logger.Info("seed_imported", "file", path, "channels", len(chans))
	default:
		return fmt.Errorf("unrecognized seed file: %s", path)
	}
	return nil
}
