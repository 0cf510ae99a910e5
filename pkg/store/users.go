package store

import (
	"encoding/json"
	"fmt"
	"sort"

	"originchats/pkg/logger"
	"originchats/pkg/models"
)

func userKey(name string) string { return "user:" + name }
func roleKey(name string) string { return "role:" + name }

// GetUser returns the stored record for a username.
func (s *Store) GetUser(name string) (models.User, error) {
	var u models.User
	b, err := s.get(userKey(name))
	if err != nil {
		return u, err
	}
	if err := json.Unmarshal(b, &u); err != nil {
		return u, fmt.Errorf("decode user %s: %w", name, err)
	}
	return u, nil
}

// UserExists reports whether a user record is present.
func (s *Store) UserExists(name string) bool {
	_, err := s.GetUser(name)
	return err == nil
}

// SaveUser writes a user record.
func (s *Store) SaveUser(name string, u models.User) error {
	b, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return s.set(userKey(name), b)
}

// AddUser provisions a new user with the given roles. It returns false if
// the user already exists.
func (s *Store) AddUser(name string, roles []string) (bool, error) {
	unlock := s.lock(userKey(name))
	defer unlock()
	if s.UserExists(name) {
		return false, nil
	}
	u := models.User{Roles: append([]string(nil), roles...)}
	if err := s.SaveUser(name, u); err != nil {
		return false, err
	}
	logger.Info("user_created", "user", name, "roles", roles)
	return true, nil
}

// GetUserRoles returns the user's role names, or nil if the user is
// unknown.
func (s *Store) GetUserRoles(name string) []string {
	u, err := s.GetUser(name)
	if err != nil {
		return nil
	}
	return u.Roles
}

// IsBanned reports whether the user carries the banned role.
func (s *Store) IsBanned(name string) bool {
	u, err := s.GetUser(name)
	return err == nil && u.Banned()
}

// mutateUser applies fn to the user record under the per-user lock.
func (s *Store) mutateUser(name string, fn func(*models.User) bool) (bool, error) {
	unlock := s.lock(userKey(name))
	defer unlock()
	u, err := s.GetUser(name)
	if err != nil {
		return false, err
	}
	if !fn(&u) {
		return false, nil
	}
	return true, s.SaveUser(name, u)
}

// GiveRole appends a role to the user. Duplicate grants are no-ops.
func (s *Store) GiveRole(name, role string) (bool, error) {
	return s.mutateUser(name, func(u *models.User) bool {
		if u.HasRole(role) {
			return false
		}
		u.Roles = append(u.Roles, role)
		return true
	})
}

// RemoveRole removes a role from the user.
func (s *Store) RemoveRole(name, role string) (bool, error) {
	return s.mutateUser(name, func(u *models.User) bool {
		for i, r := range u.Roles {
			if r == role {
				u.Roles = append(u.Roles[:i], u.Roles[i+1:]...)
				return true
			}
		}
		return false
	})
}

// BanUser grants the banned role.
func (s *Store) BanUser(name string) (bool, error) {
	return s.GiveRole(name, models.BannedRole)
}

// UnbanUser removes the banned role.
func (s *Store) UnbanUser(name string) (bool, error) {
	return s.RemoveRole(name, models.BannedRole)
}

// GetRole returns a role by name.
func (s *Store) GetRole(name string) (models.Role, error) {
	var r models.Role
	b, err := s.get(roleKey(name))
	if err != nil {
		return r, err
	}
	if err := json.Unmarshal(b, &r); err != nil {
		return r, fmt.Errorf("decode role %s: %w", name, err)
	}
	return r, nil
}

// SaveRole writes a role record.
func (s *Store) SaveRole(name string, r models.Role) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.set(roleKey(name), b)
}

// RoleColor resolves the display color for a role set: the color of the
// first role that exists, empty otherwise.
func (s *Store) RoleColor(roles []string) string {
	if len(roles) == 0 {
		return ""
	}
	r, err := s.GetRole(roles[0])
	if err != nil {
		return ""
	}
	return r.Color
}

// GetUsers lists all non-banned users with their resolved display color,
// sorted by username.
func (s *Store) GetUsers() ([]models.UserInfo, error) {
	var out []models.UserInfo
	err := s.scan("user:", func(key string, val []byte) error {
		var u models.User
		if err := json.Unmarshal(val, &u); err != nil {
			logger.Warn("skip_bad_user_record", "key", key, "error", err)
			return nil
		}
		if u.Banned() {
			return nil
		}
		name := key[len("user:"):]
		out = append(out, models.UserInfo{
			Username: name,
			Roles:    u.Roles,
			Color:    s.RoleColor(u.Roles),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// UserInfo builds the wire representation for one user.
func (s *Store) UserInfo(name string) (models.UserInfo, error) {
	u, err := s.GetUser(name)
	if err != nil {
		return models.UserInfo{}, err
	}
	return models.UserInfo{Username: name, Roles: u.Roles, Color: s.RoleColor(u.Roles)}, nil
}
