// Package auth validates connection credentials against the external
// validator service and provisions first-time users. Authentication is a
// one-shot exchange per connection; the transport refuses every other
// command until it succeeds.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"originchats/pkg/logger"
	"originchats/pkg/models"
)

// Validation failures the transport maps onto auth_error packets.
var (
	ErrInvalid     = errors.New("Invalid authentication")
	ErrBanned      = errors.New("Access denied: You are banned from this server")
	ErrRateLimited = errors.New("Too many authentication attempts")
)

// Validator checks a credential string against the upstream identity
// service.
type Validator interface {
	Validate(ctx context.Context, validator string) (bool, error)
}

// HTTPValidator calls the validator service over HTTP. The service key is
// sent with the fixed service prefix so the upstream can scope it.
type HTTPValidator struct {
	URL    string
	Key    string
	Client *http.Client
}

const keyPrefix = "originChats-"

// NewHTTPValidator builds a validator with a 5s request timeout.
func NewHTTPValidator(validateURL, key string) *HTTPValidator {
	return &HTTPValidator{
		URL:    validateURL,
		Key:    key,
		Client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (v *HTTPValidator) Validate(ctx context.Context, validator string) (bool, error) {
	q := url.Values{}
	q.Set("key", keyPrefix+v.Key)
	q.Set("v", validator)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.URL+"?"+q.Encode(), nil)
	if err != nil {
		return false, err
	}
	resp, err := v.Client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("validator service returned %d", resp.StatusCode)
	}
	var body struct {
		Valid bool `json:"valid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, err
	}
	return body.Valid, nil
}

// UserStore is the slice of the repository auth needs: ban checks and
// first-connect provisioning.
type UserStore interface {
	IsBanned(name string) bool
	AddUser(name string, roles []string) (bool, error)
	GetUser(name string) (models.User, error)
	UserInfo(name string) (models.UserInfo, error)
}

// Result is a successful authentication: the resolved username plus the
// profile the transport echoes in the ready and user_connect packets.
type Result struct {
	Username string
	User     models.User
	Info     models.UserInfo
}

// Service runs the authentication flow. Attempts are throttled per client
// address before the upstream is consulted.
type Service struct {
	validator    Validator
	users        UserStore
	defaultRoles []string
	limiters     *limiterPool
}

// NewService builds the auth service. attemptsPerSecond and burst bound
// validation attempts per remote address.
func NewService(v Validator, users UserStore, defaultRoles []string, attemptsPerSecond float64, burst int) *Service {
	if len(defaultRoles) == 0 {
		defaultRoles = []string{"user"}
	}
	return &Service{
		validator:    v,
		users:        users,
		defaultRoles: defaultRoles,
		limiters:     newLimiterPool(attemptsPerSecond, burst),
	}
}

// Username extracts the canonical username from a validator credential:
// the first comma-separated field, lowercased.
func Username(validator string) string {
	name, _, _ := strings.Cut(validator, ",")
	return strings.ToLower(strings.TrimSpace(name))
}

// Authenticate validates the credential, rejects banned users, provisions
// unknown ones with the default roles and returns the resolved identity.
func (s *Service) Authenticate(ctx context.Context, remoteAddr, validator string) (*Result, error) {
	if !s.limiters.Allow(remoteAddr) {
		logger.Warn("auth_throttled", "remote", remoteAddr)
		return nil, ErrRateLimited
	}
	if validator == "" {
		return nil, ErrInvalid
	}

	valid, err := s.validator.Validate(ctx, validator)
	if err != nil {
		logger.Error("auth_validate_failed", "remote", remoteAddr, "error", err)
		return nil, ErrInvalid
	}
	if !valid {
		logger.Warn("auth_rejected", "remote", remoteAddr)
		return nil, ErrInvalid
	}

	username := Username(validator)
	if username == "" {
		return nil, ErrInvalid
	}
	if s.users.IsBanned(username) {
		logger.Warn("auth_banned", "user", username, "remote", remoteAddr)
		return nil, ErrBanned
	}

	if _, err := s.users.AddUser(username, s.defaultRoles); err != nil {
		return nil, err
	}

	user, err := s.users.GetUser(username)
	if err != nil {
		return nil, fmt.Errorf("user %s missing after provisioning: %w", username, err)
	}
	info, err := s.users.UserInfo(username)
	if err != nil {
		return nil, err
	}

	logger.Info("auth_success", "user", username, "remote", remoteAddr)
	return &Result{Username: username, User: user, Info: info}, nil
}
