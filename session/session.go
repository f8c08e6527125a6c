// Package session owns the authenticated identity: the bearer token and the
// user it belongs to. It is loaded from persisted storage at startup and
// changed only by login and logout.
package session

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/itsneelabh/storefront/api"
	"github.com/itsneelabh/storefront/core"
)

// Session is an authenticated identity
type Session struct {
	Token string   `json:"token"`
	User  api.User `json:"user"`
}

// UserID returns the id of the session's user
func (s *Session) UserID() string {
	if s == nil {
		return ""
	}
	return s.User.ID
}

// AuthAPI is the slice of the backend client the session store needs
type AuthAPI interface {
	Login(ctx context.Context, email, password string, opts ...api.CallOption) (*api.LoginResult, error)
	Signup(ctx context.Context, username, email, password string, opts ...api.CallOption) (*api.User, error)
	Logout(ctx context.Context, token string, opts ...api.CallOption) error
}

// Manager holds the current session and keeps persisted storage in step
// with it.
type Manager struct {
	mu      sync.RWMutex
	current *Session
	storage core.Storage
	auth    AuthAPI
	logger  core.Logger
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger
func WithLogger(logger core.Logger) Option {
	return func(m *Manager) {
		m.logger = core.LoggerOrNoOp(logger)
	}
}

// NewManager creates a manager with no session; call Load to restore one
func NewManager(storage core.Storage, auth AuthAPI, opts ...Option) *Manager {
	m := &Manager{
		storage: storage,
		auth:    auth,
		logger:  &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load restores the persisted session. A missing or unreadable session is
// not an error: the client simply starts as a guest.
func (m *Manager) Load(ctx context.Context) (*Session, error) {
	const op = "session.Load"

	token, hasToken, err := m.storage.Get(ctx, core.StorageKeyAuthToken)
	if err != nil {
		return nil, core.NewStoreError(op, "storage", err)
	}
	userData, hasUser, err := m.storage.Get(ctx, core.StorageKeyUserData)
	if err != nil {
		return nil, core.NewStoreError(op, "storage", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !hasToken || !hasUser || token == "" {
		m.current = nil
		m.logger.Debug("No persisted session", map[string]interface{}{"operation": op})
		return nil, nil
	}

	var user api.User
	if err := json.Unmarshal([]byte(userData), &user); err != nil || user.ID == "" {
		m.current = nil
		m.logger.Warn("Ignoring unreadable persisted user", map[string]interface{}{
			"operation": op,
			"error":     err,
		})
		return nil, nil
	}

	m.current = &Session{Token: token, User: user}
	m.logger.Info("Session restored", map[string]interface{}{
		"operation": op,
		"user_id":   user.ID,
	})
	return m.copyCurrent(), nil
}

// Current returns a copy of the session, or nil for a guest
func (m *Manager) Current() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.copyCurrent()
}

// Authenticated reports whether a session exists
func (m *Manager) Authenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current != nil
}

func (m *Manager) copyCurrent() *Session {
	if m.current == nil {
		return nil
	}
	s := *m.current
	return &s
}

// Login authenticates and persists the token and user. The previous session,
// if any, is replaced only when both keys were written.
func (m *Manager) Login(ctx context.Context, email, password string) (*Session, error) {
	const op = "session.Login"
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, &core.StoreError{Op: op, Kind: "validation", Message: "email and password are required", Err: core.ErrInvalidInput}
	}

	result, err := m.auth.Login(ctx, email, password)
	if err != nil {
		m.logger.Warn("Login failed", map[string]interface{}{
			"operation": op,
			"error":     err,
		})
		return nil, err
	}

	userData, err := json.Marshal(result.User)
	if err != nil {
		return nil, core.NewStoreError(op, "encode", err)
	}
	if err := m.storage.Set(ctx, core.StorageKeyAuthToken, result.Token); err != nil {
		return nil, core.NewStoreError(op, "storage", err)
	}
	if err := m.storage.Set(ctx, core.StorageKeyUserData, string(userData)); err != nil {
		_ = m.storage.Remove(ctx, core.StorageKeyAuthToken)
		return nil, core.NewStoreError(op, "storage", err)
	}

	m.mu.Lock()
	m.current = &Session{Token: result.Token, User: result.User}
	s := m.copyCurrent()
	m.mu.Unlock()

	m.logger.Info("Logged in", map[string]interface{}{
		"operation": op,
		"user_id":   result.User.ID,
	})
	return s, nil
}

// Signup registers an account. It does not log in.
func (m *Manager) Signup(ctx context.Context, username, email, password string) (*api.User, error) {
	const op = "session.Signup"
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return nil, &core.StoreError{Op: op, Kind: "validation", Message: "username, email and password are required", Err: core.ErrInvalidInput}
	}

	user, err := m.auth.Signup(ctx, username, email, password)
	if err != nil {
		m.logger.Warn("Signup failed", map[string]interface{}{
			"operation": op,
			"error":     err,
		})
		return nil, err
	}
	m.logger.Info("Account created", map[string]interface{}{
		"operation": op,
		"user_id":   user.ID,
	})
	return user, nil
}

// Logout clears the local session first and then tells the backend. A
// failed remote logout is logged; the local session is gone either way.
func (m *Manager) Logout(ctx context.Context) error {
	const op = "session.Logout"

	m.mu.Lock()
	prev := m.current
	m.current = nil
	m.mu.Unlock()

	var storageErr error
	for _, key := range []string{core.StorageKeyAuthToken, core.StorageKeyUserData} {
		if err := m.storage.Remove(ctx, key); err != nil && storageErr == nil {
			storageErr = core.NewStoreError(op, "storage", err)
		}
	}

	if prev != nil {
		if err := m.auth.Logout(ctx, prev.Token); err != nil {
			m.logger.Warn("Remote logout failed", map[string]interface{}{
				"operation": op,
				"user_id":   prev.User.ID,
				"error":     err,
			})
		}
		m.logger.Info("Logged out", map[string]interface{}{
			"operation": op,
			"user_id":   prev.User.ID,
		})
	}
	return storageErr
}
