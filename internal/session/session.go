package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/zombor/expense-tracker/internal/apperr"
	"github.com/zombor/expense-tracker/internal/format"
	"github.com/zombor/expense-tracker/internal/store"
)

// Role is the user's authorization level
type Role string

const (
	RoleEmployee      Role = "Employee"
	RoleManager       Role = "Manager"
	RoleFinance       Role = "Finance"
	RoleAdministrator Role = "Administrator"
)

var roleLevels = map[Role]int{
	RoleEmployee:      1,
	RoleManager:       2,
	RoleFinance:       3,
	RoleAdministrator: 4,
}

// ParseRole returns the role matching s, ignoring case
func ParseRole(s string) (Role, bool) {
	for role := range roleLevels {
		if strings.EqualFold(string(role), strings.TrimSpace(s)) {
			return role, true
		}
	}
	return "", false
}

// AtLeast reports whether r grants at least the access of other
func (r Role) AtLeast(other Role) bool {
	return roleLevels[r] >= roleLevels[other]
}

// Session is the authenticated identity used for every backend call
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	Role      Role      `json:"role"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// Expired reports whether the token's expiry has passed
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Credentials is what the auth endpoint returns. UserID and Role are
// optional; when missing they are read from the token's claims.
type Credentials struct {
	Token  string `json:"token"`
	UserID string `json:"userId,omitempty"`
	Role   string `json:"role,omitempty"`
}

// Authenticator talks to the external auth endpoint
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*Credentials, error)
	Logout(ctx context.Context, token string) error
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Manager owns the single current session. It is passed explicitly to every
// component that makes authenticated calls.
type Manager struct {
	auth       Authenticator
	kv         store.KV
	timeSource TimeSource

	mu      sync.RWMutex
	current *Session
}

// NewManager creates a Manager persisting the session in kv
func NewManager(auth Authenticator, kv store.KV) *Manager {
	return NewManagerWithDeps(auth, kv, defaultTimeSource{})
}

// NewManagerWithDeps creates a Manager with a custom time source for testing
func NewManagerWithDeps(auth Authenticator, kv store.KV, timeSrc TimeSource) *Manager {
	return &Manager{
		auth:       auth,
		kv:         kv,
		timeSource: timeSrc,
	}
}

// Login validates the email locally, authenticates against the backend and
// establishes the session. On failure no session is set and nothing is retried.
func (m *Manager) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.TrimSpace(email)
	if !format.ValidEmail(email) {
		return nil, apperr.Validation("email", "invalid email format")
	}
	if password == "" {
		return nil, apperr.Validation("password", "password is required")
	}

	// a failed login must not leave the previous user signed in
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
	if err := m.kv.Delete(store.KeySession); err != nil {
		slog.Warn("Failed to clear saved session", "error", err)
	}

	creds, err := m.auth.Login(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("logging in: %w", err)
	}

	sess, err := m.sessionFrom(creds)
	if err != nil {
		return nil, fmt.Errorf("logging in: %w", err)
	}

	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()

	if err := m.kv.Put(store.KeySession, sess); err != nil {
		slog.Warn("Failed to persist session", "error", err)
	}

	c := *sess
	return &c, nil
}

// sessionFrom builds a session from the login response, filling the user id,
// role and expiry from the token's claims. The signature is not verified
// here; the backend verifies the token on every request.
func (m *Manager) sessionFrom(creds *Credentials) (*Session, error) {
	if creds == nil || creds.Token == "" {
		return nil, &apperr.AuthError{Reason: "login response carried no token"}
	}

	sess := &Session{Token: creds.Token, UserID: creds.UserID}
	roleName := creds.Role

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(creds.Token, claims); err == nil {
		if sess.UserID == "" {
			sess.UserID = stringClaim(claims, "sub", "userId", "user_id")
		}
		if roleName == "" {
			roleName = stringClaim(claims, "role")
		}
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			sess.ExpiresAt = exp.Time
		}
	} else if sess.UserID == "" {
		return nil, &apperr.AuthError{Reason: fmt.Sprintf("cannot read identity from token: %v", err)}
	}

	if sess.UserID == "" {
		return nil, &apperr.AuthError{Reason: "token carries no user id"}
	}

	if roleName == "" {
		sess.Role = RoleEmployee
	} else if role, ok := ParseRole(roleName); ok {
		sess.Role = role
	} else {
		return nil, &apperr.AuthError{Reason: fmt.Sprintf("unknown role %q", roleName)}
	}

	if sess.Expired(m.timeSource.Now()) {
		return nil, &apperr.AuthError{Reason: "token already expired"}
	}
	return sess, nil
}

func stringClaim(claims jwt.MapClaims, keys ...string) string {
	for _, key := range keys {
		if v, ok := claims[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// Logout clears the session locally and then tells the server. Local
// clearing never depends on the server call succeeding.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	prev := m.current
	m.current = nil
	m.mu.Unlock()

	if err := m.kv.Delete(store.KeySession); err != nil {
		slog.Warn("Failed to remove persisted session", "error", err)
	}

	if prev != nil {
		if err := m.auth.Logout(ctx, prev.Token); err != nil {
			slog.Warn("Server logout failed", "user_id", prev.UserID, "error", err)
		}
	}
	return nil
}

// Restore loads a persisted session. Expired sessions are discarded.
func (m *Manager) Restore() (bool, error) {
	var sess Session
	found, err := m.kv.Get(store.KeySession, &sess)
	if err != nil {
		return false, fmt.Errorf("loading session: %w", err)
	}
	if !found || sess.Token == "" {
		return false, nil
	}
	if sess.Expired(m.timeSource.Now()) {
		slog.Info("Persisted session expired", "user_id", sess.UserID)
		if err := m.kv.Delete(store.KeySession); err != nil {
			slog.Warn("Failed to remove persisted session", "error", err)
		}
		return false, nil
	}

	m.mu.Lock()
	m.current = &sess
	m.mu.Unlock()
	return true, nil
}

// Current returns a copy of the active session
func (m *Manager) Current() (Session, bool) {
	m.mu.RLock()
	sess := m.current
	m.mu.RUnlock()

	if sess == nil {
		return Session{}, false
	}
	if sess.Expired(m.timeSource.Now()) {
		m.teardown(sess.Token, "token expired")
		return Session{}, false
	}
	return *sess, true
}

// Authorized runs fn with the current session. An auth error from fn tears
// the session down; the caller must log in again before retrying.
func (m *Manager) Authorized(ctx context.Context, fn func(ctx context.Context, s Session) error) error {
	sess, ok := m.Current()
	if !ok {
		return &apperr.AuthError{Reason: "not logged in"}
	}

	err := fn(ctx, sess)
	if errors.Is(err, apperr.ErrAuth) {
		m.teardown(sess.Token, "rejected by server")
	}
	return err
}

// teardown clears the session if it still holds token
func (m *Manager) teardown(token, reason string) {
	m.mu.Lock()
	if m.current == nil || m.current.Token != token {
		m.mu.Unlock()
		return
	}
	userID := m.current.UserID
	m.current = nil
	m.mu.Unlock()

	slog.Warn("Session ended", "user_id", userID, "reason", reason)
	if err := m.kv.Delete(store.KeySession); err != nil {
		slog.Warn("Failed to remove persisted session", "error", err)
	}
}
