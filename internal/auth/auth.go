// Package auth is the authentication collaborator at the pipeline
// boundary. It resolves opaque session tokens into an Identity
// (session id + role); the pipeline itself enforces no authorization
// beyond using the session id as its cache partition key.
//
// The credential table lives behind CredentialStore so the YAML file
// store can later be swapped for a real identity provider without
// touching the pipeline.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Role is the closed set of dashboard roles.
type Role string

const (
	RoleUser    Role = "User"
	RoleAnalyst Role = "Analyst"
	RoleManager Role = "Manager"
	RoleAdmin   Role = "Admin"
)

var roleLevel = map[Role]int{
	RoleUser:    1,
	RoleAnalyst: 2,
	RoleManager: 3,
	RoleAdmin:   4,
}

// AtLeast reports whether r grants the privileges of required.
// Unknown roles grant nothing.
func (r Role) AtLeast(required Role) bool {
	return roleLevel[r] >= roleLevel[required] && roleLevel[required] > 0
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return roleLevel[r] > 0 }

// Identity is what the rest of the system sees: an opaque session
// identity and a role, passed explicitly into every pipeline call.
type Identity struct {
	SessionID string
	Username  string
	Role      Role
}

// User is one credential table entry.
type User struct {
	Email        string
	Name         string
	PasswordHash string // bcrypt
	Role         Role
}

// CredentialStore looks up users by username.
type CredentialStore interface {
	Lookup(ctx context.Context, username string) (User, error)
}

// ErrInvalidCredentials covers both unknown users and wrong passwords,
// deliberately indistinguishable to callers.
var ErrInvalidCredentials = errors.New("invalid username or password")

// ErrNoSession means the presented token resolves to nothing.
var ErrNoSession = errors.New("no active session for token")

// Authenticator verifies credentials and tracks active sessions.
type Authenticator struct {
	store CredentialStore

	mu       sync.RWMutex
	sessions map[string]Identity // token → identity
}

// NewAuthenticator wraps a credential store.
func NewAuthenticator(store CredentialStore) *Authenticator {
	return &Authenticator{
		store:    store,
		sessions: make(map[string]Identity),
	}
}

// Login verifies the password against the stored bcrypt hash and, on
// success, opens a session and returns its opaque token.
func (a *Authenticator) Login(ctx context.Context, username, password string) (string, Identity, error) {
	u, err := a.store.Lookup(ctx, username)
	if err != nil {
		return "", Identity{}, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return "", Identity{}, ErrInvalidCredentials
	}

	role := u.Role
	if !role.Valid() {
		role = RoleUser
	}
	id := Identity{
		SessionID: uuid.NewString(),
		Username:  username,
		Role:      role,
	}
	token := uuid.NewString()

	a.mu.Lock()
	a.sessions[token] = id
	a.mu.Unlock()
	return token, id, nil
}

// Resolve maps a bearer token to its identity.
func (a *Authenticator) Resolve(token string) (Identity, error) {
	a.mu.RLock()
	id, ok := a.sessions[token]
	a.mu.RUnlock()
	if !ok {
		return Identity{}, ErrNoSession
	}
	return id, nil
}

// Logout closes the session for token. Closing an unknown token is a
// no-op. The returned identity lets the caller tear down session state
// (dataset cache) keyed by the session id.
func (a *Authenticator) Logout(token string) (Identity, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id, ok := a.sessions[token]
	if ok {
		delete(a.sessions, token)
	}
	return id, ok
}

// HashPassword produces a bcrypt hash for seeding credential tables.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}
