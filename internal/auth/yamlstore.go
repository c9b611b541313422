package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// YAMLStore reads the credential table from a YAML file shaped like:
//
//	credentials:
//	  usernames:
//	    admin:
//	      email: admin@example.com
//	      name: Administrator
//	      password: $2b$12$...   # bcrypt hash
//	      role: Admin
//
// The table is loaded once and served from memory; Reload re-reads the
// file so operators can rotate credentials without a restart.
type YAMLStore struct {
	path string

	mu    sync.RWMutex
	users map[string]User
}

type yamlUser struct {
	Email    string `mapstructure:"email"`
	Name     string `mapstructure:"name"`
	Password string `mapstructure:"password"`
	Role     string `mapstructure:"role"`
}

type yamlCredentials struct {
	Credentials struct {
		Usernames map[string]yamlUser `mapstructure:"usernames"`
	} `mapstructure:"credentials"`
}

// NewYAMLStore loads the credential file at path.
func NewYAMLStore(path string) (*YAMLStore, error) {
	s := &YAMLStore{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the credential file, replacing the in-memory table
// atomically.
func (s *YAMLStore) Reload() error {
	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read credential file: %w", err)
	}

	var creds yamlCredentials
	if err := v.Unmarshal(&creds); err != nil {
		return fmt.Errorf("parse credential file: %w", err)
	}
	if len(creds.Credentials.Usernames) == 0 {
		return fmt.Errorf("credential file %s lists no users", s.path)
	}

	users := make(map[string]User, len(creds.Credentials.Usernames))
	for name, u := range creds.Credentials.Usernames {
		users[strings.ToLower(name)] = User{
			Email:        u.Email,
			Name:         u.Name,
			PasswordHash: u.Password,
			Role:         Role(u.Role),
		}
	}

	s.mu.Lock()
	s.users = users
	s.mu.Unlock()
	return nil
}

// Lookup returns the user for username (case-insensitive).
func (s *YAMLStore) Lookup(_ context.Context, username string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[strings.ToLower(username)]
	if !ok {
		return User{}, fmt.Errorf("unknown user %q", username)
	}
	return u, nil
}

// StaticStore serves a fixed in-memory table. Used in tests and as the
// fallback when no credential file is configured.
type StaticStore map[string]User

// Lookup implements CredentialStore.
func (s StaticStore) Lookup(_ context.Context, username string) (User, error) {
	u, ok := s[strings.ToLower(username)]
	if !ok {
		return User{}, fmt.Errorf("unknown user %q", username)
	}
	return u, nil
}
