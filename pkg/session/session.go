package session

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// User is the authenticated account attached to a session.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
	CreatedAt string `json:"createdAt"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Session holds the bearer token and user for authenticated requests.
// It is passed explicitly to the API gateway rather than read from any
// ambient global store, and is safe for concurrent use.
type Session struct {
	mu    sync.RWMutex
	path  string
	token string
	user  *User
}

type fileData struct {
	Token string `json:"token"`
	User  *User  `json:"user,omitempty"`
}

// New creates a session persisted at path. An empty path disables
// persistence; Load and Save become no-ops.
func New(path string) *Session {
	return &Session{path: path}
}

// Token returns the current bearer token, or "" when unauthenticated.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User returns a copy of the authenticated user, or nil.
func (s *Session) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Authenticated reports whether a token is present.
func (s *Session) Authenticated() bool {
	return s.Token() != ""
}

// SetCredentials stores a token and user after a successful login.
func (s *Session) SetCredentials(token string, user *User) {
	s.mu.Lock()
	s.token = token
	s.user = user
	s.mu.Unlock()
}

// UpdateUser replaces the stored user, keeping the token.
func (s *Session) UpdateUser(user *User) {
	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
}

// Clear drops the credentials and removes the persisted file.
func (s *Session) Clear() error {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	path := s.path
	s.mu.Unlock()

	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Load reads persisted credentials. A missing file leaves the session
// unauthenticated without error.
func (s *Session) Load() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	var fd fileData
	if err := json.Unmarshal(data, &fd); err != nil {
		return err
	}
	s.mu.Lock()
	s.token = fd.Token
	s.user = fd.User
	s.mu.Unlock()
	return nil
}

// Save writes the credentials to disk with owner-only permissions.
func (s *Session) Save() error {
	if s.path == "" {
		return nil
	}
	s.mu.RLock()
	fd := fileData{Token: s.token, User: s.user}
	s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(fd, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}
