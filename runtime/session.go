package runtime

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

var ErrNotAuthenticated = errors.New("not authenticated")

// AdminRole grants access to the admin console.
const AdminRole = "Admin"

type User struct {
	ID    string   `yaml:"id" json:"id"`
	Name  string   `yaml:"name" json:"name"`
	Email string   `yaml:"email" json:"email"`
	Roles []string `yaml:"roles" json:"roles"`
}

// Session is the injected authentication state. The wizard engines never
// read it; transports and hosts do.
type Session interface {
	CurrentUser() *User
	Token() string
	IsAuthenticated() bool
	IsAdmin() bool
	Login(user User, token string) error
	Logout() error
}

type sessionFile struct {
	User  *User  `yaml:"user"`
	Token string `yaml:"token"`
}

// FileSession keeps the session in a YAML file so it survives restarts.
type FileSession struct {
	path string
	l    *slog.Logger

	mu    sync.RWMutex
	user  *User
	token string
}

// OpenFileSession reads the session stored at path. A missing file means
// logged out; a corrupt one is removed and also means logged out.
func OpenFileSession(path string, l *slog.Logger) (*FileSession, error) {
	if l == nil {
		l = slog.Default()
	}
	s := &FileSession{path: path, l: l}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading session file: %w", err)
	}

	var stored sessionFile
	if err := yaml.Unmarshal(data, &stored); err != nil || (stored.User == nil) != (stored.Token == "") {
		l.Warn("Discarding corrupt session file", "path", path, "error", err)
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("error removing corrupt session file: %w", err)
		}
		return s, nil
	}

	s.user = stored.User
	s.token = stored.Token
	return s, nil
}

func (s *FileSession) CurrentUser() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	u.Roles = slices.Clone(s.user.Roles)
	return &u
}

func (s *FileSession) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *FileSession) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil && s.token != ""
}

func (s *FileSession) IsAdmin() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil && slices.Contains(s.user.Roles, AdminRole)
}

// Login stores the user and token and persists them.
func (s *FileSession) Login(user User, token string) error {
	if token == "" {
		return fmt.Errorf("login %s: empty token", user.Email)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(sessionFile{User: &user, Token: token})
	if err != nil {
		return fmt.Errorf("error marshalling session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("error creating session directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("error writing session file: %w", err)
	}

	s.user = &user
	s.token = token
	return nil
}

// Logout forgets the session and removes the file.
func (s *FileSession) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.user = nil
	s.token = ""
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("error removing session file: %w", err)
	}
	return nil
}
