package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Session is what the CLI remembers between runs.
type Session struct {
	BaseURL  string    `json:"baseUrl"`
	Username string    `json:"username"`
	Token    string    `json:"token"`
	SavedAt  time.Time `json:"savedAt"`

	path string
}

// LoadSession reads the session at path. A missing file yields an empty
// session bound to path.
func LoadSession(path string) (*Session, error) {
	s := &Session{path: path}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", path, err)
	}
	return s, nil
}

// Save writes the session with owner-only permissions.
func (s *Session) Save() error {
	if s.path == "" {
		return errors.New("session has no path")
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	s.SavedAt = time.Now().UTC()
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, b, 0o600)
}

// Clear forgets the token and removes the file.
func (s *Session) Clear() error {
	s.Token = ""
	s.Username = ""
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// LoggedIn reports whether a token is stored for baseURL.
func (s *Session) LoggedIn(baseURL string) bool {
	return s.Token != "" && s.BaseURL == baseURL
}
