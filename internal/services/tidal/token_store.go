package tidal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TokenStore abstracts persistence for the Tidal session.
type TokenStore interface {
	Load() (Session, error)
	Save(Session) error
}

// Session is the persisted OAuth state for one Tidal account.
type Session struct {
	TokenType    string    `json:"token_type"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expiry_time"`
	UserID       int64     `json:"user_id,omitempty"`
	CountryCode  string    `json:"country_code,omitempty"`
}

// Valid reports whether the session holds an access token that has not
// expired within the given leeway.
func (s Session) Valid(now time.Time, leeway time.Duration) bool {
	if s.AccessToken == "" {
		return false
	}
	if s.ExpiresAt.IsZero() {
		return true
	}
	return now.Add(leeway).Before(s.ExpiresAt)
}

// FileTokenStore writes the session to a JSON file on disk.
type FileTokenStore struct {
	path string
}

// NewFileTokenStore builds a FileTokenStore rooted at the provided path.
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

// Path returns the token file location.
func (s *FileTokenStore) Path() string { return s.path }

// Load reads the session from disk. A missing file resolves to an empty session.
func (s *FileTokenStore) Load() (Session, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Session{}, nil
		}
		return Session{}, fmt.Errorf("read tidal session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return Session{}, fmt.Errorf("decode tidal session: %w", err)
	}
	return session, nil
}

// Save persists the session with owner-only permissions.
func (s *FileTokenStore) Save(session Session) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("ensure session directory: %w", err)
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("encode tidal session: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write tidal session: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace tidal session: %w", err)
	}
	// WriteFile only applies the mode when it creates the temp file.
	if err := os.Chmod(s.path, 0o600); err != nil {
		return fmt.Errorf("restrict tidal session: %w", err)
	}
	return nil
}
