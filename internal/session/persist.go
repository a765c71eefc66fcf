package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/afero"
)

// Keys of the persisted entries. They are written and removed together.
const (
	KeyLoggedIn   = "isLoggedIn"
	KeyExpiration = "loginExpiration"
	KeyAPIKey     = "apiKey"
)

// FilePersister stores the session as a small JSON object of string entries.
type FilePersister struct {
	fs   afero.Fs
	path string
}

// NewFilePersister returns a persister writing to path on fs.
func NewFilePersister(fs afero.Fs, path string) *FilePersister {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &FilePersister{fs: fs, path: path}
}

// Save writes all three entries with owner-only permissions.
func (p *FilePersister) Save(s Session) error {
	entries := map[string]string{
		KeyLoggedIn:   strconv.FormatBool(s.Authenticated),
		KeyExpiration: strconv.FormatFloat(EpochSeconds(s.ExpiresAt), 'f', -1, 64),
		KeyAPIKey:     s.Credential,
	}
	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if dir := filepath.Dir(p.path); dir != "" && dir != "." {
		if err := p.fs.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create session dir: %w", err)
		}
	}
	if err := afero.WriteFile(p.fs, p.path, b, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// Load reads the entries back. A missing file yields ErrNoSession.
func (p *FilePersister) Load() (Session, error) {
	b, err := afero.ReadFile(p.fs, p.path)
	if errors.Is(err, os.ErrNotExist) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, fmt.Errorf("read session: %w", err)
	}
	var entries map[string]string
	if err := json.Unmarshal(b, &entries); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}

	loggedIn, _ := strconv.ParseBool(entries[KeyLoggedIn])
	apiKey := entries[KeyAPIKey]
	rawExp := entries[KeyExpiration]
	if !loggedIn || apiKey == "" || rawExp == "" {
		return Session{}, ErrNoSession
	}
	sec, err := strconv.ParseFloat(rawExp, 64)
	if err != nil {
		return Session{}, fmt.Errorf("decode %s: %w", KeyExpiration, err)
	}
	return Session{
		Credential:    apiKey,
		ExpiresAt:     FromEpochSeconds(sec),
		Authenticated: true,
	}, nil
}

// Clear removes the stored entries. Removing a missing file is not an error.
func (p *FilePersister) Clear() error {
	err := p.fs.Remove(p.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}
