package session

import (
	"errors"
	"math"
	"sync"
	"time"
)

// ErrNoSession is returned by Persister.Load when nothing usable is stored.
var ErrNoSession = errors.New("no stored session")

// Session is the credential issued by the service at login.
type Session struct {
	Credential    string
	ExpiresAt     time.Time
	Authenticated bool
}

// Persister keeps the session across process restarts.
type Persister interface {
	Save(Session) error
	Load() (Session, error)
	Clear() error
}

// Store is the process-wide holder of the current session.
// Every Set and Clear bumps the generation so responses issued under an older
// session can be recognised and dropped.
type Store struct {
	mu        sync.RWMutex
	current   Session
	gen       uint64
	now       func() time.Time
	persister Persister
}

// NewStore creates an empty store. persister may be nil.
func NewStore(persister Persister) *Store {
	return NewStoreWithNow(persister, time.Now)
}

// NewStoreWithNow returns a store with a custom time source (for tests).
func NewStoreWithNow(persister Persister, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{now: now, persister: persister}
}

// Set installs a new session. The in-memory session is replaced even when
// persisting fails; the persistence error is returned for logging.
func (s *Store) Set(credential string, expiresAt time.Time) error {
	s.mu.Lock()
	s.current = Session{
		Credential:    credential,
		ExpiresAt:     expiresAt,
		Authenticated: credential != "" && s.now().Before(expiresAt),
	}
	s.gen++
	snapshot := s.current
	s.mu.Unlock()

	if s.persister != nil && snapshot.Authenticated {
		return s.persister.Save(snapshot)
	}
	return nil
}

// Clear destroys the session and its persisted copy.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.current = Session{}
	s.gen++
	s.mu.Unlock()

	if s.persister != nil {
		return s.persister.Clear()
	}
	return nil
}

// IsValid reports whether an authenticated, unexpired session exists.
// An expired session is torn down on the spot.
func (s *Store) IsValid() bool {
	s.mu.RLock()
	cur := s.current
	gen := s.gen
	now := s.now()
	s.mu.RUnlock()

	if !cur.Authenticated {
		return false
	}
	if now.Before(cur.ExpiresAt) {
		return true
	}
	s.expire(gen)
	return false
}

// expire clears the session only if nothing replaced it since gen was read.
func (s *Store) expire(gen uint64) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.current = Session{}
	s.gen++
	s.mu.Unlock()

	if s.persister != nil {
		_ = s.persister.Clear()
	}
}

// Credential returns the API key if the session is valid.
func (s *Store) Credential() (string, bool) {
	if !s.IsValid() {
		return "", false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.current.Authenticated {
		return "", false
	}
	return s.current.Credential, true
}

// Generation returns the current session generation.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// ValidAt reports whether the session is valid and still the one identified by gen.
func (s *Store) ValidAt(gen uint64) bool {
	if !s.IsValid() {
		return false
	}
	return s.Generation() == gen
}

// ExpiresAt returns the expiry of the current session, zero when there is none.
func (s *Store) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.ExpiresAt
}

// Restore loads a persisted session. Expired or incomplete entries are wiped.
// Returns true when a valid session was installed.
func (s *Store) Restore() (bool, error) {
	if s.persister == nil {
		return false, nil
	}
	stored, err := s.persister.Load()
	if errors.Is(err, ErrNoSession) {
		return false, nil
	}
	if err != nil {
		_ = s.persister.Clear()
		return false, err
	}
	if !stored.Authenticated || stored.Credential == "" || !s.now().Before(stored.ExpiresAt) {
		return false, s.persister.Clear()
	}

	s.mu.Lock()
	s.current = stored
	s.gen++
	s.mu.Unlock()
	return true, nil
}

// EpochSeconds converts t to fractional seconds since the Unix epoch.
func EpochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// FromEpochSeconds converts fractional epoch seconds, as sent by the service, to a time.
func FromEpochSeconds(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9))
}
