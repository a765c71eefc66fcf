package session

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func TestStore_EmptyIsInvalid(t *testing.T) {
	store := NewStore(nil)

	if store.IsValid() {
		t.Fatal("empty store should not be valid")
	}
	if _, ok := store.Credential(); ok {
		t.Fatal("empty store should not expose a credential")
	}
}

func TestStore_SetAndExpire(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	store := NewStoreWithNow(nil, func() time.Time { return now })

	if err := store.Set("k1", now.Add(3600*time.Second)); err != nil {
		t.Fatalf("Set error = %v", err)
	}
	key, ok := store.Credential()
	if !ok || key != "k1" {
		t.Fatalf("Credential = %q,%v, want k1,true", key, ok)
	}

	now = now.Add(3599 * time.Second)
	if !store.IsValid() {
		t.Fatal("session should still be valid one second before expiry")
	}

	now = now.Add(1 * time.Second)
	if store.IsValid() {
		t.Fatal("session should be invalid at expiresAt")
	}
	if !store.ExpiresAt().IsZero() {
		t.Fatal("expired session should be torn down")
	}
}

func TestStore_SetInPastIsNotAuthenticated(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	store := NewStoreWithNow(nil, func() time.Time { return now })

	store.Set("k1", now.Add(-time.Minute))
	if store.IsValid() {
		t.Fatal("session expiring in the past must not be valid")
	}
}

func TestStore_GenerationBumps(t *testing.T) {
	store := NewStore(nil)
	g0 := store.Generation()

	store.Set("k1", time.Now().Add(time.Hour))
	g1 := store.Generation()
	if g1 <= g0 {
		t.Fatalf("generation did not advance on Set: %d -> %d", g0, g1)
	}
	if !store.ValidAt(g1) {
		t.Fatal("ValidAt(current) should be true")
	}

	store.Clear()
	if store.ValidAt(g1) {
		t.Fatal("ValidAt(old generation) should be false after Clear")
	}
	if store.Generation() <= g1 {
		t.Fatal("generation did not advance on Clear")
	}
}

func TestStore_PersistsAndRestores(t *testing.T) {
	fs := afero.NewMemMapFs()
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	path := "/home/user/.config/streamctl/session.json"

	first := NewStoreWithNow(NewFilePersister(fs, path), clock)
	if err := first.Set("k1", now.Add(time.Hour)); err != nil {
		t.Fatalf("Set error = %v", err)
	}

	info, err := fs.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("session file mode = %v, want 0600", info.Mode().Perm())
	}

	second := NewStoreWithNow(NewFilePersister(fs, path), clock)
	ok, err := second.Restore()
	if err != nil || !ok {
		t.Fatalf("Restore = %v,%v, want true,nil", ok, err)
	}
	key, valid := second.Credential()
	if !valid || key != "k1" {
		t.Fatalf("restored credential = %q,%v", key, valid)
	}
	if !second.ExpiresAt().Equal(now.Add(time.Hour)) {
		t.Fatalf("restored expiry = %v, want %v", second.ExpiresAt(), now.Add(time.Hour))
	}
}

func TestStore_RestoreDiscardsExpired(t *testing.T) {
	fs := afero.NewMemMapFs()
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	path := "/session.json"
	p := NewFilePersister(fs, path)
	if err := p.Save(Session{Credential: "old", ExpiresAt: now.Add(-time.Minute), Authenticated: true}); err != nil {
		t.Fatalf("Save error = %v", err)
	}

	store := NewStoreWithNow(p, func() time.Time { return now })
	ok, err := store.Restore()
	if err != nil || ok {
		t.Fatalf("Restore = %v,%v, want false,nil", ok, err)
	}
	if exists, _ := afero.Exists(fs, path); exists {
		t.Fatal("expired session file should be removed")
	}
}

func TestStore_ClearRemovesPersistedEntries(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := "/session.json"
	store := NewStore(NewFilePersister(fs, path))
	store.Set("k1", time.Now().Add(time.Hour))

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear error = %v", err)
	}
	if exists, _ := afero.Exists(fs, path); exists {
		t.Fatal("session file should be removed on Clear")
	}
	// second clear is a no-op
	if err := store.Clear(); err != nil {
		t.Fatalf("second Clear error = %v", err)
	}
}

func TestFilePersister_LoadMissing(t *testing.T) {
	p := NewFilePersister(afero.NewMemMapFs(), "/none.json")
	if _, err := p.Load(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Load error = %v, want ErrNoSession", err)
	}
}

func TestFilePersister_LoadIncomplete(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/s.json", []byte(`{"isLoggedIn":"true","apiKey":"k1"}`), 0o600)

	p := NewFilePersister(fs, "/s.json")
	if _, err := p.Load(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Load error = %v, want ErrNoSession", err)
	}
}

func TestEpochSecondsRoundTrip(t *testing.T) {
	ts := FromEpochSeconds(1767787200.25)
	if ts.Unix() != 1767787200 {
		t.Fatalf("seconds = %d", ts.Unix())
	}
	if ts.Nanosecond() != 250000000 {
		t.Fatalf("nanoseconds = %d", ts.Nanosecond())
	}
	if got := EpochSeconds(ts); math.Abs(got-1767787200.25) > 1e-6 {
		t.Fatalf("EpochSeconds = %v", got)
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	store := NewStore(nil)
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				store.Set("k", time.Now().Add(time.Hour))
				store.IsValid()
				store.Credential()
				store.Clear()
			}
		}()
	}
	wg.Wait()
	// Should not have panicked or deadlocked
}
