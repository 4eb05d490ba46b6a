package session

import (
	"errors"
	"testing"

	"github.com/maxot/showrunner/internal/domain"
)

func TestStoreSingleActiveSession(t *testing.T) {
	st := NewStore(NewMemoryCache())
	s1 := New("g1", &domain.Scenario{Name: "a"}, nil)
	s2 := New("g2", &domain.Scenario{Name: "b"}, nil)

	if err := st.Create(s1); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.Create(s2); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive, got %v", err)
	}

	got, err := st.Get()
	if err != nil {
		t.Fatal(err)
	}
	if got.GameUUID != "g1" {
		t.Fatalf("expected g1, got %s", got.GameUUID)
	}
}

func TestStoreGetWithoutSession(t *testing.T) {
	st := NewStore(NewMemoryCache())
	if _, err := st.Get(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestStoreDirtyFlagRoundTrip(t *testing.T) {
	cache := NewMemoryCache()
	st := NewStore(cache)
	s := New("g1", &domain.Scenario{Name: "a"}, nil)
	if err := st.Create(s); err != nil {
		t.Fatal(err)
	}

	mod, err := st.GetForModification()
	if err != nil {
		t.Fatal(err)
	}
	mod.SetPosition("round_playing")
	if err := st.Save(mod); err != nil {
		t.Fatal(err)
	}

	got, err := st.Get()
	if err != nil {
		t.Fatal(err)
	}
	if got.State() != "round_playing" {
		t.Fatalf("expected saved state to be visible, got %q", got.State())
	}
}

type countingCache struct {
	*MemoryCache
	puts int
}

func (c *countingCache) Put(key string, s *Session) error {
	c.puts++
	return c.MemoryCache.Put(key, s)
}

func TestStoreSaveSkipsWhenClean(t *testing.T) {
	cache := &countingCache{MemoryCache: NewMemoryCache()}
	st := NewStore(cache)
	s := New("g1", &domain.Scenario{Name: "a"}, nil)
	if err := st.Create(s); err != nil {
		t.Fatal(err)
	}
	base := cache.puts

	// a session only read must not write back
	got, err := st.Get()
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Save(got); err != nil {
		t.Fatal(err)
	}
	if cache.puts != base {
		t.Fatalf("clean save wrote through, puts = %d", cache.puts)
	}

	mod, err := st.GetForModification()
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Save(mod); err != nil {
		t.Fatal(err)
	}
	if cache.puts != base+1 {
		t.Fatalf("dirty save must write through once, puts = %d", cache.puts)
	}

	// saving clears the flag, so a repeat save is clean again
	if err := st.Save(mod); err != nil {
		t.Fatal(err)
	}
	if cache.puts != base+1 {
		t.Fatalf("repeat save wrote through, puts = %d", cache.puts)
	}
}

func TestStoreReset(t *testing.T) {
	st := NewStore(NewMemoryCache())
	s := New("g1", &domain.Scenario{Name: "a"}, nil)
	if err := st.Create(s); err != nil {
		t.Fatal(err)
	}
	if err := st.Reset(); err != nil {
		t.Fatal(err)
	}
	if st.Active() {
		t.Fatal("store must be inactive after reset")
	}
	if err := st.Create(s); err != nil {
		t.Fatalf("create after reset: %v", err)
	}
	// reset on an empty store is a no-op
	if err := st.Reset(); err != nil {
		t.Fatal(err)
	}
	if err := st.Reset(); err != nil {
		t.Fatal(err)
	}
}
