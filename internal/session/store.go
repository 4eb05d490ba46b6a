package session

import (
	"errors"
	"sync"
)

var (
	ErrSessionActive  = errors.New("a session is already active")
	ErrNoSession      = errors.New("no active session")
	ErrSessionUnknown = errors.New("unknown session key")
)

// Cache is the pluggable backing store for the single active session
type Cache interface {
	Put(key string, s *Session) error
	Fetch(key string) (*Session, error)
	Drop(key string) error
}

// MemoryCache keeps sessions in process memory
type MemoryCache struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{sessions: make(map[string]*Session)}
}

func (c *MemoryCache) Put(key string, s *Session) error {
	c.mu.Lock()
	c.sessions[key] = s
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Fetch(key string) (*Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sessions[key]
	if !ok {
		return nil, ErrSessionUnknown
	}
	return s, nil
}

func (c *MemoryCache) Drop(key string) error {
	c.mu.Lock()
	delete(c.sessions, key)
	c.mu.Unlock()
	return nil
}

// Store tracks the single active session on top of a Cache. A dirty flag is
// set when the session is handed out for modification and cleared on Save,
// so an in-memory copy is only re-fetched when it may be stale.
type Store struct {
	cache Cache

	mu     sync.Mutex
	active string
	cached *Session
	dirty  bool
}

func NewStore(cache Cache) *Store {
	return &Store{cache: cache}
}

// Create registers a new active session, rejecting a second concurrent one
func (st *Store) Create(s *Session) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.active != "" {
		return ErrSessionActive
	}
	if err := st.cache.Put(s.GameUUID, s); err != nil {
		return err
	}
	st.active = s.GameUUID
	st.cached = s
	st.dirty = false
	return nil
}

// Get returns the active session for reading
func (st *Store) Get() (*Session, error) {
	return st.get(false)
}

// GetForModification returns the active session and marks it dirty
func (st *Store) GetForModification() (*Session, error) {
	return st.get(true)
}

func (st *Store) get(modify bool) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.active == "" {
		return nil, ErrNoSession
	}
	if st.cached == nil || st.dirty {
		s, err := st.cache.Fetch(st.active)
		if err != nil {
			return nil, err
		}
		st.cached = s
	}
	if modify {
		st.dirty = true
	}
	return st.cached, nil
}

// Save writes the session back to the cache and clears the dirty flag. When
// the session was never handed out for modification there is nothing to
// write back and the cache is left untouched.
func (st *Store) Save(s *Session) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.dirty {
		return nil
	}
	if err := st.cache.Put(s.GameUUID, s); err != nil {
		return err
	}
	st.cached = s
	st.dirty = false
	return nil
}

// Active reports whether a session is currently registered
func (st *Store) Active() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.active != ""
}

// ActiveKey returns the game UUID of the active session, if any
func (st *Store) ActiveKey() (string, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.active, st.active != ""
}

// Reset drops the active session from the cache and clears local state
func (st *Store) Reset() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.active == "" {
		return nil
	}
	if err := st.cache.Drop(st.active); err != nil {
		return err
	}
	st.active = ""
	st.cached = nil
	st.dirty = false
	return nil
}
