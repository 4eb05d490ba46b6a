package engine

import (
	"sync"
	"time"
)

// Scheduler defers a function call. The returned cancel is safe to call
// more than once and after the function has already run.
type Scheduler interface {
	Schedule(d time.Duration, fn func()) (cancel func())
}

// RealScheduler runs deferred calls on the wall clock
type RealScheduler struct{}

func NewRealScheduler() RealScheduler { return RealScheduler{} }

func (RealScheduler) Schedule(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// ManualScheduler holds deferred calls until a test releases them
type ManualScheduler struct {
	mu      sync.Mutex
	nextID  int
	pending map[int]scheduled
}

type scheduled struct {
	d  time.Duration
	fn func()
}

func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{pending: make(map[int]scheduled)}
}

func (m *ManualScheduler) Schedule(d time.Duration, fn func()) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.pending[id] = scheduled{d: d, fn: fn}
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.pending, id)
		m.mu.Unlock()
	}
}

// Pending returns how many deferred calls have not fired or been canceled
func (m *ManualScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// FireAll releases every pending call in scheduling order
func (m *ManualScheduler) FireAll() {
	for {
		fn, ok := m.takeNext(0, false)
		if !ok {
			return
		}
		fn()
	}
}

// FireShortest releases the pending call with the smallest delay
func (m *ManualScheduler) FireShortest() bool {
	fn, ok := m.takeNext(0, true)
	if !ok {
		return false
	}
	fn()
	return true
}

func (m *ManualScheduler) takeNext(_ time.Duration, byDelay bool) (func(), bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	best := -1
	for id, s := range m.pending {
		switch {
		case best < 0:
			best = id
		case byDelay && s.d < m.pending[best].d:
			best = id
		case !byDelay && id < best:
			best = id
		}
	}
	if best < 0 {
		return nil, false
	}
	fn := m.pending[best].fn
	delete(m.pending, best)
	return fn, true
}
