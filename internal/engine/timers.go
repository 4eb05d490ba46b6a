package engine

import (
	"sync"
	"time"
)

// Timer keys; at most one timer per key is live
const (
	timerGame     = "game"
	timerRound    = "round"
	timerQuestion = "question"
	timerShop     = "shop"
	timerPause    = "pause"
	timerSettle   = "settle"
	timerPresent  = "present"
)

// TimerSet holds the engine's live stage timers, one per key. Scheduling a
// key cancels the previous timer under that key. Every timer is additionally
// fenced: the callback re-validates a staleness check before acting, so a
// timer that outlives its stage is a no-op even if cancellation was missed.
type TimerSet struct {
	sched Scheduler

	mu      sync.Mutex
	cancels map[string]func()
}

func NewTimerSet(sched Scheduler) *TimerSet {
	return &TimerSet{sched: sched, cancels: make(map[string]func())}
}

// Schedule arms a fenced timer. still is re-evaluated at fire time; the
// callback runs only if it reports the timed stage is still current.
func (t *TimerSet) Schedule(key string, d time.Duration, still func() bool, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cancel, ok := t.cancels[key]; ok {
		cancel()
	}
	t.cancels[key] = t.sched.Schedule(d, func() {
		t.mu.Lock()
		delete(t.cancels, key)
		t.mu.Unlock()
		if still != nil && !still() {
			return
		}
		fn()
	})
}

// Cancel stops the timer under key, if any
func (t *TimerSet) Cancel(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cancel, ok := t.cancels[key]; ok {
		cancel()
		delete(t.cancels, key)
	}
}

// CancelAll stops every live timer
func (t *TimerSet) CancelAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, cancel := range t.cancels {
		cancel()
		delete(t.cancels, key)
	}
}
