package engine

import (
	"testing"
	"time"
)

func TestTimerSetFencing(t *testing.T) {
	sched := NewManualScheduler()
	ts := NewTimerSet(sched)

	fired := 0
	current := true
	ts.Schedule("k", time.Second, func() bool { return current }, func() { fired++ })

	current = false
	sched.FireAll()
	if fired != 0 {
		t.Fatal("stale timer must not fire its callback")
	}

	ts.Schedule("k", time.Second, func() bool { return true }, func() { fired++ })
	sched.FireAll()
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
}

func TestTimerSetReplacesByKey(t *testing.T) {
	sched := NewManualScheduler()
	ts := NewTimerSet(sched)

	var got string
	ts.Schedule("k", time.Second, nil, func() { got = "first" })
	ts.Schedule("k", time.Second, nil, func() { got = "second" })

	sched.FireAll()
	if got != "second" {
		t.Fatalf("got %q, first timer should have been replaced", got)
	}
	if sched.Pending() != 0 {
		t.Fatalf("pending = %d", sched.Pending())
	}
}

func TestTimerSetCancel(t *testing.T) {
	sched := NewManualScheduler()
	ts := NewTimerSet(sched)

	fired := false
	ts.Schedule("a", time.Second, nil, func() { fired = true })
	ts.Schedule("b", time.Second, nil, func() { fired = true })
	ts.Cancel("a")
	ts.CancelAll()

	sched.FireAll()
	if fired {
		t.Fatal("canceled timers must not fire")
	}
}

func TestManualSchedulerFireShortest(t *testing.T) {
	sched := NewManualScheduler()

	var order []string
	sched.Schedule(time.Hour, func() { order = append(order, "long") })
	sched.Schedule(time.Second, func() { order = append(order, "short") })

	sched.FireShortest()
	if len(order) != 1 || order[0] != "short" {
		t.Fatalf("order = %v", order)
	}
}

func TestRealSchedulerCancel(t *testing.T) {
	sched := NewRealScheduler()
	fired := make(chan struct{}, 1)
	cancel := sched.Schedule(10*time.Millisecond, func() { fired <- struct{}{} })
	cancel()

	select {
	case <-fired:
		t.Fatal("canceled timer fired")
	case <-time.After(50 * time.Millisecond):
	}
}
