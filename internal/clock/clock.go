// Package clock abstracts time so timer-driven components can be driven by a
// virtual clock in tests.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Handle is a scheduled callback that can be cancelled.
type Handle interface {
	// Cancel prevents the callback from running. It returns false if the
	// callback already ran or was already cancelled.
	Cancel() bool
}

// Scheduler runs callbacks after a delay.
type Scheduler interface {
	Now() time.Time
	Schedule(delay time.Duration, fn func()) Handle
}

// Real schedules on the wall clock using time.AfterFunc.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) Schedule(delay time.Duration, fn func()) Handle {
	return realHandle{timer: time.AfterFunc(delay, fn)}
}

type realHandle struct {
	timer *time.Timer
}

func (h realHandle) Cancel() bool { return h.timer.Stop() }

// Virtual is a manually advanced clock. Callbacks only run inside Advance,
// on the caller's goroutine, in due-time order (FIFO among equal due times).
type Virtual struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []*virtualTimer
}

type virtualTimer struct {
	v   *Virtual
	at  time.Time
	seq uint64
	fn  func()
}

// NewVirtual returns a virtual clock starting at start.
func NewVirtual(start time.Time) *Virtual {
	return &Virtual{now: start}
}

func (v *Virtual) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

func (v *Virtual) Schedule(delay time.Duration, fn func()) Handle {
	if delay < 0 {
		delay = 0
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	v.seq++
	t := &virtualTimer{v: v, at: v.now.Add(delay), seq: v.seq, fn: fn}
	v.timers = append(v.timers, t)
	return t
}

// Advance moves the clock forward by d, running every callback that comes due.
// Callbacks scheduled by other callbacks run too if they fall inside the window.
func (v *Virtual) Advance(d time.Duration) {
	v.mu.Lock()
	target := v.now.Add(d)
	v.mu.Unlock()

	for {
		v.mu.Lock()
		next := v.popDueLocked(target)
		if next == nil {
			v.now = target
			v.mu.Unlock()
			return
		}
		if next.at.After(v.now) {
			v.now = next.at
		}
		fn := next.fn
		v.mu.Unlock()

		fn()
	}
}

// Pending returns the number of callbacks waiting to run.
func (v *Virtual) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.timers)
}

func (v *Virtual) popDueLocked(target time.Time) *virtualTimer {
	if len(v.timers) == 0 {
		return nil
	}
	sort.SliceStable(v.timers, func(i, j int) bool {
		if v.timers[i].at.Equal(v.timers[j].at) {
			return v.timers[i].seq < v.timers[j].seq
		}
		return v.timers[i].at.Before(v.timers[j].at)
	})
	first := v.timers[0]
	if first.at.After(target) {
		return nil
	}
	v.timers = v.timers[1:]
	return first
}

func (t *virtualTimer) Cancel() bool {
	t.v.mu.Lock()
	defer t.v.mu.Unlock()

	for i, pending := range t.v.timers {
		if pending == t {
			t.v.timers = append(t.v.timers[:i], t.v.timers[i+1:]...)
			return true
		}
	}
	return false
}
