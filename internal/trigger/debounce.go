// Package trigger turns live typing into agent reactions. It debounces text
// changes, classifies the settled text, maps it through the reaction policy
// and forwards significant changes to the orchestrator.
package trigger

import (
	"sync"
	"time"

	"github.com/normanking/cortexpresence/internal/clock"
	"golang.org/x/time/rate"
)

// Debouncer runs only the last of a burst of calls, once the burst has been
// quiet for the configured delay.
type Debouncer struct {
	mu     sync.Mutex
	sched  clock.Scheduler
	delay  time.Duration
	handle clock.Handle
	gen    uint64
}

// NewDebouncer creates a debouncer.
func NewDebouncer(sched clock.Scheduler, delay time.Duration) *Debouncer {
	return &Debouncer{sched: sched, delay: delay}
}

// Trigger replaces any pending call with fn.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cancelLocked()
	gen := d.gen
	d.handle = d.sched.Schedule(d.delay, func() {
		d.mu.Lock()
		if d.gen != gen {
			d.mu.Unlock()
			return
		}
		d.handle = nil
		d.mu.Unlock()

		fn()
	})
}

// Cancel drops the pending call, reporting whether there was one.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancelLocked()
}

// Pending reports whether a call is waiting to run.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handle != nil
}

func (d *Debouncer) cancelLocked() bool {
	d.gen++
	if d.handle == nil {
		return false
	}
	d.handle.Cancel()
	d.handle = nil
	return true
}

// Gate enforces a minimum spacing between allowed events, measured on the
// scheduler's clock.
type Gate struct {
	sched   clock.Scheduler
	limiter *rate.Limiter
}

// NewGate creates a gate that allows one event per spacing.
func NewGate(sched clock.Scheduler, spacing time.Duration) *Gate {
	return &Gate{
		sched:   sched,
		limiter: rate.NewLimiter(rate.Every(spacing), 1),
	}
}

// Allow reports whether an event may fire now and consumes the slot if so.
func (g *Gate) Allow() bool {
	return g.limiter.AllowN(g.sched.Now(), 1)
}
