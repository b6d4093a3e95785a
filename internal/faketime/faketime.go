// Package faketime fakes time for tests
package faketime

import (
	"sort"
	"sync"
	"time"

	"github.com/Hussein-Mazeh/PasswordVault/internal/clock"
)

// Clock is a virtual clock. Time only moves when Advance or Set is called,
// and scheduled callbacks run synchronously from those calls.
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*timer
	// suppress keeps callbacks from firing, as a throttled host would.
	suppress bool
}

var _ clock.Clock = (*Clock)(nil)

type timer struct {
	c       *Clock
	seq     int
	when    time.Time
	f       func()
	stopped bool
	fired   bool
}

// NewClock creates a virtual clock starting at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the virtual time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc schedules f at Now()+d.
func (c *Clock) AfterFunc(d time.Duration, f func()) clock.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	t := &timer{c: c, seq: c.seq, when: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// SuppressTimers stops (or resumes) callback delivery. Time still advances.
func (c *Clock) SuppressTimers(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.suppress = v
}

// Pending returns the number of timers that have neither fired nor been stopped.
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// Advance moves time forward by dt and fires due callbacks in deadline order.
func (c *Clock) Advance(dt time.Duration) time.Time {
	c.mu.Lock()
	now := c.now.Add(dt)
	c.mu.Unlock()

	return c.Set(now)
}

// Set moves time to t and fires due callbacks in deadline order.
func (c *Clock) Set(t time.Time) time.Time {
	c.mu.Lock()
	c.now = t
	due := c.collectDueLocked()
	c.mu.Unlock()

	for _, tm := range due {
		tm.f()
	}
	return t
}

func (c *Clock) collectDueLocked() []*timer {
	if c.suppress {
		return nil
	}

	var due, rest []*timer
	for _, t := range c.timers {
		switch {
		case t.stopped || t.fired:
		case !t.when.After(c.now):
			t.fired = true
			due = append(due, t)
		default:
			rest = append(rest, t)
		}
	}
	c.timers = rest

	sort.Slice(due, func(i, j int) bool {
		if due[i].when.Equal(due[j].when) {
			return due[i].seq < due[j].seq
		}
		return due[i].when.Before(due[j].when)
	})
	return due
}

func (t *timer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()

	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}
