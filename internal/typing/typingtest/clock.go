// Package typingtest provides a manual scheduler for driving typing expiry
// in tests without sleeping.
package typingtest

import (
	"sort"
	"sync"
	"time"

	"duochat/internal/typing"
)

type timer struct {
	clock   *Clock
	at      time.Duration
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

func (t *timer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Clock is a fake time source. Timers fire only from Advance, on the calling
// goroutine.
type Clock struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*timer
}

func NewClock() *Clock {
	return &Clock{}
}

// Scheduler returns a typing.Scheduler backed by the clock.
func (c *Clock) Scheduler() typing.Scheduler {
	return func(d time.Duration, fn func()) typing.Timer {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.seq++
		t := &timer{clock: c, at: c.now + d, seq: c.seq, fn: fn}
		c.timers = append(c.timers, t)
		return t
	}
}

// Advance moves time forward by d and runs every timer that became due, in
// deadline order.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*timer
	var pending []*timer
	for _, t := range c.timers {
		switch {
		case t.stopped || t.fired:
		case t.at <= c.now:
			t.fired = true
			due = append(due, t)
		default:
			pending = append(pending, t)
		}
	}
	c.timers = pending
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if due[i].at == due[j].at {
			return due[i].seq < due[j].seq
		}
		return due[i].at < due[j].at
	})
	for _, t := range due {
		t.fn()
	}
}

// Pending reports how many armed timers have not fired or been stopped.
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
