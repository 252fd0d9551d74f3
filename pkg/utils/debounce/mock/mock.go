// Package mock provides hand-driven timers for debounce.AfterFunc.
package mock

import (
	"sync"
	"time"

	"github.com/opst/scalarboard/pkg/utils/debounce"
)

type Timers struct {
	mux       sync.Mutex
	scheduled []*Timer
}

type Timer struct {
	Wait    time.Duration
	f       func()
	stopped bool
	fired   bool
	owner   *Timers
}

func (t *Timer) Stop() bool {
	t.owner.mux.Lock()
	defer t.owner.mux.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func New() *Timers {
	return &Timers{}
}

// AfterFunc records f instead of scheduling it.
func (ts *Timers) AfterFunc(d time.Duration, f func()) debounce.Stopper {
	ts.mux.Lock()
	defer ts.mux.Unlock()
	t := &Timer{Wait: d, f: f, owner: ts}
	ts.scheduled = append(ts.scheduled, t)
	return t
}

// Live returns timers neither stopped nor fired.
func (ts *Timers) Live() []*Timer {
	ts.mux.Lock()
	defer ts.mux.Unlock()
	live := []*Timer{}
	for _, t := range ts.scheduled {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	return live
}

// FireAll calls every live timer in scheduled order and returns how many fired.
//
// Callbacks are called without holding the lock, so they may schedule new timers.
// Those are not fired in this call.
func (ts *Timers) FireAll() int {
	live := ts.Live()
	fired := 0
	for _, t := range live {
		ts.mux.Lock()
		if t.stopped || t.fired {
			ts.mux.Unlock()
			continue
		}
		t.fired = true
		ts.mux.Unlock()
		t.f()
		fired += 1
	}
	return fired
}

// FireStale calls f of t even if it has been stopped,
// like a timer which had fired just before Stop.
func (ts *Timers) FireStale(t *Timer) {
	ts.mux.Lock()
	t.fired = true
	ts.mux.Unlock()
	t.f()
}
