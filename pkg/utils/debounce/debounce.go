// Package debounce schedules a callback after a quiet period,
// cancelling the previous schedule whenever a new one comes.
package debounce

import (
	"sync"
	"time"
)

// Stopper is a scheduled call which can be cancelled. *time.Timer is a Stopper.
type Stopper interface {
	Stop() bool
}

// AfterFunc schedules f after d.
//
// time.AfterFunc is the production implementation.
// Tests can replace it to fire callbacks by hand (see package mock).
type AfterFunc func(d time.Duration, f func()) Stopper

// RealTime is AfterFunc backed by time.AfterFunc.
func RealTime(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

type Debouncer struct {
	mux   sync.Mutex
	wait  time.Duration
	after AfterFunc

	// seq identifies the latest schedule. Callbacks from older schedules are ignored.
	seq     uint64
	live    bool
	pending Stopper
}

type Option func(*Debouncer) *Debouncer

// WithAfterFunc replaces how callbacks are scheduled.
func WithAfterFunc(after AfterFunc) Option {
	return func(d *Debouncer) *Debouncer {
		d.after = after
		return d
	}
}

func New(wait time.Duration, options ...Option) *Debouncer {
	d := &Debouncer{wait: wait, after: RealTime}
	for _, opt := range options {
		d = opt(d)
	}
	return d
}

// Trigger schedules f to be called after the quiet period.
//
// A call scheduled by a previous Trigger which has not fired yet is cancelled.
func (d *Debouncer) Trigger(f func()) {
	d.mux.Lock()
	defer d.mux.Unlock()

	d.stop()
	d.seq += 1
	seq := d.seq
	d.live = true
	d.pending = d.after(d.wait, func() {
		d.mux.Lock()
		if d.seq != seq || !d.live {
			d.mux.Unlock()
			return
		}
		d.live = false
		d.pending = nil
		d.mux.Unlock()

		f()
	})
}

// Cancel drops the scheduled call, if any.
//
// It returns true if there was a call not fired yet.
func (d *Debouncer) Cancel() bool {
	d.mux.Lock()
	defer d.mux.Unlock()
	was := d.live
	d.stop()
	return was
}

// Pending reports whether a scheduled call has not fired yet.
func (d *Debouncer) Pending() bool {
	d.mux.Lock()
	defer d.mux.Unlock()
	return d.live
}

func (d *Debouncer) stop() {
	d.seq += 1
	d.live = false
	if d.pending != nil {
		d.pending.Stop()
		d.pending = nil
	}
}
