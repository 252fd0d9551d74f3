// Package scheduler decides how much of the chart pipeline should run
// when its inputs change.
//
// It remembers inputs of the last recomputation and compares new inputs with them:
//
//   - catalog, group-by mode, x-axis type or smoothing changed: full recomputation
//   - only the hidden list changed: regrouping, reusing smoothed series
//   - the catalog does not fit the x-axis type: deferred until a refetch
package scheduler

import (
	"sync"
	"time"

	"github.com/opst/scalarboard/pkg/axis"
	"github.com/opst/scalarboard/pkg/scalar"
	"github.com/opst/scalarboard/pkg/settings"
	"github.com/opst/scalarboard/pkg/smoothing"
	"github.com/opst/scalarboard/pkg/utils/debounce"
)

type Action int

const (
	// Skip: nothing to do.
	Skip Action = iota

	// Regroup: run grouping only, with previously smoothed series.
	Regroup

	// Full: smooth and group.
	Full

	// Defer: wait for a catalog fetched for the current x-axis type.
	Defer
)

func (a Action) String() string {
	switch a {
	case Regroup:
		return "regroup"
	case Full:
		return "full"
	case Defer:
		return "defer"
	default:
		return "skip"
	}
}

type Decision struct {
	Action Action

	// FirstTime is true when no grouping has been done for the scope yet.
	FirstTime bool

	// Refetch is true when a catalog for RefetchAxis should be requested.
	// It is requested once per x-axis type while deferred.
	Refetch     bool
	RefetchAxis axis.XAxisType
}

// DefaultSmoothingDebounce is the quiet period after smoothing parameters change.
const DefaultSmoothingDebounce = 75 * time.Millisecond

// inputs relevant to smoothing. The hidden list is compared separately.
type snapshot struct {
	fingerprint   uint64
	groupBy       string
	xAxisType     axis.XAxisType
	smoothType    smoothing.Type
	params        smoothing.Params
	showOriginals bool
	hidden        scalar.HiddenList
}

func snapshotOf(c *scalar.Catalog, s settings.Settings) snapshot {
	return snapshot{
		fingerprint:   c.Fingerprint(),
		groupBy:       string(s.GroupBy),
		xAxisType:     s.XAxisType,
		smoothType:    s.SmoothType,
		params:        s.SmoothingParams(),
		showOriginals: s.ShowOriginals,
		hidden:        s.HiddenMetricsScalar,
	}
}

func (s snapshot) sameForSmoothing(o snapshot) bool {
	return s.fingerprint == o.fingerprint &&
		s.groupBy == o.groupBy &&
		s.xAxisType == o.xAxisType &&
		s.smoothType == o.smoothType &&
		s.params == o.params &&
		s.showOriginals == o.showOriginals
}

// Scheduler for one scope at a time. Reset it when the scope is switched.
type Scheduler struct {
	mux sync.Mutex

	last      *snapshot
	firstTime bool

	// refetchAxis is the axis type which a refetch has been requested for.
	refetchAxis axis.XAxisType

	smoothing *debounce.Debouncer
}

type Option func(*Scheduler) *Scheduler

// WithSmoothingDebouncer replaces the debouncer for smoothing changes.
func WithSmoothingDebouncer(d *debounce.Debouncer) Option {
	return func(s *Scheduler) *Scheduler {
		s.smoothing = d
		return s
	}
}

func New(options ...Option) *Scheduler {
	s := &Scheduler{
		firstTime: true,
		smoothing: debounce.New(DefaultSmoothingDebounce),
	}
	for _, opt := range options {
		s = opt(s)
	}
	return s
}

// Evaluate decides what to do for the catalog and the effective settings.
//
// When the decision is Full or Regroup, the caller is expected to recompute
// synchronously, and the inputs are remembered as the last recomputed ones.
func (s *Scheduler) Evaluate(c *scalar.Catalog, eff settings.Settings) Decision {
	s.mux.Lock()
	defer s.mux.Unlock()

	if c == nil {
		return Decision{Action: Skip, FirstTime: s.firstTime}
	}

	if !axis.IsCompatible(c, eff.XAxisType) {
		d := Decision{Action: Defer, FirstTime: s.firstTime}
		if s.refetchAxis != eff.XAxisType {
			s.refetchAxis = eff.XAxisType
			d.Refetch = true
			d.RefetchAxis = eff.XAxisType
		}
		return d
	}
	s.refetchAxis = ""

	now := snapshotOf(c, eff)
	d := Decision{FirstTime: s.firstTime}
	switch {
	case s.last == nil || !s.last.sameForSmoothing(now):
		d.Action = Full
	case !s.last.hidden.Equal(now.hidden):
		d.Action = Regroup
	default:
		d.Action = Skip
		return d
	}

	s.last = &now
	if !c.Empty() {
		s.firstTime = false
	}
	return d
}

// Remember updates the remembered hidden list without recomputation,
// as when a recomputation itself has written the hidden list.
func (s *Scheduler) Remember(hidden scalar.HiddenList) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.last != nil {
		s.last.hidden = hidden
	}
}

// SmoothingChanged schedules f after the smoothing quiet period.
// A previous schedule not fired yet is cancelled.
func (s *Scheduler) SmoothingChanged(f func()) {
	s.smoothing.Trigger(f)
}

// Reset the scheduler for a new scope.
//
// Pending smoothing recomputation is cancelled.
func (s *Scheduler) Reset() {
	s.smoothing.Cancel()

	s.mux.Lock()
	defer s.mux.Unlock()
	s.last = nil
	s.firstTime = true
	s.refetchAxis = ""
}
