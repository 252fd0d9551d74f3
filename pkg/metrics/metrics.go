// Package metrics reports how charts are recomputed, to statsd.
package metrics

import (
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/labstack/gommon/log"
	xe "github.com/opst/scalarboard/pkg/errors"
)

const (
	RecomputeCount   = "scalarboard.recompute.count"
	RecomputeLatency = "scalarboard.recompute.latency"
	RefetchCount     = "scalarboard.refetch.count"
	RefreshCount     = "scalarboard.refresh.count"
)

// Kinds of recomputation.
const (
	KindFull    = "full"
	KindRegroup = "regroup"
	KindSkip    = "skip"
	KindDefer   = "defer"
)

type Recorder interface {
	// Recompute counts a recomputation decision of kind.
	Recompute(kind string)

	// FullRecompute times a full recomputation.
	FullRecompute(d time.Duration)

	// Refetch counts refetch requests caused by x-axis mismatch.
	Refetch(xAxisType string)

	// Refresh counts data refreshes. manual is false for auto-refresh.
	Refresh(manual bool)
}

type statsdRecorder struct {
	client statsd.ClientInterface
	logger *log.Logger
}

// New makes a Recorder sending metrics to the statsd agent at addr.
//
// Empty addr makes a Recorder sending nothing.
func New(addr string, tags ...string) (Recorder, error) {
	if addr == "" {
		return Noop(), nil
	}
	client, err := statsd.New(addr, statsd.WithTags(tags))
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return WithClient(client), nil
}

// WithClient makes a Recorder on a statsd client.
func WithClient(client statsd.ClientInterface) Recorder {
	return &statsdRecorder{client: client, logger: log.New("metrics")}
}

// Noop is a Recorder which does nothing.
func Noop() Recorder {
	return WithClient(&statsd.NoOpClient{})
}

func (r *statsdRecorder) Recompute(kind string) {
	r.count(RecomputeCount, "kind:"+kind)
}

func (r *statsdRecorder) FullRecompute(d time.Duration) {
	if err := r.client.Timing(RecomputeLatency, d, nil, 1); err != nil {
		r.logger.Warnf("statsd timing failed: %+v", err)
	}
}

func (r *statsdRecorder) Refetch(xAxisType string) {
	r.count(RefetchCount, "x_axis:"+xAxisType)
}

func (r *statsdRecorder) Refresh(manual bool) {
	mode := "auto"
	if manual {
		mode = "manual"
	}
	r.count(RefreshCount, "mode:"+mode)
}

func (r *statsdRecorder) count(name string, tags ...string) {
	if err := r.client.Count(name, 1, tags, 1); err != nil {
		r.logger.Warnf("statsd count failed: %+v", err)
	}
}
