// Package settings resolves display settings over two scopes.
//
// An experiment-level record, once created, shadows the project-level record of
// its project entirely. Fields absent in the experiment-level record fall back to
// Defaults, never to the project-level record.
package settings

import (
	"github.com/opst/scalarboard/pkg/axis"
	"github.com/opst/scalarboard/pkg/db"
	"github.com/opst/scalarboard/pkg/grouping"
	"github.com/opst/scalarboard/pkg/scalar"
	"github.com/opst/scalarboard/pkg/smoothing"
)

// Scope which settings are resolved for.
//
// A scope without Experiment is project-level.
type Scope struct {
	Experiment string `json:"experiment,omitempty"`
	Project    string `json:"project"`
}

func (s Scope) ProjectLevel() bool {
	return s.Experiment == ""
}

// Key of the record which writes in this scope go to.
func (s Scope) Key() string {
	if s.ProjectLevel() {
		return db.ProjectKey(s.Project)
	}
	return db.ExperimentKey(s.Experiment)
}

// Settings is an effective (resolved) settings. Every field has a value.
type Settings struct {
	GroupBy       grouping.Mode  `json:"groupBy"`
	XAxisType     axis.XAxisType `json:"xAxisType"`
	SmoothType    smoothing.Type `json:"smoothType"`
	SmoothWeight  float64        `json:"smoothWeight"`
	SmoothSigma   float64        `json:"smoothSigma"`
	ShowOriginals bool           `json:"showOriginals"`

	// HiddenMetricsScalar is nil until a hidden list is established for the scope.
	HiddenMetricsScalar scalar.HiddenList `json:"hiddenMetricsScalar"`

	SelectedMetricTable []string `json:"selectedMetricTable"`

	// ProjectLevel is true when this is resolved from the project-level record.
	ProjectLevel bool `json:"projectLevel"`
}

func Defaults() Settings {
	return Settings{
		GroupBy:      grouping.ByMetric,
		XAxisType:    axis.Iteration,
		SmoothType:   smoothing.None,
		SmoothWeight: 0,
		SmoothSigma:  smoothing.DefaultSigma,
	}
}

// Equal compares field by field. Hidden lists are compared as sets.
func (s Settings) Equal(o Settings) bool {
	if len(s.SelectedMetricTable) != len(o.SelectedMetricTable) {
		return false
	}
	for i := range s.SelectedMetricTable {
		if s.SelectedMetricTable[i] != o.SelectedMetricTable[i] {
			return false
		}
	}
	return s.GroupBy == o.GroupBy &&
		s.XAxisType == o.XAxisType &&
		s.SmoothType == o.SmoothType &&
		s.SmoothWeight == o.SmoothWeight &&
		s.SmoothSigma == o.SmoothSigma &&
		s.ShowOriginals == o.ShowOriginals &&
		s.ProjectLevel == o.ProjectLevel &&
		s.HiddenMetricsScalar.Equal(o.HiddenMetricsScalar)
}

// SmoothingParams returns parameters for the smoothing module.
func (s Settings) SmoothingParams() smoothing.Params {
	return smoothing.Params{
		Weight: s.SmoothWeight,
		Sigma:  smoothing.EffectiveSigma(s.SmoothType, s.SmoothSigma),
	}
}

// Record is a stored settings. Absent fields are nil.
//
// Records are used also as partial changes: only non-nil fields are applied.
type Record struct {
	GroupBy       *grouping.Mode  `json:"groupBy,omitempty"`
	XAxisType     *axis.XAxisType `json:"xAxisType,omitempty"`
	SmoothType    *smoothing.Type `json:"smoothType,omitempty"`
	SmoothWeight  *float64        `json:"smoothWeight,omitempty"`
	SmoothSigma   *float64        `json:"smoothSigma,omitempty"`
	ShowOriginals *bool           `json:"showOriginals,omitempty"`

	// nil means absent, and an empty list is an established empty list.
	HiddenMetricsScalar scalar.HiddenList `json:"hiddenMetricsScalar"`
	SelectedMetricTable []string          `json:"selectedMetricTable"`
}

// Of makes a full record from effective settings.
func Of(s Settings) Record {
	return Record{
		GroupBy:             &s.GroupBy,
		XAxisType:           &s.XAxisType,
		SmoothType:          &s.SmoothType,
		SmoothWeight:        &s.SmoothWeight,
		SmoothSigma:         &s.SmoothSigma,
		ShowOriginals:       &s.ShowOriginals,
		HiddenMetricsScalar: cloneHidden(s.HiddenMetricsScalar),
		SelectedMetricTable: cloneStrings(s.SelectedMetricTable),
	}
}

// Overlay fields present in r onto base.
func (r Record) Overlay(base Settings) Settings {
	s := base
	if r.GroupBy != nil {
		s.GroupBy = *r.GroupBy
	}
	if r.XAxisType != nil {
		s.XAxisType = *r.XAxisType
	}
	if r.SmoothType != nil {
		s.SmoothType = *r.SmoothType
	}
	if r.SmoothWeight != nil {
		s.SmoothWeight = *r.SmoothWeight
	}
	if r.SmoothSigma != nil {
		s.SmoothSigma = *r.SmoothSigma
	}
	if r.ShowOriginals != nil {
		s.ShowOriginals = *r.ShowOriginals
	}
	if r.HiddenMetricsScalar != nil {
		s.HiddenMetricsScalar = cloneHidden(r.HiddenMetricsScalar)
	}
	if r.SelectedMetricTable != nil {
		s.SelectedMetricTable = cloneStrings(r.SelectedMetricTable)
	}
	return s
}

// Merge returns a record where fields present in changes replace ones in r.
func (r Record) Merge(changes Record) Record {
	m := r
	if changes.GroupBy != nil {
		m.GroupBy = changes.GroupBy
	}
	if changes.XAxisType != nil {
		m.XAxisType = changes.XAxisType
	}
	if changes.SmoothType != nil {
		m.SmoothType = changes.SmoothType
	}
	if changes.SmoothWeight != nil {
		m.SmoothWeight = changes.SmoothWeight
	}
	if changes.SmoothSigma != nil {
		m.SmoothSigma = changes.SmoothSigma
	}
	if changes.ShowOriginals != nil {
		m.ShowOriginals = changes.ShowOriginals
	}
	if changes.HiddenMetricsScalar != nil {
		m.HiddenMetricsScalar = cloneHidden(changes.HiddenMetricsScalar)
	}
	if changes.SelectedMetricTable != nil {
		m.SelectedMetricTable = cloneStrings(changes.SelectedMetricTable)
	}
	return m
}

// normalize resets sigma unless the smoothing type is gaussian,
// so that a sigma chosen once does not come back when gaussian is chosen again.
func (r Record) normalize() Record {
	if r.SmoothType != nil && *r.SmoothType != smoothing.Gaussian {
		sigma := smoothing.DefaultSigma
		r.SmoothSigma = &sigma
	}
	return r
}

func cloneHidden(h scalar.HiddenList) scalar.HiddenList {
	if h == nil {
		return nil
	}
	return append(scalar.HiddenList{}, h...)
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string{}, s...)
}

// Ptr is a helper to build partial changes: Record{SmoothWeight: settings.Ptr(0.6)}
func Ptr[T any](v T) *T {
	return &v
}
