// Package views is the payload of the board API, for hosts showing scalar charts.
package views

import (
	"github.com/opst/scalarboard/pkg/autorefresh"
	"github.com/opst/scalarboard/pkg/engine"
	"github.com/opst/scalarboard/pkg/scalar"
	"github.com/opst/scalarboard/pkg/settings"
)

// Scope to be opened. Without experiment, it is project-level.
type Scope struct {
	Experiment string `json:"experiment,omitempty"`
	Project    string `json:"project"`
}

func (s Scope) Settings() settings.Scope {
	return settings.Scope{Experiment: s.Experiment, Project: s.Project}
}

func ComposeScope(s settings.Scope) Scope {
	return Scope{Experiment: s.Experiment, Project: s.Project}
}

// Settings effective in the scope.
type Settings struct {
	GroupBy             string   `json:"groupBy"`
	XAxisType           string   `json:"xAxisType"`
	SmoothType          string   `json:"smoothType"`
	SmoothWeight        float64  `json:"smoothWeight"`
	SmoothSigma         float64  `json:"smoothSigma"`
	ShowOriginals       bool     `json:"showOriginals"`
	HiddenMetricsScalar []string `json:"hiddenMetricsScalar"`
	SelectedMetricTable []string `json:"selectedMetricTable"`
	ProjectLevel        bool     `json:"projectLevel"`
}

func ComposeSettings(s settings.Settings) Settings {
	return Settings{
		GroupBy:             string(s.GroupBy),
		XAxisType:           string(s.XAxisType),
		SmoothType:          string(s.SmoothType),
		SmoothWeight:        s.SmoothWeight,
		SmoothSigma:         s.SmoothSigma,
		ShowOriginals:       s.ShowOriginals,
		HiddenMetricsScalar: s.HiddenMetricsScalar,
		SelectedMetricTable: s.SelectedMetricTable,
		ProjectLevel:        s.ProjectLevel,
	}
}

// Status of a view.
type Status struct {
	Scope *Scope `json:"scope,omitempty"`

	// Overridden is true when the experiment has its own settings.
	Overridden bool `json:"overridden"`

	Flags          Flags  `json:"flags"`
	RefreshPending bool   `json:"refresh_pending"`
	LastError      string `json:"last_error,omitempty"`
}

// Index lists views held by the server.
type Index struct {
	Views []string `json:"views"`
}

type Line struct {
	Variant  string         `json:"variant"`
	Points   []scalar.Point `json:"points"`
	Original []scalar.Point `json:"original,omitempty"`
}

type Chart struct {
	Name    string               `json:"name"`
	Token   string               `json:"token"`
	Metric  string               `json:"metric"`
	Summary bool                 `json:"summary,omitempty"`
	Lines   []Line               `json:"lines,omitempty"`
	Values  []scalar.SingleValue `json:"values,omitempty"`
}

func ComposeChart(c engine.Chart) Chart {
	ch := Chart{
		Name:    c.Name,
		Token:   c.Token,
		Metric:  c.Metric,
		Summary: c.Summary,
		Values:  c.Values,
	}
	for _, l := range c.Lines {
		points := l.Points
		if points == nil {
			points = []scalar.Point{}
		}
		ch.Lines = append(ch.Lines, Line{Variant: l.Variant, Points: points, Original: l.Original})
	}
	return ch
}

func ComposeCharts(cs []engine.Chart) []Chart {
	out := make([]Chart, 0, len(cs))
	for _, c := range cs {
		out = append(out, ComposeChart(c))
	}
	return out
}

type Option struct {
	Token  string `json:"token"`
	Name   string `json:"name"`
	Hidden bool   `json:"hidden"`
}

type Display struct {
	DisplayList []string `json:"display_list"`
	Options     []Option `json:"options"`
}

func ComposeDisplay(d engine.Display) Display {
	out := Display{
		DisplayList: d.DisplayList,
		Options:     make([]Option, 0, len(d.Options)),
	}
	if out.DisplayList == nil {
		out.DisplayList = []string{}
	}
	for _, o := range d.Options {
		out.Options = append(out.Options, Option{Token: o.Token, Name: o.Name, Hidden: o.Hidden})
	}
	return out
}

// Toggle hides a displayed token, or displays a hidden one.
type Toggle struct {
	Token string `json:"token"`
}

// Hidden replaces the hidden list.
type Hidden struct {
	Tokens []string `json:"tokens"`
}

// Smoothing changes. Omitted weight or sigma are left as they are.
type Smoothing struct {
	Type   string   `json:"type"`
	Weight *float64 `json:"weight,omitempty"`
	Sigma  *float64 `json:"sigma,omitempty"`
}

type GroupBy struct {
	GroupBy string `json:"group_by"`
}

type Axis struct {
	XAxisType string `json:"x_axis_type"`
}

type Originals struct {
	Show bool `json:"show"`
}

// Flags owned by the host.
type Flags struct {
	AutoRefresh bool `json:"auto_refresh"`
	EditMode    bool `json:"edit_mode"`
	Minimized   bool `json:"minimized"`
}

func (f Flags) Controller() autorefresh.Flags {
	return autorefresh.Flags{AutoRefresh: f.AutoRefresh, EditMode: f.EditMode, Minimized: f.Minimized}
}

func ComposeFlags(f autorefresh.Flags) Flags {
	return Flags{AutoRefresh: f.AutoRefresh, EditMode: f.EditMode, Minimized: f.Minimized}
}
