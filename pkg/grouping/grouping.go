// Package grouping arranges the series of a catalog into chart groups
// and filters them with a hidden list.
package grouping

import (
	"fmt"

	"github.com/opst/scalarboard/pkg/scalar"
)

type Mode string

const (
	// ByMetric charts variants of a metric together.
	ByMetric Mode = "metric"

	// None charts each metric/variant pair separately.
	None Mode = "none"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ByMetric, None:
		return m, nil
	}
	return "", fmt.Errorf("unknown group-by mode: %s (should be one of -- metric|none)", s)
}

// DefaultFirstLoadLimit is how many selector entries are displayed
// when a scope is shown for the first time without a hidden list.
const DefaultFirstLoadLimit = 20

// Group is a chart.
type Group struct {
	// Name is for display.
	Name string

	// Token hides this group when it is in the hidden list.
	Token string

	Metric string

	// Variants charted in this group, in lexicographic order.
	Variants []string

	// Summary is true for the group of single values.
	Summary bool
}

// Option is an entry of the selector, hidden or not.
type Option struct {
	Token  string
	Name   string
	Hidden bool
}

type Input struct {
	Catalog *scalar.Catalog
	Hidden  scalar.HiddenList
	Mode    Mode

	// FirstTime is true until the first grouping of the scope has been done.
	FirstTime bool

	// ProjectLevel is true when settings come from the project default.
	ProjectLevel bool

	// FirstLoadLimit caps displayed entries on the first load. 0 means DefaultFirstLoadLimit.
	FirstLoadLimit int
}

type Result struct {
	// Groups to be charted, in order.
	Groups []Group

	// DisplayList is tokens of Groups.
	DisplayList []string

	// Options is every selectable entry.
	Options []Option

	// AutoHidden is the hidden list established by the first-load cap.
	// It is nil unless the cap has been applied.
	AutoHidden scalar.HiddenList
}

// Do groups and filters the catalog.
//
// The result depends only on the input: calling twice with the same input yields the same result.
func Do(in Input) Result {
	candidates := enumerate(in.Catalog, in.Mode)

	hidden := in.Hidden
	var autoHidden scalar.HiddenList
	if in.FirstTime && !in.Hidden.Established() && !in.ProjectLevel {
		limit := in.FirstLoadLimit
		if limit <= 0 {
			limit = DefaultFirstLoadLimit
		}
		autoHidden = scalar.NewHiddenList()
		for i, g := range candidates {
			if limit <= i {
				autoHidden = append(autoHidden, g.Token)
			}
		}
		hidden = autoHidden
	}

	idx := hidden.Index()
	perVariant := in.Mode == None

	res := Result{
		Groups:      []Group{},
		DisplayList: []string{},
		Options:     []Option{},
		AutoHidden:  autoHidden,
	}
	for _, g := range candidates {
		h := isHidden(idx, g, perVariant)
		res.Options = append(res.Options, Option{Token: g.Token, Name: g.Name, Hidden: h})
		if h {
			continue
		}
		res.Groups = append(res.Groups, g)
		res.DisplayList = append(res.DisplayList, g.Token)
	}
	return res
}

func isHidden(idx scalar.HiddenIndex, g Group, perVariant bool) bool {
	if g.Summary {
		return idx.Has(g.Token)
	}
	for _, v := range g.Variants {
		if !idx.HidesPair(scalar.Pair{Metric: g.Metric, Variant: v}, perVariant) {
			return false
		}
	}
	return true
}

// enumerate candidate groups in display order. The summary comes first.
func enumerate(c *scalar.Catalog, mode Mode) []Group {
	groups := []Group{}

	if svs := c.SingleValues(); len(svs) != 0 {
		g := Group{
			Name:    scalar.SummaryMetric,
			Token:   scalar.SummaryMetric,
			Metric:  scalar.SummaryMetric,
			Summary: true,
		}
		for _, sv := range svs {
			g.Variants = append(g.Variants, sv.Variant)
		}
		groups = append(groups, g)
	}

	for _, metric := range c.Metrics() {
		variants := c.Variants(metric)
		if len(variants) == 0 {
			continue
		}

		if mode == None {
			for _, v := range variants {
				p := scalar.Pair{Metric: metric, Variant: v}
				groups = append(groups, Group{
					Name:     p.Token(),
					Token:    p.Token(),
					Metric:   metric,
					Variants: []string{v},
				})
			}
			continue
		}

		name := metric
		if len(variants) == 1 {
			name = fmt.Sprintf("%s - %s", metric, variants[0])
		}
		groups = append(groups, Group{
			Name:     name,
			Token:    metric,
			Metric:   metric,
			Variants: variants,
		})
	}
	return groups
}
