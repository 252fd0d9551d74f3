// Package scalars is the wire format of scalar metrics served by the tracking backend.
package scalars

import "github.com/opst/scalarboard/pkg/scalar"

// Scalars is a response of the backend for a scope.
//
//	{
//		"metrics": {"loss": {"train": [{"x": 1, "y": 0.9}, ...], ...}, ...},
//		"single_values": [{"variant": "f1", "value": 0.8}, ...]
//	}
type Scalars struct {
	Metrics      map[string]map[string][]scalar.Point `json:"metrics"`
	SingleValues []scalar.SingleValue                 `json:"single_values,omitempty"`
}

// Catalog converts the response into a catalog.
//
// A variant reported twice in single values is an error.
func (s Scalars) Catalog() (*scalar.Catalog, error) {
	b := scalar.NewBuilder()
	for metric, variants := range s.Metrics {
		b.AddMetric(metric)
		for variant, points := range variants {
			b.Add(metric, variant, points)
		}
	}
	for _, sv := range s.SingleValues {
		b.AddSingleValue(sv.Variant, sv.Value)
	}
	return b.Build()
}

// From converts a catalog into the wire format.
func From(c *scalar.Catalog) Scalars {
	s := Scalars{
		Metrics:      map[string]map[string][]scalar.Point{},
		SingleValues: c.SingleValues(),
	}
	for _, metric := range c.Metrics() {
		s.Metrics[metric] = map[string][]scalar.Point{}
		for _, variant := range c.Variants(metric) {
			series, _ := c.Series(metric, variant)
			s.Metrics[metric][variant] = series.Points
		}
	}
	return s
}
