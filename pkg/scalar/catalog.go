// Package scalar holds the data model of scalar metrics:
// series of (x, y) points grouped by metric and variant.
package scalar

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// SummaryMetric is the name of the pseudo-metric which gathers single values.
const SummaryMetric = "Summary"

var ErrDuplicatePair = errors.New("scalar: duplicated metric/variant pair")

// Point of a series.
//
// X is an iteration index or a unix time in milliseconds,
// depending on the x-axis type which the series is fetched for.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Series struct {
	Metric  string
	Variant string
	Points  []Point
}

func (s Series) Pair() Pair {
	return Pair{Metric: s.Metric, Variant: s.Variant}
}

// SingleValue is a scalar reported once, not along iterations.
type SingleValue struct {
	Variant string  `json:"variant"`
	Value   float64 `json:"value"`
}

// Pair identifies a series in a catalog.
type Pair struct {
	Metric  string
	Variant string
}

// Token is the hidden-list token hiding only this pair.
func (p Pair) Token() string {
	return p.Metric + p.Variant
}

func (p Pair) String() string {
	return fmt.Sprintf("%s/%s", p.Metric, p.Variant)
}

// Catalog is a snapshot of all scalar series of a scope.
//
// A Catalog is immutable. Refetching yields a new Catalog.
// Metrics and variants are enumerated in lexicographic order.
type Catalog struct {
	metrics      map[string]map[string]Series
	metricNames  []string
	singleValues []SingleValue
}

// FromMap builds a catalog from metric -> variant -> points.
func FromMap(m map[string]map[string][]Point) *Catalog {
	b := NewBuilder()
	for metric, variants := range m {
		b.AddMetric(metric)
		for variant, points := range variants {
			b.Add(metric, variant, points)
		}
	}
	c, _ := b.Build() // keys of maps never collide
	return c
}

type Builder struct {
	metrics      map[string]map[string]Series
	singleValues map[string]float64
	err          error
}

func NewBuilder() *Builder {
	return &Builder{
		metrics:      map[string]map[string]Series{},
		singleValues: map[string]float64{},
	}
}

// AddMetric registers a metric name, even if it has no variants.
func (b *Builder) AddMetric(metric string) *Builder {
	if _, ok := b.metrics[metric]; !ok {
		b.metrics[metric] = map[string]Series{}
	}
	return b
}

// Add a series. Points are copied.
//
// Adding a pair twice makes Build fail with ErrDuplicatePair.
func (b *Builder) Add(metric, variant string, points []Point) *Builder {
	variants := b.AddMetric(metric).metrics[metric]
	if _, dup := variants[variant]; dup {
		if b.err == nil {
			b.err = fmt.Errorf("%w: %s", ErrDuplicatePair, Pair{metric, variant})
		}
		return b
	}
	variants[variant] = Series{
		Metric:  metric,
		Variant: variant,
		Points:  append([]Point(nil), points...),
	}
	return b
}

func (b *Builder) AddSingleValue(variant string, value float64) *Builder {
	if _, dup := b.singleValues[variant]; dup {
		if b.err == nil {
			b.err = fmt.Errorf("%w: %s", ErrDuplicatePair, Pair{SummaryMetric, variant})
		}
		return b
	}
	b.singleValues[variant] = value
	return b
}

func (b *Builder) Build() (*Catalog, error) {
	if b.err != nil {
		return nil, b.err
	}

	c := &Catalog{metrics: map[string]map[string]Series{}}
	for metric, variants := range b.metrics {
		c.metrics[metric] = variants
		c.metricNames = append(c.metricNames, metric)
	}
	sort.Strings(c.metricNames)

	for variant, value := range b.singleValues {
		c.singleValues = append(c.singleValues, SingleValue{Variant: variant, Value: value})
	}
	sort.Slice(c.singleValues, func(i, j int) bool {
		return c.singleValues[i].Variant < c.singleValues[j].Variant
	})
	return c, nil
}

// Metrics returns metric names, including ones without variants.
func (c *Catalog) Metrics() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.metricNames...)
}

func (c *Catalog) Variants(metric string) []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.metrics[metric]))
	for v := range c.metrics[metric] {
		names = append(names, v)
	}
	sort.Strings(names)
	return names
}

func (c *Catalog) Series(metric, variant string) (Series, bool) {
	if c == nil {
		return Series{}, false
	}
	s, ok := c.metrics[metric][variant]
	return s, ok
}

func (c *Catalog) SingleValues() []SingleValue {
	if c == nil {
		return nil
	}
	return append([]SingleValue(nil), c.singleValues...)
}

// Pairs enumerates every time-series pair, metric by metric.
// Single values are not included.
func (c *Catalog) Pairs() []Pair {
	if c == nil {
		return nil
	}
	pairs := []Pair{}
	for _, metric := range c.metricNames {
		for _, variant := range c.Variants(metric) {
			pairs = append(pairs, Pair{Metric: metric, Variant: variant})
		}
	}
	return pairs
}

// Empty reports the catalog has neither series nor single values.
func (c *Catalog) Empty() bool {
	if c == nil {
		return true
	}
	if len(c.singleValues) != 0 {
		return false
	}
	for _, variants := range c.metrics {
		if len(variants) != 0 {
			return false
		}
	}
	return true
}

// FirstX returns the x value of the first point of the first series which has points.
func (c *Catalog) FirstX() (float64, bool) {
	for _, p := range c.Pairs() {
		s := c.metrics[p.Metric][p.Variant]
		if len(s.Points) != 0 {
			return s.Points[0].X, true
		}
	}
	return 0, false
}

// Fingerprint digests the whole content of the catalog.
//
// Catalogs with the same series and single values have the same fingerprint.
func (c *Catalog) Fingerprint() uint64 {
	d := xxhash.New()
	buf := make([]byte, 8)
	writeFloat := func(f float64) {
		binary.LittleEndian.PutUint64(buf, math.Float64bits(f))
		d.Write(buf)
	}
	writeString := func(s string) {
		d.WriteString(s)
		d.Write([]byte{0})
	}

	for _, p := range c.Pairs() {
		s := c.metrics[p.Metric][p.Variant]
		writeString(p.Metric)
		writeString(p.Variant)
		binary.LittleEndian.PutUint64(buf, uint64(len(s.Points)))
		d.Write(buf)
		for _, pt := range s.Points {
			writeFloat(pt.X)
			writeFloat(pt.Y)
		}
	}
	d.Write([]byte{1})
	for _, sv := range c.SingleValues() {
		writeString(sv.Variant)
		writeFloat(sv.Value)
	}
	return d.Sum64()
}
