// Package axis guards scalar catalogs against x-axis mismatch.
//
// The backend returns x values for whichever axis the catalog was fetched for,
// and a catalog carries no record of that. Whether a catalog is fresh for the
// selected axis is guessed from the magnitude of its first x value.
package axis

import "github.com/opst/scalarboard/pkg/scalar"

type XAxisType string

const (
	Iteration XAxisType = "iter"
	Timestamp XAxisType = "timestamp"
	ISOTime   XAxisType = "iso_time"
)

// TimestampThreshold separates iteration indexes from unix times in milliseconds.
//
// It is about September 2020. An iteration index beyond this value is misclassified as a timestamp.
const TimestampThreshold = 1.6e12

func Parse(s string) (XAxisType, bool) {
	switch t := XAxisType(s); t {
	case Iteration, Timestamp, ISOTime:
		return t, true
	}
	return "", false
}

// WallClock reports whether the axis type plots x as time.
func (t XAxisType) WallClock() bool {
	return t == Timestamp || t == ISOTime
}

type Kind int

const (
	// Unknown is for catalogs without any points.
	Unknown Kind = iota
	IterationIndexed
	TimestampIndexed
)

func (k Kind) String() string {
	switch k {
	case IterationIndexed:
		return "iteration-indexed"
	case TimestampIndexed:
		return "timestamp-indexed"
	default:
		return "unknown"
	}
}

// Classify a single x value.
func ClassifyX(x float64) Kind {
	if x > TimestampThreshold {
		return TimestampIndexed
	}
	return IterationIndexed
}

// Classify a catalog by the first x value of its first series.
func Classify(c *scalar.Catalog) Kind {
	x, ok := c.FirstX()
	if !ok {
		return Unknown
	}
	return ClassifyX(x)
}

// IsCompatible tells whether the catalog can be plotted on the axis type.
//
// Catalogs without points are compatible with any axis.
func IsCompatible(c *scalar.Catalog, t XAxisType) bool {
	switch Classify(c) {
	case TimestampIndexed:
		return t.WallClock()
	case IterationIndexed:
		return !t.WallClock()
	default:
		return true
	}
}
