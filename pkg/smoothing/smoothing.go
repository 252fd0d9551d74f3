// Package smoothing transforms a numeric series into a smoothed one.
//
// Every function here is pure and keeps the length of the series.
// Non-finite values (NaN, ±Inf) are passed through as they are
// and do not contribute to their neighbours.
package smoothing

import (
	"fmt"
	"math"

	"github.com/opst/scalarboard/pkg/scalar"
)

type Type string

const (
	None          Type = "none"
	MovingAverage Type = "movingAverage"
	Gaussian      Type = "gaussian"
	Exponential   Type = "exponential"
)

// DefaultSigma is the sigma of gaussian smoothing when none is chosen explicitly.
const DefaultSigma = 2.0

// MaxSigma is the largest sigma accepted from users.
const MaxSigma = 1000.0

// maxWeight keeps weights below 1, where exponential smoothing would freeze at the first value.
const maxWeight = 0.999

func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case None, MovingAverage, Gaussian, Exponential:
		return t, nil
	case "":
		return None, nil
	}
	return "", fmt.Errorf("unknown smoothing type: %s (should be one of -- none|movingAverage|gaussian|exponential)", s)
}

// Params of smoothing. Which field matters depends on Type.
type Params struct {
	// Weight is a window fraction for MovingAverage, and a decay for Exponential.
	// It is clamped into [0, 0.999].
	Weight float64

	// Sigma is the standard deviation (in points) for Gaussian.
	Sigma float64
}

// EffectiveSigma returns sigma if typ is Gaussian, otherwise DefaultSigma.
//
// A sigma chosen for gaussian smoothing is not carried over other types,
// so switching back to gaussian starts from DefaultSigma.
func EffectiveSigma(typ Type, sigma float64) float64 {
	if typ != Gaussian {
		return DefaultSigma
	}
	return sigma
}

// Smooth ys with the algorithm typ.
//
// The result is a new slice of the same length as ys.
func Smooth(ys []float64, typ Type, params Params) []float64 {
	switch typ {
	case MovingAverage:
		return movingAverage(ys, clampWeight(params.Weight))
	case Gaussian:
		return gaussian(ys, params.Sigma)
	case Exponential:
		return exponential(ys, clampWeight(params.Weight))
	default:
		return append([]float64{}, ys...)
	}
}

// SmoothPoints smooths y values and keeps x values.
func SmoothPoints(points []scalar.Point, typ Type, params Params) []scalar.Point {
	ys := make([]float64, len(points))
	for i, p := range points {
		ys[i] = p.Y
	}
	smoothed := Smooth(ys, typ, params)

	out := make([]scalar.Point, len(points))
	for i, p := range points {
		out[i] = scalar.Point{X: p.X, Y: smoothed[i]}
	}
	return out
}

func clampWeight(w float64) float64 {
	if math.IsNaN(w) || w < 0 {
		return 0
	}
	if w > maxWeight {
		return maxWeight
	}
	return w
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// movingAverage averages a centered window of 2*half+1 points,
// where half grows with weight and the length of the series.
// Windows at both ends shrink instead of padding.
func movingAverage(ys []float64, weight float64) []float64 {
	n := len(ys)
	out := make([]float64, n)
	half := int(math.Floor(weight * float64(n) / 2))

	// prefix sums over finite values
	sum := make([]float64, n+1)
	count := make([]int, n+1)
	for i, y := range ys {
		sum[i+1], count[i+1] = sum[i], count[i]
		if finite(y) {
			sum[i+1] += y
			count[i+1] += 1
		}
	}

	for i, y := range ys {
		if !finite(y) {
			out[i] = y
			continue
		}
		lo, hi := max(0, i-half), min(n-1, i+half)
		out[i] = (sum[hi+1] - sum[lo]) / float64(count[hi+1]-count[lo])
	}
	return out
}

// gaussian convolves with a normalized gaussian kernel spanning 3 sigma each side.
// At both ends, the kernel is renormalized over points which exist.
func gaussian(ys []float64, sigma float64) []float64 {
	if !(sigma > 0) || math.IsInf(sigma, 0) {
		return append([]float64{}, ys...)
	}

	n := len(ys)
	out := make([]float64, n)
	if n == 0 {
		return out
	}

	// weights farther than the series is long are never read.
	radius := n - 1
	if r := math.Ceil(3 * sigma); r < float64(radius) {
		radius = int(r)
	}
	kernel := make([]float64, radius+1)
	for k := range kernel {
		kernel[k] = math.Exp(-float64(k*k) / (2 * sigma * sigma))
	}

	for i, y := range ys {
		if !finite(y) {
			out[i] = y
			continue
		}
		var acc, norm float64
		for j := max(0, i-radius); j <= min(n-1, i+radius); j++ {
			if !finite(ys[j]) {
				continue
			}
			w := kernel[abs(i-j)]
			acc += w * ys[j]
			norm += w
		}
		out[i] = acc / norm
	}
	return out
}

// exponential is y'[i] = weight*y'[i-1] + (1-weight)*y[i], starting from y'[0] = y[0].
func exponential(ys []float64, weight float64) []float64 {
	out := make([]float64, len(ys))
	var last float64
	started := false
	for i, y := range ys {
		if !finite(y) {
			out[i] = y
			continue
		}
		if !started {
			last, started = y, true
		} else {
			last = weight*last + (1-weight)*y
		}
		out[i] = last
	}
	return out
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}
