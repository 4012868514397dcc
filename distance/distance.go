package distance

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/hupe1980/vecsim/internal/simd"
)

// ErrDimensionMismatch is returned when two vectors have different lengths.
var ErrDimensionMismatch = errors.New("distance: vectors have different lengths")

// Metric represents the distance metric used for vector comparison.
type Metric int

const (
	// Euclidean is the L2 distance.
	Euclidean Metric = iota
	// Manhattan is the L1 distance.
	Manhattan
	// Cosine is 1 - cosine similarity, in [0, 2].
	Cosine
)

// AvailableMetrics lists the names accepted by ParseMetric, in stable order.
func AvailableMetrics() []string {
	return []string{"euclidean", "manhattan", "cosine"}
}

func (m Metric) String() string {
	switch m {
	case Euclidean:
		return "euclidean"
	case Manhattan:
		return "manhattan"
	case Cosine:
		return "cosine"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// Valid reports whether m is one of the known metrics.
func (m Metric) Valid() bool {
	return m >= Euclidean && m <= Cosine
}

// ParseMetric parses a metric name. Matching is case-insensitive.
func ParseMetric(s string) (Metric, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "euclidean", "l2":
		return Euclidean, true
	case "manhattan", "l1":
		return Manhattan, true
	case "cosine":
		return Cosine, true
	default:
		return Euclidean, false
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Metric) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("distance: invalid metric %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Metric) UnmarshalText(text []byte) error {
	parsed, ok := ParseMetric(string(text))
	if !ok {
		return fmt.Errorf("distance: unknown metric %q", string(text))
	}
	*m = parsed
	return nil
}

// Func is a function type for distance calculation.
// Callers guarantee len(a) == len(b).
type Func func(a, b []float32) float32

// EuclideanScalar is the scalar Euclidean distance.
func EuclideanScalar(a, b []float32) float32 {
	return sqrt32(simd.SquaredL2Scalar(a, b))
}

// ManhattanScalar is the scalar Manhattan distance.
func ManhattanScalar(a, b []float32) float32 {
	return simd.L1Scalar(a, b)
}

// CosineScalar is the scalar cosine distance.
func CosineScalar(a, b []float32) float32 {
	return cosineFrom(simd.DotNormsScalar(a, b))
}

// EuclideanSIMD is the Euclidean distance on the vectorized kernels.
func EuclideanSIMD(a, b []float32) float32 {
	return sqrt32(simd.SquaredL2(a, b))
}

// ManhattanSIMD is the Manhattan distance on the vectorized kernels.
func ManhattanSIMD(a, b []float32) float32 {
	return simd.L1(a, b)
}

// CosineSIMD is the cosine distance on the vectorized kernels.
func CosineSIMD(a, b []float32) float32 {
	return cosineFrom(simd.DotNorms(a, b))
}

// cosineFrom turns a dot product and squared norms into a distance.
// A zero norm yields 1.
func cosineFrom(dot, normA, normB float32) float32 {
	if normA == 0 || normB == 0 {
		return 1
	}
	d := 1 - float64(dot)/math.Sqrt(float64(normA)*float64(normB))
	if d < 0 {
		return 0
	}
	if d > 2 {
		return 2
	}
	return float32(d)
}

func sqrt32(x float32) float32 {
	return float32(math.Sqrt(float64(x)))
}

// Scalar returns the scalar implementation of m.
func Scalar(m Metric) Func {
	switch m {
	case Manhattan:
		return ManhattanScalar
	case Cosine:
		return CosineScalar
	default:
		return EuclideanScalar
	}
}

// SIMD returns the vectorized implementation of m.
func SIMD(m Metric) Func {
	switch m {
	case Manhattan:
		return ManhattanSIMD
	case Cosine:
		return CosineSIMD
	default:
		return EuclideanSIMD
	}
}

// Compute returns the distance between a and b under m using the scalar path.
func Compute(m Metric, a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}
	return Scalar(m)(a, b), nil
}
