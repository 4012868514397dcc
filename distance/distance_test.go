package distance

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allMetrics = []Metric{Euclidean, Manhattan, Cosine}

func TestScalar(t *testing.T) {
	tests := []struct {
		name     string
		metric   Metric
		a, b     []float32
		expected float32
	}{
		{"Euclidean", Euclidean, []float32{0, 0}, []float32{3, 4}, 5},
		{"EuclideanIdentical", Euclidean, []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"Manhattan", Manhattan, []float32{1, -1, 2}, []float32{-1, 1, 2}, 4},
		{"CosineOrthogonal", Cosine, []float32{1, 0}, []float32{0, 1}, 1},
		{"CosineOpposite", Cosine, []float32{1, 0}, []float32{-1, 0}, 2},
		{"CosineParallel", Cosine, []float32{1, 1}, []float32{3, 3}, 0},
		{"CosineZeroNorm", Cosine, []float32{0, 0}, []float32{1, 1}, 1},
		{"Empty", Euclidean, []float32{}, []float32{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Scalar(tt.metric)(tt.a, tt.b), 1e-6)
			assert.InDelta(t, tt.expected, SIMD(tt.metric)(tt.a, tt.b), 1e-6)
		})
	}
}

func TestSelfDistanceIsZero(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for _, m := range allMetrics {
		for _, n := range []int{1, 3, 8, 17, 128, 1024} {
			v := randomVector(rng, n)
			assert.Equal(t, float32(0), Scalar(m)(v, v), "scalar %s n=%d", m, n)
			assert.Equal(t, float32(0), SIMD(m)(v, v), "simd %s n=%d", m, n)
		}
	}
}

func TestSIMDMatchesScalar(t *testing.T) {
	rng := rand.New(rand.NewSource(11))

	for _, m := range allMetrics {
		for _, n := range []int{1, 2, 5, 8, 9, 64, 127, 128, 384, 768, 1536} {
			for range 10 {
				a := randomVector(rng, n)
				b := randomVector(rng, n)

				s := Scalar(m)(a, b)
				v := SIMD(m)(a, b)
				tol := 1e-5 * math.Max(1, math.Abs(float64(s)))
				assert.InDelta(t, s, v, tol, "%s n=%d", m, n)
			}
		}
	}
}

func TestRanges(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	for range 200 {
		a := randomVector(rng, 32)
		b := randomVector(rng, 32)

		for _, fn := range []Func{CosineScalar, CosineSIMD} {
			d := fn(a, b)
			assert.GreaterOrEqual(t, d, float32(0))
			assert.LessOrEqual(t, d, float32(2))
		}
		assert.GreaterOrEqual(t, EuclideanSIMD(a, b), float32(0))
		assert.GreaterOrEqual(t, ManhattanSIMD(a, b), float32(0))
	}
}

func TestCompute(t *testing.T) {
	d, err := Compute(Euclidean, []float32{0, 0}, []float32{3, 4})
	require.NoError(t, err)
	assert.InDelta(t, 5, d, 1e-6)

	_, err = Compute(Euclidean, []float32{0}, []float32{3, 4})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestParseMetric(t *testing.T) {
	for _, name := range AvailableMetrics() {
		m, ok := ParseMetric(name)
		require.True(t, ok)
		assert.Equal(t, name, m.String())
	}

	m, ok := ParseMetric("COSINE")
	assert.True(t, ok)
	assert.Equal(t, Cosine, m)

	_, ok = ParseMetric("invalid_metric")
	assert.False(t, ok)
	assert.False(t, Metric(42).Valid())
}

func TestMetricText(t *testing.T) {
	b, err := Manhattan.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "manhattan", string(b))

	var m Metric
	require.NoError(t, m.UnmarshalText([]byte("cosine")))
	assert.Equal(t, Cosine, m)
	assert.Error(t, m.UnmarshalText([]byte("hamming")))
}

func randomVector(rng *rand.Rand, n int) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = rng.Float32()*2 - 1
	}
	return v
}
