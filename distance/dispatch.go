package distance

import (
	"fmt"
	"sync/atomic"

	"github.com/hupe1980/vecsim/internal/simd"
)

// Dispatcher selects between the vectorized and the scalar path at every
// distance computation. The zero value has SIMD disabled; use
// NewDispatcher for the default (enabled).
type Dispatcher struct {
	enabled atomic.Bool
}

// NewDispatcher creates a dispatcher with the given initial state.
func NewDispatcher(enabled bool) *Dispatcher {
	d := &Dispatcher{}
	d.enabled.Store(enabled)
	return d
}

// SetEnabled toggles the vectorized path. It takes effect on the next
// distance computation.
func (d *Dispatcher) SetEnabled(enabled bool) {
	d.enabled.Store(enabled)
}

// Enabled reports whether the vectorized path is requested.
func (d *Dispatcher) Enabled() bool {
	return d.enabled.Load()
}

// Active reports whether distance computations currently run vectorized,
// which requires both the toggle and CPU support.
func (d *Dispatcher) Active() bool {
	return d.Enabled() && simd.Vectorized()
}

// ISA returns the name of the instruction set used by the vectorized path.
func (d *Dispatcher) ISA() string {
	return simd.ActiveISA().String()
}

// Func returns a distance function for m that consults the toggle on each
// call.
func (d *Dispatcher) Func(m Metric) Func {
	vec := SIMD(m)
	scalar := Scalar(m)
	return func(a, b []float32) float32 {
		if d.enabled.Load() {
			return vec(a, b)
		}
		return scalar(a, b)
	}
}

// Distance computes the distance between a and b under m.
func (d *Dispatcher) Distance(m Metric, a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}
	return d.Func(m)(a, b), nil
}
