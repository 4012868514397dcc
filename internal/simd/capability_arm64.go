//go:build !noasm

package simd

import (
	veccpu "github.com/viant/vec/cpu"
	"github.com/viant/vec/search"
	"golang.org/x/sys/cpu"
)

func init() {
	features.neon = cpu.ARM64.HasASIMD
	features.sve = veccpu.CanUseSVE()
	detect()
}

// squaredNorm uses the NEON/SVE magnitude kernel.
func squaredNorm(v []float32) float32 {
	if len(v) == 0 {
		return 0
	}
	m := search.Float32s(v).Magnitude()
	return m * m
}
