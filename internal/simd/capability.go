package simd

import (
	"os"
	"strings"
)

// ISA identifies the instruction set the dispatched kernels target.
type ISA uint8

const (
	// Generic is the scalar fallback.
	Generic ISA = iota
	// NEON is ARM64 Advanced SIMD.
	NEON
	// SVE is ARM64 NEON plus the scalable vector extension used for
	// magnitudes.
	SVE
	// AVX2 is x86-64 AVX2.
	AVX2
)

var isaNames = [...]string{"generic", "neon", "sve", "avx2"}

func (i ISA) String() string {
	if int(i) < len(isaNames) {
		return isaNames[i]
	}
	return "unknown"
}

// ParseISA resolves an ISA name. "scalar" is accepted for Generic.
func ParseISA(s string) (ISA, bool) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "scalar" {
		return Generic, true
	}
	for i, n := range isaNames {
		if n == name {
			return ISA(i), true
		}
	}
	return Generic, false
}

// features is filled by the platform init before detect runs.
var features struct {
	neon bool
	sve  bool
	avx2 bool
}

var activeISA ISA

func isISAAvailable(isa ISA) bool {
	switch isa {
	case Generic:
		return true
	case NEON:
		return features.neon
	case SVE:
		return features.sve
	case AVX2:
		return features.avx2
	}
	return false
}

// detect picks the widest available ISA unless VECSIM_SIMD names a
// supported one, then installs its kernels.
func detect() {
	activeISA = Generic
	for _, isa := range []ISA{AVX2, SVE, NEON} {
		if isISAAvailable(isa) {
			activeISA = isa
			break
		}
	}

	if isa, ok := ParseISA(os.Getenv("VECSIM_SIMD")); ok && isISAAvailable(isa) {
		activeISA = isa
	}

	installKernels(activeISA)
}

// ActiveISA returns the ISA selected at init.
func ActiveISA() ISA { return activeISA }

// Vectorized reports whether the dispatched kernels run assembly.
func Vectorized() bool { return activeISA != Generic }
