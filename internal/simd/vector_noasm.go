//go:build (!amd64 && !arm64) || noasm

package simd

// Without assembly every ISA runs the unrolled kernels.
func installVector() {
	installKernels(Generic)
}
