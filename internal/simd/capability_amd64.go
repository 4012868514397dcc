//go:build !noasm

package simd

import "golang.org/x/sys/cpu"

func init() {
	// viant/vec takes its packed path exactly when AVX2 is present; its
	// AVX-512 path is never enabled at init.
	features.avx2 = cpu.X86.HasAVX2
	detect()
}

func squaredNorm(v []float32) float32 {
	return dotVec(v, v)
}
