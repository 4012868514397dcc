// Package simd provides the float32 kernels behind the distance package.
//
// # Supported Platforms
//
//   - x86-64: AVX2
//   - ARM64: NEON, with SVE for magnitudes when present
//
// The vector kernels run the assembly in github.com/viant/vec: blas
// Sub/Mul and horizontal sums, plus the search magnitude kernel on ARM64.
// Runtime CPU feature detection (golang.org/x/sys/cpu) selects the kernel
// set once at init. Without a supported ISA, or when built with the noasm
// tag, the portable unrolled kernels are installed and ActiveISA reports
// Generic.
//
// The VECSIM_SIMD environment variable forces an ISA ("generic", "neon",
// "sve", "avx2") if the CPU supports it; "generic" disables the assembly.
//
// # Operations
//
//   - Dot, SquaredL2, L1, DotNorms: dispatched kernels
//   - DotScalar, SquaredL2Scalar, L1Scalar, DotNormsScalar: reference loops
package simd
