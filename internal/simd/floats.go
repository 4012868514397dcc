package simd

// Kernel function pointers, set once at init. The portable unrolled
// kernels are the default; installKernels swaps in the assembly kernels
// when a vector ISA is available.
var (
	kernelDot       = dotUnrolled
	kernelSquaredL2 = squaredL2Unrolled
	kernelL1        = l1Unrolled
	kernelDotNorms  = dotNormsUnrolled
)

func installKernels(isa ISA) {
	if isa == Generic {
		kernelDot = dotUnrolled
		kernelSquaredL2 = squaredL2Unrolled
		kernelL1 = l1Unrolled
		kernelDotNorms = dotNormsUnrolled
		return
	}
	installVector()
}

// Dot calculates the dot product of two vectors.
//
// SAFETY: Assumes len(a) == len(b). Caller MUST ensure lengths match.
func Dot(a, b []float32) float32 {
	return kernelDot(a, b)
}

// SquaredL2 calculates the squared L2 distance.
//
// SAFETY: Assumes len(a) == len(b). Caller MUST ensure lengths match.
func SquaredL2(a, b []float32) float32 {
	return kernelSquaredL2(a, b)
}

// L1 calculates the sum of absolute differences.
//
// SAFETY: Assumes len(a) == len(b). Caller MUST ensure lengths match.
func L1(a, b []float32) float32 {
	return kernelL1(a, b)
}

// DotNorms returns dot(a, b), dot(a, a) and dot(b, b) in a single pass.
//
// SAFETY: Assumes len(a) == len(b). Caller MUST ensure lengths match.
func DotNorms(a, b []float32) (dot, normA, normB float32) {
	return kernelDotNorms(a, b)
}

// DotScalar is the reference dot product.
func DotScalar(a, b []float32) float32 {
	var ret float64
	for i := range a {
		ret += float64(a[i]) * float64(b[i])
	}
	return float32(ret)
}

// SquaredL2Scalar is the reference squared L2 distance.
func SquaredL2Scalar(a, b []float32) float32 {
	var ret float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		ret += d * d
	}
	return float32(ret)
}

// L1Scalar is the reference sum of absolute differences.
func L1Scalar(a, b []float32) float32 {
	var ret float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		if d < 0 {
			d = -d
		}
		ret += d
	}
	return float32(ret)
}

// DotNormsScalar is the reference single-pass dot product with norms.
func DotNormsScalar(a, b []float32) (dot, normA, normB float32) {
	var d, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		d += x * y
		na += x * x
		nb += y * y
	}
	return float32(d), float32(na), float32(nb)
}

func dotUnrolled(a, b []float32) float32 {
	n := len(a)
	b = b[:n]

	var s0, s1, s2, s3, s4, s5, s6, s7 float32
	i := 0
	for ; i+8 <= n; i += 8 {
		x := a[i : i+8 : i+8]
		y := b[i : i+8 : i+8]
		s0 += x[0] * y[0]
		s1 += x[1] * y[1]
		s2 += x[2] * y[2]
		s3 += x[3] * y[3]
		s4 += x[4] * y[4]
		s5 += x[5] * y[5]
		s6 += x[6] * y[6]
		s7 += x[7] * y[7]
	}

	sum := ((s0 + s1) + (s2 + s3)) + ((s4 + s5) + (s6 + s7))
	for ; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func squaredL2Unrolled(a, b []float32) float32 {
	n := len(a)
	b = b[:n]

	var s0, s1, s2, s3, s4, s5, s6, s7 float32
	i := 0
	for ; i+8 <= n; i += 8 {
		x := a[i : i+8 : i+8]
		y := b[i : i+8 : i+8]
		d0 := x[0] - y[0]
		d1 := x[1] - y[1]
		d2 := x[2] - y[2]
		d3 := x[3] - y[3]
		d4 := x[4] - y[4]
		d5 := x[5] - y[5]
		d6 := x[6] - y[6]
		d7 := x[7] - y[7]
		s0 += d0 * d0
		s1 += d1 * d1
		s2 += d2 * d2
		s3 += d3 * d3
		s4 += d4 * d4
		s5 += d5 * d5
		s6 += d6 * d6
		s7 += d7 * d7
	}

	sum := ((s0 + s1) + (s2 + s3)) + ((s4 + s5) + (s6 + s7))
	for ; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func l1Unrolled(a, b []float32) float32 {
	n := len(a)
	b = b[:n]

	var s0, s1, s2, s3, s4, s5, s6, s7 float32
	i := 0
	for ; i+8 <= n; i += 8 {
		x := a[i : i+8 : i+8]
		y := b[i : i+8 : i+8]
		s0 += abs32(x[0] - y[0])
		s1 += abs32(x[1] - y[1])
		s2 += abs32(x[2] - y[2])
		s3 += abs32(x[3] - y[3])
		s4 += abs32(x[4] - y[4])
		s5 += abs32(x[5] - y[5])
		s6 += abs32(x[6] - y[6])
		s7 += abs32(x[7] - y[7])
	}

	sum := ((s0 + s1) + (s2 + s3)) + ((s4 + s5) + (s6 + s7))
	for ; i < n; i++ {
		sum += abs32(a[i] - b[i])
	}
	return sum
}

func dotNormsUnrolled(a, b []float32) (dot, normA, normB float32) {
	n := len(a)
	b = b[:n]

	var d0, d1, d2, d3 float32
	var a0, a1, a2, a3 float32
	var b0, b1, b2, b3 float32
	i := 0
	for ; i+4 <= n; i += 4 {
		x := a[i : i+4 : i+4]
		y := b[i : i+4 : i+4]
		d0 += x[0] * y[0]
		d1 += x[1] * y[1]
		d2 += x[2] * y[2]
		d3 += x[3] * y[3]
		a0 += x[0] * x[0]
		a1 += x[1] * x[1]
		a2 += x[2] * x[2]
		a3 += x[3] * x[3]
		b0 += y[0] * y[0]
		b1 += y[1] * y[1]
		b2 += y[2] * y[2]
		b3 += y[3] * y[3]
	}

	dot = (d0 + d1) + (d2 + d3)
	normA = (a0 + a1) + (a2 + a3)
	normB = (b0 + b1) + (b2 + b3)
	for ; i < n; i++ {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	return dot, normA, normB
}

func abs32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
