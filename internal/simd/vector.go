//go:build (amd64 || arm64) && !noasm

package simd

import (
	"math"
	"sync"

	"github.com/viant/vec/blas"
)

// chunk bounds the scratch buffer the blas kernels write into.
const chunk = 1024

var scratch = sync.Pool{
	New: func() any {
		buf := make(blas.Float32s, chunk)
		return &buf
	},
}

func installVector() {
	kernelDot = dotVec
	kernelSquaredL2 = squaredL2Vec
	kernelL1 = l1Vec
	kernelDotNorms = dotNormsVec
}

func dotVec(a, b []float32) float32 {
	bp := scratch.Get().(*blas.Float32s)
	defer scratch.Put(bp)

	var sum float32
	for i := 0; i < len(a); i += chunk {
		n := min(chunk, len(a)-i)
		p := (*bp)[:n]
		p.MulFloat32(a[i:i+n], b[i:i+n])
		sum += blas.HsumFloat32(p)
	}
	return sum
}

func squaredL2Vec(a, b []float32) float32 {
	bp := scratch.Get().(*blas.Float32s)
	defer scratch.Put(bp)

	var sum float32
	for i := 0; i < len(a); i += chunk {
		n := min(chunk, len(a)-i)
		d := (*bp)[:n]
		d.SubFloat32(a[i:i+n], b[i:i+n])
		d.MulFloat32(d, d)
		sum += blas.HsumFloat32(d)
	}
	return sum
}

// l1Vec has no vector abs to call, so the sign bits are cleared between
// the blas subtraction and the horizontal sum.
func l1Vec(a, b []float32) float32 {
	bp := scratch.Get().(*blas.Float32s)
	defer scratch.Put(bp)

	var sum float32
	for i := 0; i < len(a); i += chunk {
		n := min(chunk, len(a)-i)
		d := (*bp)[:n]
		d.SubFloat32(a[i:i+n], b[i:i+n])
		for j, v := range d {
			d[j] = math.Float32frombits(math.Float32bits(v) &^ (1 << 31))
		}
		sum += blas.HsumFloat32(d)
	}
	return sum
}

func dotNormsVec(a, b []float32) (dot, normA, normB float32) {
	return dotVec(a, b), squaredNorm(a), squaredNorm(b)
}
