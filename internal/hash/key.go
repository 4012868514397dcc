package hash

import (
	"encoding/binary"
	"math"
)

// Key accumulates the exact bytes of a query and the configuration it was
// evaluated under. Unlike a hash it cannot collide: two keys are equal
// only when every mixed value is equal. Methods append, so build each key
// as one chain and do not branch from a shared prefix.
type Key []byte

// NewKey returns an empty key with room for size bytes.
func NewKey(size int) Key {
	return make(Key, 0, size)
}

// Uint64 appends v in little-endian byte order.
func (k Key) Uint64(v uint64) Key {
	return binary.LittleEndian.AppendUint64(k, v)
}

// Int appends an int.
func (k Key) Int(v int) Key {
	return k.Uint64(uint64(v))
}

// Bool appends a bool.
func (k Key) Bool(v bool) Key {
	if v {
		return append(k, 1)
	}
	return append(k, 0)
}

// Text appends the length of s and then s, so adjacent strings cannot
// run together.
func (k Key) Text(s string) Key {
	return append(k.Int(len(s)), s...)
}

// Floats appends the length of v and the exact bit patterns of its
// elements. -0 and +0 are distinct, as are NaNs with different payloads.
func (k Key) Floats(v []float32) Key {
	k = k.Int(len(v))
	for _, x := range v {
		k = binary.LittleEndian.AppendUint32(k, math.Float32bits(x))
	}
	return k
}

// String returns the key as a comparable map key.
func (k Key) String() string {
	return string(k)
}
