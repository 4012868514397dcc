// Package codec encodes snapshot bodies and journal records.
//
// Snapshots record the codec name in their header, so a file written with
// one codec is always decoded with the same one. Changing Default only
// affects new snapshots.
package codec

import (
	"encoding/json"
	"slices"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec encodes and decodes values. Implementations must be safe for
// concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	// Name is stored in snapshot headers and must never change.
	Name() string
}

// MsgPack is compact and keeps float32 values as 4-byte floats, so vectors
// round-trip bit-exact.
type MsgPack struct{}

func (MsgPack) Marshal(v any) ([]byte, error)      { return msgpack.Marshal(v) }
func (MsgPack) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }
func (MsgPack) Name() string                       { return "msgpack" }

// JSON is larger and slower but readable with standard tools.
type JSON struct{}

func (JSON) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (JSON) Name() string                       { return "json" }

// Default is the codec used for new snapshots and journal records.
var Default Codec = MsgPack{}

var builtin = map[string]Codec{
	"json":    JSON{},
	"msgpack": MsgPack{},
}

// ByName returns a built-in codec by its stable name.
func ByName(name string) (Codec, bool) {
	c, ok := builtin[name]
	return c, ok
}

// Names lists the built-in codec names in sorted order.
func Names() []string {
	names := make([]string, 0, len(builtin))
	for n := range builtin {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
