package wal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/hupe1980/vecsim/internal/hash"
)

// ErrCorrupt is returned when an entry fails its checksum or cannot be parsed.
var ErrCorrupt = errors.New("wal: corrupt entry")

// maxPayload bounds a single entry so a damaged length cannot force a
// huge allocation.
const maxPayload = 64 << 20

const frameHeaderLen = 8

// appendEntry encodes entry as a frame:
//
//	[payloadLen:4][crc32c(payload):4][payload]
//	payload = [type:1][seq:8][key][vector][metadata][count:4]
//
// Strings and vectors are uvarint length prefixed.
func appendEntry(dst []byte, e *Entry) ([]byte, error) {
	if e.Type.logical() {
		return nil, fmt.Errorf("unsupported on-disk WAL entry type: %v", e.Type)
	}

	start := len(dst)
	dst = append(dst, make([]byte, frameHeaderLen)...)

	dst = append(dst, byte(e.Type))
	dst = binary.LittleEndian.AppendUint64(dst, e.SeqNum)
	dst = binary.AppendUvarint(dst, uint64(len(e.Key)))
	dst = append(dst, e.Key...)

	if e.Type.hasPayload() {
		dst = binary.AppendUvarint(dst, uint64(len(e.Vector)))
		for _, f := range e.Vector {
			dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(f))
		}
		dst = binary.AppendUvarint(dst, uint64(len(e.Metadata)))
		dst = append(dst, e.Metadata...)
	}
	if e.Type == OpCommitBatchInsert {
		dst = binary.LittleEndian.AppendUint32(dst, e.Count)
	}

	payload := dst[start+frameHeaderLen:]
	if len(payload) > maxPayload {
		return nil, fmt.Errorf("wal: entry of %d bytes exceeds limit", len(payload))
	}
	binary.LittleEndian.PutUint32(dst[start:], uint32(len(payload)))
	binary.LittleEndian.PutUint32(dst[start+4:], hash.CRC32C(payload))
	return dst, nil
}

// readEntry decodes the next frame from r and returns its encoded size.
// A clean end of stream is io.EOF; a frame cut short is
// io.ErrUnexpectedEOF.
func readEntry(r io.Reader, e *Entry) (int64, error) {
	var hdr [frameHeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, err
	}

	n := binary.LittleEndian.Uint32(hdr[0:4])
	if n == 0 || n > maxPayload {
		return 0, fmt.Errorf("%w: bad length %d", ErrCorrupt, n)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return 0, err
	}
	if sum := hash.CRC32C(payload); sum != binary.LittleEndian.Uint32(hdr[4:8]) {
		return 0, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	if err := decodePayload(payload, e); err != nil {
		return 0, err
	}
	return int64(frameHeaderLen) + int64(n), nil
}

func decodePayload(p []byte, e *Entry) error {
	d := decoder{buf: p}

	*e = Entry{Type: OperationType(d.u8())}
	e.SeqNum = d.u64()
	e.Key = d.str()

	if e.Type.hasPayload() {
		n := d.uvarint()
		if d.err == nil && n > uint64(len(d.buf))/4 {
			d.err = io.ErrUnexpectedEOF
		}
		if d.err == nil && n > 0 {
			e.Vector = make([]float32, n)
			for i := range e.Vector {
				e.Vector[i] = math.Float32frombits(d.u32())
			}
		}
		e.Metadata = d.str()
	}
	if e.Type == OpCommitBatchInsert {
		e.Count = d.u32()
	}

	if d.err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, d.err)
	}
	if e.Type.logical() || e.Type > OpCommitBatchInsert {
		return fmt.Errorf("%w: unknown entry type %d", ErrCorrupt, uint8(e.Type))
	}
	return nil
}

type decoder struct {
	buf []byte
	err error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if len(d.buf) < n {
		d.err = io.ErrUnexpectedEOF
		return nil
	}
	b := d.buf[:n]
	d.buf = d.buf[n:]
	return b
}

func (d *decoder) u8() byte {
	if b := d.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (d *decoder) u32() uint32 {
	if b := d.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (d *decoder) u64() uint64 {
	if b := d.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (d *decoder) uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.buf)
	if n <= 0 {
		d.err = io.ErrUnexpectedEOF
		return 0
	}
	d.buf = d.buf[n:]
	return v
}

func (d *decoder) str() string {
	n := d.uvarint()
	if d.err == nil && n > uint64(len(d.buf)) {
		d.err = io.ErrUnexpectedEOF
		return ""
	}
	return string(d.take(int(n)))
}
