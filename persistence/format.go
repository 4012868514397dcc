package persistence

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hupe1980/vecsim/internal/hash"
)

const (
	// MagicNumber identifies snapshot files; the bytes read "VSIM" on disk.
	MagicNumber = 0x4D495356
	// Version is the current file format version.
	Version = 1

	maxCodecName = 16
)

var (
	ErrInvalidMagic   = errors.New("invalid magic number")
	ErrInvalidVersion = errors.New("unsupported version")
	ErrUnknownCodec   = errors.New("unknown codec")
	ErrCorrupt        = errors.New("corrupt snapshot")
)

// FileHeader is the fixed-size header at the start of every snapshot.
// All fields are little-endian. HeaderChecksum covers every byte before it.
type FileHeader struct {
	Magic       uint32
	Version     uint16
	Compression uint8
	Metric      uint8
	Algorithm   uint8
	CodecLen    uint8
	Padding     [2]byte
	Codec       [maxCodecName]byte

	Dimension   uint32
	RecordCount uint64

	NumTables        uint32
	NumHashFunctions uint32
	M                uint32
	EfConstruction   uint32
	EfSearch         uint32
	Seed             uint64

	BodyLength     uint64
	BodyChecksum   uint32 // CRC32C of the stored body
	HeaderChecksum uint32
}

// headerSize is the encoded size of FileHeader.
var headerSize = binary.Size(FileHeader{})

// CodecName returns the codec recorded in the header.
func (h *FileHeader) CodecName() string {
	n := min(int(h.CodecLen), maxCodecName)
	return string(h.Codec[:n])
}

func (h *FileHeader) setCodecName(name string) error {
	if len(name) == 0 || len(name) > maxCodecName {
		return fmt.Errorf("persistence: codec name %q must be 1 to %d bytes", name, maxCodecName)
	}
	h.CodecLen = uint8(len(name))
	h.Codec = [maxCodecName]byte{}
	copy(h.Codec[:], name)
	return nil
}

// encode serializes the header and fills in HeaderChecksum.
func (h *FileHeader) encode() ([]byte, error) {
	h.Magic = MagicNumber
	h.Version = Version

	var buf bytes.Buffer
	buf.Grow(headerSize)
	if err := binary.Write(&buf, binary.LittleEndian, h); err != nil {
		return nil, err
	}
	b := buf.Bytes()
	h.HeaderChecksum = hash.CRC32C(b[:headerSize-4])
	binary.LittleEndian.PutUint32(b[headerSize-4:], h.HeaderChecksum)
	return b, nil
}

// decodeHeader parses and validates a header.
func decodeHeader(b []byte) (*FileHeader, error) {
	if len(b) < headerSize {
		return nil, fmt.Errorf("%w: short header", ErrCorrupt)
	}

	var h FileHeader
	if err := binary.Read(bytes.NewReader(b[:headerSize]), binary.LittleEndian, &h); err != nil {
		return nil, err
	}
	if h.Magic != MagicNumber {
		return nil, fmt.Errorf("%w: 0x%08x", ErrInvalidMagic, h.Magic)
	}
	if h.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrInvalidVersion, h.Version)
	}
	if err := verifyChecksum(b[:headerSize-4], h.HeaderChecksum); err != nil {
		return nil, err
	}
	return &h, nil
}
