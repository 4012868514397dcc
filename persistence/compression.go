package persistence

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionType selects the snapshot body compression.
type CompressionType uint8

const (
	// CompressionNone stores the body as is.
	CompressionNone CompressionType = 0
	// CompressionLZ4 uses LZ4 block compression.
	CompressionLZ4 CompressionType = 1
	// CompressionZSTD uses zstd block compression.
	CompressionZSTD CompressionType = 2
)

// DefaultBlockSize is the uncompressed size of one body block.
const DefaultBlockSize = 256 * 1024

const blockHeaderSize = 8

var ErrUnknownCompression = errors.New("unknown compression")

var compressionNames = [...]string{"none", "lz4", "zstd"}

func (c CompressionType) String() string {
	if int(c) < len(compressionNames) {
		return compressionNames[c]
	}
	return fmt.Sprintf("CompressionType(%d)", uint8(c))
}

// ParseCompression resolves a compression name. The empty string means none.
func ParseCompression(s string) (CompressionType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return CompressionNone, nil
	}
	for i, n := range compressionNames {
		if n == name {
			return CompressionType(i), nil
		}
	}
	return CompressionNone, fmt.Errorf("%w: %q", ErrUnknownCompression, s)
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// compressBlock frames data as [uncompressed uint32][compressed uint32][payload].
// A compressed size of 0 marks a raw payload.
func compressBlock(data []byte, ct CompressionType) ([]byte, error) {
	var compressed []byte

	switch ct {
	case CompressionNone:
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		compressed = buf[:n]
	case CompressionZSTD:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCompression, uint8(ct))
	}

	// Not worth it below a 10% saving.
	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		out := make([]byte, blockHeaderSize+len(data))
		binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
		copy(out[blockHeaderSize:], data)
		return out, nil
	}

	out := make([]byte, blockHeaderSize+len(compressed))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(compressed)))
	copy(out[blockHeaderSize:], compressed)
	return out, nil
}

// decompressBlock decodes the block at the start of data and returns it
// with the number of bytes consumed.
func decompressBlock(data []byte, ct CompressionType) ([]byte, int, error) {
	if len(data) < blockHeaderSize {
		return nil, 0, fmt.Errorf("%w: block too small for header", ErrCorrupt)
	}

	rawSize := binary.LittleEndian.Uint32(data[0:])
	storedSize := binary.LittleEndian.Uint32(data[4:])

	if storedSize == 0 {
		end := blockHeaderSize + int(rawSize)
		if len(data) < end {
			return nil, 0, fmt.Errorf("%w: block extends beyond body", ErrCorrupt)
		}
		return data[blockHeaderSize:end], end, nil
	}

	end := blockHeaderSize + int(storedSize)
	if len(data) < end {
		return nil, 0, fmt.Errorf("%w: compressed block extends beyond body", ErrCorrupt)
	}
	payload := data[blockHeaderSize:end]
	out := make([]byte, rawSize)

	switch ct {
	case CompressionLZ4:
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		out = out[:n]
	case CompressionZSTD:
		dec := getZstdDecoder()
		decoded, err := dec.DecodeAll(payload, out[:0])
		zstdDecoderPool.Put(dec)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		out = decoded
	default:
		return nil, 0, fmt.Errorf("%w: %d", ErrUnknownCompression, uint8(ct))
	}

	if uint32(len(out)) != rawSize {
		return nil, 0, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
	}
	return out, end, nil
}

// BlockWriter buffers writes and emits framed, compressed blocks.
type BlockWriter struct {
	w         io.Writer
	ct        CompressionType
	blockSize int
	buffer    *bytes.Buffer
	written   int64
}

// NewBlockWriter creates a block writer. A blockSize <= 0 selects
// DefaultBlockSize.
func NewBlockWriter(w io.Writer, ct CompressionType, blockSize int) *BlockWriter {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &BlockWriter{
		w:         w,
		ct:        ct,
		blockSize: blockSize,
		buffer:    bytes.NewBuffer(make([]byte, 0, blockSize)),
	}
}

// Write implements io.Writer.
func (b *BlockWriter) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		space := b.blockSize - b.buffer.Len()
		if space <= 0 {
			if err := b.Flush(); err != nil {
				return total, err
			}
			space = b.blockSize
		}

		n, _ := b.buffer.Write(p[:min(len(p), space)])
		total += n
		p = p[n:]
	}
	return total, nil
}

// Flush compresses and writes the buffered block, if any.
func (b *BlockWriter) Flush() error {
	if b.buffer.Len() == 0 {
		return nil
	}

	block, err := compressBlock(b.buffer.Bytes(), b.ct)
	if err != nil {
		return err
	}

	n, err := b.w.Write(block)
	b.written += int64(n)
	if err != nil {
		return err
	}
	b.buffer.Reset()
	return nil
}

// BytesWritten returns the framed bytes written to the underlying writer.
func (b *BlockWriter) BytesWritten() int64 { return b.written }

// decompressAll decodes every block in data.
func decompressAll(data []byte, ct CompressionType) ([]byte, error) {
	var out []byte
	for len(data) > 0 {
		block, n, err := decompressBlock(data, ct)
		if err != nil {
			return nil, err
		}
		out = append(out, block...)
		data = data[n:]
	}
	return out, nil
}
