package wal

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const (
	fileName = "vecsim.wal"

	headerLen     = 16
	headerVersion = uint16(1)
	flagZstd      = uint16(1)
)

var magic = [4]byte{'V', 'S', 'W', 'L'}

type headerInfo struct {
	Compressed       bool
	CompressionLevel int
}

// writeHeader writes [magic:4][version:2][flags:2][level:1][reserved:7].
func writeHeader(w io.Writer, info headerInfo) (int64, error) {
	var buf [headerLen]byte
	copy(buf[:4], magic[:])
	binary.LittleEndian.PutUint16(buf[4:6], headerVersion)
	if info.Compressed {
		binary.LittleEndian.PutUint16(buf[6:8], flagZstd)
		buf[8] = uint8(info.CompressionLevel)
	}

	if _, err := w.Write(buf[:]); err != nil {
		return 0, fmt.Errorf("failed to write WAL header: %w", err)
	}
	return headerLen, nil
}

func readHeader(f *os.File) (headerInfo, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return headerInfo{}, fmt.Errorf("failed to seek WAL: %w", err)
	}

	var buf [headerLen]byte
	if _, err := io.ReadFull(f, buf[:]); err != nil {
		return headerInfo{}, fmt.Errorf("failed to read WAL header: %w", err)
	}
	if [4]byte(buf[:4]) != magic {
		return headerInfo{}, fmt.Errorf("%w: invalid header magic", ErrCorrupt)
	}
	if v := binary.LittleEndian.Uint16(buf[4:6]); v != headerVersion {
		return headerInfo{}, fmt.Errorf("unsupported WAL header version: %d", v)
	}

	flags := binary.LittleEndian.Uint16(buf[6:8])
	return headerInfo{
		Compressed:       flags&flagZstd != 0,
		CompressionLevel: int(buf[8]),
	}, nil
}
