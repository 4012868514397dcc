package persistence

import (
	"bytes"
	"fmt"
	"io"

	"github.com/hupe1980/vecsim/codec"
	"github.com/hupe1980/vecsim/distance"
	"github.com/hupe1980/vecsim/index"
	"github.com/hupe1980/vecsim/internal/hash"
	"github.com/hupe1980/vecsim/vectorstore"
)

// Snapshot is the full state of a DB: configuration plus every record in
// insertion order.
type Snapshot struct {
	Dimension int
	Metric    distance.Metric
	Algorithm index.Algorithm
	Params    index.Params
	Seed      uint64
	Records   []vectorstore.Record
}

// WriteOptions controls how a snapshot body is encoded.
type WriteOptions struct {
	Codec       codec.Codec     // defaults to codec.Default
	Compression CompressionType // defaults to none
	BlockSize   int             // defaults to DefaultBlockSize
}

type wireRecord struct {
	Key      string    `json:"key" msgpack:"key"`
	Vector   []float32 `json:"vector" msgpack:"vector"`
	Metadata string    `json:"metadata,omitempty" msgpack:"metadata,omitempty"`
}

type wireBody struct {
	Records []wireRecord `json:"records" msgpack:"records"`
}

// Write encodes snap to w: a FileHeader followed by the framed body.
// It returns the number of bytes written.
func Write(w io.Writer, snap *Snapshot, opts WriteOptions) (int64, error) {
	c := opts.Codec
	if c == nil {
		c = codec.Default
	}

	body := wireBody{Records: make([]wireRecord, len(snap.Records))}
	for i, r := range snap.Records {
		if len(r.Vector) != snap.Dimension {
			return 0, fmt.Errorf("persistence: record %q: %w", r.Key,
				&vectorstore.DimensionError{Expected: snap.Dimension, Actual: len(r.Vector)})
		}
		body.Records[i] = wireRecord{Key: r.Key, Vector: r.Vector, Metadata: r.Metadata}
	}

	raw, err := c.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("persistence: encode body: %w", err)
	}

	var framed bytes.Buffer
	bw := NewBlockWriter(&framed, opts.Compression, opts.BlockSize)
	if _, err := bw.Write(raw); err != nil {
		return 0, err
	}
	if err := bw.Flush(); err != nil {
		return 0, err
	}

	hdr := FileHeader{
		Compression:      uint8(opts.Compression),
		Metric:           uint8(snap.Metric),
		Algorithm:        uint8(snap.Algorithm),
		Dimension:        uint32(snap.Dimension),
		RecordCount:      uint64(len(snap.Records)),
		NumTables:        uint32(snap.Params.NumTables),
		NumHashFunctions: uint32(snap.Params.NumHashFunctions),
		M:                uint32(snap.Params.M),
		EfConstruction:   uint32(snap.Params.EfConstruction),
		EfSearch:         uint32(snap.Params.EfSearch),
		Seed:             snap.Seed,
		BodyLength:       uint64(framed.Len()),
		BodyChecksum:     hash.CRC32C(framed.Bytes()),
	}
	if err := hdr.setCodecName(c.Name()); err != nil {
		return 0, err
	}

	head, err := hdr.encode()
	if err != nil {
		return 0, err
	}

	n, err := w.Write(head)
	if err != nil {
		return int64(n), err
	}
	m, err := w.Write(framed.Bytes())
	return int64(n + m), err
}

// Read decodes a snapshot written by Write, verifying both checksums.
func Read(r io.Reader) (*Snapshot, error) {
	head := make([]byte, headerSize)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrCorrupt, err)
	}

	hdr, err := decodeHeader(head)
	if err != nil {
		return nil, err
	}

	c, ok := codec.ByName(hdr.CodecName())
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, hdr.CodecName())
	}

	metric := distance.Metric(hdr.Metric)
	if !metric.Valid() {
		return nil, fmt.Errorf("%w: unknown metric %d", ErrCorrupt, hdr.Metric)
	}
	algo := index.Algorithm(hdr.Algorithm)
	if !algo.Valid() {
		return nil, fmt.Errorf("%w: unknown algorithm %d", ErrCorrupt, hdr.Algorithm)
	}

	framed := make([]byte, hdr.BodyLength)
	if _, err := io.ReadFull(r, framed); err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrCorrupt, err)
	}
	if err := verifyChecksum(framed, hdr.BodyChecksum); err != nil {
		return nil, err
	}

	raw, err := decompressAll(framed, CompressionType(hdr.Compression))
	if err != nil {
		return nil, err
	}

	var body wireBody
	if err := c.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("%w: decode body: %v", ErrCorrupt, err)
	}
	if uint64(len(body.Records)) != hdr.RecordCount {
		return nil, fmt.Errorf("%w: expected %d records, found %d", ErrCorrupt, hdr.RecordCount, len(body.Records))
	}

	snap := &Snapshot{
		Dimension: int(hdr.Dimension),
		Metric:    metric,
		Algorithm: algo,
		Params: index.Params{
			NumTables:        int(hdr.NumTables),
			NumHashFunctions: int(hdr.NumHashFunctions),
			M:                int(hdr.M),
			EfConstruction:   int(hdr.EfConstruction),
			EfSearch:         int(hdr.EfSearch),
		},
		Seed:    hdr.Seed,
		Records: make([]vectorstore.Record, len(body.Records)),
	}
	for i, wr := range body.Records {
		if len(wr.Vector) != snap.Dimension {
			return nil, fmt.Errorf("%w: record %q has %d dimensions, want %d", ErrCorrupt, wr.Key, len(wr.Vector), snap.Dimension)
		}
		snap.Records[i] = vectorstore.Record{Key: wr.Key, Vector: wr.Vector, Metadata: wr.Metadata}
	}
	return snap, nil
}
