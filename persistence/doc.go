// Package persistence reads and writes DB snapshots and coordinates them
// with the commit journal.
//
// A snapshot file is a fixed little-endian FileHeader followed by a body.
// The header starts with the magic "VSIM" and a format version, records
// the dimension, metric, algorithm parameters and the codec used for the
// body, and carries a CRC32C over itself and over the stored body. The
// body is the codec-encoded record list, split into blocks that are
// optionally LZ4 or zstd compressed:
//
//	[FileHeader][block][block]...
//	block = [uncompressed uint32][stored uint32][payload]
//
// A stored size of 0 marks a block kept uncompressed.
//
// The Manager writes snapshots through a blobstore.Store, so local files
// and object stores share the same atomic commit path, and truncates the
// journal once a snapshot is durable.
package persistence
