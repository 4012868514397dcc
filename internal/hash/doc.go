// Package hash holds the checksums and query keys used across vecsim.
//
// Journal entries, snapshot headers and snapshot bodies carry a CRC32C
// (Castagnoli) checksum.
//
// # Query keys
//
// Key collects the exact bytes of a query vector and the configuration it
// was evaluated under. Two queries share a key only when they are equal
// value for value, so cached results are never served for another query.
//
//	key := hash.NewKey(64).Floats(query).Int(k).Text("cosine").String()
package hash
