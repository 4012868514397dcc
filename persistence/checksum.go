package persistence

import (
	"errors"
	"fmt"

	"github.com/hupe1980/vecsim/internal/hash"
)

// ChecksumMismatchError reports a CRC32C mismatch in a header or body.
type ChecksumMismatchError struct {
	Expected uint32
	Actual   uint32
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch: expected 0x%08x, got 0x%08x", e.Expected, e.Actual)
}

// Unwrap classifies checksum failures as corruption.
func (e *ChecksumMismatchError) Unwrap() error { return ErrCorrupt }

// IsChecksumMismatch reports whether err wraps a ChecksumMismatchError.
func IsChecksumMismatch(err error) bool {
	var target *ChecksumMismatchError
	return errors.As(err, &target)
}

func verifyChecksum(data []byte, expected uint32) error {
	if actual := hash.CRC32C(data); actual != expected {
		return &ChecksumMismatchError{Expected: expected, Actual: actual}
	}
	return nil
}
