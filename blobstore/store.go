package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations return an error that satisfies `errors.Is(err, ErrNotFound)`.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// CurrentName is the pointer blob naming the latest committed snapshot.
const CurrentName = "CURRENT"

// Store is a flat namespace of named blobs.
// Implementations must be safe for concurrent use.
type Store interface {
	// Open opens a blob for sequential reading.
	Open(ctx context.Context, name string) (Blob, error)
	// Create starts a streaming write. The blob becomes visible under name
	// only when Close succeeds.
	Create(ctx context.Context, name string) (WritableBlob, error)
	// Put writes a blob atomically.
	Put(ctx context.Context, name string, data []byte) error
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the sorted names that start with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read handle to a blob.
type Blob interface {
	io.ReadCloser
	// Size returns the size of the blob in bytes.
	Size() int64
}

// WritableBlob is a pending blob.
type WritableBlob interface {
	io.Writer
	// Sync flushes buffered data to durable storage where supported.
	Sync() error
	// Close commits the blob.
	Close() error
	// Abort discards the blob. It is safe to call after Close.
	Abort() error
}

// ReadAll reads a whole blob.
func ReadAll(ctx context.Context, s Store, name string) ([]byte, error) {
	b, err := s.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = b.Close() }()
	return io.ReadAll(b)
}

// ReadCurrent returns the blob name recorded in the CURRENT pointer.
func ReadCurrent(ctx context.Context, s Store) (string, error) {
	data, err := ReadAll(ctx, s, CurrentName)
	if err != nil {
		return "", err
	}
	name := strings.TrimSpace(string(data))
	if name == "" {
		return "", fmt.Errorf("blobstore: empty %s pointer: %w", CurrentName, ErrNotFound)
	}
	return name, nil
}

// WriteCurrent points CURRENT at name.
func WriteCurrent(ctx context.Context, s Store, name string) error {
	if name == "" || strings.ContainsAny(name, "\r\n") {
		return fmt.Errorf("blobstore: invalid blob name %q", name)
	}
	return s.Put(ctx, CurrentName, []byte(name+"\n"))
}

// IsNotFound reports whether err means a blob is missing.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
