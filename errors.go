package vecsim

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/vecsim/distance"
	"github.com/hupe1980/vecsim/index"
	"github.com/hupe1980/vecsim/internal/resource"
	"github.com/hupe1980/vecsim/persistence"
	"github.com/hupe1980/vecsim/vectorstore"
	"github.com/hupe1980/vecsim/wal"
)

var (
	// ErrNotFound is returned when a key is not present.
	ErrNotFound = errors.New("not found")

	// ErrInvalidK is returned when k is less than 1.
	ErrInvalidK = errors.New("k must be at least 1")

	// ErrCapacityExceeded is returned when an insert would exceed the
	// configured memory limit.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrClosed is returned by operations on a closed DB.
	ErrClosed = errors.New("db is closed")

	// ErrEmptyKey is returned when a record has an empty key.
	ErrEmptyKey = errors.New("key must not be empty")

	// ErrEmptyBatch is returned by BatchInsert when there are no items.
	ErrEmptyBatch = errors.New("batch is empty")

	// ErrNoSnapshotStore is returned by Save when persistence is not configured.
	ErrNoSnapshotStore = errors.New("no snapshot store configured")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// ErrInvalidConfiguration reports a rejected metric, algorithm or
// parameter. Available lists the accepted values when there is a fixed
// set.
type ErrInvalidConfiguration struct {
	Field     string
	Value     string
	Available []string
	cause     error
}

func (e *ErrInvalidConfiguration) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "invalid %s", e.Field)
	if e.Value != "" {
		fmt.Fprintf(&b, " %q", e.Value)
	}
	if e.cause != nil {
		fmt.Fprintf(&b, ": %v", e.cause)
	}
	if len(e.Available) > 0 {
		fmt.Fprintf(&b, " (available: %s)", strings.Join(e.Available, ", "))
	}
	return b.String()
}

func (e *ErrInvalidConfiguration) Unwrap() error { return e.cause }

// BatchItemResult is the outcome of one item of a batch insert. Err is
// nil on success.
type BatchItemResult struct {
	Key string
	Err error
}

func invalidMetric(value string) error {
	return &ErrInvalidConfiguration{Field: "metric", Value: value, Available: distance.AvailableMetrics()}
}

func invalidAlgorithm(value string, cause error) error {
	return &ErrInvalidConfiguration{Field: "algorithm", Value: value, Available: index.AvailableAlgorithms(), cause: cause}
}

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Already normalized.
	var dm *ErrDimensionMismatch
	var ic *ErrInvalidConfiguration
	if errors.As(err, &dm) || errors.As(err, &ic) ||
		errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidK) ||
		errors.Is(err, ErrCapacityExceeded) || errors.Is(err, ErrClosed) ||
		errors.Is(err, ErrEmptyKey) || errors.Is(err, ErrNoSnapshotStore) {
		return err
	}

	// Not found unification.
	if errors.Is(err, vectorstore.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	// Dimension and argument normalization.
	var vd *vectorstore.DimensionError
	if errors.As(err, &vd) {
		return &ErrDimensionMismatch{Expected: vd.Expected, Actual: vd.Actual, cause: err}
	}
	var id *index.ErrDimensionMismatch
	if errors.As(err, &id) {
		return &ErrDimensionMismatch{Expected: id.Expected, Actual: id.Actual, cause: err}
	}
	if errors.Is(err, index.ErrInvalidK) {
		return fmt.Errorf("%w: %w", ErrInvalidK, err)
	}
	if errors.Is(err, vectorstore.ErrEmptyKey) {
		return fmt.Errorf("%w: %w", ErrEmptyKey, err)
	}

	var pe *index.ParamError
	if errors.As(err, &pe) {
		return &ErrInvalidConfiguration{Field: pe.Name, Value: fmt.Sprint(pe.Value), cause: err}
	}
	if errors.Is(err, index.ErrUnknownAlgorithm) {
		return invalidAlgorithm("", err)
	}

	if errors.Is(err, resource.ErrMemoryLimitExceeded) {
		return fmt.Errorf("%w: %w", ErrCapacityExceeded, err)
	}

	if errors.Is(err, wal.ErrClosed) || errors.Is(err, persistence.ErrManagerClosed) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	if errors.Is(err, persistence.ErrNoStore) {
		return fmt.Errorf("%w: %w", ErrNoSnapshotStore, err)
	}

	return err
}
