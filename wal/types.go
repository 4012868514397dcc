package wal

import (
	"fmt"
	"strings"
	"time"
)

// DurabilityMode defines the fsync behavior for WAL writes.
type DurabilityMode int

const (
	// DurabilityAsync never fsyncs. Fastest, but a crash can lose
	// acknowledged writes.
	DurabilityAsync DurabilityMode = iota

	// DurabilityGroupCommit batches fsyncs at a fixed interval or after
	// GroupCommitMaxOps commits, whichever comes first. Writers block until
	// their commit is persisted.
	DurabilityGroupCommit

	// DurabilitySync fsyncs after every commit.
	DurabilitySync
)

var durabilityNames = [...]string{"async", "group", "sync"}

func (d DurabilityMode) String() string {
	if d >= 0 && int(d) < len(durabilityNames) {
		return durabilityNames[d]
	}
	return fmt.Sprintf("DurabilityMode(%d)", int(d))
}

// ParseDurability resolves "async", "group" or "sync".
func ParseDurability(s string) (DurabilityMode, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range durabilityNames {
		if n == name {
			return DurabilityMode(i), nil
		}
	}
	return DurabilityGroupCommit, fmt.Errorf("wal: unknown durability mode %q (want async, group or sync)", s)
}

// OperationType represents the type of an entry.
type OperationType uint8

const (
	// OpInsert, OpUpdate and OpDelete are the logical operations handed
	// to ReplayCommitted callbacks. They are never written to disk.
	OpInsert OperationType = iota
	OpUpdate
	OpDelete

	// OpCheckpoint marks the end of the replayable log.
	OpCheckpoint

	// A prepare entry records an intended mutation; the matching commit
	// entry makes it durable. Recovery applies only committed operations.
	OpPrepareInsert
	OpPrepareUpdate
	OpPrepareDelete
	OpCommitInsert
	OpCommitUpdate
	OpCommitDelete

	// A batch is a run of prepare entries closed by one commit carrying
	// the item count. It is applied all or nothing.
	OpPrepareBatchInsert
	OpCommitBatchInsert
)

var opNames = [...]string{
	"insert", "update", "delete", "checkpoint",
	"prepare-insert", "prepare-update", "prepare-delete",
	"commit-insert", "commit-update", "commit-delete",
	"prepare-batch-insert", "commit-batch-insert",
}

func (t OperationType) String() string {
	if int(t) < len(opNames) {
		return opNames[t]
	}
	return fmt.Sprintf("OperationType(%d)", uint8(t))
}

// logical reports whether t is only valid in replay callbacks.
func (t OperationType) logical() bool {
	return t <= OpDelete
}

func (t OperationType) hasPayload() bool {
	return t == OpPrepareInsert || t == OpPrepareUpdate || t == OpPrepareBatchInsert
}

// Entry represents a single entry in the WAL.
type Entry struct {
	Type     OperationType
	SeqNum   uint64 // Sequence number for ordering
	Key      string
	Vector   []float32
	Metadata string
	Count    uint32 // items closed by an OpCommitBatchInsert
}

// Options contains configuration for the WAL.
type Options struct {
	// Path is the directory where the WAL file is stored.
	Path string

	// Compress enables zstd compression of the entry stream.
	Compress bool

	// CompressionLevel sets the zstd compression level (1-22).
	CompressionLevel int

	// AutoCheckpointOps triggers the checkpoint callback after N committed
	// operations. 0 disables it.
	AutoCheckpointOps int

	// AutoCheckpointMB triggers the checkpoint callback when the file
	// exceeds N megabytes. 0 disables it.
	AutoCheckpointMB int

	// DurabilityMode controls fsync behavior (Async, GroupCommit, Sync).
	DurabilityMode DurabilityMode

	// GroupCommitInterval is the maximum time to wait before fsync in GroupCommit mode.
	GroupCommitInterval time.Duration

	// GroupCommitMaxOps is the maximum operations to batch before fsync in GroupCommit mode.
	GroupCommitMaxOps int
}

// DefaultOptions returns default WAL options.
var DefaultOptions = Options{
	Path:                ".",
	Compress:            false,
	CompressionLevel:    3,
	AutoCheckpointOps:   10000,
	AutoCheckpointMB:    100,
	DurabilityMode:      DurabilityGroupCommit,
	GroupCommitInterval: 10 * time.Millisecond,
	GroupCommitMaxOps:   100,
}
