// Package wal provides the commit log that makes mutations durable
// between snapshots.
//
// Every mutation is written as a prepare entry followed by a commit
// entry; recovery applies only committed operations. Batch inserts are a
// run of prepares closed by a single commit and replay all or nothing.
// Each entry is framed with its length and a CRC32C, and the stream may
// be zstd compressed.
//
// Features:
//   - Single operation logging (LogInsert, LogUpdate, LogDelete)
//   - Atomic batch logging (LogBatchInsert)
//   - Durability modes: async, group commit, sync
//   - Checkpoint truncation after a snapshot
//   - Auto-checkpoint by committed operation count or file size
package wal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// ErrClosed is returned when the WAL has been closed.
var ErrClosed = errors.New("wal: closed")

var _ Journal = (*WAL)(nil)

// WAL provides write-ahead logging for durability.
type WAL struct {
	mu               sync.Mutex
	file             *os.File
	bufWriter        *bufio.Writer
	compressor       *zstd.Encoder
	decompressor     *zstd.Decoder
	seqNum           uint64
	filePath         string
	compressed       bool
	compressionLevel int
	dataOffset       int64
	scratch          []byte

	// Auto-checkpoint
	autoCheckpointOps int
	autoCheckpointMB  int
	committedOps      int
	checkpointFunc    func() error

	// Group commit
	durabilityMode      DurabilityMode
	groupCommitInterval time.Duration
	groupCommitMaxOps   int
	groupCommitTicker   *time.Ticker
	groupCommitStopCh   chan struct{}
	groupCommitPending  int
	groupCommitWg       sync.WaitGroup
	syncCond            *sync.Cond
	persistedSeqNum     uint64
	epoch               uint64 // bumped by truncation; seqNums restart
}

// New opens or creates the WAL in Options.Path.
func New(optFns ...func(o *Options)) (*WAL, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Compress && (opts.CompressionLevel < 1 || opts.CompressionLevel > 22) {
		return nil, fmt.Errorf("wal: compression level must be in [1, 22], got %d", opts.CompressionLevel)
	}

	if err := os.MkdirAll(opts.Path, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create WAL directory: %w", err)
	}

	filePath := filepath.Join(opts.Path, fileName)
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAL file: %w", err)
	}

	w := &WAL{
		file:                file,
		filePath:            filePath,
		compressed:          opts.Compress,
		compressionLevel:    opts.CompressionLevel,
		autoCheckpointOps:   opts.AutoCheckpointOps,
		autoCheckpointMB:    opts.AutoCheckpointMB,
		durabilityMode:      opts.DurabilityMode,
		groupCommitInterval: opts.GroupCommitInterval,
		groupCommitMaxOps:   max(opts.GroupCommitMaxOps, 1),
	}
	w.syncCond = sync.NewCond(&w.mu)

	if err := w.open(); err != nil {
		_ = file.Close()
		return nil, err
	}

	if w.durabilityMode == DurabilityGroupCommit && w.groupCommitInterval > 0 {
		w.groupCommitStopCh = make(chan struct{})
		w.groupCommitTicker = time.NewTicker(w.groupCommitInterval)
		w.groupCommitWg.Add(1)
		go w.groupCommitWorker()
	}

	return w, nil
}

// open reads or writes the header, scans for the last sequence number and
// positions the writer at the end of the valid log.
func (w *WAL) open() error {
	st, err := w.file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat WAL file: %w", err)
	}

	if st.Size() == 0 {
		n, err := writeHeader(w.file, headerInfo{Compressed: w.compressed, CompressionLevel: w.compressionLevel})
		if err != nil {
			return err
		}
		w.dataOffset = n
	} else {
		info, err := readHeader(w.file)
		if err != nil {
			return err
		}
		// The file decides; options only apply to new logs.
		w.compressed = info.Compressed
		w.compressionLevel = info.CompressionLevel
		w.dataOffset = headerLen
	}

	if w.compressed {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return fmt.Errorf("failed to create decompressor: %w", err)
		}
		w.decompressor = dec
	}

	end, err := w.scan()
	if err != nil {
		return fmt.Errorf("failed to scan WAL: %w", err)
	}

	// Drop a torn tail so new entries are not appended after garbage.
	if !w.compressed {
		if err := w.file.Truncate(end); err != nil {
			return err
		}
	}
	if _, err := w.file.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	return w.resetWriter()
}

func (w *WAL) resetWriter() error {
	if !w.compressed {
		w.bufWriter = bufio.NewWriter(w.file)
		return nil
	}

	level := zstd.EncoderLevelFromZstd(w.compressionLevel)
	enc, err := zstd.NewWriter(w.file, zstd.WithEncoderLevel(level))
	if err != nil {
		return fmt.Errorf("failed to create compressor: %w", err)
	}
	w.compressor = enc
	w.bufWriter = bufio.NewWriter(enc)
	return nil
}

// reader returns a reader over the entry stream. Caller must hold w.mu.
func (w *WAL) reader() (io.Reader, error) {
	if _, err := w.file.Seek(w.dataOffset, io.SeekStart); err != nil {
		return nil, err
	}
	if !w.compressed {
		return bufio.NewReader(w.file), nil
	}
	if err := w.decompressor.Reset(w.file); err != nil {
		return nil, fmt.Errorf("failed to reset decompressor: %w", err)
	}
	return w.decompressor, nil
}

// scan finds the highest sequence number and the end of the last intact
// entry.
func (w *WAL) scan() (int64, error) {
	r, err := w.reader()
	if err != nil {
		return 0, err
	}

	end := w.dataOffset
	for {
		var e Entry
		n, err := readEntry(r, &e)
		if err != nil {
			break
		}
		end += n
		w.seqNum = max(w.seqNum, e.SeqNum)
	}
	w.persistedSeqNum = w.seqNum
	return end, nil
}

// FilePath returns the path to the WAL file.
func (w *WAL) FilePath() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.filePath
}

// SeqNum returns the last assigned sequence number.
func (w *WAL) SeqNum() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seqNum
}

// LogInsert logs an insert of a new key.
func (w *WAL) LogInsert(key string, vector []float32, metadata string) error {
	return w.logOperation(OpPrepareInsert, OpCommitInsert, key, vector, metadata)
}

// LogUpdate logs an overwrite of an existing key.
func (w *WAL) LogUpdate(key string, vector []float32, metadata string) error {
	return w.logOperation(OpPrepareUpdate, OpCommitUpdate, key, vector, metadata)
}

// LogDelete logs a delete.
func (w *WAL) LogDelete(key string) error {
	return w.logOperation(OpPrepareDelete, OpCommitDelete, key, nil, "")
}

func (w *WAL) logOperation(prepareType, commitType OperationType, key string, vector []float32, metadata string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return ErrClosed
	}

	if err := w.appendLocked(&Entry{Type: prepareType, Key: key, Vector: vector, Metadata: metadata}); err != nil {
		return fmt.Errorf("failed to encode WAL prepare entry: %w", err)
	}
	if err := w.appendLocked(&Entry{Type: commitType, Key: key}); err != nil {
		return fmt.Errorf("failed to encode WAL commit entry: %w", err)
	}
	return w.commitLocked(1)
}

// LogBatchInsert logs batch as one atomic unit. Only Key, Vector and
// Metadata of each entry are used.
func (w *WAL) LogBatchInsert(batch []Entry) error {
	if len(batch) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return ErrClosed
	}

	for i := range batch {
		e := Entry{Type: OpPrepareBatchInsert, Key: batch[i].Key, Vector: batch[i].Vector, Metadata: batch[i].Metadata}
		if err := w.appendLocked(&e); err != nil {
			return fmt.Errorf("failed to encode WAL prepare entry %d: %w", i, err)
		}
	}
	if err := w.appendLocked(&Entry{Type: OpCommitBatchInsert, Count: uint32(len(batch))}); err != nil {
		return fmt.Errorf("failed to encode WAL batch commit: %w", err)
	}
	return w.commitLocked(len(batch))
}

// appendLocked assigns the next sequence number and buffers e.
func (w *WAL) appendLocked(e *Entry) error {
	w.seqNum++
	e.SeqNum = w.seqNum

	buf, err := appendEntry(w.scratch[:0], e)
	if err != nil {
		return err
	}
	w.scratch = buf
	_, err = w.bufWriter.Write(buf)
	return err
}

// commitLocked makes buffered entries durable per the durability mode
// and runs the auto-checkpoint check.
func (w *WAL) commitLocked(ops int) error {
	if err := w.flushLocked(); err != nil {
		return err
	}
	if err := w.syncIfNeeded(); err != nil {
		return err
	}
	w.committedOps += ops
	return w.maybeCheckpointLocked()
}

func (w *WAL) flushLocked() error {
	if err := w.bufWriter.Flush(); err != nil {
		return fmt.Errorf("failed to flush buffer: %w", err)
	}
	if w.compressed {
		if err := w.compressor.Flush(); err != nil {
			return fmt.Errorf("failed to flush compressor: %w", err)
		}
	}
	return nil
}

// syncIfNeeded performs fsync based on the configured durability mode.
func (w *WAL) syncIfNeeded() error {
	switch w.durabilityMode {
	case DurabilitySync:
		if err := w.file.Sync(); err != nil {
			return err
		}
		w.persistedSeqNum = w.seqNum
		return nil

	case DurabilityGroupCommit:
		w.groupCommitPending++
		target, epoch := w.seqNum, w.epoch

		if w.groupCommitPending >= w.groupCommitMaxOps || w.groupCommitTicker == nil {
			return w.doGroupCommit()
		}
		// Wait releases w.mu so the worker can sync.
		for w.persistedSeqNum < target && w.epoch == epoch && w.file != nil {
			w.syncCond.Wait()
		}
		if w.file == nil {
			return ErrClosed
		}
		return nil

	default:
		return nil
	}
}

// doGroupCommit fsyncs pending entries and wakes waiting writers.
// Caller must hold w.mu.
func (w *WAL) doGroupCommit() error {
	if w.groupCommitPending == 0 {
		return nil
	}
	if err := w.file.Sync(); err != nil {
		return err
	}
	w.groupCommitPending = 0
	w.persistedSeqNum = w.seqNum
	w.syncCond.Broadcast()
	return nil
}

func (w *WAL) groupCommitWorker() {
	defer w.groupCommitWg.Done()

	for {
		select {
		case <-w.groupCommitStopCh:
			w.mu.Lock()
			_ = w.doGroupCommit()
			w.mu.Unlock()
			return
		case <-w.groupCommitTicker.C:
			w.mu.Lock()
			_ = w.doGroupCommit()
			w.mu.Unlock()
		}
	}
}

// Checkpoint writes a checkpoint marker, fsyncs and truncates the log.
// Call it once a snapshot covering every logged operation is durable.
func (w *WAL) Checkpoint() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return ErrClosed
	}

	if err := w.appendLocked(&Entry{Type: OpCheckpoint}); err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := w.flushLocked(); err != nil {
		return err
	}
	if err := w.file.Sync(); err != nil {
		return err
	}
	return w.truncateLocked()
}

func (w *WAL) truncateLocked() error {
	if w.compressed {
		if err := w.compressor.Close(); err != nil {
			return fmt.Errorf("failed to close compressor: %w", err)
		}
	}
	if err := w.file.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate WAL file: %w", err)
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	n, err := writeHeader(w.file, headerInfo{Compressed: w.compressed, CompressionLevel: w.compressionLevel})
	if err != nil {
		return err
	}
	if err := w.file.Sync(); err != nil {
		return err
	}
	w.dataOffset = n
	w.epoch++
	w.seqNum = 0
	w.persistedSeqNum = 0
	w.groupCommitPending = 0
	w.committedOps = 0
	w.syncCond.Broadcast()
	return w.resetWriter()
}

// Close flushes pending entries, stops the group commit worker and
// closes the file. Close is idempotent.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}

	if w.groupCommitTicker != nil {
		close(w.groupCommitStopCh)
		w.mu.Unlock()
		w.groupCommitWg.Wait()
		w.mu.Lock()
		w.groupCommitTicker.Stop()
		w.groupCommitTicker = nil
	}

	var errs []error
	if err := w.bufWriter.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("failed to flush buffer: %w", err))
	}
	if w.compressed && w.compressor != nil {
		if err := w.compressor.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close compressor: %w", err))
		}
	}
	if w.decompressor != nil {
		w.decompressor.Close()
	}
	if w.durabilityMode != DurabilityAsync {
		if err := w.file.Sync(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := w.file.Close(); err != nil {
		errs = append(errs, err)
	}
	w.file = nil
	w.syncCond.Broadcast()
	return errors.Join(errs...)
}

// Len returns the number of intact entries on disk.
func (w *WAL) Len() (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, ErrClosed
	}
	if err := w.flushLocked(); err != nil {
		return 0, err
	}

	r, err := w.reader()
	if err != nil {
		return 0, err
	}

	count := 0
	for {
		var e Entry
		if _, err := readEntry(r, &e); err != nil {
			break
		}
		count++
	}

	_, err = w.file.Seek(0, io.SeekEnd)
	return count, err
}

// SetCheckpointCallback sets the function run when an auto-checkpoint
// threshold is crossed. The callback runs without the WAL lock held, on
// the goroutine that committed the crossing operation.
func (w *WAL) SetCheckpointCallback(fn func() error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.checkpointFunc = fn
}

// maybeCheckpointLocked must be called with w.mu held.
func (w *WAL) maybeCheckpointLocked() error {
	if w.autoCheckpointOps > 0 && w.committedOps >= w.autoCheckpointOps {
		return w.triggerAutoCheckpointLocked()
	}

	if w.autoCheckpointMB > 0 {
		if st, err := w.file.Stat(); err == nil && st.Size()>>20 >= int64(w.autoCheckpointMB) {
			return w.triggerAutoCheckpointLocked()
		}
	}
	return nil
}

func (w *WAL) triggerAutoCheckpointLocked() error {
	if w.checkpointFunc == nil {
		return nil
	}
	w.committedOps = 0

	fn := w.checkpointFunc
	w.mu.Unlock()
	err := fn()
	w.mu.Lock()
	return err
}
