// Package badgerwal implements wal.Journal on top of BadgerDB.
//
// Each logged operation is one badger transaction under the key
// "op/<seq>", so an operation, batches included, is either fully on
// disk or absent. Checkpoint drops the whole prefix.
package badgerwal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/hupe1980/vecsim/codec"
	"github.com/hupe1980/vecsim/wal"
)

var _ wal.Journal = (*Journal)(nil)

var opPrefix = []byte("op/")

// Options configures the journal.
type Options struct {
	// Dir is the badger data directory. Required unless InMemory.
	Dir string

	// InMemory runs badger without touching disk. Useful for tests.
	InMemory bool

	// SyncWrites fsyncs every transaction.
	SyncWrites bool

	// AutoCheckpointOps triggers the checkpoint callback after N logged
	// operations. 0 disables it.
	AutoCheckpointOps int

	// Codec encodes records. Defaults to codec.Default.
	Codec codec.Codec

	// Logger receives badger's warnings and errors.
	Logger *slog.Logger
}

// DefaultOptions are used when no option function changes them.
var DefaultOptions = Options{
	AutoCheckpointOps: wal.DefaultOptions.AutoCheckpointOps,
}

type record struct {
	Type     wal.OperationType `msgpack:"t" json:"t"`
	Key      string            `msgpack:"k,omitempty" json:"k,omitempty"`
	Vector   []float32         `msgpack:"v,omitempty" json:"v,omitempty"`
	Metadata string            `msgpack:"m,omitempty" json:"m,omitempty"`
	Batch    []record          `msgpack:"b,omitempty" json:"b,omitempty"`
}

// Journal is a badger-backed wal.Journal.
type Journal struct {
	mu     sync.Mutex
	db     *badger.DB
	codec  codec.Codec
	seq    uint64
	closed bool

	autoCheckpointOps int
	ops               int
	checkpointFunc    func() error
}

// Open opens or creates a journal.
func Open(optFns ...func(o *Options)) (*Journal, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("badgerwal: Dir is required for on-disk mode")
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	dbOpts := badger.DefaultOptions(opts.Dir).
		WithInMemory(opts.InMemory).
		WithSyncWrites(opts.SyncWrites).
		WithLogger(slogAdapter{l: opts.Logger.With("component", "badger")})
	if opts.InMemory {
		dbOpts.Dir, dbOpts.ValueDir = "", ""
	}

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("badgerwal: open: %w", err)
	}

	j := &Journal{db: db, codec: opts.Codec, autoCheckpointOps: opts.AutoCheckpointOps}
	if j.seq, err = j.lastSeq(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) lastSeq() (uint64, error) {
	var seq uint64
	err := j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Reverse: true, Prefix: opPrefix})
		defer it.Close()

		// Reverse iteration seeks to the greatest key <= the seek key.
		seek := append(append([]byte(nil), opPrefix...), 0xff)
		it.Seek(seek)
		if it.ValidForPrefix(opPrefix) {
			seq = decodeKey(it.Item().Key())
		}
		return nil
	})
	return seq, err
}

func opKey(seq uint64) []byte {
	k := make([]byte, len(opPrefix)+8)
	copy(k, opPrefix)
	binary.BigEndian.PutUint64(k[len(opPrefix):], seq)
	return k
}

func decodeKey(k []byte) uint64 {
	return binary.BigEndian.Uint64(k[len(opPrefix):])
}

// SeqNum returns the last assigned sequence number.
func (j *Journal) SeqNum() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.seq
}

// LogInsert implements wal.Journal.
func (j *Journal) LogInsert(key string, vector []float32, metadata string) error {
	return j.log(record{Type: wal.OpInsert, Key: key, Vector: vector, Metadata: metadata})
}

// LogUpdate implements wal.Journal.
func (j *Journal) LogUpdate(key string, vector []float32, metadata string) error {
	return j.log(record{Type: wal.OpUpdate, Key: key, Vector: vector, Metadata: metadata})
}

// LogDelete implements wal.Journal.
func (j *Journal) LogDelete(key string) error {
	return j.log(record{Type: wal.OpDelete, Key: key})
}

// LogBatchInsert implements wal.Journal. The batch is stored as a single
// value.
func (j *Journal) LogBatchInsert(batch []wal.Entry) error {
	if len(batch) == 0 {
		return nil
	}
	rec := record{Type: wal.OpCommitBatchInsert, Batch: make([]record, len(batch))}
	for i, e := range batch {
		rec.Batch[i] = record{Type: wal.OpInsert, Key: e.Key, Vector: e.Vector, Metadata: e.Metadata}
	}
	return j.log(rec)
}

func (j *Journal) log(rec record) error {
	val, err := j.codec.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("badgerwal: encode: %w", err)
	}

	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return wal.ErrClosed
	}

	seq := j.seq + 1
	if err := j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(opKey(seq), val)
	}); err != nil {
		j.mu.Unlock()
		return fmt.Errorf("badgerwal: write %d: %w", seq, err)
	}
	j.seq = seq
	j.ops++

	var fn func() error
	if j.autoCheckpointOps > 0 && j.ops >= j.autoCheckpointOps && j.checkpointFunc != nil {
		j.ops = 0
		fn = j.checkpointFunc
	}
	j.mu.Unlock()

	if fn != nil {
		return fn()
	}
	return nil
}

// ReplayCommitted implements wal.Journal. Batch items are reported as
// OpInsert entries sharing the batch's sequence number.
func (j *Journal) ReplayCommitted(fn func(entry wal.Entry) error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return wal.ErrClosed
	}

	return j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: opPrefix, PrefetchValues: true, PrefetchSize: 100})
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(opPrefix); it.Next() {
			item := it.Item()
			seq := decodeKey(item.Key())

			var rec record
			if err := item.Value(func(val []byte) error {
				return j.codec.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("badgerwal: decode %d: %w", seq, err)
			}

			items := rec.Batch
			if rec.Type != wal.OpCommitBatchInsert {
				items = []record{rec}
			}
			for _, r := range items {
				e := wal.Entry{Type: r.Type, SeqNum: seq, Key: r.Key, Vector: r.Vector, Metadata: r.Metadata}
				if err := fn(e); err != nil {
					return fmt.Errorf("failed to replay entry %d: %w", seq, err)
				}
			}
		}
		return nil
	})
}

// Checkpoint implements wal.Journal.
func (j *Journal) Checkpoint() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return wal.ErrClosed
	}
	if err := j.db.DropPrefix(opPrefix); err != nil {
		return fmt.Errorf("badgerwal: checkpoint: %w", err)
	}
	j.ops = 0
	return nil
}

// SetCheckpointCallback implements wal.Journal. The callback runs on the
// goroutine whose write crossed the threshold, without the journal lock.
func (j *Journal) SetCheckpointCallback(fn func() error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.checkpointFunc = fn
}

// Close implements wal.Journal. Close is idempotent.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true
	return j.db.Close()
}

// slogAdapter routes badger's logger to slog, dropping info and debug.
type slogAdapter struct {
	l *slog.Logger
}

func (a slogAdapter) Errorf(f string, v ...any) {
	a.l.Error(fmt.Sprintf(f, v...))
}

func (a slogAdapter) Warningf(f string, v ...any) {
	a.l.Warn(fmt.Sprintf(f, v...))
}

func (slogAdapter) Infof(string, ...any)  {}
func (slogAdapter) Debugf(string, ...any) {}
