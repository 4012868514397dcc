package wal

import (
	"errors"
	"fmt"
	"io"
)

// ReplayCommitted calls fn with every committed operation in log order,
// as OpInsert, OpUpdate or OpDelete entries. Prepares without a commit,
// including a batch cut short by a crash, are skipped. A torn final entry
// ends the replay; a checksum failure before the end is ErrCorrupt.
func (w *WAL) ReplayCommitted(fn func(entry Entry) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return ErrClosed
	}
	if err := w.flushLocked(); err != nil {
		return err
	}

	r, err := w.reader()
	if err != nil {
		return err
	}

	if err := replay(r, fn); err != nil {
		return err
	}

	_, err = w.file.Seek(0, io.SeekEnd)
	return err
}

func replay(r io.Reader, fn func(Entry) error) error {
	var (
		pending = map[OperationType]map[string]Entry{
			OpPrepareInsert: {},
			OpPrepareUpdate: {},
			OpPrepareDelete: {},
		}
		batch []Entry
	)

	apply := func(e Entry, typ OperationType, seq uint64) error {
		e.Type = typ
		e.SeqNum = seq
		if err := fn(e); err != nil {
			return fmt.Errorf("failed to replay entry %d: %w", seq, err)
		}
		return nil
	}

	for {
		var e Entry
		if _, err := readEntry(r, &e); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return fmt.Errorf("WAL corrupted after %d pending batch entries: %w", len(batch), err)
		}

		if e.Type != OpPrepareBatchInsert && e.Type != OpCommitBatchInsert {
			batch = batch[:0]
		}

		switch e.Type {
		case OpCheckpoint:
			return nil
		case OpPrepareInsert, OpPrepareUpdate, OpPrepareDelete:
			pending[e.Type][e.Key] = e
		case OpCommitInsert, OpCommitUpdate, OpCommitDelete:
			prepType, logical := commitPair(e.Type)
			prepared, ok := pending[prepType][e.Key]
			if !ok {
				continue
			}
			delete(pending[prepType], e.Key)
			if err := apply(prepared, logical, e.SeqNum); err != nil {
				return err
			}
		case OpPrepareBatchInsert:
			batch = append(batch, e)
		case OpCommitBatchInsert:
			if int(e.Count) != len(batch) {
				batch = batch[:0]
				continue
			}
			for _, b := range batch {
				if err := apply(b, OpInsert, b.SeqNum); err != nil {
					return err
				}
			}
			batch = batch[:0]
		}
	}
}

func commitPair(t OperationType) (prepare, logical OperationType) {
	switch t {
	case OpCommitInsert:
		return OpPrepareInsert, OpInsert
	case OpCommitUpdate:
		return OpPrepareUpdate, OpUpdate
	default:
		return OpPrepareDelete, OpDelete
	}
}
