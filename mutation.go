package vecsim

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/vecsim/vectorstore"
	"github.com/hupe1980/vecsim/wal"
)

// undo restores the store after a failed journal write. old is nil when
// the key was new.
type undo struct {
	key string
	old *vectorstore.Record
}

func (db *DB) rollback(undos []undo) {
	for i := len(undos) - 1; i >= 0; i-- {
		u := undos[i]
		if u.old == nil {
			_, _ = db.store.Delete(u.key)
		} else {
			_, _, _ = db.store.Put(u.key, u.old.Vector, u.old.Metadata)
		}
	}
}

// put writes one record to the store and returns how to take it back.
func (db *DB) put(key string, vector []float32, metadata string) (uint32, undo, error) {
	if err := db.store.Validate(key, vector); err != nil {
		return 0, undo{}, err
	}

	u := undo{key: key}
	if old, err := db.store.Get(key); err == nil {
		u.old = &old
	}

	id, _, err := db.store.Put(key, vector, metadata)
	if err != nil {
		return 0, undo{}, err
	}
	return id, u, nil
}

// Insert stores vector under key, replacing any existing record.
func (db *DB) Insert(ctx context.Context, key string, vector []float32, metadata string) error {
	start := time.Now()

	db.mu.Lock()
	overwrite, err := db.insertLocked(key, vector, metadata)
	db.mu.Unlock()

	err = translateError(err)
	db.metrics.RecordInsert(time.Since(start), err)
	db.logger.LogInsert(ctx, key, overwrite, err)
	return err
}

func (db *DB) insertLocked(key string, vector []float32, metadata string) (bool, error) {
	if db.closed {
		return false, ErrClosed
	}

	id, u, err := db.put(key, vector, metadata)
	if err != nil {
		return false, err
	}
	overwrite := u.old != nil

	if j := db.pm.Journal(); j != nil {
		if overwrite {
			err = j.LogUpdate(key, vector, metadata)
		} else {
			err = j.LogInsert(key, vector, metadata)
		}
		if err != nil {
			db.rollback([]undo{u})
			return false, fmt.Errorf("journal: %w", err)
		}
	}

	if overwrite {
		if err := db.idx.Remove(id); err != nil {
			return true, err
		}
	}
	if err := db.idx.Add(id, vector); err != nil {
		return overwrite, err
	}
	db.cache.Clear()

	if overwrite {
		return true, db.maybeCompactLocked()
	}
	return false, nil
}

// BatchInsert stores items under one lock acquisition. Items are
// validated individually: invalid ones are reported in the result and
// the rest are stored. The index is updated once for the whole batch,
// which counts as one rebuild.
func (db *DB) BatchInsert(ctx context.Context, items []Record) ([]BatchItemResult, error) {
	if len(items) == 0 {
		return nil, ErrEmptyBatch
	}
	start := time.Now()

	db.mu.Lock()
	results, err := db.batchInsertLocked(items)
	db.mu.Unlock()

	if err != nil {
		return nil, translateError(err)
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	db.metrics.RecordBatchInsert(len(items), failed, time.Since(start))
	db.logger.LogBatchInsert(ctx, len(items), failed)
	return results, nil
}

func (db *DB) batchInsertLocked(items []Record) ([]BatchItemResult, error) {
	if db.closed {
		return nil, ErrClosed
	}

	results := make([]BatchItemResult, len(items))
	undos := make([]undo, 0, len(items))
	logged := make([]wal.Entry, 0, len(items))

	var (
		order   []uint32
		pending = map[uint32]pendingAdd{}
	)
	for i, it := range items {
		results[i].Key = it.Key
		id, u, err := db.put(it.Key, it.Vector, it.Metadata)
		if err != nil {
			results[i].Err = translateError(err)
			continue
		}
		undos = append(undos, u)
		logged = append(logged, wal.Entry{Key: it.Key, Vector: it.Vector, Metadata: it.Metadata})

		p, seen := pending[id]
		if !seen {
			order = append(order, id)
			p.indexed = u.old != nil
		}
		p.vector = it.Vector
		pending[id] = p
	}

	if len(undos) == 0 {
		return results, nil
	}

	if j := db.pm.Journal(); j != nil {
		if err := j.LogBatchInsert(logged); err != nil {
			db.rollback(undos)
			return nil, fmt.Errorf("journal: %w", err)
		}
	}

	if err := db.applyBatchLocked(order, pending); err != nil {
		return nil, err
	}
	db.cache.Clear()
	return results, nil
}

// pendingAdd is the last vector a batch wrote for one id. indexed is set
// when the id was in the index before the batch.
type pendingAdd struct {
	vector  []float32
	indexed bool
}

// applyBatchLocked brings the index up to date with one batch and counts
// a single rebuild. Batches covering at least half the store rebuild from
// scratch; smaller ones are applied incrementally.
func (db *DB) applyBatchLocked(order []uint32, pending map[uint32]pendingAdd) error {
	if 2*len(order) >= db.store.Len() {
		return db.rebuildLocked(db.idx)
	}

	start := time.Now()
	overwrote := false
	for _, id := range order {
		p := pending[id]
		if p.indexed {
			overwrote = true
			if err := db.idx.Remove(id); err != nil {
				return db.rebuildLocked(db.idx)
			}
		}
		if err := db.idx.Add(id, p.vector); err != nil {
			return db.rebuildLocked(db.idx)
		}
	}
	db.countRebuild(len(order), time.Since(start))

	if overwrote {
		return db.maybeCompactLocked()
	}
	return nil
}

// Delete removes key.
func (db *DB) Delete(ctx context.Context, key string) error {
	start := time.Now()

	db.mu.Lock()
	err := db.deleteLocked(key)
	db.mu.Unlock()

	err = translateError(err)
	db.metrics.RecordDelete(time.Since(start), err)
	db.logger.LogDelete(ctx, key, err)
	return err
}

func (db *DB) deleteLocked(key string) error {
	if db.closed {
		return ErrClosed
	}

	if _, ok := db.store.ID(key); !ok {
		return fmt.Errorf("%w: %q", vectorstore.ErrNotFound, key)
	}

	if j := db.pm.Journal(); j != nil {
		if err := j.LogDelete(key); err != nil {
			return fmt.Errorf("journal: %w", err)
		}
	}

	id, err := db.store.Delete(key)
	if err != nil {
		return err
	}
	if err := db.idx.Remove(id); err != nil {
		return err
	}
	db.cache.Clear()
	return db.maybeCompactLocked()
}

// Get returns a copy of the record stored under key.
func (db *DB) Get(key string) (Record, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return Record{}, ErrClosed
	}
	rec, err := db.store.Get(key)
	return rec, translateError(err)
}

// List returns one page of records in insertion order. page is 1-based;
// perPage defaults to 100 and is capped at 1000.
func (db *DB) List(page, perPage int) (Page, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return Page{}, ErrClosed
	}
	return db.store.List(page, perPage), nil
}
