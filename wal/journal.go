package wal

// Journal is a durable log of mutations replayed on top of the latest
// snapshot. WAL and badgerwal.Journal implement it.
type Journal interface {
	LogInsert(key string, vector []float32, metadata string) error
	LogUpdate(key string, vector []float32, metadata string) error
	LogDelete(key string) error
	LogBatchInsert(batch []Entry) error

	// ReplayCommitted calls fn with each committed operation in order.
	ReplayCommitted(fn func(entry Entry) error) error
	// Checkpoint discards everything logged so far.
	Checkpoint() error
	// SetCheckpointCallback registers the auto-checkpoint hook.
	SetCheckpointCallback(fn func() error)

	Close() error
}
