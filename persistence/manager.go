package persistence

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/hupe1980/vecsim/blobstore"
	"github.com/hupe1980/vecsim/internal/resource"
	"github.com/hupe1980/vecsim/wal"
)

var (
	// ErrManagerClosed is returned when operations are attempted on a closed manager.
	ErrManagerClosed = errors.New("persistence manager is closed")

	// ErrNoStore is returned by Save when no blob store is configured.
	ErrNoStore = errors.New("snapshot store not configured")
)

// DefaultName is the snapshot base name.
const DefaultName = "vectors.db"

// ManagerOptions configures the persistence manager.
type ManagerOptions struct {
	// Store receives snapshots. Nil disables snapshots.
	Store blobstore.Store

	// Name is the snapshot base name. Generations are stored as
	// "<stem>-<gen><ext>", e.g. vectors-000003.db.
	Name string

	// Journal logs mutations between snapshots. Nil disables it.
	Journal wal.Journal

	// Write controls codec and compression of new snapshots.
	Write WriteOptions

	// Resource throttles snapshot IO. Nil disables throttling.
	Resource *resource.Controller

	// Retain is the number of snapshot generations kept, including the
	// current one.
	Retain int
}

// SaveInfo describes a written snapshot.
type SaveInfo struct {
	Name    string
	Bytes   int64
	Records int
}

// RecoveryInfo describes what Recover restored.
type RecoveryInfo struct {
	Snapshot string // blob name, empty when no snapshot existed
	Records  int    // records in the snapshot
	Replayed int    // journal entries applied
}

// Manager coordinates snapshots, the journal and recovery.
//
// A save writes a new snapshot generation, advances the CURRENT pointer,
// checkpoints the journal and prunes old generations. The caller must
// keep mutations out while Save runs so the snapshot and the journal
// truncation cover the same operations.
type Manager struct {
	store    blobstore.Store
	journal  wal.Journal
	stem     string
	ext      string
	name     string
	write    WriteOptions
	resource *resource.Controller
	retain   int

	mu     sync.Mutex
	closed bool
}

// NewManager creates a persistence manager.
func NewManager(optFns ...func(o *ManagerOptions)) (*Manager, error) {
	opts := ManagerOptions{Name: DefaultName, Retain: 1}
	for _, fn := range optFns {
		fn(&opts)
	}

	name := opts.Name
	if name == "" || strings.ContainsAny(name, "/\r\n") {
		return nil, fmt.Errorf("persistence: invalid snapshot name %q", name)
	}
	if opts.Retain < 1 {
		opts.Retain = 1
	}
	if opts.Write.Compression > CompressionZSTD {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCompression, opts.Write.Compression)
	}

	ext := path.Ext(name)
	return &Manager{
		store:    opts.Store,
		journal:  opts.Journal,
		stem:     strings.TrimSuffix(name, ext),
		ext:      ext,
		name:     name,
		write:    opts.Write,
		resource: opts.Resource,
		retain:   opts.Retain,
	}, nil
}

// Journal returns the journal, or nil.
func (m *Manager) Journal() wal.Journal { return m.journal }

// HasStore reports whether snapshots are enabled.
func (m *Manager) HasStore() bool { return m.store != nil }

func (m *Manager) generationName(gen uint64) string {
	return fmt.Sprintf("%s-%06d%s", m.stem, gen, m.ext)
}

func (m *Manager) parseGeneration(name string) (uint64, bool) {
	s, ok := strings.CutPrefix(name, m.stem+"-")
	if !ok {
		return 0, false
	}
	s, ok = strings.CutSuffix(s, m.ext)
	if !ok {
		return 0, false
	}
	gen, err := strconv.ParseUint(s, 10, 64)
	return gen, err == nil
}

// generations lists existing snapshot generations in ascending order.
func (m *Manager) generations(ctx context.Context) ([]uint64, error) {
	names, err := m.store.List(ctx, m.stem+"-")
	if err != nil {
		return nil, fmt.Errorf("persistence: list snapshots: %w", err)
	}
	var gens []uint64
	for _, n := range names {
		if gen, ok := m.parseGeneration(n); ok {
			gens = append(gens, gen)
		}
	}
	slices.Sort(gens)
	return gens, nil
}

// Save writes snap as a new generation, then checkpoints the journal.
func (m *Manager) Save(ctx context.Context, snap *Snapshot) (SaveInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return SaveInfo{}, ErrManagerClosed
	}
	if m.store == nil {
		return SaveInfo{}, ErrNoStore
	}
	if err := ctx.Err(); err != nil {
		return SaveInfo{}, err
	}

	gens, err := m.generations(ctx)
	if err != nil {
		return SaveInfo{}, err
	}
	var next uint64 = 1
	for _, g := range gens {
		next = max(next, g+1)
	}
	name := m.generationName(next)

	blob, err := m.store.Create(ctx, name)
	if err != nil {
		return SaveInfo{}, fmt.Errorf("persistence: create %s: %w", name, err)
	}

	n, err := Write(resource.NewWriter(ctx, blob, m.resource), snap, m.write)
	if err == nil {
		err = blob.Sync()
	}
	if err != nil {
		_ = blob.Abort()
		return SaveInfo{}, fmt.Errorf("persistence: write %s: %w", name, err)
	}
	if err := blob.Close(); err != nil {
		_ = blob.Abort()
		return SaveInfo{}, fmt.Errorf("persistence: commit %s: %w", name, err)
	}

	if err := blobstore.WriteCurrent(ctx, m.store, name); err != nil {
		return SaveInfo{}, fmt.Errorf("persistence: advance %s: %w", blobstore.CurrentName, err)
	}

	if m.journal != nil {
		if err := m.journal.Checkpoint(); err != nil {
			return SaveInfo{}, fmt.Errorf("persistence: journal checkpoint failed: %w", err)
		}
	}

	// Pruning is best effort; CURRENT already names the new generation.
	gens = append(gens, next)
	if len(gens) > m.retain {
		for _, g := range gens[:len(gens)-m.retain] {
			_ = m.store.Delete(ctx, m.generationName(g))
		}
	}

	return SaveInfo{Name: name, Bytes: n, Records: len(snap.Records)}, nil
}

// Load reads the snapshot named by CURRENT, falling back to a blob with
// the plain base name. It returns a nil snapshot when neither exists.
func (m *Manager) Load(ctx context.Context) (*Snapshot, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, "", ErrManagerClosed
	}
	return m.loadLocked(ctx)
}

func (m *Manager) loadLocked(ctx context.Context) (*Snapshot, string, error) {
	if m.store == nil {
		return nil, "", nil
	}

	name, err := blobstore.ReadCurrent(ctx, m.store)
	switch {
	case blobstore.IsNotFound(err):
		name = m.name
	case err != nil:
		return nil, "", fmt.Errorf("persistence: read %s: %w", blobstore.CurrentName, err)
	}

	blob, err := m.store.Open(ctx, name)
	if blobstore.IsNotFound(err) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("persistence: open %s: %w", name, err)
	}
	defer func() { _ = blob.Close() }()

	snap, err := Read(resource.NewReader(ctx, blob, m.resource))
	if err != nil {
		return nil, "", fmt.Errorf("persistence: snapshot load failed: %w", err)
	}
	return snap, name, nil
}

// Recover passes the latest snapshot, if any, to load and then replays
// committed journal entries through apply.
func (m *Manager) Recover(ctx context.Context, load func(*Snapshot) error, apply func(wal.Entry) error) (RecoveryInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return RecoveryInfo{}, ErrManagerClosed
	}
	if err := ctx.Err(); err != nil {
		return RecoveryInfo{}, err
	}

	snap, name, err := m.loadLocked(ctx)
	if err != nil {
		return RecoveryInfo{}, err
	}

	info := RecoveryInfo{Snapshot: name}
	if snap != nil {
		info.Records = len(snap.Records)
		if err := load(snap); err != nil {
			return info, fmt.Errorf("persistence: apply snapshot %s: %w", name, err)
		}
	}

	if m.journal == nil {
		return info, nil
	}

	if err := m.journal.ReplayCommitted(func(e wal.Entry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		info.Replayed++
		return apply(e)
	}); err != nil {
		return info, fmt.Errorf("persistence: journal replay failed: %w", err)
	}
	return info, nil
}

// SetCheckpointCallback forwards to the journal.
func (m *Manager) SetCheckpointCallback(fn func() error) {
	if m.journal != nil {
		m.journal.SetCheckpointCallback(fn)
	}
}

// Close closes the journal. Close is idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	if m.journal != nil {
		return m.journal.Close()
	}
	return nil
}
