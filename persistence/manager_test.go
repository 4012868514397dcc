package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecsim/blobstore"
	"github.com/hupe1980/vecsim/internal/resource"
	"github.com/hupe1980/vecsim/wal"
)

func newWAL(t *testing.T, dir string) *wal.WAL {
	t.Helper()
	w, err := wal.New(func(o *wal.Options) {
		o.Path = dir
		o.DurabilityMode = wal.DurabilitySync
	})
	require.NoError(t, err)
	return w
}

func TestNewManager(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		pm, err := NewManager()
		require.NoError(t, err)
		defer pm.Close()

		assert.False(t, pm.HasStore())
		assert.Nil(t, pm.Journal())

		_, err = pm.Save(context.Background(), testSnapshot(1, 2))
		assert.ErrorIs(t, err, ErrNoStore)

		loaded := false
		info, err := pm.Recover(context.Background(),
			func(*Snapshot) error { loaded = true; return nil },
			func(wal.Entry) error { return nil })
		require.NoError(t, err)
		assert.False(t, loaded)
		assert.Equal(t, RecoveryInfo{}, info)
	})

	t.Run("invalid name", func(t *testing.T) {
		_, err := NewManager(func(o *ManagerOptions) { o.Name = "a/b.db" })
		assert.Error(t, err)
	})

	t.Run("invalid compression", func(t *testing.T) {
		_, err := NewManager(func(o *ManagerOptions) { o.Write.Compression = 9 })
		assert.ErrorIs(t, err, ErrUnknownCompression)
	})
}

func TestManagerSaveLoad(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	pm, err := NewManager(func(o *ManagerOptions) {
		o.Store = store
		o.Write.Compression = CompressionZSTD
	})
	require.NoError(t, err)
	defer pm.Close()

	want := testSnapshot(20, 4)
	info, err := pm.Save(ctx, want)
	require.NoError(t, err)
	assert.Equal(t, "vectors-000001.db", info.Name)
	assert.Equal(t, 20, info.Records)
	assert.Positive(t, info.Bytes)

	current, err := blobstore.ReadCurrent(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, info.Name, current)

	got, name, err := pm.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, info.Name, name)
	assert.Equal(t, want, got)
}

func TestManagerGenerations(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	pm, err := NewManager(func(o *ManagerOptions) {
		o.Store = store
		o.Retain = 2
	})
	require.NoError(t, err)
	defer pm.Close()

	for i := 1; i <= 4; i++ {
		_, err := pm.Save(ctx, testSnapshot(i, 2))
		require.NoError(t, err)
	}

	names, err := store.List(ctx, "vectors-")
	require.NoError(t, err)
	assert.Equal(t, []string{"vectors-000003.db", "vectors-000004.db"}, names)

	got, name, err := pm.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "vectors-000004.db", name)
	assert.Len(t, got.Records, 4)
}

func TestManagerLoadPlainName(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	blob, err := store.Create(ctx, "legacy.db")
	require.NoError(t, err)
	_, err = Write(blob, testSnapshot(3, 2), WriteOptions{})
	require.NoError(t, err)
	require.NoError(t, blob.Close())

	pm, err := NewManager(func(o *ManagerOptions) {
		o.Store = store
		o.Name = "legacy.db"
	})
	require.NoError(t, err)

	got, name, err := pm.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "legacy.db", name)
	assert.Len(t, got.Records, 3)
}

func TestManagerLoadCorrupt(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "vectors.db", []byte("not a snapshot at all, just some text padding it out")))

	pm, err := NewManager(func(o *ManagerOptions) { o.Store = store })
	require.NoError(t, err)

	_, _, err = pm.Load(ctx)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestManagerRecover(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := blobstore.NewLocalStore(dir)
	require.NoError(t, err)

	open := func() *Manager {
		pm, err := NewManager(func(o *ManagerOptions) {
			o.Store = store
			o.Journal = newWAL(t, dir)
			o.Resource = resource.NewController(resource.Config{IOLimitBytesPerSec: 1 << 30})
		})
		require.NoError(t, err)
		return pm
	}

	pm := open()
	j := pm.Journal()
	require.NoError(t, j.LogInsert("a", []float32{1, 2}, ""))
	require.NoError(t, j.LogInsert("b", []float32{3, 4}, ""))

	// The snapshot covers a and b; the journal is checkpointed.
	_, err = pm.Save(ctx, &Snapshot{Dimension: 2, Records: testSnapshot(2, 2).Records})
	require.NoError(t, err)

	require.NoError(t, j.LogInsert("c", []float32{5, 6}, ""))
	require.NoError(t, j.LogDelete("a"))
	require.NoError(t, pm.Close())
	require.NoError(t, pm.Close())

	pm = open()
	defer pm.Close()

	var (
		snap     *Snapshot
		replayed []wal.Entry
	)
	info, err := pm.Recover(ctx,
		func(s *Snapshot) error {
			snap = s
			return nil
		},
		func(e wal.Entry) error {
			// The snapshot is applied before the first journal entry.
			require.NotNil(t, snap)
			replayed = append(replayed, e)
			return nil
		})
	require.NoError(t, err)
	require.NotNil(t, snap)

	assert.Equal(t, "vectors-000001.db", info.Snapshot)
	assert.Equal(t, 2, info.Records)
	assert.Equal(t, 2, info.Replayed)
	require.Len(t, replayed, 2)
	assert.Equal(t, wal.OpInsert, replayed[0].Type)
	assert.Equal(t, "c", replayed[0].Key)
	assert.Equal(t, wal.OpDelete, replayed[1].Type)
	assert.Equal(t, "a", replayed[1].Key)
}

func TestManagerRecoverApplyError(t *testing.T) {
	dir := t.TempDir()
	pm, err := NewManager(func(o *ManagerOptions) { o.Journal = newWAL(t, dir) })
	require.NoError(t, err)
	defer pm.Close()

	require.NoError(t, pm.Journal().LogInsert("a", []float32{1}, ""))

	boom := errors.New("boom")
	_, err = pm.Recover(context.Background(),
		func(*Snapshot) error { return nil },
		func(wal.Entry) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestManagerClosed(t *testing.T) {
	pm, err := NewManager(func(o *ManagerOptions) { o.Store = blobstore.NewMemoryStore() })
	require.NoError(t, err)
	require.NoError(t, pm.Close())

	_, err = pm.Save(context.Background(), testSnapshot(1, 1))
	assert.ErrorIs(t, err, ErrManagerClosed)
	_, _, err = pm.Load(context.Background())
	assert.ErrorIs(t, err, ErrManagerClosed)
}
