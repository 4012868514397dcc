package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/hupe1980/vecsim"
	"github.com/hupe1980/vecsim/server"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 128, cfg.Dimensions)
	assert.Equal(t, "vectors.db", cfg.SnapshotName)
	assert.Equal(t, 1000, cfg.CacheCapacity)
	assert.Equal(t, ":8080", cfg.Addr())
}

func TestConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vecsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 9000
dimensions: 3
metric: cosine
algorithm: hnsw
index:
  M: 8
journal:
  backend: badger
storage:
  backend: local
log:
  format: json
`), 0o600))

	cfg := DefaultConfig()
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	cfg.bindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--port", "9100", "--log-level", "debug"}))

	require.NoError(t, cfg.load(path, fs))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, 3, cfg.Dimensions)
	assert.Equal(t, "cosine", cfg.Metric)
	assert.Equal(t, "hnsw", cfg.Algorithm)
	require.NotNil(t, cfg.Index.M)
	assert.Equal(t, 8, *cfg.Index.M)
	assert.Equal(t, JournalBadger, cfg.Journal.Backend)
	assert.True(t, cfg.Journal.Enabled, "keys missing from the file keep their defaults")
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestConfig_LoadErrors(t *testing.T) {
	cfg := DefaultConfig()
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	cfg.bindFlags(fs)

	err := cfg.load(filepath.Join(t.TempDir(), "missing.yaml"), fs)
	assert.ErrorContains(t, err, "failed to read config file")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [1"), 0o600))
	err = cfg.load(path, fs)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"port", func(c *Config) { c.Port = 0 }, "port"},
		{"dimensions", func(c *Config) { c.Dimensions = 0 }, "dimensions"},
		{"metric", func(c *Config) { c.Metric = "hamming" }, `unknown metric "hamming"`},
		{"algorithm", func(c *Config) { c.Algorithm = "annoy" }, `unknown algorithm "annoy"`},
		{"index param", func(c *Config) {
			c.Algorithm = "lsh"
			zero := 0
			c.Index.NumTables = &zero
		}, "num_tables"},
		{"cache", func(c *Config) { c.CacheCapacity = -1 }, "cache capacity"},
		{"codec", func(c *Config) { c.Codec = "gob" }, `unknown codec "gob"`},
		{"compression", func(c *Config) { c.Compression = "brotli" }, "unknown compression"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "invalid log level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log format"},
		{"journal backend", func(c *Config) { c.Journal.Backend = "sqlite" }, "unknown journal backend"},
		{"durability", func(c *Config) { c.Journal.Durability = "never" }, "unknown durability mode"},
		{"storage", func(c *Config) { c.Storage.Backend = "gcs" }, "unknown storage backend"},
		{"s3 bucket", func(c *Config) { c.Storage.Backend = StorageS3 }, "requires a bucket"},
		{"minio endpoint", func(c *Config) {
			c.Storage.Backend = StorageMinio
			c.Storage.Bucket = "b"
		}, "requires a bucket and an endpoint"},
		{"dynamodb without s3", func(c *Config) { c.Storage.DynamoDBTable = "commits" }, "requires storage s3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	t.Run("disabled journal skips journal checks", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Journal.Enabled = false
		cfg.Journal.Backend = "sqlite"
		assert.NoError(t, cfg.Validate())
	})
}

func openConfigured(t *testing.T, cfg *Config) *vecsim.DB {
	t.Helper()
	ctx := context.Background()
	opts, err := dbOptions(ctx, cfg, vecsim.NoopLogger())
	require.NoError(t, err)
	db, err := vecsim.Open(ctx, cfg.Dimensions, opts...)
	require.NoError(t, err)
	return db
}

func TestDBOptions_JournalBackends(t *testing.T) {
	for _, backend := range []string{JournalWAL, JournalBadger} {
		t.Run(backend, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.DataDir = t.TempDir()
			cfg.Dimensions = 2
			cfg.Metric = "manhattan"
			cfg.Journal.Backend = backend
			cfg.Journal.Durability = "sync"
			require.NoError(t, cfg.Validate())

			ctx := context.Background()
			db := openConfigured(t, &cfg)
			require.NoError(t, db.Insert(ctx, "a", []float32{1, 2}, "first"))
			require.NoError(t, db.Insert(ctx, "b", []float32{3, 4}, ""))
			require.NoError(t, db.Close())

			db = openConfigured(t, &cfg)
			defer db.Close()

			assert.Equal(t, 2, db.Count())
			assert.Equal(t, "manhattan", db.Metric().String())
			rec, err := db.Get("a")
			require.NoError(t, err)
			assert.Equal(t, "first", rec.Metadata)
		})
	}
}

func TestDBOptions_SnapshotInDataDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Dimensions = 2
	cfg.Journal.Enabled = false
	cfg.SnapshotName = "points.db"

	ctx := context.Background()
	db := openConfigured(t, &cfg)
	require.NoError(t, db.Insert(ctx, "a", []float32{1, 2}, ""))
	_, err := db.Save(ctx)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	matches, err := filepath.Glob(filepath.Join(cfg.DataDir, "points-*.db"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	db = openConfigured(t, &cfg)
	defer db.Close()
	assert.Equal(t, 1, db.Count())
}

func TestHashKeyCmd(t *testing.T) {
	t.Run("argument", func(t *testing.T) {
		var out bytes.Buffer
		cmd := newRootCmd()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"hash-key", "s3cret"})
		require.NoError(t, cmd.Execute())

		hash := strings.TrimSpace(out.String())
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))
	})

	t.Run("stdin", func(t *testing.T) {
		var out bytes.Buffer
		cmd := newRootCmd()
		cmd.SetOut(&out)
		cmd.SetIn(strings.NewReader("from-stdin\n"))
		cmd.SetArgs([]string{"hash-key"})
		require.NoError(t, cmd.Execute())

		hash := strings.TrimSpace(out.String())
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("from-stdin")))
	})

	t.Run("empty", func(t *testing.T) {
		cmd := newRootCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetIn(strings.NewReader(""))
		cmd.SetArgs([]string{"hash-key"})
		assert.Error(t, cmd.Execute())
	})
}

func TestServeCmd_InvalidConfig(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"serve", "--metric", "hamming"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown metric "hamming"`)
}

func TestStatus(t *testing.T) {
	db, err := vecsim.New(2)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Insert(context.Background(), "a", []float32{1, 2}, ""))

	ts := httptest.NewServer(server.New(db))
	defer ts.Close()

	var out bytes.Buffer
	require.NoError(t, status(context.Background(), &out, ts.URL, ""))
	assert.Contains(t, out.String(), "healthy")
	assert.Contains(t, out.String(), "vector_count")
	assert.Contains(t, out.String(), "euclidean")
}

func TestStatus_Unauthorized(t *testing.T) {
	db, err := vecsim.New(2)
	require.NoError(t, err)
	defer db.Close()

	hash, err := server.HashAPIKey("key")
	require.NoError(t, err)
	ts := httptest.NewServer(server.New(db, func(o *server.Options) { o.APIKeyHash = hash }))
	defer ts.Close()

	var out bytes.Buffer
	err = status(context.Background(), &out, ts.URL, "wrong")
	require.Error(t, err)
	assert.Contains(t, out.String(), "statistics")

	out.Reset()
	require.NoError(t, status(context.Background(), &out, ts.URL, "key"))
}
