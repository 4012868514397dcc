package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/vecsim"
	"github.com/hupe1980/vecsim/codec"
	"github.com/hupe1980/vecsim/distance"
	"github.com/hupe1980/vecsim/index"
	"github.com/hupe1980/vecsim/persistence"
	"github.com/hupe1980/vecsim/wal"
)

// Journal backends.
const (
	JournalWAL    = "wal"
	JournalBadger = "badger"
)

// Storage backends.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
	StorageMinio = "minio"
)

// Config is the server configuration. It is read from an optional YAML
// file; flags given on the command line take precedence.
type Config struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	Dimensions    int    `yaml:"dimensions"`
	DataDir       string `yaml:"data_dir"`
	SnapshotName  string `yaml:"snapshot_name"`
	Metric        string `yaml:"metric"`
	Algorithm     string `yaml:"algorithm"`
	CacheCapacity int    `yaml:"cache_capacity"`
	SIMD          bool   `yaml:"simd"`
	MemoryLimit   int64  `yaml:"memory_limit"`
	Codec         string `yaml:"codec"`
	Compression   string `yaml:"compression"`
	AutoSave      bool   `yaml:"autosave"`
	APIKeyHash    string `yaml:"api_key_hash"`

	// Parameters of the initial algorithm. A snapshot's parameters win.
	Index index.Overrides `yaml:"index"`

	Log     LogConfig     `yaml:"log"`
	Journal JournalConfig `yaml:"journal"`
	Storage StorageConfig `yaml:"storage"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Format string `yaml:"format"` // text or json
	Level  string `yaml:"level"`
}

// JournalConfig configures the commit log.
type JournalConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Backend           string `yaml:"backend"`
	Durability        string `yaml:"durability"`
	Compress          bool   `yaml:"compress"`
	AutoCheckpointOps int    `yaml:"auto_checkpoint_ops"`
}

// StorageConfig selects where snapshots live.
type StorageConfig struct {
	Backend       string `yaml:"backend"`
	Bucket        string `yaml:"bucket"`
	Prefix        string `yaml:"prefix"`
	Endpoint      string `yaml:"endpoint"`
	Region        string `yaml:"region"`
	AccessKey     string `yaml:"access_key"`
	SecretKey     string `yaml:"secret_key"`
	UseSSL        bool   `yaml:"use_ssl"`
	DynamoDBTable string `yaml:"dynamodb_table"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Host:          "",
		Port:          8080,
		Dimensions:    128,
		DataDir:       "./data",
		SnapshotName:  persistence.DefaultName,
		Metric:        distance.Euclidean.String(),
		Algorithm:     index.Exact.String(),
		CacheCapacity: vecsim.DefaultCacheCapacity,
		SIMD:          true,
		Codec:         codec.Default.Name(),
		Compression:   persistence.CompressionZSTD.String(),
		Log: LogConfig{
			Format: "text",
			Level:  "info",
		},
		Journal: JournalConfig{
			Enabled:           true,
			Backend:           JournalWAL,
			Durability:        wal.DurabilityGroupCommit.String(),
			AutoCheckpointOps: wal.DefaultOptions.AutoCheckpointOps,
		},
		Storage: StorageConfig{
			Backend: StorageLocal,
			UseSSL:  true,
		},
	}
}

// bindFlags registers one flag per setting, bound to the fields of c.
func (c *Config) bindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Host, "host", c.Host, "interface to listen on")
	fs.IntVarP(&c.Port, "port", "p", c.Port, "port to listen on")
	fs.IntVar(&c.Dimensions, "dimensions", c.Dimensions, "vector dimension")
	fs.StringVar(&c.DataDir, "data-dir", c.DataDir, "directory for the journal and local snapshots")
	fs.StringVar(&c.SnapshotName, "snapshot-name", c.SnapshotName, "snapshot file name")
	fs.StringVar(&c.Metric, "metric", c.Metric, "distance metric (euclidean, manhattan, cosine)")
	fs.StringVar(&c.Algorithm, "algorithm", c.Algorithm, "index algorithm (exact, lsh, hnsw)")
	fs.IntVar(&c.CacheCapacity, "cache-capacity", c.CacheCapacity, "cached query results, 0 disables the cache")
	fs.BoolVar(&c.SIMD, "simd", c.SIMD, "use the vectorized distance path")
	fs.Int64Var(&c.MemoryLimit, "memory-limit", c.MemoryLimit, "bytes of records and cached results, 0 is unlimited")
	fs.StringVar(&c.Codec, "codec", c.Codec, "snapshot body codec (json, msgpack)")
	fs.StringVar(&c.Compression, "compression", c.Compression, "snapshot compression (none, lz4, zstd)")
	fs.BoolVar(&c.AutoSave, "autosave", c.AutoSave, "save a snapshot after every mutation")
	fs.StringVar(&c.APIKeyHash, "api-key-hash", c.APIKeyHash, "bcrypt hash of the API key, see hash-key")

	fs.StringVar(&c.Log.Format, "log-format", c.Log.Format, "log format (text, json)")
	fs.StringVar(&c.Log.Level, "log-level", c.Log.Level, "log level (debug, info, warn, error)")

	fs.BoolVar(&c.Journal.Enabled, "journal", c.Journal.Enabled, "enable the commit log")
	fs.StringVar(&c.Journal.Backend, "journal-backend", c.Journal.Backend, "commit log backend (wal, badger)")
	fs.StringVar(&c.Journal.Durability, "durability", c.Journal.Durability, "WAL fsync mode (async, group, sync)")
	fs.BoolVar(&c.Journal.Compress, "journal-compress", c.Journal.Compress, "zstd-compress the WAL")
	fs.IntVar(&c.Journal.AutoCheckpointOps, "auto-checkpoint-ops", c.Journal.AutoCheckpointOps, "snapshot after N logged operations, 0 disables")

	fs.StringVar(&c.Storage.Backend, "storage", c.Storage.Backend, "snapshot storage (local, s3, minio)")
	fs.StringVar(&c.Storage.Bucket, "bucket", c.Storage.Bucket, "object storage bucket")
	fs.StringVar(&c.Storage.Prefix, "prefix", c.Storage.Prefix, "object key prefix")
	fs.StringVar(&c.Storage.Endpoint, "endpoint", c.Storage.Endpoint, "object storage endpoint")
	fs.StringVar(&c.Storage.Region, "region", c.Storage.Region, "AWS region")
	fs.StringVar(&c.Storage.AccessKey, "access-key", c.Storage.AccessKey, "MinIO access key")
	fs.StringVar(&c.Storage.SecretKey, "secret-key", c.Storage.SecretKey, "MinIO secret key")
	fs.BoolVar(&c.Storage.UseSSL, "use-ssl", c.Storage.UseSSL, "use TLS for MinIO")
	fs.StringVar(&c.Storage.DynamoDBTable, "dynamodb-table", c.Storage.DynamoDBTable, "DynamoDB table holding the CURRENT pointer")
}

// load reads the YAML file at path into c and then re-applies every flag
// set on the command line, so flags override the file.
func (c *Config) load(path string, fs *pflag.FlagSet) error {
	if path == "" {
		return nil
	}

	changed := map[string]string{}
	fs.Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	for name, value := range changed {
		if err := fs.Set(name, value); err != nil {
			return fmt.Errorf("flag --%s: %w", name, err)
		}
	}
	return nil
}

// Validate checks the configuration before anything is opened.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be between 1 and 65535, got %d", c.Port))
	}
	if c.Dimensions < 1 {
		errs = append(errs, fmt.Errorf("dimensions must be positive, got %d", c.Dimensions))
	}
	if _, ok := distance.ParseMetric(c.Metric); !ok {
		errs = append(errs, fmt.Errorf("unknown metric %q (available: %s)", c.Metric, strings.Join(distance.AvailableMetrics(), ", ")))
	}
	if a, err := index.ParseAlgorithm(c.Algorithm); err != nil {
		errs = append(errs, fmt.Errorf("unknown algorithm %q (available: %s)", c.Algorithm, strings.Join(index.AvailableAlgorithms(), ", ")))
	} else if _, err := c.Index.Resolve(a); err != nil {
		errs = append(errs, err)
	}
	if c.CacheCapacity < 0 {
		errs = append(errs, fmt.Errorf("cache capacity must not be negative, got %d", c.CacheCapacity))
	}
	if c.MemoryLimit < 0 {
		errs = append(errs, fmt.Errorf("memory limit must not be negative, got %d", c.MemoryLimit))
	}
	if _, ok := codec.ByName(c.Codec); !ok {
		errs = append(errs, fmt.Errorf("unknown codec %q (available: %s)", c.Codec, strings.Join(codec.Names(), ", ")))
	}
	if _, err := persistence.ParseCompression(c.Compression); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Log.level(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log format must be text or json, got %q", c.Log.Format))
	}

	if c.Journal.Enabled {
		switch c.Journal.Backend {
		case JournalWAL, JournalBadger:
		default:
			errs = append(errs, fmt.Errorf("unknown journal backend %q (want %s or %s)", c.Journal.Backend, JournalWAL, JournalBadger))
		}
		if _, err := wal.ParseDurability(c.Journal.Durability); err != nil {
			errs = append(errs, err)
		}
	}

	switch c.Storage.Backend {
	case StorageLocal:
	case StorageS3:
		if c.Storage.Bucket == "" {
			errs = append(errs, errors.New("storage s3 requires a bucket"))
		}
	case StorageMinio:
		if c.Storage.Bucket == "" || c.Storage.Endpoint == "" {
			errs = append(errs, errors.New("storage minio requires a bucket and an endpoint"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q (want %s, %s or %s)", c.Storage.Backend, StorageLocal, StorageS3, StorageMinio))
	}
	if c.Storage.DynamoDBTable != "" && c.Storage.Backend != StorageS3 {
		errs = append(errs, errors.New("a DynamoDB commit table requires storage s3"))
	}

	return errors.Join(errs...)
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (l LogConfig) level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return lvl, fmt.Errorf("invalid log level %q", l.Level)
	}
	return lvl, nil
}

// Logger builds the configured logger.
func (l LogConfig) Logger() *vecsim.Logger {
	lvl, err := l.level()
	if err != nil {
		lvl = slog.LevelInfo
	}
	if l.Format == "json" {
		return vecsim.NewJSONLogger(lvl)
	}
	return vecsim.NewTextLogger(lvl)
}
