package vecsim

import (
	"log/slog"

	"github.com/hupe1980/vecsim/blobstore"
	"github.com/hupe1980/vecsim/codec"
	"github.com/hupe1980/vecsim/distance"
	"github.com/hupe1980/vecsim/index"
	"github.com/hupe1980/vecsim/persistence"
	"github.com/hupe1980/vecsim/wal"
)

// DefaultCacheCapacity is the number of query results cached by default.
const DefaultCacheCapacity = 1000

type options struct {
	logger           *Logger
	metricsCollector MetricsCollector
	cacheCapacity    int
	metric           distance.Metric
	algorithm        index.Algorithm
	overrides        index.Overrides
	simd             bool
	memoryLimit      int64
	ioLimit          int64
	seed             uint64
	seedSet          bool

	walPath    string
	walOptions []func(*wal.Options)
	journal    wal.Journal

	snapshotDir  string
	snapshotName string
	blobStore    blobstore.Store
	codec        codec.Codec
	compression  persistence.CompressionType
}

// Option configures a DB.
type Option func(*options)

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := vecsim.NewJSONLogger(slog.LevelInfo)
//	db, _ := vecsim.New(128, vecsim.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithCacheCapacity sets the number of cached query results. 0 disables
// caching.
func WithCacheCapacity(n int) Option {
	return func(o *options) {
		o.cacheCapacity = n
	}
}

// WithMetric sets the initial distance metric.
func WithMetric(m distance.Metric) Option {
	return func(o *options) {
		o.metric = m
	}
}

// WithAlgorithm sets the initial index algorithm. Nil overrides keep the
// algorithm's defaults.
func WithAlgorithm(a index.Algorithm, overrides index.Overrides) Option {
	return func(o *options) {
		o.algorithm = a
		o.overrides = overrides
	}
}

// WithSIMD sets the initial state of the vectorized distance path.
func WithSIMD(enabled bool) Option {
	return func(o *options) {
		o.simd = enabled
	}
}

// WithMemoryLimit bounds the bytes held by stored records and cached
// results. Inserts beyond the limit fail with ErrCapacityExceeded.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithIOLimit throttles snapshot reads and writes to bytes per second.
func WithIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.ioLimit = bytesPerSec
	}
}

// WithSeed fixes the seed of randomized indexes, making LSH hyperplanes
// and HNSW levels reproducible.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.seed = seed
		o.seedSet = true
	}
}

// WithWAL enables the file-based commit log in dir.
//
// Example:
//
//	db, _ := vecsim.Open(ctx, 128,
//	    vecsim.WithWAL("./data", func(o *wal.Options) {
//	        o.DurabilityMode = wal.DurabilitySync
//	    }),
//	    vecsim.WithSnapshot("./data", "vectors.db"),
//	)
func WithWAL(dir string, optFns ...func(*wal.Options)) Option {
	return func(o *options) {
		o.walPath = dir
		o.walOptions = optFns
	}
}

// WithJournal uses j as the commit log. The DB takes ownership and closes
// it. It takes precedence over WithWAL.
func WithJournal(j wal.Journal) Option {
	return func(o *options) {
		o.journal = j
	}
}

// WithSnapshot stores snapshots named after name in the local directory
// dir. An empty name keeps persistence.DefaultName.
func WithSnapshot(dir, name string) Option {
	return func(o *options) {
		o.snapshotDir = dir
		o.snapshotName = name
	}
}

// WithBlobStore stores snapshots in s instead of a local directory.
func WithBlobStore(s blobstore.Store) Option {
	return func(o *options) {
		o.blobStore = s
	}
}

// WithCodec configures the codec used for snapshot bodies.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithCompression sets the block compression of new snapshots.
func WithCompression(ct persistence.CompressionType) Option {
	return func(o *options) {
		o.compression = ct
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
		cacheCapacity:    DefaultCacheCapacity,
		metric:           distance.Euclidean,
		algorithm:        index.Exact,
		simd:             true,
		codec:            codec.Default,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	return o
}
