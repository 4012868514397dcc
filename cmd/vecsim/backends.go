package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hupe1980/vecsim"
	"github.com/hupe1980/vecsim/blobstore"
	"github.com/hupe1980/vecsim/blobstore/minio"
	"github.com/hupe1980/vecsim/blobstore/s3"
	"github.com/hupe1980/vecsim/codec"
	"github.com/hupe1980/vecsim/distance"
	"github.com/hupe1980/vecsim/index"
	"github.com/hupe1980/vecsim/persistence"
	"github.com/hupe1980/vecsim/wal"
	"github.com/hupe1980/vecsim/wal/badgerwal"
)

// dbOptions translates cfg into DB options, opening the configured
// snapshot store and journal. cfg must be valid.
func dbOptions(ctx context.Context, cfg *Config, logger *vecsim.Logger) ([]vecsim.Option, error) {
	metric, _ := distance.ParseMetric(cfg.Metric)
	algorithm, _ := index.ParseAlgorithm(cfg.Algorithm)
	c, _ := codec.ByName(cfg.Codec)
	compression, _ := persistence.ParseCompression(cfg.Compression)

	opts := []vecsim.Option{
		vecsim.WithLogger(logger),
		vecsim.WithMetric(metric),
		vecsim.WithAlgorithm(algorithm, cfg.Index),
		vecsim.WithCacheCapacity(cfg.CacheCapacity),
		vecsim.WithSIMD(cfg.SIMD),
		vecsim.WithMemoryLimit(cfg.MemoryLimit),
		vecsim.WithCodec(c),
		vecsim.WithCompression(compression),
	}

	store, err := openBlobStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if store != nil {
		opts = append(opts, vecsim.WithBlobStore(store), vecsim.WithSnapshot("", cfg.SnapshotName))
	}

	if cfg.Journal.Enabled {
		jopt, err := journalOption(cfg, logger)
		if err != nil {
			return nil, err
		}
		opts = append(opts, jopt)
	}
	return opts, nil
}

func journalOption(cfg *Config, logger *vecsim.Logger) (vecsim.Option, error) {
	switch cfg.Journal.Backend {
	case JournalBadger:
		j, err := badgerwal.Open(func(o *badgerwal.Options) {
			o.Dir = filepath.Join(cfg.DataDir, "journal")
			o.SyncWrites = cfg.Journal.Durability == wal.DurabilitySync.String()
			o.AutoCheckpointOps = cfg.Journal.AutoCheckpointOps
			o.Logger = logger.Logger
		})
		if err != nil {
			return nil, err
		}
		return vecsim.WithJournal(j), nil
	default:
		mode, err := wal.ParseDurability(cfg.Journal.Durability)
		if err != nil {
			return nil, err
		}
		return vecsim.WithWAL(cfg.DataDir, func(o *wal.Options) {
			o.DurabilityMode = mode
			o.Compress = cfg.Journal.Compress
			o.AutoCheckpointOps = cfg.Journal.AutoCheckpointOps
		}), nil
	}
}

func openBlobStore(ctx context.Context, cfg *Config) (blobstore.Store, error) {
	sc := cfg.Storage
	switch sc.Backend {
	case StorageS3:
		var loadOpts []func(*awsconfig.LoadOptions) error
		if sc.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(sc.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}

		client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
			if sc.Endpoint != "" {
				o.BaseEndpoint = aws.String(sc.Endpoint)
				o.UsePathStyle = true
			}
		})
		var store blobstore.Store = s3.NewStore(client, sc.Bucket, sc.Prefix)

		if sc.DynamoDBTable != "" {
			ddb := dynamodb.NewFromConfig(awsCfg)
			baseURI := "s3://" + sc.Bucket + "/" + strings.TrimSuffix(sc.Prefix, "/")
			store = s3.NewDDBCommitStore(store, ddb, sc.DynamoDBTable, baseURI)
		}
		return store, nil

	case StorageMinio:
		client, err := miniogo.New(sc.Endpoint, &miniogo.Options{
			Creds:  credentials.NewStaticV4(sc.AccessKey, sc.SecretKey, ""),
			Secure: sc.UseSSL,
			Region: sc.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create minio client: %w", err)
		}
		store := minio.NewStore(client, sc.Bucket, sc.Prefix)
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil

	default:
		store, err := blobstore.NewLocalStore(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}
