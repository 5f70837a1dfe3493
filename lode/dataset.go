// Package lode persists run traces as a Lode dataset on the local
// filesystem or S3.
//
// Records are JSONL, partitioned Hive-style by mode, day, run_id and
// record_kind.
package lode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/justapithecus/lode/lode"
	lodes3 "github.com/justapithecus/lode/lode/s3"
)

// DefaultDataset is the dataset ID used when none is configured.
const DefaultDataset = "rulelens"

// Backends accepted by Open.
const (
	BackendFS = "fs"
	BackendS3 = "s3"
)

var partitionKeys = []string{"mode", "day", "run_id", "record_kind"}

// S3Config configures the S3 backend.
type S3Config struct {
	Bucket string
	Prefix string
	// Region falls back to the AWS default chain when empty.
	Region string
	// Endpoint overrides the AWS endpoint (MinIO, R2).
	Endpoint string
	// UsePathStyle is required by most S3-compatible providers.
	UsePathStyle bool
}

// Validate checks that a bucket is set.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("S3 bucket is required")
	}
	return nil
}

// ParseS3Path splits "bucket/prefix" into its parts.
func ParseS3Path(path string) (bucket, prefix string) {
	bucket, prefix, _ = strings.Cut(path, "/")
	return bucket, prefix
}

// NewDataset opens the trace dataset on the given store factory.
func NewDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	if dataset == "" {
		dataset = DefaultDataset
	}
	ds, err := lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
	if err != nil {
		return nil, wrapInit(err, dataset)
	}
	return ds, nil
}

// NewFSDataset opens the trace dataset under root.
func NewFSDataset(dataset, root string) (lode.Dataset, error) {
	if root == "" {
		return nil, errors.New("lode fs root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, wrapInit(err, root)
	}
	return NewDataset(dataset, lode.NewFSFactory(root))
}

// NewS3Dataset opens the trace dataset in S3 using the AWS default
// credential chain.
func NewS3Dataset(ctx context.Context, dataset string, cfg S3Config) (lode.Dataset, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, wrapInit(fmt.Errorf("failed to load AWS config: %w", err), dataset)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = &endpoint })
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}
	client := s3.NewFromConfig(awsConfig, s3Opts...)

	factory := func() (lode.Store, error) {
		return lodes3.New(client, lodes3.Config{Bucket: cfg.Bucket, Prefix: cfg.Prefix})
	}
	return NewDataset(dataset, factory)
}

// Options selects and configures a backend for Open.
type Options struct {
	Backend string
	Dataset string
	// Path is the fs root, or "bucket/prefix" for s3.
	Path         string
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// Open opens the dataset described by opts.
func Open(ctx context.Context, opts Options) (lode.Dataset, error) {
	switch opts.Backend {
	case "", BackendFS:
		return NewFSDataset(opts.Dataset, opts.Path)
	case BackendS3:
		bucket, prefix := ParseS3Path(opts.Path)
		return NewS3Dataset(ctx, opts.Dataset, S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       opts.Region,
			Endpoint:     opts.Endpoint,
			UsePathStyle: opts.UsePathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown lode backend %q (want %s or %s)", opts.Backend, BackendFS, BackendS3)
	}
}

// snapshotHas reports whether any file of snap sits under key=value.
// An empty value matches every snapshot.
func snapshotHas(snap *lode.Snapshot, key, value string) bool {
	if value == "" {
		return true
	}
	for _, f := range snap.Manifest.Files {
		if hasPartition(f.Path, key, value) {
			return true
		}
	}
	return false
}

// hasPartition matches a whole key=value path segment, so run_id=a does
// not match run_id=ab.
func hasPartition(path, key, value string) bool {
	segment := key + "=" + value
	for _, part := range strings.Split(path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}
