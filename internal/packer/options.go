package packer

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
)

// Options configures an Engine.
type Options struct {
	// SystemCeiling is the largest part size any request may get, in bytes.
	SystemCeiling int64
	// MaxFiles is the most source files one job may pack.
	MaxFiles int
	// MaxTotalSize is the most source bytes one job may pack.
	MaxTotalSize int64
	// BufferSize is the copy buffer size in bytes.
	BufferSize int
	// CancelCheckEvery is how many chunks are copied between context checks.
	CancelCheckEvery int
	// SplitMode selects the policy used when a part size is requested.
	SplitMode SplitMode
	// JobTimeout bounds a single job. Zero disables the engine's own limit.
	JobTimeout time.Duration
	// SourceCategory and OutputCategory name the user directories read from
	// and written to.
	SourceCategory string
	OutputCategory string

	Logger   *zap.Logger
	Observer Observer
	Jobs     *JobRegistry

	// OpenBucket opens the output directory as a bucket.
	OpenBucket func(ctx context.Context, dir string) (*blob.Bucket, error)
	// Now is the clock used for file names.
	Now func() time.Time
}

// Option is a functional option for configuring an Engine.
type Option func(*Options)

// WithSystemCeiling sets the largest allowed part size in bytes.
func WithSystemCeiling(n int64) Option {
	return func(o *Options) {
		o.SystemCeiling = n
	}
}

// WithMaxFiles sets the per-job file limit.
func WithMaxFiles(n int) Option {
	return func(o *Options) {
		o.MaxFiles = n
	}
}

// WithMaxTotalSize sets the per-job source byte limit.
func WithMaxTotalSize(n int64) Option {
	return func(o *Options) {
		o.MaxTotalSize = n
	}
}

// WithBufferSize sets the copy buffer size.
func WithBufferSize(n int) Option {
	return func(o *Options) {
		o.BufferSize = n
	}
}

// WithCancelCheckEvery sets how many chunks pass between context checks.
func WithCancelCheckEvery(n int) Option {
	return func(o *Options) {
		o.CancelCheckEvery = n
	}
}

// WithSplitMode selects raw or entry-preserving splitting.
func WithSplitMode(m SplitMode) Option {
	return func(o *Options) {
		o.SplitMode = m
	}
}

// WithJobTimeout bounds each job.
func WithJobTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.JobTimeout = d
	}
}

// WithCategories sets the source and output directory categories.
func WithCategories(source, output string) Option {
	return func(o *Options) {
		o.SourceCategory = source
		o.OutputCategory = output
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithObserver receives progress events of every job.
func WithObserver(obs Observer) Option {
	return func(o *Options) {
		o.Observer = obs
	}
}

// WithJobRegistry shares a registry of running jobs.
func WithJobRegistry(r *JobRegistry) Option {
	return func(o *Options) {
		o.Jobs = r
	}
}

// WithBucketOpener replaces how output directories are opened.
func WithBucketOpener(fn func(ctx context.Context, dir string) (*blob.Bucket, error)) Option {
	return func(o *Options) {
		o.OpenBucket = fn
	}
}

// WithClock sets the clock used for file names.
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		o.Now = now
	}
}

func defaultOptions() Options {
	return Options{
		SystemCeiling:    100 << 20,
		MaxFiles:         20,
		MaxTotalSize:     2 << 30,
		BufferSize:       1 << 20,
		CancelCheckEvery: 8,
		SplitMode:        SplitEntry,
		JobTimeout:       10 * time.Minute,
		SourceCategory:   "download",
		OutputCategory:   "packed",
		OpenBucket:       OpenDirBucket,
		Now:              time.Now,
	}
}

// OpenDirBucket opens dir as a fileblob bucket. Objects are plain files
// without metadata sidecars, and writes go through a temporary file in dir
// that is renamed into place on close.
func OpenDirBucket(_ context.Context, dir string) (*blob.Bucket, error) {
	return fileblob.OpenBucket(dir, &fileblob.Options{
		CreateDir: true,
		NoTempDir: true,
		Metadata:  fileblob.MetadataDontWrite,
	})
}
