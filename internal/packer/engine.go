package packer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gocloud.dev/blob"

	"github.com/file2link/packer/internal/admission"
	"github.com/file2link/packer/internal/logging"
	"github.com/file2link/packer/pkg/parts"
)

const mib = 1 << 20

// Engine runs packing jobs. One Engine is shared by all callers; each job
// runs on the caller's goroutine.
type Engine struct {
	store  Store
	gate   Gate
	opts   Options
	logger *zap.Logger
}

// New creates an Engine.
func New(store Store, gate Gate, options ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("packer: store is required")
	}
	if gate == nil {
		return nil, errors.New("packer: gate is required")
	}
	opts := defaultOptions()
	for _, opt := range options {
		opt(&opts)
	}
	if opts.Jobs == nil {
		opts.Jobs = NewJobRegistry()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.BufferSize <= 0 {
		return nil, errors.New("packer: buffer size must be positive")
	}
	if opts.SystemCeiling <= 0 {
		return nil, errors.New("packer: system ceiling must be positive")
	}

	return &Engine{
		store:  store,
		gate:   gate,
		opts:   opts,
		logger: logging.WithComponent(opts.Logger, "packer"),
	}, nil
}

// Status reports the admission gate state.
func (e *Engine) Status() admission.Status {
	return e.gate.Status()
}

// Progress returns the running job of userID, if any.
func (e *Engine) Progress(userID string) (JobState, bool) {
	return e.opts.Jobs.Get(userID)
}

// RunPackJob packs every file in the user's source directory. A nil
// maxPartSizeMB produces a single archive; otherwise parts are limited to
// that many MiB, clamped to the system ceiling.
func (e *Engine) RunPackJob(ctx context.Context, userID string, maxPartSizeMB *int) (*PackResult, error) {
	if userID == "" {
		return nil, validationError("user is required")
	}
	ceiling, err := PartSizeFromMB(maxPartSizeMB)
	if err != nil {
		return nil, err
	}

	sources, err := e.ListSources(userID)
	if err != nil {
		return nil, err
	}
	return e.Pack(ctx, PackJob{
		UserID:      userID,
		Sources:     sources,
		MaxPartSize: ceiling,
	})
}

// PartSizeFromMB converts a requested part size in MiB to bytes. nil stays
// nil; values below 1 are a validation error.
func PartSizeFromMB(mb *int) (*int64, error) {
	if mb == nil {
		return nil, nil
	}
	if *mb <= 0 {
		return nil, validationError("part size must be at least 1 MB")
	}
	c := int64(*mb) * mib
	return &c, nil
}

// ListSources snapshots the regular files in the user's source directory,
// sorted by name. Hidden files are ignored. No file is opened.
func (e *Engine) ListSources(userID string) ([]SourceFileEntry, error) {
	dir, err := e.store.GetUserDirectory(userID, e.opts.SourceCategory)
	if err != nil {
		return nil, &Error{Kind: KindSourceRead, Reason: "could not open your files", Err: err}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &Error{Kind: KindSourceRead, Reason: "could not list your files", Err: err}
	}

	var sources []SourceFileEntry
	for _, de := range entries {
		if strings.HasPrefix(de.Name(), ".") || !de.Type().IsRegular() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			e.logger.Warn("source vanished while listing", zap.String("file", de.Name()), zap.Error(err))
			continue
		}
		sources = append(sources, SourceFileEntry{
			Name: de.Name(),
			Path: filepath.Join(dir, de.Name()),
			Size: info.Size(),
		})
	}
	return sources, nil
}

// validate checks a job before anything is opened or admitted.
func (e *Engine) validate(job PackJob) error {
	if job.UserID == "" {
		return validationError("user is required")
	}
	if len(job.Sources) == 0 {
		return validationError("no files to pack")
	}
	if len(job.Sources) > e.opts.MaxFiles {
		return validationError("too many files: %d (maximum %d)", len(job.Sources), e.opts.MaxFiles)
	}
	if job.MaxPartSize != nil && *job.MaxPartSize <= 0 {
		return validationError("part size must be positive")
	}
	for _, s := range job.Sources {
		if s.Size < 0 {
			return validationError("invalid size for %s", s.Name)
		}
	}
	if total := job.TotalSize(); e.opts.MaxTotalSize > 0 && total > e.opts.MaxTotalSize {
		return validationError("total size %s exceeds the maximum of %s",
			humanize.IBytes(uint64(total)), humanize.IBytes(uint64(e.opts.MaxTotalSize)))
	}
	return nil
}

// Pack runs one job. The admission slot taken here is always released
// before Pack returns. On failure every file the job wrote is removed.
func (e *Engine) Pack(ctx context.Context, job PackJob) (*PackResult, error) {
	if err := e.validate(job); err != nil {
		return nil, err
	}

	jobID := uuid.NewString()
	logger := logging.WithJob(e.logger, jobID, job.UserID)
	total := job.TotalSize()

	tracker, ok := e.opts.Jobs.begin(job.UserID, jobID, len(job.Sources), total)
	if !ok {
		return nil, deniedError("a packing job is already running for this user")
	}
	defer tracker.finish()

	granted, reason := e.gate.TryAcquire()
	if !granted {
		logger.Info("pack job denied", zap.String("reason", reason))
		return nil, deniedError(reason)
	}
	defer e.gate.Release()

	if e.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.JobTimeout)
		defer cancel()
	}

	plan := PlanPartitions(total, job.MaxPartSize, e.opts.SystemCeiling, e.opts.SplitMode)
	logger.Info("pack job started",
		zap.Int("files", len(job.Sources)),
		zap.Int64("size", total),
		zap.Stringer("policy", plan.Policy),
		zap.Int64("ceiling", plan.Ceiling),
		zap.Bool("clamped", plan.Clamped),
		zap.Int("estimated_parts", plan.EstimatedParts))

	dir, err := e.store.GetUserDirectory(job.UserID, e.opts.OutputCategory)
	if err != nil {
		return nil, &Error{Kind: KindFatalWrite, Reason: "could not prepare the output folder", Err: err}
	}
	bucket, err := e.opts.OpenBucket(ctx, dir)
	if err != nil {
		return nil, &Error{Kind: KindFatalWrite, Reason: "could not prepare the output folder", Err: err}
	}
	defer bucket.Close()

	observer := multiObserver{tracker, e.opts.Observer}
	if job.Observer != nil {
		observer = append(observer, job.Observer)
	}

	run := &jobRun{
		e:        e,
		ctx:      ctx,
		job:      job,
		plan:     plan,
		bucket:   bucket,
		base:     e.baseName(jobID),
		logger:   logger,
		tracker:  tracker,
		observer: observer,
		result: &PackResult{
			JobID:   jobID,
			UserID:  job.UserID,
			Policy:  plan.Policy,
			Ceiling: plan.Ceiling,
		},
	}
	result, err := run.execute()
	if err != nil {
		jerr := classify(err)
		logger.Error("pack job failed", zap.Stringer("kind", jerr.Kind), zap.Error(err))
		return nil, jerr
	}

	logger.Info("pack job finished",
		zap.Int("parts", len(result.Parts)),
		zap.Int("files", result.TotalSourceFilesWritten),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int64("size", result.TotalSize))
	return result, nil
}

// baseName is the common stem of every file a job writes.
func (e *Engine) baseName(jobID string) string {
	return "packed_files_" + strconv.FormatInt(e.opts.Now().Unix(), 10) + "_" + jobID[:8]
}

// jobRun holds the state of one admitted job.
type jobRun struct {
	e        *Engine
	ctx      context.Context
	job      PackJob
	plan     Plan
	bucket   *blob.Bucket
	base     string
	logger   *zap.Logger
	tracker  *jobTracker
	observer Observer
	result   *PackResult
}

func (r *jobRun) execute() (*PackResult, error) {
	layout := parts.LayoutSingle
	switch r.plan.Policy {
	case PolicyRawByteSplit:
		layout = parts.LayoutRaw
	case PolicyEntryPreservingSplit:
		layout = parts.LayoutEntry
	}

	set, err := parts.Create(r.ctx, r.bucket, r.base,
		parts.WithLayout(layout),
		parts.WithPartSize(r.plan.Ceiling),
		parts.WithMetadata(map[string]string{
			"job_id":  r.result.JobID,
			"user_id": r.job.UserID,
			"policy":  r.plan.Policy.String(),
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create part set: %w", err)
	}
	pw := NewPartWriter(set, r.observer, r.logger)

	r.tracker.stage(StagePacking)
	switch r.plan.Policy {
	case PolicyNone:
		err = r.single(pw)
	case PolicyRawByteSplit:
		err = r.raw(pw)
	case PolicyEntryPreservingSplit:
		err = r.entries(pw)
	}
	if err == nil && r.result.TotalSourceFilesWritten == 0 {
		err = &Error{Kind: KindSourceRead, Reason: "none of your files could be read"}
	}
	if err != nil {
		r.abort(set)
		return nil, err
	}

	r.tracker.stage(StageRegistering)
	if err := pw.Register(r.ctx, r.e.store, r.job.UserID, r.e.opts.OutputCategory, r.result.Parts); err != nil {
		r.abort(set)
		return nil, err
	}

	if _, err := set.Complete(r.ctx); err != nil {
		r.logger.Warn("part index not written", zap.Error(err))
	}

	if r.plan.Policy != PolicyNone {
		name := ManifestName(r.base)
		m := NewManifestRegistrar(r.bucket, r.e.store, r.job.UserID, r.e.opts.OutputCategory, r.logger)
		if url := m.WriteBestEffort(r.ctx, r.result.Parts, name); url != "" {
			r.result.ManifestFilename = name
			r.result.ManifestURL = url
		}
	}

	for _, p := range r.result.Parts {
		r.result.TotalSize += p.Size
	}
	return r.result, nil
}

// abort removes everything the job wrote.
func (r *jobRun) abort(set *parts.Set) {
	if err := set.Abort(context.WithoutCancel(r.ctx)); err != nil {
		r.logger.Error("cleanup after failure incomplete", zap.Error(err))
	}
}

func (r *jobRun) builder() *ArchiveBuilder {
	return NewArchiveBuilder(r.e.opts.BufferSize, r.e.opts.CancelCheckEvery, r.observer, r.logger)
}

func (r *jobRun) record(build *BuildResult) {
	r.result.TotalSourceFilesWritten += len(build.Entries)
	r.result.Skipped = append(r.result.Skipped, build.Skipped...)
}

// single writes one archive with every source.
func (r *jobRun) single(pw *PartWriter) error {
	var build *BuildResult
	part, err := pw.WritePart(r.ctx, func(w io.Writer) error {
		var err error
		build, err = r.builder().Build(r.ctx, r.job.Sources, w)
		return err
	})
	if err != nil {
		return err
	}
	part.SelfContained = true
	part.Entries = build.Entries
	r.result.Parts = append(r.result.Parts, part)
	r.record(build)
	return nil
}

// raw builds one temporary archive, then cuts it into ceiling-sized slices.
func (r *jobRun) raw(pw *PartWriter) error {
	tmpKey := r.base + ".container.tmp"
	cleanup := context.WithoutCancel(r.ctx)
	defer r.bucket.Delete(cleanup, tmpKey)

	wctx, cancel := context.WithCancel(r.ctx)
	defer cancel()
	w, err := r.bucket.NewWriter(wctx, tmpKey, nil)
	if err != nil {
		return fmt.Errorf("create container: %w", err)
	}
	build, err := r.builder().Build(r.ctx, r.job.Sources, w)
	if err != nil {
		cancel()
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close container: %w", err)
	}
	r.record(build)
	if len(build.Entries) == 0 {
		return nil
	}

	attrs, err := r.bucket.Attributes(r.ctx, tmpKey)
	if err != nil {
		return fmt.Errorf("stat container: %w", err)
	}
	size := attrs.Size

	rd, err := r.bucket.NewReader(r.ctx, tmpKey, nil)
	if err != nil {
		return fmt.Errorf("open container: %w", err)
	}
	defer rd.Close()

	r.tracker.stage(StageSplitting)
	buf := make([]byte, r.e.opts.BufferSize)
	for remaining := size; remaining > 0; {
		n := min(r.plan.Ceiling, remaining)
		part, err := pw.WritePart(r.ctx, func(w io.Writer) error {
			copied, err := copyChunks(r.ctx, w, io.LimitReader(rd, n), buf, r.e.opts.CancelCheckEvery, nil)
			if err != nil {
				return err
			}
			if copied != n {
				return fmt.Errorf("container ended after %d of %d bytes: %w", copied, n, io.ErrUnexpectedEOF)
			}
			return nil
		})
		if err != nil {
			return err
		}
		r.result.Parts = append(r.result.Parts, part)
		remaining -= n
	}
	return nil
}

// entries writes independent archives, one per group of sources.
func (r *jobRun) entries(pw *PartWriter) error {
	groups := GroupEntries(r.job.Sources, r.plan.Ceiling)
	b := r.builder()

	for _, g := range groups {
		op, err := pw.Open(r.ctx)
		if err != nil {
			return err
		}
		c := b.newContainer(op.Writer())
		for i, src := range g.Entries {
			if err := c.add(r.ctx, src, g.Names[i]); err != nil {
				op.Abort()
				return err
			}
		}
		if err := c.close(); err != nil {
			op.Abort()
			return err
		}
		r.record(&c.result)
		if len(c.result.Entries) == 0 {
			// Everything in this group was unreadable.
			op.Abort()
			continue
		}

		part, err := op.Commit()
		if err != nil {
			return err
		}
		part.SelfContained = true
		part.Oversized = g.Oversized
		part.Entries = c.result.Entries
		if part.Size > r.plan.Ceiling && !part.Oversized {
			r.logger.Warn("part exceeds ceiling",
				zap.Int("part", part.Sequence), zap.Int64("size", part.Size), zap.Int64("ceiling", r.plan.Ceiling))
		}
		if part.Oversized {
			r.logger.Info("file larger than part limit packed alone",
				zap.String("file", g.Entries[0].Name), zap.Int64("size", part.Size))
		}
		r.result.Parts = append(r.result.Parts, part)
	}
	return nil
}

// ClearOutputs deletes every file in the user's output directory and returns
// how many were removed. It refuses while the user has a job running.
func (e *Engine) ClearOutputs(ctx context.Context, userID string) (int, error) {
	if _, running := e.opts.Jobs.Get(userID); running {
		return 0, deniedError("a packing job is running for this user")
	}
	dir, err := e.store.GetUserDirectory(userID, e.opts.OutputCategory)
	if err != nil {
		return 0, fmt.Errorf("output directory: %w", err)
	}
	bucket, err := e.opts.OpenBucket(ctx, dir)
	if err != nil {
		return 0, fmt.Errorf("open output directory: %w", err)
	}
	defer bucket.Close()

	var keys []string
	iter := bucket.List(nil)
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("list outputs: %w", err)
		}
		if !obj.IsDir {
			keys = append(keys, obj.Key)
		}
	}

	removed := 0
	for _, key := range keys {
		if err := bucket.Delete(ctx, key); err != nil {
			return removed, fmt.Errorf("delete %s: %w", key, err)
		}
		removed++
	}
	e.logger.Info("outputs cleared", zap.String("user_id", userID), zap.Int("files", removed))
	return removed, nil
}
