package parts

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"sync"
	"time"

	"github.com/zeebo/blake3"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// ErrClosed is returned when a Set is used after Complete or Abort.
var ErrClosed = errors.New("parts: set is closed")

// ErrEmptyPart is returned by Part.Close when nothing was written to the part.
var ErrEmptyPart = errors.New("parts: part has no data")

// ErrExists is returned by Create when an index for the base name already exists.
var ErrExists = errors.New("parts: set already exists")

// ErrPartOpen is returned by Set.Next while a previous part is still open.
var ErrPartOpen = errors.New("parts: previous part still open")

// Layout describes how the parts of a set relate to each other.
type Layout string

const (
	// LayoutSingle is one self-contained object.
	LayoutSingle Layout = "single"
	// LayoutRaw is a byte stream cut into fixed-size slices that must be
	// concatenated in sequence order.
	LayoutRaw Layout = "raw"
	// LayoutEntry is a series of independently usable objects.
	LayoutEntry Layout = "entry"
)

// Index describes a completed set of parts.
type Index struct {
	Base        string            `json:"base"`
	Layout      Layout            `json:"layout"`
	TotalSize   int64             `json:"total_size"`
	PartSize    int64             `json:"part_size,omitempty"`
	Parts       []Info            `json:"parts"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CompletedAt time.Time         `json:"completed_at"`
}

// Info describes a single committed part. Sequence numbers start at 1.
type Info struct {
	Object   string `json:"object"`
	Sequence int    `json:"sequence"`
	Offset   int64  `json:"offset"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum,omitempty"`
}

// Naming maps a base name and a sequence number to an object key.
type Naming func(base string, seq int) string

// SingleName names the only object of a LayoutSingle set.
func SingleName(base string, _ int) string {
	return base + ".zip"
}

// RawName names raw slices <base>.zip.001, <base>.zip.002, ...
func RawName(base string, seq int) string {
	return fmt.Sprintf("%s.zip.%03d", base, seq)
}

// EntryName names self-contained parts <base>.part001.zip, ...
func EntryName(base string, seq int) string {
	return fmt.Sprintf("%s.part%03d.zip", base, seq)
}

// IndexName returns the key of the index object for base.
func IndexName(base string) string {
	return base + ".parts.json"
}

// Options configures part set operations.
type Options struct {
	PartSize        int64
	Layout          Layout
	Naming          Naming
	Metadata        map[string]string
	VerifyChecksum  bool
	ComputeChecksum bool // Compute checksums during writes (default: true)
}

// Option is a functional option for configuring part set operations.
type Option func(*Options)

// WithPartSize records the size ceiling used to produce the parts. It is
// informational for LayoutEntry and the exact slice size for LayoutRaw.
func WithPartSize(size int64) Option {
	return func(o *Options) {
		o.PartSize = size
	}
}

// WithLayout sets the layout and, unless WithNaming is also given, the
// matching naming scheme.
func WithLayout(layout Layout) Option {
	return func(o *Options) {
		o.Layout = layout
	}
}

// WithNaming overrides the object naming scheme.
func WithNaming(n Naming) Option {
	return func(o *Options) {
		o.Naming = n
	}
}

// WithMetadata sets caller-defined metadata stored in the index.
func WithMetadata(metadata map[string]string) Option {
	return func(o *Options) {
		o.Metadata = metadata
	}
}

// WithVerifyChecksum enables checksum verification during reads.
// Parts without a stored checksum are not verified.
func WithVerifyChecksum(verify bool) Option {
	return func(o *Options) {
		o.VerifyChecksum = verify
	}
}

// WithChecksum enables or disables BLAKE3 checksums during writes.
func WithChecksum(compute bool) Option {
	return func(o *Options) {
		o.ComputeChecksum = compute
	}
}

func defaultNaming(layout Layout) Naming {
	switch layout {
	case LayoutRaw:
		return RawName
	case LayoutEntry:
		return EntryName
	default:
		return SingleName
	}
}

// Set is a sequence of part objects being written under one base name.
type Set struct {
	bucket *blob.Bucket
	base   string
	opts   Options

	mu     sync.Mutex
	parts  []Info
	offset int64
	open   *Part
	closed bool
}

// Create starts a new part set. It fails with ErrExists if a completed set
// with the same base name is already present in the bucket.
func Create(ctx context.Context, bucket *blob.Bucket, base string, options ...Option) (*Set, error) {
	opts := Options{
		Layout:          LayoutSingle,
		ComputeChecksum: true,
	}
	for _, opt := range options {
		opt(&opts)
	}
	if opts.Naming == nil {
		opts.Naming = defaultNaming(opts.Layout)
	}
	if base == "" {
		return nil, errors.New("parts: base name is required")
	}
	if opts.Layout == LayoutRaw && opts.PartSize <= 0 {
		return nil, errors.New("parts: part size must be positive for raw layout")
	}

	exists, err := bucket.Exists(ctx, IndexName(base))
	if err != nil {
		return nil, fmt.Errorf("parts: check index: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrExists, base)
	}

	return &Set{
		bucket: bucket,
		base:   base,
		opts:   opts,
	}, nil
}

// Base returns the base name shared by all parts.
func (s *Set) Base() string {
	return s.base
}

// Layout returns the layout of the set.
func (s *Set) Layout() Layout {
	return s.opts.Layout
}

// Next opens the next part for writing. Only one part may be open at a time;
// the previous one must be closed or aborted first.
func (s *Set) Next(ctx context.Context) (*Part, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.open != nil {
		return nil, ErrPartOpen
	}

	seq := len(s.parts) + 1
	p := &Part{
		set:    s,
		ctx:    ctx,
		seq:    seq,
		offset: s.offset,
		object: s.opts.Naming(s.base, seq),
	}
	if s.opts.ComputeChecksum {
		p.hash = blake3.New()
	}
	s.open = p
	return p, nil
}

// Parts returns a copy of the committed parts in sequence order.
func (s *Set) Parts() []Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Info, len(s.parts))
	copy(out, s.parts)
	return out
}

// TotalSize returns the sum of the measured sizes of all committed parts.
func (s *Set) TotalSize() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset
}

// Complete writes the index for the committed parts and closes the set.
func (s *Set) Complete(ctx context.Context) (*Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.open != nil {
		return nil, ErrPartOpen
	}
	s.closed = true

	idx := &Index{
		Base:        s.base,
		Layout:      s.opts.Layout,
		TotalSize:   s.offset,
		PartSize:    s.opts.PartSize,
		Parts:       append([]Info(nil), s.parts...),
		Metadata:    s.opts.Metadata,
		CompletedAt: time.Now().UTC(),
	}

	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("parts: marshal index: %w", err)
	}
	if err := s.bucket.WriteAll(ctx, IndexName(s.base), data, nil); err != nil {
		return nil, fmt.Errorf("parts: write index: %w", err)
	}
	return idx, nil
}

// Abort aborts the open part, if any, and deletes every committed part.
// The set cannot be used afterwards. Safe to call multiple times.
func (s *Set) Abort(ctx context.Context) error {
	s.mu.Lock()
	open := s.open
	s.mu.Unlock()
	if open != nil {
		open.Abort()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true

	var errs []error
	for _, info := range s.parts {
		if err := s.bucket.Delete(ctx, info.Object); err != nil && !isNotExist(err) {
			errs = append(errs, fmt.Errorf("parts: delete %s: %w", info.Object, err))
		}
	}
	s.parts = nil
	s.offset = 0
	return errors.Join(errs...)
}

// Part is a single part being written.
type Part struct {
	set    *Set
	ctx    context.Context
	seq    int
	offset int64
	object string

	mu           sync.Mutex
	writer       *blob.Writer
	writerCancel context.CancelFunc
	hash         hash.Hash
	written      int64
	info         *Info
	closed       bool
}

// Sequence returns the 1-based sequence number of the part.
func (p *Part) Sequence() int {
	return p.seq
}

// Object returns the object key of the part.
func (p *Part) Object() string {
	return p.object
}

// Offset returns the byte offset of the part within the set.
func (p *Part) Offset() int64 {
	return p.offset
}

// Written returns the number of bytes accepted so far.
func (p *Part) Written() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written
}

// Info returns the committed part description, or nil before Close succeeds.
func (p *Part) Info() *Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.info
}

// Write writes data to the part.
func (p *Part) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, errors.New("parts: part is closed")
	}

	if p.writer == nil {
		ctx, cancel := context.WithCancel(p.ctx)
		w, err := p.set.bucket.NewWriter(ctx, p.object, &blob.WriterOptions{
			ContentType: "application/zip",
		})
		if err != nil {
			cancel()
			return 0, fmt.Errorf("parts: create writer for %s: %w", p.object, err)
		}
		p.writer = w
		p.writerCancel = cancel
	}

	n, err := p.writer.Write(b)
	if n > 0 && p.hash != nil {
		p.hash.Write(b[:n])
	}
	p.written += int64(n)
	return n, err
}

// Abort cancels the write and removes any data stored under the part's key.
// Safe to call multiple times or after Close; after a successful Close the
// committed object is removed as well.
func (p *Part) Abort() {
	p.mu.Lock()
	defer p.mu.Unlock()

	wasCommitted := p.info != nil
	if !p.closed && p.writer != nil {
		// Cancel first so the driver discards instead of committing.
		p.writerCancel()
		p.writer.Close()
	}
	if p.writerCancel != nil {
		p.writerCancel()
	}
	if !p.closed || wasCommitted {
		p.set.bucket.Delete(context.Background(), p.object) // best effort
	}
	p.closed = true

	p.set.mu.Lock()
	if p.set.open == p {
		p.set.open = nil
	}
	if wasCommitted {
		p.set.forget(p.seq)
	}
	p.set.mu.Unlock()
	p.info = nil
}

// Close commits the part and re-measures it in storage. The measured size,
// not the byte count seen by Write, is what gets recorded.
func (p *Part) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	if p.writer == nil {
		p.closed = true
		p.set.mu.Lock()
		if p.set.open == p {
			p.set.open = nil
		}
		p.set.mu.Unlock()
		return ErrEmptyPart
	}

	err := p.writer.Close()
	p.writerCancel()
	p.closed = true
	if err != nil {
		p.set.bucket.Delete(context.Background(), p.object)
		p.release()
		return fmt.Errorf("parts: close %s: %w", p.object, err)
	}

	attrs, err := p.set.bucket.Attributes(p.ctx, p.object)
	if err != nil {
		p.set.bucket.Delete(context.Background(), p.object)
		p.release()
		return fmt.Errorf("parts: stat %s: %w", p.object, err)
	}
	if attrs.Size != p.written {
		p.set.bucket.Delete(context.Background(), p.object)
		p.release()
		return fmt.Errorf("parts: %s measured %d bytes after close, wrote %d", p.object, attrs.Size, p.written)
	}

	info := Info{
		Object:   p.object,
		Sequence: p.seq,
		Offset:   p.offset,
		Size:     attrs.Size,
	}
	if p.hash != nil {
		info.Checksum = hex.EncodeToString(p.hash.Sum(nil))
	}
	p.info = &info

	p.set.mu.Lock()
	p.set.parts = append(p.set.parts, info)
	p.set.offset += info.Size
	p.set.open = nil
	p.set.mu.Unlock()

	return nil
}

// release detaches a failed part from its set. Must be called with p.mu held.
func (p *Part) release() {
	p.set.mu.Lock()
	if p.set.open == p {
		p.set.open = nil
	}
	p.set.mu.Unlock()
}

// forget drops a committed part from the set. Must be called with s.mu held.
func (s *Set) forget(seq int) {
	for i, info := range s.parts {
		if info.Sequence == seq {
			s.offset -= info.Size
			s.parts = append(s.parts[:i], s.parts[i+1:]...)
			return
		}
	}
}

// LoadIndex reads the index of a completed set.
func LoadIndex(ctx context.Context, bucket *blob.Bucket, base string) (*Index, error) {
	data, err := bucket.ReadAll(ctx, IndexName(base))
	if err != nil {
		return nil, fmt.Errorf("parts: read index: %w", err)
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parts: unmarshal index: %w", err)
	}
	return &idx, nil
}

// isNotExist returns true if the error indicates the object doesn't exist.
func isNotExist(err error) bool {
	return gcerrors.Code(err) == gcerrors.NotFound
}
