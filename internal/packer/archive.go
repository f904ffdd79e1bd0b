package packer

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
)

// Byte sizes of the records archive/zip emits for a stored entry whose
// header has Modified set.
const (
	localHeaderLen      = 30
	centralHeaderLen    = 46
	extTimeExtraLen     = 9
	dataDescriptorLen   = 16
	dataDescriptor64Len = 24
	zip64ExtraLen       = 28
	endRecordLen        = 22
	zip64EndLen         = 56 + 20 // end record + locator

	uint16max = 1<<16 - 1
	uint32max = 1<<32 - 1
)

// zipSizer predicts the exact size of a stored-mode archive as entries are
// added.
type zipSizer struct {
	offset  int64 // bytes of local headers, data and descriptors
	central int64 // bytes of central directory
	records int
}

func (z *zipSizer) add(name string, size int64) {
	zip64 := size >= uint32max
	entryOffset := z.offset

	z.offset += localHeaderLen + int64(len(name)) + extTimeExtraLen + size
	if zip64 {
		z.offset += dataDescriptor64Len
	} else {
		z.offset += dataDescriptorLen
	}

	z.central += centralHeaderLen + int64(len(name)) + extTimeExtraLen
	if zip64 || entryOffset >= uint32max {
		z.central += zip64ExtraLen
	}
	z.records++
}

// total is the archive size if it were closed now.
func (z *zipSizer) total() int64 {
	end := int64(endRecordLen)
	if z.records >= uint16max || z.central >= uint32max || z.offset >= uint32max {
		end += zip64EndLen
	}
	return z.offset + z.central + end
}

// with returns the total after adding one more entry, without adding it.
func (z zipSizer) with(name string, size int64) int64 {
	z.add(name, size)
	return z.total()
}

// ArchiveSize predicts the size of a stored-mode archive holding the given
// entries, in order.
func ArchiveSize(names []string, sizes []int64) int64 {
	var z zipSizer
	for i := range names {
		z.add(names[i], sizes[i])
	}
	return z.total()
}

// BuildResult summarizes one archive.
type BuildResult struct {
	// Entries are the entry names written, in order.
	Entries []string
	// Files are the sources behind Entries.
	Files   []SourceFileEntry
	Skipped []SkippedFile
	// Written is the number of bytes handed to the destination writer.
	Written int64
}

// ArchiveBuilder streams source files into stored-mode ZIP archives through
// one reusable buffer.
type ArchiveBuilder struct {
	buf        []byte
	checkEvery int
	observer   Observer
	logger     *zap.Logger
	now        func() time.Time
}

// NewArchiveBuilder creates a builder with a bufferSize copy buffer that
// checks for cancellation every checkEvery chunks.
func NewArchiveBuilder(bufferSize, checkEvery int, observer Observer, logger *zap.Logger) *ArchiveBuilder {
	if bufferSize <= 0 {
		bufferSize = 1 << 20
	}
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveBuilder{
		buf:        make([]byte, bufferSize),
		checkEvery: checkEvery,
		observer:   observer,
		logger:     logger,
		now:        time.Now,
	}
}

// Build writes all sources into one archive on w, in input order. Sources
// that cannot be read are skipped and listed in the result. The returned
// error is a write failure or a context error; the archive is then unusable.
func (b *ArchiveBuilder) Build(ctx context.Context, sources []SourceFileEntry, w io.Writer) (*BuildResult, error) {
	c := b.newContainer(w)
	for _, src := range sources {
		if err := c.add(ctx, src, c.names.claim(entryName(src))); err != nil {
			return nil, err
		}
	}
	if err := c.close(); err != nil {
		return nil, err
	}
	return &c.result, nil
}

// container is one archive being written.
type container struct {
	b      *ArchiveBuilder
	cw     *countingWriter
	zw     *zip.Writer
	names  nameSet
	result BuildResult
}

func (b *ArchiveBuilder) newContainer(w io.Writer) *container {
	cw := &countingWriter{w: w}
	return &container{
		b:     b,
		cw:    cw,
		zw:    zip.NewWriter(cw),
		names: nameSet{},
	}
}

// add appends src under name. Unreadable sources are recorded as skipped and
// do not produce an error.
func (c *container) add(ctx context.Context, src SourceFileEntry, name string) error {
	f, err := os.Open(src.Path)
	if err != nil {
		c.skip(src, err, false)
		return nil
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		c.skip(src, err, false)
		return nil
	}
	if !info.Mode().IsRegular() {
		c.skip(src, errors.New("not a regular file"), false)
		return nil
	}

	modified := info.ModTime()
	if modified.IsZero() {
		modified = c.b.now()
	}
	hdr := &zip.FileHeader{
		Name:     name,
		Method:   zip.Store,
		Modified: modified,
	}
	hdr.SetMode(info.Mode().Perm())

	w, err := c.zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("create entry %s: %w", name, err)
	}

	n, err := copyChunks(ctx, w, io.LimitReader(f, src.Size), c.b.buf, c.b.checkEvery, func(k int) {
		c.b.observer.BytesCopied(int64(k))
	})
	if err != nil {
		var rerr *readError
		if errors.As(err, &rerr) {
			c.skip(src, rerr.err, true)
			return nil
		}
		return fmt.Errorf("write entry %s: %w", name, err)
	}
	if n < src.Size {
		c.b.logger.Warn("source shrank since listing",
			zap.String("file", src.Name), zap.Int64("expected", src.Size), zap.Int64("copied", n))
	}

	c.result.Entries = append(c.result.Entries, name)
	c.result.Files = append(c.result.Files, src)
	c.b.observer.FileAdded(src.Name, n)
	return nil
}

func (c *container) skip(src SourceFileEntry, err error, truncated bool) {
	c.b.logger.Warn("skipping unreadable source",
		zap.String("file", src.Name), zap.Bool("truncated", truncated), zap.Error(err))
	c.result.Skipped = append(c.result.Skipped, SkippedFile{
		Name:      src.Name,
		Path:      src.Path,
		Reason:    err.Error(),
		Truncated: truncated,
	})
	c.b.observer.FileSkipped(src.Name, err)
}

// close writes the central directory. The destination is left open.
func (c *container) close() error {
	if err := c.zw.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}
	c.result.Written = c.cw.n
	return nil
}
