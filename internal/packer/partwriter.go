package packer

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/file2link/packer/pkg/parts"
)

// PartWriter writes the parts of one job into a part set. Parts are written
// strictly one after another; any failure aborts the part and leaves nothing
// behind under its name.
type PartWriter struct {
	set      *parts.Set
	observer Observer
	logger   *zap.Logger
}

// NewPartWriter wraps set.
func NewPartWriter(set *parts.Set, observer Observer, logger *zap.Logger) *PartWriter {
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PartWriter{set: set, observer: observer, logger: logger}
}

// OpenPart is a part being streamed.
type OpenPart struct {
	pw   *PartWriter
	part *parts.Part
}

// Open starts the next part.
func (pw *PartWriter) Open(ctx context.Context) (*OpenPart, error) {
	p, err := pw.set.Next(ctx)
	if err != nil {
		return nil, fmt.Errorf("open part: %w", err)
	}
	return &OpenPart{pw: pw, part: p}, nil
}

// Writer returns the destination for the part's bytes.
func (op *OpenPart) Writer() io.Writer {
	return op.part
}

// Filename returns the file name the part is stored under.
func (op *OpenPart) Filename() string {
	return op.part.Object()
}

// Commit closes the part and returns it with its size as measured on disk.
// On failure the part has already been removed.
func (op *OpenPart) Commit() (OutputPart, error) {
	if err := op.part.Close(); err != nil {
		return OutputPart{}, fmt.Errorf("commit part %d: %w", op.part.Sequence(), err)
	}
	info := op.part.Info()
	out := OutputPart{
		Sequence: info.Sequence,
		Filename: info.Object,
		Size:     info.Size,
		Checksum: info.Checksum,
	}
	op.pw.logger.Debug("part written",
		zap.Int("part", out.Sequence), zap.String("file", out.Filename), zap.Int64("size", out.Size))
	op.pw.observer.PartWritten(out.Sequence, out.Filename, out.Size)
	return out, nil
}

// Abort discards the part.
func (op *OpenPart) Abort() {
	op.part.Abort()
}

// WritePart streams one whole part produced by fill.
func (pw *PartWriter) WritePart(ctx context.Context, fill func(w io.Writer) error) (OutputPart, error) {
	op, err := pw.Open(ctx)
	if err != nil {
		return OutputPart{}, err
	}
	if err := fill(op.Writer()); err != nil {
		op.Abort()
		return OutputPart{}, err
	}
	return op.Commit()
}

// Register records every part with the store, in sequence order, and fills
// in Number and DownloadURL.
func (pw *PartWriter) Register(ctx context.Context, store Store, userID, category string, out []OutputPart) error {
	for i := range out {
		n, err := store.RegisterFile(ctx, userID, category, out[i].Filename, out[i].Filename)
		if err != nil {
			return fmt.Errorf("register %s: %w", out[i].Filename, err)
		}
		out[i].Number = n
		out[i].DownloadURL = store.BuildDownloadURL(userID, category, out[i].Filename)
	}
	return nil
}
