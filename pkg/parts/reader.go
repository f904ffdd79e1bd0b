package parts

import (
	"context"
	"encoding/hex"
	"fmt"
	"hash"
	"io"

	"github.com/zeebo/blake3"
	"gocloud.dev/blob"
)

// Reader streams all parts of a set in sequence order. For LayoutRaw sets the
// result is the original byte stream.
type Reader struct {
	ctx    context.Context
	bucket *blob.Bucket
	index  *Index
	opts   Options

	current int
	reader  io.ReadCloser
	hash    hash.Hash
	closed  bool
}

// Open opens a completed set for sequential reading.
func Open(ctx context.Context, bucket *blob.Bucket, base string, options ...Option) (*Reader, error) {
	opts := Options{}
	for _, opt := range options {
		opt(&opts)
	}

	idx, err := LoadIndex(ctx, bucket, base)
	if err != nil {
		return nil, err
	}

	return &Reader{
		ctx:    ctx,
		bucket: bucket,
		index:  idx,
		opts:   opts,
	}, nil
}

// Read reads data from the concatenated parts.
func (r *Reader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, io.ErrClosedPipe
	}

	for {
		if r.reader != nil {
			n, err := r.reader.Read(p)
			if n > 0 && r.hash != nil {
				r.hash.Write(p[:n])
			}
			if err == io.EOF {
				if err := r.finishPart(); err != nil {
					return n, err
				}
				if n > 0 {
					return n, nil
				}
				continue
			}
			return n, err
		}

		if r.current >= len(r.index.Parts) {
			return 0, io.EOF
		}

		info := r.index.Parts[r.current]
		rd, err := r.bucket.NewReader(r.ctx, info.Object, nil)
		if err != nil {
			return 0, fmt.Errorf("parts: open part %d: %w", info.Sequence, err)
		}
		r.reader = rd
		r.current++
		if r.opts.VerifyChecksum && info.Checksum != "" {
			r.hash = blake3.New()
		}
	}
}

func (r *Reader) finishPart() error {
	info := r.index.Parts[r.current-1]
	r.reader.Close()
	r.reader = nil

	if r.hash == nil {
		return nil
	}
	actual := hex.EncodeToString(r.hash.Sum(nil))
	r.hash = nil
	if actual != info.Checksum {
		return fmt.Errorf("parts: checksum mismatch for part %d: expected %s, got %s",
			info.Sequence, info.Checksum, actual)
	}
	return nil
}

// Close releases the reader. The bucket is owned by the caller.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	if r.reader != nil {
		r.reader.Close()
		r.reader = nil
	}
	return nil
}

// Index returns the index of the set being read.
func (r *Reader) Index() *Index {
	return r.index
}
