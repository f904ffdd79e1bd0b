package packer

import (
	"context"
	"errors"
	"io"
)

// readError marks a failure on the source side of a copy.
type readError struct {
	err error
}

func (e *readError) Error() string { return "read source: " + e.err.Error() }
func (e *readError) Unwrap() error { return e.err }

// copyChunks copies src to dst through buf and returns the bytes written.
// ctx is checked before the first chunk and then every checkEvery chunks.
// Read failures are wrapped in *readError; write failures are returned as is.
func copyChunks(ctx context.Context, dst io.Writer, src io.Reader, buf []byte, checkEvery int, onChunk func(int)) (int64, error) {
	if checkEvery <= 0 {
		checkEvery = 1
	}
	var written int64
	for chunks := 0; ; chunks++ {
		if chunks%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return written, err
			}
		}

		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			if nw > 0 {
				written += int64(nw)
				if onChunk != nil {
					onChunk(nw)
				}
			}
			if werr != nil {
				return written, werr
			}
			if nw != nr {
				return written, io.ErrShortWrite
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return written, nil
			}
			return written, &readError{err: rerr}
		}
	}
}

// countingWriter counts bytes passed to an underlying writer.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
