package parts

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/memblob"
)

func openBucket(t *testing.T) *blob.Bucket {
	t.Helper()
	bucket, err := blob.OpenBucket(context.Background(), "mem://")
	if err != nil {
		t.Fatalf("open bucket: %v", err)
	}
	t.Cleanup(func() { bucket.Close() })
	return bucket
}

func testData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

// writeRaw cuts data into partSize slices and completes the set.
func writeRaw(t *testing.T, ctx context.Context, s *Set, data []byte, partSize int) *Index {
	t.Helper()
	for off := 0; off < len(data); off += partSize {
		end := off + partSize
		if end > len(data) {
			end = len(data)
		}
		p, err := s.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if _, err := p.Write(data[off:end]); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if err := p.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
	idx, err := s.Complete(ctx)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	return idx
}

func TestWriteAndRead(t *testing.T) {
	ctx := context.Background()
	bucket := openBucket(t)

	// 1MB split into 256KB parts (4 parts)
	data := testData(1024 * 1024)
	partSize := 256 * 1024

	s, err := Create(ctx, bucket, "job/packed",
		WithLayout(LayoutRaw),
		WithPartSize(int64(partSize)),
		WithMetadata(map[string]string{"job_id": "abc"}),
	)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	idx := writeRaw(t, ctx, s, data, partSize)
	if len(idx.Parts) != 4 {
		t.Fatalf("expected 4 parts, got %d", len(idx.Parts))
	}
	if idx.TotalSize != int64(len(data)) {
		t.Fatalf("expected total size %d, got %d", len(data), idx.TotalSize)
	}
	for i, p := range idx.Parts {
		if p.Sequence != i+1 {
			t.Errorf("part %d: sequence %d", i, p.Sequence)
		}
		if p.Object != RawName("job/packed", i+1) {
			t.Errorf("part %d: object %q", i, p.Object)
		}
		if p.Offset != int64(i*partSize) {
			t.Errorf("part %d: offset %d", i, p.Offset)
		}
	}

	reader, err := Open(ctx, bucket, "job/packed")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reader.Close()

	result, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(result, data) {
		t.Fatalf("data mismatch: got %d bytes, expected %d", len(result), len(data))
	}
	if reader.Index().Metadata["job_id"] != "abc" {
		t.Fatalf("expected metadata job_id=abc, got %v", reader.Index().Metadata)
	}
}

func TestNaming(t *testing.T) {
	tests := []struct {
		naming Naming
		seq    int
		want   string
	}{
		{SingleName, 1, "packed.zip"},
		{RawName, 1, "packed.zip.001"},
		{RawName, 12, "packed.zip.012"},
		{EntryName, 3, "packed.part003.zip"},
		{EntryName, 1000, "packed.part1000.zip"},
	}
	for _, tt := range tests {
		if got := tt.naming("packed", tt.seq); got != tt.want {
			t.Errorf("got %q, want %q", got, tt.want)
		}
	}
}

func TestCreateRejectsExistingSet(t *testing.T) {
	ctx := context.Background()
	bucket := openBucket(t)

	s, err := Create(ctx, bucket, "dup")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	writeRaw(t, ctx, s, []byte("hello"), 5)

	_, err = Create(ctx, bucket, "dup")
	if !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestCreateRawRequiresPartSize(t *testing.T) {
	bucket := openBucket(t)
	if _, err := Create(context.Background(), bucket, "x", WithLayout(LayoutRaw)); err == nil {
		t.Fatal("expected error for raw layout without part size")
	}
}

func TestOnePartOpenAtATime(t *testing.T) {
	ctx := context.Background()
	bucket := openBucket(t)

	s, err := Create(ctx, bucket, "seq", WithLayout(LayoutEntry))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	p, err := s.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if _, err := s.Next(ctx); !errors.Is(err, ErrPartOpen) {
		t.Fatalf("expected ErrPartOpen, got %v", err)
	}
	if _, err := s.Complete(ctx); !errors.Is(err, ErrPartOpen) {
		t.Fatalf("expected ErrPartOpen from Complete, got %v", err)
	}
	p.Write([]byte("x"))
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	p2, err := s.Next(ctx)
	if err != nil {
		t.Fatalf("Next after close: %v", err)
	}
	if p2.Sequence() != 2 {
		t.Fatalf("expected sequence 2, got %d", p2.Sequence())
	}
	if p2.Offset() != 1 {
		t.Fatalf("expected offset 1, got %d", p2.Offset())
	}
}

func TestCloseEmptyPart(t *testing.T) {
	ctx := context.Background()
	bucket := openBucket(t)

	s, _ := Create(ctx, bucket, "empty", WithLayout(LayoutEntry))
	p, _ := s.Next(ctx)
	if err := p.Close(); !errors.Is(err, ErrEmptyPart) {
		t.Fatalf("expected ErrEmptyPart, got %v", err)
	}
	if len(s.Parts()) != 0 {
		t.Fatalf("expected no committed parts, got %d", len(s.Parts()))
	}
	// The set is usable again and numbering is unchanged.
	p, err := s.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if p.Sequence() != 1 {
		t.Fatalf("expected sequence 1, got %d", p.Sequence())
	}
}

func TestPartAbortRemovesData(t *testing.T) {
	ctx := context.Background()
	bucket := openBucket(t)

	s, _ := Create(ctx, bucket, "abort", WithLayout(LayoutEntry))
	p, _ := s.Next(ctx)
	p.Write([]byte("partial data"))
	p.Abort()
	p.Abort() // idempotent

	exists, err := bucket.Exists(ctx, p.Object())
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Fatal("aborted part should not exist")
	}
	if _, err := p.Write([]byte("more")); err == nil {
		t.Fatal("expected write after abort to fail")
	}
	if _, err := s.Next(ctx); err != nil {
		t.Fatalf("Next after abort: %v", err)
	}
}

func TestSetAbortDeletesCommittedParts(t *testing.T) {
	ctx := context.Background()
	bucket := openBucket(t)

	s, _ := Create(ctx, bucket, "rollback", WithLayout(LayoutRaw), WithPartSize(4))
	var objects []string
	for i := 0; i < 3; i++ {
		p, err := s.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		p.Write([]byte("abcd"))
		if err := p.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		objects = append(objects, p.Object())
	}
	open, _ := s.Next(ctx)
	open.Write([]byte("ab"))
	objects = append(objects, open.Object())

	if err := s.Abort(ctx); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	for _, obj := range objects {
		if ok, _ := bucket.Exists(ctx, obj); ok {
			t.Errorf("%s still exists after abort", obj)
		}
	}
	if s.TotalSize() != 0 {
		t.Errorf("expected total size 0 after abort, got %d", s.TotalSize())
	}
	if _, err := s.Next(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestNextHonorsContext(t *testing.T) {
	bucket := openBucket(t)
	s, _ := Create(context.Background(), bucket, "ctx")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestCancelledWriteIsNotCommitted(t *testing.T) {
	bucket := openBucket(t)
	s, _ := Create(context.Background(), bucket, "cancel", WithLayout(LayoutEntry))

	ctx, cancel := context.WithCancel(context.Background())
	p, err := s.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	p.Write([]byte("doomed"))
	cancel()

	if err := p.Close(); err == nil {
		t.Fatal("expected Close to fail after cancellation")
	}
	if ok, _ := bucket.Exists(context.Background(), p.Object()); ok {
		t.Fatal("cancelled part should not exist")
	}
	if len(s.Parts()) != 0 {
		t.Fatalf("expected no committed parts, got %d", len(s.Parts()))
	}
}

func TestChecksumVerification(t *testing.T) {
	ctx := context.Background()
	bucket := openBucket(t)

	data := []byte("hello world test data for checksum verification")
	s, _ := Create(ctx, bucket, "sum", WithLayout(LayoutRaw), WithPartSize(20))
	idx := writeRaw(t, ctx, s, data, 20)
	for _, p := range idx.Parts {
		if len(p.Checksum) != 64 {
			t.Fatalf("part %d: expected 64 hex chars, got %q", p.Sequence, p.Checksum)
		}
	}

	reader, err := Open(ctx, bucket, "sum", WithVerifyChecksum(true))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	result, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("ReadAll with checksum verification: %v", err)
	}
	if !bytes.Equal(result, data) {
		t.Fatalf("data mismatch")
	}
}

func TestChecksumMismatchDetected(t *testing.T) {
	ctx := context.Background()
	bucket := openBucket(t)

	data := testData(40)
	s, _ := Create(ctx, bucket, "tamper", WithLayout(LayoutRaw), WithPartSize(20))
	idx := writeRaw(t, ctx, s, data, 20)

	// Same size, different content.
	if err := bucket.WriteAll(ctx, idx.Parts[1].Object, make([]byte, 20), nil); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}

	reader, err := Open(ctx, bucket, "tamper", WithVerifyChecksum(true))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := io.ReadAll(reader); err == nil {
		t.Fatal("expected checksum mismatch error")
	}
}

func TestWriteWithoutChecksum(t *testing.T) {
	ctx := context.Background()
	bucket := openBucket(t)

	data := []byte("test data without checksum computation")
	s, _ := Create(ctx, bucket, "nosum",
		WithLayout(LayoutRaw),
		WithPartSize(15),
		WithChecksum(false),
	)
	idx := writeRaw(t, ctx, s, data, 15)
	for _, p := range idx.Parts {
		if p.Checksum != "" {
			t.Errorf("part %d has checksum %q, expected empty", p.Sequence, p.Checksum)
		}
	}

	// Verification skips parts without a stored checksum.
	reader, err := Open(ctx, bucket, "nosum", WithVerifyChecksum(true))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	result, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(result, data) {
		t.Fatalf("data mismatch")
	}
}

func TestOpenMissingIndex(t *testing.T) {
	bucket := openBucket(t)
	if _, err := Open(context.Background(), bucket, "nope"); err == nil {
		t.Fatal("expected error for missing index")
	}
}
