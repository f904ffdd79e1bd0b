package parts

import (
	"context"
	"testing"
)

func TestValidate(t *testing.T) {
	ctx := context.Background()
	bucket := openBucket(t)

	data := testData(256 * 1024)
	s, err := Create(ctx, bucket, "test/valid", WithLayout(LayoutRaw), WithPartSize(64*1024))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	writeRaw(t, ctx, s, data, 64*1024)

	result, err := Validate(ctx, bucket, "test/valid")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if !result.Valid {
		t.Errorf("expected valid, got invalid: %v", result.Errors)
	}
	if result.TotalSize != int64(len(data)) {
		t.Errorf("expected total size %d, got %d", len(data), result.TotalSize)
	}
	if result.PartCount != 4 {
		t.Errorf("expected 4 parts, got %d", result.PartCount)
	}
	if result.Layout != LayoutRaw {
		t.Errorf("expected raw layout, got %q", result.Layout)
	}
	if len(result.Errors) != 0 {
		t.Errorf("expected no errors, got %v", result.Errors)
	}
}

func TestValidateMissingPart(t *testing.T) {
	ctx := context.Background()
	bucket := openBucket(t)

	s, _ := Create(ctx, bucket, "test/missing", WithLayout(LayoutRaw), WithPartSize(64*1024))
	idx := writeRaw(t, ctx, s, make([]byte, 256*1024), 64*1024)

	// Delete one part to simulate corruption
	bucket.Delete(ctx, idx.Parts[1].Object)

	result, err := Validate(ctx, bucket, "test/missing")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if result.Valid {
		t.Error("expected invalid due to missing part")
	}
	if len(result.Errors) != 1 {
		t.Errorf("expected 1 error, got %d: %v", len(result.Errors), result.Errors)
	}
	if result.MissingParts != 1 {
		t.Errorf("expected 1 missing part, got %d", result.MissingParts)
	}
}

func TestValidateSizeMismatch(t *testing.T) {
	ctx := context.Background()
	bucket := openBucket(t)

	s, _ := Create(ctx, bucket, "test/mismatch", WithLayout(LayoutRaw), WithPartSize(64*1024))
	idx := writeRaw(t, ctx, s, make([]byte, 256*1024), 64*1024)

	// Overwrite one part with wrong size
	bucket.WriteAll(ctx, idx.Parts[0].Object, []byte("too small"), nil)

	result, err := Validate(ctx, bucket, "test/mismatch")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if result.Valid {
		t.Error("expected invalid due to size mismatch")
	}
	if result.SizeMismatches != 1 {
		t.Errorf("expected 1 size mismatch, got %d", result.SizeMismatches)
	}
}

func TestValidateNonExistent(t *testing.T) {
	bucket := openBucket(t)

	if _, err := Validate(context.Background(), bucket, "test/does-not-exist"); err == nil {
		t.Fatal("expected error validating non-existent set")
	}
}
