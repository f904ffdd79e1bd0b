package parts

import (
	"context"
	"fmt"

	"gocloud.dev/blob"
)

// ValidationResult contains the results of validating a part set.
type ValidationResult struct {
	Valid          bool     // true if all parts exist and sizes match
	Layout         Layout   // layout recorded in the index
	TotalSize      int64    // total size from the index
	PartCount      int      // number of parts in the index
	MissingParts   int      // number of parts that don't exist
	SizeMismatches int      // number of parts with wrong size
	Errors         []string // detailed error messages
}

// Validate checks that every part listed in the index exists with the recorded
// size. Sizes are read from object attributes; no part data is downloaded.
//
// Returns an error if:
//   - The index doesn't exist (error wraps gcerrors.NotFound)
//   - The index JSON is malformed (encoding/json error)
//   - Part attributes cannot be read for a reason other than absence
//   - The context is cancelled (context.Canceled or context.DeadlineExceeded)
//
// Missing parts and size mismatches are reported in the ValidationResult
// with Valid=false, not as errors.
func Validate(ctx context.Context, bucket *blob.Bucket, base string) (*ValidationResult, error) {
	idx, err := LoadIndex(ctx, bucket, base)
	if err != nil {
		return nil, err
	}

	result := &ValidationResult{
		Valid:     true,
		Layout:    idx.Layout,
		TotalSize: idx.TotalSize,
		PartCount: len(idx.Parts),
		Errors:    make([]string, 0),
	}

	var sum int64
	for _, part := range idx.Parts {
		attrs, err := bucket.Attributes(ctx, part.Object)
		if err != nil {
			if isNotExist(err) {
				result.Valid = false
				result.MissingParts++
				result.Errors = append(result.Errors,
					fmt.Sprintf("part %d missing: %s", part.Sequence, part.Object))
				continue
			}
			return nil, fmt.Errorf("parts: check part %d: %w", part.Sequence, err)
		}

		if attrs.Size != part.Size {
			result.Valid = false
			result.SizeMismatches++
			result.Errors = append(result.Errors,
				fmt.Sprintf("part %d size mismatch: expected %d, got %d",
					part.Sequence, part.Size, attrs.Size))
		}
		sum += part.Size
	}

	if sum != idx.TotalSize && result.MissingParts == 0 {
		result.Valid = false
		result.Errors = append(result.Errors,
			fmt.Sprintf("index total %d does not match sum of parts %d", idx.TotalSize, sum))
	}

	return result, nil
}
