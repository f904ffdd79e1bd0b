package parts

import (
	"context"
	"fmt"

	"gocloud.dev/blob"
)

// Delete removes a completed set: every part listed in its index, then the
// index itself. Parts that are already gone are ignored.
//
// Returns an error if:
//   - The index doesn't exist (error wraps gcerrors.NotFound)
//   - The index JSON is malformed (encoding/json error)
//   - A part cannot be deleted (permission denied, I/O error)
//   - The context is cancelled (context.Canceled or context.DeadlineExceeded)
func Delete(ctx context.Context, bucket *blob.Bucket, base string) error {
	idx, err := LoadIndex(ctx, bucket, base)
	if err != nil {
		return err
	}

	for _, part := range idx.Parts {
		if err := bucket.Delete(ctx, part.Object); err != nil && !isNotExist(err) {
			return fmt.Errorf("parts: delete part %s: %w", part.Object, err)
		}
	}

	if err := bucket.Delete(ctx, IndexName(base)); err != nil {
		return fmt.Errorf("parts: delete index: %w", err)
	}

	return nil
}
