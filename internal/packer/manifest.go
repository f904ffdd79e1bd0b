package packer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gocloud.dev/blob"
)

// ManifestRegistrar writes the text file listing every part's download link.
type ManifestRegistrar struct {
	bucket   *blob.Bucket
	store    Store
	userID   string
	category string
	logger   *zap.Logger
}

// NewManifestRegistrar creates a registrar writing into bucket, which must be
// rooted at the user's directory for category.
func NewManifestRegistrar(bucket *blob.Bucket, store Store, userID, category string, logger *zap.Logger) *ManifestRegistrar {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ManifestRegistrar{
		bucket:   bucket,
		store:    store,
		userID:   userID,
		category: category,
		logger:   logger,
	}
}

// ManifestName returns the manifest file name for a job base name.
func ManifestName(base string) string {
	return base + ".links.txt"
}

// WriteManifest writes one download URL per line, ordered by part sequence,
// registers the file and returns its URL. On failure the manifest file is
// removed.
func (m *ManifestRegistrar) WriteManifest(ctx context.Context, out []OutputPart, name string) (string, error) {
	sorted := make([]OutputPart, len(out))
	copy(sorted, out)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Sequence < sorted[j].Sequence })

	var sb strings.Builder
	for _, p := range sorted {
		sb.WriteString(p.DownloadURL)
		sb.WriteByte('\n')
	}

	if err := m.bucket.WriteAll(ctx, name, []byte(sb.String()), &blob.WriterOptions{
		ContentType: "text/plain; charset=utf-8",
	}); err != nil {
		m.bucket.Delete(context.WithoutCancel(ctx), name)
		return "", fmt.Errorf("write manifest: %w", err)
	}

	if _, err := m.store.RegisterFile(ctx, m.userID, m.category, name, name); err != nil {
		m.bucket.Delete(context.WithoutCancel(ctx), name)
		return "", fmt.Errorf("register manifest: %w", err)
	}
	return m.store.BuildDownloadURL(m.userID, m.category, name), nil
}

// WriteBestEffort is WriteManifest with failures logged and swallowed. It
// returns the manifest URL, or "" if anything went wrong.
func (m *ManifestRegistrar) WriteBestEffort(ctx context.Context, out []OutputPart, name string) string {
	url, err := m.WriteManifest(ctx, out, name)
	if err != nil {
		m.logger.Warn("manifest not written", zap.String("file", name), zap.Error(err))
		return ""
	}
	return url
}
