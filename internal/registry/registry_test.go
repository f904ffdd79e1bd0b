package registry

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/file2link/packer/internal/packer"
)

var _ packer.Store = (*Registry)(nil)

func openRegistry(t *testing.T) *Registry {
	t.Helper()
	dir := t.TempDir()
	r, err := Open(context.Background(), filepath.Join(dir, "db", "packer.db"), filepath.Join(dir, "static"), "https://files.example/", nil)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRegisterFileNumbersPerCategory(t *testing.T) {
	r := openRegistry(t)
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		n, err := r.RegisterFile(ctx, "7", "packed", "x", "x")
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	n, err := r.RegisterFile(ctx, "7", "download", "y", "y")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = r.RegisterFile(ctx, "8", "packed", "z", "z")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRegisterFileConcurrent(t *testing.T) {
	r := openRegistry(t)
	ctx := context.Background()

	const workers = 10
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[int]bool{}
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := r.RegisterFile(ctx, "1", "packed", "f", "f")
			assert.NoError(t, err)
			mu.Lock()
			seen[n] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers)
	for i := 1; i <= workers; i++ {
		assert.True(t, seen[i], "number %d not assigned", i)
	}
}

func TestBuildDownloadURL(t *testing.T) {
	r := openRegistry(t)

	assert.Equal(t, "https://files.example/static/7/packed/a%20b.zip",
		r.BuildDownloadURL("7", "packed", "a b.zip"))
	assert.Equal(t, "https://files.example/static/7/packed/packed_files_1.zip.001",
		r.BuildDownloadURL("7", "packed", "packed_files_1.zip.001"))
}

func TestGetUserDirectory(t *testing.T) {
	r := openRegistry(t)

	dir, err := r.GetUserDirectory("7", "packed")
	require.NoError(t, err)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, "packed", filepath.Base(dir))

	for _, bad := range []string{"", "..", "a/b", `a\b`} {
		_, err := r.GetUserDirectory(bad, "packed")
		assert.ErrorIs(t, err, ErrInvalidName, "user %q", bad)
	}
}

func TestListFilesSkipsMissingAndRenumbers(t *testing.T) {
	r := openRegistry(t)
	ctx := context.Background()
	dir, err := r.GetUserDirectory("7", "packed")
	require.NoError(t, err)

	for _, name := range []string{"one.zip", "two.zip", "three.zip"} {
		_, err := r.RegisterFile(ctx, "7", "packed", name, name)
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "one.zip"), []byte("1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "three.zip"), []byte("333"), 0o644))

	files, err := r.ListFiles(ctx, "7", "packed")
	require.NoError(t, err)
	require.Len(t, files, 2)

	assert.Equal(t, 1, files[0].Number)
	assert.Equal(t, 1, files[0].OriginalNumber)
	assert.Equal(t, "one.zip", files[0].StoredName)
	assert.Equal(t, int64(1), files[0].Size)

	assert.Equal(t, 2, files[1].Number)
	assert.Equal(t, 3, files[1].OriginalNumber)
	assert.Equal(t, int64(3), files[1].Size)
	assert.Equal(t, "https://files.example/static/7/packed/three.zip", files[1].URL)
	assert.False(t, files[1].RegisteredAt.IsZero())
}

func TestClearCategoryKeepsCounter(t *testing.T) {
	r := openRegistry(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := r.RegisterFile(ctx, "7", "packed", "f", "f")
		require.NoError(t, err)
	}
	_, err := r.RegisterFile(ctx, "7", "download", "g", "g")
	require.NoError(t, err)

	n, err := r.ClearCategory(ctx, "7", "packed")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	next, err := r.RegisterFile(ctx, "7", "packed", "f", "f")
	require.NoError(t, err)
	assert.Equal(t, 3, next)
}

func TestReopenKeepsRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "packer.db")
	ctx := context.Background()

	r, err := Open(ctx, path, dir, "http://x", nil)
	require.NoError(t, err)
	_, err = r.RegisterFile(ctx, "7", "packed", "f", "f")
	require.NoError(t, err)
	require.NoError(t, r.Close())

	r, err = Open(ctx, path, dir, "http://x", nil)
	require.NoError(t, err)
	defer r.Close()
	n, err := r.RegisterFile(ctx, "7", "packed", "f", "f")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
