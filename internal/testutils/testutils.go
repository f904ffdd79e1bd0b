// Package testutils provides shared test fixtures: deterministic source
// files, an in-memory metadata store and a recording admission gate.
package testutils

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/file2link/packer/internal/admission"
)

// TestFile defines a source file with size and data.
type TestFile struct {
	Name string
	Size int64
	Data []byte
}

// GenerateTestData generates size bytes of a repeating pattern offset by
// seed, so files of equal size still differ.
func GenerateTestData(t *testing.T, size int64, seed byte) []byte {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i%251) + seed
	}
	return data
}

// NewTestFile builds a TestFile with generated content.
func NewTestFile(t *testing.T, name string, size int64, seed byte) TestFile {
	t.Helper()
	return TestFile{Name: name, Size: size, Data: GenerateTestData(t, size, seed)}
}

// WriteFiles writes files into dir and returns their paths in order.
func WriteFiles(t *testing.T, dir string, files []TestFile) []string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("create %s: %v", dir, err)
	}
	paths := make([]string, 0, len(files))
	for _, f := range files {
		p := filepath.Join(dir, f.Name)
		if err := os.WriteFile(p, f.Data, 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
		paths = append(paths, p)
	}
	return paths
}

// Registration is one call to Store.RegisterFile.
type Registration struct {
	UserID       string
	Category     string
	OriginalName string
	StoredName   string
	Number       int
}

// Store is an in-memory metadata store keeping user directories under a
// base directory on disk.
type Store struct {
	BaseDir   string
	PublicURL string

	// FailRegister, when set, is returned by RegisterFile once FailAfter
	// calls have succeeded.
	FailRegister error
	FailAfter    int

	mu            sync.Mutex
	registrations []Registration
	counters      map[string]int
}

// NewStore creates a Store rooted in a temporary directory.
func NewStore(t *testing.T) *Store {
	t.Helper()
	return &Store{
		BaseDir:   t.TempDir(),
		PublicURL: "http://files.test",
		counters:  make(map[string]int),
	}
}

func (s *Store) RegisterFile(_ context.Context, userID, category, originalName, storedName string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailRegister != nil && len(s.registrations) >= s.FailAfter {
		return 0, s.FailRegister
	}
	key := userID + "/" + category
	s.counters[key]++
	n := s.counters[key]
	s.registrations = append(s.registrations, Registration{
		UserID:       userID,
		Category:     category,
		OriginalName: originalName,
		StoredName:   storedName,
		Number:       n,
	})
	return n, nil
}

func (s *Store) BuildDownloadURL(userID, category, storedName string) string {
	return fmt.Sprintf("%s/static/%s/%s/%s", s.PublicURL, userID, category, url.PathEscape(storedName))
}

func (s *Store) GetUserDirectory(userID, category string) (string, error) {
	dir := filepath.Join(s.BaseDir, userID, category)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Registrations returns a copy of every successful registration.
func (s *Store) Registrations() []Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Registration, len(s.registrations))
	copy(out, s.registrations)
	return out
}

// Gate is an admission gate that records calls.
type Gate struct {
	// Deny, when set, is the reason every TryAcquire fails with.
	Deny string

	mu       sync.Mutex
	acquired int
	released int
	active   int
}

func (g *Gate) TryAcquire() (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Deny != "" {
		return false, g.Deny
	}
	g.acquired++
	g.active++
	return true, ""
}

func (g *Gate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.released++
	if g.active > 0 {
		g.active--
	}
}

func (g *Gate) Status() admission.Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return admission.Status{Active: g.active, Max: 1, CanAccept: g.Deny == "" && g.active == 0}
}

// Calls returns how many slots were granted and released.
func (g *Gate) Calls() (acquired, released int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.acquired, g.released
}

// CompareReaderToData compares reader output with expected data in chunks.
func CompareReaderToData(t *testing.T, reader io.Reader, expected []byte) {
	t.Helper()

	buf := make([]byte, 1<<20)
	offset := 0

	for {
		n, err := reader.Read(buf)
		if n > 0 {
			if offset+n > len(expected) {
				t.Fatalf("read more data than expected: offset=%d, n=%d, expected len=%d",
					offset, n, len(expected))
			}
			if !bytes.Equal(buf[:n], expected[offset:offset+n]) {
				t.Fatalf("data mismatch at offset %d", offset)
			}
			offset += n
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("read error at offset %d: %v", offset, err)
		}
	}

	if offset != len(expected) {
		t.Fatalf("incomplete read: got %d bytes, want %d", offset, len(expected))
	}
}
