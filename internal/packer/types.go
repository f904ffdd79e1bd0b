package packer

import (
	"context"
	"fmt"

	"github.com/file2link/packer/internal/admission"
)

// SourceFileEntry is a snapshot of one stored file taken when the job starts.
// Size is not re-validated; at most Size bytes are read from Path.
type SourceFileEntry struct {
	Name string
	Path string
	Size int64
}

// SkippedFile records a source that could not be (fully) read.
type SkippedFile struct {
	Name   string
	Path   string
	Reason string
	// Truncated is set when the read failed after the archive entry was
	// started; the entry is present but short.
	Truncated bool
}

// OutputPart is one file written by a job.
type OutputPart struct {
	Sequence      int
	Filename      string
	Size          int64
	Checksum      string
	DownloadURL   string
	Number        int
	SelfContained bool
	// Oversized marks an entry-preserving part holding a single source file
	// larger than the ceiling.
	Oversized bool
	Entries   []string
}

// PackResult is the outcome of a successful job.
type PackResult struct {
	JobID                   string
	UserID                  string
	Policy                  Policy
	Ceiling                 int64
	Parts                   []OutputPart
	TotalSourceFilesWritten int
	Skipped                 []SkippedFile
	TotalSize               int64
	ManifestFilename        string
	ManifestURL             string
}

// Oversized returns the parts that exceed the ceiling because they hold a
// single file larger than it.
func (r *PackResult) Oversized() []OutputPart {
	var out []OutputPart
	for _, p := range r.Parts {
		if p.Oversized {
			out = append(out, p)
		}
	}
	return out
}

// PackJob describes one packing request. A nil MaxPartSize asks for a single
// archive.
type PackJob struct {
	UserID      string
	Sources     []SourceFileEntry
	MaxPartSize *int64
	// Observer, if set, receives this job's events in addition to the
	// engine's observer.
	Observer Observer
}

// TotalSize sums the snapshot sizes of all sources.
func (j PackJob) TotalSize() int64 {
	var total int64
	for _, s := range j.Sources {
		total += s.Size
	}
	return total
}

// Policy is the partitioning strategy chosen for a job.
type Policy int

const (
	// PolicyNone writes a single archive.
	PolicyNone Policy = iota
	// PolicyRawByteSplit cuts one archive into fixed-size byte slices.
	PolicyRawByteSplit
	// PolicyEntryPreservingSplit writes several independent archives.
	PolicyEntryPreservingSplit
)

func (p Policy) String() string {
	switch p {
	case PolicyNone:
		return "none"
	case PolicyRawByteSplit:
		return "raw"
	case PolicyEntryPreservingSplit:
		return "entry"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// SplitMode selects the policy used when a ceiling is requested.
type SplitMode string

const (
	SplitEntry SplitMode = "entry"
	SplitRaw   SplitMode = "raw"
)

// Store is the metadata store of the surrounding system.
type Store interface {
	// RegisterFile records a stored file and returns its per-(user, category)
	// number.
	RegisterFile(ctx context.Context, userID, category, originalName, storedName string) (int, error)
	// BuildDownloadURL returns the public link for a stored file.
	BuildDownloadURL(userID, category, storedName string) string
	// GetUserDirectory returns (and creates) the directory for a category.
	GetUserDirectory(userID, category string) (string, error)
}

// Gate is the admission controller.
type Gate interface {
	TryAcquire() (bool, string)
	Release()
	Status() admission.Status
}

// Observer receives progress events from a running job. Calls come from the
// job's goroutine.
type Observer interface {
	FileAdded(name string, size int64)
	FileSkipped(name string, err error)
	BytesCopied(n int64)
	PartWritten(seq int, filename string, size int64)
}

type nopObserver struct{}

func (nopObserver) FileAdded(string, int64)        {}
func (nopObserver) FileSkipped(string, error)      {}
func (nopObserver) BytesCopied(int64)              {}
func (nopObserver) PartWritten(int, string, int64) {}

type multiObserver []Observer

func (m multiObserver) FileAdded(name string, size int64) {
	for _, o := range m {
		o.FileAdded(name, size)
	}
}

func (m multiObserver) FileSkipped(name string, err error) {
	for _, o := range m {
		o.FileSkipped(name, err)
	}
}

func (m multiObserver) BytesCopied(n int64) {
	for _, o := range m {
		o.BytesCopied(n)
	}
}

func (m multiObserver) PartWritten(seq int, filename string, size int64) {
	for _, o := range m {
		o.PartWritten(seq, filename, size)
	}
}
