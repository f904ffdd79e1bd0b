package progress

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Options configures the progress reporter.
type Options struct {
	// TotalSize is the total source size in bytes to pack.
	TotalSize int64

	// TotalFiles is the number of source files.
	TotalFiles int

	// PartLimit is the part size ceiling in bytes, 0 for a single archive.
	PartLimit int64

	// Output is where to write progress output.
	// Default: os.Stdout
	Output io.Writer

	// UpdateInterval is how often to update the progress display.
	// Default: 500ms
	UpdateInterval time.Duration

	// Label names the job being reported (for display).
	Label string
}

// Reporter outputs human-readable progress information for a packing job.
type Reporter struct {
	opts Options

	mu           sync.Mutex
	copiedBytes  atomic.Int64
	filesDone    atomic.Int32
	filesSkipped atomic.Int32
	partsDone    atomic.Int32
	startTime    time.Time
	lastUpdate   time.Time
	lastBytes    int64
	stopCh       chan struct{}
	doneCh       chan struct{}
	started      bool
	stopped      bool
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 500 * time.Millisecond
	}

	return &Reporter{
		opts:   opts,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins outputting progress information.
func (r *Reporter) Start() {
	r.mu.Lock()
	r.started = true
	r.startTime = time.Now()
	r.lastUpdate = r.startTime
	r.mu.Unlock()

	fmt.Fprintf(r.opts.Output, "[packer] Packing: %s\n", r.opts.Label)
	limit := "none"
	if r.opts.PartLimit > 0 {
		limit = FormatBytes(r.opts.PartLimit)
	}
	fmt.Fprintf(r.opts.Output, "[packer] Files: %d | Total size: %s | Part limit: %s\n",
		r.opts.TotalFiles,
		FormatBytes(r.opts.TotalSize),
		limit,
	)

	go r.updateLoop()
}

// Stop stops the progress reporter and prints the final status. It waits for
// the final status to be written.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped || !r.started {
		r.stopped = true
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.stopCh)
	<-r.doneCh
}

// FileAdded records a source file fully copied into an archive.
func (r *Reporter) FileAdded(name string, size int64) {
	r.filesDone.Add(1)
}

// FileSkipped records a source file that could not be read.
func (r *Reporter) FileSkipped(name string, err error) {
	r.filesSkipped.Add(1)
}

// BytesCopied records n bytes streamed into the output.
func (r *Reporter) BytesCopied(n int64) {
	r.copiedBytes.Add(n)
}

// PartWritten records a committed part.
func (r *Reporter) PartWritten(seq int, filename string, size int64) {
	r.partsDone.Add(1)
}

// updateLoop periodically updates the progress display.
func (r *Reporter) updateLoop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.printFinalStatus()
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

// printProgress outputs the current progress.
func (r *Reporter) printProgress() {
	now := time.Now()
	copied := r.copiedBytes.Load()

	elapsed := now.Sub(r.lastUpdate).Seconds()
	if elapsed < 0.1 {
		elapsed = 0.1
	}
	speed := float64(copied-r.lastBytes) / elapsed
	r.lastUpdate = now
	r.lastBytes = copied

	eta := "calculating..."
	if r.opts.TotalSize > 0 && speed > 0 {
		remaining := float64(r.opts.TotalSize - copied)
		if remaining < 0 {
			remaining = 0
		}
		eta = formatDuration(time.Duration(remaining / speed * float64(time.Second)))
	}

	fmt.Fprintf(r.opts.Output, "\r[packer] %s | %s / %s | Speed: %s/s | ETA: %s    ",
		Bar(copied, r.opts.TotalSize, 15),
		FormatBytes(copied),
		FormatBytes(r.opts.TotalSize),
		FormatBytes(int64(speed)),
		eta,
	)
	fmt.Fprintf(r.opts.Output, "\n[packer] Files: %d/%d | Skipped: %d | Parts: %d    \033[A",
		r.filesDone.Load(),
		r.opts.TotalFiles,
		r.filesSkipped.Load(),
		r.partsDone.Load(),
	)
}

// printFinalStatus outputs the final status.
func (r *Reporter) printFinalStatus() {
	copied := r.copiedBytes.Load()
	duration := time.Since(r.startTime)
	avgSpeed := float64(copied) / math.Max(duration.Seconds(), 0.001)

	fmt.Fprintf(r.opts.Output, "\r[packer] %s | %s / %s | Done    \n",
		Bar(copied, r.opts.TotalSize, 15),
		FormatBytes(copied),
		FormatBytes(r.opts.TotalSize),
	)
	fmt.Fprintf(r.opts.Output, "[packer] Files: %d/%d | Skipped: %d | Parts: %d    \n",
		r.filesDone.Load(),
		r.opts.TotalFiles,
		r.filesSkipped.Load(),
		r.partsDone.Load(),
	)
	fmt.Fprintf(r.opts.Output, "[packer] Total time: %s | Average speed: %s/s\n",
		formatDuration(duration),
		FormatBytes(int64(avgSpeed)),
	)
}

// Bar renders a fixed-width progress bar followed by the percentage,
// e.g. "[███████░░░░░░░░] 46.7%".
func Bar(current, total int64, width int) string {
	if total <= 0 {
		return "[" + strings.Repeat("░", width) + "] 0.0%"
	}
	percent := math.Min(100, float64(current)*100/float64(total))
	filled := int(math.Round(float64(width) * float64(current) / float64(total)))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return fmt.Sprintf("[%s%s] %.1f%%",
		strings.Repeat("█", filled),
		strings.Repeat("░", width-filled),
		percent,
	)
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}

// FormatBytes formats bytes with IEC units ("1.5 KiB").
func FormatBytes(b int64) string {
	if b < 0 {
		return "-" + humanize.IBytes(uint64(-b))
	}
	return humanize.IBytes(uint64(b))
}

// ParseBytes parses a human-readable byte string. IEC suffixes ("256MiB")
// are powers of 1024, SI suffixes ("1MB") powers of 1000.
func ParseBytes(s string) (int64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid byte string: %s", s)
	}
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("byte string out of range: %s", s)
	}
	return int64(n), nil
}
