package progress

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "0 B"},
		{100, "100 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1024 * 1024, "1.0 MiB"},
		{256 * 1024 * 1024, "256 MiB"},
		{1024 * 1024 * 1024, "1.0 GiB"},
		{1024 * 1024 * 1024 * 1024, "1.0 TiB"},
		{2.5 * 1024 * 1024 * 1024 * 1024, "2.5 TiB"},
	}

	for _, tt := range tests {
		result := FormatBytes(tt.input)
		if result != tt.expected {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"100", 100},
		{"100B", 100},
		{"1KiB", 1024},
		{"1.5KiB", 1536},
		{"256MiB", 256 * 1024 * 1024},
		{"1GiB", 1024 * 1024 * 1024},
		{"1TiB", 1024 * 1024 * 1024 * 1024},
		// SI units
		{"1KB", 1000},
		{"1MB", 1000 * 1000},
		{"1GB", 1000 * 1000 * 1000},
	}

	for _, tt := range tests {
		result, err := ParseBytes(tt.input)
		if err != nil {
			t.Errorf("ParseBytes(%q): %v", tt.input, err)
			continue
		}
		if result != tt.expected {
			t.Errorf("ParseBytes(%q) = %d, want %d", tt.input, result, tt.expected)
		}
	}
}

func TestParseBytesInvalid(t *testing.T) {
	_, err := ParseBytes("invalid")
	if err == nil {
		t.Error("expected error for invalid input")
	}
}

func TestBar(t *testing.T) {
	tests := []struct {
		current, total int64
		expected       string
	}{
		{0, 0, "[░░░░░░░░░░░░░░░] 0.0%"},
		{0, 100, "[░░░░░░░░░░░░░░░] 0.0%"},
		{50, 100, "[████████░░░░░░░] 50.0%"},
		{100, 100, "[███████████████] 100.0%"},
		{150, 100, "[███████████████] 100.0%"},
	}

	for _, tt := range tests {
		if got := Bar(tt.current, tt.total, 15); got != tt.expected {
			t.Errorf("Bar(%d, %d) = %q, want %q", tt.current, tt.total, got, tt.expected)
		}
	}
}

func TestReporterTracking(t *testing.T) {
	reporter := NewReporter(Options{
		TotalSize:      1024,
		TotalFiles:     3,
		UpdateInterval: 100 * time.Millisecond,
	})

	// Tracking works without starting the reporter
	reporter.BytesCopied(256)
	reporter.FileAdded("a.txt", 256)
	reporter.FileSkipped("b.bin", errors.New("permission denied"))
	reporter.PartWritten(1, "packed.part001.zip", 400)

	if reporter.copiedBytes.Load() != 256 {
		t.Errorf("expected 256 bytes, got %d", reporter.copiedBytes.Load())
	}
	if reporter.filesDone.Load() != 1 {
		t.Errorf("expected 1 file done, got %d", reporter.filesDone.Load())
	}
	if reporter.filesSkipped.Load() != 1 {
		t.Errorf("expected 1 file skipped, got %d", reporter.filesSkipped.Load())
	}
	if reporter.partsDone.Load() != 1 {
		t.Errorf("expected 1 part, got %d", reporter.partsDone.Load())
	}

	// Stop without Start is a no-op
	reporter.Stop()
}

func TestReporterStartStop(t *testing.T) {
	var out bytes.Buffer
	reporter := NewReporter(Options{
		TotalSize:      512 * 1024,
		TotalFiles:     2,
		PartLimit:      4 * 1024 * 1024,
		Output:         &out,
		UpdateInterval: 10 * time.Millisecond,
		Label:          "user 42",
	})

	reporter.Start()

	reporter.BytesCopied(256 * 1024)
	reporter.FileAdded("a.txt", 256*1024)
	reporter.BytesCopied(256 * 1024)
	reporter.FileAdded("b.bin", 256*1024)
	reporter.PartWritten(1, "packed.part001.zip", 512*1024+220)

	time.Sleep(50 * time.Millisecond) // Let updates run

	reporter.Stop()
	reporter.Stop() // idempotent

	got := out.String()
	for _, want := range []string{
		"[packer] Packing: user 42",
		"Part limit: 4.0 MiB",
		"Files: 2/2 | Skipped: 0 | Parts: 1",
		"Total time:",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}
