// Package progress provides progress reporting for packing jobs.
//
// This package outputs human-readable progress information, including a
// completion bar, throughput and ETA, and the byte formatting helpers shared
// by the CLI and configuration parsing.
//
// # Usage
//
//	reporter := progress.NewReporter(progress.Options{
//	    TotalSize:  totalBytes,
//	    TotalFiles: len(files),
//	    PartLimit:  ceiling,
//	    Output:     os.Stderr,
//	})
//
//	reporter.Start()
//	defer reporter.Stop()
//
// The reporter satisfies the packer engine's observer interface, so it can be
// passed straight to the engine.
//
// # Output Format
//
//	[packer] Packing: user 42
//	[packer] Files: 2 | Total size: 5.0 MiB | Part limit: 4.0 MiB
//	[packer] [███████░░░░░░░░] 46.7% | 2.3 MiB / 5.0 MiB | Speed: 120 MiB/s | ETA: 0s
//	[packer] Files: 1/2 | Skipped: 0 | Parts: 0
package progress
