package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/file2link/packer/internal/packer"
	"github.com/file2link/packer/internal/progress"
)

// runPack bundles every stored file of a user into one archive, or into
// parts no larger than --max-part-mb.
func runPack(args []string) int {
	return pack(args, os.Stdout)
}

func pack(args []string, stdout io.Writer) int {
	fs := newFlagSet("pack", `Usage: packer pack --user ID [options]

Bundle every stored file of a user into a ZIP archive. With --max-part-mb the
output is split into parts no larger than that many MiB.`)

	var common commonFlags
	common.register(fs)
	maxPartMB := fs.IntP("max-part-mb", "m", 0, "Maximum part size in MiB (0 for a single archive)")
	mode := fs.String("mode", "", "Split mode: entry (independent archives) or raw (byte slices)")
	showProgress := fs.BoolP("progress", "p", false, "Show progress output")
	asJSON := fs.Bool("json", false, "Print the result as JSON")

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}
	if common.user == "" {
		fmt.Fprintln(os.Stderr, "Error: --user is required")
		fs.Usage()
		return ExitInvalidArgs
	}

	cfg, err := loadConfig(common.config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	if *mode != "" {
		cfg.SplitMode = *mode
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitInvalidArgs
		}
	}

	var requested *int
	if fs.Changed("max-part-mb") {
		requested = maxPartMB
	}
	ceiling, err := packer.PartSizeFromMB(requested)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", errorMessage(err))
		return ExitInvalidArgs
	}

	ctx, cancel := signalContext()
	defer cancel()

	e, err := openEnv(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitStorageError
	}
	defer e.Close()

	sources, err := e.engine.ListSources(common.user)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", errorMessage(err))
		return exitCodeFor(err)
	}
	job := packer.PackJob{UserID: common.user, Sources: sources, MaxPartSize: ceiling}

	if *showProgress {
		var limit int64
		if ceiling != nil {
			limit = min(*ceiling, cfg.MaxPartSize())
		}
		reporter := progress.NewReporter(progress.Options{
			TotalSize:      job.TotalSize(),
			TotalFiles:     len(sources),
			PartLimit:      limit,
			Output:         os.Stderr,
			UpdateInterval: 2 * time.Second,
			Label:          "user " + common.user,
		})
		job.Observer = reporter
		reporter.Start()
		defer reporter.Stop()
	}

	res, err := e.engine.Pack(ctx, job)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", errorMessage(err))
		return exitCodeFor(err)
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitGeneralError
		}
		return ExitSuccess
	}
	printResult(stdout, res)
	return ExitSuccess
}

func printResult(w io.Writer, res *packer.PackResult) {
	fmt.Fprintf(w, "Job: %s\n", res.JobID)
	fmt.Fprintf(w, "Files packed: %d\n", res.TotalSourceFilesWritten)
	if res.Policy != packer.PolicyNone {
		fmt.Fprintf(w, "Split: %s, parts up to %s\n", res.Policy, progress.FormatBytes(res.Ceiling))
	}
	fmt.Fprintf(w, "Total size: %s in %d file(s)\n", progress.FormatBytes(res.TotalSize), len(res.Parts))
	for _, p := range res.Parts {
		note := ""
		if p.Oversized {
			note = " (larger than the part limit)"
		}
		fmt.Fprintf(w, "  #%d %s %s%s\n     %s\n", p.Number, p.Filename, progress.FormatBytes(p.Size), note, p.DownloadURL)
	}
	if res.Policy == packer.PolicyRawByteSplit {
		fmt.Fprintln(w, "Parts must be joined in order before the archive can be opened.")
	}
	if res.ManifestURL != "" {
		fmt.Fprintf(w, "Links: %s\n", res.ManifestURL)
	}
	if len(res.Skipped) > 0 {
		fmt.Fprintf(w, "Skipped %d unreadable file(s):\n", len(res.Skipped))
		for _, s := range res.Skipped {
			fmt.Fprintf(w, "  - %s: %s\n", s.Name, s.Reason)
		}
	}
}
