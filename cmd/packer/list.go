package main

import (
	"fmt"
	"os"

	"github.com/file2link/packer/internal/progress"
)

// runList prints the registered files of a user that still exist on disk.
func runList(args []string) int {
	fs := newFlagSet("list", `Usage: packer list --user ID [options]

List a user's registered files with their numbers and links.`)
	var common commonFlags
	common.register(fs)
	packed := fs.Bool("packed", false, "List packed output instead of stored files")

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

	ctx, cancel := signalContext()
	defer cancel()

	e, err := openEnv(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitStorageError
	}
	defer e.Close()

	category := cfg.SourceCategory
	if *packed {
		category = cfg.OutputCategory
	}
	files, err := e.registry.ListFiles(ctx, common.user, category)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitStorageError
	}

	if len(files) == 0 {
		fmt.Println("No files.")
		return ExitSuccess
	}
	for _, f := range files {
		fmt.Printf("#%d %s (%s)\n   %s\n", f.Number, f.OriginalName, progress.FormatBytes(f.Size), f.URL)
	}
	return ExitSuccess
}
