package main

import (
	"fmt"
	"os"

	"github.com/file2link/packer/internal/packer"
	"github.com/file2link/packer/pkg/parts"
)

// runValidate checks that a packed set is complete and every part exists
// with the recorded size. No part data is read.
func runValidate(args []string) int {
	fs := newFlagSet("validate", `Usage: packer validate --user ID --base NAME [options]

Verify that every part of a packed set exists with the size recorded in its
index. NAME is the common stem, e.g. packed_files_1700000000_ab12cd34.`)
	var common commonFlags
	common.register(fs)
	base := fs.StringP("base", "b", "", "Base name of the packed set (required)")

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}
	if common.user == "" || *base == "" {
		fmt.Fprintln(os.Stderr, "Error: --user and --base are required")
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

	dir, err := e.registry.GetUserDirectory(common.user, cfg.OutputCategory)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitStorageError
	}
	bkt, err := packer.OpenDirBucket(ctx, dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening output directory: %v\n", err)
		return ExitStorageError
	}
	defer bkt.Close()

	result, err := parts.Validate(ctx, bkt, *base)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitStorageError
	}

	fmt.Printf("Set: %s\n", *base)
	fmt.Printf("Layout: %s\n", result.Layout)
	fmt.Printf("Total size: %d bytes\n", result.TotalSize)
	fmt.Printf("Parts: %d\n", result.PartCount)

	if result.Valid {
		fmt.Println("Status: VALID")
		return ExitSuccess
	}

	fmt.Println("Status: INVALID")
	fmt.Printf("Missing parts: %d\n", result.MissingParts)
	fmt.Printf("Size mismatches: %d\n", result.SizeMismatches)

	if len(result.Errors) > 0 {
		fmt.Println("\nErrors:")
		for _, e := range result.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}

	return ExitValidationFailed
}
