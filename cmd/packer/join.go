package main

import (
	"fmt"
	"io"
	"os"

	"github.com/file2link/packer/internal/packer"
	"github.com/file2link/packer/pkg/parts"
)

// runJoin writes the parts of a packed set, in order, to one file. For a
// raw split this restores the original archive.
func runJoin(args []string) int {
	fs := newFlagSet("join", `Usage: packer join --user ID --base NAME [options]

Concatenate the parts of a packed set into one file, verifying checksums.`)
	var common commonFlags
	common.register(fs)
	base := fs.StringP("base", "b", "", "Base name of the packed set (required)")
	output := fs.StringP("output", "o", "-", "Output file path (- for stdout)")
	noVerify := fs.Bool("no-verify", false, "Skip checksum verification")

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

	reader, err := parts.Open(ctx, bkt, *base, parts.WithVerifyChecksum(!*noVerify))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening packed set: %v\n", err)
		return ExitStorageError
	}
	defer reader.Close()

	var w io.Writer
	if *output == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(*output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating output file: %v\n", err)
			return ExitGeneralError
		}
		defer f.Close()
		w = f
	}

	buf := make([]byte, cfg.BufferSize)
	n, err := io.CopyBuffer(w, reader, buf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if *output != "-" {
			os.Remove(*output)
		}
		return ExitValidationFailed
	}

	if *output != "-" {
		fmt.Fprintf(os.Stderr, "[packer] Joined %d part(s), %d bytes to %s\n", len(reader.Index().Parts), n, *output)
	}
	return ExitSuccess
}
