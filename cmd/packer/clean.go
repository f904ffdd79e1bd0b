package main

import (
	"fmt"
	"os"
)

// runClean deletes every packed file of a user and forgets their records.
func runClean(args []string) int {
	fs := newFlagSet("clean", `Usage: packer clean --user ID [options]

Delete all packed output of a user and the matching records.`)
	var common commonFlags
	common.register(fs)

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

	removed, err := e.engine.ClearOutputs(ctx, common.user)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", errorMessage(err))
		return exitCodeFor(err)
	}
	records, err := e.registry.ClearCategory(ctx, common.user, cfg.OutputCategory)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitStorageError
	}

	fmt.Fprintf(os.Stderr, "[packer] Removed %d file(s) and %d record(s)\n", removed, records)
	return ExitSuccess
}
