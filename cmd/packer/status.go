package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// runStatus reports whether a packing job would be admitted now.
func runStatus(args []string) int {
	fs := newFlagSet("status", `Usage: packer status [options]

Show the admission state: running jobs, CPU and memory use.`)
	var common commonFlags
	common.register(fs)
	asJSON := fs.Bool("json", false, "Print the status as JSON")

	if err := fs.Parse(args); err != nil {
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

	st := e.engine.Status()
	if *asJSON {
		if err := json.NewEncoder(os.Stdout).Encode(st); err != nil {
			return ExitGeneralError
		}
		return ExitSuccess
	}

	fmt.Printf("Active jobs: %d/%d\n", st.Active, st.Max)
	fmt.Printf("CPU: %.1f%% (limit %.0f%%)\n", st.CPUPercent, cfg.Admission.CPULimit)
	fmt.Printf("Memory: %.1f%%\n", st.MemPercent)
	if st.CanAccept {
		fmt.Println("Status: ACCEPTING")
	} else {
		fmt.Println("Status: BUSY")
	}
	return ExitSuccess
}
