package main

import (
	"fmt"
	"os"
)

// Exit codes
const (
	ExitSuccess          = 0
	ExitGeneralError     = 1
	ExitInvalidArgs      = 2
	ExitAdmissionDenied  = 3
	ExitSourceRead       = 4
	ExitStorageError     = 5
	ExitTimeout          = 6
	ExitValidationFailed = 7
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return ExitInvalidArgs
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "pack":
		return runPack(cmdArgs)
	case "status":
		return runStatus(cmdArgs)
	case "list":
		return runList(cmdArgs)
	case "validate":
		return runValidate(cmdArgs)
	case "join":
		return runJoin(cmdArgs)
	case "clean":
		return runClean(cmdArgs)
	case "help", "-h", "--help":
		printUsage()
		return ExitSuccess
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		return ExitInvalidArgs
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: packer <command> [options]

Commands:
  pack      Bundle a user's stored files into one archive or several parts
  status    Show whether the server can accept a packing job now
  list      List a user's registered files
  validate  Verify that every part of a packed set exists with the right size
  join      Reassemble the parts of a packed set into one file
  clean     Delete a user's packed files and their records

Run 'packer <command> -h' for command-specific help.`)
}
