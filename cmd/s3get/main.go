package main

import (
	"fmt"
	"os"
)

// Exit codes mirror the spec §7 error taxonomy, one class per code, the
// way the teacher's slurp CLI maps its own error kinds to process exit
// status.
const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitInvalidArgs  = 2
	ExitS3Error      = 3
	ExitNetworkError = 4
	ExitTimeoutError = 5
	ExitAborted      = 6
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
	case "get":
		return runGet(cmdArgs)
	case "meta":
		return runMeta(cmdArgs)
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
	fmt.Fprintln(os.Stderr, `Usage: s3get <command> [options]

Commands:
  get    Download an S3 object with parallel range/part fetches
  meta   Probe an S3 object's size and part count without downloading

Run 's3get <command> -h' for command-specific help.`)
}
