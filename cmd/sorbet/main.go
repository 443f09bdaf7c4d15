// Package main implements the sorbet command-line typechecker.
//
// Usage:
//
//	sorbet check [flags] paths...   # typecheck files or directories
//	sorbet version                  # show version information
//
// The check command runs the non-cancelable typecheck mode; the epoch
// coordinator's cancelable slow path only matters once an editor drives
// the process as a language server.
package main

import (
	"fmt"
	"os"

	"github.com/che-burashco/sorbet/typecheck"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch command := os.Args[1]; command {
	case "check":
		os.Exit(checkCommand(os.Args[2:]))
	case "version", "--version", "-v":
		info := typecheck.GetInfo()
		fmt.Printf("sorbet version %s (minimum client %s)\n", info.Version, info.MinClientVersion)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`sorbet - static typechecker

USAGE:
    sorbet <command> [arguments]

COMMANDS:
    check      Typecheck the given files or directories
    version    Show version information
    help       Show this help message

EXAMPLES:
    # Typecheck a directory
    sorbet check ./lib

    # Typecheck with four workers, exporting counters to statsd
    sorbet check -workers 4 -statsd 127.0.0.1:8125 ./lib ./app

`)
}
