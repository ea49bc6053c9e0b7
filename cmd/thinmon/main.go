// Copyright 2025 The thinmon Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package main implements the thinmon CLI tool.
//
// The thinmon tool exercises and inspects the monitor runtime:
//
//	thinmon stress -threads 8 -iters 10000   # Contended locking workload
//	thinmon modcheck ./go.mod                # Check a module's thinmon requirement
//	thinmon version -check v0.1.0            # Check API compatibility
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/kolkov/thinmon/monitor"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches a command and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return 1
	}

	command := args[0]
	switch command {
	case "stress":
		return stressCommand(args[1:], stdout, stderr)
	case "modcheck":
		return modcheckCommand(args[1:], stdout, stderr)
	case "version", "--version", "-v":
		return versionCommand(args[1:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", command)
		printUsage(stderr)
		return 1
	}
}

// versionCommand implements 'thinmon version [-check VERSION]'.
func versionCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		info := monitor.GetInfo()
		fmt.Fprintf(stdout, "thinmon version %s (%s)\n", info.Version, info.Algorithm)
		return 0
	}
	if len(args) != 2 || args[0] != "-check" {
		fmt.Fprintf(stderr, "Usage: thinmon version [-check VERSION]\n")
		return 1
	}
	if !monitor.Compatible(args[1]) {
		fmt.Fprintf(stdout, "%s is not compatible with runtime %s\n", args[1], monitor.Version)
		return 1
	}
	fmt.Fprintf(stdout, "%s is compatible with runtime %s\n", args[1], monitor.Version)
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `thinmon - adaptive object monitors for Go

USAGE:
    thinmon <command> [arguments]

COMMANDS:
    stress     Run a contended locking workload and print a report
    modcheck   Check the thinmon requirement of a go.mod file
    version    Show version information
    help       Show this help message

EXAMPLES:
    # Eight goroutines, nested holds, wait/notify every 50 iterations
    thinmon stress -threads 8 -iters 5000 -depth 3 -wait-every 50

    # Same workload without biased locking
    thinmon stress -no-reserve

    # Does this module require a compatible runtime?
    thinmon modcheck ./go.mod

    # Is code written against v0.1.0 compatible?
    thinmon version -check v0.1.0

`)
}
