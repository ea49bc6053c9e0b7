// Copyright 2025 The thinmon Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// modcheck.go implements the 'thinmon modcheck' command.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/mod/modfile"

	"github.com/kolkov/thinmon/monitor"
)

// modulePath is the import path of this module.
const modulePath = "github.com/kolkov/thinmon"

// modReport is what modcheck found in a go.mod file.
type modReport struct {
	Module     string // Module path declared by the file.
	Required   bool   // Whether thinmon is required at all.
	Version    string // Required version, if any.
	Indirect   bool   // Whether the requirement is marked // indirect.
	Replace    string // Replacement target, if thinmon is replaced.
	Compatible bool   // Whether Version is compatible with this runtime.
}

// modcheckCommand implements 'thinmon modcheck [path]'.
//
// It reads a go.mod file (default ./go.mod) and reports whether the module
// requires a thinmon version compatible with this runtime. A local replace
// directive counts as compatible, since it builds against source.
//
// Example:
//
//	thinmon modcheck
//	thinmon modcheck ../service/go.mod
func modcheckCommand(args []string, stdout, stderr io.Writer) int {
	path := "go.mod"
	switch len(args) {
	case 0:
	case 1:
		path = args[0]
	default:
		fmt.Fprintf(stderr, "Usage: thinmon modcheck [path/to/go.mod]\n")
		return 1
	}

	rep, err := checkModFile(path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "module %s\n", rep.Module)
	switch {
	case !rep.Required && rep.Module != modulePath:
		fmt.Fprintf(stdout, "  does not require %s\n", modulePath)
		return 0
	case rep.Module == modulePath:
		fmt.Fprintf(stdout, "  is %s itself\n", modulePath)
		return 0
	}

	fmt.Fprintf(stdout, "  requires %s %s", modulePath, rep.Version)
	if rep.Indirect {
		fmt.Fprintf(stdout, " (indirect)")
	}
	fmt.Fprintln(stdout)
	if rep.Replace != "" {
		fmt.Fprintf(stdout, "  replaced by %s\n", rep.Replace)
	}
	if !rep.Compatible {
		fmt.Fprintf(stdout, "  NOT compatible with runtime %s\n", monitor.Version)
		return 1
	}
	fmt.Fprintf(stdout, "  compatible with runtime %s\n", monitor.Version)
	return 0
}

// checkModFile parses the go.mod file at path.
func checkModFile(path string) (*modReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	mf, err := modfile.Parse(path, data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	rep := &modReport{}
	if mf.Module != nil {
		rep.Module = mf.Module.Mod.Path
	}

	for _, req := range mf.Require {
		if req.Mod.Path != modulePath {
			continue
		}
		rep.Required = true
		rep.Version = req.Mod.Version
		rep.Indirect = req.Indirect
		rep.Compatible = monitor.Compatible(req.Mod.Version)
	}

	for _, r := range mf.Replace {
		if r.Old.Path != modulePath {
			continue
		}
		if r.Old.Version != "" && r.Old.Version != rep.Version {
			continue
		}
		if r.New.Version == "" {
			// Local directory replacement.
			target := r.New.Path
			if !filepath.IsAbs(target) {
				target = filepath.Join(filepath.Dir(path), target)
			}
			rep.Replace = target
			rep.Compatible = true
		} else {
			rep.Replace = r.New.Path + " " + r.New.Version
			rep.Compatible = monitor.Compatible(r.New.Version)
		}
	}
	return rep, nil
}
