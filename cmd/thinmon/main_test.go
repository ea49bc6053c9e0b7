// Copyright 2025 The thinmon Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestRunDispatch tests command dispatch and exit codes.
func TestRunDispatch(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantOut  string
	}{
		{"no args", nil, 1, "USAGE"},
		{"help", []string{"help"}, 0, "COMMANDS"},
		{"unknown", []string{"frobnicate"}, 1, "Unknown command: frobnicate"},
		{"version", []string{"version"}, 0, "thinmon version 0.1.0"},
		{"version check ok", []string{"version", "-check", "v0.1.0"}, 0, "is compatible"},
		{"version check bad", []string{"version", "-check", "v2.0.0"}, 1, "is not compatible"},
		{"version bad usage", []string{"version", "-x"}, 1, "Usage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run(tt.args, &stdout, &stderr)
			if code != tt.wantCode {
				t.Errorf("run(%v) = %d, want %d", tt.args, code, tt.wantCode)
			}
			out := stdout.String() + stderr.String()
			if !strings.Contains(out, tt.wantOut) {
				t.Errorf("output missing %q:\n%s", tt.wantOut, out)
			}
		})
	}
}

// TestParseStressArgs tests flag parsing and validation.
func TestParseStressArgs(t *testing.T) {
	cfg, err := parseStressArgs(nil)
	if err != nil {
		t.Fatalf("parseStressArgs() error: %v", err)
	}
	if cfg.threads != 8 || cfg.iters != 1000 || cfg.depth != 1 || cfg.objects != 1 {
		t.Errorf("defaults = %+v", cfg)
	}

	cfg, err = parseStressArgs([]string{"-threads", "3", "-depth", "4", "-no-reserve",
		"-max-recursion", "6", "-poll", "2ms", "-wait-every", "10"})
	if err != nil {
		t.Fatalf("parseStressArgs() error: %v", err)
	}
	if cfg.threads != 3 || cfg.depth != 4 || cfg.waitEvery != 10 {
		t.Errorf("parsed = %+v", cfg)
	}
	if !cfg.opts.DisableReservation || cfg.opts.MaxRecursion != 6 || cfg.opts.ContentionPoll != 2*time.Millisecond {
		t.Errorf("options = %+v", cfg.opts)
	}

	for _, bad := range [][]string{
		{"-threads", "0"},
		{"-depth", "-1"},
		{"-wait-every", "-2"},
		{"-bogus"},
		{"extra"},
	} {
		if _, err := parseStressArgs(bad); err == nil {
			t.Errorf("parseStressArgs(%v) succeeded", bad)
		}
	}
}

// TestRunStress tests the workload end to end.
func TestRunStress(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"reserved", []string{"-threads", "4", "-iters", "200"}},
		{"unreserved nested", []string{"-threads", "4", "-iters", "200", "-depth", "3", "-no-reserve"}},
		{"deep inflates", []string{"-threads", "2", "-iters", "50", "-depth", "6", "-max-recursion", "4"}},
		{"wait notify", []string{"-threads", "3", "-iters", "100", "-objects", "2", "-wait-every", "10"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"stress", "-poll", "100us"}, tt.args...)
			var stdout, stderr bytes.Buffer
			if code := run(args, &stdout, &stderr); code != 0 {
				t.Fatalf("stress exit %d:\n%s%s", code, stdout.String(), stderr.String())
			}
			if !strings.Contains(stdout.String(), "Monitor Report") {
				t.Errorf("no report in output:\n%s", stdout.String())
			}
		})
	}
}

// TestRunStressInflationCounted tests that a deep workload reports inflations.
func TestRunStressInflationCounted(t *testing.T) {
	cfg, err := parseStressArgs([]string{"-threads", "1", "-iters", "5", "-depth", "5", "-max-recursion", "4"})
	if err != nil {
		t.Fatal(err)
	}
	res, err := runStress(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if res.ops != 5 || res.stats.MaxDepthInflations != 1 {
		t.Errorf("ops=%d MaxDepthInflations=%d, want 5 and 1", res.ops, res.stats.MaxDepthInflations)
	}
}

func writeGoMod(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "go.mod")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestCheckModFile tests go.mod inspection.
func TestCheckModFile(t *testing.T) {
	tests := []struct {
		name       string
		gomod      string
		required   bool
		version    string
		replaced   bool
		compatible bool
	}{
		{
			name:  "not required",
			gomod: "module example.com/app\n\ngo 1.24\n",
		},
		{
			name:       "compatible",
			gomod:      "module example.com/app\n\ngo 1.24\n\nrequire github.com/kolkov/thinmon v0.1.0\n",
			required:   true,
			version:    "v0.1.0",
			compatible: true,
		},
		{
			name:     "too new",
			gomod:    "module example.com/app\n\ngo 1.24\n\nrequire github.com/kolkov/thinmon v0.3.1\n",
			required: true,
			version:  "v0.3.1",
		},
		{
			name: "local replace",
			gomod: "module example.com/app\n\ngo 1.24\n\nrequire github.com/kolkov/thinmon v0.9.0\n\n" +
				"replace github.com/kolkov/thinmon => ../thinmon\n",
			required:   true,
			version:    "v0.9.0",
			replaced:   true,
			compatible: true,
		},
		{
			name: "versioned replace",
			gomod: "module example.com/app\n\ngo 1.24\n\nrequire github.com/kolkov/thinmon v0.9.0\n\n" +
				"replace github.com/kolkov/thinmon v0.9.0 => github.com/fork/thinmon v0.1.0\n",
			required:   true,
			version:    "v0.9.0",
			replaced:   true,
			compatible: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep, err := checkModFile(writeGoMod(t, tt.gomod))
			if err != nil {
				t.Fatalf("checkModFile() error: %v", err)
			}
			if rep.Module != "example.com/app" {
				t.Errorf("Module = %q", rep.Module)
			}
			if rep.Required != tt.required || rep.Version != tt.version {
				t.Errorf("Required/Version = %v/%q, want %v/%q", rep.Required, rep.Version, tt.required, tt.version)
			}
			if (rep.Replace != "") != tt.replaced {
				t.Errorf("Replace = %q, want replaced=%v", rep.Replace, tt.replaced)
			}
			if rep.Compatible != tt.compatible {
				t.Errorf("Compatible = %v, want %v", rep.Compatible, tt.compatible)
			}
		})
	}
}

// TestModcheckCommand tests the command output and exit codes.
func TestModcheckCommand(t *testing.T) {
	good := writeGoMod(t, "module example.com/app\n\nrequire github.com/kolkov/thinmon v0.1.0 // indirect\n")
	var stdout, stderr bytes.Buffer
	if code := run([]string{"modcheck", good}, &stdout, &stderr); code != 0 {
		t.Errorf("modcheck exit %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "(indirect)") || !strings.Contains(stdout.String(), "compatible with runtime") {
		t.Errorf("output = %q", stdout.String())
	}

	bad := writeGoMod(t, "module example.com/app\n\nrequire github.com/kolkov/thinmon v1.0.0\n")
	stdout.Reset()
	if code := run([]string{"modcheck", bad}, &stdout, &stderr); code != 1 {
		t.Errorf("modcheck on incompatible requirement exit %d, want 1", code)
	}
	if !strings.Contains(stdout.String(), "NOT compatible") {
		t.Errorf("output = %q", stdout.String())
	}

	stderr.Reset()
	if code := run([]string{"modcheck", filepath.Join(t.TempDir(), "missing.mod")}, &stdout, &stderr); code != 1 {
		t.Errorf("modcheck on missing file exit %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "failed to read") {
		t.Errorf("stderr = %q", stderr.String())
	}

	broken := writeGoMod(t, "module\nrequire (((\n")
	if _, err := checkModFile(broken); err == nil {
		t.Error("checkModFile on malformed go.mod succeeded")
	}
}
