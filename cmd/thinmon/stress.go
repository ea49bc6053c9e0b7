// Copyright 2025 The thinmon Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// stress.go implements the 'thinmon stress' command.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kolkov/thinmon/monitor"
)

// stressConfig holds the parsed stress flags.
type stressConfig struct {
	threads   int
	iters     int
	depth     int
	objects   int
	waitEvery int
	opts      monitor.Options
}

// stressResult summarizes one stress run.
type stressResult struct {
	ops        int
	violations int64
	elapsed    time.Duration
	stats      monitor.Stats
}

// stressObject is one shared object guarded by its lock word.
type stressObject struct {
	monitor.Word
	count  int
	inside int
}

// stressCommand implements 'thinmon stress'.
//
// Every goroutine repeatedly enters an object -depth times, checks that it
// is alone inside, bumps the object's counter and exits. With -wait-every
// it also notifies and briefly waits, which inflates the locks.
//
// Example:
//
//	thinmon stress -threads 16 -iters 2000 -objects 4 -depth 2
func stressCommand(args []string, stdout, stderr io.Writer) int {
	cfg, err := parseStressArgs(args)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	res, err := runStress(cfg)
	fmt.Fprintf(stdout, "threads=%d iters=%d depth=%d objects=%d: %d ops in %v",
		cfg.threads, cfg.iters, cfg.depth, cfg.objects, res.ops, res.elapsed.Round(time.Microsecond))
	if res.elapsed > 0 {
		fmt.Fprintf(stdout, " (%.0f ops/s)", float64(res.ops)/res.elapsed.Seconds())
	}
	fmt.Fprintln(stdout)
	res.stats.WriteReport(stdout)

	if err != nil {
		fmt.Fprintf(stderr, "FAIL: %v\n", err)
		return 1
	}
	return 0
}

// parseStressArgs parses the stress flags.
func parseStressArgs(args []string) (*stressConfig, error) {
	cfg := &stressConfig{}
	fs := flag.NewFlagSet("stress", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.IntVar(&cfg.threads, "threads", 8, "number of goroutines")
	fs.IntVar(&cfg.iters, "iters", 1000, "iterations per goroutine")
	fs.IntVar(&cfg.depth, "depth", 1, "nested enters per iteration")
	fs.IntVar(&cfg.objects, "objects", 1, "number of shared objects")
	fs.IntVar(&cfg.waitEvery, "wait-every", 0, "notify and wait every N iterations (0 = never)")
	noReserve := fs.Bool("no-reserve", false, "disable biased locking")
	maxRec := fs.Uint("max-recursion", 0, "thin-lock nesting limit (0 = default)")
	fs.IntVar(&cfg.opts.SpinCount, "spin", 0, "spin retries before yielding (0 = default)")
	fs.IntVar(&cfg.opts.YieldCount, "yield", 0, "yield retries before sleeping (0 = default)")
	fs.DurationVar(&cfg.opts.ContentionPoll, "poll", 0, "contention sleep bound (0 = default)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if cfg.threads <= 0 || cfg.iters <= 0 || cfg.depth <= 0 || cfg.objects <= 0 {
		return nil, errors.New("-threads, -iters, -depth and -objects must be positive")
	}
	if cfg.waitEvery < 0 {
		return nil, errors.New("-wait-every must not be negative")
	}

	cfg.opts.DisableReservation = *noReserve
	//nolint:gosec // G115: clamped by Normalize.
	cfg.opts.MaxRecursion = uint32(*maxRec)
	return cfg, nil
}

// runStress runs the workload on a fresh runtime.
func runStress(cfg *stressConfig) (stressResult, error) {
	monitor.InitWithOptions(cfg.opts)

	objs := make([]stressObject, cfg.objects)
	for i := range objs {
		monitor.Create(&objs[i].Word)
	}

	var violations atomic.Int64
	var firstErr error
	var errOnce sync.Once
	fail := func(err error) {
		errOnce.Do(func() { firstErr = err })
	}

	start := time.Now()
	var wg sync.WaitGroup
	for g := 0; g < cfg.threads; g++ {
		g := g
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer monitor.Detach()
			if _, err := monitor.Attach(fmt.Sprintf("stress-%d", g)); err != nil {
				fail(err)
				return
			}
			for i := 0; i < cfg.iters; i++ {
				if err := stressStep(&objs[(g+i)%cfg.objects], cfg, i, &violations); err != nil {
					fail(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	res := stressResult{
		ops:        cfg.threads * cfg.iters,
		violations: violations.Load(),
		elapsed:    time.Since(start),
		stats:      monitor.GetStats(),
	}
	if firstErr != nil {
		return res, firstErr
	}
	if res.violations > 0 {
		return res, fmt.Errorf("%d mutual exclusion violations", res.violations)
	}
	total := 0
	for i := range objs {
		total += objs[i].count
	}
	if total != res.ops {
		return res, fmt.Errorf("lost updates: counted %d, want %d", total, res.ops)
	}
	return res, nil
}

// stressStep is one iteration against o.
func stressStep(o *stressObject, cfg *stressConfig, i int, violations *atomic.Int64) error {
	for d := 0; d < cfg.depth; d++ {
		if err := monitor.Enter(&o.Word); err != nil {
			return err
		}
	}

	if cfg.waitEvery > 0 && i%cfg.waitEvery == 0 {
		if err := monitor.NotifyAll(&o.Word); err != nil {
			return err
		}
		if _, err := monitor.WaitTimed(&o.Word, 50*time.Microsecond); err != nil {
			return err
		}
	}

	o.inside++
	if o.inside != 1 {
		violations.Add(1)
	}
	o.count++
	o.inside--

	for d := 0; d < cfg.depth; d++ {
		if err := monitor.Exit(&o.Word); err != nil {
			return err
		}
	}
	return nil
}
