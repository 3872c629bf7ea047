// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

/*
plex-query replays a query/expected-answer file against a built index,
verifying LowerBound's result against the expected rank and reporting
exponential-milestone query throughput.
*/

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/base/vcontext"
	"github.com/pkg/errors"
	"v.io/x/lib/vlog"

	"github.com/grailbio/plex/internal/bench"
	"github.com/grailbio/plex/multimap"
)

var (
	targetDBPath = flag.String("target-db-path", "", "Path to a built index directory")
	keyPath      = flag.String("key-path", "", "Path to a query/expected-answer file: one \"key expected_rank\" pair per line")
	outPath      = flag.String("out-path", "", "Path to write the timing report")
	numSamples   = flag.Int("num-samples", 0, "Number of queries to issue; 0 means all lines in key-path")
	key64        = flag.Bool("key64", true, "Query an index built with 64-bit keys (false selects 32-bit keys)")
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	shutdown := grail.Init()
	defer shutdown()

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	if *targetDBPath == "" || *keyPath == "" || *outPath == "" {
		return errors.New("plex-query: --target-db-path, --key-path, and --out-path are required")
	}
	queries, expected, err := readQueries(*keyPath)
	if err != nil {
		return errors.Wrap(err, "plex-query: reading queries")
	}
	n := *numSamples
	if n == 0 || n > len(queries) {
		n = len(queries)
	}
	ctx := vcontext.Background()

	if *key64 {
		return runQueries[uint64](ctx, queries, expected, n)
	}
	return runQueries[uint32](ctx, queries, expected, n)
}

func runQueries[K uint32 | uint64](ctx context.Context, queries []uint64, expected []uint64, n int) error {
	mm, err := multimap.OpenUnchecked[K](ctx, *targetDBPath)
	if err != nil {
		return errors.Wrap(err, "plex-query: opening index")
	}
	defer mm.Close() // nolint: errcheck

	// A MultiMap's query path holds no mutable state once open, so
	// LowerBound is safe to fan out across goroutines. Verify that
	// concurrently before the timed sequential pass below.
	vlog.Infof("plex-query: verifying %d queries across %d workers", n, runtime.GOMAXPROCS(0))
	var concurrentWrong int64
	if err := traverse.Each(runtime.GOMAXPROCS(0), func(worker int) error {
		start := (worker * n) / runtime.GOMAXPROCS(0)
		end := ((worker + 1) * n) / runtime.GOMAXPROCS(0)
		for i := start; i < end; i++ {
			if uint64(mm.LowerBound(K(queries[i]))) != expected[i] {
				atomic.AddInt64(&concurrentWrong, 1)
			}
		}
		return nil
	}); err != nil {
		return errors.Wrap(err, "plex-query: concurrent verification")
	}

	var r bench.Reporter
	r.Start(time.Now())
	var countWrong int
	for i := 0; i < n; i++ {
		got := uint64(mm.LowerBound(K(queries[i])))
		if got != expected[i] {
			countWrong++
		}
		r.Step(i, n, time.Now())
	}
	if countWrong > 0 || concurrentWrong > 0 {
		fmt.Fprintf(os.Stderr, "plex-query: %d of %d queries returned an incorrect rank (%d under concurrent verification)\n", countWrong, n, concurrentWrong)
	}

	out, err := os.Create(*outPath)
	if err != nil {
		return errors.Wrap(err, "plex-query: creating out-path")
	}
	defer out.Close() // nolint: errcheck
	return bench.WriteReport(out, r.Milestones())
}

func readQueries(path string) (queries []uint64, expected []uint64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close() // nolint: errcheck
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		key, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return nil, nil, err
		}
		rank, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return nil, nil, err
		}
		queries = append(queries, key)
		expected = append(expected, rank)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	return queries, expected, nil
}
