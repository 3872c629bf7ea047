package main

/*
plex-build reads a raw sorted-key file and builds a persisted learned
secondary index directory from it, pairing each key with its rank as the
payload.
*/

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/vcontext"
	"github.com/pkg/errors"

	"github.com/grailbio/plex"
	"github.com/grailbio/plex/internal/keyload"
	"github.com/grailbio/plex/multimap"
)

var (
	keysFile     = flag.String("keys-file", "", "Path to the raw sorted key file")
	keysFileType = flag.String("keys-file-type", "binary", "Key file format: binary, text, sosd, or any of those with a -gzip suffix")
	totalNumKeys = flag.Int("total-num-keys", 0, "Number of keys in keys-file")
	dbPath       = flag.String("db-path", "", "Output index directory")
	numBins      = flag.Uint64("num-bins", 64, "CHT branching factor (must be a power of two)")
	chtMaxError  = flag.Uint64("cht-max-error", 32, "Maximum breakpoint-index window width the CHT may return")
	splineMaxError = flag.Uint64("max-error", 32, "Maximum CDF error the spline may introduce")
	key64        = flag.Bool("key64", true, "Build with 64-bit keys (false selects 32-bit keys)")
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
	if *keysFile == "" || *dbPath == "" || *totalNumKeys <= 0 {
		return errors.New("plex-build: --keys-file, --db-path, and --total-num-keys are required")
	}
	ft, gzipped, err := keyload.ParseFileType(*keysFileType)
	if err != nil {
		return errors.Wrap(err, "plex-build")
	}
	cfg := multimap.Config{NumBins: *numBins, ChtMaxError: *chtMaxError, SplineMaxError: *splineMaxError}
	ctx := vcontext.Background()

	if *key64 {
		return buildIndex[uint64](ctx, ft, gzipped, cfg)
	}
	return buildIndex[uint32](ctx, ft, gzipped, cfg)
}

func buildIndex[K plex.Key](ctx context.Context, ft keyload.FileType, gzipped bool, cfg multimap.Config) error {
	keys, err := keyload.Load[K](*keysFile, *totalNumKeys, ft, gzipped)
	if err != nil {
		return errors.Wrap(err, "plex-build: loading keys")
	}
	elements := make([]multimap.Element[K], len(keys))
	for i, k := range keys {
		elements[i] = multimap.Element[K]{Key: k, Payload: uint64(i)}
	}
	mm, err := multimap.Build(ctx, elements, cfg, *dbPath)
	if err != nil {
		return errors.Wrap(err, "plex-build: building index")
	}
	defer mm.Close() // nolint: errcheck
	fmt.Printf("plex-build: wrote %d elements to %s (%d bytes)\n", len(elements), *dbPath, mm.SizeBytes())
	return nil
}
