// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package multimap implements the full learned secondary index: a payload
// array of (K, uint64) pairs in ascending-K order, backed by a TrieSpline
// over the keys, supporting exact LowerBound and SumForKey queries.
//
// This is grounded on illinoisdata/PLEX's util::NonOwningMultiMapTS
// (original_source/kv_build.cc): the same build-once/save/load lifecycle
// (index.sum_up, index.lower_bound, index.save_to_file), renamed to Go
// idiom (SumForKey, LowerBound, implicit save inside Build).
package multimap

import (
	"context"
	"path/filepath"
	"sort"
	"unsafe"

	"github.com/grailbio/base/errors"
	"v.io/x/lib/vlog"

	"github.com/grailbio/plex"
	"github.com/grailbio/plex/cht"
	"github.com/grailbio/plex/errkind"
	"github.com/grailbio/plex/mmarray"
	"github.com/grailbio/plex/multimap/metacodec"
	"github.com/grailbio/plex/spline"
	"github.com/grailbio/plex/triespline"
)

const (
	dataFileName   = "data"
	splineFileName = "spline_points"
	metaFileName   = "meta"
)

// Config bundles the tuning parameters that shape a built index: the CHT's
// branching factor, the CHT's per-leaf error bound, and the spline's CDF
// error bound. Dataset-specific tuning tables that pick these per named
// dataset are an external, out-of-core concern (spec design note); Config
// just validates whatever triple it is given.
type Config struct {
	NumBins        uint64
	ChtMaxError    uint64
	SplineMaxError uint64
}

// Validate reports a ContractError if the configuration cannot build a
// valid index.
func (c Config) Validate() error {
	if c.NumBins == 0 || c.NumBins&(c.NumBins-1) != 0 {
		return errkind.E(errkind.Contract, "", "", errors.E(errors.Errorf("multimap: NumBins %d is not a power of two", c.NumBins)))
	}
	if c.ChtMaxError == 0 {
		return errkind.E(errkind.Contract, "", "", errors.E(errors.Errorf("multimap: ChtMaxError must be >= 1")))
	}
	if c.SplineMaxError == 0 {
		return errkind.E(errkind.Contract, "", "", errors.E(errors.Errorf("multimap: SplineMaxError must be >= 1")))
	}
	return nil
}

// MultiMap is the full index: a memory-mapped payload array plus a
// TrieSpline view over its keys. The zero value is not usable; construct
// one with Build or Open.
type MultiMap[K plex.Key] struct {
	payload *mmarray.Array[Element[K]]
	trie    *triespline.TrieSpline[K]
}

// Build consumes elements (already sorted ascending by Key) and writes a
// complete index directory at rootPath: the payload array (data), the
// breakpoint array (spline_points), the metadata file (meta), and an
// integrity checksum sidecar. Build errors (I/O, contract violations) are
// fatal; there is no partial-success return.
func Build[K plex.Key](ctx context.Context, elements []Element[K], cfg Config, rootPath string) (*MultiMap[K], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(elements) == 0 {
		return nil, errkind.E(errkind.Contract, "", "", errors.E(errors.Errorf("multimap: cannot build over zero elements")))
	}
	for i := 1; i < len(elements); i++ {
		if elements[i].Key < elements[i-1].Key {
			return nil, errkind.E(errkind.Contract, "", "",
				errors.E(errors.Errorf("multimap: elements not sorted: index %d key %v follows %v", i, elements[i].Key, elements[i-1].Key)))
		}
	}
	minKey, maxKey := elements[0].Key, elements[len(elements)-1].Key

	dataPath := filepath.Join(rootPath, dataFileName)
	splinePath := filepath.Join(rootPath, splineFileName)
	metaPath := filepath.Join(rootPath, metaFileName)

	vlog.Infof("multimap: building index at %s: %d elements, keys [%v, %v]", rootPath, len(elements), minKey, maxKey)

	payload, err := mmarray.Create(dataPath, elements)
	if err != nil {
		return nil, err
	}

	sb, err := spline.NewBuilder(minKey, maxKey, cfg.SplineMaxError)
	if err != nil {
		payload.Close() // nolint: errcheck
		return nil, err
	}
	for _, e := range elements {
		if err := sb.Add(e.Key); err != nil {
			payload.Close() // nolint: errcheck
			return nil, err
		}
	}
	points, err := sb.Finalize()
	if err != nil {
		payload.Close() // nolint: errcheck
		return nil, err
	}

	trie, err := triespline.Build(splinePath, points, minKey, maxKey, len(elements), cfg.SplineMaxError,
		cht.Builder[K]{NumBins: cfg.NumBins, MaxError: cfg.ChtMaxError})
	if err != nil {
		payload.Close() // nolint: errcheck
		return nil, err
	}

	meta := metacodec.Meta[K]{
		NumPayloads:    uint64(len(elements)),
		MinKey:         minKey,
		MaxKey:         maxKey,
		NumKeys:        uint64(len(elements)),
		SplineMaxError: cfg.SplineMaxError,
		Cht:            trie.Fields(),
		NumBreakpoints: uint64(trie.NumBreakpoints()),
	}
	if err := metacodec.Write(ctx, metaPath, meta); err != nil {
		payload.Close() // nolint: errcheck
		trie.Close()    // nolint: errcheck
		return nil, err
	}

	if err := writeChecksum(ctx, rootPath, dataPath, splinePath, metaPath); err != nil {
		payload.Close() // nolint: errcheck
		trie.Close()    // nolint: errcheck
		return nil, err
	}

	return &MultiMap[K]{payload: payload, trie: trie}, nil
}

// Open memory-maps a previously-built index directory, verifying its
// integrity checksum.
func Open[K plex.Key](ctx context.Context, rootPath string) (*MultiMap[K], error) {
	return open[K](ctx, rootPath, true)
}

// OpenUnchecked opens like Open but skips checksum verification, for
// query-path callers that must never fail on well-formed input (spec §7:
// query operations do not return errors).
func OpenUnchecked[K plex.Key](ctx context.Context, rootPath string) (*MultiMap[K], error) {
	return open[K](ctx, rootPath, false)
}

func open[K plex.Key](ctx context.Context, rootPath string, verify bool) (*MultiMap[K], error) {
	dataPath := filepath.Join(rootPath, dataFileName)
	splinePath := filepath.Join(rootPath, splineFileName)
	metaPath := filepath.Join(rootPath, metaFileName)

	meta, err := metacodec.Read[K](ctx, metaPath)
	if err != nil {
		return nil, err
	}
	if verify {
		if err := verifyChecksum(ctx, rootPath, dataPath, splinePath, metaPath); err != nil {
			return nil, err
		}
	}

	payload, err := mmarray.Open[Element[K]](dataPath, int(meta.NumPayloads))
	if err != nil {
		return nil, err
	}
	trie, err := triespline.Open[K](splinePath, int(meta.NumBreakpoints), meta.Cht, meta.MinKey, meta.MaxKey,
		int(meta.NumKeys), meta.SplineMaxError)
	if err != nil {
		payload.Close() // nolint: errcheck
		return nil, err
	}
	return &MultiMap[K]{payload: payload, trie: trie}, nil
}

// LowerBound returns the index of the first payload element whose Key is
// >= k, searching only within the TrieSpline's bounded-error window. If no
// such element exists (k is greater than every key present), LowerBound
// returns the length of the payload array.
func (m *MultiMap[K]) LowerBound(k K) int {
	bound := m.trie.SearchBound(k)
	slice := m.payload.Slice()
	offset := sort.Search(bound.End-bound.Begin, func(i int) bool {
		return slice[bound.Begin+i].Key >= k
	})
	return bound.Begin + offset
}

// SumForKey returns the sum of payload values for every element whose Key
// equals k, or 0 if k is absent.
func (m *MultiMap[K]) SumForKey(k K) uint64 {
	i := m.LowerBound(k)
	slice := m.payload.Slice()
	var sum uint64
	for i < len(slice) && slice[i].Key == k {
		sum += slice[i].Payload
		i++
	}
	return sum
}

// Len returns the number of elements in the index.
func (m *MultiMap[K]) Len() int { return m.payload.Len() }

// SizeBytes returns the total memory footprint of the index: the payload
// array plus the TrieSpline.
func (m *MultiMap[K]) SizeBytes() int64 {
	var zero Element[K]
	return int64(m.payload.Len())*int64(unsafe.Sizeof(zero)) + m.trie.SizeBytes()
}

// Close unmaps and closes the payload array and the TrieSpline. Close is
// idempotent.
func (m *MultiMap[K]) Close() error {
	err1 := m.payload.Close()
	err2 := m.trie.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
