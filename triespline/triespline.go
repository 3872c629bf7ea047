// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package triespline combines a cht.Cht with a breakpoint array to answer
// EstimatedPosition / SearchBound queries: the trie narrows the search to a
// small window of candidate spline segments, and a bounded scan within that
// window locates the exact segment whose x-range brackets the query key.
//
// This mirrors illinoisdata/PLEX's ts::TrieSpline (include/ts/ts.h): the
// trie-then-segment-scan structure, and the same window-width-32 threshold
// for choosing linear scan over binary search within the narrowed window
// (GetSplineSegment).
package triespline

import (
	"sort"
	"unsafe"

	"github.com/grailbio/base/errors"

	"github.com/grailbio/plex"
	"github.com/grailbio/plex/cht"
	"github.com/grailbio/plex/errkind"
	"github.com/grailbio/plex/mmarray"
	"github.com/grailbio/plex/spline"
)

// linearScanThreshold is the search-bound window width below which a linear
// scan through candidate segments outperforms a binary search, matching
// GetSplineSegment's own cutoff.
const linearScanThreshold = 32

// TrieSpline is an immutable learned index: a compact histogram trie over a
// breakpoint sequence's x-coordinates, paired with the breakpoints
// themselves, memory-mapped for persistence.
type TrieSpline[K plex.Key] struct {
	trie           cht.Cht[K]
	breakpoints    *mmarray.Array[spline.Coord[K]]
	splineMaxError uint64
	numKeys        int
}

// Build constructs a TrieSpline from a spline's breakpoint sequence,
// persisting the breakpoints to breakpointsPath and building the trie in
// memory with the given Builder configuration. numKeys is the number of
// keys the spline was built over (MultiMap's payload length), used to clamp
// SearchBound's upper edge.
func Build[K plex.Key](breakpointsPath string, points []spline.Coord[K], minKey, maxKey K, numKeys int, splineMaxError uint64, b cht.Builder[K]) (*TrieSpline[K], error) {
	if len(points) == 0 {
		return nil, errkind.E(errkind.Contract, "", "", errors.E(errors.Errorf("triespline: cannot build over zero breakpoints")))
	}
	trie, err := b.Build(points, minKey, maxKey)
	if err != nil {
		return nil, err
	}
	arr, err := mmarray.Create(breakpointsPath, points)
	if err != nil {
		return nil, err
	}
	return &TrieSpline[K]{trie: trie, breakpoints: arr, splineMaxError: splineMaxError, numKeys: numKeys}, nil
}

// Open reopens a previously-built TrieSpline: the breakpoint array is
// memory-mapped from breakpointsPath (trusting numBreakpoints from the
// caller's sidecar metadata), and the trie is reconstructed from fields
// (also sidecar metadata).
func Open[K plex.Key](breakpointsPath string, numBreakpoints int, fields cht.Fields, minKey, maxKey K, numKeys int, splineMaxError uint64) (*TrieSpline[K], error) {
	trie, err := cht.FromFields[K](fields, minKey, maxKey)
	if err != nil {
		return nil, err
	}
	arr, err := mmarray.Open[spline.Coord[K]](breakpointsPath, numBreakpoints)
	if err != nil {
		return nil, err
	}
	return &TrieSpline[K]{trie: trie, breakpoints: arr, splineMaxError: splineMaxError, numKeys: numKeys}, nil
}

// EstimatedPosition returns the spline's linear-interpolation estimate of
// key's rank. The true rank of key (if present) lies within the index's
// configured maxError of this value.
func (t *TrieSpline[K]) EstimatedPosition(key K) float64 {
	first := t.breakpoints.Front()
	if key <= first.X {
		return 0
	}
	last := t.breakpoints.Back()
	if key >= last.X {
		return float64(last.Y)
	}

	bound := t.trie.SearchBound(key)
	idx := t.locateSegment(key, bound)
	down := t.breakpoints.Index(idx - 1)
	up := t.breakpoints.Index(idx)
	slope := (float64(up.Y) - float64(down.Y)) / (float64(up.X) - float64(down.X))
	return float64(down.Y) + float64(key-down.X)*slope
}

// SearchBound returns the payload-array window [begin, end) guaranteed to
// contain key's true lower-bound position: est = floor(EstimatedPosition(k)),
// begin = max(0, est-splineMaxError), end = min(numKeys, est+splineMaxError+2).
func (t *TrieSpline[K]) SearchBound(key K) plex.SearchBound {
	est := int(t.EstimatedPosition(key))
	begin := est - int(t.splineMaxError)
	if begin < 0 {
		begin = 0
	}
	end := est + int(t.splineMaxError) + 2
	if end > t.numKeys {
		end = t.numKeys
	}
	return plex.SearchBound{Begin: begin, End: end}
}

// locateSegment finds the smallest breakpoint index i within bound such
// that breakpoints[i].X >= key, using a linear scan for narrow windows (the
// common case once the trie has narrowed the search) and a binary search
// otherwise.
func (t *TrieSpline[K]) locateSegment(key K, bound plex.SearchBound) int {
	begin, end := bound.Begin, bound.End
	if end-begin < linearScanThreshold {
		for i := begin; i < end; i++ {
			if t.breakpoints.Index(i).X >= key {
				return i
			}
		}
		return end
	}
	return begin + sort.Search(end-begin, func(i int) bool {
		return t.breakpoints.Index(begin+i).X >= key
	})
}

// SizeBytes returns the total memory footprint of the TrieSpline: its
// struct overhead, the trie table, and the breakpoint array.
func (t *TrieSpline[K]) SizeBytes() int64 {
	var zero spline.Coord[K]
	return int64(unsafe.Sizeof(*t)) + t.trie.SizeBytes() + int64(t.breakpoints.Len())*int64(unsafe.Sizeof(zero))
}

// Fields returns the trie's plain-data view, for serialization alongside
// the memory-mapped breakpoint file.
func (t *TrieSpline[K]) Fields() cht.Fields { return t.trie.Fields() }

// NumBreakpoints returns the number of breakpoints in the underlying
// spline.
func (t *TrieSpline[K]) NumBreakpoints() int { return t.breakpoints.Len() }

// Close releases the memory-mapped breakpoint array.
func (t *TrieSpline[K]) Close() error { return t.breakpoints.Close() }
