// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package cht implements the compact histogram trie (CHT): a radix tree
// over breakpoint key prefixes whose leaves hold breakpoint indices,
// narrowing spline-segment search to a small window.
//
// This is a direct translation of illinoisdata/PLEX's
// ts_cht::CompactHistTree (include/ts/ts_cht/cht.h): the same leaf/inner
// cell tagging scheme (high bit set => leaf, low 31 bits => breakpoint
// index; otherwise an inner cell whose value is a cell offset), the same
// single-layer prefix-sum fast path, and the same bounded-depth lookup.
package cht

import (
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"

	"github.com/grailbio/plex"
	"github.com/grailbio/plex/errkind"
)

const (
	leafBit = uint32(1) << 31
	leafIdx = leafBit - 1
)

// Cht is a built compact histogram trie over a breakpoint sequence's
// x-coordinates. The zero value is not meaningful; construct one with
// Builder.Build or FromFields (the latter used when deserializing).
type Cht[K plex.Key] struct {
	singleLayer bool
	minKey      K
	maxKey      K
	numKeys     uint64
	numBins     uint64
	logNumBins  uint64
	maxError    uint64
	shift       uint64
	table       []uint32
}

// Fields is the plain-data view of a Cht, used by the metadata codec to
// serialize and deserialize without exposing the unexported struct layout.
type Fields struct {
	SingleLayer bool
	NumKeys     uint64
	NumBins     uint64
	LogNumBins  uint64
	MaxError    uint64
	Shift       uint64
	Table       []uint32
}

// FromFields reconstructs a Cht from previously-serialized Fields,
// validating the invariant that the source format writes NumBins and
// LogNumBins as two separate fields without enforcing their relationship:
// FromFields rejects any Fields where NumBins != 1<<LogNumBins.
func FromFields[K plex.Key](f Fields, minKey, maxKey K) (Cht[K], error) {
	if f.NumBins != uint64(1)<<f.LogNumBins {
		return Cht[K]{}, errkind.E(errkind.Format, "", "",
			errors.E(errors.Errorf("cht: NumBins %d != 1<<LogNumBins (%d)", f.NumBins, uint64(1)<<f.LogNumBins)))
	}
	return Cht[K]{
		singleLayer: f.SingleLayer,
		minKey:      minKey,
		maxKey:      maxKey,
		numKeys:     f.NumKeys,
		numBins:     f.NumBins,
		logNumBins:  f.LogNumBins,
		maxError:    f.MaxError,
		shift:       f.Shift,
		table:       f.Table,
	}, nil
}

// Fields returns the plain-data view of c, for serialization.
func (c Cht[K]) Fields() Fields {
	return Fields{
		SingleLayer: c.singleLayer,
		NumKeys:     c.numKeys,
		NumBins:     c.numBins,
		LogNumBins:  c.logNumBins,
		MaxError:    c.maxError,
		Shift:       c.shift,
		Table:       c.table,
	}
}

// SearchBound returns a [begin, end) range of breakpoint indices that
// narrows the search for key's spline segment endpoint: the first
// breakpoint index whose x-coordinate is >= key lies in [begin, end], and
// is end itself when no breakpoint in the range reaches key.
func (c Cht[K]) SearchBound(key K) plex.SearchBound {
	if c.singleLayer {
		prefix := (uint64(key) - uint64(c.minKey)) >> c.shift
		return plex.SearchBound{Begin: int(c.table[prefix]), End: int(c.table[prefix+1])}
	}
	begin := c.lookup(key)
	end := begin + int(c.maxError) + 1
	if end > int(c.numKeys) {
		end = int(c.numKeys)
	}
	return plex.SearchBound{Begin: begin, End: end}
}

// lookup descends the multi-layer trie, returning the breakpoint index
// held by the leaf reached for key.
func (c Cht[K]) lookup(key K) int {
	diff := uint64(key) - uint64(c.minKey)
	width := c.shift
	offset := uint64(0)
	for {
		bin := shiftRight(diff, width) & (c.numBins - 1)
		next := c.table[offset+bin]
		if next&leafBit != 0 {
			return int(next & leafIdx)
		}
		if width < c.logNumBins {
			// Builder never emits an inner cell beyond the width it has
			// bits left to consume; reaching here means the table was
			// built or deserialized inconsistently.
			log.Panicf("cht: width %d underflows logNumBins %d", width, c.logNumBins)
		}
		offset = uint64(next)
		width -= c.logNumBins
	}
}

// SizeBytes returns the size in bytes of the trie table.
func (c Cht[K]) SizeBytes() int64 {
	return int64(len(c.table)) * 4
}

func shiftRight(v, width uint64) uint64 {
	if width >= 64 {
		return 0
	}
	return v >> width
}
