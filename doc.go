// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package plex implements a learned secondary index over a sorted,
// read-only set of integer keys.
//
// A compact histogram trie (package cht) prunes the key space to a narrow
// segment of a piecewise-linear spline (package spline); the spline
// interpolates a position estimate with a guaranteed error bound, which a
// short local search (package triespline) refines into an exact
// lower-bound. Package multimap wraps a TrieSpline around a memory-mapped
// (key, payload) array (package mmarray) to answer LowerBound and
// SumForKey queries directly against disk-resident data.
//
// The index is immutable once built: Build consumes a sorted sequence of
// (key, payload) pairs once, left to right, and persists breakpoints, the
// CHT table, and the payload array to a directory that Open later
// memory-maps without deserializing the bulk arrays.
package plex

// Key is the set of integer widths plex indexes support. The index is
// parameterized by K at build time; string keys and multi-dimensional keys
// are out of scope.
type Key interface {
	~uint32 | ~uint64
}

// SearchBound is a half-open range [Begin, End) over an array, guaranteed
// to bracket the true answer to a query.
type SearchBound struct {
	Begin int
	End   int
}
