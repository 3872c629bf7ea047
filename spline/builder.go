// Package spline builds the minimal set of breakpoints such that linear
// interpolation through them never exceeds a configured error bound on the
// CDF (rank function) of a sorted key sequence.
//
// The algorithm is a streaming "shrinking cone" (GreedySpline) construction:
// Builder keeps the most recently emitted breakpoint P and, since P, an
// upper and lower bound on the slope of any line from P that still keeps
// every key seen so far within maxError of its true rank. Each new key
// either narrows that cone or, if it lies outside the cone, forces a new
// breakpoint at the previous key.
//
// Repeated keys are the exception to the bound: a breakpoint at a repeated
// key carries the rank of the key's first occurrence, so an occurrence more
// than maxError positions after the first can fall outside the bound.
package spline

import (
	"math"

	"github.com/grailbio/base/errors"

	"github.com/grailbio/plex"
	"github.com/grailbio/plex/errkind"
)

// Builder accumulates keys (in non-decreasing order) and produces the
// breakpoint sequence for the spline once Finalize is called. A Builder is
// a value-holding, single-use construction: it is consumed by Finalize and
// must not be reused afterward. There is no hidden global state; all cone
// bookkeeping lives in the Builder value itself.
type Builder[K plex.Key] struct {
	minKey, maxKey K
	maxError       uint64

	started bool
	rank    uint64 // rank that will be assigned to the next Add call
	lastKey K

	last      Coord[K] // P: most recently emitted breakpoint
	candidate Coord[K] // most recent (possibly non-emitted) key, for collapse
	upper     float64  // U
	lower     float64  // L

	points []Coord[K]
	done   bool
}

// NewBuilder returns a Builder for keys in [minKey, maxKey] with the given
// maximum CDF error. maxError must be at least 1.
func NewBuilder[K plex.Key](minKey, maxKey K, maxError uint64) (*Builder[K], error) {
	if maxError == 0 {
		return nil, errkind.E(errkind.Contract, "", "",
			errors.E(errors.Errorf("spline: maxError must be >= 1, got 0")))
	}
	if maxKey < minKey {
		return nil, errkind.E(errkind.Contract, "", "",
			errors.E(errors.Errorf("spline: maxKey %v is less than minKey %v", maxKey, minKey)))
	}
	return &Builder[K]{
		minKey:   minKey,
		maxKey:   maxKey,
		maxError: maxError,
		upper:    math.Inf(1),
		lower:    math.Inf(-1),
	}, nil
}

// Add records the next key in the sorted input sequence. Keys must be
// supplied in non-decreasing order; the very first key must equal the
// minKey passed to NewBuilder.
func (b *Builder[K]) Add(key K) error {
	if b.done {
		return errkind.E(errkind.Contract, "", "", errors.E(errors.Errorf("spline: Add called after Finalize")))
	}
	if !b.started {
		if key != b.minKey {
			return errkind.E(errkind.Contract, "", "",
				errors.E(errors.Errorf("spline: first key %v does not match minKey %v", key, b.minKey)))
		}
		b.started = true
		b.lastKey = key
		b.last = Coord[K]{X: key, Y: 0}
		b.candidate = b.last
		b.points = append(b.points, b.last)
		b.rank = 1
		return nil
	}
	if key < b.lastKey {
		return errkind.E(errkind.Contract, "", "",
			errors.E(errors.Errorf("spline: keys not sorted: %v follows %v", key, b.lastKey)))
	}

	rank := b.rank
	b.lastKey = key
	b.rank++

	if key == b.last.X {
		// Duplicate of the last emitted key: extends a vertical run. The
		// spline returns the rank of the first occurrence at this key, so
		// no new breakpoint and no cone update; later occurrences are off
		// by their distance from the first.
		b.candidate = Coord[K]{X: key, Y: uint32(rank)}
		return nil
	}

	upperCand := slope(b.last, key, float64(rank)+float64(b.maxError))
	lowerCand := slope(b.last, key, float64(rank)-float64(b.maxError))

	if key == b.candidate.X {
		// Later occurrence of the pending candidate's key: it narrows the
		// cone, but the candidate keeps the rank of the first occurrence.
		b.upper = math.Min(b.upper, upperCand)
		b.lower = math.Max(b.lower, lowerCand)
		return nil
	}

	if s := slope(b.last, key, float64(rank)); s > b.upper || s < b.lower {
		// The point lies outside the cone: emit the previous key's
		// coordinate, not the current one, so the just-closed segment's
		// error bound still holds; then reinitialize the cone from that new
		// breakpoint.
		b.last = b.candidate
		b.points = append(b.points, b.last)
		b.upper = slope(b.last, key, float64(rank)+float64(b.maxError))
		b.lower = slope(b.last, key, float64(rank)-float64(b.maxError))
	} else {
		b.upper = math.Min(b.upper, upperCand)
		b.lower = math.Max(b.lower, lowerCand)
	}
	b.candidate = Coord[K]{X: key, Y: uint32(rank)}
	return nil
}

// Finalize returns the breakpoint sequence, unconditionally appending
// (maxKey, n-1) if it is not already the last breakpoint emitted. Finalize
// consumes the Builder; it must not be called twice, and Add must not be
// called afterward.
func (b *Builder[K]) Finalize() ([]Coord[K], error) {
	if b.done {
		return nil, errkind.E(errkind.Contract, "", "", errors.E(errors.Errorf("spline: Finalize called twice")))
	}
	if !b.started {
		return nil, errkind.E(errkind.Contract, "", "", errors.E(errors.Errorf("spline: Finalize called on empty input")))
	}
	b.done = true
	lastRank := b.rank - 1
	if b.lastKey != b.maxKey {
		return nil, errkind.E(errkind.Contract, "", "",
			errors.E(errors.Errorf("spline: last key %v does not match maxKey %v", b.lastKey, b.maxKey)))
	}
	final := Coord[K]{X: b.maxKey, Y: uint32(lastRank)}
	if b.points[len(b.points)-1] != final {
		b.points = append(b.points, final)
	}
	return b.points, nil
}

// slope returns the slope of the line from `from` to (toX, toY).
func slope[K plex.Key](from Coord[K], toX K, toY float64) float64 {
	return (toY - float64(from.Y)) / (float64(toX) - float64(from.X))
}
