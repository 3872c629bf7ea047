package cht

import (
	"math/bits"

	"github.com/grailbio/base/errors"

	"github.com/grailbio/plex"
	"github.com/grailbio/plex/errkind"
	"github.com/grailbio/plex/spline"
)

// Builder configures and builds a Cht over a breakpoint sequence.
type Builder[K plex.Key] struct {
	// NumBins is the branching factor of each trie level; must be a power
	// of two.
	NumBins uint64
	// MaxError bounds the number of breakpoint indices a leaf may cover:
	// SearchBound's window width is at most MaxError+1.
	MaxError uint64
}

// Build constructs a Cht over points, whose x-coordinates must lie in
// [minKey, maxKey] (the same range the spline was built over).
func (b Builder[K]) Build(points []spline.Coord[K], minKey, maxKey K) (Cht[K], error) {
	if b.NumBins == 0 || b.NumBins&(b.NumBins-1) != 0 {
		return Cht[K]{}, errkind.E(errkind.Contract, "", "",
			errors.E(errors.Errorf("cht: NumBins %d is not a power of two", b.NumBins)))
	}
	if b.MaxError == 0 {
		return Cht[K]{}, errkind.E(errkind.Contract, "", "",
			errors.E(errors.Errorf("cht: MaxError must be >= 1, got 0")))
	}
	if len(points) == 0 {
		return Cht[K]{}, errkind.E(errkind.Contract, "", "",
			errors.E(errors.Errorf("cht: cannot build over zero breakpoints")))
	}

	logNumBins := uint64(bits.TrailingZeros64(b.NumBins))
	keyRange := uint64(maxKey) - uint64(minKey) + 1
	shift := ceilLog2(keyRange)
	if shift > logNumBins {
		shift -= logNumBins
	} else {
		shift = 0
	}

	boundaries := bucketBoundaries(points, minKey, 0, len(points), shift, b.NumBins)

	if allBucketsWithinError(boundaries, b.MaxError) {
		table := make([]uint32, len(boundaries))
		for i, v := range boundaries {
			table[i] = uint32(v)
		}
		return Cht[K]{
			singleLayer: true,
			minKey:      minKey,
			maxKey:      maxKey,
			numKeys:     uint64(len(points)),
			numBins:     b.NumBins,
			logNumBins:  logNumBins,
			maxError:    b.MaxError,
			shift:       shift,
			table:       table,
		}, nil
	}

	table := make([]uint32, b.NumBins)
	type pending struct {
		offset  int
		lo, hi  int
		width   uint64
		bounds  []int
		skipBFS bool // root level: boundaries already computed above
	}
	queue := []pending{{offset: 0, lo: 0, hi: len(points), width: shift, bounds: boundaries, skipBFS: true}}

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		bounds := node.bounds
		if !node.skipBFS {
			bounds = bucketBoundaries(points, minKey, node.lo, node.hi, node.width, b.NumBins)
		}

		for p := uint64(0); p < b.NumBins; p++ {
			subLo, subHi := bounds[p], bounds[p+1]
			count := subHi - subLo
			cellIdx := node.offset + int(p)

			canRecurse := node.width >= logNumBins
			if count <= int(b.MaxError) || !canRecurse {
				table[cellIdx] = leafBit | uint32(subLo)
				continue
			}
			childOffset := len(table)
			table = append(table, make([]uint32, b.NumBins)...)
			table[cellIdx] = uint32(childOffset)
			queue = append(queue, pending{offset: childOffset, lo: subLo, hi: subHi, width: node.width - logNumBins})
		}
	}

	return Cht[K]{
		minKey:     minKey,
		maxKey:     maxKey,
		numKeys:    uint64(len(points)),
		numBins:    b.NumBins,
		logNumBins: logNumBins,
		maxError:   b.MaxError,
		shift:      shift,
		table:      table,
	}, nil
}

// bucketBoundaries partitions points[lo:hi] (sorted by X) into numBins
// contiguous buckets by the numBins-ary digit of (X-minKey) at the given
// bit width, returning numBins+1 index boundaries. Because points are
// sorted, bucket membership is monotonic in index, so this is a single
// linear scan rather than a sort per level.
func bucketBoundaries[K plex.Key](points []spline.Coord[K], minKey K, lo, hi int, width, numBins uint64) []int {
	boundaries := make([]int, numBins+1)
	idx := lo
	for p := uint64(0); p < numBins; p++ {
		for idx < hi && bucketOf(points[idx].X, minKey, width, numBins) <= p {
			idx++
		}
		boundaries[p+1] = idx
	}
	boundaries[0] = lo
	return boundaries
}

func bucketOf[K plex.Key](x, minKey K, width, numBins uint64) uint64 {
	return shiftRight(uint64(x)-uint64(minKey), width) & (numBins - 1)
}

func allBucketsWithinError(boundaries []int, maxError uint64) bool {
	for i := 1; i < len(boundaries); i++ {
		if uint64(boundaries[i]-boundaries[i-1]) > maxError {
			return false
		}
	}
	return true
}

// ceilLog2 returns the smallest s such that 1<<s >= n.
func ceilLog2(n uint64) uint64 {
	if n <= 1 {
		return 0
	}
	return uint64(bits.Len64(n - 1))
}
