package cht_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/plex/cht"
	"github.com/grailbio/plex/spline"
)

func buildPoints(keys []uint64, maxError uint64) []spline.Coord[uint64] {
	b, err := spline.NewBuilder(keys[0], keys[len(keys)-1], maxError)
	if err != nil {
		panic(err)
	}
	for _, k := range keys {
		if err := b.Add(k); err != nil {
			panic(err)
		}
	}
	points, err := b.Finalize()
	if err != nil {
		panic(err)
	}
	return points
}

// assertSoundBound checks invariant C2: for every breakpoint, the CHT's
// SearchBound for its key contains the breakpoint's own index.
func assertSoundBound(t *testing.T, c cht.Cht[uint64], points []spline.Coord[uint64]) {
	t.Helper()
	for i, p := range points {
		bound := c.SearchBound(p.X)
		assert.GreaterOrEqualf(t, i, bound.Begin, "point %d key=%d bound=%+v", i, p.X, bound)
		assert.Lessf(t, i, bound.End, "point %d key=%d bound=%+v", i, p.X, bound)
	}
}

func TestChtSoundBoundDense(t *testing.T) {
	keys := make([]uint64, 500)
	for i := range keys {
		keys[i] = uint64(i)
	}
	points := buildPoints(keys, 4)
	b := cht.Builder[uint64]{NumBins: 16, MaxError: 4}
	c, err := b.Build(points, keys[0], keys[len(keys)-1])
	require.NoError(t, err)
	assertSoundBound(t, c, points)
}

func TestChtSoundBoundRandomGaps(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	keys := make([]uint64, 2000)
	cur := uint64(0)
	for i := range keys {
		cur += uint64(rng.Intn(50))
		keys[i] = cur
	}
	points := buildPoints(keys, 8)
	b := cht.Builder[uint64]{NumBins: 8, MaxError: 8}
	c, err := b.Build(points, keys[0], keys[len(keys)-1])
	require.NoError(t, err)
	assertSoundBound(t, c, points)
}

func TestChtSingleLayerWhenBucketsSmall(t *testing.T) {
	keys := []uint64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	points := buildPoints(keys, 1)
	b := cht.Builder[uint64]{NumBins: 16, MaxError: 8}
	c, err := b.Build(points, keys[0], keys[len(keys)-1])
	require.NoError(t, err)
	assertSoundBound(t, c, points)
	assert.LessOrEqual(t, c.SizeBytes(), int64(17*4))
}

func TestChtMultiLayerWhenRangeWide(t *testing.T) {
	keys := make([]uint64, 4000)
	for i := range keys {
		keys[i] = uint64(i) * uint64(i) * 1000003
	}
	points := buildPoints(keys, 2)
	b := cht.Builder[uint64]{NumBins: 4, MaxError: 2}
	c, err := b.Build(points, keys[0], keys[len(keys)-1])
	require.NoError(t, err)
	assertSoundBound(t, c, points)
	// A single-layer table is exactly NumBins+1 cells.
	assert.Greater(t, c.SizeBytes(), int64(5*4))
}

func TestChtRejectsNonPowerOfTwoBins(t *testing.T) {
	points := buildPoints([]uint64{0, 1, 2}, 1)
	b := cht.Builder[uint64]{NumBins: 3, MaxError: 1}
	_, err := b.Build(points, 0, 2)
	require.Error(t, err)
}

func TestChtRejectsZeroMaxError(t *testing.T) {
	points := buildPoints([]uint64{0, 1, 2}, 1)
	b := cht.Builder[uint64]{NumBins: 4, MaxError: 0}
	_, err := b.Build(points, 0, 2)
	require.Error(t, err)
}

func TestChtFieldsRoundTrip(t *testing.T) {
	keys := make([]uint64, 300)
	for i := range keys {
		keys[i] = uint64(i) * 7
	}
	points := buildPoints(keys, 3)
	b := cht.Builder[uint64]{NumBins: 8, MaxError: 3}
	orig, err := b.Build(points, keys[0], keys[len(keys)-1])
	require.NoError(t, err)

	fields := orig.Fields()
	restored, err := cht.FromFields[uint64](fields, keys[0], keys[len(keys)-1])
	require.NoError(t, err)
	assertSoundBound(t, restored, points)
	assert.Equal(t, orig.SizeBytes(), restored.SizeBytes())
}

func TestChtFromFieldsRejectsInconsistentNumBins(t *testing.T) {
	_, err := cht.FromFields[uint64](cht.Fields{
		NumBins:    8,
		LogNumBins: 2, // 1<<2 == 4 != 8
		Table:      make([]uint32, 5),
	}, 0, 100)
	require.Error(t, err)
}
