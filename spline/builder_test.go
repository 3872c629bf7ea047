package spline_test

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/plex/spline"
)

func buildAndRank(t *testing.T, keys []uint64, maxError uint64) ([]spline.Coord[uint64], map[int]uint64) {
	t.Helper()
	b, err := spline.NewBuilder(keys[0], keys[len(keys)-1], maxError)
	require.NoError(t, err)
	for _, k := range keys {
		require.NoError(t, b.Add(k))
	}
	points, err := b.Finalize()
	require.NoError(t, err)
	ranks := make(map[int]uint64, len(keys))
	for i := range keys {
		ranks[i] = uint64(i)
	}
	return points, ranks
}

// estimate mirrors triespline.EstimatedPosition without depending on that
// package, so this test exercises the spline in isolation.
func estimate(points []spline.Coord[uint64], key uint64) float64 {
	if key <= points[0].X {
		return 0
	}
	n := len(points)
	if key >= points[n-1].X {
		return float64(points[n-1].Y)
	}
	idx := sort.Search(n, func(i int) bool { return points[i].X >= key })
	down, up := points[idx-1], points[idx]
	slope := (float64(up.Y) - float64(down.Y)) / (float64(up.X) - float64(down.X))
	return float64(down.Y) + float64(key-down.X)*slope
}

func TestSplineErrorBound(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, maxError := range []uint64{1, 32, 256} {
		keys := randomSortedKeys(rng, 2000)
		points, _ := buildAndRank(t, keys, maxError)
		for rank, k := range keys {
			got := estimate(points, k)
			diff := math.Abs(got - float64(rank))
			assert.LessOrEqualf(t, diff, float64(maxError), "key=%d rank=%d maxError=%d", k, rank, maxError)
		}
	}
}

func TestSplineBreakpointsStrictlyIncreasing(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	keys := randomSortedKeys(rng, 5000)
	points, _ := buildAndRank(t, keys, 16)
	for i := 1; i < len(points); i++ {
		assert.Less(t, points[i-1].X, points[i].X)
	}
}

func TestSplineDenseUniform(t *testing.T) {
	keys := []uint64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	points, _ := buildAndRank(t, keys, 1)
	require.Len(t, points, 2)
	assert.Equal(t, spline.Coord[uint64]{X: 0, Y: 0}, points[0])
	assert.Equal(t, spline.Coord[uint64]{X: 9, Y: 9}, points[1])
}

func TestSplineStepFunction(t *testing.T) {
	keys := []uint64{0, 0, 0, 10, 10, 20}
	points, _ := buildAndRank(t, keys, 2)
	assert.Equal(t, spline.Coord[uint64]{X: 0, Y: 0}, points[0])
	assert.Equal(t, spline.Coord[uint64]{X: 20, Y: 5}, points[len(points)-1])
}

func TestSplineGap(t *testing.T) {
	keys := []uint64{1, 2, 3, 1000, 1001}
	points, _ := buildAndRank(t, keys, 1)
	assert.Equal(t, uint64(1), points[0].X)
	assert.Equal(t, uint64(1001), points[len(points)-1].X)
	for rank, k := range keys {
		diff := math.Abs(estimate(points, k) - float64(rank))
		assert.LessOrEqual(t, diff, float64(1))
	}
}

func TestSplineDuplicateLastKey(t *testing.T) {
	keys := []uint64{5, 5, 5}
	b, err := spline.NewBuilder(keys[0], keys[len(keys)-1], 1)
	require.NoError(t, err)
	for _, k := range keys {
		require.NoError(t, b.Add(k))
	}
	points, err := b.Finalize()
	require.NoError(t, err)
	assert.Equal(t, []spline.Coord[uint64]{{X: 5, Y: 0}, {X: 5, Y: 2}}, points)
}

func TestSplineRejectsUnsortedKeys(t *testing.T) {
	b, err := spline.NewBuilder[uint64](0, 10, 4)
	require.NoError(t, err)
	require.NoError(t, b.Add(0))
	require.NoError(t, b.Add(5))
	require.Error(t, b.Add(3))
}

func TestSplineRejectsZeroMaxError(t *testing.T) {
	_, err := spline.NewBuilder[uint64](0, 10, 0)
	require.Error(t, err)
}

func TestSplineRejectsEmptyInput(t *testing.T) {
	b, err := spline.NewBuilder[uint64](0, 10, 4)
	require.NoError(t, err)
	_, err = b.Finalize()
	require.Error(t, err)
}

func TestSplineRejectsFirstKeyMismatch(t *testing.T) {
	b, err := spline.NewBuilder[uint64](1, 10, 4)
	require.NoError(t, err)
	require.Error(t, b.Add(0))
}

func randomSortedKeys(rng *rand.Rand, n int) []uint64 {
	keys := make([]uint64, n)
	cur := uint64(0)
	for i := range keys {
		cur += uint64(rng.Intn(5))
		keys[i] = cur
	}
	return keys
}
