package triespline_test

import (
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/plex/cht"
	"github.com/grailbio/plex/spline"
	"github.com/grailbio/plex/triespline"
)

func buildPoints(t *testing.T, keys []uint64, maxError uint64) []spline.Coord[uint64] {
	t.Helper()
	b, err := spline.NewBuilder(keys[0], keys[len(keys)-1], maxError)
	require.NoError(t, err)
	for _, k := range keys {
		require.NoError(t, b.Add(k))
	}
	points, err := b.Finalize()
	require.NoError(t, err)
	return points
}

func TestTrieSplineEstimatedPositionWithinError(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	keys := make([]uint64, 3000)
	cur := uint64(0)
	for i := range keys {
		cur += uint64(rng.Intn(7))
		keys[i] = cur
	}
	const maxError = 16
	points := buildPoints(t, keys, maxError)

	dir := t.TempDir()
	ts, err := triespline.Build(filepath.Join(dir, "breakpoints"), points, keys[0], keys[len(keys)-1], len(keys), maxError,
		cht.Builder[uint64]{NumBins: 16, MaxError: maxError})
	require.NoError(t, err)
	defer ts.Close()

	for rank, k := range keys {
		got := ts.EstimatedPosition(k)
		assert.LessOrEqualf(t, math.Abs(got-float64(rank)), float64(maxError), "key=%d rank=%d", k, rank)
	}
}

func TestTrieSplineSearchBoundSoundness(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	keys := make([]uint64, 2000)
	cur := uint64(0)
	for i := range keys {
		cur += uint64(rng.Intn(9))
		keys[i] = cur
	}
	const maxError = 8
	points := buildPoints(t, keys, maxError)

	dir := t.TempDir()
	ts, err := triespline.Build(filepath.Join(dir, "breakpoints"), points, keys[0], keys[len(keys)-1], len(keys), maxError,
		cht.Builder[uint64]{NumBins: 16, MaxError: maxError})
	require.NoError(t, err)
	defer ts.Close()

	for rank, k := range keys {
		bound := ts.SearchBound(k)
		assert.LessOrEqualf(t, bound.Begin, rank, "key=%d rank=%d bound=%+v", k, rank, bound)
		assert.Greaterf(t, bound.End, rank, "key=%d rank=%d bound=%+v", k, rank, bound)
	}
}

func TestTrieSplineBoundaryKeys(t *testing.T) {
	keys := []uint64{10, 20, 30, 40, 50}
	points := buildPoints(t, keys, 2)
	dir := t.TempDir()
	ts, err := triespline.Build(filepath.Join(dir, "breakpoints"), points, keys[0], keys[len(keys)-1], len(keys), 2,
		cht.Builder[uint64]{NumBins: 4, MaxError: 2})
	require.NoError(t, err)
	defer ts.Close()

	assert.Equal(t, float64(0), ts.EstimatedPosition(5))
	assert.Equal(t, float64(4), ts.EstimatedPosition(999))

	belowBound := ts.SearchBound(5)
	assert.Equal(t, 0, belowBound.Begin)
	aboveBound := ts.SearchBound(999)
	assert.Equal(t, len(keys), aboveBound.End)
}

func TestTrieSplineOpenRoundTrips(t *testing.T) {
	keys := make([]uint64, 1000)
	for i := range keys {
		keys[i] = uint64(i) * 3
	}
	const maxError = 8
	points := buildPoints(t, keys, maxError)

	dir := t.TempDir()
	path := filepath.Join(dir, "breakpoints")
	built, err := triespline.Build(path, points, keys[0], keys[len(keys)-1], len(keys), maxError,
		cht.Builder[uint64]{NumBins: 8, MaxError: maxError})
	require.NoError(t, err)
	fields := built.Fields()
	n := built.NumBreakpoints()
	require.NoError(t, built.Close())

	reopened, err := triespline.Open[uint64](path, n, fields, keys[0], keys[len(keys)-1], len(keys), maxError)
	require.NoError(t, err)
	defer reopened.Close()

	for rank, k := range keys {
		got := reopened.EstimatedPosition(k)
		assert.LessOrEqual(t, math.Abs(got-float64(rank)), float64(maxError))
	}
}

func TestTrieSplineWideWindowUsesBinarySearch(t *testing.T) {
	// Quadratic keys with a tight spline error give dozens of breakpoints;
	// a large CHT error keeps them in a few wide leaves, so the CHT's
	// breakpoint-index windows exceed the linear-scan threshold and
	// exercise the binary-search branch of locateSegment.
	keys := make([]uint64, 5000)
	for i := range keys {
		keys[i] = uint64(i) * uint64(i)
	}
	const maxError = 1
	const chtMaxError = 200
	points := buildPoints(t, keys, maxError)
	dir := t.TempDir()
	ts, err := triespline.Build(filepath.Join(dir, "breakpoints"), points, keys[0], keys[len(keys)-1], len(keys), maxError,
		cht.Builder[uint64]{NumBins: 4, MaxError: chtMaxError})
	require.NoError(t, err)
	defer ts.Close()

	for rank, k := range keys {
		got := ts.EstimatedPosition(k)
		assert.LessOrEqual(t, math.Abs(got-float64(rank)), float64(maxError))
	}
}
