package mmarray_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/plex/errkind"
	"github.com/grailbio/plex/mmarray"
)

func TestCreateThenOpenRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "ints")
	source := []int64{1, 2, 3, 4, 5}

	w, err := mmarray.Create(path, source)
	require.NoError(t, err)
	assert.Equal(t, 5, w.Len())
	assert.Equal(t, int64(1), w.Front())
	assert.Equal(t, int64(5), w.Back())
	require.NoError(t, w.Close())

	r, err := mmarray.Open[int64](path, 5)
	require.NoError(t, err)
	defer r.Close() // nolint: errcheck

	for i, want := range source {
		assert.Equal(t, want, r.Index(i))
	}

	var got []int64
	r.Iter(func(_ int, v int64) bool {
		got = append(got, v)
		return true
	})
	assert.Equal(t, source, got)
}

func TestOpenTruncatedFileIsFormatError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ints")

	_, err := mmarray.Create(path, []int32{1, 2, 3})
	require.NoError(t, err)

	_, err = mmarray.Open[int32](path, 100)
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.Format))
}

func TestOpenMissingFileIsNotFound(t *testing.T) {
	_, err := mmarray.Open[int32](filepath.Join(t.TempDir(), "missing"), 1)
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.NotFound))
}

func TestZeroLengthArray(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty")

	w, err := mmarray.Create[int64](path, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, w.Len())
	require.NoError(t, w.Close())

	r, err := mmarray.Open[int64](path, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, r.Len())
	require.NoError(t, r.Close())
}

func TestCloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ints")
	w, err := mmarray.Create(path, []int32{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}

func TestIterStopsEarly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ints")
	w, err := mmarray.Create(path, []int32{1, 2, 3, 4, 5})
	require.NoError(t, err)
	defer w.Close() // nolint: errcheck

	var seen []int32
	w.Iter(func(_ int, v int32) bool {
		seen = append(seen, v)
		return len(seen) < 2
	})
	assert.Equal(t, []int32{1, 2}, seen)
}
