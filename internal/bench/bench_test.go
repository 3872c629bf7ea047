package bench_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/plex/internal/bench"
)

func TestReporterMilestonesGrowGeometrically(t *testing.T) {
	var r bench.Reporter
	start := time.Unix(0, 0)
	r.Start(start)

	const numSamples = 100
	var reported []int
	for i := 0; i < numSamples; i++ {
		now := start.Add(time.Duration(i+1) * time.Microsecond)
		if m, ok := r.Step(i, numSamples, now); ok {
			reported = append(reported, m.Index)
		}
	}
	require.NotEmpty(t, reported)
	// First milestone is always index 0 (count_milestone starts at 1).
	assert.Equal(t, 0, reported[0])
	// Last query is always reported even if it doesn't land on a milestone.
	assert.Equal(t, numSamples-1, reported[len(reported)-1])
	// Milestones are strictly increasing and sparser over time (geometric,
	// not linear): fewer reports than samples.
	assert.Less(t, len(reported), numSamples)
	for i := 1; i < len(reported); i++ {
		assert.Greater(t, reported[i], reported[i-1])
	}
}

func TestWriteReportFormat(t *testing.T) {
	var r bench.Reporter
	start := time.Unix(0, 0)
	r.Start(start)
	r.Step(0, 1, start.Add(5*time.Millisecond))

	var buf bytes.Buffer
	require.NoError(t, bench.WriteReport(&buf, r.Milestones()))
	assert.Contains(t, buf.String(), "counts, tot")
	assert.Contains(t, buf.String(), "/op, seg")
}
