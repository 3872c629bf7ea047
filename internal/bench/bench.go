// Package bench implements the exponential-milestone timing report used by
// cmd/plex-query, grounded on original_source/kv_benchmark.cc's report_t:
// a running query counter reports elapsed time whenever it crosses the next
// milestone, where milestones grow geometrically (x1.1) rather than
// linearly, so a long run doesn't drown its output in near-identical lines.
package bench

import (
	"fmt"
	"io"
	"math"
	"time"
)

// freqMul is the milestone growth factor, matching kv_benchmark.cc's
// hard-coded constant.
const freqMul = 1.1

// Milestone is one reported sample: query index t (0-based), elapsed time
// since the start of the run, total throughput (ns/op averaged over the
// whole run), and segment throughput (ns/op averaged since the previous
// milestone).
type Milestone struct {
	Index            int
	Elapsed          time.Duration
	TotalNsPerOp     float64
	SegmentNsPerOp   float64
}

// Reporter tracks query count against the next exponential milestone and
// the start-of-run clock. A zero Reporter is ready to use once Start is
// called.
type Reporter struct {
	startTime           time.Time
	countMilestone      float64
	lastCountMilestone  float64
	lastElapsed         time.Duration
	milestones          []Milestone
}

// Start begins timing. It must be called once, before the first Step.
func (r *Reporter) Start(now time.Time) {
	r.startTime = now
	r.countMilestone = 1
	r.lastCountMilestone = 0
}

// Step records that query index t (0-based) has just completed, at time
// now. numSamples is the total number of queries in the run: the final
// query is always reported even if it doesn't land on a milestone. Step
// returns the recorded Milestone and true if a report was produced.
func (r *Reporter) Step(t int, numSamples int, now time.Time) (Milestone, bool) {
	if t+1 != int(math.Ceil(r.countMilestone)) && t+1 != numSamples {
		return Milestone{}, false
	}
	elapsed := now.Sub(r.startTime)
	m := Milestone{
		Index:          t,
		Elapsed:        elapsed,
		TotalNsPerOp:   float64(elapsed.Nanoseconds()) / float64(t+1),
		SegmentNsPerOp: float64((elapsed - r.lastElapsed).Nanoseconds()) / (float64(t+1) - r.lastCountMilestone),
	}
	r.lastElapsed = elapsed
	r.lastCountMilestone = r.countMilestone
	r.countMilestone = math.Ceil(r.countMilestone * freqMul)
	r.milestones = append(r.milestones, m)
	return m, true
}

// Milestones returns every milestone recorded so far.
func (r *Reporter) Milestones() []Milestone { return r.milestones }

// WriteReport writes one line per milestone to w, in kv_benchmark.cc's
// report_t format.
func WriteReport(w io.Writer, milestones []Milestone) error {
	for _, m := range milestones {
		if _, err := fmt.Fprintf(w, "t = %d ns: %d counts, tot %.3f/op, seg %.3f/op\n",
			m.Elapsed.Nanoseconds(), m.Index+1, m.TotalNsPerOp, m.SegmentNsPerOp); err != nil {
			return err
		}
	}
	return nil
}
