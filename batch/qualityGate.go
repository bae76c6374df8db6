package batch

import "fmt"

// QualityGate pauses a run after too many consecutive batches whose success
// rate is below Threshold.
type QualityGate struct {
	Enabled        bool
	Threshold      float64
	MaxConsecutive int
}

type GateDecision struct {
	Rate           float64
	Attempted      int
	UnderThreshold bool
	Consecutive    int
	Pause          bool
	Reason         string
}

// Evaluate returns the new consecutive counter after stats. Skipped records
// do not count as attempts; a batch of only skipped records leaves the
// counter unchanged. The counter is tracked even when the gate is disabled.
func (g QualityGate) Evaluate(stats BatchStats, consecutive int) GateDecision {
	d := GateDecision{Attempted: stats.Processed - stats.Skipped, Consecutive: consecutive}
	if d.Attempted <= 0 {
		return d
	}
	d.Rate = float64(stats.Successful) / float64(d.Attempted)
	if d.Rate < g.Threshold {
		d.UnderThreshold = true
		d.Consecutive++
	} else {
		d.Consecutive = 0
	}
	if g.Enabled && g.MaxConsecutive > 0 && d.Consecutive >= g.MaxConsecutive {
		d.Pause = true
		d.Reason = fmt.Sprintf("quality gate: %d consecutive batches below %.1f%% success (last %.1f%%)",
			d.Consecutive, g.Threshold*100, d.Rate*100)
	}
	return d
}
