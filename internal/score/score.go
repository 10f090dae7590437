// Package score turns normalized metrics into a deterministic 0-100 score
// using a fixed per-metric deduction table. The same metrics always produce
// the same score.
package score

import (
	"github.com/pagepulse/pagepulse/internal/collector"
)

// Status classifies a metric value against its thresholds.
type Status string

const (
	StatusGood             Status = "good"
	StatusNeedsImprovement Status = "needs-improvement"
	StatusPoor             Status = "poor"
	StatusMissing          Status = "missing"
	// StatusNotApplicable is used only for FID, which cannot be measured
	// without a user interaction; its absence carries no penalty.
	StatusNotApplicable Status = "not-applicable"
)

// MetricScore records how one metric contributed to the final score.
type MetricScore struct {
	Value     *float64 `json:"value"`
	Status    Status   `json:"status"`
	Deduction int      `json:"deduction"`
}

// Breakdown is the full scoring result.
type Breakdown struct {
	FinalScore int                    `json:"finalScore"`
	PerMetric  map[string]MetricScore `json:"perMetric"`
}

type thresholds struct {
	goodMax        float64
	niMax          float64
	niDeduction    int
	poorDeduction  int
	missingPenalty int
	// missing carries no penalty when the metric requires interaction
	missingFree bool
}

var table = map[string]thresholds{
	"lcp": {goodMax: 2500, niMax: 4000, niDeduction: 10, poorDeduction: 25, missingPenalty: 15},
	"fid": {goodMax: 100, niMax: 300, niDeduction: 10, poorDeduction: 25, missingFree: true},
	"cls": {goodMax: 0.1, niMax: 0.25, niDeduction: 10, poorDeduction: 25, missingPenalty: 15},
	"fcp": {goodMax: 1800, niMax: 3000, niDeduction: 5, poorDeduction: 10, missingPenalty: 7},
	"tti": {goodMax: 3800, niMax: 7300, niDeduction: 5, poorDeduction: 10, missingPenalty: 7},
	"tbt": {goodMax: 200, niMax: 600, niDeduction: 2, poorDeduction: 5, missingPenalty: 3},
}

// Compute applies the deduction table to the metrics and clamps the result
// to [0, 100].
func Compute(m collector.Metrics) Breakdown {
	perMetric := map[string]MetricScore{
		"lcp": rate("lcp", m.LCPMs),
		"fid": rate("fid", m.FIDMs),
		"cls": rate("cls", m.CLS),
		"fcp": rate("fcp", m.FCPMs),
		"tti": rate("tti", m.TTIMs),
		"tbt": rate("tbt", m.TBTMs),
	}

	final := 100
	for _, ms := range perMetric {
		final -= ms.Deduction
	}
	if final < 0 {
		final = 0
	}
	if final > 100 {
		final = 100
	}
	return Breakdown{FinalScore: final, PerMetric: perMetric}
}

// StatusOf classifies a single metric value without computing deductions.
func StatusOf(metric string, value *float64) Status {
	return rate(metric, value).Status
}

func rate(metric string, value *float64) MetricScore {
	th := table[metric]
	if value == nil {
		if th.missingFree {
			return MetricScore{Status: StatusNotApplicable}
		}
		return MetricScore{Status: StatusMissing, Deduction: th.missingPenalty}
	}
	switch v := *value; {
	case v <= th.goodMax:
		return MetricScore{Value: value, Status: StatusGood}
	case v <= th.niMax:
		return MetricScore{Value: value, Status: StatusNeedsImprovement, Deduction: th.niDeduction}
	default:
		return MetricScore{Value: value, Status: StatusPoor, Deduction: th.poorDeduction}
	}
}
