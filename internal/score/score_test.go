package score

import (
	"testing"

	"github.com/pagepulse/pagepulse/internal/collector"
)

func ptr(v float64) *float64 { return &v }

func TestCompute_AllGoodIsPerfect(t *testing.T) {
	m := collector.Metrics{
		LCPMs: ptr(2000),
		FIDMs: ptr(50),
		CLS:   ptr(0.05),
		FCPMs: ptr(1000),
		TTIMs: ptr(3000),
		TBTMs: ptr(100),
	}
	got := Compute(m)
	if got.FinalScore != 100 {
		t.Errorf("all-good metrics should score 100, got %d", got.FinalScore)
	}
}

func TestCompute_MostlyMissing(t *testing.T) {
	// LCP, FID, FCP, TTI missing; CLS and TBT good.
	// Deductions: 15 + 0 + 0 + 7 + 7 + 0 = 29.
	m := collector.Metrics{CLS: ptr(0), TBTMs: ptr(0)}
	got := Compute(m)
	if got.FinalScore != 71 {
		t.Errorf("expected 71, got %d", got.FinalScore)
	}
	if got.PerMetric["fid"].Status != StatusNotApplicable {
		t.Errorf("missing FID must be not-applicable, got %s", got.PerMetric["fid"].Status)
	}
	if got.PerMetric["fid"].Deduction != 0 {
		t.Errorf("missing FID must cost nothing, got %d", got.PerMetric["fid"].Deduction)
	}
	if got.PerMetric["lcp"].Status != StatusMissing {
		t.Errorf("missing LCP status = %s", got.PerMetric["lcp"].Status)
	}
}

func TestCompute_AllPoor(t *testing.T) {
	// Deductions: 25 + 0 + 25 + 10 + 10 + 5 = 75.
	m := collector.Metrics{
		LCPMs: ptr(6100),
		CLS:   ptr(0.3),
		FCPMs: ptr(4500),
		TTIMs: ptr(10000),
		TBTMs: ptr(800),
	}
	got := Compute(m)
	if got.FinalScore != 25 {
		t.Errorf("expected 25, got %d", got.FinalScore)
	}
}

func TestCompute_AllNeedsImprovement(t *testing.T) {
	// Deductions: 10 + 0 + 10 + 5 + 5 + 2 = 32.
	m := collector.Metrics{
		LCPMs: ptr(3500),
		CLS:   ptr(0.15),
		FCPMs: ptr(2500),
		TTIMs: ptr(5000),
		TBTMs: ptr(400),
	}
	got := Compute(m)
	if got.FinalScore != 68 {
		t.Errorf("expected 68, got %d", got.FinalScore)
	}
	for name, ms := range got.PerMetric {
		if name == "fid" {
			continue
		}
		if ms.Status != StatusNeedsImprovement {
			t.Errorf("%s status = %s, want needs-improvement", name, ms.Status)
		}
	}
}

func TestCompute_EverythingMissingStaysInRange(t *testing.T) {
	got := Compute(collector.Metrics{})
	// 15 + 0 + 15 + 7 + 7 + 3 = 47 in deductions.
	if got.FinalScore != 53 {
		t.Errorf("expected 53, got %d", got.FinalScore)
	}
	if got.FinalScore < 0 || got.FinalScore > 100 {
		t.Errorf("score out of range: %d", got.FinalScore)
	}
}

func TestStatusOf_MissingSemantics(t *testing.T) {
	for _, metric := range []string{"lcp", "cls", "fcp", "tti", "tbt"} {
		if s := StatusOf(metric, nil); s != StatusMissing {
			t.Errorf("StatusOf(%s, nil) = %s, want missing", metric, s)
		}
	}
	if s := StatusOf("fid", nil); s != StatusNotApplicable {
		t.Errorf("StatusOf(fid, nil) = %s, want not-applicable", s)
	}
}

func TestCompute_BoundaryValuesAreGood(t *testing.T) {
	m := collector.Metrics{
		LCPMs: ptr(2500),
		FIDMs: ptr(100),
		CLS:   ptr(0.1),
		FCPMs: ptr(1800),
		TTIMs: ptr(3800),
		TBTMs: ptr(200),
	}
	got := Compute(m)
	if got.FinalScore != 100 {
		t.Errorf("threshold boundaries are inclusive of good, got %d", got.FinalScore)
	}
}
