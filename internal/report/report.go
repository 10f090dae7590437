// Package report merges the pipeline outputs into the final immutable
// analysis report and performs redirect detection between the requested and
// final URLs.
package report

import (
	"encoding/base64"
	"net/url"
	"strings"
	"time"

	"github.com/pagepulse/pagepulse/internal/collector"
	"github.com/pagepulse/pagepulse/internal/issues"
	"github.com/pagepulse/pagepulse/internal/netprofile"
	"github.com/pagepulse/pagepulse/internal/score"
)

// WebVital is one core vital with its rating.
type WebVital struct {
	Value  *float64 `json:"value"`
	Status string   `json:"status"`
}

// WebVitals groups the three core vitals surfaced prominently.
type WebVitals struct {
	LCP WebVital `json:"lcp"`
	FID WebVital `json:"fid"`
	CLS WebVital `json:"cls"`
}

// SupportingMetrics carries the secondary timing metrics.
type SupportingMetrics struct {
	FCP *float64 `json:"fcp"`
	TTI *float64 `json:"tti"`
	TBT *float64 `json:"tbt"`
}

// NetworkSummary is the per-type transfer breakdown.
type NetworkSummary struct {
	TotalBytes   int64                          `json:"totalBytes"`
	RequestCount int                            `json:"requestCount"`
	ByType       map[string]netprofile.TypeStat `json:"byType"`
}

// AnalysisReport is the engine's final output. It is created once per
// request and never mutated after return.
type AnalysisReport struct {
	ID               string            `json:"id"`
	URL              string            `json:"url"`
	FinalURL         string            `json:"finalUrl"`
	RedirectDetected bool              `json:"redirectDetected"`
	Authenticated    bool              `json:"authenticated"`
	Score            int               `json:"score"`
	WebVitals        WebVitals         `json:"webVitals"`
	Metrics          SupportingMetrics `json:"metrics"`
	ScoreBreakdown   score.Breakdown   `json:"scoreBreakdown"`
	Issues           []issues.Issue    `json:"issues"`
	Network          NetworkSummary    `json:"network"`
	Screenshot       string            `json:"screenshot,omitempty"`
	GeneratedAt      time.Time         `json:"generatedAt"`
}

// Input bundles everything the assembler merges.
type Input struct {
	ID            string
	RequestedURL  string
	FinalURL      string
	Authenticated bool
	Metrics       collector.Metrics
	Network       *netprofile.Summary
	Issues        []issues.Issue
	Score         score.Breakdown
	Screenshot    []byte
}

// Assemble builds the final report. A redirect on an authenticated request
// is a strong signal the injected session was rejected, so the flag is
// always computed and surfaced rather than folded into the score.
func Assemble(in Input) *AnalysisReport {
	rep := &AnalysisReport{
		ID:               in.ID,
		URL:              in.RequestedURL,
		FinalURL:         in.FinalURL,
		RedirectDetected: RedirectDetected(in.RequestedURL, in.FinalURL),
		Authenticated:    in.Authenticated,
		Score:            in.Score.FinalScore,
		WebVitals: WebVitals{
			LCP: vital("lcp", in.Metrics.LCPMs),
			FID: vital("fid", in.Metrics.FIDMs),
			CLS: vital("cls", in.Metrics.CLS),
		},
		Metrics: SupportingMetrics{
			FCP: in.Metrics.FCPMs,
			TTI: in.Metrics.TTIMs,
			TBT: in.Metrics.TBTMs,
		},
		ScoreBreakdown: in.Score,
		Issues:         in.Issues,
		GeneratedAt:    time.Now().UTC(),
	}
	if in.Network != nil {
		rep.Network = NetworkSummary{
			TotalBytes:   in.Network.TotalBytes,
			RequestCount: in.Network.RequestCount,
			ByType:       in.Network.ByType,
		}
	}
	if len(in.Screenshot) > 0 {
		rep.Screenshot = base64.StdEncoding.EncodeToString(in.Screenshot)
	}
	return rep
}

func vital(metric string, value *float64) WebVital {
	return WebVital{Value: value, Status: string(score.StatusOf(metric, value))}
}

// RedirectDetected compares the canonical forms of the two URLs. Case and
// trailing-slash differences are not redirects.
func RedirectDetected(requested, final string) bool {
	if final == "" {
		return false
	}
	return CanonicalURL(requested) != CanonicalURL(final)
}

// CanonicalURL lowercases host and path and strips any trailing slash, so
// that equivalent URLs compare equal.
func CanonicalURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(strings.ToLower(raw), "/")
	}
	host := strings.ToLower(u.Host)
	path := strings.TrimSuffix(strings.ToLower(u.Path), "/")
	return host + path
}
