// Package issues runs independent heuristic rules over the network summary
// and normalized metrics to surface optimization opportunities. Every rule is
// a pure function; all triggered rules are reported, not just the worst one.
package issues

import (
	"sort"

	"github.com/pagepulse/pagepulse/internal/collector"
	"github.com/pagepulse/pagepulse/internal/netprofile"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Savings estimates what fixing the issue would recover. Both fields are
// always >= 0.
type Savings struct {
	Bytes  int64   `json:"bytes"`
	TimeMs float64 `json:"timeMs"`
}

// AffectedResource names one resource contributing to an issue.
type AffectedResource struct {
	URL         string `json:"url"`
	SizeBytes   int64  `json:"sizeBytes"`
	WastedBytes int64  `json:"wastedBytes"`
}

// Issue is one detected optimization opportunity.
type Issue struct {
	ID                string             `json:"id"`
	Title             string             `json:"title"`
	Severity          Severity           `json:"severity"`
	EstimatedSavings  Savings            `json:"estimatedSavings"`
	AffectedResources []AffectedResource `json:"affectedResources,omitempty"`
}

// Rule inspects the audit output and returns an issue or nil.
type Rule func(*netprofile.Summary, collector.Metrics) *Issue

var rules = []Rule{
	oversizedScripts,
	oversizedImages,
	renderBlocking,
	oversizedStylesheets,
	slowServerResponse,
	excessiveRequests,
	excessivePageWeight,
}

// Detect runs every rule and returns the triggered issues ordered by
// severity, then by estimated savings.
func Detect(sum *netprofile.Summary, metrics collector.Metrics) []Issue {
	if sum == nil {
		sum = &netprofile.Summary{}
	}
	var found []Issue
	for _, rule := range rules {
		if issue := rule(sum, metrics); issue != nil {
			found = append(found, *issue)
		}
	}
	sort.SliceStable(found, func(i, j int) bool {
		if ri, rj := severityRank(found[i].Severity), severityRank(found[j].Severity); ri != rj {
			return ri < rj
		}
		if found[i].EstimatedSavings.Bytes != found[j].EstimatedSavings.Bytes {
			return found[i].EstimatedSavings.Bytes > found[j].EstimatedSavings.Bytes
		}
		return found[i].EstimatedSavings.TimeMs > found[j].EstimatedSavings.TimeMs
	})
	return found
}

func severityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	default:
		return 2
	}
}

// scaleSeverity maps the worst observed magnitude against the rule's trigger
// threshold: over 2x is critical, over 1.5x is warning, anything that merely
// triggered is info. Every rule uses the same scaling.
func scaleSeverity(magnitude, threshold float64) Severity {
	switch {
	case magnitude > 2*threshold:
		return SeverityCritical
	case magnitude > 1.5*threshold:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

const (
	scriptSizeThreshold     = 200 * 1024
	imageSizeThreshold      = 100 * 1024
	stylesheetSizeThreshold = 50 * 1024
	renderBlockingMs        = 200.0
	slowFCPMs               = 1800.0
	requestCountThreshold   = 50
	pageWeightThreshold     = 2 * 1024 * 1024
)

// Any script over 200KB; wasted bytes estimated at 30% of the total bundle.
func oversizedScripts(sum *netprofile.Summary, _ collector.Metrics) *Issue {
	return sizeRule(sum, "script", "oversized-scripts", "Reduce JavaScript bundle size",
		scriptSizeThreshold, 0.30)
}

// Any image over 100KB; savings estimated at 40% of total image bytes.
func oversizedImages(sum *netprofile.Summary, _ collector.Metrics) *Issue {
	return sizeRule(sum, "image", "oversized-images", "Optimize and compress images",
		imageSizeThreshold, 0.40)
}

// Any stylesheet over 50KB; savings estimated at 20% of total CSS bytes.
func oversizedStylesheets(sum *netprofile.Summary, _ collector.Metrics) *Issue {
	return sizeRule(sum, "stylesheet", "oversized-stylesheets", "Reduce unused CSS",
		stylesheetSizeThreshold, 0.20)
}

func sizeRule(sum *netprofile.Summary, resourceType, id, title string, threshold int64, wastedRatio float64) *Issue {
	var (
		affected   []AffectedResource
		totalBytes int64
		largest    int64
	)
	for _, r := range sum.Resources {
		if r.Type != resourceType {
			continue
		}
		totalBytes += r.SizeBytes
		if r.SizeBytes > threshold {
			affected = append(affected, AffectedResource{
				URL:         r.URL,
				SizeBytes:   r.SizeBytes,
				WastedBytes: int64(float64(r.SizeBytes) * wastedRatio),
			})
			if r.SizeBytes > largest {
				largest = r.SizeBytes
			}
		}
	}
	if len(affected) == 0 {
		return nil
	}
	return &Issue{
		ID:                id,
		Title:             title,
		Severity:          scaleSeverity(float64(largest), float64(threshold)),
		EstimatedSavings:  Savings{Bytes: int64(float64(totalBytes) * wastedRatio)},
		AffectedResources: affected,
	}
}

// Styles or scripts taking over 200ms; estimated time savings is half the
// cumulative delay.
func renderBlocking(sum *netprofile.Summary, _ collector.Metrics) *Issue {
	var (
		affected   []AffectedResource
		cumulative float64
		worst      float64
	)
	for _, r := range sum.Resources {
		if r.Type != "stylesheet" && r.Type != "script" {
			continue
		}
		if r.DurationMs > renderBlockingMs {
			affected = append(affected, AffectedResource{URL: r.URL, SizeBytes: r.SizeBytes})
			cumulative += r.DurationMs
			if r.DurationMs > worst {
				worst = r.DurationMs
			}
		}
	}
	if len(affected) == 0 {
		return nil
	}
	return &Issue{
		ID:                "render-blocking-resources",
		Title:             "Eliminate render-blocking resources",
		Severity:          scaleSeverity(worst, renderBlockingMs),
		EstimatedSavings:  Savings{TimeMs: cumulative * 0.5},
		AffectedResources: affected,
	}
}

// FCP beyond 1.8s; the overshoot itself is the estimated time savings.
func slowServerResponse(_ *netprofile.Summary, metrics collector.Metrics) *Issue {
	if metrics.FCPMs == nil || *metrics.FCPMs <= slowFCPMs {
		return nil
	}
	return &Issue{
		ID:               "slow-server-response",
		Title:            "Improve server response time",
		Severity:         scaleSeverity(*metrics.FCPMs, slowFCPMs),
		EstimatedSavings: Savings{TimeMs: *metrics.FCPMs - slowFCPMs},
	}
}

// More than 50 requests; each surplus request is charged 10ms.
func excessiveRequests(sum *netprofile.Summary, _ collector.Metrics) *Issue {
	if sum.RequestCount <= requestCountThreshold {
		return nil
	}
	return &Issue{
		ID:               "excessive-requests",
		Title:            "Reduce the number of network requests",
		Severity:         scaleSeverity(float64(sum.RequestCount), requestCountThreshold),
		EstimatedSavings: Savings{TimeMs: 10 * float64(sum.RequestCount-requestCountThreshold)},
	}
}

// Total transfer over 2MB; savings estimated at 20% of the total.
func excessivePageWeight(sum *netprofile.Summary, _ collector.Metrics) *Issue {
	if sum.TotalBytes <= pageWeightThreshold {
		return nil
	}
	return &Issue{
		ID:               "excessive-page-weight",
		Title:            "Reduce total page weight",
		Severity:         scaleSeverity(float64(sum.TotalBytes), pageWeightThreshold),
		EstimatedSavings: Savings{Bytes: int64(float64(sum.TotalBytes) * 0.20)},
	}
}
