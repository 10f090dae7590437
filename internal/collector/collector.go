// Package collector instruments a page with PerformanceObserver hooks and
// harvests the buffered timing entries once the load has stabilized.
//
// The instrumentation script is registered before navigation begins.
// Attaching observers after load misses early paint and layout-shift entries
// and has produced wildly wrong values in the past (an FCP captured 12x too
// large from stale buffered data), so Install must run against a page that
// has not navigated yet.
package collector

import (
	"encoding/json"
	"fmt"

	"github.com/go-rod/rod"
	"go.uber.org/zap"
)

// instrumentScript buffers performance entries into a page global before any
// page script runs. Observer types unsupported by the browser are skipped
// individually; the harvest treats their absence as a missing metric.
const instrumentScript = `() => {
	if (window.__ppulse) return;
	const pp = {
		fcp: null,
		lcp: null,
		cls: 0,
		fidStart: null,
		fidProcessing: null,
		longtasks: [],
	};
	window.__ppulse = pp;
	try {
		new PerformanceObserver((list) => {
			for (const e of list.getEntries()) {
				if (e.name === 'first-contentful-paint' && pp.fcp === null) pp.fcp = e.startTime;
			}
		}).observe({ type: 'paint', buffered: true });
	} catch (err) {}
	try {
		new PerformanceObserver((list) => {
			const entries = list.getEntries();
			if (entries.length) {
				const last = entries[entries.length - 1];
				pp.lcp = last.renderTime || last.loadTime || last.startTime;
			}
		}).observe({ type: 'largest-contentful-paint', buffered: true });
	} catch (err) {}
	try {
		new PerformanceObserver((list) => {
			for (const e of list.getEntries()) {
				if (!e.hadRecentInput) pp.cls += e.value;
			}
		}).observe({ type: 'layout-shift', buffered: true });
	} catch (err) {}
	try {
		new PerformanceObserver((list) => {
			for (const e of list.getEntries()) {
				if (pp.fidStart === null) {
					pp.fidStart = e.startTime;
					pp.fidProcessing = e.processingStart;
				}
			}
		}).observe({ type: 'first-input', buffered: true });
	} catch (err) {}
	try {
		new PerformanceObserver((list) => {
			for (const e of list.getEntries()) {
				pp.longtasks.push({ start: e.startTime, duration: e.duration });
			}
		}).observe({ type: 'longtask', buffered: true });
	} catch (err) {}
}`

// harvestScript snapshots the instrumentation buffer plus the navigation
// timing entry. All values are DOMHighResTimeStamps relative to
// navigationStart except timeOrigin, which anchors normalization of any
// absolute timestamps that leak through.
const harvestScript = `() => {
	const pp = window.__ppulse || {};
	const nav = performance.getEntriesByType('navigation')[0] || null;
	return {
		timeOrigin: performance.timeOrigin,
		fcp: pp.fcp ?? null,
		lcp: pp.lcp ?? null,
		cls: pp.cls ?? null,
		fidStart: pp.fidStart ?? null,
		fidProcessing: pp.fidProcessing ?? null,
		longtasks: pp.longtasks || [],
		domContentLoaded: nav ? nav.domContentLoadedEventEnd : null,
		loadEvent: nav ? nav.loadEventEnd : null,
		responseStart: nav ? nav.responseStart : null,
	};
}`

// currentLCPScript reads the live LCP candidate for the stabilization loop.
const currentLCPScript = `() => {
	const pp = window.__ppulse;
	return pp && pp.lcp !== null ? pp.lcp : -1;
}`

// LongTask is one main-thread task over the 50ms blocking threshold.
type LongTask struct {
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// RawSamples is the unnormalized harvest from the live page. Nil fields mean
// the corresponding observer never fired.
type RawSamples struct {
	TimeOrigin       float64    `json:"timeOrigin"`
	FCP              *float64   `json:"fcp"`
	LCP              *float64   `json:"lcp"`
	CLS              *float64   `json:"cls"`
	FIDStart         *float64   `json:"fidStart"`
	FIDProcessing    *float64   `json:"fidProcessing"`
	LongTasks        []LongTask `json:"longtasks"`
	DOMContentLoaded *float64   `json:"domContentLoaded"`
	LoadEvent        *float64   `json:"loadEvent"`
	ResponseStart    *float64   `json:"responseStart"`
}

// Collector owns the instrumentation lifecycle for one page.
type Collector struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{logger: logger}
}

// Install registers the instrumentation script to run on every new document
// before any page script. Must be called before navigation starts.
func (c *Collector) Install(page *rod.Page) error {
	if _, err := page.EvalOnNewDocument(fmt.Sprintf("(%s)()", instrumentScript)); err != nil {
		return fmt.Errorf("install instrumentation: %w", err)
	}
	return nil
}

// CurrentLCPCandidate samples the live largest-contentful-paint candidate.
// The second return is false while no candidate has been observed yet.
func (c *Collector) CurrentLCPCandidate(page *rod.Page) (float64, bool) {
	res, err := page.Evaluate(&rod.EvalOptions{JS: currentLCPScript, ByValue: true})
	if err != nil || res == nil {
		return 0, false
	}
	v := res.Value.Num()
	if v < 0 {
		return 0, false
	}
	return v, true
}

// Harvest freezes and returns the buffered samples. Called once after
// stabilization; further entries are ignored by the pipeline.
func (c *Collector) Harvest(page *rod.Page) (*RawSamples, error) {
	res, err := page.Evaluate(&rod.EvalOptions{JS: harvestScript, ByValue: true, AwaitPromise: true})
	if err != nil {
		return nil, fmt.Errorf("harvest timing buffer: %w", err)
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal timing buffer: %w", err)
	}
	var samples RawSamples
	if err := json.Unmarshal(raw, &samples); err != nil {
		return nil, fmt.Errorf("decode timing buffer: %w", err)
	}
	c.logger.Debug("timing buffer harvested",
		zap.Int("longtasks", len(samples.LongTasks)),
		zap.Bool("has_lcp", samples.LCP != nil),
		zap.Bool("has_fcp", samples.FCP != nil))
	return &samples, nil
}
