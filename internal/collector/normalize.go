package collector

// maxPlausibleMs bounds any timestamp relative to navigation start. Nothing
// in a single page load legitimately takes longer than ten minutes; values
// outside the bound are reported as missing rather than propagated.
const maxPlausibleMs = 600_000

// Metrics is the normalized measurement set. Every field is either nil
// ("missing") or a finite value inside [0, maxPlausibleMs]; CLS is unitless.
type Metrics struct {
	FCPMs *float64
	LCPMs *float64
	CLS   *float64
	FIDMs *float64
	TTIMs *float64
	TBTMs *float64
}

// Normalize converts a raw harvest into Metrics, applying one uniform rule to
// every timestamp: values that already look relative pass through, absolute
// values get the navigation-start origin subtracted, and anything that still
// lands outside [0, maxPlausibleMs] becomes nil. This is the guard against
// the historical bugs where a missed origin subtraction produced values 12x
// too large or large negative "missing" metrics.
func Normalize(raw *RawSamples) Metrics {
	if raw == nil {
		return Metrics{}
	}

	m := Metrics{
		FCPMs: NormalizeTimestamp(raw.FCP, raw.TimeOrigin),
		LCPMs: NormalizeTimestamp(raw.LCP, raw.TimeOrigin),
		CLS:   normalizeCLS(raw.CLS),
	}

	if raw.FIDStart != nil && raw.FIDProcessing != nil {
		delay := *raw.FIDProcessing - *raw.FIDStart
		m.FIDMs = NormalizeTimestamp(&delay, raw.TimeOrigin)
	}

	m.TTIMs = approximateTTI(raw)
	m.TBTMs = computeTBT(raw, m.FCPMs, m.TTIMs)
	return m
}

// NormalizeTimestamp applies the uniform normalization rule to one value.
func NormalizeTimestamp(raw *float64, origin float64) *float64 {
	if raw == nil {
		return nil
	}
	v := *raw
	if v < 0 || v > maxPlausibleMs {
		v -= origin
	}
	if v < 0 || v > maxPlausibleMs {
		return nil
	}
	return &v
}

func normalizeCLS(raw *float64) *float64 {
	if raw == nil {
		return nil
	}
	v := *raw
	if v < 0 {
		return nil
	}
	return &v
}

// approximateTTI estimates time-to-interactive as the later of
// DOMContentLoaded completion and the end of the last long task. Without a
// navigation entry there is nothing to anchor the estimate and TTI stays
// missing, which the score treats as assumed-poor.
func approximateTTI(raw *RawSamples) *float64 {
	base := NormalizeTimestamp(raw.DOMContentLoaded, raw.TimeOrigin)
	if base == nil {
		return nil
	}
	tti := *base
	for _, task := range raw.LongTasks {
		if end := task.Start + task.Duration; end > tti && end <= maxPlausibleMs {
			tti = end
		}
	}
	return &tti
}

// computeTBT sums main-thread blocking time (the portion of each long task
// beyond 50ms) between FCP and TTI. With no long tasks observed the total is
// a legitimate zero, not missing.
func computeTBT(raw *RawSamples, fcpMs, ttiMs *float64) *float64 {
	windowStart := 0.0
	if fcpMs != nil {
		windowStart = *fcpMs
	}
	windowEnd := float64(maxPlausibleMs)
	if ttiMs != nil {
		windowEnd = *ttiMs
	}

	total := 0.0
	for _, task := range raw.LongTasks {
		if task.Start < windowStart || task.Start > windowEnd {
			continue
		}
		if blocking := task.Duration - 50; blocking > 0 {
			total += blocking
		}
	}
	return &total
}
