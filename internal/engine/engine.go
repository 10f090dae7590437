// Package engine wires the full analysis pipeline: profile resolution,
// session normalization, the browser run, metric normalization, issue
// detection, scoring, and report assembly.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pagepulse/pagepulse/internal/browser"
	"github.com/pagepulse/pagepulse/internal/collector"
	"github.com/pagepulse/pagepulse/internal/issues"
	"github.com/pagepulse/pagepulse/internal/netprofile"
	"github.com/pagepulse/pagepulse/internal/profile"
	"github.com/pagepulse/pagepulse/internal/report"
	"github.com/pagepulse/pagepulse/internal/score"
	"github.com/pagepulse/pagepulse/internal/session"
)

// ErrInvalidInput marks requests rejected before any browser is launched.
var ErrInvalidInput = errors.New("invalid input")

// Re-exported so callers can classify failures without importing the
// browser layer.
var (
	ErrNavigationTimeout = browser.ErrNavigationTimeout
	ErrNetworkFailure    = browser.ErrNetworkFailure
)

// Request describes one analysis to run.
type Request struct {
	URL         string
	DeviceType  string
	NetworkTier string
	// Auth is raw session material in any supported shape; nil means an
	// unauthenticated run.
	Auth       any
	Screenshot bool
}

// Config holds engine configuration.
type Config struct {
	Browser          browser.Config
	RequestTimeoutMs int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Browser:          browser.DefaultConfig(),
		RequestTimeoutMs: 90000,
	}
}

// RequestTimeout bounds one analysis end to end.
func (c Config) RequestTimeout() time.Duration {
	if c.RequestTimeoutMs <= 0 {
		return 90 * time.Second
	}
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// Engine runs analyses. Safe for concurrent use; every run gets its own
// browser instance.
type Engine struct {
	cfg    Config
	logger *zap.Logger
}

// New creates an engine. A nil logger disables logging.
func New(cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, logger: logger}
}

// Analyze performs one full audited page load and returns the report.
// Invalid input fails fast with ErrInvalidInput; a failed harvest degrades
// to missing metrics rather than failing the run.
func (e *Engine) Analyze(ctx context.Context, req Request) (*report.AnalysisReport, error) {
	target, err := ValidateURL(req.URL)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	log := e.logger.With(zap.String("request_id", id), zap.String("url", req.URL))

	ctx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout())
	defer cancel()

	device, network := profile.Resolve(req.DeviceType, req.NetworkTier)
	log.Info("analysis started",
		zap.String("device", device.Name),
		zap.String("network", network.Name))

	sess, err := session.Build(req.Auth, target)
	if err != nil {
		// Malformed credentials degrade to an unauthenticated run; the
		// page still gets measured.
		log.Warn("auth material rejected, continuing unauthenticated", zap.Error(err))
	}
	authenticated := sess.Authenticated()

	coll := collector.New(log)
	prof := netprofile.New(log)

	var raw *collector.RawSamples
	orch := browser.New(e.cfg.Browser, log)
	res, err := orch.Run(ctx, browser.RunSpec{
		URL:     req.URL,
		Device:  device,
		Network: network,
		Session: sess,
		BeforeNavigate: func(page *rod.Page) error {
			if err := coll.Install(page); err != nil {
				return err
			}
			prof.Attach(page)
			return nil
		},
		LCPSample: coll.CurrentLCPCandidate,
		Harvest: func(page *rod.Page) error {
			harvested, herr := coll.Harvest(page)
			if herr != nil {
				log.Warn("telemetry harvest incomplete, metrics will be missing", zap.Error(herr))
				return nil
			}
			raw = harvested
			return nil
		},
		CaptureScreenshot: req.Screenshot,
	})
	if err != nil {
		return nil, err
	}
	if res.LoginFailed {
		authenticated = false
	}

	metrics := collector.Normalize(raw)
	summary := prof.Summary()
	breakdown := score.Compute(metrics)

	rep := report.Assemble(report.Input{
		ID:            id,
		RequestedURL:  req.URL,
		FinalURL:      res.FinalURL,
		Authenticated: authenticated,
		Metrics:       metrics,
		Network:       summary,
		Issues:        issues.Detect(summary, metrics),
		Score:         breakdown,
		Screenshot:    res.Screenshot,
	})

	log.Info("analysis complete",
		zap.Int("score", rep.Score),
		zap.Bool("redirect_detected", rep.RedirectDetected),
		zap.Int("issues", len(rep.Issues)),
		zap.Int("requests", rep.Network.RequestCount))
	return rep, nil
}

// ValidateURL checks that raw is a usable http(s) URL with a host. Failures
// wrap ErrInvalidInput.
func ValidateURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidInput)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidInput, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: url has no host", ErrInvalidInput)
	}
	return u, nil
}
