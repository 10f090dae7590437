// Package browser owns the headless Chrome lifecycle for a single audited
// page load: launch, context configuration (device, network, session),
// navigation, metric stabilization, harvest, and teardown.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/pagepulse/pagepulse/internal/profile"
	"github.com/pagepulse/pagepulse/internal/session"
)

var (
	// ErrNavigationTimeout is returned when the page does not reach
	// DOM-ready within the navigation timeout.
	ErrNavigationTimeout = errors.New("navigation timeout")
	// ErrNetworkFailure covers DNS, TLS, and connection errors during
	// navigation.
	ErrNetworkFailure = errors.New("network failure")
)

// Config holds browser configuration.
type Config struct {
	Bin                 string `json:"bin"`
	Headless            bool   `json:"headless"`
	NavigationTimeoutMs int    `json:"navigation_timeout_ms"`
	IdleTimeoutMs       int    `json:"idle_timeout_ms"`
	SettleTimeoutMs     int    `json:"settle_timeout_ms"`
	StabilizeIntervalMs int    `json:"stabilize_interval_ms"`
	StabilizeMaxSamples int    `json:"stabilize_max_samples"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Headless:            true,
		NavigationTimeoutMs: 30000,
		IdleTimeoutMs:       10000,
		SettleTimeoutMs:     5000,
		StabilizeIntervalMs: 250,
		StabilizeMaxSamples: 8,
	}
}

// NavigationTimeout returns the navigation timeout.
func (c Config) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// IdleTimeout bounds the wait for network idle after DOM-ready.
func (c Config) IdleTimeout() time.Duration {
	if c.IdleTimeoutMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.IdleTimeoutMs) * time.Millisecond
}

// SettleTimeout bounds element lookups and the post-login settle wait.
func (c Config) SettleTimeout() time.Duration {
	if c.SettleTimeoutMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.SettleTimeoutMs) * time.Millisecond
}

// StabilizeInterval returns the delay between stabilization samples.
func (c Config) StabilizeInterval() time.Duration {
	if c.StabilizeIntervalMs <= 0 {
		return 250 * time.Millisecond
	}
	return time.Duration(c.StabilizeIntervalMs) * time.Millisecond
}

// MaxStabilizeSamples returns the sample cap for the stabilization loop.
func (c Config) MaxStabilizeSamples() int {
	if c.StabilizeMaxSamples <= 0 {
		return 8
	}
	return c.StabilizeMaxSamples
}

// State tracks where a run is in its lifecycle.
type State int32

const (
	StateIdle State = iota
	StateLaunching
	StateContextConfigured
	StateNavigating
	StateStabilizing
	StateHarvesting
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLaunching:
		return "launching"
	case StateContextConfigured:
		return "context-configured"
	case StateNavigating:
		return "navigating"
	case StateStabilizing:
		return "stabilizing"
	case StateHarvesting:
		return "harvesting"
	case StateTornDown:
		return "torn-down"
	default:
		return "unknown"
	}
}

// RunSpec describes one audited page load. The callbacks keep this package
// free of any knowledge about what is collected: BeforeNavigate installs
// instrumentation on the blank page, LCPSample reads the current candidate
// during stabilization, and Harvest pulls the telemetry out before teardown.
type RunSpec struct {
	URL     string
	Device  profile.DeviceProfile
	Network profile.NetworkProfile
	Session *session.Context

	BeforeNavigate func(page *rod.Page) error
	LCPSample      func(page *rod.Page) (float64, bool)
	Harvest        func(page *rod.Page) error

	CaptureScreenshot bool
}

// RunResult carries what only the browser layer can observe.
type RunResult struct {
	FinalURL    string
	Screenshot  []byte
	LoginFailed bool
}

// Orchestrator runs one page load per call against a freshly launched
// browser, so no state leaks between runs.
type Orchestrator struct {
	cfg    Config
	logger *zap.Logger
	state  atomic.Int32
}

// New creates an orchestrator. A nil logger disables logging.
func New(cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{cfg: cfg, logger: logger}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
	o.logger.Debug("run state", zap.Stringer("state", s))
}

// Run drives a full audited page load and tears the browser down
// unconditionally, whatever the outcome.
func (o *Orchestrator) Run(ctx context.Context, spec RunSpec) (*RunResult, error) {
	o.setState(StateLaunching)

	launch := launcher.New().Headless(o.cfg.Headless)
	if o.cfg.Bin != "" {
		launch = launch.Bin(o.cfg.Bin)
	}
	controlURL, err := launch.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		launch.Kill()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	defer func() {
		_ = browser.Close()
		launch.Cleanup()
		o.setState(StateTornDown)
	}()

	res := &RunResult{}

	// A scripted login runs in its own incognito context so the audited
	// page only ever sees the harvested credentials, never the login page.
	if spec.Session != nil && spec.Session.Login != nil {
		if err := o.runLoginFlow(ctx, browser, spec.Session); err != nil {
			o.logger.Warn("login flow failed, continuing without its credentials",
				zap.Error(err))
			res.LoginFailed = true
		}
	}

	incognito, err := browser.Incognito()
	if err != nil {
		return res, fmt.Errorf("incognito context: %w", err)
	}
	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return res, fmt.Errorf("create page: %w", err)
	}
	page = page.Context(ctx)

	if err := o.configurePage(page, spec); err != nil {
		return res, err
	}
	o.setState(StateContextConfigured)

	// Instrumentation must land before any document of the target origin
	// starts executing, or the earliest paint entries are lost.
	if spec.BeforeNavigate != nil {
		if err := spec.BeforeNavigate(page); err != nil {
			return res, fmt.Errorf("instrument page: %w", err)
		}
	}

	o.setState(StateNavigating)
	if err := page.Timeout(o.cfg.NavigationTimeout()).Navigate(spec.URL); err != nil {
		return res, classifyNavError(err)
	}
	if err := page.Timeout(o.cfg.NavigationTimeout()).WaitLoad(); err != nil {
		return res, classifyNavError(err)
	}

	// Network idle is best effort: a chatty page must not stall the run.
	wait := page.Timeout(o.cfg.IdleTimeout()).WaitRequestIdle(300*time.Millisecond, nil, nil, nil)
	wait()

	o.setState(StateStabilizing)
	if spec.LCPSample != nil {
		sample := func() (float64, bool) { return spec.LCPSample(page) }
		if _, ok := Stabilize(ctx, sample, o.cfg.StabilizeInterval(), o.cfg.MaxStabilizeSamples()); !ok {
			o.logger.Debug("no lcp candidate observed during stabilization")
		}
	}

	o.setState(StateHarvesting)
	if info, err := page.Info(); err == nil {
		res.FinalURL = info.URL
	} else {
		o.logger.Warn("final url unavailable", zap.Error(err))
	}
	if spec.Harvest != nil {
		if err := spec.Harvest(page); err != nil {
			return res, fmt.Errorf("harvest telemetry: %w", err)
		}
	}
	if spec.CaptureScreenshot {
		shot, err := page.Screenshot(false, nil)
		if err != nil {
			o.logger.Warn("screenshot failed", zap.Error(err))
		} else {
			res.Screenshot = shot
		}
	}
	return res, nil
}

func (o *Orchestrator) configurePage(page *rod.Page, spec RunSpec) error {
	dev := spec.Device
	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             dev.ViewportWidth,
		Height:            dev.ViewportHeight,
		DeviceScaleFactor: dev.PixelRatio,
		Mobile:            dev.IsTouch,
	}).Call(page); err != nil {
		return fmt.Errorf("set viewport: %w", err)
	}
	if err := (proto.EmulationSetUserAgentOverride{
		UserAgent: dev.UserAgent,
	}).Call(page); err != nil {
		return fmt.Errorf("set user agent: %w", err)
	}
	if dev.IsTouch {
		maxTouchPoints := 5
		if err := (proto.EmulationSetTouchEmulationEnabled{
			Enabled:        true,
			MaxTouchPoints: &maxTouchPoints,
		}).Call(page); err != nil {
			return fmt.Errorf("enable touch: %w", err)
		}
	}

	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		return fmt.Errorf("enable network domain: %w", err)
	}
	net := spec.Network
	// CDP throughput is bytes per second, profiles carry bits per second.
	if err := (proto.NetworkEmulateNetworkConditions{
		Latency:            float64(net.LatencyMs),
		DownloadThroughput: float64(net.DownloadBps) / 8,
		UploadThroughput:   float64(net.UploadBps) / 8,
	}).Call(page); err != nil {
		return fmt.Errorf("throttle network: %w", err)
	}

	sess := spec.Session
	if sess == nil {
		return nil
	}
	if params := cookieParams(sess.Cookies); len(params) > 0 {
		if err := page.SetCookies(params); err != nil {
			return fmt.Errorf("seed cookies: %w", err)
		}
	}
	if len(sess.ExtraHeaders) > 0 {
		if _, err := page.SetExtraHeaders(headerPairs(sess.ExtraHeaders)); err != nil {
			return fmt.Errorf("set extra headers: %w", err)
		}
	}
	if len(sess.Storage.Local) > 0 || len(sess.Storage.Session) > 0 {
		if _, err := page.EvalOnNewDocument(storageSeedScript(sess.Storage)); err != nil {
			return fmt.Errorf("seed web storage: %w", err)
		}
	}
	return nil
}

func classifyNavError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrNavigationTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrNetworkFailure, err)
}

func cookieParams(cookies []session.Cookie) []*proto.NetworkCookieParam {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
		})
	}
	return params
}

// headerPairs flattens headers into the name/value list CDP expects, in a
// stable order.
func headerPairs(headers map[string]string) []string {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	pairs := make([]string, 0, len(headers)*2)
	for _, name := range names {
		pairs = append(pairs, name, headers[name])
	}
	return pairs
}

// storageSeedScript writes the seed into web storage before any page script
// runs. Values are embedded as JSON so no escaping is needed.
func storageSeedScript(seed session.StorageSeed) string {
	local, _ := json.Marshal(seed.Local)
	sess, _ := json.Marshal(seed.Session)
	return fmt.Sprintf(`(() => {
	try {
		Object.entries(%s || {}).forEach(([k, v]) => localStorage.setItem(k, v));
	} catch (e) {}
	try {
		Object.entries(%s || {}).forEach(([k, v]) => sessionStorage.setItem(k, v));
	} catch (e) {}
})()`, local, sess)
}
