//go:build integration

package browser_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/pagepulse/pagepulse/internal/browser"
	"github.com/pagepulse/pagepulse/internal/collector"
	"github.com/pagepulse/pagepulse/internal/profile"
	"github.com/pagepulse/pagepulse/internal/session"
)

func TestOrchestrator_Run_Integration(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "<html><body><h1>Hello World</h1></body></html>")
	}))
	defer ts.Close()

	cfg := browser.DefaultConfig()
	cfg.NavigationTimeoutMs = 10000
	cfg.IdleTimeoutMs = 3000
	cfg.StabilizeIntervalMs = 100
	cfg.StabilizeMaxSamples = 4

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	device, network := profile.Resolve("desktop", "wifi")

	coll := collector.New(nil)
	var raw *collector.RawSamples

	orch := browser.New(cfg, nil)
	res, err := orch.Run(ctx, browser.RunSpec{
		URL:     ts.URL,
		Device:  device,
		Network: network,
		BeforeNavigate: func(page *rod.Page) error {
			return coll.Install(page)
		},
		LCPSample: func(page *rod.Page) (float64, bool) {
			return coll.CurrentLCPCandidate(page)
		},
		Harvest: func(page *rod.Page) error {
			var herr error
			raw, herr = coll.Harvest(page)
			return herr
		},
		CaptureScreenshot: true,
	})
	require.NoError(t, err)
	require.Equal(t, browser.StateTornDown, orch.State())

	require.NotEmpty(t, res.FinalURL)
	require.NotEmpty(t, res.Screenshot)
	require.NotNil(t, raw)
	require.NotNil(t, raw.FCP, "a rendered page must produce a first paint")
}

func TestOrchestrator_Run_SeedsSession_Integration(t *testing.T) {
	var gotCookie string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("sid"); err == nil {
			gotCookie = c.Value
		}
		fmt.Fprintln(w, "<html><body>ok</body></html>")
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	device, network := profile.Resolve("desktop", "wifi")

	orch := browser.New(browser.DefaultConfig(), nil)
	_, err := orch.Run(ctx, browser.RunSpec{
		URL:     ts.URL,
		Device:  device,
		Network: network,
		Session: &session.Context{
			Cookies: []session.Cookie{{Name: "sid", Value: "s3cret", Domain: "127.0.0.1", Path: "/"}},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "s3cret", gotCookie)
}

// Both servers share the host 127.0.0.1, so a cookie seeded into one run
// would be presented to the other if the runs shared a browser context.
func TestOrchestrator_ConcurrentRunsShareNothing_Integration(t *testing.T) {
	var mu sync.Mutex
	seenByA := map[string]string{}
	var leakedToB []string

	tsA := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		for _, c := range r.Cookies() {
			seenByA[c.Name] = c.Value
		}
		mu.Unlock()
		fmt.Fprintln(w, "<html><body><h1>site A</h1></body></html>")
	}))
	defer tsA.Close()

	tsB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		for _, c := range r.Cookies() {
			leakedToB = append(leakedToB, c.Name)
		}
		mu.Unlock()
		fmt.Fprintln(w, "<html><body><h1>site B</h1></body></html>")
	}))
	defer tsB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	device, network := profile.Resolve("desktop", "wifi")

	run := func(ctx context.Context, url string, sess *session.Context) (browser.RunResult, *collector.RawSamples, error) {
		coll := collector.New(nil)
		var raw *collector.RawSamples
		orch := browser.New(browser.DefaultConfig(), nil)
		res, err := orch.Run(ctx, browser.RunSpec{
			URL:     url,
			Device:  device,
			Network: network,
			Session: sess,
			BeforeNavigate: func(page *rod.Page) error {
				return coll.Install(page)
			},
			Harvest: func(page *rod.Page) error {
				var herr error
				raw, herr = coll.Harvest(page)
				return herr
			},
		})
		return res, raw, err
	}

	var (
		resA, resB browser.RunResult
		rawA, rawB *collector.RawSamples
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		resA, rawA, err = run(gctx, tsA.URL, &session.Context{
			Cookies: []session.Cookie{{Name: "sid", Value: "only-for-a", Domain: "127.0.0.1", Path: "/"}},
		})
		return err
	})
	g.Go(func() error {
		var err error
		resB, rawB, err = run(gctx, tsB.URL, nil)
		return err
	})
	require.NoError(t, g.Wait())

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "only-for-a", seenByA["sid"])
	require.Empty(t, leakedToB, "unauthenticated run must never present the other run's cookies")

	require.Contains(t, resA.FinalURL, tsA.URL)
	require.Contains(t, resB.FinalURL, tsB.URL)
	require.NotNil(t, rawA)
	require.NotNil(t, rawB)
}
