package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestAnalyze_RejectsInvalidInput(t *testing.T) {
	e := New(DefaultConfig(), nil)
	ctx := context.Background()

	cases := []struct {
		name string
		url  string
	}{
		{"empty", ""},
		{"no scheme", "example.com"},
		{"bad scheme", "ftp://example.com"},
		{"scheme only", "https://"},
		{"garbage", "http://%zz"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rep, err := e.Analyze(ctx, Request{URL: tc.url})
			assert.Nil(t, rep)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestValidateURL_AcceptsHTTPAndHTTPS(t *testing.T) {
	for _, raw := range []string{"https://example.com/path?q=1", "http://localhost:8080"} {
		u, err := ValidateURL(raw)
		assert.NoError(t, err, raw)
		assert.NotNil(t, u)
	}
}

func TestConfigDefaults(t *testing.T) {
	var zero Config
	assert.Equal(t, 90*time.Second, zero.RequestTimeout())

	cfg := DefaultConfig()
	assert.Equal(t, 90*time.Second, cfg.RequestTimeout())
	assert.True(t, cfg.Browser.Headless)

	cfg.RequestTimeoutMs = 1000
	assert.Equal(t, time.Second, cfg.RequestTimeout())
}
