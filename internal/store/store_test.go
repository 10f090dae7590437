package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagepulse/pagepulse/internal/report"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "reports.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleReport(id string, score int, at time.Time) *report.AnalysisReport {
	return &report.AnalysisReport{
		ID:          id,
		URL:         "https://example.com/",
		FinalURL:    "https://example.com/",
		Score:       score,
		GeneratedAt: at,
	}
}

func TestSaveAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rep := sampleReport("r-1", 87, time.Now().UTC())
	require.NoError(t, s.Save(ctx, rep))

	got, err := s.Get(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, rep.ID, got.ID)
	assert.Equal(t, rep.Score, got.Score)
	assert.Equal(t, rep.URL, got.URL)
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveIsIdempotentPerID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, sampleReport("r-1", 50, time.Now().UTC())))
	require.NoError(t, s.Save(ctx, sampleReport("r-1", 75, time.Now().UTC())))

	got, err := s.Get(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, 75, got.Score)

	entries, err := s.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestListNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, s.Save(ctx, sampleReport(id, 60+i, base.Add(time.Duration(i)*time.Hour))))
	}

	entries, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "new", entries[0].ID)
	assert.Equal(t, "mid", entries[1].ID)
}

func TestListEmpty(t *testing.T) {
	s := openTestStore(t)
	entries, err := s.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
