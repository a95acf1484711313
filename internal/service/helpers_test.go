package service

import (
	"context"
	"io"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spotbot/internal/config"
	"github.com/spotbot/internal/sqlite"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Announce(ctx context.Context, scopeID, text string) error {
	args := m.Called(ctx, scopeID, text)
	return args.Error(0)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func laLocation(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	return loc
}

// at builds a wall-clock instant in the season timezone.
func at(t *testing.T, year int, month time.Month, day, hour, min int) time.Time {
	t.Helper()
	return time.Date(year, month, day, hour, min, 0, 0, laLocation(t))
}

func newTestClock(t *testing.T, now *fakeClock) *SeasonClock {
	t.Helper()
	return NewSeasonClock(at(t, 2025, time.October, 9, 0, 0), 14, now.Now)
}

func openTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "spotbot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testLimits() *config.LeaderboardConfig {
	return &config.LeaderboardConfig{DefaultLimit: 5, MaxLimit: 100}
}

type testEngine struct {
	*Engine
	clock    *fakeClock
	store    *sqlite.Store
	notifier *mockNotifier
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	clk := &fakeClock{t: at(t, 2025, time.October, 15, 12, 0)}
	store := openTestStore(t)
	seasons := newTestClock(t, clk)
	logger := discardLogger()
	notifier := &mockNotifier{}

	engine := NewEngine(
		seasons,
		NewLedger(store, seasons, testLimits(), logger),
		NewBonusAssigner(rand.NewPCG(1, 2)),
		NewRing(store, rand.NewPCG(3, 4), clk.Now, logger),
		notifier,
		logger,
	)
	return &testEngine{Engine: engine, clock: clk, store: store, notifier: notifier}
}
