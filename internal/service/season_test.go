package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeasonIDBoundaries(t *testing.T) {
	clk := &fakeClock{}
	seasons := newTestClock(t, clk)

	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"anchor instant", at(t, 2025, time.October, 9, 0, 0), "2025-10-09"},
		{"mid season", at(t, 2025, time.October, 20, 15, 30), "2025-10-09"},
		{"last minute of season", at(t, 2025, time.October, 22, 23, 59), "2025-10-09"},
		{"next season start", at(t, 2025, time.October, 23, 0, 0), "2025-10-23"},
		{"day before anchor", at(t, 2025, time.October, 8, 12, 0), "2025-09-25"},
		{"across dst fall back", at(t, 2025, time.November, 5, 23, 30), "2025-10-23"},
		{"first season after dst", at(t, 2025, time.November, 6, 0, 0), "2025-11-06"},
		{"before dst spring forward boundary", at(t, 2026, time.March, 11, 23, 30), "2026-02-26"},
		{"after dst spring forward", at(t, 2026, time.March, 12, 0, 0), "2026-03-12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, seasons.SeasonID(tt.at))
		})
	}
}

func TestSeasonIDIgnoresInputZone(t *testing.T) {
	clk := &fakeClock{}
	seasons := newTestClock(t, clk)

	// 2025-10-23 06:30 UTC is still 2025-10-22 in Los Angeles.
	utc := time.Date(2025, time.October, 23, 6, 30, 0, 0, time.UTC)
	assert.Equal(t, "2025-10-09", seasons.SeasonID(utc))
	assert.Equal(t, "2025-10-23", seasons.SeasonID(utc.Add(time.Hour)))
}

func TestSeasonIDIsConstantWithinSeason(t *testing.T) {
	clk := &fakeClock{}
	seasons := newTestClock(t, clk)

	start := at(t, 2025, time.October, 23, 0, 0)
	for h := 0; h < 14*24; h += 7 {
		assert.Equal(t, "2025-10-23", seasons.SeasonID(start.Add(time.Duration(h)*time.Hour)))
	}
}

func TestPreviousSeasonID(t *testing.T) {
	clk := &fakeClock{}
	seasons := newTestClock(t, clk)

	prev, err := seasons.PreviousSeasonID("2025-10-23")
	require.NoError(t, err)
	assert.Equal(t, "2025-10-09", prev)

	prev, err = seasons.PreviousSeasonID("2025-11-06")
	require.NoError(t, err)
	assert.Equal(t, "2025-10-23", prev)

	_, err = seasons.PreviousSeasonID("not-a-date")
	require.Error(t, err)
}

func TestManualResetLifecycle(t *testing.T) {
	clk := &fakeClock{t: at(t, 2025, time.October, 15, 9, 0)}
	seasons := newTestClock(t, clk)

	_, ok := seasons.ManualReset("C1")
	assert.False(t, ok)

	applied := seasons.ApplyManualReset("C1")
	assert.True(t, applied.Equal(clk.Now()))

	got, ok := seasons.ManualReset("C1")
	require.True(t, ok)
	assert.True(t, got.Equal(applied))

	info := seasons.Info("C1")
	assert.Equal(t, "2025-10-09", info.SeasonID)
	require.NotNil(t, info.ManualReset)
	assert.Equal(t, "2025-10-23", info.EndsAt.Format(DateLayout))

	seasons.ClearAllManualResets()
	_, ok = seasons.ManualReset("C1")
	assert.False(t, ok)
}

func TestRestoreManualResetsDropsStaleFloors(t *testing.T) {
	clk := &fakeClock{t: at(t, 2025, time.October, 25, 9, 0)}
	seasons := newTestClock(t, clk)

	n := seasons.RestoreManualResets(map[string]time.Time{
		"stale":   at(t, 2025, time.October, 20, 9, 0),
		"current": at(t, 2025, time.October, 24, 9, 0),
	})

	assert.Equal(t, 1, n)
	_, ok := seasons.ManualReset("stale")
	assert.False(t, ok)
	_, ok = seasons.ManualReset("current")
	assert.True(t, ok)
}
