package service

import (
	"context"
	"testing"
	"time"

	"github.com/spotbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) (*Ledger, *fakeClock, *SeasonClock) {
	t.Helper()
	clk := &fakeClock{t: at(t, 2025, time.October, 15, 12, 0)}
	seasons := newTestClock(t, clk)
	return NewLedger(openTestStore(t), seasons, testLimits(), discardLogger()), clk, seasons
}

func TestRecordScoringEvent(t *testing.T) {
	ctx := context.Background()
	ledger, _, _ := newTestLedger(t)

	res, err := ledger.RecordScoringEvent(ctx, "C1", "alice", "bob", "m1", "img1", false)
	require.NoError(t, err)
	assert.Equal(t, domain.RecordStored, res)

	res, err = ledger.RecordScoringEvent(ctx, "C1", "alice", "bob", "m1", "img1", false)
	require.NoError(t, err)
	assert.Equal(t, domain.RecordDuplicate, res)

	res, err = ledger.RecordScoringEvent(ctx, "C1", "alice", "alice", "m2", "img2", false)
	require.NoError(t, err)
	assert.Equal(t, domain.RecordSelfIgnored, res)

	board, err := ledger.CurrentLeaderboard(ctx, "C1", domain.BoardSpotters, 0)
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, domain.LeaderboardEntry{Rank: 1, PlayerID: "alice", Points: 1}, board[0])
}

func TestRecordScoringEventRejectsMissingFields(t *testing.T) {
	ledger, _, _ := newTestLedger(t)

	_, err := ledger.RecordScoringEvent(context.Background(), "C1", "alice", "", "m1", "img", false)
	require.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestBonusDoublesOnlySpotterPoints(t *testing.T) {
	ctx := context.Background()
	ledger, _, _ := newTestLedger(t)

	_, err := ledger.RecordScoringEvent(ctx, "C1", "alice", "bob", "m1", "img", true)
	require.NoError(t, err)

	spotters, err := ledger.CurrentLeaderboard(ctx, "C1", domain.BoardSpotters, 0)
	require.NoError(t, err)
	require.Len(t, spotters, 1)
	assert.Equal(t, int64(2), spotters[0].Points)

	spotted, err := ledger.CurrentLeaderboard(ctx, "C1", domain.BoardSpotted, 0)
	require.NoError(t, err)
	require.Len(t, spotted, 1)
	assert.Equal(t, "bob", spotted[0].PlayerID)
	assert.Equal(t, int64(1), spotted[0].Points)
}

func TestLeaderboardOrderingAndLimit(t *testing.T) {
	ctx := context.Background()
	ledger, _, _ := newTestLedger(t)

	spots := []struct{ scorer, target, key string }{
		{"carol", "x", "m1"},
		{"carol", "y", "m2"},
		{"bob", "x", "m3"},
		{"alice", "x", "m4"},
		{"dave", "x", "m5"},
	}
	for _, s := range spots {
		_, err := ledger.RecordScoringEvent(ctx, "C1", s.scorer, s.target, s.key, "img", false)
		require.NoError(t, err)
	}

	board, err := ledger.CurrentLeaderboard(ctx, "C1", domain.BoardSpotters, 3)
	require.NoError(t, err)
	require.Len(t, board, 3)
	assert.Equal(t, "carol", board[0].PlayerID)
	// Ties break by player id.
	assert.Equal(t, "alice", board[1].PlayerID)
	assert.Equal(t, "bob", board[2].PlayerID)
	assert.Equal(t, int64(3), board[2].Rank)
}

func TestLeaderboardIsScopedAndSeasoned(t *testing.T) {
	ctx := context.Background()
	ledger, clk, _ := newTestLedger(t)

	_, err := ledger.RecordScoringEvent(ctx, "C1", "alice", "bob", "m1", "img", false)
	require.NoError(t, err)
	_, err = ledger.RecordScoringEvent(ctx, "C2", "carol", "bob", "m2", "img", false)
	require.NoError(t, err)

	clk.Set(at(t, 2025, time.October, 24, 12, 0))
	_, err = ledger.RecordScoringEvent(ctx, "C1", "bob", "alice", "m3", "img", false)
	require.NoError(t, err)

	current, err := ledger.CurrentLeaderboard(ctx, "C1", domain.BoardSpotters, 0)
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, "bob", current[0].PlayerID)

	previous, err := ledger.Leaderboard(ctx, "C1", "2025-10-09", nil, domain.BoardSpotters, 0)
	require.NoError(t, err)
	require.Len(t, previous, 1)
	assert.Equal(t, "alice", previous[0].PlayerID)

	allTime, err := ledger.AllTimeLeaderboard(ctx, "C1", domain.BoardSpotters, 0)
	require.NoError(t, err)
	assert.Len(t, allTime, 2)
}

func TestManualResetFloorsCurrentBoard(t *testing.T) {
	ctx := context.Background()
	ledger, clk, seasons := newTestLedger(t)

	_, err := ledger.RecordScoringEvent(ctx, "C1", "alice", "bob", "m1", "img", false)
	require.NoError(t, err)

	clk.Set(at(t, 2025, time.October, 16, 9, 0))
	seasons.ApplyManualReset("C1")

	clk.Set(at(t, 2025, time.October, 16, 10, 0))
	_, err = ledger.RecordScoringEvent(ctx, "C1", "carol", "bob", "m2", "img", false)
	require.NoError(t, err)

	board, err := ledger.CurrentLeaderboard(ctx, "C1", domain.BoardSpotters, 0)
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, "carol", board[0].PlayerID)

	allTime, err := ledger.AllTimeLeaderboard(ctx, "C1", domain.BoardSpotters, 0)
	require.NoError(t, err)
	assert.Len(t, allTime, 2)
}

func TestRetractAndInvalidate(t *testing.T) {
	ctx := context.Background()
	ledger, _, _ := newTestLedger(t)

	for _, target := range []string{"bob", "carol"} {
		_, err := ledger.RecordScoringEvent(ctx, "C1", "alice", target, "m1", "img", false)
		require.NoError(t, err)
	}
	_, err := ledger.RecordScoringEvent(ctx, "C1", "dave", "bob", "m2", "img", false)
	require.NoError(t, err)

	n, err := ledger.InvalidateEvent(ctx, "m2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	board, err := ledger.CurrentLeaderboard(ctx, "C1", domain.BoardSpotters, 0)
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, int64(2), board[0].Points)

	// Invalidated records still count as participants.
	participants, err := ledger.Participants(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "carol", "dave"}, participants)

	n, err = ledger.RetractEvent(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	board, err = ledger.CurrentLeaderboard(ctx, "C1", domain.BoardSpotters, 0)
	require.NoError(t, err)
	assert.Empty(t, board)

	// A retracted event can be recorded again.
	res, err := ledger.RecordScoringEvent(ctx, "C1", "alice", "bob", "m1", "img", false)
	require.NoError(t, err)
	assert.Equal(t, domain.RecordStored, res)
}

func TestPlayerStats(t *testing.T) {
	ctx := context.Background()
	ledger, _, _ := newTestLedger(t)

	spots := []struct{ scorer, target, key string }{
		{"alice", "bob", "m1"},
		{"alice", "bob", "m2"},
		{"alice", "carol", "m3"},
		{"bob", "alice", "m4"},
	}
	for _, s := range spots {
		_, err := ledger.RecordScoringEvent(ctx, "C1", s.scorer, s.target, s.key, "img", false)
		require.NoError(t, err)
	}

	stats, err := ledger.PlayerStats(ctx, "C1", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.PointsScored)
	assert.Equal(t, int64(1), stats.PointsAgainst)
	assert.Equal(t, "bob", stats.FavoriteTarget)
	assert.Equal(t, int64(2), stats.FavoriteCount)

	empty, err := ledger.PlayerStats(ctx, "C1", "nobody")
	require.NoError(t, err)
	assert.Zero(t, empty.PointsScored)
	assert.Empty(t, empty.FavoriteTarget)
}

func TestLeaderboardRejectsUnknownBoard(t *testing.T) {
	ledger, _, _ := newTestLedger(t)

	_, err := ledger.AllTimeLeaderboard(context.Background(), "C1", domain.BoardKind("nope"), 0)
	require.ErrorIs(t, err, domain.ErrInvalidRequest)
}
