package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spotbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func containing(sub string) any {
	return mock.MatchedBy(func(text string) bool { return strings.Contains(text, sub) })
}

func TestSpotRecordsEachTarget(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	res, err := e.Spot(ctx, domain.SpotEvent{
		ScopeID:  "C1",
		ScorerID: "alice",
		Targets:  []string{"bob", "carol", "alice", "bob"},
		EventKey: "m1",
		ImageRef: "img",
	})
	require.NoError(t, err)
	assert.Equal(t, "2025-10-09", res.SeasonID)
	require.Len(t, res.Targets, 3)
	assert.Equal(t, domain.RecordStored, res.Targets[0].Result)
	assert.Equal(t, 1, res.Targets[0].Points)
	assert.Equal(t, domain.RecordSelfIgnored, res.Targets[2].Result)
	assert.Equal(t, 2, res.Recorded())

	replay, err := e.Spot(ctx, domain.SpotEvent{
		ScopeID: "C1", ScorerID: "alice", Targets: []string{"bob"}, EventKey: "m1", ImageRef: "img",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RecordDuplicate, replay.Targets[0].Result)

	board, err := e.Leaderboard(ctx, "C1", domain.BoardSpotters, 0, false)
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, int64(2), board[0].Points)
}

func TestSpotRequiresImage(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Spot(context.Background(), domain.SpotEvent{
		ScopeID: "C1", ScorerID: "alice", Targets: []string{"bob"}, EventKey: "m1",
	})
	require.ErrorIs(t, err, domain.ErrMissingEvidence)

	_, err = e.Spot(context.Background(), domain.SpotEvent{
		ScopeID: "C1", ScorerID: "alice", EventKey: "m1", ImageRef: "img",
	})
	require.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestSpotAppliesBonus(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	e.notifier.On("Announce", mock.Anything, "C1", containing("bonus targets")).Return(nil).Once()

	_, err := e.Spot(ctx, domain.SpotEvent{ScopeID: "C1", ScorerID: "alice", Targets: []string{"bob"}, EventKey: "m1", ImageRef: "img"})
	require.NoError(t, err)

	drawn, err := e.RegenerateBonuses(ctx)
	require.NoError(t, err)
	require.Len(t, drawn, 1)
	assert.ElementsMatch(t, []string{"alice", "bob"}, drawn[0].Players[:])
	assert.Equal(t, "2025-10-15", drawn[0].Day)

	res, err := e.Spot(ctx, domain.SpotEvent{ScopeID: "C1", ScorerID: "carol", Targets: []string{"bob"}, EventKey: "m2", ImageRef: "img"})
	require.NoError(t, err)
	require.Len(t, res.Targets, 1)
	assert.True(t, res.Targets[0].Bonus)
	assert.Equal(t, 2, res.Targets[0].Points)

	e.notifier.AssertExpectations(t)
}

func TestRegenerateBonusesSkipsSmallScopes(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	// A self spot records nothing, so C1 has no participants at all.
	_, err := e.Spot(ctx, domain.SpotEvent{ScopeID: "C1", ScorerID: "alice", Targets: []string{"alice"}, EventKey: "m1", ImageRef: "img"})
	require.NoError(t, err)

	drawn, err := e.RegenerateBonuses(ctx)
	require.NoError(t, err)
	assert.Empty(t, drawn)
	e.notifier.AssertNotCalled(t, "Announce", mock.Anything, mock.Anything, mock.Anything)
}

func TestResetSeasonAnnouncesAndFloors(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	e.notifier.On("Announce", mock.Anything, "C1", containing("reset")).Return(errors.New("chat down")).Once()

	_, err := e.Spot(ctx, domain.SpotEvent{ScopeID: "C1", ScorerID: "alice", Targets: []string{"bob"}, EventKey: "m1", ImageRef: "img"})
	require.NoError(t, err)

	e.clock.Set(at(t, 2025, time.October, 16, 8, 0))
	resetAt, err := e.ResetSeason(ctx, "C1")
	require.NoError(t, err, "announcement failures never fail the operation")
	assert.True(t, resetAt.Equal(e.clock.Now()))

	board, err := e.Leaderboard(ctx, "C1", domain.BoardSpotters, 0, false)
	require.NoError(t, err)
	assert.Empty(t, board)

	info := e.Season("C1")
	require.NotNil(t, info.ManualReset)
	e.notifier.AssertExpectations(t)
}

func TestRolloverAnnouncesWinnerAndClearsResets(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	e.notifier.On("Announce", mock.Anything, "C1", containing("reset")).Return(nil).Once()
	e.notifier.On("Announce", mock.Anything, "C1", containing("Top spotter: carol with 2 points")).Return(nil).Once()

	spot := func(scorer, target, key string) {
		_, err := e.Spot(ctx, domain.SpotEvent{ScopeID: "C1", ScorerID: scorer, Targets: []string{target}, EventKey: key, ImageRef: "img"})
		require.NoError(t, err)
	}
	spot("alice", "bob", "m1")
	spot("alice", "dave", "m2")
	spot("alice", "erin", "m3")

	e.clock.Set(at(t, 2025, time.October, 17, 9, 0))
	_, err := e.ResetSeason(ctx, "C1")
	require.NoError(t, err)

	e.clock.Set(at(t, 2025, time.October, 18, 9, 0))
	spot("carol", "bob", "m4")
	spot("carol", "dave", "m5")

	e.clock.Set(at(t, 2025, time.October, 23, 0, 5))
	report, err := e.Rollover(ctx)
	require.NoError(t, err)

	assert.Equal(t, "2025-10-09", report.ClosedSeasonID)
	assert.Equal(t, "2025-10-23", report.NewSeasonID)
	require.Len(t, report.Scopes, 1)
	assert.Equal(t, "carol", report.Scopes[0].WinnerID)
	assert.Equal(t, int64(2), report.Scopes[0].Points)

	_, ok := e.Clock().ManualReset("C1")
	assert.False(t, ok)
	e.notifier.AssertExpectations(t)
}

func TestRolloverWithNoRecordsDoesNothing(t *testing.T) {
	e := newTestEngine(t)

	report, err := e.Rollover(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Scopes)
	e.notifier.AssertNotCalled(t, "Announce", mock.Anything, mock.Anything, mock.Anything)
}

func TestRingThroughEngine(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	e.notifier.On("Announce", mock.Anything, "C1", containing("has started with 3 players")).Return(nil).Once()
	e.notifier.On("Announce", mock.Anything, "C1", containing("has been eliminated")).Return(nil).Once()
	e.notifier.On("Announce", mock.Anything, "C1", containing("wins the game")).Return(nil).Once()

	_, err := e.StartRing(ctx, "C1", []string{"a", "b", "c"})
	require.NoError(t, err)

	first, err := e.CurrentTarget(ctx, "C1", "a")
	require.NoError(t, err)
	outcome, err := e.Eliminate(ctx, domain.EliminationClaim{ScopeID: "C1", KillerID: "a", VictimID: first, EvidenceRef: "p"})
	require.NoError(t, err)

	_, err = e.Eliminate(ctx, domain.EliminationClaim{ScopeID: "C1", KillerID: "a", VictimID: first, EvidenceRef: "p"})
	require.ErrorIs(t, err, domain.ErrVictimAlreadyEliminated)

	outcome, err = e.Eliminate(ctx, domain.EliminationClaim{ScopeID: "C1", KillerID: "a", VictimID: outcome.PlayerID, EvidenceRef: "p"})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeWin, outcome.Kind)

	running, err := e.AbortRing(ctx, "C1")
	require.NoError(t, err)
	assert.False(t, running)

	e.notifier.AssertExpectations(t)
}
