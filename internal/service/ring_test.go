package service

import (
	"context"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/spotbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRing(t *testing.T) *Ring {
	t.Helper()
	clk := &fakeClock{t: time.Date(2025, time.October, 15, 20, 0, 0, 0, time.UTC)}
	return NewRing(openTestStore(t), rand.NewPCG(5, 6), clk.Now, discardLogger())
}

// assertSingleCycle checks that following targets from any active player
// visits every active player exactly once.
func assertSingleCycle(t *testing.T, players []domain.RingPlayer) {
	t.Helper()
	require.NotEmpty(t, players)

	targets := make(map[string]string, len(players))
	for _, p := range players {
		require.True(t, p.Active)
		targets[p.PlayerID] = p.TargetID
	}

	start := players[0].PlayerID
	visited := map[string]bool{}
	cur := start
	for i := 0; i < len(players); i++ {
		require.False(t, visited[cur], "player %s visited twice", cur)
		visited[cur] = true
		next, ok := targets[cur]
		require.True(t, ok, "target %s is not active", cur)
		require.NotEqual(t, cur, next)
		cur = next
	}
	assert.Equal(t, start, cur)
	assert.Len(t, visited, len(players))
}

func TestStartRequiresThreeDistinctPlayers(t *testing.T) {
	ring := newTestRing(t)

	_, err := ring.Start(context.Background(), "C1", []string{"a", "b", "b", ""})
	require.ErrorIs(t, err, domain.ErrInsufficientPlayers)
}

func TestStartBuildsSingleCycle(t *testing.T) {
	ctx := context.Background()
	ring := newTestRing(t)

	started, err := ring.Start(ctx, "C1", []string{"a", "b", "c", "d", "e", "a"})
	require.NoError(t, err)
	assert.Len(t, started, 5)

	active, err := ring.ListActive(ctx, "C1")
	require.NoError(t, err)
	require.Len(t, active, 5)
	assertSingleCycle(t, active)
}

func TestStartRejectsRunningGame(t *testing.T) {
	ctx := context.Background()
	ring := newTestRing(t)

	_, err := ring.Start(ctx, "C1", []string{"a", "b", "c"})
	require.NoError(t, err)

	_, err = ring.Start(ctx, "C1", []string{"x", "y", "z"})
	require.ErrorIs(t, err, domain.ErrAlreadyActive)

	// Other scopes are independent.
	_, err = ring.Start(ctx, "C2", []string{"x", "y", "z"})
	require.NoError(t, err)
}

func TestCurrentTarget(t *testing.T) {
	ctx := context.Background()
	ring := newTestRing(t)

	_, err := ring.CurrentTarget(ctx, "C1", "a")
	require.ErrorIs(t, err, domain.ErrNotAPlayer)

	_, err = ring.Start(ctx, "C1", []string{"a", "b", "c", "d"})
	require.NoError(t, err)

	target, err := ring.CurrentTarget(ctx, "C1", "a")
	require.NoError(t, err)
	assert.NotEqual(t, "a", target)

	_, err = ring.Eliminate(ctx, domain.EliminationClaim{ScopeID: "C1", KillerID: "a", VictimID: target, EvidenceRef: "photo"})
	require.NoError(t, err)

	_, err = ring.CurrentTarget(ctx, "C1", target)
	require.ErrorIs(t, err, domain.ErrAlreadyEliminated)
}

func TestEliminateContinuesAndKeepsCycle(t *testing.T) {
	ctx := context.Background()
	ring := newTestRing(t)

	_, err := ring.Start(ctx, "C1", []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)

	victim, err := ring.CurrentTarget(ctx, "C1", "a")
	require.NoError(t, err)
	victimTarget, err := ring.CurrentTarget(ctx, "C1", victim)
	require.NoError(t, err)

	outcome, err := ring.Eliminate(ctx, domain.EliminationClaim{ScopeID: "C1", KillerID: "a", VictimID: victim, EvidenceRef: "photo"})
	require.NoError(t, err)
	assert.Equal(t, domain.Outcome{Kind: domain.OutcomeContinue, PlayerID: victimTarget}, outcome)

	active, err := ring.ListActive(ctx, "C1")
	require.NoError(t, err)
	require.Len(t, active, 4)
	assertSingleCycle(t, active)

	events, err := ring.ListEliminated(ctx, "C1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "a", events[0].KillerID)
	assert.Equal(t, victim, events[0].VictimID)

	kills, err := ring.TopKills(ctx, "C1", 0)
	require.NoError(t, err)
	require.NotEmpty(t, kills)
	assert.Equal(t, "a", kills[0].PlayerID)
	assert.Equal(t, 1, kills[0].KillCount)
}

func TestEliminateRejections(t *testing.T) {
	ctx := context.Background()
	ring := newTestRing(t)

	_, err := ring.Start(ctx, "C1", []string{"a", "b", "c", "d"})
	require.NoError(t, err)
	target, err := ring.CurrentTarget(ctx, "C1", "a")
	require.NoError(t, err)

	var notTarget string
	for _, id := range []string{"b", "c", "d"} {
		if id != target {
			notTarget = id
			break
		}
	}

	tests := []struct {
		name  string
		claim domain.EliminationClaim
		want  error
	}{
		{"missing evidence", domain.EliminationClaim{ScopeID: "C1", KillerID: "a", VictimID: target}, domain.ErrMissingEvidence},
		{"killer not in game", domain.EliminationClaim{ScopeID: "C1", KillerID: "zed", VictimID: target, EvidenceRef: "p"}, domain.ErrNotAPlayer},
		{"wrong target", domain.EliminationClaim{ScopeID: "C1", KillerID: "a", VictimID: notTarget, EvidenceRef: "p"}, domain.ErrWrongTarget},
		{"victim not in game", domain.EliminationClaim{ScopeID: "C1", KillerID: "a", VictimID: "zed", EvidenceRef: "p"}, domain.ErrWrongTarget},
		{"other scope", domain.EliminationClaim{ScopeID: "C9", KillerID: "a", VictimID: target, EvidenceRef: "p"}, domain.ErrNotAPlayer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ring.Eliminate(ctx, tt.claim)
			require.ErrorIs(t, err, tt.want)
		})
	}

	// Nothing changed.
	active, err := ring.ListActive(ctx, "C1")
	require.NoError(t, err)
	assert.Len(t, active, 4)
}

func TestEliminateTwiceFailsSecondTime(t *testing.T) {
	ctx := context.Background()
	ring := newTestRing(t)

	_, err := ring.Start(ctx, "C1", []string{"a", "b", "c", "d"})
	require.NoError(t, err)
	victim, err := ring.CurrentTarget(ctx, "C1", "a")
	require.NoError(t, err)

	claim := domain.EliminationClaim{ScopeID: "C1", KillerID: "a", VictimID: victim, EvidenceRef: "photo"}
	_, err = ring.Eliminate(ctx, claim)
	require.NoError(t, err)

	_, err = ring.Eliminate(ctx, claim)
	require.ErrorIs(t, err, domain.ErrVictimAlreadyEliminated)
	assert.True(t, domain.IsStateConflict(err))

	// The eliminated player can no longer hunt.
	victimTarget := ""
	active, err := ring.ListActive(ctx, "C1")
	require.NoError(t, err)
	for _, p := range active {
		if p.PlayerID != "a" {
			victimTarget = p.PlayerID
			break
		}
	}
	_, err = ring.Eliminate(ctx, domain.EliminationClaim{ScopeID: "C1", KillerID: victim, VictimID: victimTarget, EvidenceRef: "p"})
	require.ErrorIs(t, err, domain.ErrKillerEliminated)
}

func TestConcurrentDuplicateClaimsSucceedOnce(t *testing.T) {
	ctx := context.Background()
	ring := newTestRing(t)

	_, err := ring.Start(ctx, "C1", []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	victim, err := ring.CurrentTarget(ctx, "C1", "a")
	require.NoError(t, err)
	claim := domain.EliminationClaim{ScopeID: "C1", KillerID: "a", VictimID: victim, EvidenceRef: "photo"}

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ring.Eliminate(ctx, claim)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrVictimAlreadyEliminated)
	}
	assert.Equal(t, 1, succeeded)

	active, err := ring.ListActive(ctx, "C1")
	require.NoError(t, err)
	assertSingleCycle(t, active)
}

func TestThreePlayerGameToWin(t *testing.T) {
	ctx := context.Background()
	ring := newTestRing(t)

	_, err := ring.Start(ctx, "C1", []string{"a", "b", "c"})
	require.NoError(t, err)

	first, err := ring.CurrentTarget(ctx, "C1", "a")
	require.NoError(t, err)
	outcome, err := ring.Eliminate(ctx, domain.EliminationClaim{ScopeID: "C1", KillerID: "a", VictimID: first, EvidenceRef: "p1"})
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeContinue, outcome.Kind)

	second := outcome.PlayerID
	outcome, err = ring.Eliminate(ctx, domain.EliminationClaim{ScopeID: "C1", KillerID: "a", VictimID: second, EvidenceRef: "p2"})
	require.NoError(t, err)
	assert.Equal(t, domain.Outcome{Kind: domain.OutcomeWin, PlayerID: "a"}, outcome)

	active, err := ring.ListActive(ctx, "C1")
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = ring.CurrentTarget(ctx, "C1", "a")
	require.ErrorIs(t, err, domain.ErrNotAPlayer)

	events, err := ring.ListEliminated(ctx, "C1")
	require.NoError(t, err)
	assert.Len(t, events, 2)

	// A new game can start right away and clears the old log.
	_, err = ring.Start(ctx, "C1", []string{"a", "b", "c"})
	require.NoError(t, err)
	events, err = ring.ListEliminated(ctx, "C1")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestAbort(t *testing.T) {
	ctx := context.Background()
	ring := newTestRing(t)

	running, err := ring.Abort(ctx, "C1")
	require.NoError(t, err)
	assert.False(t, running)

	_, err = ring.Start(ctx, "C1", []string{"a", "b", "c"})
	require.NoError(t, err)

	running, err = ring.Abort(ctx, "C1")
	require.NoError(t, err)
	assert.True(t, running)

	active, err := ring.ListActive(ctx, "C1")
	require.NoError(t, err)
	assert.Empty(t, active)
}
