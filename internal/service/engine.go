// Package service holds the game logic: season windows, the score ledger,
// daily bonus pairs, the elimination ring and the engine that ties them to
// announcements.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spotbot/internal/domain"
	"github.com/spotbot/internal/metrics"
)

// Notifier delivers a user-facing announcement to a scope.
type Notifier interface {
	Announce(ctx context.Context, scopeID, text string) error
}

// StateCache persists the in-memory parts of engine state across restarts.
type StateCache interface {
	SaveBonus(ctx context.Context, a domain.BonusAssignment) error
	LoadBonuses(ctx context.Context, day string) ([]domain.BonusAssignment, error)
	SaveManualReset(ctx context.Context, scopeID string, at time.Time) error
	LoadManualResets(ctx context.Context) (map[string]time.Time, error)
	ClearManualResets(ctx context.Context) error
}

// Engine is the entry point for inbound events and admin actions.
type Engine struct {
	clock    *SeasonClock
	ledger   *Ledger
	bonus    *BonusAssigner
	ring     *Ring
	notifier Notifier
	cache    StateCache
	metrics  *metrics.Recorder
	logger   *slog.Logger
}

// NewEngine creates a new engine
func NewEngine(
	clock *SeasonClock,
	ledger *Ledger,
	bonus *BonusAssigner,
	ring *Ring,
	notifier Notifier,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		clock:    clock,
		ledger:   ledger,
		bonus:    bonus,
		ring:     ring,
		notifier: notifier,
		logger:   logger,
	}
}

// SetCache attaches a state cache after construction
func (e *Engine) SetCache(cache StateCache) {
	e.cache = cache
}

// SetMetrics attaches a metrics recorder after construction
func (e *Engine) SetMetrics(rec *metrics.Recorder) {
	e.metrics = rec
}

// Clock exposes the season clock
func (e *Engine) Clock() *SeasonClock {
	return e.clock
}

// Spot records one message that mentions one or more players. Each target is
// its own record; on a storage error the results gathered so far are
// returned with the error.
func (e *Engine) Spot(ctx context.Context, ev domain.SpotEvent) (domain.SpotResult, error) {
	result := domain.SpotResult{SeasonID: e.clock.CurrentSeasonID()}

	if ev.ScopeID == "" || ev.ScorerID == "" || ev.EventKey == "" {
		e.metrics.RecordSpot(metrics.ResultRejected)
		return result, fmt.Errorf("scope, scorer and event key are required: %w", domain.ErrInvalidRequest)
	}
	targets := distinctInOrder(ev.Targets)
	if len(targets) == 0 {
		e.metrics.RecordSpot(metrics.ResultRejected)
		return result, fmt.Errorf("at least one target is required: %w", domain.ErrInvalidRequest)
	}
	if ev.ImageRef == "" {
		e.metrics.RecordSpot(metrics.ResultRejected)
		return result, domain.ErrMissingEvidence
	}

	for _, target := range targets {
		bonus := e.bonus.IsBonusTarget(ev.ScopeID, target)
		res, err := e.ledger.RecordScoringEvent(ctx, ev.ScopeID, ev.ScorerID, target, ev.EventKey, ev.ImageRef, bonus)
		if err != nil {
			e.metrics.RecordSpot(metrics.ResultError)
			return result, err
		}
		e.metrics.RecordSpot(string(res))

		tr := domain.SpotTargetResult{TargetID: target, Result: res}
		if res == domain.RecordStored {
			tr.Bonus = bonus
			tr.Points = SpotterPoints
			if bonus {
				tr.Points = BonusSpotterPoints
			}
		}
		result.Targets = append(result.Targets, tr)
	}

	e.logger.Debug("spot processed",
		"scope_id", ev.ScopeID,
		"event_key", ev.EventKey,
		"recorded", result.Recorded(),
	)
	return result, nil
}

// Retract removes an event's records, e.g. when the source message is
// deleted.
func (e *Engine) Retract(ctx context.Context, eventKey string) (int64, error) {
	return e.ledger.RetractEvent(ctx, eventKey)
}

// Invalidate excludes an event's records from aggregations.
func (e *Engine) Invalidate(ctx context.Context, eventKey string) (int64, error) {
	return e.ledger.InvalidateEvent(ctx, eventKey)
}

// Leaderboard returns the current-season board, or the all-time board when
// allTime is set.
func (e *Engine) Leaderboard(ctx context.Context, scopeID string, board domain.BoardKind, limit int, allTime bool) ([]domain.LeaderboardEntry, error) {
	if allTime {
		return e.ledger.AllTimeLeaderboard(ctx, scopeID, board, limit)
	}
	return e.ledger.CurrentLeaderboard(ctx, scopeID, board, limit)
}

// PlayerStats returns one player's all-time totals.
func (e *Engine) PlayerStats(ctx context.Context, scopeID, playerID string) (domain.PlayerStats, error) {
	return e.ledger.PlayerStats(ctx, scopeID, playerID)
}

// Season describes the running season for a scope.
func (e *Engine) Season(scopeID string) domain.SeasonInfo {
	return e.clock.Info(scopeID)
}

// Bonus returns the scope's current bonus pair.
func (e *Engine) Bonus(scopeID string) (domain.BonusAssignment, bool) {
	return e.bonus.Assignment(scopeID)
}

// ResetSeason floors the scope's current-season board at now.
func (e *Engine) ResetSeason(ctx context.Context, scopeID string) (time.Time, error) {
	if scopeID == "" {
		return time.Time{}, fmt.Errorf("scope id is required: %w", domain.ErrInvalidRequest)
	}
	at := e.clock.ApplyManualReset(scopeID)
	if e.cache != nil {
		if err := e.cache.SaveManualReset(ctx, scopeID, at); err != nil {
			e.logger.Warn("failed to persist manual reset", "scope_id", scopeID, "error", err)
		}
	}
	e.logger.Info("season manually reset", "scope_id", scopeID, "at", at)
	e.announce(ctx, scopeID, "The season leaderboard has been reset. Every spot from now on counts!")
	return at, nil
}

// Rollover closes the previous season: it announces each scope's winner,
// then clears every manual reset. A failing scope is reported and skipped.
func (e *Engine) Rollover(ctx context.Context) (domain.RolloverReport, error) {
	current := e.clock.CurrentSeasonID()
	previous, err := e.clock.PreviousSeasonID(current)
	if err != nil {
		return domain.RolloverReport{}, err
	}
	report := domain.RolloverReport{ClosedSeasonID: previous, NewSeasonID: current}

	scopes, err := e.ledger.ScopesInSeason(ctx, previous)
	if err != nil {
		return report, fmt.Errorf("listing scopes for rollover: %w", err)
	}

	for _, scopeID := range scopes {
		outcome := domain.ScopeRollover{ScopeID: scopeID}

		var floor *time.Time
		if at, ok := e.clock.ManualReset(scopeID); ok {
			floor = &at
		}
		top, err := e.ledger.Leaderboard(ctx, scopeID, previous, floor, domain.BoardSpotters, 1)
		if err != nil {
			e.logger.Error("failed to compute season winner", "scope_id", scopeID, "error", err)
			outcome.Error = err.Error()
			report.Scopes = append(report.Scopes, outcome)
			continue
		}

		text := fmt.Sprintf("Season %s is over and season %s has begun!", previous, current)
		if len(top) > 0 {
			outcome.WinnerID = top[0].PlayerID
			outcome.Points = top[0].Points
			text = fmt.Sprintf("Season %s is over! Top spotter: %s with %d points. Season %s has begun!",
				previous, outcome.WinnerID, outcome.Points, current)
		}
		e.announce(ctx, scopeID, text)
		report.Scopes = append(report.Scopes, outcome)
	}

	e.clock.ClearAllManualResets()
	if e.cache != nil {
		if err := e.cache.ClearManualResets(ctx); err != nil {
			e.logger.Warn("failed to clear cached manual resets", "error", err)
		}
	}
	e.metrics.RecordRollover()

	e.logger.Info("season rolled over",
		"closed_season", previous,
		"new_season", current,
		"scopes", len(report.Scopes),
	)
	return report, nil
}

// RegenerateBonuses draws a new bonus pair for every scope with at least two
// participants.
func (e *Engine) RegenerateBonuses(ctx context.Context) ([]domain.BonusAssignment, error) {
	scopes, err := e.ledger.Scopes(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing scopes for bonus draw: %w", err)
	}

	now := e.clock.Now()
	day := e.clock.Day(now)
	var drawn []domain.BonusAssignment
	for _, scopeID := range scopes {
		participants, err := e.ledger.Participants(ctx, scopeID)
		if err != nil {
			e.logger.Error("failed to list participants", "scope_id", scopeID, "error", err)
			continue
		}
		a, ok := e.bonus.Regenerate(scopeID, participants, day, now)
		if !ok {
			continue
		}
		drawn = append(drawn, a)
		e.metrics.RecordBonusPair()

		if e.cache != nil {
			if err := e.cache.SaveBonus(ctx, a); err != nil {
				e.logger.Warn("failed to persist bonus pair", "scope_id", scopeID, "error", err)
			}
		}
		e.announce(ctx, scopeID, fmt.Sprintf(
			"Today's bonus targets are %s and %s. Spotting them is worth double points!",
			a.Players[0], a.Players[1]))
	}

	e.logger.Info("bonus pairs regenerated", "day", day, "scopes", len(drawn))
	return drawn, nil
}

// RestoreBonuses reloads today's pairs from the cache and reports how many
// scopes were restored.
func (e *Engine) RestoreBonuses(ctx context.Context) (int, error) {
	if e.cache == nil {
		return 0, nil
	}
	day := e.clock.Day(e.clock.Now())
	assignments, err := e.cache.LoadBonuses(ctx, day)
	if err != nil {
		return 0, fmt.Errorf("loading bonus pairs: %w", err)
	}
	e.bonus.Restore(assignments)
	return len(assignments), nil
}

// RestoreManualResets reloads reset floors from the cache.
func (e *Engine) RestoreManualResets(ctx context.Context) (int, error) {
	if e.cache == nil {
		return 0, nil
	}
	resets, err := e.cache.LoadManualResets(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading manual resets: %w", err)
	}
	return e.clock.RestoreManualResets(resets), nil
}

// StartRing starts an elimination game and tells the scope.
func (e *Engine) StartRing(ctx context.Context, scopeID string, players []string) ([]domain.RingPlayer, error) {
	ring, err := e.ring.Start(ctx, scopeID, players)
	if err != nil {
		return nil, err
	}
	e.announce(ctx, scopeID, fmt.Sprintf(
		"An elimination game has started with %d players. Ask for your target privately!", len(ring)))
	return ring, nil
}

// Eliminate applies a kill claim and announces the outcome.
func (e *Engine) Eliminate(ctx context.Context, claim domain.EliminationClaim) (domain.Outcome, error) {
	outcome, err := e.ring.Eliminate(ctx, claim)
	if err != nil {
		e.metrics.RecordElimination(resultLabel(err))
		return domain.Outcome{}, err
	}
	e.metrics.RecordElimination(metrics.ResultOK)

	switch outcome.Kind {
	case domain.OutcomeWin:
		e.announce(ctx, claim.ScopeID, fmt.Sprintf(
			"%s eliminated %s and wins the game!", claim.KillerID, claim.VictimID))
	default:
		e.announce(ctx, claim.ScopeID, fmt.Sprintf(
			"%s has been eliminated by %s.", claim.VictimID, claim.KillerID))
	}
	return outcome, nil
}

// AbortRing stops the scope's game.
func (e *Engine) AbortRing(ctx context.Context, scopeID string) (bool, error) {
	running, err := e.ring.Abort(ctx, scopeID)
	if err != nil {
		return false, err
	}
	if running {
		e.announce(ctx, scopeID, "The elimination game has been cancelled.")
	}
	return running, nil
}

// CurrentTarget returns who the player is hunting.
func (e *Engine) CurrentTarget(ctx context.Context, scopeID, playerID string) (string, error) {
	return e.ring.CurrentTarget(ctx, scopeID, playerID)
}

// RingPlayers lists the active players.
func (e *Engine) RingPlayers(ctx context.Context, scopeID string) ([]domain.RingPlayer, error) {
	return e.ring.ListActive(ctx, scopeID)
}

// Eliminations lists the elimination log.
func (e *Engine) Eliminations(ctx context.Context, scopeID string) ([]domain.EliminationEvent, error) {
	return e.ring.ListEliminated(ctx, scopeID)
}

// TopKills ranks players of the running game by kills.
func (e *Engine) TopKills(ctx context.Context, scopeID string, limit int) ([]domain.KillEntry, error) {
	return e.ring.TopKills(ctx, scopeID, limit)
}

// announce delivers text; failures are logged and never fail the caller.
func (e *Engine) announce(ctx context.Context, scopeID, text string) {
	if e.notifier == nil || strings.TrimSpace(text) == "" {
		return
	}
	err := e.notifier.Announce(ctx, scopeID, text)
	e.metrics.RecordAnnouncement(err)
	if err != nil {
		e.logger.Warn("announcement failed", "scope_id", scopeID, "error", err)
	}
}

func resultLabel(err error) string {
	switch {
	case domain.IsInputRejection(err):
		return metrics.ResultRejected
	case domain.IsStateConflict(err):
		return metrics.ResultConflict
	default:
		return metrics.ResultError
	}
}
