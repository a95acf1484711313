package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spotbot/internal/config"
	"github.com/spotbot/internal/domain"
	"github.com/spotbot/internal/storage"
)

// Point values for one recorded spot.
const (
	SpotterPoints      = 1
	BonusSpotterPoints = 2
	SpottedPoints      = 1
)

// Ledger records scoring events and aggregates them into leaderboards.
type Ledger struct {
	store  storage.ScoreStore
	clock  *SeasonClock
	limits *config.LeaderboardConfig
	logger *slog.Logger
}

// NewLedger creates a new ledger
func NewLedger(store storage.ScoreStore, clock *SeasonClock, limits *config.LeaderboardConfig, logger *slog.Logger) *Ledger {
	return &Ledger{
		store:  store,
		clock:  clock,
		limits: limits,
		logger: logger,
	}
}

// RecordScoringEvent stores one spot of scoredOf by scorer. Self spots are
// ignored and a replayed (eventKey, scoredOf) pair is reported as a
// duplicate; neither is an error.
func (l *Ledger) RecordScoringEvent(
	ctx context.Context,
	scopeID, scorerID, scoredOfID, eventKey, imageRef string,
	bonusActive bool,
) (domain.RecordResult, error) {
	if scopeID == "" || scorerID == "" || scoredOfID == "" || eventKey == "" {
		return "", fmt.Errorf("scope, scorer, target and event key are required: %w", domain.ErrInvalidRequest)
	}
	if scorerID == scoredOfID {
		return domain.RecordSelfIgnored, nil
	}

	scorerPoints := SpotterPoints
	if bonusActive {
		scorerPoints = BonusSpotterPoints
	}

	now := l.clock.Now()
	rec := domain.ScoreRecord{
		ScorerID:     scorerID,
		ScoredOfID:   scoredOfID,
		ScopeID:      scopeID,
		EventKey:     eventKey,
		ImageRef:     imageRef,
		ScorerPoints: scorerPoints,
		ScoredPoints: SpottedPoints,
		SeasonID:     l.clock.SeasonID(now),
		Valid:        true,
		CreatedAt:    now,
	}

	if err := l.store.InsertScore(ctx, rec); err != nil {
		if errors.Is(err, domain.ErrDuplicateEvent) {
			l.logger.Debug("duplicate scoring event ignored",
				"event_key", eventKey,
				"scored_of_id", scoredOfID,
			)
			return domain.RecordDuplicate, nil
		}
		return "", fmt.Errorf("recording spot: %w", err)
	}
	return domain.RecordStored, nil
}

// RetractEvent hard-deletes every record of an event and returns how many
// were removed.
func (l *Ledger) RetractEvent(ctx context.Context, eventKey string) (int64, error) {
	if eventKey == "" {
		return 0, fmt.Errorf("event key is required: %w", domain.ErrInvalidRequest)
	}
	n, err := l.store.DeleteEvent(ctx, eventKey)
	if err != nil {
		return 0, fmt.Errorf("retracting event: %w", err)
	}
	return n, nil
}

// InvalidateEvent keeps an event's records but drops them from every
// aggregation.
func (l *Ledger) InvalidateEvent(ctx context.Context, eventKey string) (int64, error) {
	if eventKey == "" {
		return 0, fmt.Errorf("event key is required: %w", domain.ErrInvalidRequest)
	}
	n, err := l.store.InvalidateEvent(ctx, eventKey)
	if err != nil {
		return 0, fmt.Errorf("invalidating event: %w", err)
	}
	return n, nil
}

// Leaderboard ranks a scope's players for one season. A non-nil floor drops
// records created before it.
func (l *Ledger) Leaderboard(
	ctx context.Context,
	scopeID, seasonID string,
	floor *time.Time,
	board domain.BoardKind,
	limit int,
) ([]domain.LeaderboardEntry, error) {
	if seasonID == "" {
		return nil, fmt.Errorf("season id is required: %w", domain.ErrInvalidRequest)
	}
	return l.query(ctx, storage.LeaderboardQuery{
		ScopeID:  scopeID,
		Board:    board,
		SeasonID: seasonID,
		Since:    floor,
		Limit:    limit,
	})
}

// CurrentLeaderboard ranks the running season, honoring the scope's manual
// reset.
func (l *Ledger) CurrentLeaderboard(ctx context.Context, scopeID string, board domain.BoardKind, limit int) ([]domain.LeaderboardEntry, error) {
	var floor *time.Time
	if at, ok := l.clock.ManualReset(scopeID); ok {
		floor = &at
	}
	return l.Leaderboard(ctx, scopeID, l.clock.CurrentSeasonID(), floor, board, limit)
}

// AllTimeLeaderboard ranks every valid record in the scope.
func (l *Ledger) AllTimeLeaderboard(ctx context.Context, scopeID string, board domain.BoardKind, limit int) ([]domain.LeaderboardEntry, error) {
	return l.query(ctx, storage.LeaderboardQuery{
		ScopeID: scopeID,
		Board:   board,
		Limit:   limit,
	})
}

func (l *Ledger) query(ctx context.Context, q storage.LeaderboardQuery) ([]domain.LeaderboardEntry, error) {
	if strings.TrimSpace(q.ScopeID) == "" {
		return nil, fmt.Errorf("scope id is required: %w", domain.ErrInvalidRequest)
	}
	if q.Board == "" {
		q.Board = domain.BoardSpotters
	}
	if !q.Board.Valid() {
		return nil, fmt.Errorf("unknown board %q: %w", q.Board, domain.ErrInvalidRequest)
	}
	q.Limit = l.normalizeLimit(q.Limit)

	entries, err := l.store.Leaderboard(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("loading leaderboard: %w", err)
	}
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}
	return entries, nil
}

// PlayerStats summarises one player's all-time activity in a scope.
func (l *Ledger) PlayerStats(ctx context.Context, scopeID, playerID string) (domain.PlayerStats, error) {
	if scopeID == "" || playerID == "" {
		return domain.PlayerStats{}, fmt.Errorf("scope and player are required: %w", domain.ErrInvalidRequest)
	}
	stats, err := l.store.PlayerStats(ctx, scopeID, playerID)
	if err != nil {
		return domain.PlayerStats{}, fmt.Errorf("loading player stats: %w", err)
	}
	return stats, nil
}

// Participants returns everyone that appears in a scope's records.
func (l *Ledger) Participants(ctx context.Context, scopeID string) ([]string, error) {
	return l.store.Participants(ctx, scopeID)
}

// Scopes returns every scope with at least one record.
func (l *Ledger) Scopes(ctx context.Context) ([]string, error) {
	return l.store.Scopes(ctx)
}

// ScopesInSeason returns scopes that have valid records in a season.
func (l *Ledger) ScopesInSeason(ctx context.Context, seasonID string) ([]string, error) {
	return l.store.ScopesInSeason(ctx, seasonID)
}

func (l *Ledger) normalizeLimit(limit int) int {
	if limit <= 0 {
		return l.limits.DefaultLimit
	}
	if l.limits.MaxLimit > 0 && limit > l.limits.MaxLimit {
		return l.limits.MaxLimit
	}
	return limit
}
