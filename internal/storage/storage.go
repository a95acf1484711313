// Package storage defines the persistence contracts shared by the
// postgres and sqlite backends.
package storage

import (
	"context"
	"time"

	"github.com/spotbot/internal/domain"
)

// LeaderboardQuery filters and shapes a points aggregation
type LeaderboardQuery struct {
	ScopeID string
	Board   domain.BoardKind
	// SeasonID restricts to one season; empty means all time.
	SeasonID string
	// Since drops records created before the instant when set.
	Since *time.Time
	Limit int
}

// ScoreStore persists score records and aggregates them.
type ScoreStore interface {
	// InsertScore returns domain.ErrDuplicateEvent when (event_key,
	// scored_of_id) already exists.
	InsertScore(ctx context.Context, rec domain.ScoreRecord) error
	DeleteEvent(ctx context.Context, eventKey string) (int64, error)
	InvalidateEvent(ctx context.Context, eventKey string) (int64, error)
	Leaderboard(ctx context.Context, q LeaderboardQuery) ([]domain.LeaderboardEntry, error)
	PlayerStats(ctx context.Context, scopeID, playerID string) (domain.PlayerStats, error)
	Participants(ctx context.Context, scopeID string) ([]string, error)
	Scopes(ctx context.Context) ([]string, error)
	ScopesInSeason(ctx context.Context, seasonID string) ([]string, error)
}

// RingTx is the set of ring mutations available inside one scope-serialized
// transaction. Every method is bound to the scope the transaction was opened
// for.
type RingTx interface {
	ActiveCount(ctx context.Context) (int, error)
	ActivePlayers(ctx context.Context) ([]domain.RingPlayer, error)
	// Player returns domain.ErrNotFound when there is no row.
	Player(ctx context.Context, playerID string) (domain.RingPlayer, error)
	InsertPlayers(ctx context.Context, players []domain.RingPlayer) error
	// DeactivatePlayer flips active to false only if it is still true and
	// reports whether it did.
	DeactivatePlayer(ctx context.Context, playerID string) (bool, error)
	// AdvanceHunter points an active player at a new target and bumps its
	// kill count.
	AdvanceHunter(ctx context.Context, playerID, targetID string) error
	AppendElimination(ctx context.Context, ev domain.EliminationEvent) error
	PurgePlayers(ctx context.Context) error
	PurgeEliminations(ctx context.Context) error
}

// RingStore persists elimination games.
type RingStore interface {
	// RunRingTx runs fn in a transaction that excludes every other ring
	// transaction on the same scope. An error from fn rolls back.
	RunRingTx(ctx context.Context, scopeID string, fn func(tx RingTx) error) error
	RingPlayer(ctx context.Context, scopeID, playerID string) (domain.RingPlayer, error)
	ActiveRingPlayers(ctx context.Context, scopeID string) ([]domain.RingPlayer, error)
	Eliminations(ctx context.Context, scopeID string) ([]domain.EliminationEvent, error)
	TopKills(ctx context.Context, scopeID string, limit int) ([]domain.KillEntry, error)
}

// Store is the full persistence surface used by the engine.
type Store interface {
	ScoreStore
	RingStore
	Ping(ctx context.Context) error
	Close() error
}
