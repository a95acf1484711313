// Package sqlite provides a SQLite-backed store for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spotbot/internal/domain"
	"github.com/spotbot/internal/storage"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

//go:embed schema.sql
var schema string

// Store persists game state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite store and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; this also serializes ring transactions.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

// InsertScore stores one score record.
func (s *Store) InsertScore(ctx context.Context, rec domain.ScoreRecord) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO score_records (
		   scorer_id, scored_of_id, scope_id, event_key, image_ref,
		   scorer_points, scored_points, season_id, valid, created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		rec.ScorerID,
		rec.ScoredOfID,
		rec.ScopeID,
		rec.EventKey,
		rec.ImageRef,
		rec.ScorerPoints,
		rec.ScoredPoints,
		rec.SeasonID,
		toMillis(rec.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateEvent
		}
		return fmt.Errorf("insert score: %w", err)
	}
	return nil
}

// DeleteEvent removes every record of one upstream event.
func (s *Store) DeleteEvent(ctx context.Context, eventKey string) (int64, error) {
	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM score_records WHERE event_key = ?`, eventKey)
	if err != nil {
		return 0, fmt.Errorf("delete event: %w", err)
	}
	return result.RowsAffected()
}

// InvalidateEvent clears the valid flag on every record of an event.
func (s *Store) InvalidateEvent(ctx context.Context, eventKey string) (int64, error) {
	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE score_records SET valid = 0 WHERE event_key = ? AND valid = 1`, eventKey)
	if err != nil {
		return 0, fmt.Errorf("invalidate event: %w", err)
	}
	return result.RowsAffected()
}

// Leaderboard sums points per player for a scope.
func (s *Store) Leaderboard(ctx context.Context, q storage.LeaderboardQuery) ([]domain.LeaderboardEntry, error) {
	group, sum, ok := storage.PointsColumns(q.Board)
	if !ok {
		return nil, domain.ErrInvalidRequest
	}

	where := []string{"valid = 1", "scope_id = ?"}
	args := []any{q.ScopeID}
	if q.SeasonID != "" {
		where = append(where, "season_id = ?")
		args = append(args, q.SeasonID)
	}
	if q.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, toMillis(*q.Since))
	}
	args = append(args, q.Limit)

	query := fmt.Sprintf(`SELECT %[1]s, SUM(%[2]s) AS total
		 FROM score_records
		 WHERE %[3]s
		 GROUP BY %[1]s
		 ORDER BY total DESC, %[1]s ASC
		 LIMIT ?`, group, sum, strings.Join(where, " AND "))

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	for rows.Next() {
		var entry domain.LeaderboardEntry
		if err := rows.Scan(&entry.PlayerID, &entry.Points); err != nil {
			return nil, fmt.Errorf("scan leaderboard entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}
	return storage.AssignRanks(entries), nil
}

// PlayerStats returns totals and the most frequent target of a player.
func (s *Store) PlayerStats(ctx context.Context, scopeID, playerID string) (domain.PlayerStats, error) {
	stats := domain.PlayerStats{ScopeID: scopeID, PlayerID: playerID}

	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT
		   COALESCE(SUM(CASE WHEN scorer_id = ? THEN scorer_points ELSE 0 END), 0),
		   COALESCE(SUM(CASE WHEN scored_of_id = ? THEN scored_points ELSE 0 END), 0)
		 FROM score_records
		 WHERE valid = 1 AND scope_id = ?`,
		playerID, playerID, scopeID,
	).Scan(&stats.PointsScored, &stats.PointsAgainst)
	if err != nil {
		return stats, fmt.Errorf("query player totals: %w", err)
	}

	err = s.sqlDB.QueryRowContext(ctx,
		`SELECT scored_of_id, COUNT(*) AS n
		 FROM score_records
		 WHERE valid = 1 AND scope_id = ? AND scorer_id = ?
		 GROUP BY scored_of_id
		 ORDER BY n DESC, scored_of_id ASC
		 LIMIT 1`,
		scopeID, playerID,
	).Scan(&stats.FavoriteTarget, &stats.FavoriteCount)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return stats, fmt.Errorf("query favorite target: %w", err)
	}
	return stats, nil
}

// Participants lists every player that ever scored or was scored in a scope.
func (s *Store) Participants(ctx context.Context, scopeID string) ([]string, error) {
	return s.queryStrings(ctx, "list participants",
		`SELECT scorer_id FROM score_records WHERE scope_id = ?
		 UNION
		 SELECT scored_of_id FROM score_records WHERE scope_id = ?
		 ORDER BY 1`, scopeID, scopeID)
}

// Scopes lists every scope with at least one record.
func (s *Store) Scopes(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx, "list scopes",
		`SELECT DISTINCT scope_id FROM score_records ORDER BY scope_id`)
}

// ScopesInSeason lists scopes with valid records in a season.
func (s *Store) ScopesInSeason(ctx context.Context, seasonID string) ([]string, error) {
	return s.queryStrings(ctx, "list season scopes",
		`SELECT DISTINCT scope_id FROM score_records WHERE valid = 1 AND season_id = ? ORDER BY scope_id`,
		seasonID)
}

func (s *Store) queryStrings(ctx context.Context, op, query string, args ...any) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return values, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ storage.Store = (*Store)(nil)
