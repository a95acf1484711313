package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spotbot/internal/config"
	"github.com/spotbot/internal/domain"
	"github.com/spotbot/internal/storage"
)

// uniqueViolation is the SQLSTATE for unique_violation
const uniqueViolation = "23505"

// Repository provides PostgreSQL-based data access
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

// Ping checks the pool can reach the database
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS score_records (
			id BIGSERIAL PRIMARY KEY,
			scorer_id TEXT NOT NULL,
			scored_of_id TEXT NOT NULL,
			scope_id TEXT NOT NULL,
			event_key TEXT NOT NULL,
			image_ref TEXT NOT NULL DEFAULT '',
			scorer_points INT NOT NULL CHECK (scorer_points >= 0),
			scored_points INT NOT NULL CHECK (scored_points >= 0),
			season_id TEXT NOT NULL,
			valid BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (event_key, scored_of_id)
		)`,
		`CREATE TABLE IF NOT EXISTS ring_players (
			id BIGSERIAL PRIMARY KEY,
			scope_id TEXT NOT NULL,
			player_id TEXT NOT NULL,
			target_id TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			kill_count INT NOT NULL DEFAULT 0 CHECK (kill_count >= 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (scope_id, player_id)
		)`,
		`CREATE TABLE IF NOT EXISTS elimination_events (
			id BIGSERIAL PRIMARY KEY,
			scope_id TEXT NOT NULL,
			killer_id TEXT NOT NULL,
			victim_id TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_score_records_scope_season ON score_records(scope_id, season_id)`,
		`CREATE INDEX IF NOT EXISTS idx_score_records_scope_created ON score_records(scope_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_elimination_events_scope ON elimination_events(scope_id, created_at DESC)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// InsertScore stores one score record. The unique key on
// (event_key, scored_of_id) is what makes redelivery safe.
func (r *Repository) InsertScore(ctx context.Context, rec domain.ScoreRecord) error {
	query := `
		INSERT INTO score_records (scorer_id, scored_of_id, scope_id, event_key, image_ref,
			scorer_points, scored_points, season_id, valid, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, $9)
	`
	_, err := r.pool.Exec(ctx, query,
		rec.ScorerID,
		rec.ScoredOfID,
		rec.ScopeID,
		rec.EventKey,
		rec.ImageRef,
		rec.ScorerPoints,
		rec.ScoredPoints,
		rec.SeasonID,
		rec.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateEvent
		}
		return fmt.Errorf("inserting score: %w", err)
	}
	return nil
}

// DeleteEvent removes every record produced by one upstream event
func (r *Repository) DeleteEvent(ctx context.Context, eventKey string) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM score_records WHERE event_key = $1`, eventKey)
	if err != nil {
		return 0, fmt.Errorf("deleting event: %w", err)
	}
	return result.RowsAffected(), nil
}

// InvalidateEvent clears the valid flag on every record of an event
func (r *Repository) InvalidateEvent(ctx context.Context, eventKey string) (int64, error) {
	result, err := r.pool.Exec(ctx,
		`UPDATE score_records SET valid = FALSE WHERE event_key = $1 AND valid`, eventKey)
	if err != nil {
		return 0, fmt.Errorf("invalidating event: %w", err)
	}
	return result.RowsAffected(), nil
}

// Leaderboard sums points per player for a scope
func (r *Repository) Leaderboard(ctx context.Context, q storage.LeaderboardQuery) ([]domain.LeaderboardEntry, error) {
	group, sum, ok := storage.PointsColumns(q.Board)
	if !ok {
		return nil, domain.ErrInvalidRequest
	}

	where := []string{"valid", "scope_id = $1"}
	args := []any{q.ScopeID}
	if q.SeasonID != "" {
		args = append(args, q.SeasonID)
		where = append(where, fmt.Sprintf("season_id = $%d", len(args)))
	}
	if q.Since != nil {
		args = append(args, *q.Since)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	args = append(args, q.Limit)

	query := fmt.Sprintf(`
		SELECT %[1]s, SUM(%[2]s)::BIGINT AS total
		FROM score_records
		WHERE %[3]s
		GROUP BY %[1]s
		ORDER BY total DESC, %[1]s ASC
		LIMIT $%[4]d
	`, group, sum, strings.Join(where, " AND "), len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("getting leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	for rows.Next() {
		var entry domain.LeaderboardEntry
		if err := rows.Scan(&entry.PlayerID, &entry.Points); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading leaderboard: %w", err)
	}
	return storage.AssignRanks(entries), nil
}

// PlayerStats returns totals and the most frequent target of a player
func (r *Repository) PlayerStats(ctx context.Context, scopeID, playerID string) (domain.PlayerStats, error) {
	stats := domain.PlayerStats{ScopeID: scopeID, PlayerID: playerID}

	query := `
		SELECT
			COALESCE(SUM(CASE WHEN scorer_id = $2 THEN scorer_points ELSE 0 END), 0)::BIGINT,
			COALESCE(SUM(CASE WHEN scored_of_id = $2 THEN scored_points ELSE 0 END), 0)::BIGINT
		FROM score_records
		WHERE valid AND scope_id = $1
	`
	if err := r.pool.QueryRow(ctx, query, scopeID, playerID).Scan(&stats.PointsScored, &stats.PointsAgainst); err != nil {
		return stats, fmt.Errorf("getting player totals: %w", err)
	}

	favorite := `
		SELECT scored_of_id, COUNT(*)
		FROM score_records
		WHERE valid AND scope_id = $1 AND scorer_id = $2
		GROUP BY scored_of_id
		ORDER BY COUNT(*) DESC, scored_of_id ASC
		LIMIT 1
	`
	err := r.pool.QueryRow(ctx, favorite, scopeID, playerID).Scan(&stats.FavoriteTarget, &stats.FavoriteCount)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return stats, fmt.Errorf("getting favorite target: %w", err)
	}
	return stats, nil
}

// Participants lists every player that ever scored or was scored in a scope
func (r *Repository) Participants(ctx context.Context, scopeID string) ([]string, error) {
	query := `
		SELECT scorer_id FROM score_records WHERE scope_id = $1
		UNION
		SELECT scored_of_id FROM score_records WHERE scope_id = $1
		ORDER BY 1
	`
	return r.queryStrings(ctx, "listing participants", query, scopeID)
}

// Scopes lists every scope with at least one record
func (r *Repository) Scopes(ctx context.Context) ([]string, error) {
	return r.queryStrings(ctx, "listing scopes",
		`SELECT DISTINCT scope_id FROM score_records ORDER BY scope_id`)
}

// ScopesInSeason lists scopes with valid records in a season
func (r *Repository) ScopesInSeason(ctx context.Context, seasonID string) ([]string, error) {
	return r.queryStrings(ctx, "listing season scopes",
		`SELECT DISTINCT scope_id FROM score_records WHERE valid AND season_id = $1 ORDER BY scope_id`, seasonID)
}

func (r *Repository) queryStrings(ctx context.Context, op, query string, args ...any) ([]string, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	values, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return values, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// scanTime normalises timestamps read back from the database
func scanTime(t time.Time) time.Time {
	return t.UTC()
}

var _ storage.Store = (*Repository)(nil)
