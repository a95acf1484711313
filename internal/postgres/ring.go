package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/spotbot/internal/domain"
	"github.com/spotbot/internal/storage"
)

// RunRingTx opens a transaction holding a per-scope advisory lock, so two
// eliminations or a start and an abort in the same scope never interleave.
func (r *Repository) RunRingTx(ctx context.Context, scopeID string, fn func(tx storage.RingTx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("beginning ring transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "ring:"+scopeID); err != nil {
		return fmt.Errorf("locking ring scope: %w", err)
	}

	if err := fn(&ringTx{tx: tx, scopeID: scopeID}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing ring transaction: %w", err)
	}
	return nil
}

// RingPlayer returns one player's row
func (r *Repository) RingPlayer(ctx context.Context, scopeID, playerID string) (domain.RingPlayer, error) {
	return getRingPlayer(ctx, r.pool, scopeID, playerID)
}

// ActiveRingPlayers returns active players in creation order
func (r *Repository) ActiveRingPlayers(ctx context.Context, scopeID string) ([]domain.RingPlayer, error) {
	return listActive(ctx, r.pool, scopeID)
}

// Eliminations returns the elimination log, newest first
func (r *Repository) Eliminations(ctx context.Context, scopeID string) ([]domain.EliminationEvent, error) {
	query := `
		SELECT scope_id, killer_id, victim_id, created_at
		FROM elimination_events
		WHERE scope_id = $1
		ORDER BY created_at DESC, id DESC
	`
	rows, err := r.pool.Query(ctx, query, scopeID)
	if err != nil {
		return nil, fmt.Errorf("listing eliminations: %w", err)
	}
	defer rows.Close()

	var events []domain.EliminationEvent
	for rows.Next() {
		var ev domain.EliminationEvent
		if err := rows.Scan(&ev.ScopeID, &ev.KillerID, &ev.VictimID, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning elimination: %w", err)
		}
		ev.CreatedAt = scanTime(ev.CreatedAt)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading eliminations: %w", err)
	}
	return events, nil
}

// TopKills ranks a scope's players by kill count
func (r *Repository) TopKills(ctx context.Context, scopeID string, limit int) ([]domain.KillEntry, error) {
	query := `
		SELECT player_id, kill_count, active
		FROM ring_players
		WHERE scope_id = $1
		ORDER BY kill_count DESC, player_id ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, scopeID, limit)
	if err != nil {
		return nil, fmt.Errorf("getting top kills: %w", err)
	}
	defer rows.Close()

	var entries []domain.KillEntry
	for rows.Next() {
		var entry domain.KillEntry
		if err := rows.Scan(&entry.PlayerID, &entry.KillCount, &entry.Active); err != nil {
			return nil, fmt.Errorf("scanning kill entry: %w", err)
		}
		entry.Rank = int64(len(entries) + 1)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading top kills: %w", err)
	}
	return entries, nil
}

// querier is satisfied by both the pool and a transaction
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getRingPlayer(ctx context.Context, q querier, scopeID, playerID string) (domain.RingPlayer, error) {
	query := `
		SELECT scope_id, player_id, target_id, active, kill_count, created_at
		FROM ring_players
		WHERE scope_id = $1 AND player_id = $2
	`
	var p domain.RingPlayer
	err := q.QueryRow(ctx, query, scopeID, playerID).Scan(
		&p.ScopeID,
		&p.PlayerID,
		&p.TargetID,
		&p.Active,
		&p.KillCount,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RingPlayer{}, domain.ErrNotFound
		}
		return domain.RingPlayer{}, fmt.Errorf("getting ring player: %w", err)
	}
	p.CreatedAt = scanTime(p.CreatedAt)
	return p, nil
}

func listActive(ctx context.Context, q querier, scopeID string) ([]domain.RingPlayer, error) {
	query := `
		SELECT scope_id, player_id, target_id, active, kill_count, created_at
		FROM ring_players
		WHERE scope_id = $1 AND active
		ORDER BY created_at ASC, id ASC
	`
	rows, err := q.Query(ctx, query, scopeID)
	if err != nil {
		return nil, fmt.Errorf("listing active players: %w", err)
	}
	defer rows.Close()

	var players []domain.RingPlayer
	for rows.Next() {
		var p domain.RingPlayer
		if err := rows.Scan(&p.ScopeID, &p.PlayerID, &p.TargetID, &p.Active, &p.KillCount, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning ring player: %w", err)
		}
		p.CreatedAt = scanTime(p.CreatedAt)
		players = append(players, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading active players: %w", err)
	}
	return players, nil
}

// ringTx implements storage.RingTx on a pgx transaction
type ringTx struct {
	tx      pgx.Tx
	scopeID string
}

func (t *ringTx) ActiveCount(ctx context.Context) (int, error) {
	var count int
	err := t.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM ring_players WHERE scope_id = $1 AND active`, t.scopeID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting active players: %w", err)
	}
	return count, nil
}

func (t *ringTx) ActivePlayers(ctx context.Context) ([]domain.RingPlayer, error) {
	return listActive(ctx, t.tx, t.scopeID)
}

func (t *ringTx) Player(ctx context.Context, playerID string) (domain.RingPlayer, error) {
	return getRingPlayer(ctx, t.tx, t.scopeID, playerID)
}

func (t *ringTx) InsertPlayers(ctx context.Context, players []domain.RingPlayer) error {
	if len(players) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO ring_players (scope_id, player_id, target_id, active, kill_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, p := range players {
		batch.Queue(query, t.scopeID, p.PlayerID, p.TargetID, p.Active, p.KillCount, p.CreatedAt)
	}

	br := t.tx.SendBatch(ctx, batch)
	for range players {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("inserting ring players: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("inserting ring players: %w", err)
	}
	return nil
}

func (t *ringTx) DeactivatePlayer(ctx context.Context, playerID string) (bool, error) {
	result, err := t.tx.Exec(ctx,
		`UPDATE ring_players SET active = FALSE WHERE scope_id = $1 AND player_id = $2 AND active`,
		t.scopeID, playerID)
	if err != nil {
		return false, fmt.Errorf("deactivating player: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

func (t *ringTx) AdvanceHunter(ctx context.Context, playerID, targetID string) error {
	result, err := t.tx.Exec(ctx, `
		UPDATE ring_players SET target_id = $3, kill_count = kill_count + 1
		WHERE scope_id = $1 AND player_id = $2 AND active
	`, t.scopeID, playerID, targetID)
	if err != nil {
		return fmt.Errorf("retargeting player: %w", err)
	}
	if result.RowsAffected() != 1 {
		return fmt.Errorf("retargeting player %s: %w", playerID, domain.ErrNotFound)
	}
	return nil
}

func (t *ringTx) AppendElimination(ctx context.Context, ev domain.EliminationEvent) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO elimination_events (scope_id, killer_id, victim_id, created_at)
		VALUES ($1, $2, $3, $4)
	`, t.scopeID, ev.KillerID, ev.VictimID, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("recording elimination: %w", err)
	}
	return nil
}

func (t *ringTx) PurgePlayers(ctx context.Context) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM ring_players WHERE scope_id = $1`, t.scopeID); err != nil {
		return fmt.Errorf("purging ring players: %w", err)
	}
	return nil
}

func (t *ringTx) PurgeEliminations(ctx context.Context) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM elimination_events WHERE scope_id = $1`, t.scopeID); err != nil {
		return fmt.Errorf("purging eliminations: %w", err)
	}
	return nil
}
