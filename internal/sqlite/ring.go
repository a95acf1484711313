package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/spotbot/internal/domain"
	"github.com/spotbot/internal/storage"
)

// RunRingTx runs fn inside a transaction. The store holds a single
// connection, so transactions never overlap.
func (s *Store) RunRingTx(ctx context.Context, scopeID string, fn func(tx storage.RingTx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ring transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&ringTx{tx: tx, scopeID: scopeID}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ring transaction: %w", err)
	}
	return nil
}

// RingPlayer returns one player's row.
func (s *Store) RingPlayer(ctx context.Context, scopeID, playerID string) (domain.RingPlayer, error) {
	return getRingPlayer(ctx, s.sqlDB, scopeID, playerID)
}

// ActiveRingPlayers returns active players in creation order.
func (s *Store) ActiveRingPlayers(ctx context.Context, scopeID string) ([]domain.RingPlayer, error) {
	return listActive(ctx, s.sqlDB, scopeID)
}

// Eliminations returns the elimination log, newest first.
func (s *Store) Eliminations(ctx context.Context, scopeID string) ([]domain.EliminationEvent, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT scope_id, killer_id, victim_id, created_at
		 FROM elimination_events
		 WHERE scope_id = ?
		 ORDER BY created_at DESC, id DESC`, scopeID)
	if err != nil {
		return nil, fmt.Errorf("list eliminations: %w", err)
	}
	defer rows.Close()

	var events []domain.EliminationEvent
	for rows.Next() {
		var ev domain.EliminationEvent
		var createdAt int64
		if err := rows.Scan(&ev.ScopeID, &ev.KillerID, &ev.VictimID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan elimination: %w", err)
		}
		ev.CreatedAt = fromMillis(createdAt)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read eliminations: %w", err)
	}
	return events, nil
}

// TopKills ranks a scope's players by kill count.
func (s *Store) TopKills(ctx context.Context, scopeID string, limit int) ([]domain.KillEntry, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT player_id, kill_count, active
		 FROM ring_players
		 WHERE scope_id = ?
		 ORDER BY kill_count DESC, player_id ASC
		 LIMIT ?`, scopeID, limit)
	if err != nil {
		return nil, fmt.Errorf("query top kills: %w", err)
	}
	defer rows.Close()

	var entries []domain.KillEntry
	for rows.Next() {
		var entry domain.KillEntry
		if err := rows.Scan(&entry.PlayerID, &entry.KillCount, &entry.Active); err != nil {
			return nil, fmt.Errorf("scan kill entry: %w", err)
		}
		entry.Rank = int64(len(entries) + 1)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read top kills: %w", err)
	}
	return entries, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRingPlayer(ctx context.Context, q querier, scopeID, playerID string) (domain.RingPlayer, error) {
	var p domain.RingPlayer
	var createdAt int64
	err := q.QueryRowContext(ctx,
		`SELECT scope_id, player_id, target_id, active, kill_count, created_at
		 FROM ring_players
		 WHERE scope_id = ? AND player_id = ?`, scopeID, playerID,
	).Scan(&p.ScopeID, &p.PlayerID, &p.TargetID, &p.Active, &p.KillCount, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.RingPlayer{}, domain.ErrNotFound
		}
		return domain.RingPlayer{}, fmt.Errorf("get ring player: %w", err)
	}
	p.CreatedAt = fromMillis(createdAt)
	return p, nil
}

func listActive(ctx context.Context, q querier, scopeID string) ([]domain.RingPlayer, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT scope_id, player_id, target_id, active, kill_count, created_at
		 FROM ring_players
		 WHERE scope_id = ? AND active = 1
		 ORDER BY created_at ASC, id ASC`, scopeID)
	if err != nil {
		return nil, fmt.Errorf("list active players: %w", err)
	}
	defer rows.Close()

	var players []domain.RingPlayer
	for rows.Next() {
		var p domain.RingPlayer
		var createdAt int64
		if err := rows.Scan(&p.ScopeID, &p.PlayerID, &p.TargetID, &p.Active, &p.KillCount, &createdAt); err != nil {
			return nil, fmt.Errorf("scan ring player: %w", err)
		}
		p.CreatedAt = fromMillis(createdAt)
		players = append(players, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read active players: %w", err)
	}
	return players, nil
}

type ringTx struct {
	tx      *sql.Tx
	scopeID string
}

func (t *ringTx) ActiveCount(ctx context.Context) (int, error) {
	var count int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ring_players WHERE scope_id = ? AND active = 1`, t.scopeID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active players: %w", err)
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
	stmt, err := t.tx.PrepareContext(ctx,
		`INSERT INTO ring_players (scope_id, player_id, target_id, active, kill_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare ring insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range players {
		if _, err := stmt.ExecContext(ctx, t.scopeID, p.PlayerID, p.TargetID, p.Active, p.KillCount, toMillis(p.CreatedAt)); err != nil {
			return fmt.Errorf("insert ring player %s: %w", p.PlayerID, err)
		}
	}
	return nil
}

func (t *ringTx) DeactivatePlayer(ctx context.Context, playerID string) (bool, error) {
	result, err := t.tx.ExecContext(ctx,
		`UPDATE ring_players SET active = 0 WHERE scope_id = ? AND player_id = ? AND active = 1`,
		t.scopeID, playerID)
	if err != nil {
		return false, fmt.Errorf("deactivate player: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deactivate player: %w", err)
	}
	return n == 1, nil
}

func (t *ringTx) AdvanceHunter(ctx context.Context, playerID, targetID string) error {
	result, err := t.tx.ExecContext(ctx,
		`UPDATE ring_players SET target_id = ?, kill_count = kill_count + 1
		 WHERE scope_id = ? AND player_id = ? AND active = 1`,
		targetID, t.scopeID, playerID)
	if err != nil {
		return fmt.Errorf("retarget player: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("retarget player: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("retarget player %s: %w", playerID, domain.ErrNotFound)
	}
	return nil
}

func (t *ringTx) AppendElimination(ctx context.Context, ev domain.EliminationEvent) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO elimination_events (scope_id, killer_id, victim_id, created_at)
		 VALUES (?, ?, ?, ?)`,
		t.scopeID, ev.KillerID, ev.VictimID, toMillis(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("record elimination: %w", err)
	}
	return nil
}

func (t *ringTx) PurgePlayers(ctx context.Context) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM ring_players WHERE scope_id = ?`, t.scopeID); err != nil {
		return fmt.Errorf("purge ring players: %w", err)
	}
	return nil
}

func (t *ringTx) PurgeEliminations(ctx context.Context) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM elimination_events WHERE scope_id = ?`, t.scopeID); err != nil {
		return fmt.Errorf("purge eliminations: %w", err)
	}
	return nil
}
