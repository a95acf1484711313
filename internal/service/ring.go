package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/spotbot/internal/domain"
	"github.com/spotbot/internal/storage"
)

// MinRingPlayers is the smallest field a game can start with.
const MinRingPlayers = 3

// Ring runs the per-scope elimination game. Every mutation happens inside a
// scope-serialized store transaction, so the active players always form one
// directed cycle.
type Ring struct {
	store  storage.RingStore
	now    func() time.Time
	logger *slog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewRing creates a new ring game service
func NewRing(store storage.RingStore, src rand.Source, now func() time.Time, logger *slog.Logger) *Ring {
	if src == nil {
		seed := uint64(time.Now().UnixNano())
		src = rand.NewPCG(seed, seed>>3|1)
	}
	if now == nil {
		now = time.Now
	}
	return &Ring{
		store:  store,
		now:    now,
		logger: logger,
		rng:    rand.New(src),
	}
}

// Start shuffles players into a single cycle and replaces any finished game
// in the scope.
func (r *Ring) Start(ctx context.Context, scopeID string, players []string) ([]domain.RingPlayer, error) {
	if scopeID == "" {
		return nil, fmt.Errorf("scope id is required: %w", domain.ErrInvalidRequest)
	}
	order := distinctInOrder(players)
	if len(order) < MinRingPlayers {
		return nil, domain.ErrInsufficientPlayers
	}

	r.rngMu.Lock()
	r.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	r.rngMu.Unlock()

	now := r.now().UTC()
	ring := make([]domain.RingPlayer, len(order))
	for i, id := range order {
		ring[i] = domain.RingPlayer{
			ScopeID:   scopeID,
			PlayerID:  id,
			TargetID:  order[(i+1)%len(order)],
			Active:    true,
			CreatedAt: now,
		}
	}

	err := r.store.RunRingTx(ctx, scopeID, func(tx storage.RingTx) error {
		active, err := tx.ActiveCount(ctx)
		if err != nil {
			return err
		}
		if active > 0 {
			return domain.ErrAlreadyActive
		}
		if err := tx.PurgePlayers(ctx); err != nil {
			return err
		}
		if err := tx.PurgeEliminations(ctx); err != nil {
			return err
		}
		return tx.InsertPlayers(ctx, ring)
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("ring game started", "scope_id", scopeID, "players", len(ring))
	return ring, nil
}

// CurrentTarget returns who the player is hunting.
func (r *Ring) CurrentTarget(ctx context.Context, scopeID, playerID string) (string, error) {
	p, err := r.store.RingPlayer(ctx, scopeID, playerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.ErrNotAPlayer
		}
		return "", err
	}
	if !p.Active {
		return "", domain.ErrAlreadyEliminated
	}
	return p.TargetID, nil
}

// Eliminate applies a kill claim. On success the killer inherits the
// victim's target, or wins when only the killer is left.
func (r *Ring) Eliminate(ctx context.Context, claim domain.EliminationClaim) (domain.Outcome, error) {
	if !claim.HasEvidence() {
		return domain.Outcome{}, domain.ErrMissingEvidence
	}
	if claim.ScopeID == "" || claim.KillerID == "" || claim.VictimID == "" {
		return domain.Outcome{}, fmt.Errorf("scope, killer and victim are required: %w", domain.ErrInvalidRequest)
	}

	var outcome domain.Outcome
	err := r.store.RunRingTx(ctx, claim.ScopeID, func(tx storage.RingTx) error {
		killer, err := tx.Player(ctx, claim.KillerID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrNotAPlayer
			}
			return err
		}
		if !killer.Active {
			return domain.ErrKillerEliminated
		}

		victim, err := tx.Player(ctx, claim.VictimID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			victim = domain.RingPlayer{}
		case err != nil:
			return err
		}
		// A replayed claim finds the victim already out before it notices
		// the hunter has moved on.
		if victim.PlayerID != "" && !victim.Active {
			return domain.ErrVictimAlreadyEliminated
		}
		if killer.TargetID != claim.VictimID {
			return domain.ErrWrongTarget
		}
		if victim.PlayerID == "" {
			return domain.ErrVictimAlreadyEliminated
		}

		flipped, err := tx.DeactivatePlayer(ctx, victim.PlayerID)
		if err != nil {
			return err
		}
		if !flipped {
			return domain.ErrVictimAlreadyEliminated
		}
		if err := tx.AdvanceHunter(ctx, killer.PlayerID, victim.TargetID); err != nil {
			return err
		}
		if err := tx.AppendElimination(ctx, domain.EliminationEvent{
			ScopeID:   claim.ScopeID,
			KillerID:  killer.PlayerID,
			VictimID:  victim.PlayerID,
			CreatedAt: r.now().UTC(),
		}); err != nil {
			return err
		}

		remaining, err := tx.ActiveCount(ctx)
		if err != nil {
			return err
		}
		if remaining > 1 {
			outcome = domain.Outcome{Kind: domain.OutcomeContinue, PlayerID: victim.TargetID}
			return nil
		}

		survivors, err := tx.ActivePlayers(ctx)
		if err != nil {
			return err
		}
		winner := killer.PlayerID
		if len(survivors) == 1 {
			winner = survivors[0].PlayerID
		}
		if err := tx.PurgePlayers(ctx); err != nil {
			return err
		}
		outcome = domain.Outcome{Kind: domain.OutcomeWin, PlayerID: winner}
		return nil
	})
	if err != nil {
		return domain.Outcome{}, err
	}

	r.logger.Info("player eliminated",
		"scope_id", claim.ScopeID,
		"killer_id", claim.KillerID,
		"victim_id", claim.VictimID,
		"outcome", outcome.Kind,
	)
	return outcome, nil
}

// Abort ends the scope's game and wipes its history. It reports whether a
// game was running.
func (r *Ring) Abort(ctx context.Context, scopeID string) (bool, error) {
	var running bool
	err := r.store.RunRingTx(ctx, scopeID, func(tx storage.RingTx) error {
		active, err := tx.ActiveCount(ctx)
		if err != nil {
			return err
		}
		running = active > 0
		if err := tx.PurgePlayers(ctx); err != nil {
			return err
		}
		return tx.PurgeEliminations(ctx)
	})
	if err != nil {
		return false, err
	}
	if running {
		r.logger.Info("ring game aborted", "scope_id", scopeID)
	}
	return running, nil
}

// ListActive returns active players in creation order.
func (r *Ring) ListActive(ctx context.Context, scopeID string) ([]domain.RingPlayer, error) {
	players, err := r.store.ActiveRingPlayers(ctx, scopeID)
	if err != nil {
		return nil, err
	}
	if players == nil {
		players = []domain.RingPlayer{}
	}
	return players, nil
}

// ListEliminated returns the elimination log, newest first.
func (r *Ring) ListEliminated(ctx context.Context, scopeID string) ([]domain.EliminationEvent, error) {
	events, err := r.store.Eliminations(ctx, scopeID)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []domain.EliminationEvent{}
	}
	return events, nil
}

// TopKills ranks the players of the running game by kills.
func (r *Ring) TopKills(ctx context.Context, scopeID string, limit int) ([]domain.KillEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	entries, err := r.store.TopKills(ctx, scopeID, limit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []domain.KillEntry{}
	}
	return entries, nil
}

func distinctInOrder(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
