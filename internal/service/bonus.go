package service

import (
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spotbot/internal/domain"
)

type bonusTable map[string]domain.BonusAssignment

// BonusAssigner holds each scope's pair of double-value targets. Readers
// load an immutable table; writers build a new one and swap it in.
type BonusAssigner struct {
	mu      sync.Mutex
	rng     *rand.Rand
	current atomic.Pointer[bonusTable]
}

// NewBonusAssigner creates an assigner drawing from src. A nil src seeds
// from the clock.
func NewBonusAssigner(src rand.Source) *BonusAssigner {
	if src == nil {
		seed := uint64(time.Now().UnixNano())
		src = rand.NewPCG(seed, seed>>1|1)
	}
	b := &BonusAssigner{rng: rand.New(src)}
	empty := bonusTable{}
	b.current.Store(&empty)
	return b
}

// Regenerate draws two distinct players uniformly from participants and
// makes them the scope's bonus pair. It reports false and leaves the scope
// untouched when there are fewer than two distinct participants.
func (b *BonusAssigner) Regenerate(scopeID string, participants []string, day string, now time.Time) (domain.BonusAssignment, bool) {
	universe := distinctSorted(participants)
	if len(universe) < 2 {
		return domain.BonusAssignment{}, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(universe)
	i := b.rng.IntN(n)
	j := b.rng.IntN(n - 1)
	if j >= i {
		j++
	}

	assignment := domain.BonusAssignment{
		ScopeID:     scopeID,
		Players:     [2]string{universe[i], universe[j]},
		Day:         day,
		GeneratedAt: now,
	}
	b.swap(assignment)
	return assignment, true
}

// Restore installs previously generated assignments, e.g. after a restart.
func (b *BonusAssigner) Restore(assignments []domain.BonusAssignment) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.swap(assignments...)
}

// swap must be called with mu held.
func (b *BonusAssigner) swap(assignments ...domain.BonusAssignment) {
	old := *b.current.Load()
	next := make(bonusTable, len(old)+len(assignments))
	for scopeID, a := range old {
		next[scopeID] = a
	}
	for _, a := range assignments {
		next[a.ScopeID] = a
	}
	b.current.Store(&next)
}

// IsBonusTarget reports whether player is in the scope's current pair.
func (b *BonusAssigner) IsBonusTarget(scopeID, playerID string) bool {
	a, ok := (*b.current.Load())[scopeID]
	return ok && a.Contains(playerID)
}

// Assignment returns the scope's current pair.
func (b *BonusAssigner) Assignment(scopeID string) (domain.BonusAssignment, bool) {
	a, ok := (*b.current.Load())[scopeID]
	return a, ok
}

func distinctSorted(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
