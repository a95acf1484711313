package domain

import "time"

// RingPlayer is one player's state in a scope's elimination game
type RingPlayer struct {
	ScopeID   string    `json:"scope_id"`
	PlayerID  string    `json:"player_id"`
	TargetID  string    `json:"target_id"`
	Active    bool      `json:"active"`
	KillCount int       `json:"kill_count"`
	CreatedAt time.Time `json:"created_at"`
}

// EliminationEvent is an append-only record of a successful elimination
type EliminationEvent struct {
	ScopeID   string    `json:"scope_id"`
	KillerID  string    `json:"killer_id"`
	VictimID  string    `json:"victim_id"`
	CreatedAt time.Time `json:"created_at"`
}

// OutcomeKind tells whether a game continues after an elimination
type OutcomeKind string

const (
	OutcomeContinue OutcomeKind = "continue"
	OutcomeWin      OutcomeKind = "win"
)

// Outcome is the result of a successful elimination. PlayerID is the
// killer's new target on Continue and the survivor on Win.
type Outcome struct {
	Kind     OutcomeKind `json:"kind"`
	PlayerID string      `json:"player_id"`
}

// EliminationClaim is an inbound request to eliminate a target
type EliminationClaim struct {
	ScopeID     string `json:"scope_id"`
	KillerID    string `json:"killer_id"`
	VictimID    string `json:"victim_id"`
	EvidenceRef string `json:"evidence_ref"`
}

// HasEvidence reports whether proof accompanies the claim.
func (c EliminationClaim) HasEvidence() bool {
	return c.EvidenceRef != ""
}

// KillEntry is one row of the kills leaderboard
type KillEntry struct {
	Rank      int64  `json:"rank"`
	PlayerID  string `json:"player_id"`
	KillCount int    `json:"kill_count"`
	Active    bool   `json:"active"`
}
