package domain

import "time"

// BonusAssignment is a scope's pair of double-value targets for one day
type BonusAssignment struct {
	ScopeID     string    `json:"scope_id"`
	Players     [2]string `json:"players"`
	Day         string    `json:"day"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Contains reports whether playerID is one of the bonus targets.
func (a BonusAssignment) Contains(playerID string) bool {
	return a.Players[0] == playerID || a.Players[1] == playerID
}

// SeasonInfo describes the current scoring window of a scope
type SeasonInfo struct {
	SeasonID    string     `json:"season_id"`
	StartsAt    time.Time  `json:"starts_at"`
	EndsAt      time.Time  `json:"ends_at"`
	ManualReset *time.Time `json:"manual_reset,omitempty"`
}

// ScopeRollover is the per-scope part of a season rollover
type ScopeRollover struct {
	ScopeID  string `json:"scope_id"`
	WinnerID string `json:"winner_id,omitempty"`
	Points   int64  `json:"points,omitempty"`
	Error    string `json:"error,omitempty"`
}

// RolloverReport summarises a season rollover
type RolloverReport struct {
	ClosedSeasonID string          `json:"closed_season_id"`
	NewSeasonID    string          `json:"new_season_id"`
	Scopes         []ScopeRollover `json:"scopes"`
}
