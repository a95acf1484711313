package domain

import "time"

// BoardKind selects which points column a leaderboard aggregates
type BoardKind string

const (
	// BoardSpotters ranks players by points earned spotting others.
	BoardSpotters BoardKind = "scorer"
	// BoardSpotted ranks players by how often they were caught.
	BoardSpotted BoardKind = "scored_of"
)

// Valid reports whether k names a known board.
func (k BoardKind) Valid() bool {
	return k == BoardSpotters || k == BoardSpotted
}

// ScoreRecord is one scoring event against one mentioned player
type ScoreRecord struct {
	ID           int64     `json:"id"`
	ScorerID     string    `json:"scorer_id"`
	ScoredOfID   string    `json:"scored_of_id"`
	ScopeID      string    `json:"scope_id"`
	EventKey     string    `json:"event_key"`
	ImageRef     string    `json:"image_ref,omitempty"`
	ScorerPoints int       `json:"scorer_points"`
	ScoredPoints int       `json:"scored_points"`
	SeasonID     string    `json:"season_id"`
	Valid        bool      `json:"valid"`
	CreatedAt    time.Time `json:"created_at"`
}

// LeaderboardEntry represents a single entry in a leaderboard
type LeaderboardEntry struct {
	Rank     int64  `json:"rank"`
	PlayerID string `json:"player_id"`
	Points   int64  `json:"points"`
}

// PlayerStats summarises one player's activity in a scope
type PlayerStats struct {
	ScopeID        string `json:"scope_id"`
	PlayerID       string `json:"player_id"`
	PointsScored   int64  `json:"points_scored"`
	PointsAgainst  int64  `json:"points_against"`
	FavoriteTarget string `json:"favorite_target,omitempty"`
	FavoriteCount  int64  `json:"favorite_count,omitempty"`
}

// RecordResult describes what happened to a single scoring attempt
type RecordResult string

const (
	RecordStored      RecordResult = "recorded"
	RecordDuplicate   RecordResult = "duplicate"
	RecordSelfIgnored RecordResult = "self_ignored"
)

// SpotEvent is an inbound scoring message that may mention several players
type SpotEvent struct {
	ScopeID  string   `json:"scope_id"`
	ScorerID string   `json:"scorer_id"`
	Targets  []string `json:"targets"`
	EventKey string   `json:"event_key"`
	ImageRef string   `json:"image_ref"`
}

// SpotTargetResult is the per-target outcome of a SpotEvent
type SpotTargetResult struct {
	TargetID string       `json:"target_id"`
	Result   RecordResult `json:"result"`
	Points   int          `json:"points,omitempty"`
	Bonus    bool         `json:"bonus,omitempty"`
}

// SpotResult aggregates the outcome of a SpotEvent
type SpotResult struct {
	SeasonID string             `json:"season_id"`
	Targets  []SpotTargetResult `json:"targets"`
}

// Recorded returns how many targets produced a new record.
func (r SpotResult) Recorded() int {
	n := 0
	for _, t := range r.Targets {
		if t.Result == RecordStored {
			n++
		}
	}
	return n
}
