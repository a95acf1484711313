package storage

import "github.com/spotbot/internal/domain"

// AssignRanks numbers entries 1..n in their current order.
func AssignRanks(entries []domain.LeaderboardEntry) []domain.LeaderboardEntry {
	for i := range entries {
		entries[i].Rank = int64(i + 1)
	}
	return entries
}

// PointsColumns returns the grouping and summed columns for a board.
func PointsColumns(board domain.BoardKind) (group, sum string, ok bool) {
	switch board {
	case domain.BoardSpotters:
		return "scorer_id", "scorer_points", true
	case domain.BoardSpotted:
		return "scored_of_id", "scored_points", true
	default:
		return "", "", false
	}
}
