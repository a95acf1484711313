package domain

import "errors"

// Domain errors
var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrInternalError  = errors.New("internal server error")
	ErrForbidden      = errors.New("not allowed")

	// Scoring
	ErrDuplicateEvent = errors.New("scoring event already recorded")

	// Elimination game, input rejections
	ErrInsufficientPlayers = errors.New("at least 3 players are required to start a game")
	ErrMissingEvidence     = errors.New("an elimination claim needs evidence attached")
	ErrNotAPlayer          = errors.New("not a player in this game")
	ErrWrongTarget         = errors.New("that player is not your target")
	ErrKillerEliminated    = errors.New("you have already been eliminated")
	ErrAlreadyEliminated   = errors.New("player has already been eliminated")

	// Elimination game, state conflicts
	ErrAlreadyActive           = errors.New("a game is already running in this scope")
	ErrVictimAlreadyEliminated = errors.New("target has already been eliminated")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotAPlayer)
}

// IsInputRejection reports errors caused by what the caller asked for.
func IsInputRejection(err error) bool {
	for _, target := range []error{
		ErrInvalidRequest,
		ErrInsufficientPlayers,
		ErrMissingEvidence,
		ErrNotAPlayer,
		ErrWrongTarget,
		ErrKillerEliminated,
		ErrAlreadyEliminated,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsStateConflict reports guards that fired because shared state moved
// underneath the caller.
func IsStateConflict(err error) bool {
	return errors.Is(err, ErrAlreadyActive) || errors.Is(err, ErrVictimAlreadyEliminated)
}
