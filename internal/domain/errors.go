package domain

import "errors"

// Move validation errors. All of them are user-facing and never mutate state.
var (
	ErrInvalidPosition = errors.New("position must be between 0 and 8")
	ErrCellOccupied    = errors.New("position already taken")
	ErrGameFinished    = errors.New("game is already finished")
	ErrNotPlayersTurn  = errors.New("it is not the player's turn")
)

// IsValidationError reports whether err is one of the move validation errors.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidPosition) ||
		errors.Is(err, ErrCellOccupied) ||
		errors.Is(err, ErrGameFinished) ||
		errors.Is(err, ErrNotPlayersTurn)
}
