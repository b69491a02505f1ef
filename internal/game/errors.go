package game

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAWord is returned for guesses rejected by the word checker.
	// The client keeps the row open for correction on this code.
	ErrNotAWord = &ValidationError{Code: "not_a_word", Message: "That is not a word."}

	ErrGameOver       = errors.New("Game is already over for this player.")
	ErrTooManyGuesses = errors.New("Maximum guesses reached for this game.")
	ErrUnauthorized   = errors.New("Invalid admin code.")
)

// ValidationError is a locally recoverable input problem; no state was changed.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Invalid builds a ValidationError with the generic "invalid" code.
func Invalid(format string, args ...any) *ValidationError {
	return &ValidationError{Code: "invalid", Message: fmt.Sprintf(format, args...)}
}

// ConflictError reports a display name already held by another device in the epoch.
type ConflictError struct {
	Name string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("The name %s is already in use. Please choose another", e.Name)
}

// EpochMismatchError is returned when a client acts on a stale game UID.
// Epoch carries the active game so the client can rebuild its grid.
type EpochMismatchError struct {
	Epoch *Epoch
}

func (e *EpochMismatchError) Error() string { return "Game has reset. Please start a new game." }

// RateLimitError is returned when admin verification is attempted too often.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string { return "Too many attempts. Try again later." }
