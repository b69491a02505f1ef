// internal/store/store.go
//
// Persistence interfaces for the active game epoch and per-player state.
// Implementations: memory (this package, ephemeral), SQLite (default, durable)
// and Postgres.
//
// All implementations are safe for concurrent use. Check-then-insert of a
// player name is atomic per epoch, and RecordGuess is an atomic
// read-modify-write of one player's state.

package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/robalobadob/wordly/internal/game"
)

var (
	// ErrNoEpoch is returned by CurrentEpoch before any epoch has been created.
	ErrNoEpoch = errors.New("store: no active game")
	// ErrNotFound is returned when a player has no state in the epoch.
	ErrNotFound = errors.New("store: player state not found")
)

// EpochStore holds the single active game.
type EpochStore interface {
	// CurrentEpoch returns the active game or ErrNoEpoch.
	CurrentEpoch(ctx context.Context) (*game.Epoch, error)

	// ResetEpoch atomically replaces the active game with a new one whose
	// GameUID differs from the previous one.
	ResetEpoch(ctx context.Context, word, definition string, wordLength, maxGuesses int) (*game.Epoch, error)
}

// PlayerStore holds player state keyed by (gameUID, uid).
type PlayerStore interface {
	// GetState returns (nil, nil) when the player has no state in the epoch.
	GetState(ctx context.Context, gameUID, uid string) (*game.PlayerState, error)

	// CreateState registers uid under name. Returns *game.ConflictError when
	// another uid already holds the name (case-insensitive) in the epoch.
	CreateState(ctx context.Context, gameUID, uid, name string) (*game.PlayerState, error)

	// SaveState upserts the non-authoritative parts of a state: the display
	// name (conflict-checked) and the in-progress draft row.
	SaveState(ctx context.Context, gameUID, uid, name, draft string) (*game.PlayerState, error)

	// RecordGuess appends a scored guess. When uid has no state and name is
	// set, the state is created under name in the same write; name is
	// ignored otherwise. Returns ErrNotFound (no state, no name),
	// *game.ConflictError, game.ErrGameOver or game.ErrTooManyGuesses
	// without changing anything.
	RecordGuess(ctx context.Context, gameUID, uid, name, guess string, statuses []game.Status, maxGuesses int) (*game.PlayerState, error)

	// ListStates returns every player state of the epoch in creation order.
	ListStates(ctx context.Context, gameUID string) ([]*game.PlayerState, error)
}

// Store is the full persistence surface used by the server.
type Store interface {
	EpochStore
	PlayerStore

	// Rebuild deletes every game and player state.
	Rebuild(ctx context.Context) error
	Close() error
}

// Option configures a store.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source used for start/finish timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// NameKey is the case-insensitive identity of a display name.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// newGameUID returns a fresh 32-hex-char identifier different from prev.
func newGameUID(prev string) string {
	for {
		id := strings.ReplaceAll(uuid.NewString(), "-", "")
		if id != prev {
			return id
		}
	}
}

func checkEpochArgs(word string, wordLength, maxGuesses int) error {
	if word == "" || wordLength <= 0 || maxGuesses <= 0 {
		return errors.New("store: epoch needs a word and positive dimensions")
	}
	if len([]rune(word)) != wordLength {
		return errors.New("store: word length does not match wordLength")
	}
	return nil
}
