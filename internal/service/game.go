// internal/service/game.go
//
// Player-facing game operations.
// Responsibilities:
//   - Report the active game's grid size and UID.
//   - Submit guesses: validate, check the epoch, score against the secret
//     word, persist, and reveal the word (plus leaderboard on a win) at game end.
//   - Load and persist a player's in-progress state (name + draft row).
//   - Serve the leaderboard of the active game.
//
// Every operation that reads the epoch and then writes player state holds
// the shared EpochGuard read lock for the whole sequence, so an admin reset
// can never interleave between the epoch check and the write.

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/wordly/internal/events"
	"github.com/robalobadob/wordly/internal/game"
	"github.com/robalobadob/wordly/internal/leaderboard"
	"github.com/robalobadob/wordly/internal/store"
	"github.com/robalobadob/wordly/internal/words"
)

// EpochGuard orders player writes against epoch resets.
// Player operations take the read lock, Admin.Reset takes the write lock.
type EpochGuard struct {
	sync.RWMutex
}

// ConfigView is the public description of the active game.
type ConfigView struct {
	GameUID    string `json:"gameUid"`
	WordLength int    `json:"wordLength"`
	MaxGuesses int    `json:"maxGuesses"`
}

// StateView is a player state as served to clients, with the grid
// dimensions and cursor echoed alongside.
type StateView struct {
	*game.PlayerState
	WordLength int `json:"wordLength"`
	MaxGuesses int `json:"maxGuesses"`
	CurrentRow int `json:"currentRow"`
	CurrentCol int `json:"currentCol"`
}

func newStateView(p *game.PlayerState, e *game.Epoch) *StateView {
	if p == nil {
		return nil
	}
	return &StateView{
		PlayerState: p,
		WordLength:  e.WordLength,
		MaxGuesses:  e.MaxGuesses,
		CurrentRow:  p.CurrentRow(),
		CurrentCol:  p.CurrentCol(),
	}
}

// GuessInput is a guess submission.
type GuessInput struct {
	UID     string
	GameUID string
	Guess   string
	Name    string
}

// GuessResult is the outcome of an accepted guess.
type GuessResult struct {
	Guess      string              `json:"guess"`
	Statuses   []game.Status       `json:"statuses"`
	IsCorrect  bool                `json:"isCorrect"`
	State      *StateView          `json:"state"`
	Word       string              `json:"word,omitempty"`
	Definition string              `json:"definition,omitempty"`
	Scores     []leaderboard.Entry `json:"scores,omitempty"`
	Rank       int                 `json:"rank,omitempty"`
}

// SaveInput is a state persistence request.
type SaveInput struct {
	UID     string
	GameUID string
	Name    string
	Draft   string
}

// Game serves the player-facing operations.
type Game struct {
	store   store.Store
	checker words.Checker
	board   *leaderboard.Board
	guard   *EpochGuard
	events  events.Publisher
}

// NewGame wires the player-facing service. A nil publisher disables events.
func NewGame(st store.Store, checker words.Checker, board *leaderboard.Board, guard *EpochGuard, pub events.Publisher) *Game {
	if pub == nil {
		pub = events.Noop{}
	}
	return &Game{store: st, checker: checker, board: board, guard: guard, events: pub}
}

// currentEpoch loads the active game. Callers hold g.guard.
func (g *Game) currentEpoch(ctx context.Context) (*game.Epoch, error) {
	e, err := g.store.CurrentEpoch(ctx)
	if err != nil {
		return nil, fmt.Errorf("load current game: %w", err)
	}
	return e, nil
}

// Config returns the active game's dimensions and UID.
func (g *Game) Config(ctx context.Context) (*ConfigView, error) {
	g.guard.RLock()
	defer g.guard.RUnlock()

	e, err := g.currentEpoch(ctx)
	if err != nil {
		return nil, err
	}
	return &ConfigView{GameUID: e.GameUID, WordLength: e.WordLength, MaxGuesses: e.MaxGuesses}, nil
}

// SubmitGuess validates, scores and records one guess.
//
// Checks run in a fixed order and any failure leaves the store untouched:
// input shape, epoch match, player existence, game over, length, word
// validity. Only then is the player created (if new) and the guess recorded,
// both in one store write.
func (g *Game) SubmitGuess(ctx context.Context, in GuessInput) (*GuessResult, error) {
	in.UID = strings.TrimSpace(in.UID)
	in.GameUID = strings.TrimSpace(in.GameUID)
	in.Name = strings.TrimSpace(in.Name)
	in.Guess = strings.ToUpper(strings.TrimSpace(in.Guess))
	switch {
	case in.UID == "":
		return nil, game.Invalid("uid is required")
	case in.GameUID == "":
		return nil, game.Invalid("gameUid is required")
	case in.Guess == "":
		return nil, game.Invalid("guess is required")
	}

	// The word check may call out to a dictionary API, so it runs before
	// the read lock is taken. Only its verdict is consulted under the lock.
	valid := g.checker.IsValidWord(ctx, in.Guess, utf8.RuneCountInString(in.Guess))

	res, e, err := g.submitLocked(ctx, in, valid)
	if err != nil {
		return nil, err
	}
	g.emitGuess(ctx, e, res)
	return res, nil
}

func (g *Game) submitLocked(ctx context.Context, in GuessInput, valid bool) (*GuessResult, *game.Epoch, error) {
	g.guard.RLock()
	defer g.guard.RUnlock()

	e, err := g.currentEpoch(ctx)
	if err != nil {
		return nil, nil, err
	}
	if in.GameUID != e.GameUID {
		return nil, nil, &game.EpochMismatchError{Epoch: e}
	}

	p, err := g.store.GetState(ctx, e.GameUID, in.UID)
	if err != nil {
		return nil, nil, err
	}
	if p == nil && in.Name == "" {
		return nil, nil, game.Invalid("name is required")
	}
	if p != nil && p.GameOver {
		return nil, nil, game.ErrGameOver
	}
	if utf8.RuneCountInString(in.Guess) != e.WordLength {
		return nil, nil, game.Invalid("Invalid guess length.")
	}
	if !valid {
		return nil, nil, game.ErrNotAWord
	}

	statuses := game.Evaluate(in.Guess, e.Word)

	// A new player is registered and their first guess recorded atomically.
	p, err = g.store.RecordGuess(ctx, e.GameUID, in.UID, in.Name, in.Guess, statuses, e.MaxGuesses)
	if err != nil {
		return nil, nil, err
	}

	res := &GuessResult{
		Guess:     in.Guess,
		Statuses:  statuses,
		IsCorrect: game.Solved(statuses),
		State:     newStateView(p, e),
	}
	if p.GameOver {
		res.Word = e.Word
		res.Definition = e.Definition
	}
	if p.IsWinner {
		scores, rank, err := g.board.Position(ctx, e.GameUID, in.UID)
		if err != nil {
			// The guess is recorded; a failed board read only drops the extras.
			log.Error().Err(err).Str("gameUid", e.GameUID).Msg("load scores after win")
		} else {
			res.Scores, res.Rank = scores, rank
		}
	}
	return res, e, nil
}

func (g *Game) emitGuess(ctx context.Context, e *game.Epoch, res *GuessResult) {
	p := res.State.PlayerState
	statuses := make([]string, len(res.Statuses))
	for i, s := range res.Statuses {
		statuses[i] = string(s)
	}
	g.publish(ctx, events.Event{
		Type:    events.TypeGuess,
		GameUID: e.GameUID,
		UID:     p.UID,
		Data:    events.GuessData{Guess: res.Guess, Row: p.Tries() - 1, Statuses: statuses},
	})
	if !p.GameOver {
		return
	}
	t := events.TypeLoss
	if p.IsWinner {
		t = events.TypeWin
	}
	g.publish(ctx, events.Event{
		Type:    t,
		GameUID: e.GameUID,
		UID:     p.UID,
		Data:    events.FinishData{Name: p.Name, Tries: p.Tries(), DurationSeconds: p.Duration().Seconds()},
	})
}

func (g *Game) publish(ctx context.Context, ev events.Event) {
	if err := g.events.Publish(ctx, ev); err != nil {
		log.Warn().Err(err).Str("type", string(ev.Type)).Str("gameUid", ev.GameUID).Msg("publish event")
	}
}

// State returns uid's state in the active game, or nil when it has none.
func (g *Game) State(ctx context.Context, uid string) (*StateView, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, game.Invalid("uid is required")
	}
	g.guard.RLock()
	defer g.guard.RUnlock()

	e, err := g.currentEpoch(ctx)
	if err != nil {
		return nil, err
	}
	p, err := g.store.GetState(ctx, e.GameUID, uid)
	if err != nil {
		return nil, err
	}
	return newStateView(p, e), nil
}

// SaveState persists a player's name and draft row for the active game.
// Guesses and keyboard colours stay server-authoritative.
func (g *Game) SaveState(ctx context.Context, in SaveInput) (*StateView, error) {
	in.UID = strings.TrimSpace(in.UID)
	in.GameUID = strings.TrimSpace(in.GameUID)
	in.Name = strings.TrimSpace(in.Name)
	switch {
	case in.UID == "":
		return nil, game.Invalid("uid is required")
	case in.Name == "":
		return nil, game.Invalid("name is required")
	case in.GameUID == "":
		return nil, game.Invalid("gameUid is required")
	}
	draft := words.SanitizeWord(in.Draft)

	g.guard.RLock()
	defer g.guard.RUnlock()

	e, err := g.currentEpoch(ctx)
	if err != nil {
		return nil, err
	}
	if in.GameUID != e.GameUID {
		return nil, &game.EpochMismatchError{Epoch: e}
	}
	if len(draft) > e.WordLength {
		return nil, game.Invalid("draft is longer than %d letters", e.WordLength)
	}
	p, err := g.store.SaveState(ctx, e.GameUID, in.UID, in.Name, draft)
	if err != nil {
		return nil, err
	}
	return newStateView(p, e), nil
}

// Scores returns the leaderboard of the active game.
func (g *Game) Scores(ctx context.Context) ([]leaderboard.Entry, error) {
	g.guard.RLock()
	defer g.guard.RUnlock()

	e, err := g.currentEpoch(ctx)
	if err != nil {
		return nil, err
	}
	return g.board.List(ctx, e.GameUID)
}

// IsNoEpoch reports whether err means no game has been started yet.
func IsNoEpoch(err error) bool { return errors.Is(err, store.ErrNoEpoch) }
