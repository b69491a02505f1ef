// internal/game/engine.go
//
// Core game engine.
// Responsibilities:
//   - Score guesses using the classic two-pass Wordle algorithm.
//   - Aggregate keyboard colours across guesses (strongest status wins).
//   - Apply a scored guess to a PlayerState: playing → won/lost.
//
// Notes:
//   - Words reaching this package are already normalized to uppercase by the caller.
//   - Validation against the word list lives in the words package.
package game

import (
	"strings"
	"time"
)

// Evaluate scores guess against solution.
//
// Pass 1:
//   - Mark exact matches as correct.
//   - Count remaining (non-correct) solution letters.
//
// Pass 2:
//   - For each non-correct guess letter: if there is remaining count for that letter,
//     mark present and decrement the count; otherwise mark absent.
//
// A letter therefore never gets more correct+present marks than it has
// occurrences in the solution, and exact positions are always preferred.
// Evaluate panics if the two words differ in length.
func Evaluate(guess, solution string) []Status {
	g := []rune(guess)
	s := []rune(solution)
	if len(g) != len(s) {
		panic("game: Evaluate called with words of different length")
	}
	res := make([]Status, len(g))
	remaining := make(map[rune]int, len(s))

	for i := range g {
		if g[i] == s[i] {
			res[i] = StatusCorrect
		} else {
			remaining[s[i]]++
		}
	}

	for i := range g {
		if res[i] == StatusCorrect {
			continue
		}
		if remaining[g[i]] > 0 {
			res[i] = StatusPresent
			remaining[g[i]]--
		} else {
			res[i] = StatusAbsent
		}
	}
	return res
}

// Solved returns true if all statuses are correct.
func Solved(statuses []Status) bool {
	if len(statuses) == 0 {
		return false
	}
	for _, s := range statuses {
		if s != StatusCorrect {
			return false
		}
	}
	return true
}

// MergeKeyboard folds one scored guess into the keyboard map.
// A stored status is only replaced by a strictly stronger one, so a letter
// once shown correct never degrades.
func MergeKeyboard(kb map[string]Status, guess string, statuses []Status) {
	for i, r := range []rune(guess) {
		if i >= len(statuses) {
			return
		}
		letter := strings.ToUpper(string(r))
		if cur, ok := kb[letter]; !ok || statuses[i].rank() > cur.rank() {
			kb[letter] = statuses[i]
		}
	}
}

// NewPlayerState returns an empty state for uid in the given epoch.
func NewPlayerState(gameUID, uid, name string, now time.Time) *PlayerState {
	return &PlayerState{
		UID:              uid,
		GameUID:          gameUID,
		Name:             name,
		Guesses:          []Guess{},
		KeyboardStatuses: map[string]Status{},
		StartTime:        now,
	}
}

// Record appends a scored guess and updates terminal flags.
//
// State transitions:
//   - If all statuses are correct → GameOver = true, IsWinner = true.
//   - Else if the number of guesses reaches maxGuesses → GameOver = true (loss).
func (p *PlayerState) Record(guess string, statuses []Status, maxGuesses int, now time.Time) error {
	if p.GameOver {
		return ErrGameOver
	}
	if len(p.Guesses) >= maxGuesses {
		return ErrTooManyGuesses
	}
	if p.KeyboardStatuses == nil {
		p.KeyboardStatuses = map[string]Status{}
	}

	p.Guesses = append(p.Guesses, Guess{Text: guess, Statuses: append([]Status(nil), statuses...)})
	p.Draft = ""
	MergeKeyboard(p.KeyboardStatuses, guess, statuses)

	if Solved(statuses) {
		p.GameOver, p.IsWinner = true, true
	} else if len(p.Guesses) >= maxGuesses {
		p.GameOver = true
	}
	if p.GameOver {
		t := now
		p.FinishTime = &t
	}
	return nil
}
