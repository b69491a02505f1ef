// internal/game/types.go
//
// Core type definitions for the wordly game.
// Defines:
//   - Status: per-letter result of a guess (correct/present/absent).
//   - Epoch: the single active secret word and its grid dimensions.
//   - PlayerState: one device's progress within an epoch.

package game

import "time"

// Status represents the evaluation result for a single letter in a guess.
// Possible values:
//   - "correct": letter is in the solution at this position.
//   - "present": letter is in the solution at another position.
//   - "absent":  letter has no unconsumed occurrence in the solution.
type Status string

const (
	StatusCorrect Status = "correct"
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
)

// rank orders statuses for keyboard aggregation; unknown values rank 0.
func (s Status) rank() int {
	switch s {
	case StatusCorrect:
		return 3
	case StatusPresent:
		return 2
	case StatusAbsent:
		return 1
	}
	return 0
}

// Valid reports whether s is one of the three known statuses.
func (s Status) Valid() bool { return s.rank() > 0 }

// Epoch is the active game: which word is being guessed and how big the grid is.
// GameUID changes on every admin reset.
type Epoch struct {
	GameUID    string    `json:"gameUid"`
	Word       string    `json:"-"`
	Definition string    `json:"-"`
	WordLength int       `json:"wordLength"`
	MaxGuesses int       `json:"maxGuesses"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Guess is one submitted row.
type Guess struct {
	Text     string   `json:"guess"`
	Statuses []Status `json:"statuses"`
}

// PlayerState holds one device's progress within one epoch.
type PlayerState struct {
	UID              string            `json:"uid"`
	GameUID          string            `json:"gameUid"`
	Name             string            `json:"name"`
	Guesses          []Guess           `json:"guesses"`
	Draft            string            `json:"draft"`
	KeyboardStatuses map[string]Status `json:"keyboardStatuses"`
	GameOver         bool              `json:"gameOver"`
	IsWinner         bool              `json:"isWinner"`
	StartTime        time.Time         `json:"startTime"`
	FinishTime       *time.Time        `json:"finishTime,omitempty"`
}

// CurrentRow is the row the next guess lands on.
func (p *PlayerState) CurrentRow() int { return len(p.Guesses) }

// CurrentCol is the cursor within the current row.
func (p *PlayerState) CurrentCol() int { return len(p.Draft) }

// Tries is the number of guesses submitted so far.
func (p *PlayerState) Tries() int { return len(p.Guesses) }

// Duration is the time from StartTime to FinishTime, zero while playing.
func (p *PlayerState) Duration() time.Duration {
	if p.FinishTime == nil {
		return 0
	}
	return p.FinishTime.Sub(p.StartTime)
}

// Clone returns a deep copy so callers can't mutate store-owned state.
func (p *PlayerState) Clone() *PlayerState {
	if p == nil {
		return nil
	}
	c := *p
	c.Guesses = make([]Guess, len(p.Guesses))
	for i, g := range p.Guesses {
		c.Guesses[i] = Guess{Text: g.Text, Statuses: append([]Status(nil), g.Statuses...)}
	}
	c.KeyboardStatuses = make(map[string]Status, len(p.KeyboardStatuses))
	for k, v := range p.KeyboardStatuses {
		c.KeyboardStatuses[k] = v
	}
	if p.FinishTime != nil {
		t := *p.FinishTime
		c.FinishTime = &t
	}
	return &c
}
