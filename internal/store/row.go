package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/robalobadob/wordly/internal/game"
)

// stateRow is the column mapping of player_states shared by the SQL stores.
type stateRow struct {
	GameUID  string
	UID      string
	Name     string
	Draft    string
	Guesses  []byte
	Keyboard []byte
	GameOver bool
	IsWinner bool
	StartMs  int64
	FinishMs *int64
}

// toDomain converts the database row to the domain model.
func (r *stateRow) toDomain() (*game.PlayerState, error) {
	p := &game.PlayerState{
		UID:       r.UID,
		GameUID:   r.GameUID,
		Name:      r.Name,
		Draft:     r.Draft,
		GameOver:  r.GameOver,
		IsWinner:  r.IsWinner,
		StartTime: time.UnixMilli(r.StartMs).UTC(),
	}
	if err := json.Unmarshal(r.Guesses, &p.Guesses); err != nil {
		return nil, fmt.Errorf("decode guesses for %s: %w", r.UID, err)
	}
	if err := json.Unmarshal(r.Keyboard, &p.KeyboardStatuses); err != nil {
		return nil, fmt.Errorf("decode keyboard for %s: %w", r.UID, err)
	}
	for _, g := range p.Guesses {
		for _, st := range g.Statuses {
			if !st.Valid() {
				return nil, fmt.Errorf("decode guesses for %s: unknown status %q", r.UID, st)
			}
		}
	}
	if p.Guesses == nil {
		p.Guesses = []game.Guess{}
	}
	if p.KeyboardStatuses == nil {
		p.KeyboardStatuses = map[string]game.Status{}
	}
	if r.FinishMs != nil {
		t := time.UnixMilli(*r.FinishMs).UTC()
		p.FinishTime = &t
	}
	return p, nil
}

// rowFromDomain converts a state into column values.
func rowFromDomain(p *game.PlayerState) (*stateRow, error) {
	guesses := p.Guesses
	if guesses == nil {
		guesses = []game.Guess{}
	}
	g, err := json.Marshal(guesses)
	if err != nil {
		return nil, fmt.Errorf("encode guesses: %w", err)
	}
	kb := p.KeyboardStatuses
	if kb == nil {
		kb = map[string]game.Status{}
	}
	k, err := json.Marshal(kb)
	if err != nil {
		return nil, fmt.Errorf("encode keyboard: %w", err)
	}
	r := &stateRow{
		GameUID:  p.GameUID,
		UID:      p.UID,
		Name:     p.Name,
		Draft:    p.Draft,
		Guesses:  g,
		Keyboard: k,
		GameOver: p.GameOver,
		IsWinner: p.IsWinner,
		StartMs:  p.StartTime.UnixMilli(),
	}
	if p.FinishTime != nil {
		ms := p.FinishTime.UnixMilli()
		r.FinishMs = &ms
	}
	return r, nil
}

// scanTargets lists destinations in stateColumns order.
func (r *stateRow) scanTargets() []any {
	return []any{&r.GameUID, &r.UID, &r.Name, &r.Draft, &r.Guesses, &r.Keyboard, &r.GameOver, &r.IsWinner, &r.StartMs, &r.FinishMs}
}

const stateColumns = `game_uid, uid, name, draft, guesses, keyboard, game_over, is_winner, start_time, finish_time`

// epochRow mirrors the games table.
type epochRow struct {
	UID        string
	Word       string
	Definition string
	WordLength int
	MaxGuesses int
	CreatedMs  int64
}

func (r *epochRow) toDomain() *game.Epoch {
	return &game.Epoch{
		GameUID:    r.UID,
		Word:       r.Word,
		Definition: r.Definition,
		WordLength: r.WordLength,
		MaxGuesses: r.MaxGuesses,
		CreatedAt:  time.UnixMilli(r.CreatedMs).UTC(),
	}
}

func (r *epochRow) scanTargets() []any {
	return []any{&r.UID, &r.Word, &r.Definition, &r.WordLength, &r.MaxGuesses, &r.CreatedMs}
}

const epochColumns = `uid, word, definition, word_length, max_guesses, created_at`
