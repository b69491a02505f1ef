// Package leaderboard ranks the winners of an epoch.
//
// Ordering is fewest tries, then shortest duration, then earliest finish,
// with the player uid as a final tie-break so equal inputs always produce
// the same board.
package leaderboard

import (
	"context"
	"fmt"
	"sort"

	"github.com/robalobadob/wordly/internal/game"
	"github.com/robalobadob/wordly/internal/store"
)

// Entry is one row of the scoreboard.
type Entry struct {
	UID       string  `json:"uid"`
	Name      string  `json:"name"`
	Tries     int     `json:"tries"`
	Duration  float64 `json:"duration"`  // seconds from start to finish
	Timestamp int64   `json:"timestamp"` // finish time, unix seconds
}

// Build derives the ranked entries from the player states of one epoch.
// Players who have not won are skipped.
func Build(states []*game.PlayerState) []Entry {
	out := make([]Entry, 0, len(states))
	for _, p := range states {
		if p == nil || !p.IsWinner || p.FinishTime == nil {
			continue
		}
		out = append(out, Entry{
			UID:       p.UID,
			Name:      p.Name,
			Tries:     p.Tries(),
			Duration:  p.Duration().Seconds(),
			Timestamp: p.FinishTime.Unix(),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Tries != b.Tries {
			return a.Tries < b.Tries
		}
		if a.Duration != b.Duration {
			return a.Duration < b.Duration
		}
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		return a.UID < b.UID
	})
	return out
}

// Rank returns the 1-based position of uid, or 0 when uid is not on the board.
func Rank(entries []Entry, uid string) int {
	for i, e := range entries {
		if e.UID == uid {
			return i + 1
		}
	}
	return 0
}

// Board reads player states from a store and ranks them.
type Board struct {
	states store.PlayerStore
	limit  int
}

// New returns a Board. A limit of zero or less means unlimited.
func New(states store.PlayerStore, limit int) *Board {
	return &Board{states: states, limit: limit}
}

// List returns the ranked winners of gameUID, truncated to the board limit.
func (b *Board) List(ctx context.Context, gameUID string) ([]Entry, error) {
	entries, err := b.all(ctx, gameUID)
	if err != nil {
		return nil, err
	}
	if b.limit > 0 && len(entries) > b.limit {
		entries = entries[:b.limit]
	}
	return entries, nil
}

// Position returns the full ranking together with uid's 1-based rank.
func (b *Board) Position(ctx context.Context, gameUID, uid string) ([]Entry, int, error) {
	entries, err := b.all(ctx, gameUID)
	if err != nil {
		return nil, 0, err
	}
	rank := Rank(entries, uid)
	if b.limit > 0 && len(entries) > b.limit {
		entries = entries[:b.limit]
	}
	return entries, rank, nil
}

func (b *Board) all(ctx context.Context, gameUID string) ([]Entry, error) {
	states, err := b.states.ListStates(ctx, gameUID)
	if err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}
	return Build(states), nil
}
