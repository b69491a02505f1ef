// internal/store/memory.go
//
// In-memory implementation of Store.
// Used in development/testing, or when durability is not required.
//
// Characteristics:
//   - Epochs and player states live in maps; stale epochs are kept (orphaned).
//   - Concurrency-safe via RWMutex (concurrent reads allowed, writes exclusive).
//   - State is lost when the process restarts.
//   - Callers always receive clones, never the stored pointers.

package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robalobadob/wordly/internal/game"
)

type stateKey struct{ gameUID, uid string }

// memory is an in-memory map-based Store implementation.
type memory struct {
	mu     sync.RWMutex
	epoch  *game.Epoch
	states map[stateKey]*game.PlayerState
	order  map[string][]string          // gameUID → uids in creation order
	names  map[string]map[string]string // gameUID → name key → uid
	now    func() time.Time
}

// NewMemory constructs a new in-memory Store.
func NewMemory(opts ...Option) Store {
	o := buildOptions(opts)
	return &memory{
		states: make(map[stateKey]*game.PlayerState),
		order:  make(map[string][]string),
		names:  make(map[string]map[string]string),
		now:    o.now,
	}
}

func (m *memory) CurrentEpoch(ctx context.Context) (*game.Epoch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.epoch == nil {
		return nil, ErrNoEpoch
	}
	e := *m.epoch
	return &e, nil
}

func (m *memory) ResetEpoch(ctx context.Context, word, definition string, wordLength, maxGuesses int) (*game.Epoch, error) {
	if err := checkEpochArgs(word, wordLength, maxGuesses); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := ""
	if m.epoch != nil {
		prev = m.epoch.GameUID
	}
	m.epoch = &game.Epoch{
		GameUID:    newGameUID(prev),
		Word:       strings.ToUpper(word),
		Definition: definition,
		WordLength: wordLength,
		MaxGuesses: maxGuesses,
		CreatedAt:  m.now().UTC(),
	}
	e := *m.epoch
	return &e, nil
}

func (m *memory) GetState(ctx context.Context, gameUID, uid string) (*game.PlayerState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.states[stateKey{gameUID, uid}].Clone(), nil
}

func (m *memory) CreateState(ctx context.Context, gameUID, uid, name string) (*game.PlayerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.states[stateKey{gameUID, uid}]; ok {
		return p.Clone(), nil
	}
	p, err := m.insertLocked(gameUID, uid, name)
	if err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

// insertLocked claims name and stores a fresh state. Caller holds m.mu.
func (m *memory) insertLocked(gameUID, uid, name string) (*game.PlayerState, error) {
	if err := m.claimNameLocked(gameUID, uid, name); err != nil {
		return nil, err
	}
	p := game.NewPlayerState(gameUID, uid, strings.TrimSpace(name), m.now().UTC())
	m.states[stateKey{gameUID, uid}] = p
	m.order[gameUID] = append(m.order[gameUID], uid)
	return p, nil
}

// claimNameLocked records name as held by uid, releasing uid's previous name.
func (m *memory) claimNameLocked(gameUID, uid, name string) error {
	key := NameKey(name)
	byName, ok := m.names[gameUID]
	if !ok {
		byName = make(map[string]string)
		m.names[gameUID] = byName
	}
	if holder, ok := byName[key]; ok && holder != uid {
		return &game.ConflictError{Name: strings.TrimSpace(name)}
	}
	if p, ok := m.states[stateKey{gameUID, uid}]; ok {
		delete(byName, NameKey(p.Name))
	}
	byName[key] = uid
	return nil
}

func (m *memory) SaveState(ctx context.Context, gameUID, uid, name, draft string) (*game.PlayerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.states[stateKey{gameUID, uid}]
	if !ok {
		var err error
		if p, err = m.insertLocked(gameUID, uid, name); err != nil {
			return nil, err
		}
	} else if p.Name != strings.TrimSpace(name) {
		if err := m.claimNameLocked(gameUID, uid, name); err != nil {
			return nil, err
		}
		p.Name = strings.TrimSpace(name)
	}
	if !p.GameOver {
		p.Draft = draft
	}
	return p.Clone(), nil
}

func (m *memory) RecordGuess(ctx context.Context, gameUID, uid, name, guess string, statuses []game.Status, maxGuesses int) (*game.PlayerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.states[stateKey{gameUID, uid}]
	if !ok {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, ErrNotFound
		}
		if holder, taken := m.names[gameUID][NameKey(name)]; taken && holder != uid {
			return nil, &game.ConflictError{Name: name}
		}
		p = game.NewPlayerState(gameUID, uid, name, m.now().UTC())
	}
	next := p.Clone()
	if err := next.Record(guess, statuses, maxGuesses, m.now().UTC()); err != nil {
		return nil, err
	}
	if !ok {
		if err := m.claimNameLocked(gameUID, uid, name); err != nil {
			return nil, err
		}
		m.order[gameUID] = append(m.order[gameUID], uid)
	}
	m.states[stateKey{gameUID, uid}] = next
	return next.Clone(), nil
}

func (m *memory) ListStates(ctx context.Context, gameUID string) ([]*game.PlayerState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	uids := m.order[gameUID]
	out := make([]*game.PlayerState, 0, len(uids))
	for _, uid := range uids {
		out = append(out, m.states[stateKey{gameUID, uid}].Clone())
	}
	return out, nil
}

func (m *memory) Rebuild(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epoch = nil
	m.states = make(map[stateKey]*game.PlayerState)
	m.order = make(map[string][]string)
	m.names = make(map[string]map[string]string)
	return nil
}

func (m *memory) Close() error { return nil }
