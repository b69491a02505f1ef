package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/wordly/internal/admin"
	"github.com/robalobadob/wordly/internal/daily"
	"github.com/robalobadob/wordly/internal/events"
	"github.com/robalobadob/wordly/internal/game"
	"github.com/robalobadob/wordly/internal/leaderboard"
	"github.com/robalobadob/wordly/internal/ratelimit"
	"github.com/robalobadob/wordly/internal/store"
	"github.com/robalobadob/wordly/internal/words"
)

// mockPublisher records published events.
type mockPublisher struct {
	mock.Mock
	mu     sync.Mutex
	events []events.Event
}

func (m *mockPublisher) Publish(ctx context.Context, e events.Event) error {
	m.mu.Lock()
	m.events = append(m.events, e)
	m.mu.Unlock()
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *mockPublisher) Close() error { return nil }

func (m *mockPublisher) types() []events.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]events.Type, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	guard *EpochGuard
	store store.Store
	game  *Game
	admin *Admin
	pub   *mockPublisher
	list  *words.List
}

func newFixture(t *testing.T, maxGuesses int) *fixture {
	t.Helper()
	clock := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}

	st := store.NewMemory(store.WithClock(now))
	list := words.New(
		[]words.Candidate{{Word: "CRANE", Definition: "A large wading bird."}, {Word: "SLATE", Definition: "A fine-grained rock."}},
		[]string{"TOAST", "TACIT", "FUZZY", "LLAMA"},
	)
	auth, err := admin.New(admin.Config{Code: "open-sesame", Secret: "test-secret", TTL: time.Minute})
	require.NoError(t, err)

	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything).Return(nil)

	guard := &EpochGuard{}
	f := &fixture{
		guard: guard,
		store: st,
		game:  NewGame(st, list, leaderboard.New(st, 0), guard, pub),
		admin: NewAdmin(st, list, auth, ratelimit.NewMemory(3, time.Minute), guard, pub, AdminConfig{MaxGuesses: maxGuesses, Now: now}),
		pub:   pub,
		list:  list,
	}
	return f
}

// start installs a fixed word as the active game.
func (f *fixture) start(t *testing.T, word string) *game.Epoch {
	t.Helper()
	e, err := f.admin.Start(context.Background(), words.Candidate{Word: word, Definition: "def of " + word})
	require.NoError(t, err)
	return e
}

func TestSubmitGuessEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 6)
	e := f.start(t, "CRANE")

	cfg, err := f.game.Config(ctx)
	require.NoError(t, err)
	assert.Equal(t, ConfigView{GameUID: e.GameUID, WordLength: 5, MaxGuesses: 6}, *cfg)

	res, err := f.game.SubmitGuess(ctx, GuessInput{UID: "u1", GameUID: e.GameUID, Guess: " slate ", Name: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, "SLATE", res.Guess)
	assert.Equal(t, []game.Status{game.StatusAbsent, game.StatusAbsent, game.StatusCorrect, game.StatusAbsent, game.StatusCorrect}, res.Statuses)
	assert.False(t, res.IsCorrect)
	assert.Empty(t, res.Word, "word stays secret while playing")
	assert.Equal(t, 1, res.State.CurrentRow)
	assert.Equal(t, 5, res.State.WordLength)

	res, err = f.game.SubmitGuess(ctx, GuessInput{UID: "u1", GameUID: e.GameUID, Guess: "CRANE"})
	require.NoError(t, err)
	assert.True(t, res.IsCorrect)
	assert.True(t, res.State.GameOver)
	assert.True(t, res.State.IsWinner)
	assert.Equal(t, "CRANE", res.Word)
	assert.Equal(t, "def of CRANE", res.Definition)
	assert.Equal(t, 1, res.Rank)
	require.Len(t, res.Scores, 1)
	assert.Equal(t, "Alice", res.Scores[0].Name)
	assert.Equal(t, 2, res.Scores[0].Tries)
	assert.Equal(t, game.StatusCorrect, res.State.KeyboardStatuses["C"])

	_, err = f.game.SubmitGuess(ctx, GuessInput{UID: "u1", GameUID: e.GameUID, Guess: "CRANE"})
	assert.ErrorIs(t, err, game.ErrGameOver)

	scores, err := f.game.Scores(ctx)
	require.NoError(t, err)
	assert.Len(t, scores, 1)

	assert.Equal(t, []events.Type{events.TypeReset, events.TypeGuess, events.TypeGuess, events.TypeWin}, f.pub.types())
}

func TestSubmitGuessLossRevealsWord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	e := f.start(t, "CRANE")

	_, err := f.game.SubmitGuess(ctx, GuessInput{UID: "u1", GameUID: e.GameUID, Guess: "TOAST", Name: "Bob"})
	require.NoError(t, err)
	res, err := f.game.SubmitGuess(ctx, GuessInput{UID: "u1", GameUID: e.GameUID, Guess: "TACIT"})
	require.NoError(t, err)
	assert.True(t, res.State.GameOver)
	assert.False(t, res.State.IsWinner)
	assert.Equal(t, "CRANE", res.Word)
	assert.Empty(t, res.Scores)
	assert.Zero(t, res.Rank)
	assert.Contains(t, f.pub.types(), events.TypeLoss)
}

func TestSubmitGuessRejectionsLeaveNoTrace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 6)
	e := f.start(t, "CRANE")

	var invalid *game.ValidationError
	tests := []struct {
		name  string
		in    GuessInput
		check func(t *testing.T, err error)
	}{
		{"missing uid", GuessInput{GameUID: e.GameUID, Guess: "SLATE", Name: "A"}, func(t *testing.T, err error) {
			assert.ErrorAs(t, err, &invalid)
		}},
		{"missing guess", GuessInput{UID: "u1", GameUID: e.GameUID, Name: "A"}, func(t *testing.T, err error) {
			assert.ErrorAs(t, err, &invalid)
		}},
		{"missing name for new player", GuessInput{UID: "u1", GameUID: e.GameUID, Guess: "SLATE"}, func(t *testing.T, err error) {
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, "name is required", invalid.Message)
		}},
		{"wrong length", GuessInput{UID: "u1", GameUID: e.GameUID, Guess: "CRANES", Name: "A"}, func(t *testing.T, err error) {
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, "Invalid guess length.", invalid.Message)
		}},
		{"not a word", GuessInput{UID: "u1", GameUID: e.GameUID, Guess: "QXZQX", Name: "A"}, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, game.ErrNotAWord)
		}},
		{"stale epoch", GuessInput{UID: "u1", GameUID: "old", Guess: "SLATE", Name: "A"}, func(t *testing.T, err error) {
			var mismatch *game.EpochMismatchError
			require.ErrorAs(t, err, &mismatch)
			assert.Equal(t, e.GameUID, mismatch.Epoch.GameUID)
			assert.Equal(t, 5, mismatch.Epoch.WordLength)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.game.SubmitGuess(ctx, tt.in)
			tt.check(t, err)

			p, err := f.store.GetState(ctx, e.GameUID, "u1")
			require.NoError(t, err)
			assert.Nil(t, p)
		})
	}
}

func TestSubmitGuessNotAWordKeepsExistingState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 6)
	e := f.start(t, "CRANE")

	_, err := f.game.SubmitGuess(ctx, GuessInput{UID: "u1", GameUID: e.GameUID, Guess: "SLATE", Name: "A"})
	require.NoError(t, err)
	_, err = f.game.SubmitGuess(ctx, GuessInput{UID: "u1", GameUID: e.GameUID, Guess: "ABCDE"})
	assert.ErrorIs(t, err, game.ErrNotAWord)

	st, err := f.game.State(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Tries())
}

func TestSubmitGuessNameConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 6)
	e := f.start(t, "CRANE")

	_, err := f.game.SubmitGuess(ctx, GuessInput{UID: "u1", GameUID: e.GameUID, Guess: "SLATE", Name: "Alice"})
	require.NoError(t, err)
	_, err = f.game.SubmitGuess(ctx, GuessInput{UID: "u2", GameUID: e.GameUID, Guess: "SLATE", Name: "alice"})
	var conflict *game.ConflictError
	require.ErrorAs(t, err, &conflict)

	p, err := f.store.GetState(ctx, e.GameUID, "u2")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestSaveState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 6)
	e := f.start(t, "CRANE")

	st, err := f.game.SaveState(ctx, SaveInput{UID: "u1", GameUID: e.GameUID, Name: "Alice", Draft: "cr"})
	require.NoError(t, err)
	assert.Equal(t, "CR", st.Draft)
	assert.Equal(t, 2, st.CurrentCol)
	assert.Equal(t, 0, st.CurrentRow)

	_, err = f.game.SaveState(ctx, SaveInput{UID: "u1", GameUID: e.GameUID, Name: "Alice", Draft: "CRANES"})
	var invalid *game.ValidationError
	assert.ErrorAs(t, err, &invalid)

	_, err = f.game.SaveState(ctx, SaveInput{UID: "u1", GameUID: "stale", Name: "Alice"})
	var mismatch *game.EpochMismatchError
	assert.ErrorAs(t, err, &mismatch)

	_, err = f.game.SaveState(ctx, SaveInput{UID: "u2", GameUID: e.GameUID, Name: "ALICE"})
	var conflict *game.ConflictError
	assert.ErrorAs(t, err, &conflict)

	_, err = f.game.SaveState(ctx, SaveInput{UID: "u2", GameUID: e.GameUID})
	assert.ErrorAs(t, err, &invalid)

	got, err := f.game.State(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "CR", got.Draft)

	none, err := f.game.State(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = f.game.State(ctx, " ")
	assert.ErrorAs(t, err, &invalid)
}

func TestVerify(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 6)

	res, err := f.admin.Verify(ctx, "10.0.0.1", "wrong")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Empty(t, res.Token)

	res, err = f.admin.Verify(ctx, "10.0.0.1", "open-sesame")
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.NotEmpty(t, res.Token)
	require.NotNil(t, res.ExpiresAt)

	_, err = f.admin.Verify(ctx, "10.0.0.1", "open-sesame")
	require.NoError(t, err)

	_, err = f.admin.Verify(ctx, "10.0.0.1", "open-sesame")
	var limited *game.RateLimitError
	require.ErrorAs(t, err, &limited)
	assert.Greater(t, limited.RetryAfterSeconds, 0)

	res, err = f.admin.Verify(ctx, "10.0.0.2", "open-sesame")
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 6)
	e := f.start(t, "CRANE")

	_, err := f.game.SubmitGuess(ctx, GuessInput{UID: "u1", GameUID: e.GameUID, Guess: "CRANE", Name: "Alice"})
	require.NoError(t, err)

	_, err = f.admin.Reset(ctx, "ip", "bad")
	assert.ErrorIs(t, err, game.ErrUnauthorized)
	cur, err := f.store.CurrentEpoch(ctx)
	require.NoError(t, err)
	assert.Equal(t, e.GameUID, cur.GameUID, "rejected reset changes nothing")

	next, err := f.admin.Reset(ctx, "ip", "open-sesame")
	require.NoError(t, err)
	assert.NotEqual(t, e.GameUID, next.GameUID)
	assert.Equal(t, "SLATE", next.Word, "previous word is excluded")
	assert.Equal(t, "A fine-grained rock.", next.Definition)

	// The old player's state belongs to the old epoch only.
	st, err := f.game.State(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, st)
	old, err := f.store.GetState(ctx, e.GameUID, "u1")
	require.NoError(t, err)
	assert.NotNil(t, old, "old state is orphaned, not deleted")

	_, err = f.game.SubmitGuess(ctx, GuessInput{UID: "u1", GameUID: e.GameUID, Guess: "SLATE", Name: "Alice"})
	var mismatch *game.EpochMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, next.GameUID, mismatch.Epoch.GameUID)

	// The name is free again in the new epoch.
	_, err = f.game.SubmitGuess(ctx, GuessInput{UID: "u9", GameUID: next.GameUID, Guess: "CRANE", Name: "alice"})
	require.NoError(t, err)

	res, err := f.admin.Verify(ctx, "ip", "open-sesame")
	require.NoError(t, err)
	third, err := f.admin.Reset(ctx, "ip", res.Token)
	require.NoError(t, err)
	assert.Equal(t, "CRANE", third.Word)
}

func TestResetThrottlesCodeAttempts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 6)
	e := f.start(t, "CRANE")

	for i := 0; i < 3; i++ {
		_, err := f.admin.Reset(ctx, "attacker", "guess-"+strconv.Itoa(i))
		require.ErrorIs(t, err, game.ErrUnauthorized)
	}
	_, err := f.admin.Reset(ctx, "attacker", "open-sesame")
	var limited *game.RateLimitError
	require.ErrorAs(t, err, &limited)

	_, err = f.admin.Verify(ctx, "attacker", "open-sesame")
	require.ErrorAs(t, err, &limited, "verify shares the budget")

	cur, err := f.store.CurrentEpoch(ctx)
	require.NoError(t, err)
	assert.Equal(t, e.GameUID, cur.GameUID)

	// Tokens are not code attempts and bypass the limit.
	res, err := f.admin.Verify(ctx, "operator", "open-sesame")
	require.NoError(t, err)
	next, err := f.admin.Reset(ctx, "attacker", res.Token)
	require.NoError(t, err)
	assert.NotEqual(t, e.GameUID, next.GameUID)
}

// slowChecker blocks every lookup until released, like a stalled dictionary API.
type slowChecker struct {
	entered chan struct{}
	release chan struct{}
}

func (c *slowChecker) IsValidWord(ctx context.Context, text string, length int) bool {
	c.entered <- struct{}{}
	select {
	case <-c.release:
	case <-ctx.Done():
	}
	return true
}

func TestSlowWordCheckDoesNotBlockReset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 6)
	e := f.start(t, "CRANE")

	checker := &slowChecker{entered: make(chan struct{}, 1), release: make(chan struct{})}
	g := NewGame(f.store, checker, leaderboard.New(f.store, 0), f.guard, nil)

	errc := make(chan error, 1)
	go func() {
		_, err := g.SubmitGuess(ctx, GuessInput{UID: "u1", GameUID: e.GameUID, Guess: "SLATE", Name: "A"})
		errc <- err
	}()
	<-checker.entered

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := f.admin.Start(ctx, words.Candidate{Word: "SLATE"})
		assert.NoError(t, err)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reset blocked behind a word lookup")
	}

	close(checker.release)
	var mismatch *game.EpochMismatchError
	require.ErrorAs(t, <-errc, &mismatch)

	st, err := f.store.GetState(ctx, e.GameUID, "u1")
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestEnsureEpoch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 6)

	_, err := f.game.Config(ctx)
	assert.True(t, IsNoEpoch(err))

	first, err := f.admin.EnsureEpoch(ctx)
	require.NoError(t, err)
	again, err := f.admin.EnsureEpoch(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.GameUID, again.GameUID)
	assert.Equal(t, 6, first.MaxGuesses)
}

func TestEnsureEpochDailySeed(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2025, 7, 4, 12, 0, 0, 0, time.UTC)
	list := words.New([]words.Candidate{{Word: "CRANE"}, {Word: "SLATE"}, {Word: "TOAST"}, {Word: "TACIT"}}, nil)
	st := store.NewMemory()
	auth, err := admin.New(admin.Config{Code: "x"})
	require.NoError(t, err)

	a := NewAdmin(st, list, auth, ratelimit.NewMemory(1, time.Minute), &EpochGuard{}, nil,
		AdminConfig{MaxGuesses: 6, DailySalt: "pepper", Now: func() time.Time { return day }})
	e, err := a.EnsureEpoch(ctx)
	require.NoError(t, err)
	assert.Equal(t, list.At(daily.WordIndex(day, "pepper", list.Len())).Word, e.Word)
}

func TestPublishFailureDoesNotFailGuess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 6)
	e := f.start(t, "CRANE")

	f.pub.ExpectedCalls = nil
	f.pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	res, err := f.game.SubmitGuess(ctx, GuessInput{UID: "u1", GameUID: e.GameUID, Guess: "CRANE", Name: "A"})
	require.NoError(t, err)
	assert.True(t, res.IsCorrect)
	f.pub.AssertNumberOfCalls(t, "Publish", 3)
}

func TestConcurrentGuessesAndResets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 6)
	f.start(t, "CRANE")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			uid := string(rune('a' + i))
			cfg, err := f.game.Config(ctx)
			if err != nil {
				t.Error(err)
				return
			}
			_, err = f.game.SubmitGuess(ctx, GuessInput{UID: uid, GameUID: cfg.GameUID, Guess: "TOAST", Name: uid})
			var mismatch *game.EpochMismatchError
			if err != nil && !errors.As(err, &mismatch) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := f.admin.Reset(ctx, fmt.Sprintf("admin-%d", i), "open-sesame"); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	// Every recorded guess was scored against its own epoch's word.
	cur, err := f.store.CurrentEpoch(ctx)
	require.NoError(t, err)
	states, err := f.store.ListStates(ctx, cur.GameUID)
	require.NoError(t, err)
	for _, p := range states {
		require.Len(t, p.Guesses, 1)
		assert.Equal(t, game.Evaluate("TOAST", cur.Word), p.Guesses[0].Statuses)
	}
}
