// internal/service/admin.go
//
// Admin operations: code verification and game reset.
// A reset replaces the active epoch with a new word under the EpochGuard
// write lock; player state of the old epoch is left orphaned in the store.

package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/wordly/internal/admin"
	"github.com/robalobadob/wordly/internal/daily"
	"github.com/robalobadob/wordly/internal/events"
	"github.com/robalobadob/wordly/internal/game"
	"github.com/robalobadob/wordly/internal/ratelimit"
	"github.com/robalobadob/wordly/internal/store"
	"github.com/robalobadob/wordly/internal/words"
)

// WordSource supplies solution words. *words.List satisfies it.
type WordSource interface {
	Len() int
	At(i int) words.Candidate
	Pick(exclude string) words.Candidate
}

// VerifyResult reports an admin code check.
type VerifyResult struct {
	Valid     bool       `json:"valid"`
	Token     string     `json:"token,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// AdminConfig holds the reset parameters.
type AdminConfig struct {
	MaxGuesses int
	DailySalt  string
	Now        func() time.Time
}

// Admin serves the admin operations.
type Admin struct {
	store   store.EpochStore
	words   WordSource
	auth    *admin.Authenticator
	limiter ratelimit.Limiter
	guard   *EpochGuard
	events  events.Publisher
	cfg     AdminConfig
}

// NewAdmin wires the admin service. The guard must be the one shared with Game.
func NewAdmin(st store.EpochStore, src WordSource, auth *admin.Authenticator, limiter ratelimit.Limiter, guard *EpochGuard, pub events.Publisher, cfg AdminConfig) *Admin {
	if pub == nil {
		pub = events.Noop{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Admin{store: st, words: src, auth: auth, limiter: limiter, guard: guard, events: pub, cfg: cfg}
}

// Verify checks an admin code for clientKey, subject to rate limiting.
// A valid code also yields a short-lived admin token.
func (a *Admin) Verify(ctx context.Context, clientKey, code string) (*VerifyResult, error) {
	if err := a.throttle(ctx, clientKey); err != nil {
		return nil, err
	}
	if !a.auth.CheckCode(code) {
		return &VerifyResult{Valid: false}, nil
	}
	tok, exp, err := a.auth.IssueToken()
	if err != nil {
		return nil, fmt.Errorf("issue admin token: %w", err)
	}
	return &VerifyResult{Valid: true, Token: tok, ExpiresAt: &exp}, nil
}

// throttle charges one code attempt to clientKey. Verify and Reset share
// the budget, so codes cannot be guessed faster through either endpoint.
func (a *Admin) throttle(ctx context.Context, clientKey string) error {
	ok, retry, err := a.limiter.Allow(ctx, clientKey)
	if err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	if !ok {
		log.Warn().Str("client", clientKey).Dur("retryAfter", retry).Msg("admin code attempts rate limited")
		return &game.RateLimitError{RetryAfterSeconds: int(math.Ceil(retry.Seconds()))}
	}
	return nil
}

// Reset starts a new game with a random word other than the current one.
// credential is the admin code or an admin token; only code attempts
// count against clientKey's rate limit.
func (a *Admin) Reset(ctx context.Context, clientKey, credential string) (*game.Epoch, error) {
	credential = strings.TrimSpace(credential)
	if a.auth.ValidateToken(credential) != nil {
		if err := a.throttle(ctx, clientKey); err != nil {
			return nil, err
		}
	}
	if !a.auth.Authorize(credential) {
		return nil, game.ErrUnauthorized
	}
	return a.replace(ctx, func(prev *game.Epoch) (words.Candidate, bool) {
		exclude := ""
		if prev != nil {
			exclude = prev.Word
		}
		return a.words.Pick(exclude), true
	})
}

// Start replaces the active game with c without any credential check.
// Used by the CLI.
func (a *Admin) Start(ctx context.Context, c words.Candidate) (*game.Epoch, error) {
	return a.replace(ctx, func(*game.Epoch) (words.Candidate, bool) { return c, true })
}

// EnsureEpoch returns the active game, seeding the first one when the
// store is empty. With a daily salt the seed word is the day's word,
// otherwise it is random.
func (a *Admin) EnsureEpoch(ctx context.Context) (*game.Epoch, error) {
	return a.replace(ctx, func(prev *game.Epoch) (words.Candidate, bool) {
		if prev != nil {
			return words.Candidate{}, false
		}
		if idx, ok := daily.Seed(a.words, a.cfg.DailySalt, a.cfg.Now()); ok {
			return a.words.At(idx), true
		}
		return a.words.Pick(""), true
	})
}

// replace runs choose against the active epoch under the write lock and,
// when it returns true, persists a new epoch for the chosen word. The
// reset event is published after the lock is released.
func (a *Admin) replace(ctx context.Context, choose func(prev *game.Epoch) (words.Candidate, bool)) (*game.Epoch, error) {
	a.guard.Lock()
	prev, err := a.store.CurrentEpoch(ctx)
	if err != nil && !errors.Is(err, store.ErrNoEpoch) {
		a.guard.Unlock()
		return nil, fmt.Errorf("load current game: %w", err)
	}
	c, ok := choose(prev)
	if !ok {
		a.guard.Unlock()
		return prev, nil
	}
	word := strings.ToUpper(strings.TrimSpace(c.Word))
	e, err := a.store.ResetEpoch(ctx, word, c.Definition, len([]rune(word)), a.cfg.MaxGuesses)
	a.guard.Unlock()
	if err != nil {
		return nil, fmt.Errorf("reset game: %w", err)
	}

	prevUID := ""
	if prev != nil {
		prevUID = prev.GameUID
	}
	log.Info().Str("gameUid", e.GameUID).Str("previous", prevUID).Int("wordLength", e.WordLength).Msg("new game started")

	ev := events.Event{
		Type:    events.TypeReset,
		GameUID: e.GameUID,
		Data:    events.ResetData{PreviousGameUID: prevUID, WordLength: e.WordLength, MaxGuesses: e.MaxGuesses},
	}
	if err := a.events.Publish(ctx, ev); err != nil {
		log.Warn().Err(err).Str("gameUid", e.GameUID).Msg("publish reset event")
	}
	return e, nil
}
