// main.go
//
// Entry point for the wordly server.
//
// Usage:
//
//	wordly [serve]                               run the HTTP server (default)
//	wordly db show | players | rebuild [WORD [DEFINITION]]
//	wordly migrate up | down N | status
//	wordly hash-code CODE                        print a bcrypt hash for ADMIN_CODE_HASH
//
// Configuration comes from the environment and an optional .env file.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/wordly/internal/admin"
	"github.com/robalobadob/wordly/internal/config"
	"github.com/robalobadob/wordly/internal/events"
	"github.com/robalobadob/wordly/internal/httpserver"
	"github.com/robalobadob/wordly/internal/leaderboard"
	"github.com/robalobadob/wordly/internal/ratelimit"
	"github.com/robalobadob/wordly/internal/service"
	"github.com/robalobadob/wordly/internal/words"
)

func main() {
	cmd, args := "serve", os.Args[1:]
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}
	if cmd == "hash-code" {
		if err := runHashCode(args); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	switch cmd {
	case "serve":
		err = serve(ctx, cfg)
	case "db":
		err = runDB(ctx, cfg, args)
	case "migrate":
		err = runMigrate(cfg, args)
	default:
		err = fmt.Errorf("unknown command %q (want serve, db, migrate or hash-code)", cmd)
	}
	stop()
	if err != nil {
		log.Fatal().Err(err).Str("command", cmd).Msg("wordly failed")
	}
}

func setupLogging(cfg *config.Config) {
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if cfg.LogFormat == "pretty" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

// loadWords loads the word lists restricted to the configured word length.
func loadWords(cfg *config.Config) (*words.List, error) {
	all, err := words.Load(words.Files{Candidates: cfg.CandidatesFile, Allowed: cfg.AllowedFile})
	if err != nil {
		return nil, fmt.Errorf("load word lists: %w", err)
	}
	list, err := all.OfLength(cfg.WordLength)
	if err != nil {
		return nil, err
	}
	cands, allowed := list.Stats()
	log.Info().Int("candidates", cands).Int("allowed", allowed).Int("wordLength", cfg.WordLength).Msg("word lists loaded")
	return list, nil
}

// newLimiter returns the Redis limiter when REDIS_URL is set so that all
// replicas share one budget, otherwise an in-process one.
func newLimiter(ctx context.Context, cfg *config.Config) (ratelimit.Limiter, func(), error) {
	if cfg.RedisURL == "" {
		return ratelimit.NewMemory(cfg.VerifyLimit, cfg.VerifyWindow), func() {}, nil
	}
	rdb, err := ratelimit.Dial(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	log.Info().Msg("admin verify rate limit backed by redis")
	return ratelimit.NewRedis(rdb, cfg.VerifyLimit, cfg.VerifyWindow), func() { _ = rdb.Close() }, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	list, err := loadWords(cfg)
	if err != nil {
		return err
	}
	var checker words.Checker = list
	if cfg.DictionaryURL != "" {
		checker = words.AnyOf(list, words.NewDictionary(cfg.DictionaryURL))
		log.Info().Str("url", cfg.DictionaryURL).Msg("dictionary lookups enabled")
	}

	auth, err := admin.New(admin.Config{
		Code:     cfg.AdminCode,
		CodeHash: cfg.AdminCodeHash,
		Secret:   cfg.AdminTokenSecret,
		TTL:      cfg.AdminTokenTTL,
	})
	if err != nil {
		return err
	}
	if !auth.Enabled() {
		log.Warn().Msg("no ADMIN_CODE configured, admin reset is disabled")
	}

	limiter, closeLimiter, err := newLimiter(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLimiter()

	pub := events.FromBrokers(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer pub.Close()

	guard := &service.EpochGuard{}
	g := service.NewGame(st, checker, leaderboard.New(st, cfg.ScoresLimit), guard, pub)
	a := service.NewAdmin(st, list, auth, limiter, guard, pub, service.AdminConfig{
		MaxGuesses: cfg.MaxGuesses,
		DailySalt:  cfg.DailySalt,
	})

	e, err := a.EnsureEpoch(ctx)
	if err != nil {
		return err
	}
	log.Info().Str("gameUid", e.GameUID).Int("wordLength", e.WordLength).Int("maxGuesses", e.MaxGuesses).Msg("active game")

	handler := httpserver.New(g, a, httpserver.Options{
		Origins:    cfg.ClientOrigins,
		Timeout:    cfg.RequestTimeout,
		TrustProxy: cfg.TrustProxy,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("store", cfg.StoreDriver).Msg("starting wordly server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}

func runHashCode(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: wordly hash-code CODE")
	}
	h, err := admin.HashCode(args[0])
	if err != nil {
		return err
	}
	fmt.Println(h)
	return nil
}
