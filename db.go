// db.go
//
// Store wiring and the maintenance subcommands.
// Responsibilities:
//   - Opening the configured store (memory, SQLite or Postgres).
//   - `db show`: print the active game.
//   - `db players`: list player states of the active game.
//   - `db rebuild [WORD [DEFINITION]]`: wipe all data and start a fresh game.
//   - `migrate up | down N | status`: drive the embedded schema migrations.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/wordly/internal/config"
	"github.com/robalobadob/wordly/internal/events"
	"github.com/robalobadob/wordly/internal/service"
	"github.com/robalobadob/wordly/internal/store"
	"github.com/robalobadob/wordly/internal/words"
)

// openStore opens the store selected by STORE_DRIVER. SQL stores are
// migrated to the latest schema on open.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case store.DriverMemory:
		log.Warn().Msg("using in-memory store, state is lost on restart")
		return store.NewMemory(), nil
	case store.DriverSQLite:
		return store.OpenSQLite(ctx, cfg.DatabasePath)
	case store.DriverPostgres:
		return store.OpenPostgres(ctx, cfg.DatabaseURL)
	}
	return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
}

func runDB(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: wordly db show | players | rebuild [WORD [DEFINITION]]")
	}
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	switch args[0] {
	case "show":
		return dbShow(ctx, st)
	case "players":
		return dbPlayers(ctx, st)
	case "rebuild":
		return dbRebuild(ctx, cfg, st, args[1:])
	}
	return fmt.Errorf("unknown db command %q", args[0])
}

func dbShow(ctx context.Context, st store.Store) error {
	e, err := st.CurrentEpoch(ctx)
	if errors.Is(err, store.ErrNoEpoch) {
		fmt.Println("no active game")
		return nil
	}
	if err != nil {
		return err
	}
	states, err := st.ListStates(ctx, e.GameUID)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "game\t%s\n", e.GameUID)
	fmt.Fprintf(tw, "word\t%s\n", e.Word)
	fmt.Fprintf(tw, "definition\t%s\n", e.Definition)
	fmt.Fprintf(tw, "grid\t%d x %d\n", e.WordLength, e.MaxGuesses)
	fmt.Fprintf(tw, "started\t%s\n", e.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(tw, "players\t%d\n", len(states))
	return tw.Flush()
}

func dbPlayers(ctx context.Context, st store.Store) error {
	e, err := st.CurrentEpoch(ctx)
	if errors.Is(err, store.ErrNoEpoch) {
		fmt.Println("no active game")
		return nil
	}
	if err != nil {
		return err
	}
	states, err := st.ListStates(ctx, e.GameUID)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tUID\tTRIES\tSTATUS\tDURATION")
	for _, p := range states {
		status := "playing"
		switch {
		case p.IsWinner:
			status = "won"
		case p.GameOver:
			status = "lost"
		}
		dur := "-"
		if p.FinishTime != nil {
			dur = p.Duration().Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", p.Name, p.UID, p.Tries(), status, dur)
	}
	return tw.Flush()
}

// dbRebuild wipes every game and player, then starts a game with the
// given word, or with the seed word when none is given.
func dbRebuild(ctx context.Context, cfg *config.Config, st store.Store, args []string) error {
	list, err := loadWords(cfg)
	if err != nil {
		return err
	}
	if err := st.Rebuild(ctx); err != nil {
		return fmt.Errorf("rebuild store: %w", err)
	}
	log.Info().Str("store", cfg.StoreDriver).Msg("store rebuilt")

	pub := events.FromBrokers(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer pub.Close()
	a := service.NewAdmin(st, list, nil, nil, &service.EpochGuard{}, pub, service.AdminConfig{
		MaxGuesses: cfg.MaxGuesses,
		DailySalt:  cfg.DailySalt,
	})

	if len(args) == 0 {
		_, err = a.EnsureEpoch(ctx)
		return err
	}
	word := words.SanitizeWord(args[0])
	if len(word) != cfg.WordLength {
		return fmt.Errorf("word %q must have %d letters", args[0], cfg.WordLength)
	}
	_, err = a.Start(ctx, words.Candidate{Word: word, Definition: strings.Join(args[1:], " ")})
	return err
}

func runMigrate(cfg *config.Config, args []string) error {
	if cfg.StoreDriver == store.DriverMemory {
		return errors.New("the memory store has no schema to migrate")
	}
	if len(args) == 0 {
		return errors.New("usage: wordly migrate up | down N | status")
	}
	driver, dsn := cfg.StoreDriver, cfg.DSN()

	switch args[0] {
	case "up":
		return store.MigrateUp(driver, dsn)
	case "down":
		if len(args) < 2 {
			return errors.New("usage: wordly migrate down N")
		}
		steps, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid step count %q: %w", args[1], err)
		}
		return store.MigrateDown(driver, dsn, steps)
	case "status":
		version, dirty, ok, err := store.MigrateStatus(driver, dsn)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("no migrations applied")
			return nil
		}
		fmt.Printf("version %d (dirty: %t)\n", version, dirty)
		return nil
	}
	return fmt.Errorf("unknown migrate command %q", args[0])
}
