// internal/store/postgres.go
//
// Postgres implementation of Store on a pgx connection pool.
// Player rows are locked with SELECT ... FOR UPDATE for read-modify-write;
// the (game_uid, name_key) unique constraint backs up the name pre-check.

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/wordly/internal/game"
)

const (
	pgUniqueViolation = "23505"
	pgNameConstraint  = "player_states_game_name_unique"
	postgresMaxConns  = 10
	postgresMinConns  = 2
)

type postgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// OpenPostgres connects to databaseURL, applies migrations and returns a Store.
func OpenPostgres(ctx context.Context, databaseURL string, opts ...Option) (Store, error) {
	if err := MigrateUp(DriverPostgres, databaseURL); err != nil {
		return nil, err
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	config.MaxConns = postgresMaxConns
	config.MinConns = postgresMinConns

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	log.Info().Str("host", config.ConnConfig.Host).Str("database", config.ConnConfig.Database).Msg("connected to postgres")

	o := buildOptions(opts)
	return &postgresStore{pool: pool, now: o.now}, nil
}

// withTx executes fn within a transaction. If fn returns an error the
// transaction is rolled back, otherwise it is committed.
func (s *postgresStore) withTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = fmt.Errorf("rollback failed: %v, original error: %w", rbErr, err)
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// pgQuerier is satisfied by *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *postgresStore) CurrentEpoch(ctx context.Context) (*game.Epoch, error) {
	return s.currentEpoch(ctx, s.pool)
}

func (s *postgresStore) currentEpoch(ctx context.Context, q pgQuerier) (*game.Epoch, error) {
	var r epochRow
	err := q.QueryRow(ctx, `SELECT `+epochColumns+` FROM games ORDER BY id DESC LIMIT 1`).Scan(r.scanTargets()...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoEpoch
	}
	if err != nil {
		return nil, fmt.Errorf("load current game: %w", err)
	}
	return r.toDomain(), nil
}

func (s *postgresStore) ResetEpoch(ctx context.Context, word, definition string, wordLength, maxGuesses int) (*game.Epoch, error) {
	if err := checkEpochArgs(word, wordLength, maxGuesses); err != nil {
		return nil, err
	}
	var out *game.Epoch
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		// Serializes concurrent resets across server instances.
		if _, err := tx.Exec(ctx, `LOCK TABLE games IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return fmt.Errorf("lock games: %w", err)
		}
		prev := ""
		if cur, err := s.currentEpoch(ctx, tx); err == nil {
			prev = cur.GameUID
		} else if !errors.Is(err, ErrNoEpoch) {
			return err
		}
		r := epochRow{
			UID:        newGameUID(prev),
			Word:       strings.ToUpper(word),
			Definition: definition,
			WordLength: wordLength,
			MaxGuesses: maxGuesses,
			CreatedMs:  s.now().UnixMilli(),
		}
		if _, err := tx.Exec(ctx, `INSERT INTO games (`+epochColumns+`) VALUES ($1,$2,$3,$4,$5,$6)`,
			r.UID, r.Word, r.Definition, r.WordLength, r.MaxGuesses, r.CreatedMs); err != nil {
			return fmt.Errorf("insert game: %w", err)
		}
		out = r.toDomain()
		return nil
	})
	return out, err
}

func (s *postgresStore) GetState(ctx context.Context, gameUID, uid string) (*game.PlayerState, error) {
	return s.getState(ctx, s.pool, gameUID, uid, "")
}

func (s *postgresStore) getState(ctx context.Context, q pgQuerier, gameUID, uid, suffix string) (*game.PlayerState, error) {
	var r stateRow
	err := q.QueryRow(ctx, `SELECT `+stateColumns+` FROM player_states WHERE game_uid=$1 AND uid=$2`+suffix,
		gameUID, uid).Scan(r.scanTargets()...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load player state: %w", err)
	}
	return r.toDomain()
}

func (s *postgresStore) checkName(ctx context.Context, q pgQuerier, gameUID, uid, name string) error {
	var holder string
	err := q.QueryRow(ctx, `SELECT uid FROM player_states WHERE game_uid=$1 AND name_key=$2 AND uid<>$3`,
		gameUID, NameKey(name), uid).Scan(&holder)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check name: %w", err)
	}
	return &game.ConflictError{Name: strings.TrimSpace(name)}
}

func isPostgresNameConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == pgUniqueViolation &&
		pgErr.ConstraintName == pgNameConstraint
}

// insertState inserts p unless uid already has a row in the epoch, in which
// case it reports false. An uncommitted insert of the same uid by another
// transaction makes this wait for that transaction to finish.
func (s *postgresStore) insertState(ctx context.Context, tx pgx.Tx, p *game.PlayerState) (bool, error) {
	r, err := rowFromDomain(p)
	if err != nil {
		return false, err
	}
	tag, err := tx.Exec(ctx, `INSERT INTO player_states (`+stateColumns+`, name_key)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (game_uid, uid) DO NOTHING`,
		r.GameUID, r.UID, r.Name, r.Draft, string(r.Guesses), string(r.Keyboard), r.GameOver, r.IsWinner, r.StartMs, r.FinishMs, NameKey(r.Name))
	if isPostgresNameConflict(err) {
		return false, &game.ConflictError{Name: p.Name}
	}
	if err != nil {
		return false, fmt.Errorf("insert player state: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// loadOrInsert returns uid's state locked for update. When uid has none,
// a fresh state is inserted under name and created is true. If a concurrent
// transaction inserted the same uid first, its row is returned instead.
func (s *postgresStore) loadOrInsert(ctx context.Context, tx pgx.Tx, gameUID, uid, name string) (p *game.PlayerState, created bool, err error) {
	p, err = s.getState(ctx, tx, gameUID, uid, " FOR UPDATE")
	if err != nil || p != nil {
		return p, false, err
	}
	if err := s.checkName(ctx, tx, gameUID, uid, name); err != nil {
		return nil, false, err
	}
	p = game.NewPlayerState(gameUID, uid, strings.TrimSpace(name), s.now().UTC())
	inserted, err := s.insertState(ctx, tx, p)
	if err != nil {
		return nil, false, err
	}
	if inserted {
		return p, true, nil
	}
	p, err = s.getState(ctx, tx, gameUID, uid, " FOR UPDATE")
	if err == nil && p == nil {
		err = fmt.Errorf("player state %s missing after insert conflict", uid)
	}
	return p, false, err
}

func (s *postgresStore) updateState(ctx context.Context, tx pgx.Tx, p *game.PlayerState) error {
	r, err := rowFromDomain(p)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `UPDATE player_states
		SET name=$1, name_key=$2, draft=$3, guesses=$4, keyboard=$5, game_over=$6, is_winner=$7, finish_time=$8
		WHERE game_uid=$9 AND uid=$10`,
		r.Name, NameKey(r.Name), r.Draft, string(r.Guesses), string(r.Keyboard), r.GameOver, r.IsWinner, r.FinishMs, r.GameUID, r.UID)
	if isPostgresNameConflict(err) {
		return &game.ConflictError{Name: p.Name}
	}
	if err != nil {
		return fmt.Errorf("update player state: %w", err)
	}
	return nil
}

func (s *postgresStore) CreateState(ctx context.Context, gameUID, uid, name string) (*game.PlayerState, error) {
	var out *game.PlayerState
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		p, _, err := s.loadOrInsert(ctx, tx, gameUID, uid, name)
		if err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

func (s *postgresStore) SaveState(ctx context.Context, gameUID, uid, name, draft string) (*game.PlayerState, error) {
	var out *game.PlayerState
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		name = strings.TrimSpace(name)
		p, created, err := s.loadOrInsert(ctx, tx, gameUID, uid, name)
		if err != nil {
			return err
		}
		if !created && p.Name != name {
			if err := s.checkName(ctx, tx, gameUID, uid, name); err != nil {
				return err
			}
		}
		p.Name = name
		if !p.GameOver {
			p.Draft = draft
		}
		if err := s.updateState(ctx, tx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

func (s *postgresStore) RecordGuess(ctx context.Context, gameUID, uid, name, guess string, statuses []game.Status, maxGuesses int) (*game.PlayerState, error) {
	var out *game.PlayerState
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var (
			p   *game.PlayerState
			err error
		)
		if strings.TrimSpace(name) == "" {
			p, err = s.getState(ctx, tx, gameUID, uid, " FOR UPDATE")
			if err == nil && p == nil {
				err = ErrNotFound
			}
		} else {
			p, _, err = s.loadOrInsert(ctx, tx, gameUID, uid, name)
		}
		if err != nil {
			return err
		}
		if err := p.Record(guess, statuses, maxGuesses, s.now().UTC()); err != nil {
			return err
		}
		if err := s.updateState(ctx, tx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

func (s *postgresStore) ListStates(ctx context.Context, gameUID string) ([]*game.PlayerState, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+stateColumns+` FROM player_states WHERE game_uid=$1 ORDER BY id`, gameUID)
	if err != nil {
		return nil, fmt.Errorf("list player states: %w", err)
	}
	defer rows.Close()

	out := []*game.PlayerState{}
	for rows.Next() {
		var r stateRow
		if err := rows.Scan(r.scanTargets()...); err != nil {
			return nil, fmt.Errorf("scan player state: %w", err)
		}
		p, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *postgresStore) Rebuild(ctx context.Context) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `TRUNCATE player_states, games RESTART IDENTITY`); err != nil {
			return fmt.Errorf("truncate tables: %w", err)
		}
		return nil
	})
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}
