// internal/store/sqlite.go
//
// SQLite implementation of Store.
// Responsibilities:
//   - Opening the database file with safe defaults (WAL, busy timeout,
//     foreign keys, IMMEDIATE transactions so writers serialize up front).
//   - Applying the embedded migrations before first use.
//   - Epoch and player-state reads/writes; each mutation is one transaction.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/robalobadob/wordly/internal/game"
)

type sqliteStore struct {
	db  *sql.DB
	now func() time.Time
}

// sqliteDSN adds connection pragmas to a database file path.
func sqliteDSN(path string) string {
	return path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on&_txlock=immediate"
}

// ensureDir creates the parent directory for ./data/wordly.db and the like.
func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	return nil
}

// OpenSQLite opens (and creates if missing) a SQLite database file and migrates it.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (Store, error) {
	if err := MigrateUp(DriverSQLite, path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", sqliteDSN(path))
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	o := buildOptions(opts)
	return &sqliteStore{db: db, now: o.now}, nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// withTx executes fn within a transaction, committing on success and
// rolling back on error.
func (s *sqliteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *sqliteStore) CurrentEpoch(ctx context.Context) (*game.Epoch, error) {
	return s.currentEpoch(ctx, s.db)
}

func (s *sqliteStore) currentEpoch(ctx context.Context, q queryer) (*game.Epoch, error) {
	var r epochRow
	err := q.QueryRowContext(ctx, `SELECT `+epochColumns+` FROM games ORDER BY id DESC LIMIT 1`).Scan(r.scanTargets()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoEpoch
	}
	if err != nil {
		return nil, fmt.Errorf("load current game: %w", err)
	}
	return r.toDomain(), nil
}

func (s *sqliteStore) ResetEpoch(ctx context.Context, word, definition string, wordLength, maxGuesses int) (*game.Epoch, error) {
	if err := checkEpochArgs(word, wordLength, maxGuesses); err != nil {
		return nil, err
	}
	var out *game.Epoch
	err := s.withTx(ctx, func(tx *sql.Tx) error {
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
		if _, err := tx.ExecContext(ctx, `INSERT INTO games (`+epochColumns+`) VALUES (?,?,?,?,?,?)`,
			r.UID, r.Word, r.Definition, r.WordLength, r.MaxGuesses, r.CreatedMs); err != nil {
			return fmt.Errorf("insert game: %w", err)
		}
		out = r.toDomain()
		return nil
	})
	return out, err
}

func (s *sqliteStore) GetState(ctx context.Context, gameUID, uid string) (*game.PlayerState, error) {
	return s.getState(ctx, s.db, gameUID, uid)
}

func (s *sqliteStore) getState(ctx context.Context, q queryer, gameUID, uid string) (*game.PlayerState, error) {
	var r stateRow
	err := q.QueryRowContext(ctx, `SELECT `+stateColumns+` FROM player_states WHERE game_uid=? AND uid=?`,
		gameUID, uid).Scan(r.scanTargets()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load player state: %w", err)
	}
	return r.toDomain()
}

// checkName returns a ConflictError when another uid holds name in the epoch.
func (s *sqliteStore) checkName(ctx context.Context, q queryer, gameUID, uid, name string) error {
	var holder string
	err := q.QueryRowContext(ctx, `SELECT uid FROM player_states WHERE game_uid=? AND name_key=? AND uid<>?`,
		gameUID, NameKey(name), uid).Scan(&holder)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check name: %w", err)
	}
	return &game.ConflictError{Name: strings.TrimSpace(name)}
}

func (s *sqliteStore) insertState(ctx context.Context, tx *sql.Tx, p *game.PlayerState) error {
	r, err := rowFromDomain(p)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO player_states (`+stateColumns+`, name_key) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		r.GameUID, r.UID, r.Name, r.Draft, string(r.Guesses), string(r.Keyboard), r.GameOver, r.IsWinner, r.StartMs, r.FinishMs, NameKey(r.Name))
	if isSQLiteNameConflict(err) {
		return &game.ConflictError{Name: p.Name}
	}
	if err != nil {
		return fmt.Errorf("insert player state: %w", err)
	}
	return nil
}

func (s *sqliteStore) updateState(ctx context.Context, tx *sql.Tx, p *game.PlayerState) error {
	r, err := rowFromDomain(p)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `UPDATE player_states
		SET name=?, name_key=?, draft=?, guesses=?, keyboard=?, game_over=?, is_winner=?, finish_time=?
		WHERE game_uid=? AND uid=?`,
		r.Name, NameKey(r.Name), r.Draft, string(r.Guesses), string(r.Keyboard), r.GameOver, r.IsWinner, r.FinishMs, r.GameUID, r.UID)
	if isSQLiteNameConflict(err) {
		return &game.ConflictError{Name: p.Name}
	}
	if err != nil {
		return fmt.Errorf("update player state: %w", err)
	}
	return nil
}

func isSQLiteNameConflict(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) &&
		se.ExtendedCode == sqlite3.ErrConstraintUnique &&
		strings.Contains(se.Error(), "name_key")
}

func (s *sqliteStore) CreateState(ctx context.Context, gameUID, uid, name string) (*game.PlayerState, error) {
	var out *game.PlayerState
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := s.getState(ctx, tx, gameUID, uid)
		if err != nil {
			return err
		}
		if existing != nil {
			out = existing
			return nil
		}
		if err := s.checkName(ctx, tx, gameUID, uid, name); err != nil {
			return err
		}
		p := game.NewPlayerState(gameUID, uid, strings.TrimSpace(name), s.now().UTC())
		if err := s.insertState(ctx, tx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

func (s *sqliteStore) SaveState(ctx context.Context, gameUID, uid, name, draft string) (*game.PlayerState, error) {
	var out *game.PlayerState
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		p, err := s.getState(ctx, tx, gameUID, uid)
		if err != nil {
			return err
		}
		name = strings.TrimSpace(name)
		if p == nil || p.Name != name {
			if err := s.checkName(ctx, tx, gameUID, uid, name); err != nil {
				return err
			}
		}
		if p == nil {
			p = game.NewPlayerState(gameUID, uid, name, s.now().UTC())
			p.Draft = draft
			if err := s.insertState(ctx, tx, p); err != nil {
				return err
			}
			out = p
			return nil
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

func (s *sqliteStore) RecordGuess(ctx context.Context, gameUID, uid, name, guess string, statuses []game.Status, maxGuesses int) (*game.PlayerState, error) {
	var out *game.PlayerState
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		p, err := s.getState(ctx, tx, gameUID, uid)
		if err != nil {
			return err
		}
		if p == nil {
			name = strings.TrimSpace(name)
			if name == "" {
				return ErrNotFound
			}
			if err := s.checkName(ctx, tx, gameUID, uid, name); err != nil {
				return err
			}
			p = game.NewPlayerState(gameUID, uid, name, s.now().UTC())
			if err := s.insertState(ctx, tx, p); err != nil {
				return err
			}
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

func (s *sqliteStore) ListStates(ctx context.Context, gameUID string) ([]*game.PlayerState, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+stateColumns+` FROM player_states WHERE game_uid=? ORDER BY id`, gameUID)
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

func (s *sqliteStore) Rebuild(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM player_states`); err != nil {
			return fmt.Errorf("clear player states: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM games`); err != nil {
			return fmt.Errorf("clear games: %w", err)
		}
		return nil
	})
}

func (s *sqliteStore) Close() error { return s.db.Close() }
