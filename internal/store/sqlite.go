package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const sqliteColumns = `id, username, secret_hash, email, birthday, created_at`

type SQLite struct {
	db   *sql.DB
	path string
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func NewSQLite(path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create data dir: %w", err)
		}
	}
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: writers queue on the pool instead of failing with
	// SQLITE_BUSY, and :memory: databases stay a single database.
	d.SetMaxOpenConns(1)
	s := &SQLite{db: d, path: path}
	if err := s.Init(context.Background()); err != nil {
		d.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) Init(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			secret_hash TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			birthday TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS favorite_movies (
			user_id TEXT NOT NULL,
			movie_id TEXT NOT NULL,
			PRIMARY KEY (user_id, movie_id)
		);`,
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("sqlite: init schema: %w", err)
		}
	}
	return nil
}

func sqliteCode(err error) (int, bool) {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code(), true
	}
	return 0, false
}

// Username is the only unique column that can collide; ids are UUIDs and
// favourites are inserted with OR IGNORE.
func isSQLiteConstraint(err error) bool {
	code, ok := sqliteCode(err)
	return ok && code&0xff == sqlite3.SQLITE_CONSTRAINT
}

func isSQLiteBusy(err error) bool {
	code, ok := sqliteCode(err)
	return ok && (code&0xff == sqlite3.SQLITE_BUSY || code&0xff == sqlite3.SQLITE_LOCKED)
}

func sqliteErr(op string, err error) error {
	if isSQLiteConstraint(err) {
		return ErrDuplicateUsername
	}
	return wrapSQL("sqlite: "+op, err, isSQLiteBusy)
}

func (s *SQLite) Create(ctx context.Context, n NewIdentity) (*Identity, error) {
	if err := n.validate(); err != nil {
		return nil, err
	}
	i := &Identity{
		ID:             newID(),
		Username:       n.Username,
		SecretHash:     n.SecretHash,
		Email:          n.Email,
		Birthday:       n.Birthday,
		FavoriteMovies: []string{},
		CreatedAt:      now(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(id,username,secret_hash,email,birthday,created_at) VALUES(?,?,?,?,?,?)`,
		i.ID, i.Username, i.SecretHash, i.Email, i.Birthday, i.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, sqliteErr("create user", err)
	}
	return i, nil
}

func scanSQLiteIdentity(row interface{ Scan(...any) error }) (*Identity, error) {
	var i Identity
	var created string
	if err := row.Scan(&i.ID, &i.Username, &i.SecretHash, &i.Email, &i.Birthday, &created); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", created, err)
	}
	i.CreatedAt = t
	i.FavoriteMovies = []string{}
	return &i, nil
}

func (s *SQLite) get(ctx context.Context, q queryer, column, value string) (*Identity, error) {
	row := q.QueryRowContext(ctx, `SELECT `+sqliteColumns+` FROM users WHERE `+column+` = ?`, value)
	i, err := scanSQLiteIdentity(row)
	if err != nil {
		return nil, sqliteErr("get user", err)
	}
	rows, err := q.QueryContext(ctx, `SELECT movie_id FROM favorite_movies WHERE user_id = ? ORDER BY rowid`, i.ID)
	if err != nil {
		return nil, sqliteErr("get favorites", err)
	}
	defer rows.Close()
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, sqliteErr("scan favorite", err)
		}
		i.FavoriteMovies = append(i.FavoriteMovies, m)
	}
	if err := rows.Err(); err != nil {
		return nil, sqliteErr("get favorites", err)
	}
	return i, nil
}

func (s *SQLite) FindByUsername(ctx context.Context, username string) (*Identity, error) {
	return s.get(ctx, s.db, "username", username)
}

func (s *SQLite) FindByID(ctx context.Context, id string) (*Identity, error) {
	return s.get(ctx, s.db, "id", id)
}

func (s *SQLite) List(ctx context.Context) ([]*Identity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, sqliteErr("list users", err)
	}
	var out []*Identity
	byID := map[string]*Identity{}
	for rows.Next() {
		i, err := scanSQLiteIdentity(rows)
		if err != nil {
			rows.Close()
			return nil, sqliteErr("scan user", err)
		}
		out = append(out, i)
		byID[i.ID] = i
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, sqliteErr("list users", err)
	}

	favs, err := s.db.QueryContext(ctx, `SELECT user_id, movie_id FROM favorite_movies ORDER BY rowid`)
	if err != nil {
		return nil, sqliteErr("list favorites", err)
	}
	defer favs.Close()
	for favs.Next() {
		var uid, mid string
		if err := favs.Scan(&uid, &mid); err != nil {
			return nil, sqliteErr("scan favorite", err)
		}
		if i, ok := byID[uid]; ok {
			i.FavoriteMovies = append(i.FavoriteMovies, mid)
		}
	}
	if err := favs.Err(); err != nil {
		return nil, sqliteErr("list favorites", err)
	}
	if out == nil {
		out = []*Identity{}
	}
	return out, nil
}

// inTx runs fn in a transaction and returns the identity it produced.
func (s *SQLite) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) (*Identity, error)) (*Identity, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, sqliteErr(op, err)
	}
	defer tx.Rollback()
	i, err := fn(tx)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, sqliteErr(op, err)
	}
	return i, nil
}

func (s *SQLite) Update(ctx context.Context, id string, c Changes) (*Identity, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	return s.inTx(ctx, "update user", func(tx *sql.Tx) (*Identity, error) {
		if !c.empty() {
			set, args := updateSet(c, func(int) string { return "?" })
			res, err := tx.ExecContext(ctx, `UPDATE users SET `+set+` WHERE id = ?`, append(args, id)...)
			if err != nil {
				return nil, sqliteErr("update user", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return nil, ErrNotFound
			}
		}
		return s.get(ctx, tx, "id", id)
	})
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	_, err := s.inTx(ctx, "delete user", func(tx *sql.Tx) (*Identity, error) {
		if _, err := tx.ExecContext(ctx, `DELETE FROM favorite_movies WHERE user_id = ?`, id); err != nil {
			return nil, sqliteErr("delete favorites", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
		if err != nil {
			return nil, sqliteErr("delete user", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, ErrNotFound
		}
		return nil, nil
	})
	return err
}

func (s *SQLite) AddFavorite(ctx context.Context, id, movieID string) (*Identity, error) {
	return s.inTx(ctx, "add favorite", func(tx *sql.Tx) (*Identity, error) {
		if _, err := s.get(ctx, tx, "id", id); err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO favorite_movies(user_id, movie_id) VALUES(?, ?)`, id, movieID); err != nil {
			return nil, sqliteErr("add favorite", err)
		}
		return s.get(ctx, tx, "id", id)
	})
}

func (s *SQLite) RemoveFavorite(ctx context.Context, id, movieID string) (*Identity, error) {
	return s.inTx(ctx, "remove favorite", func(tx *sql.Tx) (*Identity, error) {
		if _, err := s.get(ctx, tx, "id", id); err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM favorite_movies WHERE user_id = ? AND movie_id = ?`, id, movieID); err != nil {
			return nil, sqliteErr("remove favorite", err)
		}
		return s.get(ctx, tx, "id", id)
	})
}

func (s *SQLite) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return sqliteErr("ping", err)
	}
	return nil
}

func (s *SQLite) Close() error { return s.db.Close() }
