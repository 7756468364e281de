package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const pgColumns = `id, username, secret_hash, email, birthday, favorite_movies, created_at`

type Postgres struct {
	db  *sql.DB
	dsn string
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	d, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	p := &Postgres{db: d, dsn: dsn}
	// rely on migrations to create tables; just verify connectivity
	if err := p.Ping(ctx); err != nil {
		d.Close()
		return nil, err
	}
	return p, nil
}

func isPGUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// Class 08 is connection exception, 57 is operator intervention (shutdown,
// cannot connect now).
func isPGUnavailable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	class := pqErr.Code.Class()
	return class == "08" || class == "57"
}

func pgErr(op string, err error) error {
	if isPGUniqueViolation(err) {
		return ErrDuplicateUsername
	}
	return wrapSQL("postgres: "+op, err, isPGUnavailable)
}

func scanPGIdentity(row interface{ Scan(...any) error }) (*Identity, error) {
	var i Identity
	if err := row.Scan(&i.ID, &i.Username, &i.SecretHash, &i.Email, &i.Birthday, pq.Array(&i.FavoriteMovies), &i.CreatedAt); err != nil {
		return nil, err
	}
	if i.FavoriteMovies == nil {
		i.FavoriteMovies = []string{}
	}
	i.CreatedAt = i.CreatedAt.UTC()
	return &i, nil
}

func (p *Postgres) Create(ctx context.Context, n NewIdentity) (*Identity, error) {
	if err := n.validate(); err != nil {
		return nil, err
	}
	row := p.db.QueryRowContext(ctx,
		`INSERT INTO users(id,username,secret_hash,email,birthday,created_at) VALUES($1,$2,$3,$4,$5,$6) RETURNING `+pgColumns,
		newID(), n.Username, n.SecretHash, n.Email, n.Birthday, now())
	i, err := scanPGIdentity(row)
	if err != nil {
		return nil, pgErr("create user", err)
	}
	return i, nil
}

func (p *Postgres) one(ctx context.Context, op, query string, args ...any) (*Identity, error) {
	i, err := scanPGIdentity(p.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, pgErr(op, err)
	}
	return i, nil
}

func (p *Postgres) FindByUsername(ctx context.Context, username string) (*Identity, error) {
	return p.one(ctx, "get user", `SELECT `+pgColumns+` FROM users WHERE username = $1`, username)
}

func (p *Postgres) FindByID(ctx context.Context, id string) (*Identity, error) {
	return p.one(ctx, "get user", `SELECT `+pgColumns+` FROM users WHERE id = $1`, id)
}

func (p *Postgres) List(ctx context.Context) ([]*Identity, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+pgColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, pgErr("list users", err)
	}
	defer rows.Close()
	out := []*Identity{}
	for rows.Next() {
		i, err := scanPGIdentity(rows)
		if err != nil {
			return nil, pgErr("scan user", err)
		}
		out = append(out, i)
	}
	if err := rows.Err(); err != nil {
		return nil, pgErr("list users", err)
	}
	return out, nil
}

func (p *Postgres) Update(ctx context.Context, id string, c Changes) (*Identity, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	if c.empty() {
		return p.FindByID(ctx, id)
	}
	set, args := updateSet(c, func(n int) string { return fmt.Sprintf("$%d", n) })
	args = append(args, id)
	q := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d RETURNING %s`, set, len(args), pgColumns)
	return p.one(ctx, "update user", q, args...)
}

func (p *Postgres) Delete(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return pgErr("delete user", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) AddFavorite(ctx context.Context, id, movieID string) (*Identity, error) {
	return p.one(ctx, "add favorite",
		`UPDATE users SET favorite_movies = CASE
			WHEN $2::text = ANY(favorite_movies) THEN favorite_movies
			ELSE array_append(favorite_movies, $2::text) END
		WHERE id = $1 RETURNING `+pgColumns, id, movieID)
}

func (p *Postgres) RemoveFavorite(ctx context.Context, id, movieID string) (*Identity, error) {
	return p.one(ctx, "remove favorite",
		`UPDATE users SET favorite_movies = array_remove(favorite_movies, $2::text)
		WHERE id = $1 RETURNING `+pgColumns, id, movieID)
}

func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return pgErr("ping", err)
	}
	return nil
}

func (p *Postgres) Close() error { return p.db.Close() }
