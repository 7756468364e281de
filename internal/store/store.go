// Package store persists identities. Adapters exist for memory, SQLite and
// PostgreSQL; all of them enforce username uniqueness themselves so that
// concurrent registrations cannot both succeed.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("store: not found")
	ErrDuplicateUsername = errors.New("store: duplicate username")
	// ErrUnavailable means the backing store could not be reached. It is the
	// only store error worth retrying.
	ErrUnavailable = errors.New("store: unavailable")
	ErrInvalid     = errors.New("store: invalid identity")
)

// Identity is a registered user. SecretHash must never leave the server.
type Identity struct {
	ID             string
	Username       string
	SecretHash     string
	Email          string
	Birthday       string
	FavoriteMovies []string
	CreatedAt      time.Time
}

// NewIdentity carries the fields a caller supplies at registration.
type NewIdentity struct {
	Username   string
	SecretHash string
	Email      string
	Birthday   string
}

func (n NewIdentity) validate() error {
	if n.Username == "" || n.SecretHash == "" {
		return ErrInvalid
	}
	return nil
}

// Changes lists the fields to update; nil fields are left alone.
type Changes struct {
	Username   *string
	SecretHash *string
	Email      *string
	Birthday   *string
}

func (c Changes) empty() bool {
	return c.Username == nil && c.SecretHash == nil && c.Email == nil && c.Birthday == nil
}

func (c Changes) validate() error {
	if (c.Username != nil && *c.Username == "") || (c.SecretHash != nil && *c.SecretHash == "") {
		return ErrInvalid
	}
	return nil
}

type Store interface {
	Create(ctx context.Context, n NewIdentity) (*Identity, error)
	FindByUsername(ctx context.Context, username string) (*Identity, error)
	FindByID(ctx context.Context, id string) (*Identity, error)
	List(ctx context.Context) ([]*Identity, error)
	Update(ctx context.Context, id string, c Changes) (*Identity, error)
	Delete(ctx context.Context, id string) error
	// AddFavorite is idempotent: a movie already in the list is not added twice.
	AddFavorite(ctx context.Context, id, movieID string) (*Identity, error)
	RemoveFavorite(ctx context.Context, id, movieID string) (*Identity, error)
	Ping(ctx context.Context) error
	Close() error
}

func newID() string { return uuid.NewString() }

func now() time.Time { return time.Now().UTC() }
