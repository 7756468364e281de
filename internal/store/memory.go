package store

import (
	"context"
	"sort"
	"sync"
)

// Memory keeps identities in process. Not recommended for production.
type Memory struct {
	mu         sync.RWMutex
	byID       map[string]*Identity
	byUsername map[string]string
}

func NewMemory() *Memory {
	return &Memory{byID: map[string]*Identity{}, byUsername: map[string]string{}}
}

func clone(i *Identity) *Identity {
	c := *i
	c.FavoriteMovies = append([]string{}, i.FavoriteMovies...)
	return &c
}

func (m *Memory) Create(ctx context.Context, n NewIdentity) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := n.validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byUsername[n.Username]; ok {
		return nil, ErrDuplicateUsername
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
	m.byID[i.ID] = i
	m.byUsername[i.Username] = i.ID
	return clone(i), nil
}

func (m *Memory) FindByUsername(ctx context.Context, username string) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byUsername[username]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(m.byID[id]), nil
}

func (m *Memory) FindByID(ctx context.Context, id string) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(i), nil
}

func (m *Memory) List(ctx context.Context) ([]*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := make([]*Identity, 0, len(m.byID))
	for _, i := range m.byID {
		out = append(out, clone(i))
	}
	m.mu.RUnlock()
	sort.Slice(out, func(a, b int) bool { return out[a].Username < out[b].Username })
	return out, nil
}

func (m *Memory) Update(ctx context.Context, id string, c Changes) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if c.Username != nil && *c.Username != i.Username {
		if _, taken := m.byUsername[*c.Username]; taken {
			return nil, ErrDuplicateUsername
		}
		delete(m.byUsername, i.Username)
		i.Username = *c.Username
		m.byUsername[i.Username] = i.ID
	}
	if c.SecretHash != nil {
		i.SecretHash = *c.SecretHash
	}
	if c.Email != nil {
		i.Email = *c.Email
	}
	if c.Birthday != nil {
		i.Birthday = *c.Birthday
	}
	return clone(i), nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.byUsername, i.Username)
	delete(m.byID, id)
	return nil
}

func (m *Memory) AddFavorite(ctx context.Context, id, movieID string) (*Identity, error) {
	return m.editFavorites(ctx, id, func(favs []string) []string {
		for _, f := range favs {
			if f == movieID {
				return favs
			}
		}
		return append(favs, movieID)
	})
}

func (m *Memory) RemoveFavorite(ctx context.Context, id, movieID string) (*Identity, error) {
	return m.editFavorites(ctx, id, func(favs []string) []string {
		out := favs[:0]
		for _, f := range favs {
			if f != movieID {
				out = append(out, f)
			}
		}
		return out
	})
}

func (m *Memory) editFavorites(ctx context.Context, id string, edit func([]string) []string) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	i.FavoriteMovies = edit(i.FavoriteMovies)
	return clone(i), nil
}

func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }

func (m *Memory) Close() error { return nil }
