package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

type ResilientOptions struct {
	// Timeout bounds every single call. Zero disables the bound.
	Timeout time.Duration
	// Retries is the number of extra attempts for reads that failed with
	// ErrUnavailable.
	Retries int
	// InitialBackoff is the first wait between attempts. Defaults to 50ms.
	InitialBackoff time.Duration
}

// Resilient wraps a Store with per-call timeouts and bounded retries of
// reads. Writes are never retried: a write that timed out may have landed.
type Resilient struct {
	next Store
	opts ResilientOptions
}

func NewResilient(next Store, opts ResilientOptions) *Resilient {
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 50 * time.Millisecond
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	return &Resilient{next: next, opts: opts}
}

// call runs fn under the per-call timeout. A deadline hit by that timeout,
// rather than by the caller's own context, counts as the store being
// unavailable.
func (r *Resilient) call(ctx context.Context, fn func(context.Context) error) error {
	if r.opts.Timeout <= 0 {
		return fn(ctx)
	}
	cctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()
	err := fn(cctx)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrUnavailable) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

func (r *Resilient) read(ctx context.Context, op string, fn func(context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.InitialBackoff
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.opts.Retries)), ctx)

	attempt := func() error {
		err := r.call(ctx, fn)
		if err != nil && !errors.Is(err, ErrUnavailable) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		zerolog.Ctx(ctx).Warn().Err(err).Str("op", op).Dur("retry_in", wait).Msg("store unavailable, retrying")
	}
	return backoff.RetryNotify(attempt, policy, notify)
}

func (r *Resilient) Create(ctx context.Context, n NewIdentity) (i *Identity, err error) {
	err = r.call(ctx, func(ctx context.Context) error {
		i, err = r.next.Create(ctx, n)
		return err
	})
	return i, err
}

func (r *Resilient) FindByUsername(ctx context.Context, username string) (i *Identity, err error) {
	err = r.read(ctx, "find_by_username", func(ctx context.Context) error {
		i, err = r.next.FindByUsername(ctx, username)
		return err
	})
	return i, err
}

func (r *Resilient) FindByID(ctx context.Context, id string) (i *Identity, err error) {
	err = r.read(ctx, "find_by_id", func(ctx context.Context) error {
		i, err = r.next.FindByID(ctx, id)
		return err
	})
	return i, err
}

func (r *Resilient) List(ctx context.Context) (out []*Identity, err error) {
	err = r.read(ctx, "list", func(ctx context.Context) error {
		out, err = r.next.List(ctx)
		return err
	})
	return out, err
}

func (r *Resilient) Update(ctx context.Context, id string, c Changes) (i *Identity, err error) {
	err = r.call(ctx, func(ctx context.Context) error {
		i, err = r.next.Update(ctx, id, c)
		return err
	})
	return i, err
}

func (r *Resilient) Delete(ctx context.Context, id string) error {
	return r.call(ctx, func(ctx context.Context) error {
		return r.next.Delete(ctx, id)
	})
}

func (r *Resilient) AddFavorite(ctx context.Context, id, movieID string) (i *Identity, err error) {
	err = r.call(ctx, func(ctx context.Context) error {
		i, err = r.next.AddFavorite(ctx, id, movieID)
		return err
	})
	return i, err
}

func (r *Resilient) RemoveFavorite(ctx context.Context, id, movieID string) (i *Identity, err error) {
	err = r.call(ctx, func(ctx context.Context) error {
		i, err = r.next.RemoveFavorite(ctx, id, movieID)
		return err
	})
	return i, err
}

func (r *Resilient) Ping(ctx context.Context) error {
	return r.call(ctx, r.next.Ping)
}

func (r *Resilient) Close() error { return r.next.Close() }
