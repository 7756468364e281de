package store

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flaky fails the first `failures` FindByUsername/Create calls with err.
type flaky struct {
	*Memory
	failures int32
	err      error
	calls    atomic.Int32
	block    bool
}

func (f *flaky) FindByUsername(ctx context.Context, username string) (*Identity, error) {
	if f.calls.Add(1) <= f.failures {
		return nil, f.err
	}
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.Memory.FindByUsername(ctx, username)
}

func (f *flaky) Create(ctx context.Context, n NewIdentity) (*Identity, error) {
	if f.calls.Add(1) <= f.failures {
		return nil, f.err
	}
	return f.Memory.Create(ctx, n)
}

func unavailable() error {
	return fmt.Errorf("dial tcp: %w: connection refused", ErrUnavailable)
}

func seeded(t *testing.T) *Memory {
	m := NewMemory()
	_, err := m.Create(context.Background(), NewIdentity{Username: "alice1", SecretHash: "h"})
	require.NoError(t, err)
	return m
}

func TestResilientRetriesUnavailableReads(t *testing.T) {
	f := &flaky{Memory: seeded(t), failures: 2, err: unavailable()}
	r := NewResilient(f, ResilientOptions{Retries: 2, InitialBackoff: time.Millisecond})

	i, err := r.FindByUsername(context.Background(), "alice1")
	require.NoError(t, err)
	assert.Equal(t, "alice1", i.Username)
	assert.EqualValues(t, 3, f.calls.Load())
}

func TestResilientGivesUpAfterRetries(t *testing.T) {
	f := &flaky{Memory: seeded(t), failures: 10, err: unavailable()}
	r := NewResilient(f, ResilientOptions{Retries: 2, InitialBackoff: time.Millisecond})

	_, err := r.FindByUsername(context.Background(), "alice1")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.EqualValues(t, 3, f.calls.Load())
}

func TestResilientDoesNotRetryOtherErrors(t *testing.T) {
	f := &flaky{Memory: seeded(t), failures: 1, err: errors.New("syntax error")}
	r := NewResilient(f, ResilientOptions{Retries: 3, InitialBackoff: time.Millisecond})

	_, err := r.FindByUsername(context.Background(), "alice1")
	assert.EqualError(t, err, "syntax error")
	assert.EqualValues(t, 1, f.calls.Load())

	_, err = r.FindByUsername(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.EqualValues(t, 2, f.calls.Load())
}

func TestResilientNeverRetriesWrites(t *testing.T) {
	f := &flaky{Memory: NewMemory(), failures: 1, err: unavailable()}
	r := NewResilient(f, ResilientOptions{Retries: 3, InitialBackoff: time.Millisecond})

	_, err := r.Create(context.Background(), NewIdentity{Username: "jack1", SecretHash: "h"})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.EqualValues(t, 1, f.calls.Load())
}

func TestResilientTimeoutIsUnavailable(t *testing.T) {
	f := &flaky{Memory: seeded(t), block: true}
	r := NewResilient(f, ResilientOptions{Timeout: 5 * time.Millisecond, Retries: 1, InitialBackoff: time.Millisecond})

	_, err := r.FindByUsername(context.Background(), "alice1")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.EqualValues(t, 2, f.calls.Load())
}

func TestResilientCallerCancellationIsNotRetried(t *testing.T) {
	f := &flaky{Memory: seeded(t), block: true}
	r := NewResilient(f, ResilientOptions{Timeout: time.Second, Retries: 3, InitialBackoff: time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err := r.FindByUsername(ctx, "alice1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnavailable)
	assert.EqualValues(t, 1, f.calls.Load())
}
