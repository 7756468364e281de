// Package guard runs an ordered list of predicates in front of an HTTP
// handler. Each predicate either passes the request on, possibly with an
// enriched context, or stops the chain with an error that a deny function
// turns into the response.
package guard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/example/myflix/internal/store"
	"github.com/example/myflix/internal/token"
)

// ErrForbidden is returned by Owner when an authenticated principal acts on
// someone else's resource.
var ErrForbidden = errors.New("guard: forbidden")

// Principal is the authenticated caller. It deliberately carries no secret
// material.
type Principal struct {
	ID       string
	Username string
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

type Guard func(r *http.Request) (*http.Request, error)

// DenyFunc writes the terminal response for the error a guard returned.
type DenyFunc func(w http.ResponseWriter, r *http.Request, err error)

// Chain applies guards in order and calls h only if all of them pass.
func Chain(h http.Handler, deny DenyFunc, guards ...Guard) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, g := range guards {
			next, err := g(r)
			if err != nil {
				deny(w, r, err)
				return
			}
			r = next
		}
		h.ServeHTTP(w, r)
	})
}

type Verifier interface {
	Verify(raw string) (token.Claims, error)
}

type Resolver interface {
	FindByID(ctx context.Context, id string) (*store.Identity, error)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, error) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h == "" {
		return "", token.NewAuthError(token.Missing, errors.New("no authorization header"))
	}
	scheme, raw, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", token.NewAuthError(token.Missing, errors.New("authorization scheme is not bearer"))
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", token.NewAuthError(token.Missing, errors.New("empty bearer token"))
	}
	return raw, nil
}

// Bearer authenticates the request and attaches the Principal. A token for
// an identity that no longer exists fails with SubjectGone; store failures
// are returned as they are so the deny function can tell them apart.
func Bearer(v Verifier, res Resolver) Guard {
	return func(r *http.Request) (*http.Request, error) {
		raw, err := BearerToken(r)
		if err != nil {
			return nil, err
		}
		claims, err := v.Verify(raw)
		if err != nil {
			return nil, err
		}
		id, err := res.FindByID(r.Context(), claims.Subject)
		if errors.Is(err, store.ErrNotFound) {
			return nil, token.NewAuthError(token.SubjectGone, err)
		}
		if err != nil {
			return nil, fmt.Errorf("resolve token subject: %w", err)
		}
		p := Principal{ID: id.ID, Username: id.Username}
		return r.WithContext(WithPrincipal(r.Context(), p)), nil
	}
}

// Owner lets the request through only when the authenticated principal's
// username equals the one named by the request. It must run after Bearer.
func Owner(username func(*http.Request) string) Guard {
	return func(r *http.Request) (*http.Request, error) {
		p, ok := PrincipalFrom(r.Context())
		if !ok {
			return nil, token.NewAuthError(token.Missing, errors.New("no principal in context"))
		}
		if p.Username != username(r) {
			return nil, ErrForbidden
		}
		return r, nil
	}
}
