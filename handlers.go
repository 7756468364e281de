package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/example/myflix/internal/guard"
	"github.com/example/myflix/internal/password"
	"github.com/example/myflix/internal/store"
)

// userView is the public shape of an identity. It has no field for the hash.
type userView struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email,omitempty"`
	Birthday       string    `json:"birthday,omitempty"`
	FavoriteMovies []string  `json:"favoriteMovies"`
	CreatedAt      time.Time `json:"createdAt"`
}

func newUserView(i *store.Identity) userView {
	favs := i.FavoriteMovies
	if favs == nil {
		favs = []string{}
	}
	return userView{
		ID:             i.ID,
		Username:       i.Username,
		Email:          i.Email,
		Birthday:       i.Birthday,
		FavoriteMovies: favs,
		CreatedAt:      i.CreatedAt,
	}
}

func (a *App) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	l := zerolog.Ctx(r.Context())

	user, err := a.Store.FindByUsername(r.Context(), req.Username)
	if errors.Is(err, store.ErrNotFound) {
		// Spend the same bcrypt work as for a known user.
		a.Hasher.Verify(req.Password, a.dummyHash)
		a.rejectLogin(w, "unknown_user")
		return
	}
	if err != nil {
		a.Metrics.logins.WithLabelValues("error").Inc()
		a.storeFailure(w, r, err)
		return
	}

	if err := a.Hasher.Check(req.Password, user.SecretHash); err != nil {
		if errors.Is(err, password.ErrCorruptHash) {
			l.Error().Err(err).Str("user_id", user.ID).Msg("stored password hash is unreadable")
			a.rejectLogin(w, "corrupt_hash")
			return
		}
		a.rejectLogin(w, "bad_secret")
		return
	}

	tok, err := a.Tokens.Mint(user.ID)
	if err != nil {
		l.Error().Err(err).Msg("mint token")
		a.Metrics.logins.WithLabelValues("error").Inc()
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}
	a.Metrics.logins.WithLabelValues("issued").Inc()
	l.Info().Str("user_id", user.ID).Msg("token issued")
	writeJSON(w, http.StatusOK, map[string]any{
		"token": tok,
		"user":  newUserView(user),
	})
}

func (a *App) rejectLogin(w http.ResponseWriter, reason string) {
	a.Metrics.logins.WithLabelValues("rejected_" + reason).Inc()
	writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password")
}

func (a *App) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decode(w, r, &req) || !a.check(w, &req) {
		return
	}
	hash, ok := a.hash(w, r, req.Password)
	if !ok {
		return
	}
	user, err := a.Store.Create(r.Context(), store.NewIdentity{
		Username:   req.Username,
		SecretHash: hash,
		Email:      req.Email,
		Birthday:   req.Birthday,
	})
	if err != nil {
		a.storeFailure(w, r, err)
		return
	}
	zerolog.Ctx(r.Context()).Info().Str("user_id", user.ID).Msg("user registered")
	writeJSON(w, http.StatusCreated, newUserView(user))
}

// hash writes the response itself when the secret cannot be hashed.
func (a *App) hash(w http.ResponseWriter, r *http.Request, secret string) (string, bool) {
	h, err := a.Hasher.Hash(secret)
	switch {
	case err == nil:
		return h, true
	case errors.Is(err, password.ErrEmpty):
		writePasswordInvalid(w, FieldError{Field: "password", Rule: "required"})
	case errors.Is(err, password.ErrTooLong):
		writePasswordInvalid(w, FieldError{Field: "password", Rule: "max", Param: "72 bytes"})
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("hash password")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
	return "", false
}

func writePasswordInvalid(w http.ResponseWriter, fe FieldError) {
	writeJSON(w, http.StatusUnprocessableEntity, APIError{
		Code:    "VALIDATION_FAILED",
		Message: "1 field(s) failed validation",
		Details: []FieldError{fe},
	})
}

func (a *App) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.Store.List(r.Context())
	if err != nil {
		a.storeFailure(w, r, err)
		return
	}
	out := make([]userView, 0, len(users))
	for _, u := range users {
		out = append(out, newUserView(u))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *App) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := a.Store.FindByUsername(r.Context(), mux.Vars(r)["username"])
	if err != nil {
		a.storeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserView(user))
}

// principal is only called behind the bearer guard.
func principal(r *http.Request) guard.Principal {
	p, _ := guard.PrincipalFrom(r.Context())
	return p
}

func (a *App) HandleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !decode(w, r, &req) || !a.check(w, &req) {
		return
	}
	c := store.Changes{Username: req.Username, Email: req.Email, Birthday: req.Birthday}
	if req.Password != nil {
		hash, ok := a.hash(w, r, *req.Password)
		if !ok {
			return
		}
		c.SecretHash = &hash
	}
	user, err := a.Store.Update(r.Context(), principal(r).ID, c)
	if err != nil {
		a.storeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserView(user))
}

func (a *App) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	if err := a.Store.Delete(r.Context(), p.ID); err != nil {
		a.storeFailure(w, r, err)
		return
	}
	zerolog.Ctx(r.Context()).Info().Str("user_id", p.ID).Msg("user deleted")
	writeJSON(w, http.StatusOK, map[string]any{
		"deleted":  true,
		"username": p.Username,
	})
}

func (a *App) HandleAddFavorite(w http.ResponseWriter, r *http.Request) {
	user, err := a.Store.AddFavorite(r.Context(), principal(r).ID, mux.Vars(r)["movieID"])
	if err != nil {
		a.storeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserView(user))
}

func (a *App) HandleRemoveFavorite(w http.ResponseWriter, r *http.Request) {
	user, err := a.Store.RemoveFavorite(r.Context(), principal(r).ID, mux.Vars(r)["movieID"])
	if err != nil {
		a.storeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserView(user))
}

// HandleTokenValidate checks the bearer token's signature and expiry only. It
// does not look the subject up.
// GET /auth/validate
func (a *App) HandleTokenValidate(w http.ResponseWriter, r *http.Request) {
	raw, err := guard.BearerToken(r)
	if err != nil {
		a.deny(w, r, err)
		return
	}
	claims, err := a.Tokens.Verify(raw)
	if err != nil {
		a.deny(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"valid":     true,
		"subject":   claims.Subject,
		"expiresAt": claims.ExpiresAt.Unix(),
	})
}

func (a *App) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) HandleReady(w http.ResponseWriter, r *http.Request) {
	if err := a.Store.Ping(r.Context()); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("store not ready")
		writeJSON(w, http.StatusServiceUnavailable, map[string]bool{"ready": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
}
