package main

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/example/myflix/internal/guard"
	"github.com/example/myflix/internal/password"
	"github.com/example/myflix/internal/store"
	"github.com/example/myflix/internal/token"
)

type Options struct {
	Store          store.Store
	Hasher         *password.Hasher
	Tokens         *token.Service
	Log            zerolog.Logger
	Metrics        *Metrics
	AllowedOrigins []string
}

func NewApp(o Options) (*App, error) {
	if o.Metrics == nil {
		o.Metrics = NewMetrics()
	}
	// Hash of a throwaway secret, compared against on unknown usernames.
	dummy, err := o.Hasher.Hash("timing-equaliser")
	if err != nil {
		return nil, fmt.Errorf("dummy hash: %w", err)
	}
	return &App{
		Store:          o.Store,
		Hasher:         o.Hasher,
		Tokens:         o.Tokens,
		Log:            o.Log,
		Metrics:        o.Metrics,
		AllowedOrigins: o.AllowedOrigins,
		validate:       newValidator(),
		dummyHash:      dummy,
	}, nil
}

// Routes builds the full handler. CORS and security headers wrap the router
// so that they also apply to 404, 405 and preflight responses.
func (a *App) Routes() http.Handler {
	r := mux.NewRouter()
	r.Use(a.RequestLogger)
	r.NotFoundHandler = a.RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found")
	}))
	r.MethodNotAllowedHandler = a.RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	}))

	r.HandleFunc("/health", a.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", a.HandleReady).Methods(http.MethodGet)
	r.Handle("/metrics", a.Metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/login", a.HandleLogin).Methods(http.MethodPost)
	r.HandleFunc("/users", a.HandleRegister).Methods(http.MethodPost)
	r.HandleFunc("/auth/validate", a.HandleTokenValidate).Methods(http.MethodGet)

	bearer := guard.Bearer(a.Tokens, a.Store)
	owner := guard.Owner(func(r *http.Request) string { return mux.Vars(r)["username"] })
	authed := func(h http.HandlerFunc) http.Handler {
		return guard.Chain(h, a.deny, bearer)
	}
	owned := func(h http.HandlerFunc) http.Handler {
		return guard.Chain(h, a.deny, bearer, owner)
	}

	r.Handle("/users", authed(a.HandleListUsers)).Methods(http.MethodGet)
	r.Handle("/users/{username}", authed(a.HandleGetUser)).Methods(http.MethodGet)
	r.Handle("/users/{username}", owned(a.HandleUpdateUser)).Methods(http.MethodPut)
	r.Handle("/users/{username}", owned(a.HandleDeleteUser)).Methods(http.MethodDelete)
	r.Handle("/users/{username}/movies/{movieID}", owned(a.HandleAddFavorite)).Methods(http.MethodPost)
	r.Handle("/users/{username}/movies/{movieID}", owned(a.HandleRemoveFavorite)).Methods(http.MethodDelete)

	return a.Recover(SecurityHeaders(a.CORS(r)))
}
