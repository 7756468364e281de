package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	cfg "github.com/example/myflix/internal/config"
	"github.com/example/myflix/internal/password"
	"github.com/example/myflix/internal/store"
	"github.com/example/myflix/internal/token"
)

type App struct {
	Store          store.Store
	Hasher         *password.Hasher
	Tokens         *token.Service
	Log            zerolog.Logger
	Metrics        *Metrics
	AllowedOrigins []string

	validate  *validator.Validate
	dummyHash string
}

func newLogger(level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	var l zerolog.Logger
	if format == "console" {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		l = zerolog.New(os.Stdout)
	}
	return l.Level(lvl).With().Timestamp().Str("service", "myflix").Logger()
}

func openStore(ctx context.Context, c *cfg.Config, log zerolog.Logger) (store.Store, error) {
	switch c.DBAdapter {
	case "sqlite":
		s, err := store.NewSQLite(c.SQLiteFile)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		log.Info().Msg("applying database migrations")
		if err := store.ApplyMigrations(c.PostgresDSN, log); err != nil {
			return nil, err
		}
		p, err := store.NewPostgres(ctx, c.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		log.Warn().Msg("using in-memory store; data is lost on restart")
		return store.NewMemory(), nil
	}
}

func main() {
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	c, err := cfg.Load(*envFile)
	if err != nil {
		bootLog := newLogger("info", "json")
		bootLog.Fatal().Err(err).Msg("config")
	}
	log := newLogger(c.LogLevel, c.LogFormat)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	raw, err := openStore(startCtx, c, log)
	cancelStart()
	if err != nil {
		log.Fatal().Err(err).Str("adapter", c.DBAdapter).Msg("open store")
	}
	log.Info().Str("adapter", c.DBAdapter).Msg("store ready")
	st := store.NewResilient(raw, store.ResilientOptions{Timeout: c.StoreTimeout, Retries: c.StoreRetries})

	tokens, err := token.NewService(token.Config{Secret: []byte(c.JwtSecret), Issuer: c.JwtIssuer, TTL: c.TokenTTL})
	if err != nil {
		log.Fatal().Err(err).Msg("token service")
	}
	app, err := NewApp(Options{
		Store:          st,
		Hasher:         password.NewHasher(c.BcryptCost),
		Tokens:         tokens,
		Log:            log,
		AllowedOrigins: c.AllowedOrigins,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("init app")
	}

	srv := &http.Server{
		Handler:           app.Routes(),
		Addr:              ":" + c.Port,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("port", c.Port).Str("env", c.Env).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
	if err := st.Close(); err != nil {
		log.Error().Err(err).Msg("close store")
	}
	log.Info().Msg("server exited properly")
}
