package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/example/myflix/internal/config"
	"github.com/example/myflix/internal/store"
)

func main() {
	var (
		command = flag.String("command", "up", "Migration command: up, down, version, force")
		steps   = flag.Int("steps", 0, "Number of migration steps (for up/down)")
		version = flag.Uint("version", 0, "Target version (for force command)")
		envFile = flag.String("env", ".env", "optional dotenv file")
	)
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("config error")
	}
	if cfg.DBAdapter != "postgres" {
		log.Fatal().Str("adapter", cfg.DBAdapter).Msg("migrations only work with PostgreSQL; sqlite creates its schema on open")
	}

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("opening database connection")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("database ping failed")
	}

	m, err := store.NewMigrator(db)
	if err != nil {
		log.Fatal().Err(err).Msg("creating migrator")
	}

	switch *command {
	case "up":
		if err := run(m, true, *steps); err != nil {
			log.Fatal().Err(err).Msg("migration up failed")
		}
		log.Info().Msg("migrations applied successfully")
	case "down":
		if err := run(m, false, *steps); err != nil {
			log.Fatal().Err(err).Msg("migration down failed")
		}
		log.Info().Msg("migrations rolled back successfully")
	case "version":
		v, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Println("Current migration version: none")
			return
		}
		if err != nil {
			log.Fatal().Err(err).Msg("failed to get version")
		}
		if dirty {
			log.Error().Uint("version", v).Msg("database is in a dirty state")
			os.Exit(1)
		}
		fmt.Printf("Current migration version: %d\n", v)
	case "force":
		if *version == 0 {
			log.Fatal().Msg("version required for force command (use -version flag)")
		}
		if err := m.Force(int(*version)); err != nil {
			log.Fatal().Err(err).Msg("force migration failed")
		}
		log.Info().Uint("version", *version).Msg("forced database version")
	default:
		log.Fatal().Str("command", *command).Msg("unknown command (supported: up, down, version, force)")
	}
}

func run(m *migrate.Migrate, up bool, steps int) error {
	var err error
	switch {
	case steps > 0 && up:
		err = m.Steps(steps)
	case steps > 0:
		err = m.Steps(-steps)
	case up:
		err = m.Up()
	default:
		err = m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}
