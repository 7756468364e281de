package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

const defaultJwtSecret = "change-me"

type Config struct {
	Port       string
	Env        string
	DBAdapter  string
	SQLiteFile string

	JwtSecret  string
	JwtIssuer  string
	TokenTTL   time.Duration
	BcryptCost int

	// Every store call is bounded by StoreTimeout; reads that fail because the
	// store is unreachable are retried up to StoreRetries extra times.
	StoreTimeout time.Duration
	StoreRetries int

	AllowedOrigins []string
	LogLevel       string
	LogFormat      string

	// PostgreSQL connection settings
	PostgresDSN      string
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getduration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

func getint(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// BuildPostgresDSN constructs a PostgreSQL DSN from individual components or returns the provided DSN
func (c *Config) BuildPostgresDSN() (string, error) {
	if c.PostgresDSN != "" {
		return c.PostgresDSN, nil
	}

	if c.PostgresHost == "" {
		return "", errors.New("POSTGRES_HOST or POSTGRES_DSN must be set")
	}
	if c.PostgresUser == "" {
		return "", errors.New("POSTGRES_USER must be set")
	}
	if c.PostgresDB == "" {
		return "", errors.New("POSTGRES_DB must be set")
	}

	port := c.PostgresPort
	if port == "" {
		port = "5432"
	}

	sslMode := c.PostgresSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		c.PostgresHost, port, c.PostgresUser, c.PostgresDB, sslMode)

	if c.PostgresPassword != "" {
		dsn += " password=" + c.PostgresPassword
	}

	return dsn, nil
}

// IsProduction reports whether ENV names a production deployment.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Load reads an optional .env file into the process environment and then
// builds the configuration. Variables already set in the environment win.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}
	return New()
}

func New() (*Config, error) {
	c := &Config{
		Port:       getenv("PORT", "8080"),
		Env:        strings.ToLower(getenv("ENV", getenv("NODE_ENV", ""))),
		DBAdapter:  getenv("DB_ADAPTER", "postgres"),
		SQLiteFile: getenv("SQLITE_FILE", "./data/myflix.db"),
		JwtSecret:  getenv("JWT_SECRET", defaultJwtSecret),
		JwtIssuer:  getenv("JWT_ISSUER", "myflix"),
		LogLevel:   getenv("LOG_LEVEL", "info"),
		LogFormat:  getenv("LOG_FORMAT", "json"),

		AllowedOrigins: splitList(getenv("ALLOWED_ORIGINS", "")),

		PostgresDSN:      getenv("POSTGRES_DSN", ""),
		PostgresHost:     getenv("POSTGRES_HOST", getenv("DB_HOST", "localhost")),
		PostgresPort:     getenv("POSTGRES_PORT", getenv("DB_PORT", "5432")),
		PostgresUser:     getenv("POSTGRES_USER", getenv("DB_USER", "myflix")),
		PostgresPassword: getenv("POSTGRES_PASSWORD", getenv("DB_PASSWORD", "myflixpass")),
		PostgresDB:       getenv("POSTGRES_DB", getenv("DB_NAME", "myflix")),
		PostgresSSLMode:  getenv("POSTGRES_SSLMODE", getenv("DB_SSLMODE", "disable")),
	}

	var err error
	if c.TokenTTL, err = getduration("TOKEN_TTL", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if c.StoreTimeout, err = getduration("STORE_TIMEOUT", 3*time.Second); err != nil {
		return nil, err
	}
	if c.StoreRetries, err = getint("STORE_RETRIES", 2); err != nil {
		return nil, err
	}
	if c.StoreRetries < 0 {
		return nil, errors.New("invalid STORE_RETRIES: must not be negative")
	}
	if c.BcryptCost, err = getint("BCRYPT_COST", bcrypt.DefaultCost); err != nil {
		return nil, err
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("invalid BCRYPT_COST: must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	switch c.DBAdapter {
	case "postgres":
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			return nil, fmt.Errorf("postgres configuration error: %w", err)
		}
		c.PostgresDSN = dsn
	case "sqlite":
		if c.SQLiteFile == "" {
			return nil, errors.New("SQLITE_FILE must be set when DB_ADAPTER=sqlite")
		}
	case "memory":
	default:
		return nil, fmt.Errorf("unsupported DB_ADAPTER: %s (supported: postgres, sqlite, memory)", c.DBAdapter)
	}

	if c.JwtSecret == "" {
		return nil, errors.New("JWT_SECRET must not be empty")
	}
	if c.IsProduction() && c.JwtSecret == defaultJwtSecret {
		return nil, errors.New("JWT_SECRET must be set in production")
	}

	if _, err := strconv.Atoi(c.Port); err != nil {
		return nil, fmt.Errorf("invalid PORT: %s", c.Port)
	}

	return c, nil
}
