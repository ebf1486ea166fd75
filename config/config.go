package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	BackendURL     string        `validate:"required,url"`
	RequestTimeout time.Duration `validate:"gte=0"`
	ListenAddr     string        `validate:"required"`
	StalePolicy    string        `validate:"oneof=discard last-write-wins"`
	LogLevel       string        `validate:"oneof=debug info warn error"`
	LogFile        string

	PostgresDSN string
	Neo4jURI    string `validate:"omitempty,url"`
	Neo4jUser   string
	Neo4jPass   string
}

// Load reads an optional .env file followed by the process environment.
// Variables already set in the environment take precedence over the file.
func Load() (Config, error) {
	return LoadFile(".env")
}

func LoadFile(path string) (Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Read is LoadFile without validation, for callers that apply overrides
// before validating.
func Read(path string) (Config, error) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", path, err)
	}

	timeout, err := time.ParseDuration(getEnv("RAG_REQUEST_TIMEOUT", "0s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse RAG_REQUEST_TIMEOUT: %w", err)
	}

	cfg := Config{
		BackendURL:     getEnv("RAG_BACKEND_URL", "http://localhost:8000"),
		RequestTimeout: timeout,
		ListenAddr:     getEnv("RAG_LISTEN_ADDR", ":8080"),
		StalePolicy:    strings.ToLower(getEnv("RAG_STALE_POLICY", "discard")),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFile:        getEnv("LOG_FILE", ""),
		PostgresDSN:    getEnv("POSTGRES_DSN", ""),
		Neo4jURI:       getEnv("NEO4J_URI", ""),
		Neo4jUser:      getEnv("NEO4J_USERNAME", "neo4j"),
		Neo4jPass:      getEnv("NEO4J_PASSWORD", ""),
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s fails %q", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ArchiveEnabled reports whether attempts should be persisted to Postgres.
func (c Config) ArchiveEnabled() bool {
	return c.PostgresDSN != ""
}

// GraphEnabled reports whether cited sources should be written to Neo4j.
func (c Config) GraphEnabled() bool {
	return c.Neo4jURI != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}
