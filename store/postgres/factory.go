package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/i3visio/simplectf/store"
)

var (
	ErrNoURL  = errors.New("postgres.Config: no URL defined")
	ErrBadURL = errors.New("postgres.Config: URL is invalid")
)

func init() {
	store.Register("postgres", Factory{})
}

type Factory struct{}

func (Factory) Build(ctx context.Context, title string, data json.RawMessage) (store.Store, error) {
	var config Config
	if err := json.Unmarshal([]byte(data), &config); err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrBadConfig, err)
	}

	if err := config.Valid(); err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrBadConfig, err)
	}

	pool, err := pgxpool.New(ctx, config.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: pgxpool.New: %w", store.ErrPersistence, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: can't reach postgres: %w", store.ErrPersistence, err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: migrate: %w", store.ErrPersistence, err)
	}

	return NewStore(pool, title), nil
}

func (Factory) Valid(data json.RawMessage) error {
	var config Config
	if err := json.Unmarshal([]byte(data), &config); err != nil {
		return fmt.Errorf("%w: %w", store.ErrBadConfig, err)
	}

	if err := config.Valid(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrBadConfig, err)
	}

	return nil
}

// Config is the postgres backend configuration.
type Config struct {
	// URL is a libpq-style connection string, e.g.
	// postgres://ctf:secret@db:5432/ctf?sslmode=disable
	URL string `json:"url"`
}

func (c Config) Valid() error {
	if c.URL == "" {
		return ErrNoURL
	}

	if _, err := pgxpool.ParseConfig(c.URL); err != nil {
		return fmt.Errorf("%w: %w", ErrBadURL, err)
	}

	return nil
}
