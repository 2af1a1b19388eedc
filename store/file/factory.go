package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/i3visio/simplectf/store"
)

var ErrMissingPath = errors.New("file: path is missing from config")

func init() {
	store.Register("file", Factory{})
}

// Factory builds file-backed stores from a json.RawMessage Config.
type Factory struct{}

func (Factory) Build(ctx context.Context, title string, data json.RawMessage) (store.Store, error) {
	config, err := parse(data)
	if err != nil {
		return nil, err
	}

	st, err := New(config.Path, title)
	if err != nil {
		return nil, err
	}

	return st, nil
}

func (Factory) Valid(data json.RawMessage) error {
	_, err := parse(data)
	return err
}

func parse(data json.RawMessage) (Config, error) {
	var config Config
	if err := json.Unmarshal([]byte(data), &config); err != nil {
		return Config{}, fmt.Errorf("%w: %w", store.ErrBadConfig, err)
	}

	if err := config.Valid(); err != nil {
		return Config{}, fmt.Errorf("%w: %w", store.ErrBadConfig, err)
	}

	return config, nil
}

// Config is the file backend configuration.
type Config struct {
	// Path is the data folder. It is created if missing.
	Path string `json:"path"`
}

func (c Config) Valid() error {
	if c.Path == "" {
		return ErrMissingPath
	}

	return nil
}
