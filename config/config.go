package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"k8s.io/apimachinery/pkg/util/yaml"

	"github.com/i3visio/simplectf/challenge"
	"github.com/i3visio/simplectf/model"
)

var (
	// ErrInvalidConfig wraps every problem found while loading a rules file.
	ErrInvalidConfig = errors.New("config: invalid CTF definition")

	ErrNoTitle          = errors.New("config: must set title")
	ErrTitleNotFileSafe = errors.New("config: title must not contain path separators or be . or ..")
	ErrNoChallenges     = errors.New("config: must define at least one (1) challenge")
)

// Config is one CTF definition. It is built once at startup and not
// modified afterwards.
type Config struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Challenges  []model.Challenge `json:"challenges"`
	Store       Store             `json:"store"`
}

func (c *Config) Valid() error {
	var errs []error

	switch {
	case c.Title == "":
		errs = append(errs, ErrNoTitle)
	case c.Title == "." || c.Title == ".." || strings.ContainsAny(c.Title, `/\`):
		errs = append(errs, fmt.Errorf("%w: %q", ErrTitleNotFileSafe, c.Title))
	}

	if len(c.Challenges) == 0 {
		errs = append(errs, ErrNoChallenges)
	} else if err := challenge.Validate(c.Challenges); err != nil {
		errs = append(errs, err)
	}

	if !c.Store.Zero() {
		if err := c.Store.Valid(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) != 0 {
		return fmt.Errorf("%w:\n%w", ErrInvalidConfig, errors.Join(errs...))
	}

	return nil
}

// Load parses a CTF definition. YAML and JSON are both accepted.
func Load(fin io.Reader, fname string) (*Config, error) {
	var c Config

	if err := yaml.NewYAMLToJSONDecoder(fin).Decode(&c); err != nil {
		return nil, fmt.Errorf("%w: can't parse %s: %w", ErrInvalidConfig, fname, err)
	}

	if err := c.Valid(); err != nil {
		return nil, fmt.Errorf("%s: %w", fname, err)
	}

	return &c, nil
}

// LoadFile opens fname and loads it.
func LoadFile(fname string) (*Config, error) {
	fin, err := os.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("%w: can't open %s: %w", ErrInvalidConfig, fname, err)
	}

	defer func(fin io.ReadCloser) {
		if err := fin.Close(); err != nil {
			slog.Error("failed to close rules file", "file", fname, "err", err)
		}
	}(fin)

	return Load(fin, fname)
}
