package config

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/i3visio/simplectf/store"
	_ "github.com/i3visio/simplectf/store/all"
)

var (
	ErrNoStoreBackend      = errors.New("config.Store: no backend defined")
	ErrUnknownStoreBackend = errors.New("config.Store: unknown backend")
)

type Store struct {
	Backend    string          `json:"backend"`
	Parameters json.RawMessage `json:"parameters"`
}

// FileStore is the default: the status document lives in dataDir.
func FileStore(dataDir string) Store {
	params, _ := json.Marshal(map[string]string{"path": dataDir})
	return Store{Backend: "file", Parameters: params}
}

func (s Store) Zero() bool {
	return s.Backend == "" && len(s.Parameters) == 0
}

func (s *Store) Valid() error {
	var errs []error

	if len(s.Backend) == 0 {
		errs = append(errs, ErrNoStoreBackend)
	}

	fac, ok := store.Get(s.Backend)
	switch ok {
	case true:
		if err := fac.Valid(s.Parameters); err != nil {
			errs = append(errs, err)
		}
	case false:
		errs = append(errs, fmt.Errorf("%w: %q (have: %v)", ErrUnknownStoreBackend, s.Backend, store.Methods()))
	}

	if len(errs) != 0 {
		return errors.Join(errs...)
	}

	return nil
}
