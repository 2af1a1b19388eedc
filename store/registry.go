package store

import (
	"context"
	"encoding/json"
	"maps"
	"slices"
	"sync"
)

var (
	backendsMu sync.RWMutex
	backends   = map[string]Factory{}
)

// Factory builds a Store for one CTF title from backend-specific parameters.
type Factory interface {
	Build(ctx context.Context, title string, config json.RawMessage) (Store, error)
	Valid(config json.RawMessage) error
}

// Register makes a backend available under name. Backends call it from
// init; registering the same name twice panics.
func Register(name string, f Factory) {
	backendsMu.Lock()
	defer backendsMu.Unlock()

	if f == nil {
		panic("store: Register factory is nil for " + name)
	}
	if _, dup := backends[name]; dup {
		panic("store: Register called twice for backend " + name)
	}

	backends[name] = f
}

// Get looks up the factory registered as name.
func Get(name string) (Factory, bool) {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	f, ok := backends[name]
	return f, ok
}

// Methods lists the registered backend names in sorted order.
func Methods() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	return slices.Sorted(maps.Keys(backends))
}
