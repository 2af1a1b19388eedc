package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/i3visio/simplectf/model"
	"github.com/i3visio/simplectf/store"
)

type factory struct{}

func (factory) Build(_ context.Context, _ string, _ json.RawMessage) (store.Store, error) {
	return New(), nil
}

func (factory) Valid(json.RawMessage) error { return nil }

func init() {
	store.Register("memory", factory{})
}

type impl struct {
	mu    sync.RWMutex
	users map[string]model.UserProgress
}

// New creates an in-memory store. Nothing survives a restart; use it for
// tests and throwaway events.
func New() store.Store {
	return &impl{users: map[string]model.UserProgress{}}
}

func (i *impl) Get(_ context.Context, username string) (model.UserProgress, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	p, ok := i.users[username]
	if !ok {
		return model.UserProgress{}, fmt.Errorf("%w: %q", store.ErrNotFound, username)
	}

	return p.Clone(), nil
}

func (i *impl) Snapshot(_ context.Context) (map[string]model.UserProgress, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	result := make(map[string]model.UserProgress, len(i.users))
	for k, v := range i.users {
		result[k] = v.Clone()
	}

	return result, nil
}

func (i *impl) ApplyAward(_ context.Context, username, challengeURL string, points int) (store.AwardOutcome, model.UserProgress, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	current, ok := i.users[username]
	if !ok {
		current = store.NewProgress(username)
	}

	outcome, next := store.Award(current, challengeURL, points)
	if outcome == store.FirstAward {
		i.users[username] = next
	}

	return outcome, next.Clone(), nil
}

func (i *impl) Close() error { return nil }
