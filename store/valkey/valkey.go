package valkey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	valkey "github.com/redis/go-redis/v9"

	"github.com/i3visio/simplectf/model"
	"github.com/i3visio/simplectf/store"
)

// maxTxAttempts bounds how often ApplyAward retries when another process
// changed the hash between WATCH and EXEC.
const maxTxAttempts = 16

// Store keeps one hash per CTF title. Each field is a username and each
// value is that user's JSON object from the status document.
//
// Awards from this process are serialized with a mutex. Awards from other
// processes sharing the server are caught by WATCH on the hash and retried.
type Store struct {
	rdb *valkey.Client
	key string

	mu sync.Mutex
}

func (s *Store) Get(ctx context.Context, username string) (model.UserProgress, error) {
	data, err := s.rdb.HGet(ctx, s.key, username).Bytes()
	if err != nil {
		if errors.Is(err, valkey.Nil) {
			return model.UserProgress{}, fmt.Errorf("%w: %q", store.ErrNotFound, username)
		}

		return model.UserProgress{}, fmt.Errorf("%w: can't fetch from valkey: %w", store.ErrPersistence, err)
	}

	p, err := store.DecodeProgress(username, data)
	if err != nil {
		return model.UserProgress{}, fmt.Errorf("%w: %w", store.ErrPersistence, err)
	}

	return p, nil
}

func (s *Store) Snapshot(ctx context.Context) (map[string]model.UserProgress, error) {
	fields, err := s.rdb.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: can't fetch from valkey: %w", store.ErrPersistence, err)
	}

	result := make(map[string]model.UserProgress, len(fields))
	for username, data := range fields {
		p, err := store.DecodeProgress(username, []byte(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", store.ErrPersistence, err)
		}
		result[username] = p
	}

	return result, nil
}

func (s *Store) ApplyAward(ctx context.Context, username, challengeURL string, points int) (store.AwardOutcome, model.UserProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		outcome store.AwardOutcome
		next    model.UserProgress
	)

	txf := func(tx *valkey.Tx) error {
		current := store.NewProgress(username)

		data, err := tx.HGet(ctx, s.key, username).Bytes()
		switch {
		case errors.Is(err, valkey.Nil):
		case err != nil:
			return err
		default:
			if current, err = store.DecodeProgress(username, data); err != nil {
				return err
			}
		}

		outcome, next = store.Award(current, challengeURL, points)
		if outcome == store.AlreadyAwarded {
			return nil
		}

		value, err := store.EncodeProgress(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe valkey.Pipeliner) error {
			pipe.HSet(ctx, s.key, username, value)
			return nil
		})
		return err
	}

	for attempt := range maxTxAttempts {
		err := s.rdb.Watch(ctx, txf, s.key)
		switch {
		case err == nil:
			return outcome, next, nil
		case errors.Is(err, valkey.TxFailedErr):
			slog.Debug("valkey award raced with another writer, retrying", "key", s.key, "user", username, "attempt", attempt)
			continue
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return 0, model.UserProgress{}, err
		default:
			return 0, model.UserProgress{}, fmt.Errorf("%w: can't award %q to %q in valkey: %w", store.ErrPersistence, challengeURL, username, err)
		}
	}

	return 0, model.UserProgress{}, fmt.Errorf("%w: valkey transaction on %s kept conflicting", store.ErrPersistence, s.key)
}

func (s *Store) Close() error {
	return s.rdb.Close()
}
