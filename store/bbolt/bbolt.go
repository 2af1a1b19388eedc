package bbolt

import (
	"context"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/i3visio/simplectf/model"
	"github.com/i3visio/simplectf/store"
)

// errUnchanged rolls back an Update transaction that had nothing to write.
var errUnchanged = errors.New("bbolt: nothing to write")

// Store implements store.Store backed by bbolt[1].
//
// Each CTF title gets its own bucket and each user is a key inside it whose
// value is the user's JSON object from the status document:
//
//	{"points": 30, "solved_challenges": {"warmup": 10, "crypto1": 20}}
//
// bbolt allows a single read-write transaction at a time, so ApplyAward
// runs entirely inside one Update and needs no lock of its own. Readers use
// View transactions and see the last committed state. The bucket is created
// by the first award.
//
// bbolt takes an exclusive file lock; only one process can serve a database.
//
// [1]: https://github.com/etcd-io/bbolt
type Store struct {
	bdb    *bbolt.DB
	bucket []byte
}

func (s *Store) Get(ctx context.Context, username string) (model.UserProgress, error) {
	var result model.UserProgress

	if err := s.bdb.View(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(s.bucket)
		if bkt == nil {
			return fmt.Errorf("%w: %q", store.ErrNotFound, username)
		}

		data := bkt.Get([]byte(username))
		if data == nil {
			return fmt.Errorf("%w: %q", store.ErrNotFound, username)
		}

		p, err := store.DecodeProgress(username, data)
		if err != nil {
			return fmt.Errorf("%w: %w", store.ErrPersistence, err)
		}

		result = p
		return nil
	}); err != nil {
		return model.UserProgress{}, err
	}

	return result, nil
}

func (s *Store) Snapshot(ctx context.Context) (map[string]model.UserProgress, error) {
	result := map[string]model.UserProgress{}

	if err := s.bdb.View(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(s.bucket)
		if bkt == nil {
			return nil
		}

		return bkt.ForEach(func(k, v []byte) error {
			p, err := store.DecodeProgress(string(k), v)
			if err != nil {
				return fmt.Errorf("%w: %w", store.ErrPersistence, err)
			}

			result[string(k)] = p
			return nil
		})
	}); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Store) ApplyAward(ctx context.Context, username, challengeURL string, points int) (store.AwardOutcome, model.UserProgress, error) {
	var (
		outcome store.AwardOutcome
		next    model.UserProgress
	)

	err := s.bdb.Update(func(tx *bbolt.Tx) error {
		current := store.NewProgress(username)

		if bkt := tx.Bucket(s.bucket); bkt != nil {
			if data := bkt.Get([]byte(username)); data != nil {
				p, err := store.DecodeProgress(username, data)
				if err != nil {
					return err
				}
				current = p
			}
		}

		outcome, next = store.Award(current, challengeURL, points)
		if outcome == store.AlreadyAwarded {
			return errUnchanged
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		bkt, err := tx.CreateBucketIfNotExists(s.bucket)
		if err != nil {
			return fmt.Errorf("%w: %w: %q (create bucket)", store.ErrCantEncode, err, s.bucket)
		}

		data, err := store.EncodeProgress(next)
		if err != nil {
			return err
		}

		return bkt.Put([]byte(username), data)
	})

	switch {
	case errors.Is(err, errUnchanged):
		return outcome, next, nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return 0, model.UserProgress{}, err
	case err != nil:
		return 0, model.UserProgress{}, fmt.Errorf("%w: %w", store.ErrPersistence, err)
	}

	return outcome, next, nil
}

func (s *Store) Close() error {
	return s.bdb.Close()
}
