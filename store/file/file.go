package file

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/atomic"

	"github.com/i3visio/simplectf/model"
	"github.com/i3visio/simplectf/store"
)

// Store keeps every user of one CTF in a single JSON document at
// <dir>/<title>_status.json, the layout the first SimpleCTF releases used.
//
// The document is one unit, so every award takes the write lock for the
// whole store and rewrites the file with an atomic rename before the lock
// is released. Readers share a parsed copy of the document and never see a
// half-written file. The file is only created when the first award lands.
//
// Only one process may own a data folder at a time.
type Store struct {
	fname string

	mu    sync.RWMutex
	users map[string]model.UserProgress
}

// New opens (but does not create) the status document for title in dir.
func New(dir, title string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: can't create data folder %s: %w", store.ErrPersistence, dir, err)
	}

	s := &Store{
		fname: filepath.Join(dir, title+"_status.json"),
		users: map[string]model.UserProgress{},
	}

	data, err := os.ReadFile(s.fname)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Debug("no status file yet, it will be created on the first award", "path", s.fname)
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("%w: can't read %s: %w", store.ErrPersistence, s.fname, err)
	}

	users, err := store.DecodeRecord(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", store.ErrPersistence, s.fname, err)
	}
	s.users = users

	return s, nil
}

// Path is the location of the status document.
func (s *Store) Path() string { return s.fname }

func (s *Store) Get(_ context.Context, username string) (model.UserProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.users[username]
	if !ok {
		return model.UserProgress{}, fmt.Errorf("%w: %q", store.ErrNotFound, username)
	}

	return p.Clone(), nil
}

func (s *Store) Snapshot(_ context.Context) (map[string]model.UserProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]model.UserProgress, len(s.users))
	for k, v := range s.users {
		result[k] = v.Clone()
	}

	return result, nil
}

func (s *Store) ApplyAward(ctx context.Context, username, challengeURL string, points int) (store.AwardOutcome, model.UserProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.users[username]
	if !ok {
		current = store.NewProgress(username)
	}

	outcome, next := store.Award(current, challengeURL, points)
	if outcome == store.AlreadyAwarded {
		return outcome, next.Clone(), nil
	}

	if err := ctx.Err(); err != nil {
		return 0, model.UserProgress{}, err
	}

	// Build the next document aside so a failed write leaves s.users as is.
	pending := make(map[string]model.UserProgress, len(s.users)+1)
	for k, v := range s.users {
		pending[k] = v
	}
	pending[username] = next

	if err := s.write(pending); err != nil {
		return 0, model.UserProgress{}, err
	}

	s.users = pending
	return outcome, next.Clone(), nil
}

func (s *Store) write(users map[string]model.UserProgress) error {
	data, err := store.EncodeRecord(users)
	if err != nil {
		return fmt.Errorf("%w: %w", store.ErrPersistence, err)
	}

	if err := atomic.WriteFile(s.fname, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: can't write %s: %w", store.ErrPersistence, s.fname, err)
	}

	// The rename is only durable once the directory entry is on disk.
	if err := syncDir(filepath.Dir(s.fname)); err != nil {
		return fmt.Errorf("%w: can't sync %s: %w", store.ErrPersistence, filepath.Dir(s.fname), err)
	}

	return nil
}

var syncDir = func(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}

	if err := d.Sync(); err != nil {
		d.Close()
		return err
	}

	return d.Close()
}

func (s *Store) Close() error { return nil }
