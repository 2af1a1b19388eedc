// Package storetest is the conformance suite every store backend must pass.
package storetest

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/i3visio/simplectf/store"
)

func build(t *testing.T, f store.Factory, config json.RawMessage, title string) store.Store {
	t.Helper()

	if err := f.Valid(config); err != nil {
		t.Fatal(err)
	}

	s, err := f.Build(t.Context(), title, config)
	if err != nil {
		t.Fatal(err)
	}

	return s
}

func uniqueTitle(i int) string {
	return fmt.Sprintf("storetest-%d-%d", time.Now().UnixNano(), i)
}

// Common runs the behavioural contract of store.Store against a backend.
// Each case gets its own title so backends sharing a server don't collide.
func Common(t *testing.T, f store.Factory, config json.RawMessage) {
	for i, tt := range []struct {
		name string
		doer func(t *testing.T, s store.Store) error
		err  error
	}{
		{
			name: "empty store",
			doer: func(t *testing.T, s store.Store) error {
				if _, err := s.Get(t.Context(), "alice"); !errors.Is(err, store.ErrNotFound) {
					t.Errorf("wanted ErrNotFound for alice, got: %v", err)
				}

				snap, err := s.Snapshot(t.Context())
				if err != nil {
					return err
				}

				if len(snap) != 0 {
					t.Errorf("wanted empty snapshot, got %d users", len(snap))
				}

				return nil
			},
		},
		{
			name: "award is idempotent",
			doer: func(t *testing.T, s store.Store) error {
				outcome, p, err := s.ApplyAward(t.Context(), "alice", "c1", 100)
				if err != nil {
					return err
				}
				if outcome != store.FirstAward {
					t.Errorf("first call: want FirstAward, got %s", outcome)
				}
				if p.Points != 100 || p.Solved["c1"] != 100 {
					t.Errorf("first call: wrong progress %+v", p)
				}

				outcome, p, err = s.ApplyAward(t.Context(), "alice", "c1", 100)
				if err != nil {
					return err
				}
				if outcome != store.AlreadyAwarded {
					t.Errorf("second call: want AlreadyAwarded, got %s", outcome)
				}
				if p.Points != 100 {
					t.Errorf("second call: points changed to %d", p.Points)
				}

				got, err := s.Get(t.Context(), "alice")
				if err != nil {
					return err
				}
				if got.Username != "alice" || got.Points != 100 || len(got.Solved) != 1 {
					t.Errorf("Get: wrong progress %+v", got)
				}

				return nil
			},
		},
		{
			name: "usernames are case sensitive",
			doer: func(t *testing.T, s store.Store) error {
				if _, _, err := s.ApplyAward(t.Context(), "Alice", "c1", 10); err != nil {
					return err
				}

				if _, err := s.Get(t.Context(), "alice"); !errors.Is(err, store.ErrNotFound) {
					t.Errorf("alice should not exist, got: %v", err)
				}

				return nil
			},
		},
		{
			name: "points invariant",
			doer: func(t *testing.T, s store.Store) error {
				awards := []struct {
					user, url string
					points    int
				}{
					{"alice", "c1", 100},
					{"bob", "c1", 100},
					{"alice", "c2", 50},
					{"alice", "c1", 100},
					{"carol", "c3", 0},
					{"bob", "c3", 0},
					{"alice", "c3", 0},
				}

				for _, a := range awards {
					if _, _, err := s.ApplyAward(t.Context(), a.user, a.url, a.points); err != nil {
						return err
					}
				}

				snap, err := s.Snapshot(t.Context())
				if err != nil {
					return err
				}

				want := map[string]int{"alice": 150, "bob": 100, "carol": 0}
				if len(snap) != len(want) {
					t.Errorf("wanted %d users, got %d", len(want), len(snap))
				}

				for user, points := range want {
					p, ok := snap[user]
					if !ok {
						t.Errorf("%s missing from snapshot", user)
						continue
					}

					sum := 0
					for _, v := range p.Solved {
						sum += v
					}

					if p.Points != points || sum != points {
						t.Errorf("%s: points %d, sum of solves %d, want %d", user, p.Points, sum, points)
					}

					if p.Username != user {
						t.Errorf("snapshot entry %s has username %q", user, p.Username)
					}
				}

				return nil
			},
		},
		{
			name: "concurrent first solve",
			doer: func(t *testing.T, s store.Store) error {
				const n = 32

				var (
					wg     sync.WaitGroup
					mu     sync.Mutex
					first  int
					repeat int
					errs   []error
				)

				for range n {
					wg.Add(1)
					go func() {
						defer wg.Done()
						outcome, _, err := s.ApplyAward(t.Context(), "alice", "c1", 100)

						mu.Lock()
						defer mu.Unlock()
						switch {
						case err != nil:
							errs = append(errs, err)
						case outcome == store.FirstAward:
							first++
						case outcome == store.AlreadyAwarded:
							repeat++
						}
					}()
				}
				wg.Wait()

				if len(errs) != 0 {
					return errors.Join(errs...)
				}

				if first != 1 || repeat != n-1 {
					t.Errorf("wanted 1 first award and %d repeats, got %d and %d", n-1, first, repeat)
				}

				p, err := s.Get(t.Context(), "alice")
				if err != nil {
					return err
				}
				if p.Points != 100 {
					t.Errorf("double credit: alice has %d points", p.Points)
				}

				return nil
			},
		},
		{
			name: "concurrent writers lose nothing",
			doer: func(t *testing.T, s store.Store) error {
				const users, challenges = 8, 4

				var wg sync.WaitGroup
				errCh := make(chan error, users*challenges)

				for u := range users {
					for c := range challenges {
						wg.Add(1)
						go func() {
							defer wg.Done()
							user := fmt.Sprintf("user%d", u)
							url := fmt.Sprintf("c%d", c)
							if _, _, err := s.ApplyAward(t.Context(), user, url, 10); err != nil {
								errCh <- err
							}
						}()
					}
				}
				wg.Wait()
				close(errCh)

				for err := range errCh {
					return err
				}

				snap, err := s.Snapshot(t.Context())
				if err != nil {
					return err
				}

				if len(snap) != users {
					t.Errorf("wanted %d users, got %d", users, len(snap))
				}

				for user, p := range snap {
					if len(p.Solved) != challenges || p.Points != challenges*10 {
						t.Errorf("%s lost an update: %+v", user, p)
					}
				}

				return nil
			},
		},
		{
			name: "snapshots are copies",
			doer: func(t *testing.T, s store.Store) error {
				if _, _, err := s.ApplyAward(t.Context(), "alice", "c1", 100); err != nil {
					return err
				}

				snap, err := s.Snapshot(t.Context())
				if err != nil {
					return err
				}
				snap["alice"].Solved["c2"] = 50

				got, err := s.Get(t.Context(), "alice")
				if err != nil {
					return err
				}
				got.Solved["c3"] = 1

				again, err := s.Get(t.Context(), "alice")
				if err != nil {
					return err
				}

				if len(again.Solved) != 1 {
					t.Errorf("caller mutation leaked into the store: %+v", again)
				}

				return nil
			},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			s := build(t, f, config, uniqueTitle(i))
			defer s.Close()

			if err := tt.doer(t, s); !errors.Is(err, tt.err) {
				t.Logf("want: %v", tt.err)
				t.Logf("got:  %v", err)
				t.Error("wrong error")
			}
		})
	}
}

// Durable checks that awards survive closing and reopening the backend.
func Durable(t *testing.T, f store.Factory, config json.RawMessage) {
	title := uniqueTitle(-1)

	s := build(t, f, config, title)
	if _, _, err := s.ApplyAward(t.Context(), "alice", "c1", 100); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.ApplyAward(t.Context(), "alice", "c2", 25); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s = build(t, f, config, title)
	defer s.Close()

	p, err := s.Get(t.Context(), "alice")
	if err != nil {
		t.Fatal(err)
	}

	if p.Points != 125 || p.Solved["c1"] != 100 || p.Solved["c2"] != 25 {
		t.Errorf("award did not survive reopen: %+v", p)
	}

	outcome, _, err := s.ApplyAward(t.Context(), "alice", "c1", 100)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != store.AlreadyAwarded {
		t.Errorf("reopened store re-awarded c1: %s", outcome)
	}
}
