package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/i3visio/simplectf/challenge"
	"github.com/i3visio/simplectf/model"
	"github.com/i3visio/simplectf/service"
	"github.com/i3visio/simplectf/store"
	"github.com/i3visio/simplectf/store/memory"
)

// fakeStore wraps the memory store so individual calls can be made to fail.
type fakeStore struct {
	store.Store
	awardErr    error
	snapshotErr error
	awardCalls  atomic.Int32
}

func (f *fakeStore) ApplyAward(ctx context.Context, username, challengeURL string, points int) (store.AwardOutcome, model.UserProgress, error) {
	f.awardCalls.Add(1)
	if f.awardErr != nil {
		return 0, model.UserProgress{}, f.awardErr
	}
	return f.Store.ApplyAward(ctx, username, challengeURL, points)
}

func (f *fakeStore) Snapshot(ctx context.Context) (map[string]model.UserProgress, error) {
	if f.snapshotErr != nil {
		return nil, f.snapshotErr
	}
	return f.Store.Snapshot(ctx)
}

func challenges(t *testing.T) *challenge.Set {
	t.Helper()

	set, err := challenge.New([]model.Challenge{
		{URL: "c1", Title: "Warm up", Type: "misc", Points: 100, Answer: "flag{one}"},
		{URL: "c2", Title: "Crypto", Type: "crypto", Points: 50, Answer: "flag{two}"},
		{URL: "c3", Title: "Hashed", Type: "web", Points: 30, AnswerHash: challenge.HashAnswer("flag{three}")},
	})
	if err != nil {
		t.Fatal(err)
	}
	return set
}

func newService(t *testing.T) (*service.Service, *fakeStore) {
	t.Helper()
	fs := &fakeStore{Store: memory.New()}
	return service.New("Demo", "A demo CTF", challenges(t), fs), fs
}

func TestSubmit_Outcomes(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	for _, tt := range []struct {
		name      string
		challenge string
		answer    string
		want      service.Result
	}{
		{"unknown challenge", "nope", "flag{one}", service.ChallengeNotFound{}},
		{"empty answer", "c1", "", service.EmptyAnswer{}},
		{"wrong answer", "c1", "flag{two}", service.IncorrectAnswer{}},
		{"answers are case sensitive", "c1", "FLAG{ONE}", service.IncorrectAnswer{}},
		{"first solve", "c1", "flag{one}", service.Awarded{PointsGained: 100, NewTotal: 100}},
		{"second solve", "c1", "flag{one}", service.AlreadySolved{CurrentTotal: 100}},
		{"another challenge", "c2", "flag{two}", service.Awarded{PointsGained: 50, NewTotal: 150}},
		{"hashed answer", "c3", "flag{three}", service.Awarded{PointsGained: 30, NewTotal: 180}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Submit(ctx, tt.challenge, "alice", tt.answer)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if got != tt.want {
				t.Errorf("got %#v want %#v", got, tt.want)
			}
		})
	}
}

func TestSubmit_EmptyUsername(t *testing.T) {
	svc, fs := newService(t)

	_, err := svc.Submit(context.Background(), "c1", "", "flag{one}")
	if !errors.Is(err, service.ErrEmptyUsername) {
		t.Fatalf("expected ErrEmptyUsername, got %v", err)
	}
	if fs.awardCalls.Load() != 0 {
		t.Error("store should not be touched for an empty username")
	}
}

func TestSubmit_NoMutationWithoutCorrectAnswer(t *testing.T) {
	ctx := context.Background()
	svc, fs := newService(t)

	for _, sub := range [][2]string{{"nope", "flag{one}"}, {"c1", ""}, {"c1", "wrong"}} {
		if _, err := svc.Submit(ctx, sub[0], "bob", sub[1]); err != nil {
			t.Fatal(err)
		}
	}

	if n := fs.awardCalls.Load(); n != 0 {
		t.Errorf("ApplyAward called %d times, want 0", n)
	}
	if _, err := svc.LookupUser(ctx, "bob"); !errors.Is(err, service.ErrUserNotFound) {
		t.Errorf("expected bob to be unknown, got %v", err)
	}
}

func TestSubmit_PersistenceError(t *testing.T) {
	ctx := context.Background()
	svc, fs := newService(t)
	fs.awardErr = fmt.Errorf("%w: disk full", store.ErrPersistence)

	got, err := svc.Submit(ctx, "c1", "alice", "flag{one}")
	if !errors.Is(err, store.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if got != nil {
		t.Errorf("expected no result with an error, got %#v", got)
	}

	// retrying after the failure is safe and awards once
	fs.awardErr = nil
	got, err = svc.Submit(ctx, "c1", "alice", "flag{one}")
	if err != nil {
		t.Fatal(err)
	}
	if want := (service.Awarded{PointsGained: 100, NewTotal: 100}); got != want {
		t.Errorf("got %#v want %#v", got, want)
	}
}

func TestSubmit_ConcurrentFirstSolve(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	const n = 64
	results := make([]service.Result, n)

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := svc.Submit(ctx, "c1", "carol", "flag{one}")
			if err != nil {
				t.Error(err)
				return
			}
			results[i] = r
		}()
	}
	wg.Wait()

	awarded := 0
	for _, r := range results {
		switch r := r.(type) {
		case service.Awarded:
			awarded++
		case service.AlreadySolved:
			if r.CurrentTotal != 100 {
				t.Errorf("AlreadySolved total: got %d want 100", r.CurrentTotal)
			}
		default:
			t.Errorf("unexpected result %#v", r)
		}
	}
	if awarded != 1 {
		t.Errorf("got %d Awarded results, want exactly 1", awarded)
	}

	p, err := svc.LookupUser(ctx, "carol")
	if err != nil {
		t.Fatal(err)
	}
	if p.Points != 100 || len(p.Solved) != 1 {
		t.Errorf("unexpected progress %+v", p)
	}
}

func TestLookupUser(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	if _, err := svc.LookupUser(ctx, "alice"); !errors.Is(err, service.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	if _, err := svc.Submit(ctx, "c2", "alice", "flag{two}"); err != nil {
		t.Fatal(err)
	}

	p, err := svc.LookupUser(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if p.Username != "alice" || p.Points != 50 || p.Solved["c2"] != 50 {
		t.Errorf("unexpected progress %+v", p)
	}

	if _, err := svc.LookupUser(ctx, "Alice"); !errors.Is(err, service.ErrUserNotFound) {
		t.Errorf("usernames are case sensitive, got %v", err)
	}
}

func TestRank(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	board, err := svc.Rank(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(board) != 0 {
		t.Fatalf("expected an empty ranking, got %+v", board)
	}

	for _, sub := range []struct{ user, url, answer string }{
		{"C", "c2", "flag{two}"},
		{"B", "c1", "flag{one}"},
		{"A", "c1", "flag{one}"},
	} {
		if _, err := svc.Submit(ctx, sub.url, sub.user, sub.answer); err != nil {
			t.Fatal(err)
		}
	}

	board, err = svc.Rank(ctx)
	if err != nil {
		t.Fatal(err)
	}

	want := []model.Standing{
		{Position: 1, Username: "A", Points: 100},
		{Position: 1, Username: "B", Points: 100, Tied: true},
		{Position: 2, Username: "C", Points: 50},
	}
	if len(board) != len(want) {
		t.Fatalf("got %d rows want %d: %+v", len(board), len(want), board)
	}
	for i := range want {
		if board[i] != want[i] {
			t.Errorf("row %d: got %+v want %+v", i, board[i], want[i])
		}
	}
}

func TestRank_SnapshotError(t *testing.T) {
	svc, fs := newService(t)
	fs.snapshotErr = fmt.Errorf("%w: connection reset", store.ErrPersistence)

	if _, err := svc.Rank(context.Background()); !errors.Is(err, store.ErrPersistence) {
		t.Errorf("expected ErrPersistence, got %v", err)
	}
	if _, err := svc.SolvedBy(context.Background(), "c1"); !errors.Is(err, store.ErrPersistence) {
		t.Errorf("expected ErrPersistence, got %v", err)
	}
}

func TestSolvedBy(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	for _, user := range []string{"zed", "amy", "kim"} {
		if _, err := svc.Submit(ctx, "c1", user, "flag{one}"); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := svc.Submit(ctx, "c2", "kim", "flag{two}"); err != nil {
		t.Fatal(err)
	}

	got, err := svc.SolvedBy(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(got) != "[amy kim zed]" {
		t.Errorf("c1 solvers: got %v", got)
	}

	got, err = svc.SolvedBy(ctx, "c3")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("c3 solvers: want empty, got %#v", got)
	}
}

func TestChallenges(t *testing.T) {
	svc, _ := newService(t)

	if svc.Title() != "Demo" || svc.Description() != "A demo CTF" {
		t.Errorf("unexpected title/description %q %q", svc.Title(), svc.Description())
	}

	list := svc.ListChallenges()
	if len(list) != 3 || list[0].URL != "c1" || list[2].URL != "c3" {
		t.Fatalf("unexpected challenge list %+v", list)
	}

	list[0].Points = 9999
	c, ok := svc.Challenge("c1")
	if !ok || c.Points != 100 {
		t.Errorf("challenge list must be a copy, got %+v", c)
	}

	if _, ok := svc.Challenge("nope"); ok {
		t.Error("unknown challenge should not be found")
	}
}
