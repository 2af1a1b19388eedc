package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/i3visio/simplectf/challenge"
	"github.com/i3visio/simplectf/model"
	"github.com/i3visio/simplectf/ranking"
	"github.com/i3visio/simplectf/store"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrEmptyUsername = errors.New("username must not be empty")
)

// Service is the only way into the score store: it checks answers against
// the challenge set and applies awards.
type Service struct {
	Store       store.Store // dependency-injected score store
	challenges  *challenge.Set
	title       string
	description string
}

func New(title, description string, challenges *challenge.Set, st store.Store) *Service {
	return &Service{
		Store:       st,
		challenges:  challenges,
		title:       title,
		description: description,
	}
}

func (s *Service) Title() string       { return s.title }
func (s *Service) Description() string { return s.description }

// Submit checks answer for challengeURL on behalf of username and credits
// the points on the first correct answer. Every call returns exactly one
// Result or an error wrapping store.ErrPersistence; such an error means the
// outcome is unknown and submitting again is safe.
func (s *Service) Submit(ctx context.Context, challengeURL, username, answer string) (Result, error) {
	if username == "" {
		return nil, ErrEmptyUsername
	}

	result, err := s.submit(ctx, challengeURL, username, answer)
	if err != nil {
		submissions.WithLabelValues("error").Inc()
		return nil, err
	}

	submissions.WithLabelValues(result.Kind()).Inc()
	return result, nil
}

func (s *Service) submit(ctx context.Context, challengeURL, username, answer string) (Result, error) {
	c, ok := s.challenges.Lookup(challengeURL)
	if !ok {
		return ChallengeNotFound{}, nil
	}

	if answer == "" {
		return EmptyAnswer{}, nil
	}

	if !challenge.Matches(c, answer) {
		return IncorrectAnswer{}, nil
	}

	start := time.Now()
	outcome, progress, err := s.Store.ApplyAward(ctx, username, c.URL, c.Points)
	awardDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("can't award %q to %q: %w", c.URL, username, err)
	}

	switch outcome {
	case store.FirstAward:
		slog.Info("challenge solved", "challenge", c.URL, "user", username, "points", c.Points, "total", progress.Points)
		return Awarded{PointsGained: c.Points, NewTotal: progress.Points}, nil
	case store.AlreadyAwarded:
		return AlreadySolved{CurrentTotal: progress.Points}, nil
	default:
		return nil, fmt.Errorf("[unexpected] store returned award outcome %d", outcome)
	}
}

// LookupUser returns a user's progress or ErrUserNotFound.
func (s *Service) LookupUser(ctx context.Context, username string) (model.UserProgress, error) {
	p, err := s.Store.Get(ctx, username)
	if errors.Is(err, store.ErrNotFound) { // backends wrap store.ErrNotFound
		return model.UserProgress{}, fmt.Errorf("%w: %q", ErrUserNotFound, username)
	}
	return p, err
}

// Rank returns the current leaderboard. It is empty before the first award.
func (s *Service) Rank(ctx context.Context) ([]model.Standing, error) {
	snap, err := s.Store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return ranking.Rank(snap), nil
}

// SolvedBy lists, in username order, everyone who solved challengeURL.
func (s *Service) SolvedBy(ctx context.Context, challengeURL string) ([]string, error) {
	snap, err := s.Store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	result := []string{}
	for username, p := range snap {
		if p.HasSolved(challengeURL) {
			result = append(result, username)
		}
	}
	sort.Strings(result)
	return result, nil
}

func (s *Service) ListChallenges() []model.Challenge {
	return s.challenges.List()
}

func (s *Service) Challenge(url string) (model.Challenge, bool) {
	return s.challenges.Lookup(url)
}
