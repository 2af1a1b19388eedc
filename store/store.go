package store

import (
	"context"
	"errors"

	"github.com/i3visio/simplectf/model"
)

var (
	// ErrNotFound is returned by Get when the username has no progress record.
	ErrNotFound = errors.New("store: user not found")

	// ErrPersistence wraps every failure to read or write the durable record.
	// Callers must treat it as "unknown outcome"; re-submitting is safe.
	ErrPersistence = errors.New("store: persistence failure")

	// ErrCantDecode is returned when the persisted record can't be decoded.
	ErrCantDecode = errors.New("store: can't decode record")

	// ErrCantEncode is returned when a record can't be encoded for storage.
	ErrCantEncode = errors.New("store: can't encode record")

	// ErrBadConfig is returned when a backend's configuration is invalid.
	ErrBadConfig = errors.New("store: configuration is invalid")
)

// AwardOutcome tells the caller whether ApplyAward changed anything.
type AwardOutcome int

const (
	FirstAward AwardOutcome = iota + 1
	AlreadyAwarded
)

func (o AwardOutcome) String() string {
	switch o {
	case FirstAward:
		return "first_award"
	case AlreadyAwarded:
		return "already_awarded"
	default:
		return "unknown"
	}
}

// Store is the durable username → progress mapping for one CTF title.
type Store interface {
	// Get returns a snapshot of one user's progress or ErrNotFound.
	Get(ctx context.Context, username string) (model.UserProgress, error)

	// Snapshot returns every user's progress as of a single point in time.
	// It never observes a partially applied award.
	Snapshot(ctx context.Context) (map[string]model.UserProgress, error)

	// ApplyAward credits points for challengeURL to username unless the
	// user already has it. It is serialized against every other ApplyAward
	// on the same record and the award is persisted before it returns
	// FirstAward. The returned progress is the state after the call.
	ApplyAward(ctx context.Context, username, challengeURL string, points int) (AwardOutcome, model.UserProgress, error)

	// Close releases the backend's resources.
	Close() error
}

// Award applies the award rules to p in memory. p is not modified; the
// returned progress is a fresh copy when the outcome is FirstAward.
func Award(p model.UserProgress, challengeURL string, points int) (AwardOutcome, model.UserProgress) {
	if p.HasSolved(challengeURL) {
		return AlreadyAwarded, p
	}

	next := p.Clone()
	next.Solved[challengeURL] = points
	next.Points += points
	return FirstAward, next
}

// NewProgress is the empty record a user starts from.
func NewProgress(username string) model.UserProgress {
	return model.UserProgress{
		Username: username,
		Solved:   map[string]int{},
	}
}
