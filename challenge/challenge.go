// Package challenge holds the immutable table of challenge definitions a CTF
// is played with.
package challenge

import (
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/i3visio/simplectf/model"
)

const hashPrefix = "sha3-256:"

var (
	ErrMissingURL     = errors.New("challenge: must set url")
	ErrURLHasSlash    = errors.New("challenge: url must not contain a slash")
	ErrMissingTitle   = errors.New("challenge: must set title")
	ErrNegativePoints = errors.New("challenge: points must not be negative")
	ErrMissingAnswer  = errors.New("challenge: must set answer or answer_hash")
	ErrAnswerAndHash  = errors.New("challenge: can't set answer and answer_hash at the same time")
	ErrBadAnswerHash  = errors.New("challenge: answer_hash must look like sha3-256:<64 hex chars>")
	ErrDuplicateURL   = errors.New("challenge: url is used more than once")
)

// Set is a read-only index of challenges. It is safe for concurrent use
// without locking because nothing mutates it after New returns.
type Set struct {
	ordered []model.Challenge
	byURL   map[string]model.Challenge
}

// New validates the challenge list and indexes it by URL.
func New(challenges []model.Challenge) (*Set, error) {
	if err := Validate(challenges); err != nil {
		return nil, err
	}

	s := &Set{
		ordered: make([]model.Challenge, len(challenges)),
		byURL:   make(map[string]model.Challenge, len(challenges)),
	}
	copy(s.ordered, challenges)
	for _, c := range challenges {
		s.byURL[c.URL] = c
	}

	return s, nil
}

// Lookup finds a challenge by its URL slug.
func (s *Set) Lookup(url string) (model.Challenge, bool) {
	c, ok := s.byURL[url]
	return c, ok
}

// List returns the challenges in configuration order.
func (s *Set) List() []model.Challenge {
	result := make([]model.Challenge, len(s.ordered))
	copy(result, s.ordered)
	return result
}

func (s *Set) Len() int { return len(s.ordered) }

// Validate checks every challenge and reports all problems at once.
func Validate(challenges []model.Challenge) error {
	var errs []error
	seen := make(map[string]int, len(challenges))

	for i, c := range challenges {
		if err := validOne(c); err != nil {
			errs = append(errs, fmt.Errorf("challenge %d: %w", i, err))
		}

		if c.URL == "" {
			continue
		}

		if first, ok := seen[c.URL]; ok {
			errs = append(errs, fmt.Errorf("%w: %q (entries %d and %d)", ErrDuplicateURL, c.URL, first, i))
			continue
		}
		seen[c.URL] = i
	}

	if len(errs) != 0 {
		return errors.Join(errs...)
	}

	return nil
}

func validOne(c model.Challenge) error {
	var errs []error

	if c.URL == "" {
		errs = append(errs, ErrMissingURL)
	} else if strings.Contains(c.URL, "/") {
		errs = append(errs, fmt.Errorf("%w: %q", ErrURLHasSlash, c.URL))
	}

	if c.Title == "" {
		errs = append(errs, ErrMissingTitle)
	}

	if c.Points < 0 {
		errs = append(errs, fmt.Errorf("%w, got: %d", ErrNegativePoints, c.Points))
	}

	switch {
	case c.Answer == "" && c.AnswerHash == "":
		errs = append(errs, ErrMissingAnswer)
	case c.Answer != "" && c.AnswerHash != "":
		errs = append(errs, ErrAnswerAndHash)
	case c.AnswerHash != "":
		if _, err := decodeHash(c.AnswerHash); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) != 0 {
		return fmt.Errorf("entry for %q is not valid:\n%w", c.URL, errors.Join(errs...))
	}

	return nil
}

func decodeHash(h string) ([]byte, error) {
	if !strings.HasPrefix(h, hashPrefix) {
		return nil, fmt.Errorf("%w: missing %q prefix", ErrBadAnswerHash, hashPrefix)
	}

	digest, err := hex.DecodeString(strings.TrimPrefix(h, hashPrefix))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadAnswerHash, err)
	}

	if len(digest) != 32 {
		return nil, fmt.Errorf("%w: digest is %d bytes", ErrBadAnswerHash, len(digest))
	}

	return digest, nil
}

// Matches reports whether answer solves c. The comparison is exact and
// case-sensitive; for hashed answers the SHA3-256 digest of answer is
// compared instead of the plain text.
func Matches(c model.Challenge, answer string) bool {
	if c.AnswerHash != "" {
		want, err := decodeHash(c.AnswerHash)
		if err != nil {
			return false
		}
		got := sha3.Sum256([]byte(answer))
		return subtle.ConstantTimeCompare(got[:], want) == 1
	}

	return subtle.ConstantTimeCompare([]byte(answer), []byte(c.Answer)) == 1
}

// HashAnswer renders the answer_hash value for a plain-text answer.
func HashAnswer(answer string) string {
	sum := sha3.Sum256([]byte(answer))
	return hashPrefix + hex.EncodeToString(sum[:])
}
