package store

import (
	"encoding/json"
	"fmt"

	"github.com/i3visio/simplectf/model"
)

// The on-disk shape is shared by every document-style backend:
//
//	{"alice": {"points": 30, "solved_challenges": {"warmup": 10, "crypto1": 20}}}
//
// bbolt and valkey store one user's object per key.

// DecodeRecord parses a whole-store document.
func DecodeRecord(data []byte) (map[string]model.UserProgress, error) {
	var raw map[string]model.UserProgress
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCantDecode, err)
	}

	result := make(map[string]model.UserProgress, len(raw))
	for username, p := range raw {
		result[username] = fixup(username, p)
	}

	return result, nil
}

// EncodeRecord renders a whole-store document.
func EncodeRecord(users map[string]model.UserProgress) ([]byte, error) {
	data, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCantEncode, err)
	}

	return data, nil
}

// DecodeProgress parses a single user's object.
func DecodeProgress(username string, data []byte) (model.UserProgress, error) {
	var p model.UserProgress
	if err := json.Unmarshal(data, &p); err != nil {
		return model.UserProgress{}, fmt.Errorf("%w: %q: %w", ErrCantDecode, username, err)
	}

	return fixup(username, p), nil
}

// EncodeProgress renders a single user's object.
func EncodeProgress(p model.UserProgress) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrCantEncode, p.Username, err)
	}

	return data, nil
}

func fixup(username string, p model.UserProgress) model.UserProgress {
	p.Username = username
	if p.Solved == nil {
		p.Solved = map[string]int{}
	}
	return p
}
