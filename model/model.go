package model

// Challenge is a single puzzle definition loaded from the CTF rules file.
type Challenge struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Points      int    `json:"points"`
	Answer      string `json:"answer,omitempty"`
	AnswerHash  string `json:"answer_hash,omitempty"` // "sha3-256:<hex>"
}

// UserProgress is the persisted state of one participant. Solved maps a
// challenge URL to the points it was worth when it was awarded.
type UserProgress struct {
	Username string         `json:"-"`
	Points   int            `json:"points"`
	Solved   map[string]int `json:"solved_challenges"`
}

// Clone returns a deep copy so callers can't mutate store internals.
func (u UserProgress) Clone() UserProgress {
	solved := make(map[string]int, len(u.Solved))
	for k, v := range u.Solved {
		solved[k] = v
	}
	u.Solved = solved
	return u
}

// HasSolved reports whether the challenge has already been awarded.
func (u UserProgress) HasSolved(url string) bool {
	_, ok := u.Solved[url]
	return ok
}

// Standing is one row of the leaderboard.
type Standing struct {
	Position int    `json:"position"`
	Username string `json:"username"`
	Points   int    `json:"points"`
	Tied     bool   `json:"tied"`
}
