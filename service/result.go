package service

// Result is the outcome of one submission. The set of implementations is
// closed; handle it with a type switch over the five types below.
type Result interface {
	Kind() string
	isResult()
}

// ChallengeNotFound means the challenge URL is not in the rules file.
type ChallengeNotFound struct{}

// EmptyAnswer means no answer was supplied at all.
type EmptyAnswer struct{}

// IncorrectAnswer means the answer did not match.
type IncorrectAnswer struct{}

// Awarded means this was the user's first correct answer for the challenge.
type Awarded struct {
	PointsGained int
	NewTotal     int
}

// AlreadySolved means the answer was right but the points were already
// awarded earlier.
type AlreadySolved struct {
	CurrentTotal int
}

func (ChallengeNotFound) Kind() string { return "challenge_not_found" }
func (EmptyAnswer) Kind() string       { return "empty_answer" }
func (IncorrectAnswer) Kind() string   { return "incorrect_answer" }
func (Awarded) Kind() string           { return "awarded" }
func (AlreadySolved) Kind() string     { return "already_solved" }

func (ChallengeNotFound) isResult() {}
func (EmptyAnswer) isResult()       {}
func (IncorrectAnswer) isResult()   {}
func (Awarded) isResult()           {}
func (AlreadySolved) isResult()     {}
