// Package ranking turns a store snapshot into a leaderboard.
package ranking

import (
	"cmp"
	"slices"

	"github.com/i3visio/simplectf/model"
)

// Rank orders users by points, highest first, breaking ties by username so
// the output is reproducible. A user with the same points as the row above
// shares that row's position and is marked Tied. Positions only advance
// when points drop, so {A:100, B:100, C:50} ranks as 1, 1, 2.
func Rank(snapshot map[string]model.UserProgress) []model.Standing {
	result := make([]model.Standing, 0, len(snapshot))
	for username, p := range snapshot {
		result = append(result, model.Standing{
			Username: username,
			Points:   p.Points,
		})
	}

	slices.SortFunc(result, func(a, b model.Standing) int {
		if c := cmp.Compare(b.Points, a.Points); c != 0 {
			return c
		}
		return cmp.Compare(a.Username, b.Username)
	})

	position := 0
	for i := range result {
		if i > 0 && result[i].Points == result[i-1].Points {
			result[i].Position = result[i-1].Position
			result[i].Tied = true
			continue
		}
		position++
		result[i].Position = position
	}

	return result
}
