package sprint

import (
	"sort"

	"github.com/nadmax/wordsprint/internal/experience"
)

const leaderboardSize = 5

// Result is one scored participant in a completed sprint.
type Result struct {
	User  string
	Words int
	WPM   int
	XP    int64
	Rank  int
	Bonus int64
	NewPB bool
	order int
}

// rankResults sorts by words written, highest first, and assigns
// competition ranks: tied results share a rank and the next rank skips
// ahead (1, 1, 3).
func rankResults(results []*Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Words != results[j].Words {
			return results[i].Words > results[j].Words
		}
		return results[i].order < results[j].order
	})

	for i, r := range results {
		if i > 0 && r.Words == results[i-1].Words {
			r.Rank = results[i-1].Rank
			continue
		}
		r.Rank = i + 1
	}
}

// awardBonuses sets the placing bonus on the top finishers. A sprint
// needs at least two scored results before anyone places.
func awardBonuses(results []*Result) {
	if len(results) < 2 {
		return
	}
	for _, r := range results {
		if r.Rank > leaderboardSize {
			continue
		}
		r.Bonus = experience.WinBonus(r.Rank)
		r.XP += r.Bonus
	}
}
