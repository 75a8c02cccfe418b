// Package experience holds the XP awards and the level curve.
package experience

import (
	"math"
)

const (
	CalcKey        = 50
	CompleteSprint = 25
	WinSprint      = 100
)

// Goal completion awards by goal type.
var CompleteGoal = map[string]int64{
	"daily":   100,
	"weekly":  250,
	"monthly": 500,
	"yearly":  2500,
}

// Level returns the level reached with xp total experience.
func Level(xp int64) int64 {
	k := float64(CalcKey)
	root := math.Sqrt(k*k + 4*k*float64(xp))
	return int64(math.Floor(math.Floor(k+root) / (2 * k)))
}

// Boundary is the total XP at which level starts.
func Boundary(level int64) int64 {
	return CalcKey*level*level - CalcKey*level
}

// NextLevelXP is the XP still needed to reach the next level.
func NextLevelXP(xp int64) int64 {
	return Boundary(Level(xp)+1) - xp
}

// WinBonus is the extra XP for finishing a sprint at the given rank.
// Rank 1 earns the full award and lower ranks a proportional share.
func WinBonus(rank int) int64 {
	if rank < 1 {
		return 0
	}
	return int64(math.Ceil(float64(WinSprint) / float64(rank)))
}
