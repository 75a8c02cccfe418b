package sprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func results(words ...int) []*Result {
	out := make([]*Result, len(words))
	for i, w := range words {
		out[i] = &Result{User: string(rune('a' + i)), Words: w, XP: 25, order: i}
	}
	return out
}

func ranks(rs []*Result) []int {
	out := make([]int, len(rs))
	for i, r := range rs {
		out[i] = r.Rank
	}
	return out
}

func TestRankResults(t *testing.T) {
	rs := results(100, 500, 300)
	rankResults(rs)

	assert.Equal(t, []int{1, 2, 3}, ranks(rs))
	assert.Equal(t, "b", rs[0].User)
	assert.Equal(t, "c", rs[1].User)
	assert.Equal(t, "a", rs[2].User)
}

func TestRankResults_Ties(t *testing.T) {
	rs := results(500, 500, 200, 200, 100)
	rankResults(rs)

	assert.Equal(t, []int{1, 1, 3, 3, 5}, ranks(rs))
	assert.Equal(t, "a", rs[0].User)
	assert.Equal(t, "b", rs[1].User)
}

func TestAwardBonuses(t *testing.T) {
	rs := results(600, 400)
	rankResults(rs)
	awardBonuses(rs)

	assert.Equal(t, int64(100), rs[0].Bonus)
	assert.Equal(t, int64(125), rs[0].XP)
	assert.Equal(t, int64(50), rs[1].Bonus)
	assert.Equal(t, int64(75), rs[1].XP)
}

func TestAwardBonuses_SingleResult(t *testing.T) {
	rs := results(900)
	rankResults(rs)
	awardBonuses(rs)

	assert.Equal(t, 1, rs[0].Rank)
	assert.Zero(t, rs[0].Bonus)
	assert.Equal(t, int64(25), rs[0].XP)
}

func TestAwardBonuses_TieForFirst(t *testing.T) {
	rs := results(500, 500, 100)
	rankResults(rs)
	awardBonuses(rs)

	assert.Equal(t, int64(100), rs[0].Bonus)
	assert.Equal(t, int64(100), rs[1].Bonus)
	assert.Equal(t, int64(34), rs[2].Bonus)
}

func TestAwardBonuses_TopFiveOnly(t *testing.T) {
	rs := results(700, 600, 500, 400, 300, 200, 100)
	rankResults(rs)
	awardBonuses(rs)

	assert.Equal(t, int64(20), rs[4].Bonus)
	assert.Zero(t, rs[5].Bonus)
	assert.Zero(t, rs[6].Bonus)
	assert.Equal(t, int64(25), rs[6].XP)
}
