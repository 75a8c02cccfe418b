package experience

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevel(t *testing.T) {
	tests := []struct {
		xp    int64
		level int64
	}{
		{0, 1},
		{99, 1},
		{100, 2},
		{299, 2},
		{300, 3},
		{600, 4},
		{1000, 5},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.level, Level(tt.xp), "xp %d", tt.xp)
	}
}

func TestBoundary(t *testing.T) {
	assert.Equal(t, int64(0), Boundary(1))
	assert.Equal(t, int64(100), Boundary(2))
	assert.Equal(t, int64(300), Boundary(3))
	assert.Equal(t, int64(1000), Boundary(5))
}

func TestLevelMatchesBoundary(t *testing.T) {
	for level := int64(1); level < 50; level++ {
		assert.Equal(t, level, Level(Boundary(level)), "start of level %d", level)
		if level > 1 {
			assert.Equal(t, level-1, Level(Boundary(level)-1), "end of level %d", level-1)
		}
	}
}

func TestNextLevelXP(t *testing.T) {
	assert.Equal(t, int64(100), NextLevelXP(0))
	assert.Equal(t, int64(75), NextLevelXP(25))
	assert.Equal(t, int64(200), NextLevelXP(100))
}

func TestWinBonus(t *testing.T) {
	assert.Equal(t, int64(100), WinBonus(1))
	assert.Equal(t, int64(50), WinBonus(2))
	assert.Equal(t, int64(34), WinBonus(3))
	assert.Equal(t, int64(25), WinBonus(4))
	assert.Equal(t, int64(20), WinBonus(5))
	assert.Equal(t, int64(0), WinBonus(0))
}

func TestCompleteGoal(t *testing.T) {
	assert.Equal(t, int64(100), CompleteGoal["daily"])
	assert.Equal(t, int64(2500), CompleteGoal["yearly"])
}
