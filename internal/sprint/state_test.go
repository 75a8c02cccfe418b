package sprint

import (
	"testing"

	"github.com/nadmax/wordsprint/internal/repository/models"
	"github.com/stretchr/testify/assert"
)

func TestDerive(t *testing.T) {
	sp := func(start, end, completed int64) *models.Sprint {
		return &models.Sprint{Start: start, End: end, Completed: completed}
	}

	tests := []struct {
		name   string
		sprint *models.Sprint
		now    int64
		want   State
	}{
		{"before start", sp(100, 200, 0), 50, Scheduled},
		{"at start", sp(100, 200, 0), 100, Active},
		{"mid sprint", sp(100, 200, 0), 150, Active},
		{"at end", sp(100, 200, 0), 200, AwaitingDeclarations},
		{"ended early", sp(100, 0, 0), 150, AwaitingDeclarations},
		{"ended before start", sp(100, 0, 0), 50, AwaitingDeclarations},
		{"completed", sp(100, 0, 300), 400, Completed},
		{"completed wins over times", sp(100, 200, 150), 150, Completed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Derive(tt.sprint, tt.now))
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "scheduled", Scheduled.String())
	assert.Equal(t, "active", Active.String())
	assert.Equal(t, "awaiting_declarations", AwaitingDeclarations.String())
	assert.Equal(t, "completed", Completed.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestFinishedAndStarted(t *testing.T) {
	sp := &models.Sprint{Start: 100, End: 200}

	assert.False(t, Started(sp, 99))
	assert.True(t, Started(sp, 100))
	assert.False(t, Finished(sp, 199))
	assert.True(t, Finished(sp, 200))

	sp.End = 0
	assert.True(t, Finished(sp, 150))
}
