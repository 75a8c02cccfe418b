package sprint

import (
	"github.com/nadmax/wordsprint/internal/repository/models"
)

// State is the lifecycle phase of a sprint. It is never stored; it is
// derived from the sprint's timestamps.
type State int

const (
	Scheduled State = iota
	Active
	AwaitingDeclarations
	Completed
)

func (s State) String() string {
	switch s {
	case Scheduled:
		return "scheduled"
	case Active:
		return "active"
	case AwaitingDeclarations:
		return "awaiting_declarations"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// Derive computes the state of sp at now. An end of 0 means the sprint
// was ended and is waiting for final word counts.
func Derive(sp *models.Sprint, now int64) State {
	switch {
	case sp.Completed > 0:
		return Completed
	case sp.End == 0 || now >= sp.End:
		return AwaitingDeclarations
	case now < sp.Start:
		return Scheduled
	default:
		return Active
	}
}

// Finished reports whether the writing window is over.
func Finished(sp *models.Sprint, now int64) bool {
	return sp.End == 0 || now >= sp.End
}

func Started(sp *models.Sprint, now int64) bool {
	return sp.Start <= now
}
