// Package task defines the persisted scheduled-job record polled by the
// scheduler and the closed set of job kinds it can carry.
package task

import (
	"fmt"
)

type (
	Object string
	Type   string
	Task   struct {
		ID              int64  `json:"id"`
		Time            int64  `json:"time"`
		Type            Type   `json:"type"`
		Object          Object `json:"object"`
		ObjectID        *int64 `json:"objectid,omitempty"`
		Processing      bool   `json:"processing"`
		Recurring       bool   `json:"recurring"`
		RunEverySeconds int64  `json:"runeveryseconds"`
	}
)

const (
	ObjectSprint Object = "sprint"
	ObjectGoal   Object = "goal"
)

const (
	TypeStart    Type = "start"
	TypeEnd      Type = "end"
	TypeComplete Type = "complete"
	TypeRubbish  Type = "rc"
	TypeReset    Type = "reset"
)

// Key identifies a pending task. At most one task exists per key.
type Key struct {
	Type     Type
	Object   Object
	ObjectID *int64
}

func (k Key) String() string {
	if k.ObjectID == nil {
		return fmt.Sprintf("%s/%s", k.Object, k.Type)
	}
	return fmt.Sprintf("%s/%s/%d", k.Object, k.Type, *k.ObjectID)
}

func (t *Task) Key() Key {
	return Key{Type: t.Type, Object: t.Object, ObjectID: t.ObjectID}
}

// Due reports whether the task should be picked up at now.
func (t *Task) Due(now int64) bool {
	return t.Time <= now
}

// NextRun is the time a recurring task runs after a pass at now.
func (t *Task) NextRun(now int64) int64 {
	return now + t.RunEverySeconds
}

// Job is the typed payload of a task. The set of implementations is
// closed; the scheduler switches over them exhaustively.
type Job interface {
	Key() Key
	job()
}

type (
	SprintStart struct{ SprintID int64 }
	SprintEnd   struct{ SprintID int64 }
	// SprintComplete finalises a sprint once the declaration window closes.
	SprintComplete          struct{ SprintID int64 }
	SprintRubbishCollection struct{}
	GoalReset               struct{}
)

func (j SprintStart) Key() Key {
	return Key{Type: TypeStart, Object: ObjectSprint, ObjectID: &j.SprintID}
}

func (j SprintEnd) Key() Key {
	return Key{Type: TypeEnd, Object: ObjectSprint, ObjectID: &j.SprintID}
}

func (j SprintComplete) Key() Key {
	return Key{Type: TypeComplete, Object: ObjectSprint, ObjectID: &j.SprintID}
}

func (SprintRubbishCollection) Key() Key {
	return Key{Type: TypeRubbish, Object: ObjectSprint}
}

func (GoalReset) Key() Key {
	return Key{Type: TypeReset, Object: ObjectGoal}
}

func (SprintStart) job()             {}
func (SprintEnd) job()               {}
func (SprintComplete) job()          {}
func (SprintRubbishCollection) job() {}
func (GoalReset) job()               {}

// UnknownJobError is returned by Decode for an object/type pair with no
// job kind.
type UnknownJobError struct {
	Object Object
	Type   Type
}

func (e *UnknownJobError) Error() string {
	return fmt.Sprintf("unknown task %s/%s", e.Object, e.Type)
}

// Decode maps a persisted record onto its job kind.
func Decode(t *Task) (Job, error) {
	switch t.Object {
	case ObjectSprint:
		if t.Type == TypeRubbish {
			return SprintRubbishCollection{}, nil
		}
		if t.ObjectID == nil {
			return nil, fmt.Errorf("sprint task %d has no objectid", t.ID)
		}
		id := *t.ObjectID
		switch t.Type {
		case TypeStart:
			return SprintStart{SprintID: id}, nil
		case TypeEnd:
			return SprintEnd{SprintID: id}, nil
		case TypeComplete:
			return SprintComplete{SprintID: id}, nil
		}
	case ObjectGoal:
		if t.Type == TypeReset {
			return GoalReset{}, nil
		}
	}

	return nil, &UnknownJobError{Object: t.Object, Type: t.Type}
}

// New builds an unsaved, non-recurring task for job due at time.
func New(job Job, time int64) *Task {
	key := job.Key()
	return &Task{
		Time:     time,
		Type:     key.Type,
		Object:   key.Object,
		ObjectID: key.ObjectID,
	}
}

// NewRecurring builds an unsaved recurring task for job, first due at
// time and then every interval seconds.
func NewRecurring(job Job, time, interval int64) *Task {
	t := New(job, time)
	t.Recurring = true
	t.RunEverySeconds = interval
	return t
}
