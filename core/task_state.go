package core

import (
	"fmt"
	"time"
)

// State is the execution state a task reports after each run.
type State int

const (
	// Running asks to be run again after Sleep (immediately when zero).
	Running State = iota

	// Waiting holds the task back for Sleep. Pending events wait for it;
	// only a targeted notification runs it earlier.
	Waiting

	// Done retires the task. It is never scheduled again.
	Done
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Waiting:
		return "waiting"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// TaskState is the envelope a task returns from Run. Sleep is ignored once
// State is Done.
type TaskState struct {
	State State
	Sleep time.Duration
}

// DefaultTaskState is Wait().
func DefaultTaskState() TaskState {
	return Wait()
}

// Continue asks to run again as soon as possible.
func Continue() TaskState {
	return TaskState{State: Running}
}

// Wait is the zero-sleep Waiting state.
func Wait() TaskState {
	return TaskState{State: Waiting}
}

// Sleep keeps the task alive but dormant for d. Negative durations count as
// zero.
func Sleep(d time.Duration) TaskState {
	if d < 0 {
		d = 0
	}
	return TaskState{State: Running, Sleep: d}
}

// Finished retires the task.
func Finished() TaskState {
	return TaskState{State: Done}
}

// IsDone reports whether the state retires the task.
func (s TaskState) IsDone() bool {
	return s.State == Done
}

func (s TaskState) String() string {
	if s.State == Done || s.Sleep <= 0 {
		return s.State.String()
	}
	return fmt.Sprintf("%s(%s)", s.State, s.Sleep)
}
