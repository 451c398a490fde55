package core

import (
	"errors"
	"fmt"
)

var (
	// ErrTaskDone is returned when a task is registered with a Done state.
	ErrTaskDone = errors.New("task registered in done state")

	// ErrNilTask is returned when registering a nil task.
	ErrNilTask = errors.New("nil task")

	// ErrTaskRegistered is returned when a task is registered while a
	// processor still holds it.
	ErrTaskRegistered = errors.New("task already registered")

	// ErrUnknownTask is returned by Notify for IDs the processor does not hold.
	ErrUnknownTask = errors.New("unknown task")

	// ErrProcessorStarted is returned by a second Start call.
	ErrProcessorStarted = errors.New("processor already started")
)

// TaskPanicError is the failure that ended a processor loop: a task panicked
// inside Run.
type TaskPanicError struct {
	Processor string
	TaskID    TaskID
	TaskName  string
	Value     any
	Stack     []byte
}

func (e *TaskPanicError) Error() string {
	return fmt.Sprintf("processor %s: task %s (%s) panicked: %v", e.Processor, e.TaskName, e.TaskID, e.Value)
}

// Unwrap exposes the panic value when it is an error.
func (e *TaskPanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
