package cooprunner

import (
	"github.com/benbjohnson/clock"

	"github.com/Swind/go-coop-runner/core"
)

// Re-export commonly used types from core package for convenience.
// This allows users to import only the cooprunner package for most use cases.

// Task is a schedulable unit of work
type Task = core.Task

// TaskFunc adapts a plain function to Task
type TaskFunc = core.TaskFunc

// TaskBase carries the processor back-reference and auto-delete flag
type TaskBase = core.TaskBase

// TaskID identifies a registered task without keeping it alive
type TaskID = core.TaskID

// TaskState is what a task returns from Run
type TaskState = core.TaskState

// State is the scheduling state inside a TaskState
type State = core.State

// Event is what a task is woken with
type Event = core.Event

// EventType classifies events and posts
type EventType = core.EventType

// Key identifies the key of a KeyDown/KeyUp event
type Key = core.Key

// Processor is the task scheduler
type Processor = core.Processor

// ProcessorConfig configures a Processor
type ProcessorConfig = core.ProcessorConfig

// ProcessorStats is a point-in-time processor snapshot
type ProcessorStats = core.ProcessorStats

// Platform selects threaded or cooperative execution
type Platform = core.Platform

// Semaphore is a counting semaphore of typed posts
type Semaphore = core.Semaphore

// Post is one semaphore signal
type Post = core.Post

// Channel is a typed FIFO queue woken through a Semaphore
type Channel[T any] = core.Channel[T]

// EventQueue is a Channel of Events with a subscription filter
type EventQueue = core.EventQueue

// PanicHandler is told about task panics
type PanicHandler = core.PanicHandler

// Metrics receives processor measurements
type Metrics = core.Metrics

// Logger is the structured logger used by processors
type Logger = core.Logger

// TaskPanicError is returned by Processor.Done after a task panic
type TaskPanicError = core.TaskPanicError

// State constants
const (
	Running = core.Running
	Waiting = core.Waiting
	Done    = core.Done
)

// Event type constants
const (
	UnknownEvent     = core.UnknownEvent
	Timeout          = core.Timeout
	SemaphorePost    = core.SemaphorePost
	ChannelMessage   = core.ChannelMessage
	QuitEvent        = core.QuitEvent
	KeyDownEvent     = core.KeyDownEvent
	KeyUpEvent       = core.KeyUpEvent
	ResolutionChange = core.ResolutionChange
)

// Convenience constructors for TaskState
var (
	Continue = core.Continue
	Wait     = core.Wait
	Sleep    = core.Sleep
	Finished = core.Finished
)

// Errors
var (
	ErrTaskDone         = core.ErrTaskDone
	ErrNilTask          = core.ErrNilTask
	ErrTaskRegistered   = core.ErrTaskRegistered
	ErrUnknownTask      = core.ErrUnknownTask
	ErrProcessorStarted = core.ErrProcessorStarted
)

// NewEvent creates an event of type t
var NewEvent = core.NewEvent

// NewKeyEvent creates a KeyDown or KeyUp event
var NewKeyEvent = core.NewKeyEvent

// Platform constructors
var (
	NewThreadedPlatform    = core.NewThreadedPlatform
	NewCooperativePlatform = core.NewCooperativePlatform
	DefaultPlatform        = core.DefaultPlatform
)

// NewChannel creates a Channel on the given platform.
func NewChannel[T any](platform Platform) *Channel[T] {
	return core.NewChannel[T](platform)
}

// NewProcessor creates a Processor. A nil config uses the defaults.
func NewProcessor(config *ProcessorConfig) *Processor {
	return core.NewProcessor(config)
}

// NewThreadedProcessor creates a processor whose loop runs on its own
// goroutine.
func NewThreadedProcessor(name string) *Processor {
	return core.NewProcessor(&core.ProcessorConfig{
		Name:     name,
		Platform: core.NewThreadedPlatform(clock.New()),
	})
}

// NewCooperativeProcessor creates a processor whose loop runs on the caller
// of Start. idle is called whenever the loop has nothing to do; nil yields
// the goroutine.
func NewCooperativeProcessor(name string, idle func()) *Processor {
	return core.NewProcessor(&core.ProcessorConfig{
		Name:     name,
		Platform: core.NewCooperativePlatform(clock.New(), idle),
	})
}
