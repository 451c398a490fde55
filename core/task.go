package core

import (
	"reflect"
	"runtime"
	"strconv"
	"sync/atomic"
)

// Task is a unit of schedulable behavior. Run receives the event that woke
// the task (a Timeout event when its sleep simply elapsed) and reports how
// it wants to be scheduled next. Run should return promptly: a processor
// runs one task at a time.
type Task interface {
	Run(Event) TaskState
}

// TaskFunc adapts a plain function to Task.
type TaskFunc func(Event) TaskState

func (f TaskFunc) Run(e Event) TaskState { return f(e) }

// EventFilter is implemented by tasks that only want some event types
// delivered to them. Timeout and targeted notifications always reach a task.
type EventFilter interface {
	Accepts(EventType) bool
}

// Named is implemented by tasks that report their own name in logs, metrics
// and execution history.
type Named interface {
	TaskName() string
}

// Graphics is the drawing surface handed to Drawable values. The core never
// implements it; renderers do.
type Graphics interface{}

// Drawable is the drawing capability a game object composes alongside Task.
type Drawable interface {
	Draw(Graphics)
}

// TaskID identifies a registered task within its processor. The zero value
// means "no task".
type TaskID uint64

var lastTaskID atomic.Uint64

func nextTaskID() TaskID {
	return TaskID(lastTaskID.Add(1))
}

func (id TaskID) IsZero() bool { return id == 0 }

func (id TaskID) String() string {
	return "task-" + strconv.FormatUint(uint64(id), 10)
}

// TaskBase is embedded by tasks that need the processor back-reference or
// want to control ownership through SetAutoDelete:
//
//	type Camera struct {
//		core.TaskBase
//		...
//	}
//
// The processor reference is non-owning and is set on registration.
type TaskBase struct {
	processor  atomic.Pointer[Processor]
	id         atomic.Uint64
	autoDelete atomic.Bool
}

// SetAutoDelete decides who owns the task once it is Done: the processor
// (true, it is closed and dropped) or the caller (false).
func (b *TaskBase) SetAutoDelete(autoDelete bool) {
	b.autoDelete.Store(autoDelete)
}

func (b *TaskBase) AutoDelete() bool {
	return b.autoDelete.Load()
}

// Processor returns the processor the task is registered with, or nil.
func (b *TaskBase) Processor() *Processor {
	return b.processor.Load()
}

// ID returns the ID assigned on registration, or zero.
func (b *TaskBase) ID() TaskID {
	return TaskID(b.id.Load())
}

// attach claims the task for p. It fails while another registration holds it.
func (b *TaskBase) attach(p *Processor, id TaskID) bool {
	if !b.processor.CompareAndSwap(nil, p) {
		return false
	}
	b.id.Store(uint64(id))
	return true
}

func (b *TaskBase) detach() {
	b.processor.Store(nil)
}

type attachable interface {
	attach(*Processor, TaskID) bool
	detach()
}

type autoDeleter interface {
	AutoDelete() bool
}

// taskName resolves a display name: Named first, then the function name of
// a TaskFunc, then the dynamic type.
func taskName(task Task) string {
	if task == nil {
		return "anonymous"
	}
	if n, ok := task.(Named); ok {
		if name := n.TaskName(); name != "" {
			return name
		}
	}

	if f, ok := task.(TaskFunc); ok {
		pc := reflect.ValueOf(f).Pointer()
		if pc == 0 {
			return "anonymous"
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil || fn.Name() == "" {
			return "anonymous"
		}
		return fn.Name()
	}

	return reflect.TypeOf(task).String()
}
