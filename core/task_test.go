package core

import (
	"strings"
	"testing"
	"time"
)

// TestTaskState_Constructors verifies the state envelopes
// Given: Each TaskState constructor
// When: It is called
// Then: It carries the documented state and sleep
func TestTaskState_Constructors(t *testing.T) {
	tests := []struct {
		name  string
		got   TaskState
		state State
		sleep time.Duration
	}{
		{"default", DefaultTaskState(), Waiting, 0},
		{"continue", Continue(), Running, 0},
		{"sleep", Sleep(16 * time.Millisecond), Running, 16 * time.Millisecond},
		{"negative sleep", Sleep(-time.Second), Running, 0},
		{"finished", Finished(), Done, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got.State != tt.state || tt.got.Sleep != tt.sleep {
				t.Fatalf("got %+v, want {%v %v}", tt.got, tt.state, tt.sleep)
			}
		})
	}
	if !Finished().IsDone() || Continue().IsDone() {
		t.Fatal("IsDone() disagrees with State")
	}
	if s := Sleep(time.Second).String(); s != "running(1s)" {
		t.Fatalf("String() = %q", s)
	}
}

// TestTaskID_StringAndIsZero verifies TaskID zero-state and string behavior
// Given: A zero TaskID and a generated TaskID
// When: IsZero and String are called
// Then: Zero ID reports true and generated ID is non-zero with a task- prefix
func TestTaskID_StringAndIsZero(t *testing.T) {
	var zero TaskID
	if !zero.IsZero() {
		t.Fatal("zero TaskID should report IsZero() == true")
	}

	id := nextTaskID()
	if id.IsZero() {
		t.Fatal("generated TaskID should not be zero")
	}
	if !strings.HasPrefix(id.String(), "task-") {
		t.Fatalf("String() = %q, want task- prefix", id.String())
	}
}

type namedTask struct{ TaskBase }

func (*namedTask) Run(Event) TaskState { return Finished() }
func (*namedTask) TaskName() string    { return "camera" }

func sampleTaskFunc(Event) TaskState { return Finished() }

// TestTaskName_Resolution verifies how display names are chosen
// Given: A Named task, a TaskFunc and an unnamed struct task
// When: taskName resolves them
// Then: The explicit name, the function name and the type name are used
func TestTaskName_Resolution(t *testing.T) {
	if got := taskName(&namedTask{}); got != "camera" {
		t.Fatalf("Named task = %q, want camera", got)
	}
	if got := taskName(TaskFunc(sampleTaskFunc)); !strings.HasSuffix(got, "sampleTaskFunc") {
		t.Fatalf("TaskFunc = %q, want function name", got)
	}
	if got := taskName(keyOnlyTask{}); got != "core.keyOnlyTask" {
		t.Fatalf("struct task = %q, want core.keyOnlyTask", got)
	}
}

// TestTaskBase_AttachDetach verifies the processor back-reference
// Given: A TaskBase with auto-delete enabled
// When: It is attached twice, detached, and attached again
// Then: Only a free TaskBase can be attached, and AutoDelete persists
func TestTaskBase_AttachDetach(t *testing.T) {
	var b TaskBase
	b.SetAutoDelete(true)
	p := NewProcessor(nil)

	if !b.attach(p, TaskID(5)) {
		t.Fatal("attach failed on a free task")
	}
	if b.Processor() != p || b.ID() != TaskID(5) {
		t.Fatal("attach did not record processor and ID")
	}
	if b.attach(NewProcessor(nil), TaskID(6)) || b.ID() != TaskID(5) {
		t.Fatal("second attach replaced the registration")
	}

	b.detach()
	if b.Processor() != nil {
		t.Fatal("detach left the processor reference")
	}
	if !b.AutoDelete() {
		t.Fatal("AutoDelete() = false, want true")
	}
	if !b.attach(p, TaskID(7)) {
		t.Fatal("attach failed after detach")
	}
}
