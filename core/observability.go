package core

import "time"

// TaskExecutionRecord captures one completed Run call.
type TaskExecutionRecord struct {
	TaskID        TaskID
	Name          string
	ProcessorName string
	Event         EventType
	Result        TaskState
	StartedAt     time.Time
	FinishedAt    time.Time
	Duration      time.Duration
	Panicked      bool
}

// ProcessorStats represents runtime observability state for a processor.
type ProcessorStats struct {
	Name          string
	Mode          string
	Tasks         int
	Scheduled     int
	PendingEvents int
	PendingPosts  int
	Executed      int64
	Panicked      int64
	Rejected      int64
	Running       bool
	NextWake      time.Time
	LastTaskName  string
	LastTaskAt    time.Time
}
