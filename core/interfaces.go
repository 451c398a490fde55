package core

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task panics inside Run. The task has already
// been retired and the processor loop is shutting down when it is called.
//
// Implementations should be thread-safe; several processors may share one.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - processorName: The name of the processor that ran the task
	// - taskName: The name of the task that panicked
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(processorName string, taskName string, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler prints panic information to stdout.
type DefaultPanicHandler struct{}

// HandlePanic prints panic information to stdout.
func (h *DefaultPanicHandler) HandlePanic(processorName string, taskName string, panicInfo any, stackTrace []byte) {
	fmt.Printf("[Processor %s] Task %s panic: %v\nStack trace:\n%s",
		processorName, taskName, panicInfo, stackTrace)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting processor metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods are called from the processor loop and from AddTask callers; they
// should be non-blocking and fast.
type Metrics interface {
	// RecordTaskDuration records how long one Run call took.
	RecordTaskDuration(processorName string, taskName string, duration time.Duration)

	// RecordTaskPanic records that a task panicked during Run.
	RecordTaskPanic(processorName string, taskName string, panicInfo any)

	// RecordScheduleDepth records how many tasks hold a wake time.
	RecordScheduleDepth(processorName string, depth int)

	// RecordTaskRejected records a refused registration.
	//
	// Parameters:
	// - processorName: The name of the processor
	// - reason: Why the task was rejected (e.g., "done", "nil")
	RecordTaskRejected(processorName string, reason string)

	// RecordWake records why the processor loop woke up.
	RecordWake(processorName string, reason EventType)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(processorName string, taskName string, duration time.Duration) {
}
func (m *NilMetrics) RecordTaskPanic(processorName string, taskName string, panicInfo any) {}
func (m *NilMetrics) RecordScheduleDepth(processorName string, depth int)                  {}
func (m *NilMetrics) RecordTaskRejected(processorName string, reason string)               {}
func (m *NilMetrics) RecordWake(processorName string, reason EventType)                    {}

// =============================================================================
// ProcessorConfig: Configuration for Processor
// =============================================================================

const defaultPollInterval = 10 * time.Millisecond

// ProcessorConfig holds configuration options for Processor.
// All fields are optional; zero values are replaced with defaults.
type ProcessorConfig struct {
	// Name labels logs, metrics and spans. Defaults to "processor".
	Name string

	// Platform selects threaded or cooperative execution. Defaults to
	// DefaultPlatform().
	Platform Platform

	// EventSource is an external event supplier polled by the loop. When
	// nil, events are pushed through Processor.Events().
	EventSource EventSource

	// PollInterval bounds each wait while an external EventSource is set.
	PollInterval time.Duration

	// HistoryCapacity is the number of execution records kept.
	HistoryCapacity int

	// Logger defaults to NoOpLogger.
	Logger Logger

	// PanicHandler defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Metrics defaults to NilMetrics.
	Metrics Metrics

	// Tracer receives one span per Run call. Defaults to a no-op tracer.
	Tracer trace.Tracer
}

// DefaultProcessorConfig returns a config with default handlers.
func DefaultProcessorConfig() *ProcessorConfig {
	return &ProcessorConfig{
		Name:            "processor",
		Platform:        DefaultPlatform(),
		PollInterval:    defaultPollInterval,
		HistoryCapacity: defaultTaskHistoryCapacity,
		Logger:          NewNoOpLogger(),
		PanicHandler:    &DefaultPanicHandler{},
		Metrics:         &NilMetrics{},
		Tracer:          noop.NewTracerProvider().Tracer("cooprunner"),
	}
}

// withDefaults returns a copy of c with every unset field filled in.
func (c *ProcessorConfig) withDefaults() ProcessorConfig {
	out := *DefaultProcessorConfig()
	if c == nil {
		return out
	}
	if c.Name != "" {
		out.Name = c.Name
	}
	if c.Platform != nil {
		out.Platform = c.Platform
	}
	out.EventSource = c.EventSource
	if c.PollInterval > 0 {
		out.PollInterval = c.PollInterval
	}
	if c.HistoryCapacity > 0 {
		out.HistoryCapacity = c.HistoryCapacity
	}
	if c.Logger != nil {
		out.Logger = c.Logger
	}
	if c.PanicHandler != nil {
		out.PanicHandler = c.PanicHandler
	}
	if c.Metrics != nil {
		out.Metrics = c.Metrics
	}
	if c.Tracer != nil {
		out.Tracer = c.Tracer
	}
	return out
}
