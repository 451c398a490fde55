package core

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// =============================================================================
// Test Metrics
// =============================================================================

// TestMetrics is a mock metrics collector for testing
type TestMetrics struct {
	mu        sync.Mutex
	durations []time.Duration
	panics    []any
	depths    []int
	rejected  []string
	wakes     map[EventType]int
}

func NewTestMetrics() *TestMetrics {
	return &TestMetrics{wakes: make(map[EventType]int)}
}

func (m *TestMetrics) RecordTaskDuration(processorName string, taskName string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.durations = append(m.durations, duration)
}

func (m *TestMetrics) RecordTaskPanic(processorName string, taskName string, panicInfo any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panics = append(m.panics, panicInfo)
}

func (m *TestMetrics) RecordScheduleDepth(processorName string, depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.depths = append(m.depths, depth)
}

func (m *TestMetrics) RecordTaskRejected(processorName string, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected = append(m.rejected, reason)
}

func (m *TestMetrics) RecordWake(processorName string, reason EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wakes[reason]++
}

func TestDefaultPanicHandler(t *testing.T) {
	// Given: A DefaultPanicHandler
	handler := &DefaultPanicHandler{}

	// When: HandlePanic is called
	handler.HandlePanic("test-processor", "task", "test panic", []byte("stack trace"))

	// Then: No panic should occur (handler should not crash)
}

func TestNilMetrics(t *testing.T) {
	// Given: A NilMetrics instance
	metrics := &NilMetrics{}

	// When: All methods are called
	// Then: None of them panic
	metrics.RecordTaskDuration("p", "t", time.Second)
	metrics.RecordTaskPanic("p", "t", "boom")
	metrics.RecordScheduleDepth("p", 3)
	metrics.RecordTaskRejected("p", "nil")
	metrics.RecordWake("p", Timeout)
}

// =============================================================================
// Test ProcessorConfig
// =============================================================================

func TestDefaultProcessorConfig(t *testing.T) {
	// Given/When: The default config
	cfg := DefaultProcessorConfig()

	// Then: Every handler is set
	if cfg.Name != "processor" {
		t.Errorf("Name = %q, want processor", cfg.Name)
	}
	if cfg.Platform == nil || !cfg.Platform.Threaded() {
		t.Error("default platform should be threaded")
	}
	if cfg.PollInterval != defaultPollInterval {
		t.Errorf("PollInterval = %v, want %v", cfg.PollInterval, defaultPollInterval)
	}
	if cfg.Logger == nil || cfg.PanicHandler == nil || cfg.Metrics == nil || cfg.Tracer == nil {
		t.Errorf("default config has nil handlers: %+v", cfg)
	}
	if cfg.EventSource != nil {
		t.Error("default config should not have an event source")
	}
}

func TestProcessorConfig_PartialConfig(t *testing.T) {
	// Given: A config with only a name and metrics set
	metrics := NewTestMetrics()
	cfg := &ProcessorConfig{Name: "partial", Metrics: metrics}

	// When: Defaults are applied
	out := cfg.withDefaults()

	// Then: Set fields survive and the rest are filled
	if out.Name != "partial" {
		t.Errorf("Name = %q, want partial", out.Name)
	}
	if out.Metrics != metrics {
		t.Error("custom metrics replaced by default")
	}
	if out.Platform == nil || out.Logger == nil || out.PanicHandler == nil || out.Tracer == nil {
		t.Error("unset fields were not defaulted")
	}
	if out.HistoryCapacity != defaultTaskHistoryCapacity {
		t.Errorf("HistoryCapacity = %d, want %d", out.HistoryCapacity, defaultTaskHistoryCapacity)
	}
}

func TestProcessorConfig_NilConfig(t *testing.T) {
	// Given/When: Defaults applied to a nil config
	var cfg *ProcessorConfig
	out := cfg.withDefaults()

	// Then: It equals the default name
	if out.Name != DefaultProcessorConfig().Name {
		t.Errorf("Name = %q", out.Name)
	}
}

// =============================================================================
// Handlers wired into a Processor
// =============================================================================

// TestProcessor_WithCustomMetrics verifies the processor reports to its Metrics
// Given: A mock-clock processor with a recording Metrics
// When: A task runs once, a nil task is rejected, and a task panics
// Then: Durations, rejections, depths, wakes and panics are all recorded
func TestProcessor_WithCustomMetrics(t *testing.T) {
	// Arrange
	metrics := NewTestMetrics()
	mock := clock.NewMock()
	p := NewProcessor(&ProcessorConfig{
		Name:         "metered",
		Platform:     NewThreadedPlatform(mock),
		Metrics:      metrics,
		PanicHandler: &recordingPanicHandler{},
	})

	if _, err := p.AddFunc(func(Event) TaskState { return Finished() }, Continue()); err != nil {
		t.Fatalf("AddFunc failed: %v", err)
	}
	if _, err := p.AddTask(nil, Continue()); err == nil {
		t.Fatal("AddTask(nil) succeeded")
	}

	// Act
	stepUntilRun(t, p)
	if _, err := p.AddFunc(func(Event) TaskState { panic("kaboom") }, Continue()); err != nil {
		t.Fatalf("AddFunc failed: %v", err)
	}
	stepUntilRun(t, p)

	// Assert
	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if len(metrics.durations) != 2 {
		t.Errorf("durations recorded = %d, want 2", len(metrics.durations))
	}
	if len(metrics.rejected) != 1 || metrics.rejected[0] != "nil" {
		t.Errorf("rejected = %v, want [nil]", metrics.rejected)
	}
	if len(metrics.panics) != 1 || metrics.panics[0] != "kaboom" {
		t.Errorf("panics = %v, want [kaboom]", metrics.panics)
	}
	if metrics.wakes[SemaphorePost] < 2 {
		t.Errorf("wakes = %v, want a SemaphorePost wake per registration", metrics.wakes)
	}
	if len(metrics.depths) == 0 || metrics.depths[len(metrics.depths)-1] != 0 {
		t.Errorf("depths = %v, want last depth 0", metrics.depths)
	}
	if p.IsRunning() {
		t.Error("panic should mark the processor as not running")
	}
}

// TestProcessor_TracesEachRun verifies one span is emitted per Run call
// Given: A processor whose tracer records into an in-memory span recorder
// When: A named task runs twice
// Then: Two task.run spans carry the processor and task attributes
func TestProcessor_TracesEachRun(t *testing.T) {
	// Arrange
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	mock := clock.NewMock()
	p := NewProcessor(&ProcessorConfig{
		Name:     "traced",
		Platform: NewThreadedPlatform(mock),
		Tracer:   provider.Tracer("test"),
	})
	runs := 0
	task := &tracedTask{name: "renderer", run: func(Event) TaskState {
		runs++
		if runs == 2 {
			return Finished()
		}
		return Continue()
	}}
	if _, err := p.AddTask(task, Continue()); err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}

	// Act
	stepUntilRun(t, p)
	stepUntilRun(t, p)

	// Assert
	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("ended spans = %d, want 2", len(spans))
	}
	want := map[attribute.Key]string{
		"processor":   "traced",
		"task.name":   "renderer",
		"event.type":  Timeout.String(),
		"task.result": Done.String(),
	}
	attrs := make(map[attribute.Key]string)
	for _, kv := range spans[1].Attributes() {
		attrs[kv.Key] = kv.Value.Emit()
	}
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("span attribute %s = %q, want %q", k, attrs[k], v)
		}
	}
	if spans[0].Name() != "task.run" {
		t.Errorf("span name = %q, want task.run", spans[0].Name())
	}
}

type tracedTask struct {
	TaskBase
	name string
	run  func(Event) TaskState
}

func (t *tracedTask) Run(e Event) TaskState { return t.run(e) }
func (t *tracedTask) TaskName() string      { return t.name }
