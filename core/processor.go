package core

import (
	"context"
	"fmt"
	"io"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Processor schedules tasks on a single execution context. At each step it
// picks the due task with the earliest wake time (ties go to the earlier
// insertion), pairs it with the oldest pending event it accepts or with a
// Timeout, runs it, and reschedules it from the TaskState it returns.
//
// Events never cut a sleep short: they wait in a backlog until an accepting
// task comes due. Events no registered task accepts are dropped. Notify is
// the only way to run a task before its wake time.
//
// On a threaded Platform, Start runs the loop on its own goroutine and
// AddTask, Notify, Stop and Events().Push may be called from any goroutine.
// On a cooperative Platform, Start runs the loop on the caller until a task
// or the platform's idle hook calls Stop; everything happens on that one
// context.
//
// Tasks run strictly one at a time. Parallelism needs several processors.
type Processor struct {
	name         string
	platform     Platform
	clk          clock.Clock
	logger       Logger
	panicHandler PanicHandler
	metrics      Metrics
	tracer       trace.Tracer
	source       EventSource
	pollInterval time.Duration

	// mu guards tasks, sched and pending.
	mu      Mutex
	tasks   map[TaskID]*taskRecord
	sched   *schedule
	pending backlog

	sem    *Semaphore
	events *EventQueue
	done   *Channel[bool]

	started atomic.Bool
	running atomic.Bool
	failure atomic.Pointer[TaskPanicError]

	history  *executionHistory
	executed atomic.Int64
	panicked atomic.Int64
	rejected atomic.Int64
}

// NewProcessor creates a stopped Processor. A nil config uses
// DefaultProcessorConfig.
func NewProcessor(config *ProcessorConfig) *Processor {
	cfg := config.withDefaults()

	sem := NewSemaphore(cfg.Platform)
	return &Processor{
		name:         cfg.Name,
		platform:     cfg.Platform,
		clk:          cfg.Platform.Clock(),
		logger:       cfg.Logger,
		panicHandler: cfg.PanicHandler,
		metrics:      cfg.Metrics,
		tracer:       cfg.Tracer,
		source:       cfg.EventSource,
		pollInterval: cfg.PollInterval,
		mu:           cfg.Platform.NewMutex(),
		tasks:        make(map[TaskID]*taskRecord),
		sched:        newSchedule(),
		sem:          sem,
		events:       NewEventQueueOn(sem),
		done:         NewChannel[bool](cfg.Platform),
		history:      newExecutionHistory(cfg.HistoryCapacity),
	}
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return p.name
}

// Events returns the queue whose events the loop delivers to tasks. Pushing
// to it wakes the loop.
func (p *Processor) Events() *EventQueue {
	return p.events
}

// PostEvent is shorthand for Events().Push(e).
func (p *Processor) PostEvent(e Event) bool {
	return p.events.Push(e)
}

// =============================================================================
// Registration
// =============================================================================

// AddTask registers task with its initial state. Ownership follows the task's
// AutoDelete flag (see TaskBase): owned tasks are closed and dropped when
// Done, the rest are left to their caller.
func (p *Processor) AddTask(task Task, state TaskState) (TaskID, error) {
	owned := false
	if ad, ok := task.(autoDeleter); ok {
		owned = ad.AutoDelete()
	}
	return p.add(task, state, owned)
}

// AdoptTask registers task and takes ownership of it: when it reaches Done,
// or when the processor stops, it is closed (if it is an io.Closer) and
// dropped.
func (p *Processor) AdoptTask(task Task, state TaskState) (TaskID, error) {
	return p.add(task, state, true)
}

// LendTask registers task without taking ownership. The processor never
// closes it.
func (p *Processor) LendTask(task Task, state TaskState) (TaskID, error) {
	return p.add(task, state, false)
}

// AddFunc wraps fn in a TaskFunc owned by the processor.
func (p *Processor) AddFunc(fn func(Event) TaskState, state TaskState) (TaskID, error) {
	if fn == nil {
		return p.add(nil, state, true)
	}
	return p.add(TaskFunc(fn), state, true)
}

func (p *Processor) add(task Task, state TaskState, owned bool) (TaskID, error) {
	if task == nil {
		p.reject("nil")
		return 0, ErrNilTask
	}
	if f, ok := task.(TaskFunc); ok && f == nil {
		p.reject("nil")
		return 0, ErrNilTask
	}
	name := taskName(task)
	if state.IsDone() {
		p.reject("done")
		return 0, fmt.Errorf("add %s: %w", name, ErrTaskDone)
	}

	rec := &taskRecord{
		id:    nextTaskID(),
		task:  task,
		name:  name,
		owned: owned,
	}
	if a, ok := task.(attachable); ok && !a.attach(p, rec.id) {
		p.reject("registered")
		return 0, fmt.Errorf("add %s: %w", name, ErrTaskRegistered)
	}

	var head bool
	var depth int
	withLock(p.mu, func() {
		p.tasks[rec.id] = rec
		p.sched.insert(rec, p.clk.Now().Add(state.Sleep))
		head = p.sched.peek().rec == rec
		depth = p.sched.len()
	})

	// Only a new head changes how long the loop should sleep.
	if head {
		p.sem.Signal()
	}

	p.metrics.RecordScheduleDepth(p.name, depth)
	p.logger.Debug("task added",
		F("processor", p.name), F("task", name), F("id", rec.id), F("state", state), F("owned", owned))
	return rec.id, nil
}

func (p *Processor) reject(reason string) {
	p.rejected.Add(1)
	p.metrics.RecordTaskRejected(p.name, reason)
	p.logger.Warn("task rejected", F("processor", p.name), F("reason", reason))
}

// Notify wakes the task with the given ID as soon as the loop gets to it,
// delivering an event of type reason, even if its wake time has not come.
func (p *Processor) Notify(id TaskID, reason EventType) error {
	var known bool
	withLock(p.mu, func() {
		_, known = p.tasks[id]
	})
	if !known {
		return fmt.Errorf("notify %s: %w", id, ErrUnknownTask)
	}
	p.sem.Post(PostFor(id, reason))
	return nil
}

// =============================================================================
// Lifecycle
// =============================================================================

// Start runs the scheduling loop. On a threaded platform it returns at once;
// on a cooperative platform it returns when the loop stops, with the same
// error Done would report.
func (p *Processor) Start() error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrProcessorStarted
	}
	p.running.Store(true)
	p.logger.Info("processor started",
		F("processor", p.name), F("threaded", p.platform.Threaded()))

	if p.platform.Threaded() {
		go p.loop()
		return nil
	}
	p.loop()
	return p.Err()
}

// Stop asks the loop to exit. A Run call already in progress completes
// first; no task starts once the loop has seen the request. Safe to call
// from inside a task.
func (p *Processor) Stop() {
	p.running.Store(false)
	p.sem.Signal()
}

// Done blocks until the loop has exited and returns the task panic that
// ended it, if any. It returns at once when the processor was never started.
// On a cooperative platform Done must not be called from inside a task.
func (p *Processor) Done() error {
	if !p.started.Load() {
		return nil
	}
	p.done.Receive()
	// Hand the signal on to any other joiner.
	p.done.Write(true)
	return p.Err()
}

// Err returns the failure that stopped the loop, or nil.
func (p *Processor) Err() error {
	if perr := p.failure.Load(); perr != nil {
		return perr
	}
	return nil
}

// IsRunning reports whether the loop is active.
func (p *Processor) IsRunning() bool {
	return p.running.Load()
}

// halted reports whether a started loop has been asked to stop. Step on a
// processor that was never started is not affected.
func (p *Processor) halted() bool {
	return p.started.Load() && !p.running.Load()
}

func (p *Processor) loop() {
	defer func() {
		p.releaseAll()
		p.logger.Info("processor stopped", F("processor", p.name), F("executed", p.executed.Load()))
		p.done.Write(true)
	}()

	for p.running.Load() {
		p.step(true)
	}
}

// Step performs one non-blocking scheduling iteration and reports whether a
// task ran. It lets an embedder drive the processor from its own loop
// instead of calling Start.
func (p *Processor) Step() bool {
	return p.step(false)
}

func (p *Processor) step(block bool) bool {
	p.intake()

	if post, ok := p.sem.PopPost(); ok {
		p.metrics.RecordWake(p.name, post.Reason)
		if p.handlePost(post) {
			return true
		}
	}
	if p.runDue() {
		return true
	}
	// Stop stores the flag before posting, so a consumed Stop post is seen
	// here and the loop does not go back to sleep.
	if !block || !p.running.Load() {
		return false
	}

	post := p.waitForWake()
	if !p.running.Load() {
		return false
	}
	p.metrics.RecordWake(p.name, post.Reason)
	return p.handlePost(post)
}

// handlePost acts on one semaphore post and reports whether a task ran.
// Only targeted posts run a task directly; the rest feed the next step.
func (p *Processor) handlePost(post Post) bool {
	switch {
	case !post.Target.IsZero():
		return p.runTarget(post)
	case post.Reason == ChannelMessage, post.Reason == Timeout, post.Reason == SemaphorePost:
		// Events were moved by intake; registration and Stop only need the
		// loop to re-evaluate.
		return false
	default:
		// An untargeted post with an event reason behaves like an event.
		p.queueEvent(NewEvent(post.Reason))
		return false
	}
}

// intake moves newly arrived events into the backlog: everything already in
// the processor's queue, and at most one event from the external source.
func (p *Processor) intake() {
	for n := p.events.Len(); n > 0; n-- {
		e, ok := p.events.take()
		if !ok {
			break
		}
		p.queueEvent(e)
	}
	if p.source != nil {
		if e, ok := p.source.Poll(0); ok {
			p.queueEvent(e)
		}
	}
}

// queueEvent keeps e for the next due task that accepts it, or drops it when
// no registered task would.
func (p *Processor) queueEvent(e Event) {
	var kept bool
	withLock(p.mu, func() {
		if kept = p.acceptedLocked(e.Type()); kept {
			p.pending.push(e)
		}
	})
	if !kept {
		p.logger.Debug("event dropped, no task accepts it", F("processor", p.name), F("event", e.Type()))
	}
}

func (p *Processor) acceptedLocked(t EventType) bool {
	for _, rec := range p.tasks {
		if accepts(rec.task, t) {
			return true
		}
	}
	return false
}

// waitForWake sleeps on the semaphore until the earliest wake time, or
// indefinitely when nothing is scheduled.
func (p *Processor) waitForWake() Post {
	timeout, bounded := p.nextWait()
	if p.source != nil && (!bounded || timeout > p.pollInterval) {
		timeout, bounded = p.pollInterval, true
	}
	if bounded {
		return p.sem.WaitTimeout(timeout)
	}
	return p.sem.Wait()
}

func (p *Processor) nextWait() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e := p.sched.peek()
	if e == nil {
		return 0, false
	}
	d := e.wakeAt.Sub(p.clk.Now())
	if d < 0 {
		d = 0
	}
	return d, true
}

// =============================================================================
// Dispatch
// =============================================================================

// runDue runs the earliest task whose wake time has arrived, with the oldest
// pending event it accepts or a Timeout.
func (p *Processor) runDue() bool {
	var (
		rec *taskRecord
		e   = NewEvent(Timeout)
	)
	withLock(p.mu, func() {
		entry, ok := p.sched.popDue(p.clk.Now())
		if !ok {
			return
		}
		rec = entry.rec
		if pending, ok := p.pending.takeFor(rec.task); ok {
			e = pending
		}
	})
	if rec == nil {
		return false
	}
	return p.runTask(rec, e)
}

func (p *Processor) runTarget(post Post) bool {
	var rec *taskRecord
	withLock(p.mu, func() {
		if rec = p.tasks[post.Target]; rec != nil {
			p.sched.remove(rec.id)
		}
	})
	if rec == nil {
		p.logger.Debug("notification for finished task", F("processor", p.name), F("id", post.Target))
		return false
	}
	return p.runTask(rec, NewEvent(post.Reason))
}

// runTask runs the task and applies its result. A panic retires the task
// and ends the loop. Once the loop is halted the task is left for releaseAll
// instead.
func (p *Processor) runTask(rec *taskRecord, e Event) bool {
	if p.halted() {
		return false
	}
	state, perr := p.invoke(rec, e)
	if perr != nil {
		p.fail(rec, perr)
		return true
	}
	p.processTaskState(rec, state)
	return true
}

func (p *Processor) invoke(rec *taskRecord, e Event) (state TaskState, perr *TaskPanicError) {
	_, span := p.tracer.Start(context.Background(), "task.run",
		trace.WithAttributes(
			attribute.String("processor", p.name),
			attribute.String("task.name", rec.name),
			attribute.Int64("task.id", int64(rec.id)),
			attribute.String("event.type", e.Type().String()),
		))
	startedAt := p.clk.Now()

	defer func() {
		if r := recover(); r != nil {
			perr = &TaskPanicError{
				Processor: p.name,
				TaskID:    rec.id,
				TaskName:  rec.name,
				Value:     r,
				Stack:     debug.Stack(),
			}
			state = Finished()
			span.SetStatus(codes.Error, fmt.Sprint(r))
		} else {
			span.SetAttributes(attribute.String("task.result", state.State.String()))
		}
		span.End()

		finishedAt := p.clk.Now()
		duration := finishedAt.Sub(startedAt)
		p.executed.Add(1)
		p.metrics.RecordTaskDuration(p.name, rec.name, duration)
		p.history.Add(TaskExecutionRecord{
			TaskID:        rec.id,
			Name:          rec.name,
			ProcessorName: p.name,
			Event:         e.Type(),
			Result:        state,
			StartedAt:     startedAt,
			FinishedAt:    finishedAt,
			Duration:      duration,
			Panicked:      perr != nil,
		})
	}()

	state = rec.task.Run(e)
	return state, nil
}

// processTaskState retires Done tasks and reschedules the rest at
// now + Sleep.
func (p *Processor) processTaskState(rec *taskRecord, state TaskState) {
	var depth int
	if state.IsDone() {
		var dropped int
		withLock(p.mu, func() {
			delete(p.tasks, rec.id)
			p.sched.remove(rec.id)
			depth = p.sched.len()
			dropped = p.pending.retain(p.acceptedLocked)
		})
		if dropped > 0 {
			p.logger.Debug("pending events dropped, no task accepts them",
				F("processor", p.name), F("count", dropped))
		}
		p.retire(rec)
		p.logger.Debug("task done", F("processor", p.name), F("task", rec.name), F("id", rec.id))
	} else {
		withLock(p.mu, func() {
			p.sched.insert(rec, p.clk.Now().Add(state.Sleep))
			depth = p.sched.len()
		})
	}
	p.metrics.RecordScheduleDepth(p.name, depth)
}

func (p *Processor) fail(rec *taskRecord, perr *TaskPanicError) {
	p.panicked.Add(1)
	p.failure.CompareAndSwap(nil, perr)
	p.processTaskState(rec, Finished())

	p.logger.Error("task panicked, stopping processor",
		F("processor", p.name), F("task", rec.name), F("panic", perr.Value))
	p.metrics.RecordTaskPanic(p.name, rec.name, perr.Value)
	p.panicHandler.HandlePanic(p.name, rec.name, perr.Value, perr.Stack)

	p.running.Store(false)
}

// retire drops the processor's hold on a task. Owned tasks are closed.
func (p *Processor) retire(rec *taskRecord) {
	if a, ok := rec.task.(attachable); ok {
		a.detach()
	}
	if rec.owned {
		if c, ok := rec.task.(io.Closer); ok {
			if err := c.Close(); err != nil {
				p.logger.Warn("closing task failed",
					F("processor", p.name), F("task", rec.name), F("error", err))
			}
		}
	}
	rec.task = nil
}

// releaseAll retires every task still registered when the loop exits,
// earliest wake time first.
func (p *Processor) releaseAll() {
	var recs []*taskRecord
	withLock(p.mu, func() {
		recs = p.sched.drain()
		seen := make(map[TaskID]struct{}, len(recs))
		for _, rec := range recs {
			seen[rec.id] = struct{}{}
		}
		for id, rec := range p.tasks {
			if _, ok := seen[id]; !ok {
				recs = append(recs, rec)
			}
		}
		p.tasks = make(map[TaskID]*taskRecord)
		p.pending = backlog{}
	})
	for _, rec := range recs {
		p.retire(rec)
	}
}

// =============================================================================
// Introspection
// =============================================================================

// TaskCount returns the number of registered tasks.
func (p *Processor) TaskCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks)
}

// Has reports whether the task with the given ID is still registered.
func (p *Processor) Has(id TaskID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.tasks[id]
	return ok
}

// RecentExecutions returns up to limit execution records, newest first.
func (p *Processor) RecentExecutions(limit int) []TaskExecutionRecord {
	return p.history.Recent(limit)
}

// LastExecution returns the most recent execution record.
func (p *Processor) LastExecution() (TaskExecutionRecord, bool) {
	return p.history.Last()
}

// Stats returns a snapshot of the processor state.
func (p *Processor) Stats() ProcessorStats {
	stats := ProcessorStats{
		Name:          p.name,
		Mode:          "cooperative",
		PendingEvents: p.events.Len(),
		PendingPosts:  p.sem.Len(),
		Executed:      p.executed.Load(),
		Panicked:      p.panicked.Load(),
		Rejected:      p.rejected.Load(),
		Running:       p.running.Load(),
	}
	if p.platform.Threaded() {
		stats.Mode = "threaded"
	}

	withLock(p.mu, func() {
		stats.Tasks = len(p.tasks)
		stats.Scheduled = p.sched.len()
		stats.PendingEvents += p.pending.len()
		if e := p.sched.peek(); e != nil {
			stats.NextWake = e.wakeAt
		}
	})

	if last, ok := p.history.Last(); ok {
		stats.LastTaskName = last.Name
		stats.LastTaskAt = last.FinishedAt
	}
	return stats
}
