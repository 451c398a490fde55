package core

import (
	"sync"
	"time"
)

// EventQueue carries events from producers (input polling, timers, other
// goroutines) to a Processor. It implements EventSource.
//
// A queue built with NewEventQueueOn shares the Processor's semaphore, so a
// Push wakes the processor loop directly instead of waiting for its next poll.
type EventQueue struct {
	ch *Channel[Event]

	subMu sync.RWMutex
	subs  map[EventType]struct{}
}

// NewEventQueue creates a standalone queue.
func NewEventQueue(platform Platform) *EventQueue {
	return &EventQueue{ch: NewChannel[Event](platform)}
}

// NewEventQueueOn creates a queue posting to sem.
func NewEventQueueOn(sem *Semaphore) *EventQueue {
	return &EventQueue{ch: NewChannelOn[Event](sem)}
}

// Subscribe limits the queue to the given event types. Until the first call
// every type is accepted.
func (q *EventQueue) Subscribe(types ...EventType) {
	q.subMu.Lock()
	defer q.subMu.Unlock()
	if q.subs == nil {
		q.subs = make(map[EventType]struct{}, len(types))
	}
	for _, t := range types {
		q.subs[t] = struct{}{}
	}
}

// Subscribed reports whether Push accepts events of type t.
func (q *EventQueue) Subscribed(t EventType) bool {
	q.subMu.RLock()
	defer q.subMu.RUnlock()
	if q.subs == nil {
		return true
	}
	_, ok := q.subs[t]
	return ok
}

// Push enqueues e. It reports false if e was dropped because its type is not
// subscribed.
func (q *EventQueue) Push(e Event) bool {
	if !q.Subscribed(e.Type()) {
		return false
	}
	q.ch.Write(e)
	return true
}

// Poll returns the next event, waiting at most timeout. Poll consumes
// whatever wakes the underlying semaphore, so it is meant for standalone
// queues; a Processor drains its own bound queue itself.
func (q *EventQueue) Poll(timeout time.Duration) (Event, bool) {
	e, reason := q.ch.ReceiveTimeout(timeout)
	return e, reason == ChannelMessage
}

// Len returns the number of queued events.
func (q *EventQueue) Len() int {
	return q.ch.Len()
}

// take pops an event for a caller that already consumed the matching post.
func (q *EventQueue) take() (Event, bool) {
	return q.ch.take()
}
