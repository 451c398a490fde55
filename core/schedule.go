package core

import (
	"container/heap"
	"time"
)

// taskRecord is the processor's bookkeeping for a registered task.
type taskRecord struct {
	id    TaskID
	task  Task
	name  string
	owned bool
}

// scheduleEntry is one (task, wake time) pair.
type scheduleEntry struct {
	rec    *taskRecord
	wakeAt time.Time
	seq    uint64 // insertion order, breaks wake time ties
	index  int    // for heap interface
}

func (e *scheduleEntry) before(o *scheduleEntry) bool {
	if e.wakeAt.Equal(o.wakeAt) {
		return e.seq < o.seq
	}
	return e.wakeAt.Before(o.wakeAt)
}

// entryHeap implements heap.Interface ordered by wake time, then insertion.
type entryHeap []*scheduleEntry

func (h entryHeap) Len() int           { return len(h) }
func (h entryHeap) Less(i, j int) bool { return h[i].before(h[j]) }
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	item := x.(*scheduleEntry)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	item.index = -1
	*h = old[0 : n-1]
	return item
}

// schedule holds at most one entry per task. It is not synchronized; the
// processor guards it with its mutex.
type schedule struct {
	pq      entryHeap
	byID    map[TaskID]*scheduleEntry
	nextSeq uint64
}

func newSchedule() *schedule {
	s := &schedule{
		pq:   make(entryHeap, 0),
		byID: make(map[TaskID]*scheduleEntry),
	}
	heap.Init(&s.pq)
	return s
}

// insert schedules rec at wakeAt, replacing any entry it already has.
func (s *schedule) insert(rec *taskRecord, wakeAt time.Time) {
	s.remove(rec.id)
	e := &scheduleEntry{rec: rec, wakeAt: wakeAt, seq: s.nextSeq}
	s.nextSeq++
	heap.Push(&s.pq, e)
	s.byID[rec.id] = e
}

func (s *schedule) remove(id TaskID) (*scheduleEntry, bool) {
	e, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	heap.Remove(&s.pq, e.index)
	delete(s.byID, id)
	return e, true
}

func (s *schedule) peek() *scheduleEntry {
	if len(s.pq) == 0 {
		return nil
	}
	return s.pq[0]
}

// popDue removes and returns the earliest entry if it is due at now.
func (s *schedule) popDue(now time.Time) (*scheduleEntry, bool) {
	e := s.peek()
	if e == nil || e.wakeAt.After(now) {
		return nil, false
	}
	return s.remove(e.rec.id)
}

func (s *schedule) len() int {
	return len(s.pq)
}

// drain empties the schedule and returns the records it held, earliest
// first.
func (s *schedule) drain() []*taskRecord {
	recs := make([]*taskRecord, 0, len(s.pq))
	for len(s.pq) > 0 {
		e := heap.Pop(&s.pq).(*scheduleEntry)
		recs = append(recs, e.rec)
	}
	s.byID = make(map[TaskID]*scheduleEntry)
	return recs
}

// accepts reports whether task takes events of type t. Tasks without an
// EventFilter take everything.
func accepts(task Task, t EventType) bool {
	if f, ok := task.(EventFilter); ok {
		return f.Accepts(t)
	}
	return true
}

// backlog holds events until a task that accepts them comes due. Like
// schedule it is not synchronized.
type backlog struct {
	events []Event
}

func (b *backlog) push(e Event) {
	b.events = append(b.events, e)
}

// takeFor removes and returns the oldest event task accepts.
func (b *backlog) takeFor(task Task) (Event, bool) {
	for i, e := range b.events {
		if accepts(task, e.Type()) {
			b.events = append(b.events[:i], b.events[i+1:]...)
			return e, true
		}
	}
	return Event{}, false
}

// retain drops the events keep rejects and returns how many were dropped.
func (b *backlog) retain(keep func(EventType) bool) int {
	kept := b.events[:0]
	for _, e := range b.events {
		if keep(e.Type()) {
			kept = append(kept, e)
		}
	}
	dropped := len(b.events) - len(kept)
	clear(b.events[len(kept):])
	b.events = kept
	return dropped
}

func (b *backlog) len() int {
	return len(b.events)
}
