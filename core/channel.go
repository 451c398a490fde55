package core

import "time"

// Channel is a FIFO mailbox of T built on a Semaphore. Every Write posts a
// ChannelMessage, so each queued value has exactly one pending post.
//
// The semaphore may be shared with other producers (see NewChannelOn). A
// reader therefore distinguishes "a post arrived" from "a message was
// available": foreign reasons are returned to the caller untouched, and a
// ChannelMessage post whose value was already taken by another reader is
// treated as spurious and waited out again.
type Channel[T any] struct {
	sem  *Semaphore
	mu   Mutex
	msgs fifo[T]
}

// NewChannel creates a Channel with its own Semaphore.
func NewChannel[T any](platform Platform) *Channel[T] {
	return NewChannelOn[T](NewSemaphore(platform))
}

// NewChannelOn creates a Channel that posts to and waits on sem.
func NewChannelOn[T any](sem *Semaphore) *Channel[T] {
	return &Channel[T]{
		sem:  sem,
		mu:   sem.platform.NewMutex(),
		msgs: newFIFO[T](),
	}
}

// Semaphore returns the semaphore the channel posts to.
func (c *Channel[T]) Semaphore() *Semaphore {
	return c.sem
}

// Write appends msg and wakes one reader. It never blocks.
func (c *Channel[T]) Write(msg T) {
	withLock(c.mu, func() {
		c.msgs.push(msg)
	})
	c.sem.Post(NewPost(ChannelMessage))
}

// Read waits for any post. If it is a message, the message is discarded.
// Use it when only the occurrence matters.
func (c *Channel[T]) Read() EventType {
	for {
		reason := c.sem.Wait().Reason
		if reason != ChannelMessage {
			return reason
		}
		if _, ok := c.take(); ok {
			return reason
		}
	}
}

// Receive waits for a post. For ChannelMessage it returns the oldest queued
// value; any other reason is returned with the zero value and the queue is
// left as is.
func (c *Channel[T]) Receive() (T, EventType) {
	for {
		reason := c.sem.Wait().Reason
		if reason != ChannelMessage {
			var zero T
			return zero, reason
		}
		if msg, ok := c.take(); ok {
			return msg, reason
		}
	}
}

// ReceiveTimeout is Receive bounded by timeout. Spurious wake-ups shorten the
// remaining wait rather than restart it, and Timeout is returned once the
// deadline has passed with no message.
func (c *Channel[T]) ReceiveTimeout(timeout time.Duration) (T, EventType) {
	clk := c.sem.platform.Clock()
	start := clk.Now()
	remaining := timeout
	for {
		reason := c.sem.WaitTimeout(remaining).Reason
		if reason != ChannelMessage {
			var zero T
			return zero, reason
		}
		if msg, ok := c.take(); ok {
			return msg, reason
		}
		remaining = timeout - clk.Since(start)
	}
}

// Len returns the number of queued messages.
func (c *Channel[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.msgs.len()
}

// take pops the oldest message. Callers must already hold the matching
// ChannelMessage post.
func (c *Channel[T]) take() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.msgs.pop()
}
