package core

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// Post is a typed wake-up notification. Reason tells the waiter why it woke;
// Target optionally names the task the wake-up is meant for. Target is only
// an ID and never keeps the task alive.
type Post struct {
	Reason EventType
	Target TaskID
}

// NewPost returns an untargeted Post with the given reason.
func NewPost(reason EventType) Post {
	return Post{Reason: reason}
}

// PostFor returns a Post routed to the task with the given ID.
func PostFor(target TaskID, reason EventType) Post {
	return Post{Reason: reason, Target: target}
}

// Semaphore is a counting wait/signal primitive whose signals carry a reason.
// Posts are delivered in FIFO order, each to exactly one waiter.
//
// On a threaded Platform waiters block on a private channel and consume no
// CPU while idle. On a cooperative Platform Wait polls the queue and calls
// Platform.Idle between polls.
type Semaphore struct {
	platform Platform
	mu       Mutex
	posts    fifo[Post]

	// waiters holds one buffered channel per blocked goroutine, oldest first.
	waiters []chan struct{}
}

// NewSemaphore creates a Semaphore. A nil platform means DefaultPlatform.
func NewSemaphore(platform Platform) *Semaphore {
	if platform == nil {
		platform = DefaultPlatform()
	}
	return &Semaphore{
		platform: platform,
		mu:       platform.NewMutex(),
		posts:    newFIFO[Post](),
	}
}

// Post enqueues p and wakes the oldest blocked waiter, if any. It never
// blocks.
func (s *Semaphore) Post(p Post) {
	s.mu.Lock()
	s.posts.push(p)
	var w chan struct{}
	if len(s.waiters) > 0 {
		w = s.waiters[0]
		s.waiters[0] = nil
		s.waiters = s.waiters[1:]
	}
	s.mu.Unlock()

	if w != nil {
		w <- struct{}{} // buffered, receiver is removed from the list first
	}
}

// Signal posts the default SemaphorePost reason.
func (s *Semaphore) Signal() {
	s.Post(NewPost(SemaphorePost))
}

// PopPost removes and returns the oldest post without blocking.
func (s *Semaphore) PopPost() (Post, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.posts.pop()
}

// HasPosts reports whether any post is pending.
func (s *Semaphore) HasPosts() bool {
	return s.Len() > 0
}

// Len returns the number of pending posts.
func (s *Semaphore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.posts.len()
}

// Wait blocks until a post is pending and returns it.
func (s *Semaphore) Wait() Post {
	p, _ := s.wait(context.Background(), time.Time{}, false)
	return p
}

// WaitTimeout is Wait bounded by timeout. When no post arrives in time it
// returns a Post with reason Timeout and leaves the queue untouched.
// A non-positive timeout polls once.
func (s *Semaphore) WaitTimeout(timeout time.Duration) Post {
	deadline := s.platform.Clock().Now().Add(timeout)
	p, _ := s.wait(context.Background(), deadline, true)
	return p
}

// WaitContext is Wait that gives up when ctx is done.
func (s *Semaphore) WaitContext(ctx context.Context) (Post, error) {
	return s.wait(ctx, time.Time{}, false)
}

func (s *Semaphore) wait(ctx context.Context, deadline time.Time, bounded bool) (Post, error) {
	if !s.platform.Threaded() {
		return s.poll(ctx, deadline, bounded)
	}

	clk := s.platform.Clock()
	for {
		s.mu.Lock()
		if p, ok := s.posts.pop(); ok {
			s.mu.Unlock()
			return p, nil
		}

		var remaining time.Duration
		if bounded {
			remaining = deadline.Sub(clk.Now())
			if remaining <= 0 {
				s.mu.Unlock()
				return NewPost(Timeout), nil
			}
		}

		w := make(chan struct{}, 1)
		s.waiters = append(s.waiters, w)
		s.mu.Unlock()

		var (
			timer   *clock.Timer
			expired <-chan time.Time
		)
		if bounded {
			timer = clk.Timer(remaining)
			expired = timer.C
		}

		woken := false
		select {
		case <-w:
			woken = true
		case <-expired:
		case <-ctx.Done():
		}
		if timer != nil {
			timer.Stop()
		}
		if woken {
			// A post was queued for us, but a fast-path caller may take it
			// first. Loop and look again.
			continue
		}

		// Gave up waiting. If a post raced in, deliver it rather than
		// leave it behind for nobody.
		s.mu.Lock()
		s.removeWaiterLocked(w)
		p, ok := s.posts.pop()
		s.mu.Unlock()
		if ok {
			return p, nil
		}
		if err := ctx.Err(); err != nil {
			return Post{}, err
		}
		return NewPost(Timeout), nil
	}
}

// poll is the single-context wait: nobody else can post while we hold
// control, so hand it to the platform between checks.
func (s *Semaphore) poll(ctx context.Context, deadline time.Time, bounded bool) (Post, error) {
	clk := s.platform.Clock()
	for {
		if p, ok := s.PopPost(); ok {
			return p, nil
		}
		if err := ctx.Err(); err != nil {
			return Post{}, err
		}
		if bounded && !clk.Now().Before(deadline) {
			return NewPost(Timeout), nil
		}
		s.platform.Idle()
	}
}

func (s *Semaphore) removeWaiterLocked(w chan struct{}) {
	for i, c := range s.waiters {
		if c == w {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return
		}
	}
}
