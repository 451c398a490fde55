package core

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

// TestChannel_DeliversInWriteOrder verifies FIFO delivery
// Given: A channel with 1, 2, 3 written in order
// When: Receive is called three times
// Then: The values come back as 1, 2, 3 with ChannelMessage reasons
func TestChannel_DeliversInWriteOrder(t *testing.T) {
	// Arrange
	ch := NewChannel[int](nil)
	for i := 1; i <= 3; i++ {
		ch.Write(i)
	}

	// Act and Assert
	for want := 1; want <= 3; want++ {
		got, reason := ch.Receive()
		if reason != ChannelMessage {
			t.Fatalf("reason = %v, want ChannelMessage", reason)
		}
		if got != want {
			t.Fatalf("got %d, want %d", got, want)
		}
	}
	if ch.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", ch.Len())
	}
}

// TestChannel_ReadDiscardsMessage verifies Read consumes without delivering
// Given: A channel holding "a" and "b"
// When: Read is called once
// Then: "a" is discarded and the next Receive returns "b"
func TestChannel_ReadDiscardsMessage(t *testing.T) {
	// Arrange
	ch := NewChannel[string](nil)
	ch.Write("a")
	ch.Write("b")

	// Act
	reason := ch.Read()

	// Assert
	if reason != ChannelMessage {
		t.Fatalf("Read() = %v, want ChannelMessage", reason)
	}
	if got, _ := ch.Receive(); got != "b" {
		t.Fatalf("Receive() = %q, want %q", got, "b")
	}
}

// TestChannel_ForeignReasonLeavesQueue verifies foreign posts on a shared semaphore
// Given: A channel sharing its semaphore, with a QuitEvent posted before a message
// When: Receive is called
// Then: QuitEvent is returned with the zero value and the message stays queued
func TestChannel_ForeignReasonLeavesQueue(t *testing.T) {
	// Arrange
	sem := NewSemaphore(nil)
	ch := NewChannelOn[int](sem)
	sem.Post(NewPost(QuitEvent))
	ch.Write(7)

	// Act
	got, reason := ch.Receive()

	// Assert
	if reason != QuitEvent || got != 0 {
		t.Fatalf("Receive() = %d, %v; want 0, QuitEvent", got, reason)
	}
	if ch.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", ch.Len())
	}
	if got, reason := ch.Receive(); got != 7 || reason != ChannelMessage {
		t.Fatalf("second Receive() = %d, %v; want 7, ChannelMessage", got, reason)
	}
}

// TestChannel_SpuriousWakesThenMessage verifies spurious message posts are waited out
// Given: Three ChannelMessage posts with no queued value behind them
// When: ReceiveTimeout(500ms) runs and a real message is written after 30ms
// Then: The real message is returned rather than a timeout
func TestChannel_SpuriousWakesThenMessage(t *testing.T) {
	// Arrange
	sem := NewSemaphore(nil)
	ch := NewChannelOn[int](sem)
	for range 3 {
		sem.Post(NewPost(ChannelMessage))
	}
	go func() {
		time.Sleep(30 * time.Millisecond)
		ch.Write(99)
	}()

	// Act
	got, reason := ch.ReceiveTimeout(500 * time.Millisecond)

	// Assert
	if reason != ChannelMessage || got != 99 {
		t.Fatalf("ReceiveTimeout() = %d, %v; want 99, ChannelMessage", got, reason)
	}
}

// TestChannel_SpuriousWakesDoNotExtendDeadline verifies timeout monotonicity
// Given: A goroutine posting spurious ChannelMessage wake-ups every 10ms
// When: ReceiveTimeout(60ms) runs with no real message
// Then: Timeout is returned once, no earlier than 60ms and well before the spurious stream ends
func TestChannel_SpuriousWakesDoNotExtendDeadline(t *testing.T) {
	// Arrange
	sem := NewSemaphore(nil)
	ch := NewChannelOn[int](sem)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				sem.Post(NewPost(ChannelMessage))
			}
		}
	}()

	// Act
	start := time.Now()
	_, reason := ch.ReceiveTimeout(60 * time.Millisecond)
	elapsed := time.Since(start)

	// Assert
	if reason != Timeout {
		t.Fatalf("reason = %v, want Timeout", reason)
	}
	if elapsed < 60*time.Millisecond {
		t.Fatalf("timed out early after %v", elapsed)
	}
	if elapsed > 500*time.Millisecond {
		t.Fatalf("spurious wakes extended the deadline: returned after %v", elapsed)
	}
}

// TestChannel_ConcurrentReadersNoDuplicates verifies no value is delivered twice
// Given: 4 readers and one writer of 400 distinct values
// When: The readers drain the channel concurrently
// Then: Every value is received exactly once
func TestChannel_ConcurrentReadersNoDuplicates(t *testing.T) {
	// Arrange
	const readers, total = 4, 400
	ch := NewChannel[int](nil)
	out := make(chan int, total)

	var wg sync.WaitGroup
	for range readers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				v, reason := ch.ReceiveTimeout(200 * time.Millisecond)
				if reason == Timeout {
					return
				}
				out <- v
			}
		}()
	}

	// Act
	for i := range total {
		ch.Write(i)
	}
	wg.Wait()
	close(out)

	// Assert
	seen := make(map[int]bool, total)
	for v := range out {
		if seen[v] {
			t.Fatalf("value %d received twice", v)
		}
		seen[v] = true
	}
	if len(seen) != total {
		t.Fatalf("received %d values, want %d", len(seen), total)
	}
}

// TestChannel_CooperativeReceiveTimeout verifies the channel on the threadless platform
// Given: A cooperative platform whose idle hook advances a mock clock and writes on the 4th call
// When: ReceiveTimeout(100ms) is called
// Then: The written value is returned after 40ms of mock time
func TestChannel_CooperativeReceiveTimeout(t *testing.T) {
	// Arrange
	mock := clock.NewMock()
	start := mock.Now()
	var ch *Channel[string]
	idles := 0
	platform := NewCooperativePlatform(mock, func() {
		idles++
		mock.Add(10 * time.Millisecond)
		if idles == 4 {
			ch.Write("tick")
		}
	})
	ch = NewChannel[string](platform)

	// Act
	got, reason := ch.ReceiveTimeout(100 * time.Millisecond)

	// Assert
	if reason != ChannelMessage || got != "tick" {
		t.Fatalf("ReceiveTimeout() = %q, %v; want tick, ChannelMessage", got, reason)
	}
	if elapsed := mock.Since(start); elapsed != 40*time.Millisecond {
		t.Fatalf("mock elapsed = %v, want 40ms", elapsed)
	}
}
