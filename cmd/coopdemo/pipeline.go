package main

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-coop-runner/core"
)

// producer writes 1..count to a channel, one value per tick. It ignores
// events so it only ever runs on its timer.
type producer struct {
	core.TaskBase
	ch    *core.Channel[int]
	tick  time.Duration
	next  int
	count int
}

func newProducer(ch *core.Channel[int], tick time.Duration, count int) *producer {
	return &producer{ch: ch, tick: tick, next: 1, count: count}
}

func (p *producer) TaskName() string            { return "producer" }
func (p *producer) Accepts(core.EventType) bool { return false }

func (p *producer) Run(core.Event) core.TaskState {
	p.ch.Write(p.next)
	p.next++
	if p.next > p.count {
		return core.Finished()
	}
	return core.Sleep(p.tick)
}

// received collects values read from the pipeline channel.
type received struct {
	mu     sync.Mutex
	values []int
}

func (r *received) add(v int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, v)
}

func (r *received) snapshot() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.values))
	copy(out, r.values)
	return out
}

// consume reads count values with a per-read timeout, giving up when ctx
// ends. Timeouts are logged and retried.
func consume(ctx context.Context, ch *core.Channel[int], count int, timeout time.Duration, out *received, logger core.Logger) {
	for n := 0; n < count; {
		if ctx.Err() != nil {
			return
		}
		v, reason := ch.ReceiveTimeout(timeout)
		if reason != core.ChannelMessage {
			logger.Debug("consumer wait ended without a message", core.F("reason", reason))
			continue
		}
		out.add(v)
		logger.Info("consumed", core.F("value", v))
		n++
	}
}

// pollingConsumer is the cooperative rendition of consume: it never blocks,
// it checks the channel each time it wakes.
type pollingConsumer struct {
	core.TaskBase
	ch     *core.Channel[int]
	every  time.Duration
	count  int
	out    *received
	logger core.Logger
}

func (c *pollingConsumer) TaskName() string            { return "consumer" }
func (c *pollingConsumer) Accepts(core.EventType) bool { return false }

func (c *pollingConsumer) Run(core.Event) core.TaskState {
	for c.ch.Len() > 0 {
		v, reason := c.ch.ReceiveTimeout(0)
		if reason != core.ChannelMessage {
			break
		}
		c.out.add(v)
		c.logger.Info("consumed", core.F("value", v))
		c.count--
	}
	if c.count <= 0 {
		return core.Finished()
	}
	return core.Sleep(c.every)
}
