package cooprunner

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Swind/go-coop-runner/core"
)

// ProcessorGroup runs a fixed set of threaded processors, each on its own
// goroutine. Tasks added through the group go to the least loaded member.
// The first task panic in any member stops the whole group.
type ProcessorGroup struct {
	id         string
	processors []*core.Processor

	mu      sync.Mutex
	started bool
	running bool
	cancel  context.CancelFunc
	eg      *errgroup.Group
	// stopped is closed once the goroutine relaying cancellation exits.
	stopped chan struct{}
}

// NewProcessorGroup creates a stopped group of size processors named
// "<id>-<n>". config is copied for every member; a cooperative platform is
// replaced by a threaded one over the same clock.
func NewProcessorGroup(id string, size int, config *core.ProcessorConfig) *ProcessorGroup {
	if size < 1 {
		size = 1
	}
	g := &ProcessorGroup{
		id:         id,
		processors: make([]*core.Processor, size),
	}
	for i := range g.processors {
		cfg := core.ProcessorConfig{}
		if config != nil {
			cfg = *config
		}
		cfg.Name = fmt.Sprintf("%s-%d", id, i)
		if cfg.Platform != nil && !cfg.Platform.Threaded() {
			cfg.Platform = core.NewThreadedPlatform(cfg.Platform.Clock())
		}
		g.processors[i] = core.NewProcessor(&cfg)
	}
	return g
}

// Start starts every processor. The group stops when ctx is canceled, when
// Stop is called, or when a member ends with a task panic. A group can be
// started once.
func (g *ProcessorGroup) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.started {
		return core.ErrProcessorStarted
	}
	g.started = true
	g.running = true

	ctx, g.cancel = context.WithCancel(ctx)
	eg, egCtx := errgroup.WithContext(ctx)
	for i, p := range g.processors {
		if err := p.Start(); err != nil {
			for _, started := range g.processors[:i] {
				started.Stop()
			}
			_ = eg.Wait()
			g.cancel()
			g.running = false
			return fmt.Errorf("start %s: %w", p.Name(), err)
		}
		eg.Go(p.Done)
	}
	g.eg = eg

	g.stopped = make(chan struct{})
	go func() {
		defer close(g.stopped)
		<-egCtx.Done()
		for _, p := range g.processors {
			p.Stop()
		}
	}()
	return nil
}

// Stop stops every processor and waits for them to exit.
func (g *ProcessorGroup) Stop() error {
	g.mu.Lock()
	cancel := g.cancel
	g.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return g.Join()
}

// Join waits for every processor to exit and returns the first task panic
// that ended one of them.
func (g *ProcessorGroup) Join() error {
	g.mu.Lock()
	eg, cancel, stopped := g.eg, g.cancel, g.stopped
	g.mu.Unlock()

	if eg == nil {
		return nil
	}
	err := eg.Wait()
	// Members may all have stopped on their own; release the relay.
	cancel()
	<-stopped

	g.mu.Lock()
	g.running = false
	g.mu.Unlock()
	return err
}

// ID returns the ID of the group
func (g *ProcessorGroup) ID() string {
	return g.id
}

// IsRunning returns whether the group is running
func (g *ProcessorGroup) IsRunning() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// Size returns the number of processors
func (g *ProcessorGroup) Size() int {
	return len(g.processors)
}

// Processors returns the members in name order.
func (g *ProcessorGroup) Processors() []*core.Processor {
	out := make([]*core.Processor, len(g.processors))
	copy(out, g.processors)
	return out
}

// Pick returns the member with the fewest registered tasks, preferring the
// lower index on ties.
func (g *ProcessorGroup) Pick() *core.Processor {
	best := g.processors[0]
	bestCount := best.TaskCount()
	for _, p := range g.processors[1:] {
		if n := p.TaskCount(); n < bestCount {
			best, bestCount = p, n
		}
	}
	return best
}

// AddTask registers task on the least loaded member.
func (g *ProcessorGroup) AddTask(task core.Task, state core.TaskState) (core.TaskID, *core.Processor, error) {
	p := g.Pick()
	id, err := p.AddTask(task, state)
	return id, p, err
}

// AddFunc registers fn on the least loaded member.
func (g *ProcessorGroup) AddFunc(fn func(core.Event) core.TaskState, state core.TaskState) (core.TaskID, *core.Processor, error) {
	p := g.Pick()
	id, err := p.AddFunc(fn, state)
	return id, p, err
}

// Stats returns a snapshot of every member.
func (g *ProcessorGroup) Stats() []core.ProcessorStats {
	out := make([]core.ProcessorStats, 0, len(g.processors))
	for _, p := range g.processors {
		out = append(out, p.Stats())
	}
	return out
}

// =============================================================================
// Global Processor Group Helper (Singleton)
// =============================================================================

var (
	globalGroup *ProcessorGroup
	globalMu    sync.Mutex
)

// InitGlobalGroup initializes the global group with size processors and
// starts it. Calling it again is a no-op.
func InitGlobalGroup(size int) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalGroup != nil {
		return nil // Already initialized
	}

	group := NewProcessorGroup("global", size, nil)
	if err := group.Start(context.Background()); err != nil {
		return fmt.Errorf("init global group: %w", err)
	}
	globalGroup = group
	return nil
}

// GetGlobalGroup returns the global group instance.
// It panics if InitGlobalGroup has not been called.
func GetGlobalGroup() *ProcessorGroup {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalGroup == nil {
		panic("global processor group not initialized. Call InitGlobalGroup() first.")
	}
	return globalGroup
}

// ShutdownGlobalGroup stops the global group and returns the first task
// panic it saw.
func ShutdownGlobalGroup() error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalGroup == nil {
		return nil
	}
	err := globalGroup.Stop()
	globalGroup = nil
	return err
}

// AddFunc registers fn on the global group.
func AddFunc(fn func(Event) TaskState, state TaskState) (TaskID, error) {
	id, _, err := GetGlobalGroup().AddFunc(fn, state)
	return id, err
}
