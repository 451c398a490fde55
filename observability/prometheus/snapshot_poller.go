package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/Swind/go-coop-runner/core"
)

// ProcessorSnapshotProvider provides current processor stats snapshots.
type ProcessorSnapshotProvider interface {
	Stats() core.ProcessorStats
}

// GroupSnapshotProvider provides stats for every member of a processor group.
type GroupSnapshotProvider interface {
	Stats() []core.ProcessorStats
}

// SnapshotPoller periodically exports processor Stats() snapshots into
// Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration
	clk      clock.Clock

	providersMu sync.RWMutex
	processors  map[string]ProcessorSnapshotProvider
	groups      map[string]GroupSnapshotProvider

	tasks         *prom.GaugeVec
	scheduled     *prom.GaugeVec
	pendingEvents *prom.GaugeVec
	pendingPosts  *prom.GaugeVec
	executed      *prom.GaugeVec
	panicked      *prom.GaugeVec
	rejected      *prom.GaugeVec
	running       *prom.GaugeVec
	nextWake      *prom.GaugeVec

	stateMu   sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewSnapshotPoller creates a snapshot poller on the wall clock and
// registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	return NewSnapshotPollerWithClock(reg, interval, clock.New())
}

// NewSnapshotPollerWithClock is NewSnapshotPoller with an explicit clock.
func NewSnapshotPollerWithClock(reg prom.Registerer, interval time.Duration, clk clock.Clock) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}
	if clk == nil {
		clk = clock.New()
	}

	labels := []string{"processor", "mode"}
	gauge := func(name, help string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "cooprunner",
			Name:      name,
			Help:      help,
		}, labels)
	}

	p := &SnapshotPoller{
		interval:      interval,
		clk:           clk,
		processors:    make(map[string]ProcessorSnapshotProvider),
		groups:        make(map[string]GroupSnapshotProvider),
		tasks:         gauge("processor_tasks", "Registered tasks per processor."),
		scheduled:     gauge("processor_scheduled", "Tasks holding a wake time per processor."),
		pendingEvents: gauge("processor_pending_events", "Events queued for delivery per processor."),
		pendingPosts:  gauge("processor_pending_posts", "Unconsumed semaphore posts per processor."),
		executed:      gauge("processor_executed_total", "Processor executed Run call count snapshot."),
		panicked:      gauge("processor_panicked_total", "Processor task panic count snapshot."),
		rejected:      gauge("processor_rejected_total", "Processor rejected registration count snapshot."),
		running:       gauge("processor_running", "Processor running state (1=running, 0=stopped)."),
		nextWake:      gauge("processor_next_wake_seconds", "Seconds until the earliest scheduled wake (0 when due or idle)."),
	}

	for _, g := range []**prom.GaugeVec{
		&p.tasks, &p.scheduled, &p.pendingEvents, &p.pendingPosts,
		&p.executed, &p.panicked, &p.rejected, &p.running, &p.nextWake,
	} {
		registered, err := registerCollector(reg, *g)
		if err != nil {
			return nil, err
		}
		*g = registered
	}
	return p, nil
}

// AddProcessor adds or replaces a processor snapshot provider by name.
func (p *SnapshotPoller) AddProcessor(name string, provider ProcessorSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "processor")
	p.providersMu.Lock()
	p.processors[name] = provider
	p.providersMu.Unlock()
}

// AddGroup adds or replaces a group snapshot provider by name. Members are
// reported under their own processor names.
func (p *SnapshotPoller) AddGroup(name string, provider GroupSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "group")
	p.providersMu.Lock()
	p.groups[name] = provider
	p.providersMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.isRunning {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.isRunning = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.isRunning {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.isRunning = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := p.clk.Ticker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.providersMu.RLock()
	defer p.providersMu.RUnlock()

	for name, provider := range p.processors {
		p.export(name, provider.Stats())
	}
	for _, provider := range p.groups {
		for _, stats := range provider.Stats() {
			p.export(normalizeLabel(stats.Name, "processor"), stats)
		}
	}
}

func (p *SnapshotPoller) export(name string, stats core.ProcessorStats) {
	mode := normalizeLabel(stats.Mode, "unknown")
	p.tasks.WithLabelValues(name, mode).Set(float64(stats.Tasks))
	p.scheduled.WithLabelValues(name, mode).Set(float64(stats.Scheduled))
	p.pendingEvents.WithLabelValues(name, mode).Set(float64(stats.PendingEvents))
	p.pendingPosts.WithLabelValues(name, mode).Set(float64(stats.PendingPosts))
	p.executed.WithLabelValues(name, mode).Set(float64(stats.Executed))
	p.panicked.WithLabelValues(name, mode).Set(float64(stats.Panicked))
	p.rejected.WithLabelValues(name, mode).Set(float64(stats.Rejected))
	if stats.Running {
		p.running.WithLabelValues(name, mode).Set(1)
	} else {
		p.running.WithLabelValues(name, mode).Set(0)
	}

	var wait time.Duration
	if !stats.NextWake.IsZero() {
		wait = max(stats.NextWake.Sub(p.clk.Now()), 0)
	}
	p.nextWake.WithLabelValues(name, mode).Set(wait.Seconds())
}
