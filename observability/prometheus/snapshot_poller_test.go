package prometheus

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Swind/go-coop-runner/core"
)

type processorStub struct {
	stats core.ProcessorStats
}

func (s processorStub) Stats() core.ProcessorStats { return s.stats }

type groupStub struct {
	stats []core.ProcessorStats
}

func (s groupStub) Stats() []core.ProcessorStats { return s.stats }

func TestSnapshotPoller_CollectsProcessorAndGroupStats(t *testing.T) {
	reg := prom.NewRegistry()
	mock := clock.NewMock()
	poller, err := NewSnapshotPollerWithClock(reg, 10*time.Millisecond, mock)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	poller.AddProcessor("proc-a", processorStub{stats: core.ProcessorStats{
		Name:          "proc-a",
		Mode:          "cooperative",
		Tasks:         3,
		Scheduled:     2,
		PendingEvents: 1,
		Executed:      40,
		Running:       true,
		NextWake:      mock.Now().Add(1500 * time.Millisecond),
	}})
	poller.AddGroup("workers", groupStub{stats: []core.ProcessorStats{
		{Name: "workers-0", Mode: "threaded", Tasks: 5, Panicked: 1},
		{Name: "workers-1", Mode: "threaded", Tasks: 4, Rejected: 2},
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		tasks := testutil.ToFloat64(poller.tasks.WithLabelValues("proc-a", "cooperative"))
		member := testutil.ToFloat64(poller.tasks.WithLabelValues("workers-1", "threaded"))
		return tasks == 3 && member == 4
	})

	if got := testutil.ToFloat64(poller.running.WithLabelValues("proc-a", "cooperative")); got != 1 {
		t.Fatalf("running gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.nextWake.WithLabelValues("proc-a", "cooperative")); got != 1.5 {
		t.Fatalf("next wake gauge = %v, want 1.5", got)
	}
	if got := testutil.ToFloat64(poller.panicked.WithLabelValues("workers-0", "threaded")); got != 1 {
		t.Fatalf("panicked gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.rejected.WithLabelValues("workers-1", "threaded")); got != 2 {
		t.Fatalf("rejected gauge = %v, want 2", got)
	}
}

func TestSnapshotPoller_TicksRefresh(t *testing.T) {
	reg := prom.NewRegistry()
	mock := clock.NewMock()
	poller, err := NewSnapshotPollerWithClock(reg, time.Second, mock)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	p := core.NewProcessor(&core.ProcessorConfig{Name: "live", Platform: core.NewThreadedPlatform(mock)})
	poller.AddProcessor("live", p)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		return testutil.ToFloat64(poller.tasks.WithLabelValues("live", "threaded")) == 0
	})

	if _, err := p.AddFunc(func(core.Event) core.TaskState { return core.Wait() }, core.Sleep(time.Hour)); err != nil {
		t.Fatalf("AddFunc failed: %v", err)
	}

	assertEventually(t, 2*time.Second, func() bool {
		mock.Add(time.Second)
		return testutil.ToFloat64(poller.tasks.WithLabelValues("live", "threaded")) == 1
	})
}

func TestSnapshotPoller_StartStop_Idempotent(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Start(ctx)
	poller.Start(ctx)
	poller.Stop()
	poller.Stop()
}

func assertEventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
