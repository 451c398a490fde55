package main

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	cooprunner "github.com/Swind/go-coop-runner"
	"github.com/Swind/go-coop-runner/core"
	"github.com/Swind/go-coop-runner/internal/config"
	obs "github.com/Swind/go-coop-runner/observability/prometheus"
)

const (
	pipelineValues  = 3
	consumerTimeout = 100 * time.Millisecond
)

// demo wires the App task and the channel pipeline onto processors built
// from a Config.
type demo struct {
	cfg     config.Config
	runID   string
	clk     clock.Clock
	logger  core.Logger
	metrics core.Metrics
	tracer  trace.Tracer
	poller  *obs.SnapshotPoller

	// input carries key and quit events into the App's processor. It lives
	// on a threaded platform so any goroutine may push to it.
	input *core.EventQueue
}

// summary reports what a run did.
type summary struct {
	Frames   int64
	Consumed []int
	Stats    []core.ProcessorStats
}

func newDemo(cfg config.Config, runID string) *demo {
	clk := clock.New()
	input := core.NewEventQueue(core.NewThreadedPlatform(clk))
	input.Subscribe(core.KeyDownEvent, core.KeyUpEvent, core.QuitEvent)
	return &demo{
		cfg:    cfg,
		runID:  runID,
		clk:    clk,
		logger: cfg.Logger(),
		input:  input,
	}
}

func (d *demo) processorConfig(name string, platform core.Platform, source core.EventSource) *core.ProcessorConfig {
	pc := d.cfg.ProcessorConfig(name, platform)
	pc.EventSource = source
	pc.Metrics = d.metrics
	pc.Tracer = d.tracer
	return pc
}

// run blocks until the App quits, ctx ends, or a task panics.
func (d *demo) run(ctx context.Context) (summary, error) {
	d.logger.Info("run starting",
		core.F("run_id", d.runID), core.F("mode", d.cfg.Mode), core.F("processors", d.cfg.Processors))

	// Quit through the App so both modes shut down the same way.
	go func() {
		<-ctx.Done()
		d.input.Push(core.NewEvent(core.QuitEvent))
	}()

	if d.cfg.Mode == config.ModeCooperative {
		return d.runCooperative()
	}
	return d.runThreaded(ctx)
}

func (d *demo) runThreaded(ctx context.Context) (summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	platform := d.cfg.Platform(d.clk, nil)
	app := newApp(d.cfg.FrameInterval, d.logger, cancel)
	app.AddDrawable(&spinner{})

	appProc := core.NewProcessor(d.processorConfig(d.cfg.Name+"-app", platform, d.input))
	workers := cooprunner.NewProcessorGroup(d.cfg.Name, d.cfg.Processors, d.processorConfig("", platform, nil))
	ch := core.NewChannel[int](platform)

	if _, err := appProc.AddTask(app, core.Continue()); err != nil {
		return summary{}, err
	}
	if _, _, err := workers.AddTask(newProducer(ch, d.cfg.FrameInterval, pipelineValues), core.Continue()); err != nil {
		return summary{}, err
	}
	if d.poller != nil {
		d.poller.AddProcessor(appProc.Name(), appProc)
		d.poller.AddGroup(workers.ID(), workers)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	if err := appProc.Start(); err != nil {
		return summary{}, err
	}
	if err := workers.Start(egCtx); err != nil {
		appProc.Stop()
		return summary{}, err
	}

	out := &received{}
	eg.Go(func() error {
		<-egCtx.Done()
		appProc.Stop()
		return nil
	})
	eg.Go(appProc.Done)
	eg.Go(workers.Join)
	eg.Go(func() error {
		consume(egCtx, ch, pipelineValues, consumerTimeout, out, d.logger)
		return nil
	})
	err := eg.Wait()

	return summary{
		Frames:   app.Frames(),
		Consumed: out.snapshot(),
		Stats:    append([]core.ProcessorStats{appProc.Stats()}, workers.Stats()...),
	}, err
}

func (d *demo) runCooperative() (summary, error) {
	var p *core.Processor
	idle := func() { d.clk.Sleep(200 * time.Microsecond) }
	platform := d.cfg.Platform(d.clk, idle)

	app := newApp(d.cfg.FrameInterval, d.logger, func() { p.Stop() })
	app.AddDrawable(&spinner{})

	p = core.NewProcessor(d.processorConfig(d.cfg.Name, platform, d.input))
	ch := core.NewChannel[int](platform)
	out := &received{}

	if _, err := p.AddTask(app, core.Continue()); err != nil {
		return summary{}, err
	}
	if _, err := p.AddTask(newProducer(ch, d.cfg.FrameInterval, pipelineValues), core.Continue()); err != nil {
		return summary{}, err
	}
	if _, err := p.AddTask(&pollingConsumer{
		ch:     ch,
		every:  d.cfg.FrameInterval,
		count:  pipelineValues,
		out:    out,
		logger: d.logger,
	}, core.Continue()); err != nil {
		return summary{}, err
	}
	if d.poller != nil {
		d.poller.AddProcessor(p.Name(), p)
	}

	err := p.Start()
	return summary{
		Frames:   app.Frames(),
		Consumed: out.snapshot(),
		Stats:    []core.ProcessorStats{p.Stats()},
	}, err
}

// readKeys turns lines of r into key presses: a key name ("q", "escape",
// "space") becomes KeyDown, "quit" becomes QuitEvent. It returns at EOF.
func readKeys(r io.Reader, input *core.EventQueue, logger core.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if line == "" {
			continue
		}
		if line == "quit" {
			input.Push(core.NewEvent(core.QuitEvent))
			continue
		}
		if line == "esc" {
			line = "escape"
		}
		key, ok := core.ParseKey(line)
		if !ok {
			logger.Warn("unknown key", core.F("input", line))
			continue
		}
		input.Push(core.NewKeyEvent(core.KeyDownEvent, key))
	}
}
