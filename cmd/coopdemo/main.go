// Command coopdemo runs the cooperative scheduler demo: an App task redrawing
// on a frame timer and quitting on Escape/Q, next to a producer/consumer
// channel pipeline.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/Swind/go-coop-runner/core"
	"github.com/Swind/go-coop-runner/internal/config"
	"github.com/Swind/go-coop-runner/internal/otel"
	obs "github.com/Swind/go-coop-runner/observability/prometheus"
)

func main() {
	if err := newCLI().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCLI() *cli.App {
	return &cli.App{
		Name:  "coopdemo",
		Usage: "Run the cooperative task scheduler demo",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML config file",
			},
			&cli.StringFlag{
				Name:    "mode",
				Aliases: []string{"m"},
				Usage:   "threaded or cooperative",
			},
			&cli.IntFlag{
				Name:    "processors",
				Aliases: []string{"n"},
				Usage:   "worker processors in threaded mode",
			},
			&cli.DurationFlag{
				Name:    "duration",
				Aliases: []string{"d"},
				Usage:   "quit after this long (0 waits for Escape/Q on stdin)",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "serve Prometheus metrics on this address",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn, error or off",
			},
			&cli.BoolFlag{
				Name:  "no-stdin",
				Usage: "do not read key presses from stdin",
			},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	// 1. Load config, then let flags win
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if c.IsSet("mode") {
		cfg.Mode = c.String("mode")
	}
	if c.IsSet("processors") {
		cfg.Processors = c.Int("processors")
	}
	if c.IsSet("metrics-addr") {
		cfg.MetricsAddr = c.String("metrics-addr")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if d := c.Duration("duration"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	// 2. Wire observability
	shutdownTracing, err := otel.Setup(ctx, "coopdemo")
	if err != nil {
		return cli.Exit(fmt.Sprintf("tracing: %v", err), 1)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	d := newDemo(cfg, uuid.NewString())
	d.tracer = otel.Tracer()
	if cfg.MetricsAddr != "" {
		stopMetrics, err := serveMetrics(ctx, d, cfg.MetricsAddr)
		if err != nil {
			return cli.Exit(fmt.Sprintf("metrics: %v", err), 1)
		}
		defer stopMetrics()
	}

	if !c.Bool("no-stdin") {
		go readKeys(c.App.Reader, d.input, d.logger)
	}

	// 3. Run
	result, err := d.run(ctx)
	printSummary(c.App.Writer, d.runID, result)

	var perr *core.TaskPanicError
	if errors.As(err, &perr) {
		return cli.Exit(fmt.Sprintf("task %s panicked on %s: %v", perr.TaskName, perr.Processor, perr.Value), 2)
	}
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return nil
}

// serveMetrics registers the exporter and snapshot poller on a fresh
// registry and serves it until the returned stop function is called.
func serveMetrics(ctx context.Context, d *demo, addr string) (func(), error) {
	reg := prom.NewRegistry()
	exporter, err := obs.NewMetricsExporter("cooprunner", reg, obs.ExporterOptions{})
	if err != nil {
		return nil, err
	}
	poller, err := obs.NewSnapshotPoller(reg, 500*time.Millisecond)
	if err != nil {
		return nil, err
	}
	d.metrics = exporter
	d.poller = poller
	poller.Start(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("metrics server failed", core.F("addr", addr), core.F("error", err))
		}
	}()
	d.logger.Info("metrics endpoint up", core.F("url", "http://"+addr+"/metrics"))

	return func() {
		poller.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}, nil
}

func printSummary(w io.Writer, runID string, s summary) {
	fmt.Fprintf(w, "run %s\n", runID)
	fmt.Fprintf(w, "  frames drawn: %d\n", s.Frames)
	fmt.Fprintf(w, "  consumed:     %v\n", s.Consumed)
	for _, st := range s.Stats {
		fmt.Fprintf(w, "  %-20s %-11s executed=%d panicked=%d tasks=%d\n",
			st.Name, st.Mode, st.Executed, st.Panicked, st.Tasks)
	}
}
