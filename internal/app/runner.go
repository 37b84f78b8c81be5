// Package app wires the loader, registry, worker pool, progress reporting and
// final report into a single warm run.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/cache-warmer/internal/classify"
	"github.com/JakeFAU/cache-warmer/internal/clock/system"
	"github.com/JakeFAU/cache-warmer/internal/config"
	"github.com/JakeFAU/cache-warmer/internal/dispatcher"
	"github.com/JakeFAU/cache-warmer/internal/fetcher/httpfetch"
	"github.com/JakeFAU/cache-warmer/internal/id/uuid"
	"github.com/JakeFAU/cache-warmer/internal/loader"
	"github.com/JakeFAU/cache-warmer/internal/metrics"
	"github.com/JakeFAU/cache-warmer/internal/progress"
	"github.com/JakeFAU/cache-warmer/internal/progress/sinks"
	"github.com/JakeFAU/cache-warmer/internal/registry"
	"github.com/JakeFAU/cache-warmer/internal/report"
	"github.com/JakeFAU/cache-warmer/internal/warmer"
	"github.com/JakeFAU/cache-warmer/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// Runner executes one warm run.
type Runner struct {
	cfg      config.Config
	logger   *zap.Logger
	fetcher  warmer.Fetcher
	clock    warmer.Clock
	ids      warmer.IDGenerator
	out      io.Writer
	progress io.Writer
	registry *prometheus.Registry
	interval time.Duration
}

// Option customizes a Runner.
type Option func(*Runner)

// WithFetcher replaces the HTTP fetcher built from the configuration.
func WithFetcher(f warmer.Fetcher) Option {
	return func(r *Runner) { r.fetcher = f }
}

// WithClock replaces the wall clock.
func WithClock(c warmer.Clock) Option {
	return func(r *Runner) { r.clock = c }
}

// WithIDGenerator replaces the run ID generator.
func WithIDGenerator(g warmer.IDGenerator) Option {
	return func(r *Runner) { r.ids = g }
}

// WithOutput sets where the final report is written (stdout by default).
func WithOutput(w io.Writer) Option {
	return func(r *Runner) { r.out = w }
}

// WithProgressOutput sets where the progress bar is drawn (stderr by default).
func WithProgressOutput(w io.Writer) Option {
	return func(r *Runner) { r.progress = w }
}

// WithRegistry sets the Prometheus registry the run's metrics are recorded in.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(r *Runner) { r.registry = reg }
}

// WithProgressInterval sets how often the progress bar redraws.
func WithProgressInterval(d time.Duration) Option {
	return func(r *Runner) { r.interval = d }
}

// New builds a Runner for a validated configuration.
func New(cfg config.Config, logger *zap.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		cfg:      cfg,
		logger:   logger,
		clock:    system.New(),
		ids:      uuid.NewGenerator(),
		out:      os.Stdout,
		progress: os.Stderr,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.fetcher == nil {
		fc := cfg.FetcherConfig()
		fc.Logger = logger.Named("fetch")
		r.fetcher = httpfetch.New(fc)
	}
	if r.registry == nil {
		r.registry = prometheus.NewRegistry()
	}
	return r
}

// Run loads the URI list, drains it with the worker pool and writes the
// report unless quiet. Loading failures are returned before any worker starts.
// Canceling ctx stops workers from taking new resources; requests in flight
// still finish and are reported.
func (r *Runner) Run(ctx context.Context) (report.Summary, error) {
	uris, err := loader.Load(r.cfg.URIFile, r.cfg.BaseURI, r.logger)
	if err != nil {
		return report.Summary{}, err
	}
	runUUID, err := r.ids.NewRawID()
	if err != nil {
		return report.Summary{}, fmt.Errorf("run id: %w", err)
	}
	runID := progress.UUIDToBytes(runUUID)
	logger := r.logger.With(zap.String("run_id", runUUID.String()))

	reg := registry.New(uris)
	logger.Info(fmt.Sprintf("spawning %d workers to warm cache with %d URIs", r.cfg.Threads, reg.Total()),
		zap.Int("threads", r.cfg.Threads), zap.Int("uris", reg.Total()))

	promSink, err := sinks.NewPrometheusSink(r.registry)
	if err != nil {
		return report.Summary{}, fmt.Errorf("metrics: %w", err)
	}
	hub := progress.NewHub(progress.Config{Logger: logger.Named("progress")},
		sinks.NewLogSink(logger.Named("events")), promSink)

	var srv *metrics.Server
	if r.cfg.MetricsAddr != "" {
		srv, err = metrics.NewServer(r.cfg.MetricsAddr, r.registry, logger.Named("metrics"))
		if err != nil {
			r.closeHub(hub, logger)
			return report.Summary{}, err
		}
		srv.Start()
	}

	start := r.clock.Now()
	hub.Emit(progress.RunEvent(runID, progress.StageRunStart, start, 0))

	classifier := classify.New(r.cfg.CaptchaString)
	runners := make([]dispatcher.Runner, 0, r.cfg.Threads)
	for i := range r.cfg.Threads {
		runners = append(runners, worker.New(reg, r.fetcher, classifier, hub, r.clock,
			worker.Config{Index: i, Delay: r.cfg.Delay(), RunID: runID},
			logger.Named("worker").With(zap.Int("index", i))))
	}

	stopMonitor := r.startMonitor(ctx, reg)
	poolErr := dispatcher.New(runners...).Run(ctx)
	stopMonitor()

	elapsed := r.clock.Now().Sub(start)
	hub.Emit(progress.RunEvent(runID, progress.StageRunDone, start.Add(elapsed), elapsed))
	r.closeHub(hub, logger)
	if srv != nil {
		r.shutdownServer(srv, logger)
	}

	summary := report.Build(runUUID.String(), reg.Total(), reg.Done(), elapsed)
	if reg.CaptchaDetected() {
		logger.Warn("captcha detected, run stopped early", zap.String("uri", summary.CaptchaURI),
			zap.Int("processed", summary.Total), zap.Int("seeded", summary.Seeded))
	}
	logger.Info("run finished", zap.Int("processed", summary.Total), zap.Int("errors", summary.Errors),
		zap.Duration("elapsed", elapsed))

	if !r.cfg.Quiet {
		w, err := report.NewWriter(r.cfg.Format, r.out)
		if err != nil {
			return summary, errors.Join(poolErr, err)
		}
		if err := w.Write(summary); err != nil {
			return summary, errors.Join(poolErr, err)
		}
	}
	return summary, poolErr
}

// startMonitor draws the progress bar in the background and returns a func
// that stops it and waits for the final frame.
func (r *Runner) startMonitor(ctx context.Context, reg *registry.Registry) func() {
	if !r.cfg.ShowProgress() {
		return func() {}
	}
	monCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	mon := progress.NewMonitor(reg, progress.MonitorConfig{
		Total:    reg.Total(),
		Interval: r.interval,
		Out:      r.progress,
	})
	go func() {
		defer close(done)
		mon.Run(monCtx)
	}()
	return func() {
		cancel()
		<-done
	}
}

func (r *Runner) closeHub(hub *progress.Hub, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := hub.Close(ctx); err != nil {
		logger.Warn("progress hub close failed", zap.Error(err))
	}
	if dropped := hub.Dropped(); dropped > 0 {
		logger.Warn("progress events dropped", zap.Int64("dropped", dropped))
	}
}

func (r *Runner) shutdownServer(srv *metrics.Server, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("metrics server shutdown failed", zap.Error(err))
	}
}
