// Package worker implements the fetch loop that drains the registry.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/cache-warmer/internal/classify"
	"github.com/JakeFAU/cache-warmer/internal/progress"
	"github.com/JakeFAU/cache-warmer/internal/warmer"
)

// Config controls Worker behavior.
type Config struct {
	// Index identifies the worker in logs and progress events.
	Index int
	// Delay is slept after every request by this worker only.
	Delay time.Duration
	// RunID tags emitted progress events.
	RunID [16]byte
}

// Worker pops resources, fetches them, classifies the response and records
// the result until the registry is empty or a stop signal is seen.
type Worker struct {
	registry   warmer.Registry
	fetcher    warmer.Fetcher
	classifier *classify.Classifier
	emitter    progress.Emitter
	clock      warmer.Clock
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Worker. A nil emitter or logger is replaced by a no-op.
func New(
	registry warmer.Registry,
	fetcher warmer.Fetcher,
	classifier *classify.Classifier,
	emitter progress.Emitter,
	clock warmer.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if emitter == nil {
		emitter = progress.NopEmitter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		registry:   registry,
		fetcher:    fetcher,
		classifier: classifier,
		emitter:    emitter,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run blocks until there is no work left, the captcha signal is raised or
// ctx is canceled. Both stop signals are checked once per iteration, so a
// request already in flight always completes.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			w.logger.Debug("worker stopping: context done")
			return
		}
		if w.registry.CaptchaDetected() {
			w.logger.Debug("worker stopping: captcha detected")
			return
		}
		res, ok := w.registry.Pop()
		if !ok {
			w.logger.Debug("worker stopping: no resources left")
			return
		}

		res = w.processRecovered(ctx, res)
		if err := w.registry.Complete(res); err != nil {
			w.logger.Error("complete resource failed", zap.String("uri", res.URI), zap.Error(err))
		}
		w.emitter.Emit(progress.ResourceEvent(w.cfg.RunID, w.cfg.Index, res, w.clock.Now()))

		if !w.pause(ctx) {
			return
		}
	}
}

// processRecovered runs process and turns a panic into a failed resource so
// the popped resource still reaches done.
func (w *Worker) processRecovered(ctx context.Context, res warmer.Resource) (out warmer.Resource) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("panic while processing resource", zap.String("uri", res.URI),
				zap.Any("panic", r), zap.Stack("stack"))
			out = res
			out.Fail(fmt.Errorf("panic: %v", r))
		}
	}()
	return w.process(ctx, res)
}

// process fetches and classifies a single resource. Cancellation of ctx does
// not abort the request.
func (w *Worker) process(ctx context.Context, res warmer.Resource) warmer.Resource {
	resp, err := w.fetcher.Fetch(context.WithoutCancel(ctx), warmer.FetchRequest{URI: res.URI})
	if err != nil {
		res.Fail(err)
		w.logger.Warn("request failed", zap.String("uri", res.URI), zap.Error(err),
			zap.Bool("transport", errors.Is(err, warmer.ErrTransport)))
		return res
	}

	res.Apply(w.classifier.ClassifyResponse(resp))
	res.Bytes = int64(len(resp.Body))
	res.Duration = resp.Duration
	if res.CaptchaFound {
		w.logger.Warn("captcha marker found in response body, stopping", zap.String("uri", res.URI))
	}
	return res
}

// pause sleeps for the configured delay. It reports false if ctx ended first.
func (w *Worker) pause(ctx context.Context) bool {
	if w.cfg.Delay <= 0 {
		return true
	}
	timer := time.NewTimer(w.cfg.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
