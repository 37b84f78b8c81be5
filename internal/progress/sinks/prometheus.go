package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/cache-warmer/internal/progress"
)

// PrometheusSink exports per-run warm-up counters.
type PrometheusSink struct {
	runsStarted    prometheus.Counter
	runDuration    prometheus.Histogram
	resources      *prometheus.CounterVec
	captchaHits    prometheus.Counter
	fetchBytes     *prometheus.CounterVec
	fetchDuration  *prometheus.HistogramVec
	transportFails *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_warmer_runs_started_total",
			Help: "Warm runs started.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_warmer_run_duration_seconds",
			Help:    "Wall time per finished warm run.",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600},
		}),
		resources: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_warmer_resources_total",
			Help: "Finished resources partitioned by cache status and HTTP status class.",
		}, []string{"cache_status", "status_class"}),
		captchaHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_warmer_captcha_hits_total",
			Help: "Responses whose body contained the captcha marker.",
		}),
		fetchBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_warmer_fetch_bytes_total",
			Help: "Decoded bytes downloaded per site.",
		}, []string{"site"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cache_warmer_fetch_duration_seconds",
			Help:    "Fetch duration partitioned by cache status.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"cache_status"}),
		transportFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_warmer_transport_errors_total",
			Help: "Requests that failed before a response was read, per site.",
		}, []string{"site"}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runDuration,
		s.resources,
		s.captchaHits,
		s.fetchBytes,
		s.fetchDuration,
		s.transportFails,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsStarted.Inc()
		case progress.StageRunDone:
			if evt.Dur > 0 {
				s.runDuration.Observe(evt.Dur.Seconds())
			}
		case progress.StageResourceDone, progress.StageResourceError:
			s.observeResource(evt)
		}
	}
	return nil
}

func (s *PrometheusSink) observeResource(evt progress.Event) {
	site := evt.Site
	if site == "" {
		site = "unknown"
	}
	s.resources.WithLabelValues(string(evt.CacheStatus), string(evt.StatusClass)).Inc()
	if evt.Stage == progress.StageResourceError {
		s.transportFails.WithLabelValues(site).Inc()
		return
	}
	if evt.Captcha {
		s.captchaHits.Inc()
	}
	if evt.Bytes > 0 {
		s.fetchBytes.WithLabelValues(site).Add(float64(evt.Bytes))
	}
	if evt.Dur > 0 {
		s.fetchDuration.WithLabelValues(string(evt.CacheStatus)).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
