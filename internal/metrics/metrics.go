// Package metrics exposes Prometheus collectors for the decode engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EvaluatedTokens = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollout_evaluated_tokens_total",
		Help: "Tokens scored by the inference backend",
	})

	EvalDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rollout_eval_batch_duration_seconds",
		Help:    "Duration of one backend evaluation call",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	})

	Evictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollout_window_evictions_total",
		Help: "Sliding-window evictions triggered by overflow",
	})

	EvictedTokens = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollout_window_evicted_tokens_total",
		Help: "Tokens dropped from the front of the context window",
	})

	WindowTokens = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rollout_window_tokens",
		Help: "Tokens currently held in the context window",
	})

	SampleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rollout_sample_duration_seconds",
		Help:    "Time spent penalising and sampling one token",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
	}, []string{"strategy"})

	GeneratedTokens = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollout_generated_tokens_total",
		Help: "Tokens emitted by decode loops",
	})

	Generations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollout_generations_total",
		Help: "Finished decode loops by stop reason",
	}, []string{"stop_reason"})

	TokensPerSecond = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rollout_tokens_per_second",
		Help:    "Generation throughput per decode loop",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
	})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollout_errors_total",
		Help: "Engine errors by kind",
	}, []string{"kind"})
)

func RecordEvaluation(tokens int, duration time.Duration) {
	EvaluatedTokens.Add(float64(tokens))
	EvalDuration.Observe(duration.Seconds())
}

func RecordEviction(dropped int) {
	Evictions.Inc()
	EvictedTokens.Add(float64(dropped))
}

func RecordWindow(tokens int) {
	WindowTokens.Set(float64(tokens))
}

func RecordSample(strategy string, duration time.Duration) {
	SampleDuration.WithLabelValues(strategy).Observe(duration.Seconds())
}

// RecordGeneration is called once per finished decode loop.
func RecordGeneration(reason string, tokens int, duration time.Duration) {
	GeneratedTokens.Add(float64(tokens))
	Generations.WithLabelValues(reason).Inc()
	if s := duration.Seconds(); s > 0 && tokens > 0 {
		TokensPerSecond.Observe(float64(tokens) / s)
	}
}

func RecordError(kind string) {
	Errors.WithLabelValues(kind).Inc()
}
