package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "forgekeeper"

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	pipelineRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Number of finished pipeline runs by operation and outcome.",
		}, []string{"operation", "outcome"},
	)
	pipelineDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Wall time of pipeline runs.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"operation"},
	)
	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "report",
			Name:      "notifications_total",
			Help:      "Task status notifications sent to the controller.",
		}, []string{"status", "outcome"},
	)
	downloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "download",
			Name:      "requests_total",
			Help:      "Resource downloads by kind and outcome.",
		}, []string{"kind", "outcome"},
	)
	downloadBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "download",
			Name:      "bytes_total",
			Help:      "Bytes written to disk by the downloader.",
		}, []string{"kind"},
	)
	processStarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "starts_total",
			Help:      "Number of successful server process starts.",
		},
	)
	processStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "stops_total",
			Help:      "Server process terminations by cause (stop, kill, exit, shutdown).",
		}, []string{"cause"},
	)
	supervisorState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "state",
			Help:      "Supervisor state (1 = current state).",
		}, []string{"state"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{pipelineRuns, pipelineDuration, notifications, downloads, downloadBytes, processStarts, processStops, supervisorState}
	if err := registerAll(r, cs); err != nil {
		return err
	}
	regOK.Store(true)
	return nil
}

func registerAll(r prometheus.Registerer, cs []prometheus.Collector) error {
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// The helpers below no-op until Register has succeeded.

func ObservePipeline(operation string, ok bool, seconds float64) {
	if regOK.Load() {
		pipelineRuns.WithLabelValues(operation, outcome(ok)).Inc()
		pipelineDuration.WithLabelValues(operation).Observe(seconds)
	}
}

func IncNotification(status string, ok bool) {
	if regOK.Load() {
		notifications.WithLabelValues(status, outcome(ok)).Inc()
	}
}

func IncDownload(kind string, ok bool) {
	if regOK.Load() {
		downloads.WithLabelValues(kind, outcome(ok)).Inc()
	}
}

func AddDownloadBytes(kind string, n int64) {
	if regOK.Load() && n > 0 {
		downloadBytes.WithLabelValues(kind).Add(float64(n))
	}
}

func IncStart() {
	if regOK.Load() {
		processStarts.Inc()
	}
}

func IncStop(cause string) {
	if regOK.Load() {
		processStops.WithLabelValues(cause).Inc()
	}
}

// SetState marks state as the only active supervisor state among known.
func SetState(state string, known []string) {
	if !regOK.Load() {
		return
	}
	for _, s := range known {
		v := 0.0
		if s == state {
			v = 1
		}
		supervisorState.WithLabelValues(s).Set(v)
	}
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
