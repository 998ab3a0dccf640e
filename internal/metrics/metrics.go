// Package metrics holds the Prometheus collectors for a download or convert
// run. A one-shot CLI has no scrape endpoint, so the registry is flushed to
// a node-exporter textfile at exit.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RPCCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "book2pdf",
		Name:      "rpc_calls_total",
		Help:      "Remote renderer calls by operation and outcome.",
	}, []string{"op", "outcome"})

	RPCDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "book2pdf",
		Name:      "rpc_duration_seconds",
		Help:      "Remote renderer call latency in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10},
	}, []string{"op"})

	HeartbeatsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "book2pdf",
		Name:      "heartbeats_answered_total",
		Help:      "Server pings answered while awaiting a response.",
	})

	PagesDownloaded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "book2pdf",
		Name:      "pages_downloaded_total",
		Help:      "Page fragments persisted to disk.",
	})

	PagesRendered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "book2pdf",
		Name:      "pages_rendered_total",
		Help:      "Render jobs by outcome (rendered, skipped, failed).",
	}, []string{"outcome"})

	RenderDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "book2pdf",
		Name:      "render_duration_seconds",
		Help:      "Per-page headless render duration in seconds.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	RenderInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "book2pdf",
		Name:      "render_in_flight",
		Help:      "Render jobs currently holding a browser tab.",
	})

	MergeWarningsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "book2pdf",
		Name:      "merge_warnings_total",
		Help:      "Rendered parts that could not be appended to the merged document.",
	})
)

// Register adds every collector to reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		RPCCallsTotal,
		RPCDuration,
		HeartbeatsTotal,
		PagesDownloaded,
		PagesRendered,
		RenderDuration,
		RenderInFlight,
		MergeWarningsTotal,
	)
}

// WriteTextfile registers the collectors on a fresh registry and writes it
// to path in the text exposition format. An empty path is a no-op.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	reg := prometheus.NewRegistry()
	Register(reg)
	return prometheus.WriteToTextfile(path, reg)
}
