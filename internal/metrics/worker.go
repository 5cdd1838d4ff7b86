// Package metrics wraps per-process Prometheus registries for the worker
// and monitor binaries. Each binary owns its own registry rather than
// registering against the global DefaultRegisterer, so multiple workers
// can run in the same test process without collector collisions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Worker exposes the counters a worker process reports at /metrics:
// lines_emitted_total, bytes_emitted_total, lines_dropped_total,
// http_errors_total.
type Worker struct {
	registry *prometheus.Registry

	LinesEmitted *prometheus.CounterVec
	BytesEmitted *prometheus.CounterVec
	LinesDropped *prometheus.CounterVec
	HTTPErrors   *prometheus.CounterVec
}

// NewWorker builds a fresh registry and registers the worker counters
// against it.
func NewWorker() *Worker {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Worker{
		registry: reg,
		LinesEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lines_emitted_total",
			Help: "Lines handed to the batch buffer, by family.",
		}, []string{"family_id"}),
		BytesEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bytes_emitted_total",
			Help: "Bytes produced for emission, by family.",
		}, []string{"family_id"}),
		LinesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lines_dropped_total",
			Help: "Lines dropped after a buffer-full retry also refused, by family.",
		}, []string{"family_id"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Write or fetch failures, by endpoint.",
		}, []string{"endpoint"}),
	}
}

// AddLinesEmitted records n lines produced for familyID.
func (w *Worker) AddLinesEmitted(familyID string, n float64) {
	w.LinesEmitted.WithLabelValues(familyID).Add(n)
}

// AddBytesEmitted records n bytes produced for familyID, attributed at the
// point a family goroutine synthesizes a line rather than when an Emitter
// eventually drains it, since one Emitter's Buffer can hold lines from
// several families.
func (w *Worker) AddBytesEmitted(familyID string, n float64) {
	w.BytesEmitted.WithLabelValues(familyID).Add(n)
}

// AddLinesDropped records n lines dropped for familyID after a BufferFull
// retry also refused.
func (w *Worker) AddLinesDropped(familyID string, n float64) {
	w.LinesDropped.WithLabelValues(familyID).Add(n)
}

// IncHTTPErrors implements emitter.Counters.
func (w *Worker) IncHTTPErrors(endpoint string) {
	w.HTTPErrors.WithLabelValues(endpoint).Inc()
}

// Handler serves the text exposition format for this registry alone.
func (w *Worker) Handler() http.Handler {
	return promhttp.HandlerFor(w.registry, promhttp.HandlerOpts{})
}
