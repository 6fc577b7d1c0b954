// Package telemetry exports pipeline activity as Prometheus metrics.
package telemetry

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"imagefeed/internal/logging"
)

const namespace = "imagefeed"

// Metrics implements the pipeline observer on a Prometheus registry.
type Metrics struct {
	batches        *prometheus.CounterVec
	batchSeconds   prometheus.Histogram
	inflight       prometheus.Gauge
	samples        prometheus.Counter
	sampleSeconds  prometheus.Histogram
	sampleFailures *prometheus.CounterVec
	retries        prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "batches_total",
			Help: "Batches assembled, by result.",
		}, []string{"result"}),
		batchSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "batch_duration_seconds",
			Help:    "Time to assemble one batch.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "batches_in_flight",
			Help: "Batches currently being assembled.",
		}),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "samples_total",
			Help: "Samples decoded and transformed into a batch slot.",
		}),
		sampleSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "sample_duration_seconds",
			Help:    "Decode plus transform time of one sample.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		sampleFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sample_failures_total",
			Help: "Samples that failed to decode or transform, by reason.",
		}, []string{"reason"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "slot_retries_total",
			Help: "Batch slots redispatched with a fresh record.",
		}),
	}
	reg.MustRegister(m.batches, m.batchSeconds, m.inflight, m.samples, m.sampleSeconds, m.sampleFailures, m.retries)
	return m
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

func (m *Metrics) BatchStarted(int) { m.inflight.Inc() }

func (m *Metrics) BatchCompleted(_ int, d time.Duration, err error) {
	m.inflight.Dec()
	m.batchSeconds.Observe(d.Seconds())
	if err != nil {
		m.batches.WithLabelValues("error").Inc()
		return
	}
	m.batches.WithLabelValues("ok").Inc()
}

func (m *Metrics) SampleProcessed(d time.Duration) {
	m.samples.Inc()
	m.sampleSeconds.Observe(d.Seconds())
}

func (m *Metrics) SampleFailed(reason string) { m.sampleFailures.WithLabelValues(reason).Inc() }
func (m *Metrics) SlotsRetried(n int)         { m.retries.Add(float64(n)) }

// Expose serves g on :port/metrics until the returned server is shut down.
func Expose(port int, g prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.L().Error("metrics server", "addr", srv.Addr, "err", err)
		}
	}()
	return srv
}
