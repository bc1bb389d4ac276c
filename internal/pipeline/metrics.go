package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for pipeline runs.
type Metrics struct {
	threadsFetched    *prometheus.CounterVec
	fetchErrors       *prometheus.CounterVec
	itemsRejected     *prometheus.CounterVec
	segmentsAssembled prometheus.Counter
	segmentsWritten   prometheus.Counter
	segmentsDropped   prometheus.Counter
	batchesSealed     prometheus.Counter
	windowDuration    *prometheus.HistogramVec
}

// NewMetrics registers the pipeline collectors with the given registerer,
// typically the registry the HTTP API already serves.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		threadsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rcg",
			Name:      "threads_fetched_total",
			Help:      "Threads pulled from a source",
		}, []string{"subreddit"}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rcg",
			Name:      "fetch_errors_total",
			Help:      "Source fetches that failed after retries",
		}, []string{"subreddit"}),
		itemsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rcg",
			Name:      "items_rejected_total",
			Help:      "Items rejected by the filter, by reason",
		}, []string{"reason"}),
		segmentsAssembled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rcg",
			Name:      "segments_assembled_total",
			Help:      "Segments assembled from qualifying threads",
		}),
		segmentsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rcg",
			Name:      "segments_written_total",
			Help:      "Segments accepted into a batch",
		}),
		segmentsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rcg",
			Name:      "segments_dropped_total",
			Help:      "Segments dropped with the gap constraint unsatisfiable",
		}),
		batchesSealed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rcg",
			Name:      "batches_sealed_total",
			Help:      "Batches sealed and handed to the store",
		}),
		windowDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rcg",
			Name:      "window_duration_seconds",
			Help:      "Histogram of per-window processing durations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"window"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.threadsFetched,
			m.fetchErrors,
			m.itemsRejected,
			m.segmentsAssembled,
			m.segmentsWritten,
			m.segmentsDropped,
			m.batchesSealed,
			m.windowDuration,
		)
	}

	return m
}

// IncThreadsFetched increments the fetched counter for a subreddit.
func (m *Metrics) IncThreadsFetched(subreddit string, n int) {
	if m == nil {
		return
	}
	m.threadsFetched.WithLabelValues(subreddit).Add(float64(n))
}

// IncFetchErrors increments the fetch error counter for a subreddit.
func (m *Metrics) IncFetchErrors(subreddit string) {
	if m == nil {
		return
	}
	m.fetchErrors.WithLabelValues(subreddit).Inc()
}

// IncRejected increments the per-reason rejection counter.
func (m *Metrics) IncRejected(reason string) {
	if m == nil {
		return
	}
	m.itemsRejected.WithLabelValues(reason).Inc()
}

// IncAssembled increments the assembled segment counter.
func (m *Metrics) IncAssembled() {
	if m == nil {
		return
	}
	m.segmentsAssembled.Inc()
}

// AddSinkStats records deltas reported by a batch writer.
func (m *Metrics) AddSinkStats(written, sealed, dropped int64) {
	if m == nil {
		return
	}
	m.segmentsWritten.Add(float64(written))
	m.batchesSealed.Add(float64(sealed))
	m.segmentsDropped.Add(float64(dropped))
}

// ObserveWindow records how long one window took end to end.
func (m *Metrics) ObserveWindow(window string, seconds float64) {
	if m == nil {
		return
	}
	m.windowDuration.WithLabelValues(window).Observe(seconds)
}
