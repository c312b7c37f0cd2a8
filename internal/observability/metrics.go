package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pollen_map"

// Metrics holds the Prometheus counters, histograms, and gauges for map
// generation, repair, and geocoding.
type Metrics struct {
	RowsRead           prometheus.Counter
	RowWarnings        *prometheus.CounterVec // labels: reason={bad_date,unresolved_city,missing_coordinates,unknown_level}
	DocumentsWritten   prometheus.Counter
	RenderFailures     prometheus.Counter
	SnapshotsPublished prometheus.Counter
	GeneratorRunning   prometheus.Gauge

	// Per-run metrics.
	SnapshotEntries prometheus.Histogram
	RunDuration     prometheus.Histogram

	// Repair metrics.
	RepairOutcomes *prometheus.CounterVec // labels: outcome={repaired,failed}, tier={strict,tolerant,none}

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec   // labels: method={forward}, outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec   // labels: method={forward}, result={hit,miss}
	GeocodeAPIDuration *prometheus.HistogramVec // labels: method={forward}
	GeocodeEnabled     prometheus.Gauge
}

var (
	entryBuckets    = []float64{0, 1, 5, 10, 20, 30, 40, 50, 75, 100}
	durationBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10}
	apiBuckets      = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
)

func newMetrics() *Metrics {
	return &Metrics{
		RowsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_read_total",
			Help:      "Total measurement rows read from the input.",
		}),
		RowWarnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "row_warnings_total",
			Help:      "Rows dropped or coerced by the normalizer, by reason.",
		}, []string{"reason"}),
		DocumentsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_written_total",
			Help:      "Total per-date map documents written.",
		}),
		RenderFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_failures_total",
			Help:      "Total per-date documents that failed to render or write.",
		}),
		SnapshotsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_published_total",
			Help:      "Total snapshots published to the message broker.",
		}),
		GeneratorRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "generator_running",
			Help:      "1 while a generation run is in progress, 0 otherwise.",
		}),
		SnapshotEntries: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_entries",
			Help:      "Number of city entries per rendered snapshot.",
			Buckets:   entryBuckets,
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete generation run.",
			Buckets:   durationBuckets,
		}),
		RepairOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repair_outcomes_total",
			Help:      "Repair attempts by outcome and extraction tier.",
		}, []string{"outcome", "tier"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Geocoding API requests by method and outcome.",
		}, []string{"method", "outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by method and result.",
		}, []string{"method", "result"}),
		GeocodeAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Mapbox API request duration in seconds.",
			Buckets:   apiBuckets,
		}, []string{"method"}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "geocode_enabled",
			Help:      "1 when geocoding is configured, 0 otherwise.",
		}),
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, to
// avoid "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

// Register registers all metrics with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RowsRead,
		m.RowWarnings,
		m.DocumentsWritten,
		m.RenderFailures,
		m.SnapshotsPublished,
		m.GeneratorRunning,
		m.SnapshotEntries,
		m.RunDuration,
		m.RepairOutcomes,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.GeocodeEnabled,
	}
}
