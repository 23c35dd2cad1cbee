package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"

	"github.com/sells-group/catfim/internal/model"
)

const namespace = "catfim"

// Metrics holds the run counters. A nil *Metrics ignores every observation.
type Metrics struct {
	reg *prometheus.Registry

	Gauges         *prometheus.CounterVec // labels: mapped={yes,no}
	Statuses       *prometheus.CounterVec // labels: kind
	Branches       *prometheus.CounterVec // labels: result={written,skipped}
	HUCFailures    prometheus.Counter
	WRDSRequests   *prometheus.CounterVec // labels: endpoint, outcome
	VDatumRequests *prometheus.CounterVec // labels: outcome
	HUCDuration    prometheus.Histogram
}

// NewMetrics registers the run metrics on a private registry labelled with
// the processing mode.
func NewMetrics(mode model.Mode) *Metrics {
	labels := prometheus.Labels{"mode": string(mode)}
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		Gauges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "gauges_total",
			Help:        "Gauges reported in the sites library by mapped value.",
			ConstLabels: labels,
		}, []string{"mapped"}),
		Statuses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "gauge_statuses_total",
			Help:        "Final gauge statuses by kind.",
			ConstLabels: labels,
		}, []string{"kind"}),
		Branches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "branch_rasters_total",
			Help:        "Per-branch extent rasters by result.",
			ConstLabels: labels,
		}, []string{"result"}),
		HUCFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "huc_failures_total",
			Help:        "HUC workers that ended with an error.",
			ConstLabels: labels,
		}),
		WRDSRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "wrds_requests_total",
			Help:        "Metadata and threshold requests by endpoint and outcome.",
			ConstLabels: labels,
		}, []string{"endpoint", "outcome"}),
		VDatumRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "vdatum_requests_total",
			Help:        "VDatum conversions by outcome.",
			ConstLabels: labels,
		}, []string{"outcome"}),
		HUCDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "huc_duration_seconds",
			Help:        "Wall time of one HUC worker.",
			ConstLabels: labels,
			Buckets:     []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}),
	}
	m.reg.MustRegister(m.Gauges, m.Statuses, m.Branches, m.HUCFailures,
		m.WRDSRequests, m.VDatumRequests, m.HUCDuration)
	return m
}

// ObserveWRDS matches the wrds.Client Observe hook.
func (m *Metrics) ObserveWRDS(endpoint, outcome string) {
	if m == nil {
		return
	}
	m.WRDSRequests.WithLabelValues(endpoint, outcome).Inc()
}

// ObserveVDatum matches the vdatum.Client Observe hook.
func (m *Metrics) ObserveVDatum(outcome string) {
	if m == nil {
		return
	}
	m.VDatumRequests.WithLabelValues(outcome).Inc()
}

// ObserveBranches counts the branch rasters of one inundation request.
func (m *Metrics) ObserveBranches(written, skipped int) {
	if m == nil {
		return
	}
	m.Branches.WithLabelValues("written").Add(float64(written))
	m.Branches.WithLabelValues("skipped").Add(float64(skipped))
}

// ObserveHUC records the duration of one HUC worker.
func (m *Metrics) ObserveHUC(d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.HUCDuration.Observe(d.Seconds())
	if failed {
		m.HUCFailures.Inc()
	}
}

// ObserveSites counts the final sites library.
func (m *Metrics) ObserveSites(recs []model.SiteRecord) {
	if m == nil {
		return
	}
	for _, r := range recs {
		m.Gauges.WithLabelValues(r.Mapped).Inc()
		m.Statuses.WithLabelValues(StatusKind(r.Status)).Inc()
	}
}

// WriteTextfile writes the registry in the Prometheus text format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return eris.Wrapf(prometheus.WriteToTextfile(path, m.reg), "monitoring: write %s", path)
}
