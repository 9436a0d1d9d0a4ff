package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Upload results.
const (
	UploadAccepted = "accepted"
	UploadRejected = "rejected"
)

// Script outcomes.
const (
	ScriptChanged   = "changed"
	ScriptUnchanged = "unchanged"
	ScriptFailed    = "failed"
	ScriptRefused   = "refused"
)

// Metrics holds the collectors updated by the provisioning handlers. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	uploads     *prometheus.CounterVec
	scripts     *prometheus.CounterVec
	evaluation  prometheus.Histogram
	bundleFiles prometheus.Gauge
}

func NewMetrics(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bundle_uploads_total",
			Help:      "Uploaded bundles by result.",
		}, []string{"result"}),
		scripts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scripts_total",
			Help:      "Script requests by outcome.",
		}, []string{"outcome"}),
		evaluation: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Time spent compiling a bundle for one client.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		bundleFiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bundle_files",
			Help:      "Number of files in the current bundle.",
		}),
	}

	for _, c := range []prometheus.Collector{m.uploads, m.scripts, m.evaluation, m.bundleFiles} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) Upload(result string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(result).Inc()
}

func (m *Metrics) Script(outcome string) {
	if m == nil {
		return
	}
	m.scripts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Evaluation(d time.Duration) {
	if m == nil {
		return
	}
	m.evaluation.Observe(d.Seconds())
}

func (m *Metrics) BundleFiles(n int) {
	if m == nil {
		return
	}
	m.bundleFiles.Set(float64(n))
}
