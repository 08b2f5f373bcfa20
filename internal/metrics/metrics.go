// Package metrics records pipeline counters and gauges in a Prometheus
// registry and writes them in the node_exporter textfile format, so batch
// runs can be scraped after they exit.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "marstat"

// Cache lookup results.
const (
	CacheHit      = "hit"
	CacheMiss     = "miss"
	CacheDisabled = "disabled"
)

// Fit kinds.
const (
	FitFull = "full"
	FitFold = "fold"
)

// Recorder holds the metrics of one process.
type Recorder struct {
	reg *prometheus.Registry

	fits          *prometheus.CounterVec
	fitWarnings   *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	sampleSeconds *prometheus.HistogramVec
	rows          *prometheus.GaugeVec
	auc           prometheus.Gauge
	cvRMSE        prometheus.Gauge
	divergences   prometheus.Gauge
	lastSuccess   prometheus.Gauge
}

// New registers all metrics in a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		reg: reg,
		fits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fits_total",
			Help:      "Posterior fits run, by kind (full, fold).",
		}, []string{"kind"}),
		fitWarnings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fit_warnings_total",
			Help:      "Non-fatal fit warnings, by kind (convergence, separation).",
		}, []string{"kind"}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Fit cache lookups, by result (hit, miss, disabled).",
		}, []string{"result"}),
		sampleSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sampler",
			Name:      "duration_seconds",
			Help:      "Wall time of one posterior fit.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		}, []string{"kind"}),
		rows: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "data",
			Name:      "rows",
			Help:      "Rows at each pipeline stage (loaded, cleaned, train, test).",
		}, []string{"stage"}),
		auc: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "eval",
			Name:      "test_auc",
			Help:      "Area under the ROC curve on the held-out rows.",
		}),
		cvRMSE: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "eval",
			Name:      "cv_rmse",
			Help:      "Cross-validated RMSE on the training rows.",
		}),
		divergences: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sampler",
			Name:      "divergences",
			Help:      "Divergent transitions in the full fit.",
		}),
		lastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last completed run.",
		}),
	}
}

// ObserveFit records one fit of the given kind and its duration.
func (r *Recorder) ObserveFit(kind string, d time.Duration) {
	r.fits.WithLabelValues(kind).Inc()
	r.sampleSeconds.WithLabelValues(kind).Observe(d.Seconds())
}

// FitWarning counts a non-fatal warning.
func (r *Recorder) FitWarning(kind string) { r.fitWarnings.WithLabelValues(kind).Inc() }

// CacheLookup counts a cache lookup with the given result.
func (r *Recorder) CacheLookup(result string) { r.cacheLookups.WithLabelValues(result).Inc() }

// Rows sets the row count at a stage.
func (r *Recorder) Rows(stage string, n int) { r.rows.WithLabelValues(stage).Set(float64(n)) }

// Evaluation sets the headline scores of a completed run.
func (r *Recorder) Evaluation(auc, cvRMSE float64, divergences int) {
	r.auc.Set(auc)
	r.cvRMSE.Set(cvRMSE)
	r.divergences.Set(float64(divergences))
}

// Succeeded stamps the completion time.
func (r *Recorder) Succeeded(t time.Time) { r.lastSuccess.Set(float64(t.Unix())) }

// WriteTextfile writes every metric to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
