// Package metrics exposes pipeline counters through a private prometheus
// registry. A nil *Recorder is valid and records nothing.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sopguard"

// Deviation counting stages.
const (
	StageDetected = "detected"
	StageInput    = "input"
	StageCleaned  = "cleaned"
	StageSelected = "selected"
)

// Removal reasons reported by the cleaner.
const (
	RemovedDuplicate  = "duplicate"
	RemovedMissing    = "missing_value"
	RemovedValidation = "validation"
)

// Recorder owns the collectors for one process.
type Recorder struct {
	reg *prometheus.Registry

	runs           *prometheus.CounterVec
	deviations     *prometheus.CounterVec
	removed        *prometheus.CounterVec
	anomalies      prometheus.Counter
	clusters       prometheus.Gauge
	quality        prometheus.Gauge
	stageSeconds   *prometheus.HistogramVec
	narrativeCalls *prometheus.CounterVec
}

// NewRecorder registers every collector on a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Analysis runs, by whether the ML stages were applied.",
		}, []string{"ml_applied"}),
		deviations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deviations_total",
			Help:      "Deviations seen at each pipeline stage.",
		}, []string{"stage"}),
		removed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deviations_removed_total",
			Help:      "Deviations removed by the cleaner, by reason.",
		}, []string{"reason"}),
		anomalies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalies_total",
			Help:      "Deviations flagged as anomalous.",
		}),
		clusters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clusters",
			Help:      "Clusters found by the most recent run.",
		}),
		quality: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "data_quality_score",
			Help:      "Data quality score (0-100) of the most recent run.",
		}),
		stageSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time spent in each pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"stage"}),
		narrativeCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "narrative_calls_total",
			Help:      "Calls to the narrative collaborator, by outcome.",
		}, []string{"outcome"}),
	}
	r.reg.MustRegister(r.runs, r.deviations, r.removed, r.anomalies,
		r.clusters, r.quality, r.stageSeconds, r.narrativeCalls)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

// StageTimer starts timing stage; the returned func stops it.
func (r *Recorder) StageTimer(stage string) func() {
	if r == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		r.stageSeconds.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}

// CountDeviations adds n deviations at stage.
func (r *Recorder) CountDeviations(stage string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.deviations.WithLabelValues(stage).Add(float64(n))
}

// CountRemoved adds n deviations removed for reason.
func (r *Recorder) CountRemoved(reason string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.removed.WithLabelValues(reason).Add(float64(n))
}

// SetQuality records the data quality score.
func (r *Recorder) SetQuality(score float64) {
	if r == nil {
		return
	}
	r.quality.Set(score)
}

// RecordRun counts a finished run and its ML outcome.
func (r *Recorder) RecordRun(mlApplied bool, clusters, anomalies int) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(fmt.Sprint(mlApplied)).Inc()
	if mlApplied {
		r.clusters.Set(float64(clusters))
		r.anomalies.Add(float64(anomalies))
	}
}

// NarrativeCall counts one collaborator call with the given outcome
// ("ok", "error" or "fallback").
func (r *Recorder) NarrativeCall(outcome string) {
	if r == nil {
		return
	}
	r.narrativeCalls.WithLabelValues(outcome).Inc()
}

// WriteToTextfile writes the current values in the node-exporter textfile
// format.
func (r *Recorder) WriteToTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("metrics: write %s: %w", path, err)
	}
	return nil
}
