// Package ml runs the feature, clustering, anomaly and sampling stages over a
// cleaned deviation set and assembles their metadata.
package ml

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"sopguard/internal/logging"
	"sopguard/internal/ml/anomaly"
	"sopguard/internal/ml/cluster"
	"sopguard/internal/ml/features"
	"sopguard/internal/ml/sample"
	"sopguard/internal/sop"
)

// Short-circuit reasons reported in Metadata.Reason.
const (
	ReasonInsufficientData         = "insufficient_data"
	ReasonFeatureEngineeringFailed = "feature_engineering_failed"
)

// Stage names reported in Metadata.PipelineSteps.
const (
	StepFeatures = "feature_engineering"
	StepCluster  = "clustering"
	StepAnomaly  = "anomaly_detection"
	StepSample   = "intelligent_sampling"
)

// Config gathers the per-stage configuration.
type Config struct {
	MinRows                   int
	RepresentativesPerCluster int
	TargetSampleSize          int
	Features                  features.Config
	Cluster                   cluster.Config
	Anomaly                   anomaly.Config
}

// DefaultConfig returns the standard parameters for every stage.
func DefaultConfig() Config {
	return Config{
		MinRows:                   10,
		RepresentativesPerCluster: 5,
		TargetSampleSize:          sample.DefaultTarget,
		Features:                  features.DefaultConfig(),
		Cluster:                   cluster.DefaultConfig(),
		Anomaly:                   anomaly.DefaultConfig(),
	}
}

// Metadata is the full record of one pipeline run.
type Metadata struct {
	RunID           string           `json:"run_id"`
	MLApplied       bool             `json:"ml_applied"`
	Reason          string           `json:"reason,omitempty"`
	MinimumRequired int              `json:"minimum_required,omitempty"`
	PipelineSteps   []string         `json:"pipeline_steps,omitempty"`
	Features        *features.Schema `json:"features,omitempty"`
	Clustering      *cluster.Result  `json:"clustering,omitempty"`
	Anomaly         *anomaly.Result  `json:"anomaly_detection,omitempty"`
	Sampling        *sample.Report   `json:"sampling,omitempty"`
	ElapsedMS       int64            `json:"elapsed_ms"`
}

// Output is the sampled subset plus metadata. Selected holds copies of the
// chosen deviations annotated with MLLabels; the input is never modified.
type Output struct {
	SelectedIndices []int           `json:"selected_indices"`
	Selected        []sop.Deviation `json:"selected_deviations"`
	Metadata        Metadata        `json:"ml_metadata"`
}

// Pipeline runs the ML stages in order.
type Pipeline struct {
	cfg Config
	log *slog.Logger
}

// New returns a pipeline.
func New(cfg Config) *Pipeline {
	return &Pipeline{cfg: cfg, log: logging.New("ml")}
}

// Run reduces devs to a representative subset. With fewer than MinRows
// deviations, or when no feature columns can be built, every deviation is
// returned unlabelled and Metadata.MLApplied is false.
func (p *Pipeline) Run(devs []sop.Deviation) Output {
	start := time.Now()
	meta := Metadata{RunID: uuid.NewString()}
	p.log.Info("ml pipeline started", "run_id", meta.RunID, "deviations", len(devs))

	if len(devs) < p.cfg.MinRows {
		p.log.Warn("too few deviations for ml analysis, returning all", "deviations", len(devs), "minimum", p.cfg.MinRows)
		meta.Reason = ReasonInsufficientData
		meta.MinimumRequired = p.cfg.MinRows
		return passThrough(devs, meta, start)
	}

	m, err := features.Fit(devs, p.cfg.Features)
	if err == nil && m.Width() == 0 {
		err = errors.New("no feature columns")
	}
	if err != nil {
		p.log.Error("feature engineering failed, returning all deviations", "error", err)
		meta.Reason = ReasonFeatureEngineeringFailed
		return passThrough(devs, meta, start)
	}
	p.log.Info("features built", "columns", m.Width())

	labels, cres := cluster.New(p.cfg.Cluster).Cluster(m.Rows)
	cres.Summary = cluster.Summarize(labels, devs)
	reps := cluster.Representatives(labels, m.Rows, p.cfg.RepresentativesPerCluster)
	p.log.Info("clustering done", "method", cres.Method, "clusters", cres.NClusters)

	det := anomaly.New(p.cfg.Anomaly).Detect(m.Rows)
	analysis := det.Characterize(devs)
	ares := det.Result
	ares.Analysis = &analysis

	picked, srep := sample.New(p.cfg.TargetSampleSize).Sample(sample.Input{
		Devs:      devs,
		Labels:    labels,
		Anomalies: det.Flags,
		X:         m.Rows,
		Reps:      reps,
	})

	selected := make([]sop.Deviation, len(picked))
	for n, i := range picked {
		d := devs[i].Clone()
		d.MLLabels = &sop.MLLabels{
			Cluster:      labels[i],
			Noise:        labels[i] == cluster.Noise,
			IsAnomaly:    det.Flags[i],
			AnomalyScore: det.Scores[i],
		}
		selected[n] = d
	}

	meta.MLApplied = true
	meta.PipelineSteps = []string{StepFeatures, StepCluster, StepAnomaly, StepSample}
	meta.Features = &m.Schema
	meta.Clustering = &cres
	meta.Anomaly = &ares
	meta.Sampling = &srep
	meta.ElapsedMS = time.Since(start).Milliseconds()
	p.log.Info("ml pipeline completed",
		"run_id", meta.RunID, "selected", len(picked), "compression", srep.CompressionRatio)
	return Output{SelectedIndices: picked, Selected: selected, Metadata: meta}
}

func passThrough(devs []sop.Deviation, meta Metadata, start time.Time) Output {
	out := Output{
		SelectedIndices: make([]int, len(devs)),
		Selected:        make([]sop.Deviation, len(devs)),
	}
	for i := range devs {
		out.SelectedIndices[i] = i
		out.Selected[i] = devs[i].Clone()
	}
	meta.ElapsedMS = time.Since(start).Milliseconds()
	out.Metadata = meta
	return out
}
