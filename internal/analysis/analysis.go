// Package analysis runs the full deviation pipeline: clean, score data
// quality, compute statistics and, when enabled, reduce the set with the ML
// stages.
package analysis

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"sopguard/internal/clean"
	"sopguard/internal/logging"
	"sopguard/internal/metrics"
	"sopguard/internal/ml"
	"sopguard/internal/sop"
	"sopguard/internal/stats"
)

// Config holds configuration for an analysis run.
type Config struct {
	Cleaning clean.Options
	EnableML bool
	ML       ml.Config
	Recorder *metrics.Recorder // optional; when set, run metrics are recorded
}

// DefaultConfig enables every cleaning stage and the ML stages.
func DefaultConfig() Config {
	return Config{
		Cleaning: clean.DefaultOptions(),
		EnableML: true,
		ML:       ml.DefaultConfig(),
	}
}

// Result is the pipeline output handed to the caller.
type Result struct {
	RunID              string          `json:"run_id"`
	Cleaned            []sop.Deviation `json:"cleaned_deviations"`
	CleaningReport     clean.Report    `json:"cleaning_report"`
	DataQuality        clean.Quality   `json:"data_quality"`
	StatisticalSummary stats.Summary   `json:"statistical_summary"`
	Selected           []sop.Deviation `json:"selected_deviations"`
	ML                 *ml.Metadata    `json:"ml_metadata,omitempty"`
	MLContext          string          `json:"ml_context,omitempty"`
}

// Run executes every stage over devs. Data defects never fail a run; the
// only error is a cancelled context, checked between stages.
func Run(ctx context.Context, devs []sop.Deviation, cfg Config) (*Result, error) {
	logger := logging.New("analysis")
	rec := cfg.Recorder
	res := &Result{RunID: uuid.NewString()}
	logger.Info("analysis started", "run_id", res.RunID, "deviations", len(devs), "ml", cfg.EnableML)
	rec.CountDeviations(metrics.StageInput, len(devs))

	stop := rec.StageTimer("clean")
	res.Cleaned, res.CleaningReport = clean.Clean(devs, cfg.Cleaning)
	res.DataQuality = clean.QualityScore(res.CleaningReport)
	stop()
	rep := res.CleaningReport
	rec.CountDeviations(metrics.StageCleaned, rep.FinalCount)
	rec.CountRemoved(metrics.RemovedDuplicate, rep.DuplicatesRemoved)
	rec.CountRemoved(metrics.RemovedMissing, rep.MissingValuesHandled)
	rec.CountRemoved(metrics.RemovedValidation, rep.ValidationDropped)
	rec.SetQuality(res.DataQuality.Score)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analysis: after cleaning: %w", err)
	}

	stop = rec.StageTimer("stats")
	res.StatisticalSummary = stats.Analyze(res.Cleaned)
	stop()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analysis: after statistics: %w", err)
	}

	res.Selected = res.Cleaned
	if !cfg.EnableML {
		rec.RecordRun(false, 0, 0)
		rec.CountDeviations(metrics.StageSelected, len(res.Selected))
		logger.Info("analysis complete without ml", "run_id", res.RunID, "cleaned", len(res.Cleaned))
		return res, nil
	}

	stop = rec.StageTimer("ml")
	out := ml.New(cfg.ML).Run(res.Cleaned)
	stop()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analysis: after ml: %w", err)
	}
	res.Selected = out.Selected
	res.ML = &out.Metadata
	res.MLContext = ml.ContextText(out.Metadata)

	clusters, anomalies := 0, 0
	if m := out.Metadata; m.MLApplied {
		clusters, anomalies = m.Clustering.NClusters, m.Anomaly.NAnomalies
	}
	rec.RecordRun(out.Metadata.MLApplied, clusters, anomalies)
	rec.CountDeviations(metrics.StageSelected, len(res.Selected))

	logger.Info("analysis complete",
		"run_id", res.RunID, "cleaned", len(res.Cleaned), "selected", len(res.Selected),
		"ml_applied", out.Metadata.MLApplied, "quality", res.DataQuality.Grade)
	return res, nil
}
