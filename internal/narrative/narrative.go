// Package narrative hands deviations to an external text-generation
// collaborator for pattern analysis. Large sets are split into batches whose
// results are concatenated and truncated; any unusable response degrades to
// Empty rather than failing the run.
package narrative

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"sopguard/internal/logging"
	"sopguard/internal/metrics"
	"sopguard/internal/sop"
)

// SystemPrompt frames every request.
const SystemPrompt = "You are an expert at finding patterns and trends in compliance data. " +
	"You have been provided with comprehensive statistical analysis to guide your insights."

// Request is one call to the collaborator.
type Request struct {
	System             string
	Batch              int // 1-based
	Batches            int
	Deviations         []sop.Deviation
	StatisticalContext string
}

// Narrator performs the external call and returns its raw text response.
type Narrator interface {
	Narrate(ctx context.Context, req Request) ([]byte, error)
}

// NarratorFunc adapts a function to Narrator.
type NarratorFunc func(ctx context.Context, req Request) ([]byte, error)

// Narrate calls f.
func (f NarratorFunc) Narrate(ctx context.Context, req Request) ([]byte, error) {
	return f(ctx, req)
}

// Config controls batching and pacing.
type Config struct {
	BatchSize     int     `json:"batch_size" yaml:"batch_size"`
	Concurrency   int     `json:"concurrency" yaml:"concurrency"`
	RatePerSecond float64 `json:"rate_per_second" yaml:"rate_per_second"` // 0 = unlimited
}

// DefaultConfig sends up to 100 deviations per call, one call at a time.
func DefaultConfig() Config {
	return Config{BatchSize: 100, Concurrency: 1}
}

// Aggregation caps applied when merging batch results.
const (
	maxBehavioral      = 10
	maxHiddenRules     = 5
	maxSystemic        = 5
	maxTimePatterns    = 5
	maxRiskInsights    = 10
	maxRecommendations = 10
)

// Analyzer batches deviations through a Narrator.
type Analyzer struct {
	narrator Narrator
	cfg      Config
	limiter  *rate.Limiter
	rec      *metrics.Recorder
	log      *slog.Logger
}

// NewAnalyzer returns an Analyzer. n may be nil, in which case every call
// returns Empty. rec is optional.
func NewAnalyzer(n Narrator, cfg Config, rec *metrics.Recorder) *Analyzer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	a := &Analyzer{narrator: n, cfg: cfg, rec: rec, log: logging.New("narrative")}
	if cfg.RatePerSecond > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	return a
}

// Analyze returns the collaborator's analysis of devs. Collaborator failures
// and malformed responses yield Empty; the only error is ctx's.
func (a *Analyzer) Analyze(ctx context.Context, devs []sop.Deviation, statsContext string) (Analysis, error) {
	if a.narrator == nil {
		a.log.Warn("no narrator configured, skipping pattern analysis")
		return Empty(), nil
	}
	if len(devs) == 0 {
		a.log.Info("no deviations to analyze")
		return Empty(), nil
	}
	if len(devs) <= a.cfg.BatchSize {
		res := a.call(ctx, Request{Batch: 1, Batches: 1, Deviations: devs, StatisticalContext: statsContext})
		return res, ctx.Err()
	}

	batches := split(devs, a.cfg.BatchSize)
	a.log.Info("splitting deviations into batches",
		"deviations", len(devs), "batches", len(batches), "concurrency", a.cfg.Concurrency)

	results := make([]Analysis, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Concurrency)
	for i, batch := range batches {
		req := Request{Batch: i + 1, Batches: len(batches), Deviations: batch, StatisticalContext: statsContext}
		g.Go(func() error {
			results[i] = a.call(gctx, req)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return Empty(), fmt.Errorf("narrative: %w", err)
	}
	return Aggregate(results, len(devs)), nil
}

// call performs one request and parses the response, falling back to Empty.
func (a *Analyzer) call(ctx context.Context, req Request) Analysis {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			a.log.Warn("rate limiter wait aborted", "batch", req.Batch, "error", err)
			return Empty()
		}
	}
	req.System = SystemPrompt
	a.log.Info("requesting pattern analysis", "batch", req.Batch, "of", req.Batches, "deviations", len(req.Deviations))

	raw, err := a.narrator.Narrate(ctx, req)
	if err != nil {
		a.log.Error("narrator call failed", "batch", req.Batch, "error", err)
		a.rec.NarrativeCall("error")
		return Empty()
	}
	res, err := Parse(raw)
	if err != nil {
		a.log.Warn("unusable narrator response", "batch", req.Batch, "error", err)
		a.rec.NarrativeCall("fallback")
		return Empty()
	}
	a.rec.NarrativeCall("ok")
	res.APICallsMade = 1
	res.DeviationsAnalyzed = len(req.Deviations)
	a.log.Info("pattern analysis received",
		"batch", req.Batch, "behavioral_patterns", len(res.BehavioralPatterns), "hidden_rules", len(res.HiddenRules))
	return res
}

func split(devs []sop.Deviation, size int) [][]sop.Deviation {
	var out [][]sop.Deviation
	for start := 0; start < len(devs); start += size {
		out = append(out, devs[start:min(start+size, len(devs))])
	}
	return out
}

// Aggregate concatenates batch results in order and truncates each list.
func Aggregate(results []Analysis, total int) Analysis {
	out := Analysis{
		OverallSummary:        fmt.Sprintf("Aggregated analysis from %d batches covering %d deviations", len(results), total),
		JustificationAnalysis: map[string]any{"note": "Aggregated from multiple batches"},
		DeviationsAnalyzed:    total,
	}
	for _, r := range results {
		out.BehavioralPatterns = append(out.BehavioralPatterns, r.BehavioralPatterns...)
		out.HiddenRules = append(out.HiddenRules, r.HiddenRules...)
		out.SystemicIssues = append(out.SystemicIssues, r.SystemicIssues...)
		out.TimePatterns = append(out.TimePatterns, r.TimePatterns...)
		out.RiskInsights = append(out.RiskInsights, r.RiskInsights...)
		out.Recommendations = append(out.Recommendations, r.Recommendations...)
		out.APICallsMade += r.APICallsMade
	}
	out.BehavioralPatterns = head(out.BehavioralPatterns, maxBehavioral)
	out.HiddenRules = head(out.HiddenRules, maxHiddenRules)
	out.SystemicIssues = head(out.SystemicIssues, maxSystemic)
	out.TimePatterns = head(out.TimePatterns, maxTimePatterns)
	out.RiskInsights = head(out.RiskInsights, maxRiskInsights)
	out.Recommendations = head(out.Recommendations, maxRecommendations)
	return out
}

func head[T any](s []T, n int) []T {
	if s == nil {
		return []T{}
	}
	if len(s) > n {
		return s[:n]
	}
	return s
}
