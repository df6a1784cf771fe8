// Package anomaly flags outlying feature rows with an isolation forest.
package anomaly

import (
	"log/slog"
	"math"
	"sort"

	"sopguard/internal/logging"
	"sopguard/internal/sop"
	"sopguard/internal/stats"
)

// Detection method names reported in Result.Method.
const (
	MethodIsolationForest  = "IsolationForest"
	MethodInsufficientData = "insufficient_data"
)

// MaxContamination caps the configured contamination.
const MaxContamination = 0.2

// Config parameterizes the detector.
type Config struct {
	Contamination float64
	Trees         int
	MaxSamples    int
	Seed          uint64
	MinRows       int
}

// DefaultConfig returns the standard parameters.
func DefaultConfig() Config {
	return Config{Contamination: 0.1, Trees: 100, MaxSamples: 256, Seed: 42, MinRows: 10}
}

// ScoreRange summarizes the decision scores.
type ScoreRange struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// Result describes one detection run.
type Result struct {
	Method            string            `json:"method"`
	Contamination     float64           `json:"contamination"`
	NAnomalies        int               `json:"n_anomalies"`
	AnomalyPercentage float64           `json:"anomaly_percentage"`
	Threshold         float64           `json:"anomaly_threshold"`
	ScoreRange        ScoreRange        `json:"score_range"`
	Analysis          *Characterization `json:"anomaly_analysis,omitempty"`
}

// Detection holds the per-row outcome. Scores are decision values: negative
// for flagged rows, more negative meaning more anomalous.
type Detection struct {
	Flags  []bool
	Scores []float64
	Result Result
}

// Detector runs an isolation forest with a contamination-derived cutoff.
type Detector struct {
	cfg Config
	log *slog.Logger
}

// New returns a detector.
func New(cfg Config) *Detector {
	return &Detector{cfg: cfg, log: logging.New("anomaly")}
}

// Detect flags floor(contamination × rows) rows as anomalous, where
// contamination is capped at MaxContamination.
func (d *Detector) Detect(X [][]float64) Detection {
	n := len(X)
	det := Detection{Flags: make([]bool, n), Scores: make([]float64, n)}
	if n < d.cfg.MinRows {
		d.log.Warn("too few rows for anomaly detection", "rows", n)
		det.Result = Result{Method: MethodInsufficientData}
		return det
	}

	contamination := math.Min(d.cfg.Contamination, MaxContamination)
	d.log.Info("running isolation forest", "rows", n, "trees", d.cfg.Trees, "contamination", contamination)

	f := fitForest(X, d.cfg.Trees, d.cfg.MaxSamples, d.cfg.Seed)
	raw := make([]float64, n)
	for i, row := range X {
		raw[i] = -f.score(row)
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return raw[order[a]] < raw[order[b]] })

	k := max(int(math.Floor(contamination*float64(n))), 0)
	// the cutoff sits midway between the last flagged and first normal row
	offset := raw[order[0]]
	if k > 0 {
		offset = (raw[order[k-1]] + raw[order[k]]) / 2
	}
	for i := range raw {
		det.Scores[i] = raw[i] - offset
	}
	for _, i := range order[:k] {
		det.Flags[i] = true
	}

	det.Result = Result{
		Method:            MethodIsolationForest,
		Contamination:     contamination,
		NAnomalies:        k,
		AnomalyPercentage: stats.Pct(k, n),
		Threshold:         threshold(det),
		ScoreRange:        scoreRange(det.Scores),
	}
	d.log.Info("anomaly detection complete", "anomalies", k, "percentage", det.Result.AnomalyPercentage)
	return det
}

// threshold is the lowest score among normal rows, 0 when every row is flagged.
func threshold(det Detection) float64 {
	t, found := math.Inf(1), false
	for i, flagged := range det.Flags {
		if !flagged {
			t, found = math.Min(t, det.Scores[i]), true
		}
	}
	if !found {
		return 0
	}
	return t
}

func scoreRange(scores []float64) ScoreRange {
	r := ScoreRange{Min: math.Inf(1), Max: math.Inf(-1)}
	for _, s := range scores {
		r.Min = math.Min(r.Min, s)
		r.Max = math.Max(r.Max, s)
		r.Mean += s
	}
	r.Mean /= float64(len(scores))
	for _, s := range scores {
		r.Std += (s - r.Mean) * (s - r.Mean)
	}
	r.Std = math.Sqrt(r.Std / float64(len(scores)))
	return r
}

// Indices returns the flagged rows in ascending order.
func (det Detection) Indices() []int {
	var out []int
	for i, f := range det.Flags {
		if f {
			out = append(out, i)
		}
	}
	return out
}

// Count returns the number of flagged rows.
func (det Detection) Count() int {
	n := 0
	for _, f := range det.Flags {
		if f {
			n++
		}
	}
	return n
}

// TopAnomalies returns up to n flagged rows, most anomalous first. n <= 0
// returns all of them.
func (det Detection) TopAnomalies(n int) []int {
	idx := det.Indices()
	sort.SliceStable(idx, func(a, b int) bool { return det.Scores[idx[a]] < det.Scores[idx[b]] })
	if n > 0 && len(idx) > n {
		idx = idx[:n]
	}
	return idx
}

// Example is the single most anomalous deviation.
type Example struct {
	Index         int     `json:"index"`
	Score         float64 `json:"score"`
	CaseID        string  `json:"case_id"`
	OfficerID     string  `json:"officer_id"`
	DeviationType string  `json:"deviation_type"`
	Severity      string  `json:"severity"`
	Description   string  `json:"description"`
}

// Characterization describes the flagged subset.
type Characterization struct {
	Count                int            `json:"count"`
	Percentage           float64        `json:"percentage"`
	SeverityDistribution map[string]int `json:"severity_distribution,omitempty"`
	TopDeviationTypes    []stats.Count  `json:"top_deviation_types,omitempty"`
	TopOfficers          []stats.Count  `json:"top_officers,omitempty"`
	MostAnomalous        *Example       `json:"most_anomalous,omitempty"`
}

const exampleDescriptionLimit = 100

// Characterize summarizes the flagged deviations. devs must be the rows the
// detection ran on, in the same order.
func (det Detection) Characterize(devs []sop.Deviation) Characterization {
	top := det.TopAnomalies(0)
	if len(top) == 0 {
		return Characterization{}
	}
	sev, types, officers := stats.NewCounter(), stats.NewCounter(), stats.NewCounter()
	for _, i := range det.Indices() {
		sev.Add(string(devs[i].Severity))
		types.Add(devs[i].DeviationType)
		officers.Add(devs[i].OfficerID)
	}

	i := top[0]
	d := devs[i]
	desc := []rune(d.Description)
	if len(desc) > exampleDescriptionLimit {
		desc = desc[:exampleDescriptionLimit]
	}
	return Characterization{
		Count:                len(top),
		Percentage:           stats.Pct(len(top), len(devs)),
		SeverityDistribution: sev.Map(),
		TopDeviationTypes:    types.Top(5),
		TopOfficers:          officers.Top(5),
		MostAnomalous: &Example{
			Index:         i,
			Score:         det.Scores[i],
			CaseID:        d.CaseID,
			OfficerID:     d.OfficerID,
			DeviationType: d.DeviationType,
			Severity:      string(d.Severity),
			Description:   string(desc),
		},
	}
}
