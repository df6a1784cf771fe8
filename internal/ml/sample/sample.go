// Package sample reduces a labelled deviation set to a bounded subset that
// still covers every anomaly, cluster, severity, time bucket and (some)
// officers.
package sample

import (
	"log/slog"
	"math"
	"sort"
	"strings"

	"sopguard/internal/logging"
	"sopguard/internal/ml/cluster"
	"sopguard/internal/sop"
)

// Defaults for Sampler.
const (
	DefaultTarget      = 75
	DefaultMaxOfficers = 5
)

// Input is everything the sampler needs from earlier pipeline stages.
// Labels, Anomalies and X are indexed like Devs. Reps may be nil.
type Input struct {
	Devs      []sop.Deviation
	Labels    []int
	Anomalies []bool
	X         [][]float64
	Reps      map[int][]int
}

// Composition splits the selection into anomalies and everything else.
type Composition struct {
	Anomalies              int `json:"anomalies"`
	ClusterRepresentatives int `json:"cluster_representatives"`
}

// Coverage counts distinct values among the selected deviations.
type Coverage struct {
	SeverityLevels int `json:"severity_levels"`
	DeviationTypes int `json:"deviation_types"`
	Officers       int `json:"officers"`
}

// Steps records how many rows each selection step added.
type Steps struct {
	Anomalies              int `json:"anomalies"`
	ClusterRepresentatives int `json:"cluster_representatives"`
	SeverityCoverage       int `json:"severity_coverage"`
	TemporalCoverage       int `json:"temporal_coverage"`
	OfficerCoverage        int `json:"officer_coverage"`
}

// Report describes one sampling run.
type Report struct {
	TargetSampleSize int         `json:"target_sample_size"`
	TotalDeviations  int         `json:"total_deviations"`
	SelectedCount    int         `json:"selected_count"`
	CompressionRatio float64     `json:"compression_ratio"`
	Composition      Composition `json:"composition"`
	Coverage         Coverage    `json:"coverage"`
	Steps            Steps       `json:"steps"`
}

// Sampler selects representative deviations.
type Sampler struct {
	Target      int
	MaxOfficers int
	log         *slog.Logger
}

// New returns a sampler aiming for target rows. A non-positive target
// selects DefaultTarget.
func New(target int) *Sampler {
	if target <= 0 {
		target = DefaultTarget
	}
	return &Sampler{Target: target, MaxOfficers: DefaultMaxOfficers, log: logging.New("sample")}
}

// selection is the set of chosen row indices.
type selection map[int]bool

func (s selection) add(i int) bool {
	if s[i] {
		return false
	}
	s[i] = true
	return true
}

func (s selection) sorted() []int {
	out := make([]int, 0, len(s))
	for i := range s {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// Sample returns the selected indices in ascending order and a report.
// The target bounds only the cluster step: anomalies and coverage rows are
// always added, so the result may exceed it.
func (s *Sampler) Sample(in Input) ([]int, Report) {
	n := len(in.Devs)
	s.log.Info("sampling deviations", "total", n, "target", s.Target)

	sel := make(selection)
	var steps Steps

	for i, flagged := range in.Anomalies {
		if flagged && sel.add(i) {
			steps.Anomalies++
		}
	}

	if budget := s.Target - len(sel); budget > 0 {
		for _, i := range s.clusterPicks(in, budget) {
			if sel.add(i) {
				steps.ClusterRepresentatives++
			}
		}
	}

	for _, i := range severityGaps(in.Devs, sel) {
		if sel.add(i) {
			steps.SeverityCoverage++
		}
	}
	for _, i := range temporalGaps(in.Devs, sel) {
		if sel.add(i) {
			steps.TemporalCoverage++
		}
	}
	for _, i := range officerGaps(in.Devs, sel, s.MaxOfficers) {
		if sel.add(i) {
			steps.OfficerCoverage++
		}
	}

	out := sel.sorted()
	rep := report(in, out)
	rep.TargetSampleSize = s.Target
	rep.Steps = steps
	s.log.Info("sampling complete",
		"selected", rep.SelectedCount, "total", n, "compression", rep.CompressionRatio)
	return out, rep
}

func isAnomaly(in Input, i int) bool {
	return i < len(in.Anomalies) && in.Anomalies[i]
}

// clusterPicks spends budget across non-noise clusters in proportion to
// their non-anomalous sizes.
func (s *Sampler) clusterPicks(in Input, budget int) []int {
	normal := make(map[int][]int)
	var labels []int
	for l, idx := range cluster.Members(in.Labels) {
		labels = append(labels, l)
		for _, i := range idx {
			if !isAnomaly(in, i) {
				normal[l] = append(normal[l], i)
			}
		}
	}
	if len(labels) == 0 {
		s.log.Warn("no clusters to sample from")
		return nil
	}
	sort.Ints(labels)

	sizes := make(map[int]int, len(labels))
	for _, l := range labels {
		sizes[l] = len(normal[l])
	}
	alloc := allocate(labels, sizes, budget)

	var out []int
	for _, l := range labels {
		k := alloc[l]
		if k == 0 || len(normal[l]) == 0 {
			continue
		}
		picks := repsFor(in, l, k)
		if len(picks) == 0 {
			picks = cluster.Pick(in.X, normal[l], k)
		}
		out = append(out, picks...)
	}
	return out
}

// repsFor returns up to k precomputed representatives of cluster l that are
// not anomalies.
func repsFor(in Input, l, k int) []int {
	var out []int
	for _, i := range in.Reps[l] {
		if len(out) == k {
			break
		}
		if !isAnomaly(in, i) {
			out = append(out, i)
		}
	}
	return out
}

// allocate shares budget over clusters proportionally to size, rounding half
// to even, at least one per non-empty cluster and never more than its size.
// When the total exceeds budget the largest allocations shrink first, down
// to one each.
func allocate(labels []int, sizes map[int]int, budget int) map[int]int {
	total := 0
	for _, l := range labels {
		total += sizes[l]
	}
	alloc := make(map[int]int, len(labels))
	if total == 0 {
		return alloc
	}

	sum := 0
	for _, l := range labels {
		share := int(math.RoundToEven(float64(sizes[l]) / float64(total) * float64(budget)))
		alloc[l] = min(max(1, share), sizes[l])
		sum += alloc[l]
	}
	if sum <= budget {
		return alloc
	}

	byAlloc := append([]int(nil), labels...)
	sort.SliceStable(byAlloc, func(a, b int) bool { return alloc[byAlloc[a]] > alloc[byAlloc[b]] })
	excess := sum - budget
	for _, l := range byAlloc {
		if excess <= 0 {
			break
		}
		cut := min(excess, alloc[l]-1)
		if cut <= 0 {
			continue
		}
		alloc[l] -= cut
		excess -= cut
	}
	return alloc
}

func severityGaps(devs []sop.Deviation, sel selection) []int {
	seen := make(map[string]bool)
	for i := range sel {
		seen[strings.ToLower(string(devs[i].Severity))] = true
	}
	var out []int
	for _, sev := range sop.Severities {
		if seen[string(sev)] {
			continue
		}
		for i := range devs {
			if !sel[i] && strings.ToLower(string(devs[i].Severity)) == string(sev) {
				out = append(out, i)
				break
			}
		}
	}
	return out
}

func bucketOf(d *sop.Deviation) (sop.TimeBucket, bool) {
	t, ok := d.Timestamp()
	if !ok {
		return "", false
	}
	return sop.BucketOf(t.Hour()), true
}

func temporalGaps(devs []sop.Deviation, sel selection) []int {
	seen := make(map[sop.TimeBucket]bool)
	for i := range sel {
		if b, ok := bucketOf(&devs[i]); ok {
			seen[b] = true
		}
	}
	var out []int
	for _, b := range sop.TimeBuckets {
		if seen[b] {
			continue
		}
		for i := range devs {
			if sel[i] {
				continue
			}
			if got, ok := bucketOf(&devs[i]); ok && got == b {
				out = append(out, i)
				break
			}
		}
	}
	return out
}

func officerGaps(devs []sop.Deviation, sel selection, limit int) []int {
	covered := make(map[string]bool)
	for i := range sel {
		covered[devs[i].OfficerID] = true
	}
	var out []int
	for i := range devs {
		if len(out) >= limit {
			break
		}
		o := devs[i].OfficerID
		if covered[o] || sel[i] {
			continue
		}
		covered[o] = true
		out = append(out, i)
	}
	return out
}

func report(in Input, picked []int) Report {
	rep := Report{TotalDeviations: len(in.Devs), SelectedCount: len(picked)}
	if len(picked) > 0 {
		rep.CompressionRatio = float64(len(in.Devs)) / float64(len(picked))
	}
	severities := make(map[string]bool)
	types := make(map[string]bool)
	officers := make(map[string]bool)
	for _, i := range picked {
		d := &in.Devs[i]
		if isAnomaly(in, i) {
			rep.Composition.Anomalies++
		}
		severities[strings.ToLower(string(d.Severity))] = true
		types[d.DeviationType] = true
		officers[d.OfficerID] = true
	}
	rep.Composition.ClusterRepresentatives = rep.SelectedCount - rep.Composition.Anomalies
	rep.Coverage = Coverage{
		SeverityLevels: len(severities),
		DeviationTypes: len(types),
		Officers:       len(officers),
	}
	return rep
}
