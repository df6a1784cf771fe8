// Package profile summarizes each officer's workload and deviation record.
package profile

import (
	"fmt"
	"math"
	"strings"

	"sopguard/internal/logging"
	"sopguard/internal/sop"
	"sopguard/internal/stats"
)

// Profile is one officer's behavioral summary.
type Profile struct {
	OfficerID       string   `json:"officer_id"`
	TotalCases      int      `json:"total_cases"`
	DeviationCount  int      `json:"deviation_count"`
	DeviationRate   float64  `json:"deviation_rate"`
	AverageWorkload float64  `json:"average_workload"`
	RiskScore       float64  `json:"risk_score"`
	Patterns        Patterns `json:"patterns"`
}

type Patterns struct {
	PeakWorkloadDay     string `json:"peak_workload_day"`
	MostCommonDeviation string `json:"most_common_deviation"`
}

var riskWeights = map[sop.Severity]int{
	sop.SeverityCritical: 10,
	sop.SeverityHigh:     5,
	sop.SeverityMedium:   2,
	sop.SeverityLow:      1,
}

const (
	defaultRiskWeight = 2
	maxRiskScore      = 100
)

// Build profiles officerID from the entries and deviations attributed to
// them; records for other officers are ignored.
func Build(officerID string, logs []sop.WorkflowLogEntry, devs []sop.Deviation) Profile {
	var own []sop.WorkflowLogEntry
	for _, e := range logs {
		if e.OfficerID == officerID {
			own = append(own, e)
		}
	}
	var ownDevs []sop.Deviation
	for _, d := range devs {
		if d.OfficerID == officerID {
			ownDevs = append(ownDevs, d)
		}
	}

	cases := make(map[string]bool)
	for _, e := range own {
		cases[e.CaseID] = true
	}
	p := Profile{
		OfficerID:      officerID,
		TotalCases:     len(cases),
		DeviationCount: len(ownDevs),
		RiskScore:      riskScore(ownDevs, len(cases)),
	}
	if p.TotalCases > 0 {
		p.DeviationRate = stats.Round2(float64(p.DeviationCount) / float64(p.TotalCases) * 100)
	}
	p.AverageWorkload, p.Patterns.PeakWorkloadDay = workload(own)
	p.Patterns.MostCommonDeviation = mostCommonDeviation(ownDevs)
	return p
}

// BuildAll profiles every officer in logs, in order of first appearance.
func BuildAll(logs []sop.WorkflowLogEntry, devs []sop.Deviation) []Profile {
	seen := make(map[string]bool)
	var out []Profile
	for _, e := range logs {
		if seen[e.OfficerID] {
			continue
		}
		seen[e.OfficerID] = true
		out = append(out, Build(e.OfficerID, logs, devs))
	}
	return out
}

// workload returns the mean number of distinct cases touched per active day
// and the busiest day (first one on ties).
func workload(logs []sop.WorkflowLogEntry) (avg float64, peak string) {
	log := logging.New("profile")
	perDay := make(map[string]map[string]bool)
	var days []string
	for _, e := range logs {
		t, err := e.Time()
		if err != nil {
			log.Warn("skipping log entry with bad timestamp", "case_id", e.CaseID, "error", err)
			continue
		}
		day := t.Format("2006-01-02")
		if perDay[day] == nil {
			perDay[day] = make(map[string]bool)
			days = append(days, day)
		}
		perDay[day][e.CaseID] = true
	}
	if len(days) == 0 {
		return 0, "N/A"
	}

	total, best := 0, -1
	for _, day := range days {
		n := len(perDay[day])
		total += n
		if n > best {
			best, peak = n, day
		}
	}
	return stats.Round2(float64(total) / float64(len(days))), peak
}

// riskScore is the severity-weighted deviation count per case, times 10,
// capped at 100.
func riskScore(devs []sop.Deviation, cases int) float64 {
	if len(devs) == 0 {
		return 0
	}
	total := 0
	for _, d := range devs {
		w, ok := riskWeights[sop.Severity(strings.ToLower(string(d.Severity)))]
		if !ok {
			w = defaultRiskWeight
		}
		total += w
	}
	score := float64(total) / float64(max(cases, 1)) * 10
	return math.Min(stats.Round2(score), maxRiskScore)
}

func mostCommonDeviation(devs []sop.Deviation) string {
	if len(devs) == 0 {
		return "None"
	}
	c := stats.NewCounter()
	for _, d := range devs {
		t := d.DeviationType
		if t == "" {
			t = "unknown"
		}
		c.Add(t)
	}
	top := c.Top(1)[0]
	return fmt.Sprintf("%s (%d)", top.Key, top.N)
}
