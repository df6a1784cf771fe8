// Package stats computes descriptive statistics over cleaned deviations.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"sopguard/internal/logging"
	"sopguard/internal/sop"
)

const (
	topTypes         = 10
	topOfficers      = 20
	topCases         = 10
	topPerSeverity   = 3
	topRiskyOfficers = 10
	peakCount        = 3
	highRiskCutoff   = 50.0
	concentrationTop = 5
	diverseTypes     = 15
)

var dayNames = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// band maps a score threshold to an assessment string.
type band struct {
	min  float64
	text string
}

var severityBands = []band{
	{75, "Very High Risk - Immediate attention required"},
	{60, "High Risk - Urgent remediation needed"},
	{45, "Moderate Risk - Action plan required"},
	{30, "Low Risk - Monitoring recommended"},
	{0, "Minimal Risk - Routine oversight"},
}

var criticalMassBands = []band{
	{75, "Critical - Systemic compliance failure"},
	{50, "Severe - Immediate executive attention required"},
	{30, "Elevated - Management intervention needed"},
	{15, "Moderate - Enhanced monitoring required"},
	{0, "Normal - Routine oversight sufficient"},
}

func assess(bands []band, score float64) string {
	for _, b := range bands {
		if score >= b.min {
			return b.text
		}
	}
	return bands[len(bands)-1].text
}

// AssessSeverityScore returns the risk band for a 0-100 severity score.
func AssessSeverityScore(score float64) string { return assess(severityBands, score) }

// AssessCriticalMass returns the band for a critical-mass score.
func AssessCriticalMass(score float64) string { return assess(criticalMassBands, score) }

// categoryKeywords groups deviation types by substring. The first category
// with a matching keyword wins.
var categoryKeywords = []struct {
	name     string
	keywords []string
}{
	{"approval", []string{"approval", "unauthorized_approver", "self_approval", "escalation"}},
	{"timing", []string{"timing_violation", "tat_breach", "cutoff_breach", "delay"}},
	{"sequence", []string{"missing_step", "wrong_sequence", "unexpected_step", "duplicate_step"}},
	{"documentation", []string{"document", "missing_mandatory_document", "expired_document"}},
	{"kyc_aml", []string{"kyc", "aml", "sanctions", "pep", "cdd"}},
	{"credit", []string{"credit", "score", "ltv_breach", "emi_to_income"}},
	{"disbursement", []string{"disbursement", "mandate", "qc"}},
	{"collection", []string{"collection", "restructure", "writeoff"}},
	{"regulatory", []string{"regulatory", "classification", "provisioning"}},
	{"data_quality", []string{"missing_core_field", "invalid_format", "inconsistent_value"}},
}

// Category returns the rollup category of a deviation type, or "other".
func Category(devType string) string {
	t := strings.ToLower(devType)
	for _, c := range categoryKeywords {
		for _, kw := range c.keywords {
			if strings.Contains(t, kw) {
				return c.name
			}
		}
	}
	return "other"
}

// Analyze computes every section of the summary.
func Analyze(devs []sop.Deviation) Summary {
	log := logging.New("stats")
	if len(devs) == 0 {
		log.Warn("no deviations to analyze")
		return Empty()
	}
	log.Info("statistical analysis started", "deviations", len(devs))

	s := Summary{
		Overview:     overview(devs),
		Severity:     severityDistribution(devs),
		Types:        typeDistribution(devs),
		Temporal:     temporal(devs),
		Officers:     officerStats(devs),
		Cases:        caseStats(devs),
		Correlations: correlations(devs),
		Risk:         riskIndicators(devs),
	}
	if !s.Temporal.HasData {
		log.Warn("no valid timestamps found for temporal analysis")
	}
	log.Info("statistical analysis complete",
		"severity_score", s.Severity.Score, "critical_mass", s.Risk.CriticalMassScore)
	return s
}

func overview(devs []sop.Deviation) Overview {
	cases, officers := NewCounter(), NewCounter()
	for _, d := range devs {
		cases.Add(d.CaseID)
		officers.Add(d.OfficerID)
	}
	n := float64(len(devs))
	return Overview{
		TotalDeviations:             len(devs),
		UniqueCases:                 cases.Len(),
		UniqueOfficers:              officers.Len(),
		AverageDeviationsPerCase:    Round2(safeDiv(n, float64(cases.Len()))),
		AverageDeviationsPerOfficer: Round2(safeDiv(n, float64(officers.Len()))),
	}
}

func severityCounter(devs []sop.Deviation) *Counter {
	c := NewCounter()
	for _, d := range devs {
		c.Add(string(d.Severity))
	}
	return c
}

// SeverityScore is Σ count×weight / total × 25, in [25, 100] for canonical
// input and 0 for none.
func SeverityScore(devs []sop.Deviation) float64 {
	if len(devs) == 0 {
		return 0
	}
	weight := 0
	for _, d := range devs {
		weight += d.Severity.Weight()
	}
	return Round2(float64(weight) / float64(len(devs)) * 25)
}

func severityDistribution(devs []sop.Deviation) *SeverityDistribution {
	counts := severityCounter(devs)
	dist := make([]Share, 0, len(sop.Severities))
	for _, sev := range sop.Severities {
		n := counts.Get(string(sev))
		dist = append(dist, Share{Label: string(sev), Count: n, Percentage: Pct(n, len(devs))})
	}
	score := SeverityScore(devs)
	return &SeverityDistribution{
		Distribution: dist,
		MostCommon:   counts.MostCommon(),
		Score:        score,
		Assessment:   AssessSeverityScore(score),
	}
}

func shares(counts []Count, total int) []Share {
	out := make([]Share, len(counts))
	for i, c := range counts {
		out[i] = Share{Label: c.Key, Count: c.N, Percentage: Pct(c.N, total)}
	}
	return out
}

func typeDistribution(devs []sop.Deviation) *TypeDistribution {
	types := NewCounter()
	for _, d := range devs {
		types.Add(d.DeviationType)
	}
	cats := NewCounter()
	for _, c := range types.Top(0) {
		cats.AddN(Category(c.Key), c.N)
	}
	return &TypeDistribution{
		UniqueTypes: types.Len(),
		Top:         shares(types.Top(topTypes), len(devs)),
		Categories:  shares(cats.Top(0), cats.Total()),
	}
}

func temporal(devs []sop.Deviation) *Temporal {
	var stamps []time.Time
	for i := range devs {
		if t, ok := devs[i].Timestamp(); ok {
			stamps = append(stamps, t)
		}
	}
	if len(stamps) == 0 {
		return &Temporal{HasData: false, Message: "No temporal data available"}
	}

	hourCounts, dayCounts, periods := NewCounter(), NewCounter(), NewCounter()
	earliest, latest := stamps[0], stamps[0]
	for _, t := range stamps {
		hourCounts.Add(hourLabel(t.Hour()))
		dayCounts.Add(dayNames[sop.WeekdayIndex(t)])
		periods.Add(string(sop.BucketOf(t.Hour())))
		if t.Before(earliest) {
			earliest = t
		}
		if t.After(latest) {
			latest = t
		}
	}

	total := len(stamps)
	hours := make([]Share, 24)
	for h := range hours {
		n := hourCounts.Get(hourLabel(h))
		hours[h] = Share{Label: hourLabel(h), Count: n, Percentage: Pct(n, total)}
	}
	days := make([]Share, len(dayNames))
	for i, name := range dayNames {
		n := dayCounts.Get(name)
		days[i] = Share{Label: name, Count: n, Percentage: Pct(n, total)}
	}
	var periodShares []Share
	for _, b := range sop.TimeBuckets {
		if n := periods.Get(string(b)); n > 0 {
			periodShares = append(periodShares, Share{Label: string(b), Count: n, Percentage: Pct(n, total)})
		}
	}

	return &Temporal{
		HasData:             true,
		TotalWithTimestamps: total,
		Hours:               hours,
		Days:                days,
		Periods:             periodShares,
		PeakHours:           keys(hourCounts.Top(peakCount)),
		PeakDays:            keys(dayCounts.Top(peakCount)),
		DateRange: &DateRange{
			Earliest: earliest.Format("2006-01-02"),
			Latest:   latest.Format("2006-01-02"),
		},
	}
}

func hourLabel(h int) string { return fmt.Sprintf("%02d:00", h) }

func keys(counts []Count) []string {
	out := make([]string, len(counts))
	for i, c := range counts {
		out[i] = c.Key
	}
	return out
}

type group struct {
	id         string
	severities *Counter
	types      *Counter
	members    *Counter
}

// groupBy buckets deviations by key in first-seen order; member is the
// secondary identity counted per group (cases per officer, officers per case).
func groupBy(devs []sop.Deviation, key, member func(*sop.Deviation) string) ([]*group, *Counter) {
	totals := NewCounter()
	byID := make(map[string]*group)
	var order []*group
	for i := range devs {
		d := &devs[i]
		k := key(d)
		g, ok := byID[k]
		if !ok {
			g = &group{id: k, severities: NewCounter(), types: NewCounter(), members: NewCounter()}
			byID[k] = g
			order = append(order, g)
		}
		totals.Add(k)
		g.severities.Add(string(d.Severity))
		g.types.Add(d.DeviationType)
		g.members.Add(member(d))
	}
	return order, totals
}

func byOfficer(d *sop.Deviation) string { return d.OfficerID }
func byCase(d *sop.Deviation) string { return d.CaseID }

func countsOf(c *Counter) []int {
	out := make([]int, 0, c.Len())
	for _, it := range c.Top(0) {
		out = append(out, it.N)
	}
	return out
}

func officerStats(devs []sop.Deviation) *OfficerStats {
	groups, totals := groupBy(devs, byOfficer, byCase)
	byID := make(map[string]*group, len(groups))
	for _, g := range groups {
		byID[g.id] = g
	}

	var top []OfficerSummary
	for _, c := range totals.Top(topOfficers) {
		g := byID[c.Key]
		top = append(top, OfficerSummary{
			OfficerID:            c.Key,
			TotalDeviations:      c.N,
			UniqueCases:          g.members.Len(),
			AvgDeviationsPerCase: Round2(safeDiv(float64(c.N), float64(g.members.Len()))),
			SeverityBreakdown:    g.severities.Map(),
			TopDeviationType:     g.types.MostCommon(),
		})
	}
	return &OfficerStats{
		TotalOfficers: len(groups),
		Top:           top,
		Distribution:  describe(countsOf(totals)),
	}
}

func caseStats(devs []sop.Deviation) *CaseStats {
	groups, totals := groupBy(devs, byCase, byOfficer)
	byID := make(map[string]*group, len(groups))
	for _, g := range groups {
		byID[g.id] = g
	}

	var top []CaseSummary
	for _, c := range totals.Top(topCases) {
		g := byID[c.Key]
		top = append(top, CaseSummary{
			CaseID:            c.Key,
			TotalDeviations:   c.N,
			UniqueOfficers:    g.members.Len(),
			SeverityBreakdown: g.severities.Map(),
		})
	}
	return &CaseStats{
		TotalCases:   len(groups),
		Top:          top,
		Distribution: describe(countsOf(totals)),
	}
}

// OfficerRiskScore is the share of an officer's maximum possible weight
// carried by critical (4) and high (3) deviations, as a percentage.
func OfficerRiskScore(critical, high, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(critical*4+high*3) / float64(total*4) * 100
}

func correlations(devs []sop.Deviation) *Correlations {
	bySeverity := make(map[sop.Severity]*Counter)
	for _, d := range devs {
		c, ok := bySeverity[d.Severity]
		if !ok {
			c = NewCounter()
			bySeverity[d.Severity] = c
		}
		c.Add(d.DeviationType)
	}
	out := &Correlations{SeverityToType: []SeverityTypes{}, HighRiskOfficers: []RiskyOfficer{}}
	for _, sev := range sop.Severities {
		if c, ok := bySeverity[sev]; ok {
			out.SeverityToType = append(out.SeverityToType, SeverityTypes{Severity: string(sev), Types: c.Top(topPerSeverity)})
		}
	}

	groups, totals := groupBy(devs, byOfficer, byCase)
	var risky []RiskyOfficer
	for _, g := range groups {
		crit := g.severities.Get(string(sop.SeverityCritical))
		high := g.severities.Get(string(sop.SeverityHigh))
		total := totals.Get(g.id)
		score := OfficerRiskScore(crit, high, total)
		if score <= highRiskCutoff {
			continue
		}
		risky = append(risky, RiskyOfficer{
			OfficerID:       g.id,
			RiskScore:       Round2(score),
			CriticalCount:   crit,
			HighCount:       high,
			TotalDeviations: total,
		})
	}
	sort.SliceStable(risky, func(i, j int) bool { return risky[i].RiskScore > risky[j].RiskScore })
	if len(risky) > topRiskyOfficers {
		risky = risky[:topRiskyOfficers]
	}
	out.HighRiskOfficers = append(out.HighRiskOfficers, risky...)
	return out
}

// CriticalMass is %critical + 0.75 × %high.
func CriticalMass(devs []sop.Deviation) float64 {
	if len(devs) == 0 {
		return 0
	}
	counts := severityCounter(devs)
	total := float64(len(devs))
	crit := float64(counts.Get(string(sop.SeverityCritical))) / total * 100
	high := float64(counts.Get(string(sop.SeverityHigh))) / total * 100
	return crit + high*0.75
}

func riskIndicators(devs []sop.Deviation) *RiskIndicators {
	total := len(devs)
	mass := CriticalMass(devs)

	officers, types := NewCounter(), NewCounter()
	for _, d := range devs {
		officers.Add(d.OfficerID)
		types.Add(d.DeviationType)
	}
	topShare := 0
	for _, c := range officers.Top(concentrationTop) {
		topShare += c.N
	}
	topPct := float64(topShare) / float64(total) * 100

	diversity := "Low diversity"
	if types.Len() > diverseTypes {
		diversity = "High diversity"
	}
	return &RiskIndicators{
		CriticalMassScore:      Round2(mass),
		CriticalMassAssessment: AssessCriticalMass(mass),
		Concentration: Concentration{
			Top5OfficerPercentage: Round2(topPct),
			IsConcentrated:        topPct > 50,
			UniqueOfficers:        officers.Len(),
		},
		Diversity: Diversity{
			UniqueTypes:    types.Len(),
			DiversityScore: Round2(float64(types.Len()) / float64(total) * 100),
			Assessment:     diversity,
		},
	}
}
