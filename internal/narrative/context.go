package narrative

import (
	"fmt"
	"strings"

	"sopguard/internal/stats"
)

// StatisticalContext renders a statistical summary as prompt text.
func StatisticalContext(s stats.Summary) string {
	var b strings.Builder
	o := s.Overview
	b.WriteString("STATISTICAL CONTEXT:\n\n")
	fmt.Fprintf(&b, "Overview:\n- Total Deviations: %d\n- Unique Cases: %d\n- Unique Officers: %d\n",
		o.TotalDeviations, o.UniqueCases, o.UniqueOfficers)
	if o.TotalDeviations == 0 {
		b.WriteString("\nNo deviations to analyze.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "- Avg Deviations per Case: %.2f\n- Avg Deviations per Officer: %.2f\n",
		o.AverageDeviationsPerCase, o.AverageDeviationsPerOfficer)

	if sev := s.Severity; sev != nil {
		fmt.Fprintf(&b, "\nSeverity (score %.1f/100, %s):\n", sev.Score, sev.Assessment)
		writeShares(&b, sev.Distribution)
	}
	if t := s.Types; t != nil {
		fmt.Fprintf(&b, "\nDeviation Types (%d unique):\n", t.UniqueTypes)
		writeShares(&b, t.Top)
		if len(t.Categories) > 0 {
			b.WriteString("Categories:\n")
			writeShares(&b, t.Categories)
		}
	}
	if tp := s.Temporal; tp != nil {
		b.WriteString("\nTemporal Patterns:\n")
		if !tp.HasData {
			fmt.Fprintf(&b, "- %s\n", tp.Message)
		} else {
			fmt.Fprintf(&b, "- Peak Hours: %s\n- Peak Days: %s\n",
				strings.Join(tp.PeakHours, ", "), strings.Join(tp.PeakDays, ", "))
			writeShares(&b, tp.Periods)
			if tp.DateRange != nil {
				fmt.Fprintf(&b, "- Date Range: %s to %s\n", tp.DateRange.Earliest, tp.DateRange.Latest)
			}
		}
	}
	if off := s.Officers; off != nil {
		fmt.Fprintf(&b, "\nOfficers (%d total, mean %.2f deviations, max %d):\n",
			off.TotalOfficers, off.Distribution.Mean, off.Distribution.Max)
		for _, of := range firstN(off.Top, 5) {
			fmt.Fprintf(&b, "- %s: %d deviations across %d cases, mostly %s\n",
				of.OfficerID, of.TotalDeviations, of.UniqueCases, of.TopDeviationType)
		}
	}
	if c := s.Correlations; c != nil && len(c.HighRiskOfficers) > 0 {
		b.WriteString("\nHigh-Risk Officers:\n")
		for _, r := range c.HighRiskOfficers {
			fmt.Fprintf(&b, "- %s: risk %.1f (%d critical, %d high of %d)\n",
				r.OfficerID, r.RiskScore, r.CriticalCount, r.HighCount, r.TotalDeviations)
		}
	}
	if r := s.Risk; r != nil {
		fmt.Fprintf(&b, "\nRisk Indicators:\n- Critical Mass: %.1f (%s)\n- Top 5 Officer Concentration: %.1f%%",
			r.CriticalMassScore, r.CriticalMassAssessment, r.Concentration.Top5OfficerPercentage)
		if r.Concentration.IsConcentrated {
			b.WriteString(" (concentrated)")
		}
		fmt.Fprintf(&b, "\n- Issue Diversity: %s\n", r.Diversity.Assessment)
	}
	return b.String()
}

func writeShares(b *strings.Builder, shares []stats.Share) {
	for _, s := range shares {
		fmt.Fprintf(b, "- %s: %d (%.1f%%)\n", s.Label, s.Count, s.Percentage)
	}
}

func firstN[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}
