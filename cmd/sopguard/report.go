package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"sopguard/internal/clean"
	"sopguard/internal/display"
	"sopguard/internal/format"
	"sopguard/internal/ml"
	"sopguard/internal/narrative"
	"sopguard/internal/profile"
	"sopguard/internal/sop"
	"sopguard/internal/stats"
)

// printTable writes a titled table. Titles become headings outside ASCII
// mode, where go-pretty would drop them.
func printTable(w io.Writer, mode format.Mode, title string, tb format.TableBuilder) {
	switch mode {
	case format.Markdown:
		fmt.Fprintf(w, "### %s\n\n%s\n\n", title, tb.String())
	case format.CSV:
		fmt.Fprintf(w, "# %s\n%s\n\n", title, tb.String())
	default:
		tb.Title(title)
		fmt.Fprintf(w, "%s\n\n", tb.String())
	}
}

func shareTable(mode format.Mode, header string, shares []stats.Share, name func(string) string) format.TableBuilder {
	tb := format.NewTable(mode)
	tb.Header(header, "Count", "Share")
	for _, s := range shares {
		tb.Row(name(s.Label), s.Count, format.Pct(s.Percentage))
	}
	tb.Columns(
		format.ColumnConfig{Number: 2, Align: format.AlignRight},
		format.ColumnConfig{Number: 3, Align: format.AlignRight},
	)
	return tb
}

func severityName(s string) string { return display.Severity(sop.Severity(s)) }

func renderCleaning(w io.Writer, mode format.Mode, rep clean.Report, q clean.Quality) {
	tb := format.NewTable(mode)
	tb.Header("Step", "Records")
	tb.Row("Input", rep.OriginalCount)
	tb.Row("Duplicates removed", rep.DuplicatesRemoved)
	tb.Row("Types fixed", rep.InvalidTypesFixed)
	tb.Row("Missing values handled", rep.MissingValuesHandled)
	tb.Row("Text normalized", rep.TextNormalized)
	tb.Row("Dropped by validation", rep.ValidationDropped)
	tb.Footer("Output", rep.FinalCount)
	tb.Columns(format.ColumnConfig{Number: 2, Align: format.AlignRight})
	printTable(w, mode, "Data Cleaning", tb)

	qt := format.NewTable(mode)
	qt.Header("Score", "Grade", "Assessment", "Issues")
	qt.Row(fmt.Sprintf("%.1f", q.Score), q.Grade, q.Assessment,
		fmt.Sprintf("%d (%s)", q.TotalIssues, format.Pct(q.IssuePercentage)))
	printTable(w, mode, "Data Quality", qt)

	if len(rep.Warnings) > 0 {
		fmt.Fprintf(w, "Warnings (%d):\n", len(rep.Warnings))
		for _, msg := range rep.Warnings {
			fmt.Fprintf(w, "  - %s\n", msg)
		}
		fmt.Fprintln(w)
	}
}

func renderStats(w io.Writer, mode format.Mode, s stats.Summary) {
	o := s.Overview
	ot := format.NewTable(mode)
	ot.Header("Deviations", "Cases", "Officers", "Per Case", "Per Officer")
	ot.Row(o.TotalDeviations, o.UniqueCases, o.UniqueOfficers,
		fmt.Sprintf("%.2f", o.AverageDeviationsPerCase), fmt.Sprintf("%.2f", o.AverageDeviationsPerOfficer))
	printTable(w, mode, "Overview", ot)
	if o.TotalDeviations == 0 {
		fmt.Fprintln(w, "No deviations to analyze.")
		return
	}

	if sev := s.Severity; sev != nil {
		printTable(w, mode,
			fmt.Sprintf("Severity (score %.1f/100, %s)", sev.Score, sev.Assessment),
			shareTable(mode, "Severity", sev.Distribution, severityName))
	}
	if t := s.Types; t != nil {
		printTable(w, mode, fmt.Sprintf("Deviation Types (%d unique)", t.UniqueTypes),
			shareTable(mode, "Type", t.Top, display.DeviationType))
		printTable(w, mode, "Categories", shareTable(mode, "Category", t.Categories, display.Category))
	}
	if tp := s.Temporal; tp != nil && tp.HasData {
		printTable(w, mode,
			fmt.Sprintf("Time of Day (peak hours %s, peak days %s)",
				strings.Join(tp.PeakHours, ", "), strings.Join(tp.PeakDays, ", ")),
			shareTable(mode, "Period", tp.Periods, display.Period))
	}
	if off := s.Officers; off != nil {
		tb := format.NewTable(mode)
		tb.Header("Officer", "Deviations", "Cases", "Per Case", "Top Type")
		for _, of := range off.Top {
			tb.Row(of.OfficerID, of.TotalDeviations, of.UniqueCases,
				fmt.Sprintf("%.2f", of.AvgDeviationsPerCase), display.DeviationType(of.TopDeviationType))
		}
		printTable(w, mode, fmt.Sprintf("Officers (%d total)", off.TotalOfficers), tb)
	}
	if c := s.Correlations; c != nil && len(c.HighRiskOfficers) > 0 {
		tb := format.NewTable(mode)
		tb.Header("Officer", "Risk", "Critical", "High", "Total")
		for _, r := range c.HighRiskOfficers {
			tb.Row(r.OfficerID, fmt.Sprintf("%.1f", r.RiskScore), r.CriticalCount, r.HighCount, r.TotalDeviations)
		}
		printTable(w, mode, "High-Risk Officers", tb)
	}
	if r := s.Risk; r != nil {
		tb := format.NewTable(mode)
		tb.Header("Indicator", "Value", "Assessment")
		tb.Row("Critical mass", fmt.Sprintf("%.1f", r.CriticalMassScore), r.CriticalMassAssessment)
		tb.Row("Top-5 officer share", format.Pct(r.Concentration.Top5OfficerPercentage),
			format.BoolMark(!r.Concentration.IsConcentrated)+" "+concentration(r.Concentration.IsConcentrated))
		tb.Row("Issue diversity", fmt.Sprintf("%.2f", r.Diversity.DiversityScore), r.Diversity.Assessment)
		printTable(w, mode, "Risk Indicators", tb)
	}
}

func concentration(concentrated bool) string {
	if concentrated {
		return "Concentrated"
	}
	return "Spread"
}

func renderML(w io.Writer, mode format.Mode, meta *ml.Metadata) {
	if meta == nil {
		return
	}
	if !meta.MLApplied {
		fmt.Fprintf(w, "ML skipped: %s (minimum %d deviations)\n\n", display.Reason(meta.Reason), meta.MinimumRequired)
		return
	}
	fmt.Fprintf(w, "ML pipeline: %s in %s\n\n",
		display.StepPath(meta.PipelineSteps), format.FmtDuration(time.Duration(meta.ElapsedMS)*time.Millisecond))

	if c := meta.Clustering; c != nil {
		tb := format.NewTable(mode)
		tb.Header("Cluster", "Size", "Share", "Severity", "Top Type", "Top Officer")
		for _, s := range c.Summary {
			tb.Row(display.ClusterKey(s.Name), s.Size, format.Pct(s.Percentage),
				severityName(s.TopSeverity), display.DeviationType(s.TopDeviationType), s.TopOfficer)
		}
		printTable(w, mode, fmt.Sprintf("Clusters (%s, %d clusters, %d noise)", c.Method, c.NClusters, c.NoiseCount), tb)
	}
	if a := meta.Anomaly; a != nil {
		fmt.Fprintf(w, "Anomalies: %d (%s), threshold %.4f\n\n", a.NAnomalies, format.Pct(a.AnomalyPercentage), a.Threshold)
	}
	if s := meta.Sampling; s != nil {
		tb := format.NewTable(mode)
		tb.Header("Step", "Added")
		tb.Row("Anomalies", s.Steps.Anomalies)
		tb.Row("Cluster representatives", s.Steps.ClusterRepresentatives)
		tb.Row("Severity coverage", s.Steps.SeverityCoverage)
		tb.Row("Temporal coverage", s.Steps.TemporalCoverage)
		tb.Row("Officer coverage", s.Steps.OfficerCoverage)
		tb.Footer("Selected", fmt.Sprintf("%d of %d (%s)", s.SelectedCount, s.TotalDeviations, format.Ratio(s.CompressionRatio)))
		tb.Columns(format.ColumnConfig{Number: 2, Align: format.AlignRight})
		printTable(w, mode, "Sampling", tb)
	}
}

func renderProfiles(w io.Writer, mode format.Mode, profiles []profile.Profile) {
	tb := format.NewTable(mode)
	tb.Header("Officer", "Cases", "Deviations", "Rate", "Daily Load", "Risk", "Peak Day", "Most Common")
	for _, p := range profiles {
		tb.Row(p.OfficerID, p.TotalCases, p.DeviationCount, format.Pct(p.DeviationRate),
			fmt.Sprintf("%.2f", p.AverageWorkload), fmt.Sprintf("%.1f", p.RiskScore),
			p.Patterns.PeakWorkloadDay, p.Patterns.MostCommonDeviation)
	}
	tb.Columns(format.ColumnConfig{Number: 8, MaxWidth: 40})
	printTable(w, mode, "Officer Profiles", tb)
}

func renderNarrative(w io.Writer, a narrative.Analysis) {
	fmt.Fprintf(w, "Pattern Analysis (%d calls, %d deviations)\n%s\n",
		a.APICallsMade, a.DeviationsAnalyzed, a.OverallSummary)
	sections := []struct {
		title string
		items []any
	}{
		{"Behavioral patterns", a.BehavioralPatterns},
		{"Hidden rules", a.HiddenRules},
		{"Systemic issues", a.SystemicIssues},
		{"Time patterns", a.TimePatterns},
		{"Risk insights", a.RiskInsights},
	}
	for _, s := range sections {
		if len(s.items) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s:\n", s.title)
		for _, it := range s.items {
			fmt.Fprintf(w, "  - %s\n", format.Truncate(fmt.Sprint(it), 160))
		}
	}
	if len(a.Recommendations) > 0 {
		fmt.Fprintln(w, "\nRecommendations:")
		for i, r := range a.Recommendations {
			fmt.Fprintf(w, "  %d. %s\n", i+1, r)
		}
	}
	fmt.Fprintln(w)
}
