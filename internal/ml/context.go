package ml

import (
	"fmt"
	"strings"
)

// ContextText renders the metadata as plain text for a narrative prompt.
// It is empty when the pipeline did not run.
func ContextText(meta Metadata) string {
	if !meta.MLApplied {
		return ""
	}
	var b strings.Builder

	b.WriteString("ML ANALYSIS CONTEXT:\n\n")
	if c := meta.Clustering; c != nil {
		fmt.Fprintf(&b, "Clustering Analysis:\n- Method: %s\n- Clusters Found: %d\n- Noise Points: %d\n\n",
			c.Method, c.NClusters, c.NoiseCount)
		b.WriteString("Cluster Summary:\n")
		for _, s := range c.Summary {
			if s.Label < 0 {
				continue
			}
			fmt.Fprintf(&b, "  %s: %d deviations (%.1f%%)\n    - Top Type: %s\n    - Top Severity: %s\n",
				strings.ToUpper(s.Name), s.Size, s.Percentage, s.TopDeviationType, s.TopSeverity)
		}
		b.WriteString("\n")
	}

	if a := meta.Anomaly; a != nil {
		fmt.Fprintf(&b, "Anomaly Detection:\n- Anomalies Detected: %d (%.1f%%)\n- Method: %s\n",
			a.NAnomalies, a.AnomalyPercentage, a.Method)
		if a.Analysis != nil && a.Analysis.MostAnomalous != nil {
			ex := a.Analysis.MostAnomalous
			fmt.Fprintf(&b, "\n  Most Anomalous Case:\n    - Case: %s\n    - Type: %s\n    - Score: %.3f\n",
				ex.CaseID, ex.DeviationType, ex.Score)
		}
		b.WriteString("\n")
	}

	if s := meta.Sampling; s != nil {
		fmt.Fprintf(&b, "Intelligent Sampling:\n- Total Deviations: %d\n- Selected for Analysis: %d\n- Compression: %.1fx\n",
			s.TotalDeviations, s.SelectedCount, s.CompressionRatio)
		fmt.Fprintf(&b, "- Composition:\n  * ALL %d anomalies (100%% included)\n  * %d cluster representatives\n\n",
			s.Composition.Anomalies, s.Composition.ClusterRepresentatives)
		fmt.Fprintf(&b, "IMPORTANT: You are analyzing %d carefully selected representatives that cover ALL patterns across %d total deviations.\n",
			s.SelectedCount, s.TotalDeviations)
		b.WriteString("- ALL anomalies are included (none missed)\n")
		b.WriteString("- Representatives selected from each cluster\n")
		b.WriteString("- Diverse coverage ensured (severity, time, officers)\n\n")
		b.WriteString("Use the cluster labels and anomaly flags to understand which deviations are unusual vs. part of common patterns.\n")
	}
	return b.String()
}
