// Package display provides human-readable names for machine codes.
//
// Rule: code is for machines, words are for humans.
// Use these functions in CLI output and markdown reports.
// Keep raw codes for JSON fields, map keys, and equality comparisons.
package display

import (
	"fmt"
	"strings"

	"sopguard/internal/sop"
)

// --- Deviation Types ---

// deviationTypes holds names that plain title-casing gets wrong.
var deviationTypes = map[string]string{
	"tat_breach":                           "TAT Breach",
	"kyc_incomplete_progression":           "KYC Incomplete Progression",
	"pep_no_edd_or_extra_approval":         "PEP Without EDD or Extra Approval",
	"ltv_breach":                           "LTV Breach",
	"emi_to_income_breach":                 "EMI-to-Income Breach",
	"post_disbursement_qc_delay":           "Post-Disbursement QC Delay",
	"post_disbursement_qc_missing":         "Post-Disbursement QC Missing",
	"pre_disbursement_condition_unmet":     "Pre-Disbursement Condition Unmet",
	"low_score_approved_without_exception": "Low Score Approved Without Exception",
}

// DeviationType returns the human-readable name for a deviation type.
// "missing_step" -> "Missing Step". Empty stays empty.
func DeviationType(code string) string {
	if name, ok := deviationTypes[code]; ok {
		return name
	}
	return titleWords(code)
}

// DeviationTypeWithCode returns "Missing Step (missing_step)" format.
func DeviationTypeWithCode(code string) string {
	if code == "" {
		return ""
	}
	return DeviationType(code) + " (" + code + ")"
}

// --- Severities ---

// Severity returns the capitalized canonical severity. Synonyms and
// unknown values are normalized first.
func Severity(s sop.Severity) string {
	n, _ := sop.NormalizeSeverity(string(s))
	return titleWords(string(n))
}

// --- Categories ---

var categories = map[string]string{
	"kyc_aml":      "KYC / AML",
	"data_quality": "Data Quality",
}

// Category returns the human-readable name for a rollup category.
func Category(name string) string {
	if n, ok := categories[name]; ok {
		return n
	}
	return titleWords(name)
}

// --- Time of Day ---

var periods = map[sop.TimeBucket]string{
	sop.Morning:   "Morning (06-12)",
	sop.Afternoon: "Afternoon (12-18)",
	sop.Evening:   "Evening (18-24)",
	sop.Night:     "Night (00-06)",
}

// Period names a time-of-day bucket with its hour range.
func Period(bucket string) string {
	if name, ok := periods[sop.TimeBucket(bucket)]; ok {
		return name
	}
	return bucket
}

// --- Pipeline Steps ---

var steps = map[string]string{
	"feature_engineering":  "Features",
	"clustering":           "Cluster",
	"anomaly_detection":    "Anomalies",
	"intelligent_sampling": "Sample",
}

// Step returns the short name for an ML pipeline step.
// "anomaly_detection" -> "Anomalies".
func Step(code string) string {
	if name, ok := steps[code]; ok {
		return name
	}
	return code
}

// StepPath converts a slice of step codes to a human-readable path.
// ["feature_engineering", "clustering"] -> "Features → Cluster"
func StepPath(codes []string) string {
	names := make([]string, len(codes))
	for i, c := range codes {
		names[i] = Step(c)
	}
	return strings.Join(names, " → ")
}

// --- Clusters ---

// Cluster names a cluster label; negative labels are DBSCAN noise.
func Cluster(label int) string {
	if label < 0 {
		return "Noise"
	}
	return fmt.Sprintf("Cluster %d", label)
}

// ClusterKey humanizes a summary key such as "cluster_2" or "noise".
func ClusterKey(key string) string {
	if key == "noise" {
		return "Noise"
	}
	if n, ok := strings.CutPrefix(key, "cluster_"); ok {
		return "Cluster " + n
	}
	return key
}

// --- Reasons ---

var reasons = map[string]string{
	"insufficient_data":          "Not enough deviations for ML",
	"feature_engineering_failed": "Feature engineering failed",
}

// Reason explains why the ML stages were skipped.
func Reason(code string) string {
	if r, ok := reasons[code]; ok {
		return r
	}
	return code
}

// titleWords turns snake_case into Title Case.
func titleWords(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == ' ' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
