package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sopguard/internal/sop"
)

// run executes the root command in-process with fresh flag state.
func run(t *testing.T, args ...string) (stdout string, err error) {
	t.Helper()
	rootFlags = struct {
		configPath  string
		logLevel    string
		logFormat   string
		metricsFile string
	}{}
	detectFlags.logsPath, detectFlags.rulesPath, detectFlags.output = "", "", ""
	cleanFlags.file, cleanFlags.output = "", ""
	statsFlags.file, statsFlags.markdown, statsFlags.json, statsFlags.raw = "", false, false, false
	analyzeFlags.file, analyzeFlags.output, analyzeFlags.narrator = "", "", ""
	analyzeFlags.report, analyzeFlags.markdown, analyzeFlags.prompt, analyzeFlags.noML = false, false, false, false
	sampleFlags.file, sampleFlags.output, sampleFlags.target = "", "", 0
	sampleFlags.context, sampleFlags.summary, sampleFlags.raw = false, false, false
	profileFlags.logsPath, profileFlags.file, profileFlags.officer, profileFlags.json = "", "", "", false

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err = rootCmd.Execute()
	if err != nil {
		t.Logf("stderr:\n%s", errOut.String())
	}
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// fixtureDeviations writes n distinct, valid deviations spread over three
// officers and two types.
func fixtureDeviations(t *testing.T, dir string, n int) string {
	t.Helper()
	sevs := []sop.Severity{sop.SeverityCritical, sop.SeverityHigh, sop.SeverityMedium, sop.SeverityLow}
	devs := make([]sop.Deviation, n)
	for i := range devs {
		typ := sop.TypeMissingStep
		if i%3 == 0 {
			typ = sop.TypeTimingViolation
		}
		devs[i] = sop.Deviation{
			CaseID:        fmt.Sprintf("LOAN-%04d", i),
			OfficerID:     fmt.Sprintf("OFF-%d", i%3),
			DeviationType: typ,
			Severity:      sevs[i%len(sevs)],
			Description:   fmt.Sprintf("Deviation number %d found during review", i),
			DetectedAt:    fmt.Sprintf("2024-03-%02d %02d:15:00", 1+i%28, i%24),
		}
	}
	data, err := json.Marshal(map[string]any{"deviations": devs})
	if err != nil {
		t.Fatal(err)
	}
	return writeFile(t, dir, "deviations.json", string(data))
}

const logsJSON = `[
  {"case_id": "C1", "officer_id": "OFF-1", "step_name": "Application Received", "action": "complete", "timestamp": "2024-03-04T09:00:00"},
  {"case_id": "C1", "officer_id": "OFF-1", "step_name": "Final Approval", "action": "complete", "timestamp": "2024-03-04T10:00:00"},
  {"case_id": "C2", "officer_id": "OFF-2", "step_name": "Application Received", "action": "complete", "timestamp": "2024-03-05T09:00:00"},
  {"case_id": "C2", "officer_id": "OFF-2", "step_name": "Credit Check", "action": "complete", "timestamp": "2024-03-05T10:00:00"},
  {"case_id": "C2", "officer_id": "OFF-2", "step_name": "Final Approval", "action": "complete", "timestamp": "2024-03-05T11:00:00"}
]`

const rulesYAML = `rules:
  - id: 1
    type: sequence
    description: Application received
    step_number: 1
  - id: 2
    rule_type: sequence
    description: Credit check
    step_number: 2
  - id: 3
    rule_type: sequence
    description: Final approval
    step_number: 3
`

func TestDetect_WritesDeviations(t *testing.T) {
	dir := t.TempDir()
	logs := writeFile(t, dir, "logs.json", logsJSON)
	rules := writeFile(t, dir, "rules.yaml", rulesYAML)
	outPath := filepath.Join(dir, "out.json")

	if _, err := run(t, "detect", "--logs", logs, "--rules", rules, "-o", outPath); err != nil {
		t.Fatalf("detect: %v", err)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	var devs []sop.Deviation
	if err := json.Unmarshal(data, &devs); err != nil {
		t.Fatal(err)
	}
	var missing []string
	for _, d := range devs {
		if d.DeviationType == sop.TypeMissingStep {
			missing = append(missing, d.CaseID)
		}
	}
	if len(missing) != 1 || missing[0] != "C1" {
		t.Errorf("missing_step cases = %v, want [C1]", missing)
	}
}

func TestDetect_RequiresFlags(t *testing.T) {
	if _, err := run(t, "detect", "--logs", "x.json"); err == nil {
		t.Fatal("expected required-flag error")
	}
}

func TestClean_JSONToStdout(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "devs.json", `[
	  {"case_id": "A", "officer_id": "O", "deviation_type": "missing_step", "severity": "HIGH", "description": "Missing required step: credit check"},
	  {"case_id": "A", "officer_id": "O", "deviation_type": "missing_step", "severity": "high", "description": "Missing required step: credit check"}
	]`)

	out, err := run(t, "clean", "-f", path)
	if err != nil {
		t.Fatalf("clean: %v", err)
	}
	var got struct {
		Cleaned []sop.Deviation `json:"cleaned_deviations"`
		Report  struct {
			DuplicatesRemoved int `json:"duplicates_removed"`
			FinalCount        int `json:"final_count"`
		} `json:"cleaning_report"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if got.Report.DuplicatesRemoved != 1 || got.Report.FinalCount != 1 || len(got.Cleaned) != 1 {
		t.Errorf("report = %+v, cleaned = %d", got.Report, len(got.Cleaned))
	}
	if got.Cleaned[0].Severity != sop.SeverityHigh {
		t.Errorf("severity = %q, want high", got.Cleaned[0].Severity)
	}
}

func TestStats_Markdown(t *testing.T) {
	dir := t.TempDir()
	path := fixtureDeviations(t, dir, 12)

	out, err := run(t, "stats", "-f", path, "--markdown")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	for _, want := range []string{"### Overview", "| Deviations |", "Missing Step", "Timing Violation", "### Risk Indicators"} {
		if !strings.Contains(out, want) {
			t.Errorf("stats output missing %q:\n%s", want, out)
		}
	}
}

func TestAnalyze_ResultAndMetrics(t *testing.T) {
	dir := t.TempDir()
	path := fixtureDeviations(t, dir, 40)
	outPath := filepath.Join(dir, "result.json")
	metricsPath := filepath.Join(dir, "sopguard.prom")

	if _, err := run(t, "--metrics-file", metricsPath, "analyze", "-f", path, "-o", outPath); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	var got struct {
		RunID    string            `json:"run_id"`
		Cleaned  []json.RawMessage `json:"cleaned_deviations"`
		Selected []sop.Deviation   `json:"selected_deviations"`
		ML       struct {
			MLApplied bool `json:"ml_applied"`
		} `json:"ml_metadata"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.RunID == "" || len(got.Cleaned) != 40 || !got.ML.MLApplied {
		t.Errorf("run_id %q, cleaned %d, ml_applied %v", got.RunID, len(got.Cleaned), got.ML.MLApplied)
	}
	if len(got.Selected) == 0 || len(got.Selected) > 40 {
		t.Errorf("selected = %d", len(got.Selected))
	}
	for _, d := range got.Selected {
		if d.MLLabels == nil {
			t.Fatalf("selected deviation %s has no ml_labels", d.CaseID)
		}
	}

	prom, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatalf("metrics file: %v", err)
	}
	if !strings.Contains(string(prom), `sopguard_runs_total{ml_applied="true"} 1`) {
		t.Errorf("metrics file missing run counter:\n%s", prom)
	}
}

func TestAnalyze_ReportAndPrompt(t *testing.T) {
	dir := t.TempDir()
	path := fixtureDeviations(t, dir, 5)

	out, err := run(t, "analyze", "-f", path, "--report", "--prompt")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	for _, want := range []string{"STATISTICAL CONTEXT:", "DATA CLEANING", "ML skipped: Not enough deviations for ML"} {
		if !strings.Contains(strings.ToUpper(out), strings.ToUpper(want)) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, `"run_id"`) {
		t.Error("JSON should not be printed when --report or --prompt is set without -o")
	}
}

func TestSample_Context(t *testing.T) {
	dir := t.TempDir()
	path := fixtureDeviations(t, dir, 30)

	out, err := run(t, "sample", "-f", path, "--context", "--target", "10")
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	for _, want := range []string{"ML ANALYSIS CONTEXT:", "Intelligent Sampling:"} {
		if !strings.Contains(out, want) {
			t.Errorf("context missing %q:\n%s", want, out)
		}
	}
}

func TestProfile_Officer(t *testing.T) {
	dir := t.TempDir()
	logs := writeFile(t, dir, "logs.json", logsJSON)

	out, err := run(t, "profile", "--logs", logs, "--officer", "OFF-2", "--json")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	var got []struct {
		OfficerID  string `json:"officer_id"`
		TotalCases int    `json:"total_cases"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(got) != 1 || got[0].OfficerID != "OFF-2" || got[0].TotalCases != 1 {
		t.Errorf("profiles = %+v", got)
	}

	if _, err := run(t, "profile", "--logs", logs, "--officer", "OFF-404"); err == nil {
		t.Error("expected error for unknown officer")
	}
}

func TestConfig_InvalidRejected(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "bad.yaml", "ml:\n  contamination: 0.9\n")
	if _, err := run(t, "--config", cfg, "version"); err == nil || !strings.Contains(err.Error(), "ml.contamination") {
		t.Errorf("err = %v, want contamination validation error", err)
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "sopguard dev") {
		t.Errorf("version output = %q", out)
	}
}
