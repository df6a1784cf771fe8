package narrative

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"sopguard/internal/sop"
	"sopguard/internal/stats"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func devs(n int) []sop.Deviation {
	out := make([]sop.Deviation, n)
	for i := range out {
		out[i] = sop.Deviation{
			CaseID:        fmt.Sprintf("LOAN-%04d", i),
			OfficerID:     "OFF-1",
			DeviationType: sop.TypeMissingStep,
			Severity:      sop.SeverityCritical,
			Description:   "Missing required step: credit check",
		}
	}
	return out
}

// response builds a valid collaborator reply with n items per list, tagged
// with the batch number.
func response(batch, n int) []byte {
	items := func(kind string) []string {
		out := make([]string, n)
		for i := range out {
			out[i] = fmt.Sprintf("%s %d.%d", kind, batch, i)
		}
		return out
	}
	b, _ := json.Marshal(map[string]any{
		"overall_summary":     fmt.Sprintf("batch %d", batch),
		"behavioral_patterns": items("pattern"),
		"hidden_rules":        items("rule"),
		"systemic_issues":     items("issue"),
		"time_patterns":       items("time"),
		"risk_insights":       items("risk"),
		"recommendations":     items("rec"),
	})
	return b
}

func TestParse(t *testing.T) {
	valid := `{"overall_summary":"s","behavioral_patterns":[],"hidden_rules":[],"systemic_issues":[],` +
		`"recommendations":["a",{"priority":"HIGH","recommendation":"Audit OFF-1"},{"recommendation":"Retrain"}]}`
	want := []string{"a", "[HIGH] Audit OFF-1", "[NORMAL] Retrain"}

	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"bare", valid, false},
		{"json fence", "```json\n" + valid + "\n```", false},
		{"plain fence", "```\n" + valid + "\n```", false},
		{"prose around", "Here is the analysis:\n" + valid + "\nLet me know.", false},
		{"missing field", `{"overall_summary":"s","behavioral_patterns":[]}`, true},
		{"not json", "the model refused", true},
		{"truncated", `{"overall_summary": "s", "behavioral_patterns": [`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.in))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if diff := cmp.Diff(want, got.Recommendations); diff != "" {
				t.Errorf("recommendations mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAnalyze_SingleCall(t *testing.T) {
	var calls int
	n := NarratorFunc(func(_ context.Context, req Request) ([]byte, error) {
		calls++
		if req.System != SystemPrompt || req.StatisticalContext != "ctx" {
			t.Errorf("unexpected request framing: %+v", req)
		}
		return response(1, 2), nil
	})

	got, err := NewAnalyzer(n, DefaultConfig(), nil).Analyze(context.Background(), devs(40), "ctx")
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if got.APICallsMade != 1 || got.DeviationsAnalyzed != 40 {
		t.Errorf("api calls/analyzed = %d/%d, want 1/40", got.APICallsMade, got.DeviationsAnalyzed)
	}
	if got.OverallSummary != "batch 1" {
		t.Errorf("summary = %q", got.OverallSummary)
	}
}

func TestAnalyze_BatchesAndAggregates(t *testing.T) {
	var mu sync.Mutex
	sizes := map[int]int{}
	n := NarratorFunc(func(_ context.Context, req Request) ([]byte, error) {
		mu.Lock()
		sizes[req.Batch] = len(req.Deviations)
		mu.Unlock()
		if req.Batches != 3 {
			t.Errorf("Batches = %d, want 3", req.Batches)
		}
		return response(req.Batch, 4), nil
	})
	cfg := Config{BatchSize: 100, Concurrency: 2, RatePerSecond: 1000}

	got, err := NewAnalyzer(n, cfg, nil).Analyze(context.Background(), devs(250), "")
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(map[int]int{1: 100, 2: 100, 3: 50}, sizes); diff != "" {
		t.Errorf("batch sizes (-want +got):\n%s", diff)
	}
	if want := "Aggregated analysis from 3 batches covering 250 deviations"; got.OverallSummary != want {
		t.Errorf("summary = %q, want %q", got.OverallSummary, want)
	}
	lens := map[string]int{
		"behavioral":      len(got.BehavioralPatterns),
		"hidden":          len(got.HiddenRules),
		"systemic":        len(got.SystemicIssues),
		"time":            len(got.TimePatterns),
		"risk":            len(got.RiskInsights),
		"recommendations": len(got.Recommendations),
	}
	wantLens := map[string]int{"behavioral": 10, "hidden": 5, "systemic": 5, "time": 5, "risk": 10, "recommendations": 10}
	if diff := cmp.Diff(wantLens, lens); diff != "" {
		t.Errorf("truncation (-want +got):\n%s", diff)
	}
	if got.BehavioralPatterns[0] != "pattern 1.0" || got.BehavioralPatterns[4] != "pattern 2.0" {
		t.Errorf("batch order not preserved: %v", got.BehavioralPatterns)
	}
	if got.APICallsMade != 3 {
		t.Errorf("api calls = %d, want 3", got.APICallsMade)
	}
}

func TestAnalyze_FailedBatchFallsBack(t *testing.T) {
	n := NarratorFunc(func(_ context.Context, req Request) ([]byte, error) {
		if req.Batch == 2 {
			return nil, errors.New("upstream 529")
		}
		return response(req.Batch, 1), nil
	})

	got, err := NewAnalyzer(n, Config{BatchSize: 10}, nil).Analyze(context.Background(), devs(25), "")
	if err != nil {
		t.Fatal(err)
	}
	if got.APICallsMade != 2 {
		t.Errorf("api calls = %d, want 2", got.APICallsMade)
	}
	want := []any{"risk 1.0", "LLM analysis unavailable - manual review recommended", "risk 3.0"}
	if diff := cmp.Diff(want, got.RiskInsights); diff != "" {
		t.Errorf("risk insights (-want +got):\n%s", diff)
	}
}

func TestAnalyze_EmptyFallbacks(t *testing.T) {
	bad := NarratorFunc(func(context.Context, Request) ([]byte, error) {
		return []byte("```json\n{\"overall_summary\": \"half\"}\n```"), nil
	})
	tests := []struct {
		name string
		a    *Analyzer
		devs []sop.Deviation
	}{
		{"no narrator", NewAnalyzer(nil, DefaultConfig(), nil), devs(3)},
		{"no deviations", NewAnalyzer(bad, DefaultConfig(), nil), nil},
		{"malformed response", NewAnalyzer(bad, DefaultConfig(), nil), devs(3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.a.Analyze(context.Background(), tt.devs, "")
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(Empty(), got); diff != "" {
				t.Errorf("want Empty (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAnalyze_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n := NarratorFunc(func(ctx context.Context, _ Request) ([]byte, error) {
		return nil, ctx.Err()
	})

	_, err := NewAnalyzer(n, Config{BatchSize: 5, Concurrency: 3}, nil).Analyze(ctx, devs(20), "")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestStatisticalContext(t *testing.T) {
	empty := StatisticalContext(stats.Empty())
	if !strings.Contains(empty, "Total Deviations: 0") || !strings.Contains(empty, "No deviations to analyze.") {
		t.Errorf("empty context:\n%s", empty)
	}

	d := devs(4)
	d[0].DetectedAt = "2024-06-03 09:30:00"
	text := StatisticalContext(stats.Analyze(d))
	for _, want := range []string{
		"Total Deviations: 4",
		"Severity (score 100.0/100, Very High Risk",
		"- critical: 4 (100.0%)",
		"Deviation Types (1 unique):",
		"Peak Hours: 09:00",
		"High-Risk Officers:",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("context missing %q:\n%s", want, text)
		}
	}
}

// TestHelperNarrator is not a real test: Command tests re-execute the test
// binary with it selected to stand in for an external narrator.
func TestHelperNarrator(t *testing.T) {
	if os.Getenv("SOPGUARD_HELPER_NARRATOR") != "1" {
		t.Skip("helper process only")
	}
	if os.Getenv("SOPGUARD_HELPER_FAIL") == "1" {
		fmt.Fprint(os.Stderr, "quota exceeded")
		os.Exit(3)
	}
	var p CommandPayload
	if err := json.NewDecoder(os.Stdin).Decode(&p); err != nil {
		fmt.Fprint(os.Stderr, err)
		os.Exit(2)
	}
	fmt.Printf("```json\n%s\n```\n", response(p.Batch, len(p.Deviations)))
	os.Exit(0)
}

func helperCommand(env ...string) *Command {
	return &Command{
		Path: os.Args[0],
		Args: []string{"-test.run=^TestHelperNarrator$"},
		Env:  append([]string{"SOPGUARD_HELPER_NARRATOR=1"}, env...),
	}
}

func TestCommand_RoundTrip(t *testing.T) {
	got, err := NewAnalyzer(helperCommand(), DefaultConfig(), nil).Analyze(context.Background(), devs(3), "ctx")
	if err != nil {
		t.Fatal(err)
	}
	want := []any{"pattern 1.0", "pattern 1.1", "pattern 1.2"}
	if diff := cmp.Diff(want, got.BehavioralPatterns); diff != "" {
		t.Errorf("patterns (-want +got):\n%s", diff)
	}
	if got.APICallsMade != 1 {
		t.Errorf("api calls = %d, want 1", got.APICallsMade)
	}
}

func TestCommand_FailureFallsBack(t *testing.T) {
	c := helperCommand("SOPGUARD_HELPER_FAIL=1")
	_, err := c.Narrate(context.Background(), Request{Batch: 1, Batches: 1})
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("Narrate err = %v, want stderr in message", err)
	}

	got, err := NewAnalyzer(c, DefaultConfig(), nil).Analyze(context.Background(), devs(2), "")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Empty(), got); diff != "" {
		t.Errorf("want Empty (-want +got):\n%s", diff)
	}
}

func TestParseCommand(t *testing.T) {
	c, err := ParseCommand("  python3 narrate.py --model fast ")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(&Command{Path: "python3", Args: []string{"narrate.py", "--model", "fast"}}, c); diff != "" {
		t.Errorf("ParseCommand (-want +got):\n%s", diff)
	}
	if _, err := ParseCommand("   "); err == nil {
		t.Error("expected error for empty command")
	}
}
