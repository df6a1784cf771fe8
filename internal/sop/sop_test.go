package sop

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"
)

func TestNormalizeSeverity(t *testing.T) {
	tests := []struct {
		raw          string
		want         Severity
		wantRepaired bool
	}{
		{"critical", SeverityCritical, false},
		{"  HIGH ", SeverityHigh, false},
		{"crit", SeverityCritical, true},
		{"minor", SeverityLow, true},
		{"important", SeverityHigh, true},
		{"catastrophic", SeverityMedium, true},
		{"", SeverityMedium, true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, repaired := NormalizeSeverity(tt.raw)
			if got != tt.want || repaired != tt.wantRepaired {
				t.Errorf("NormalizeSeverity(%q) = %q,%v, want %q,%v", tt.raw, got, repaired, tt.want, tt.wantRepaired)
			}
		})
	}
}

func TestRule_UnmarshalAcceptsLegacyType(t *testing.T) {
	var rules []Rule
	data := `[{"id":1,"type":"Sequence","description":"Credit check","step_number":2,"severity":"high"},
	          {"id":2,"rule_type":"approval","description":"Manager approval","severity":"critical"}]`
	if err := json.Unmarshal([]byte(data), &rules); err != nil {
		t.Fatal(err)
	}
	step := 2
	want := []Rule{
		{ID: 1, Type: RuleSequence, Description: "Credit check", StepNumber: &step, Severity: SeverityHigh},
		{ID: 2, Type: RuleApproval, Description: "Manager approval", Severity: SeverityCritical},
	}
	if diff := cmp.Diff(want, rules); diff != "" {
		t.Errorf("rules mismatch (-want +got):\n%s", diff)
	}
	if rules[1].Order() != 999 {
		t.Errorf("Order() without step_number = %d, want 999", rules[1].Order())
	}
}

func TestRule_UnmarshalYAML(t *testing.T) {
	var rules []Rule
	data := "- id: 3\n  type: timing\n  description: Complete within SLA\n  severity: medium\n"
	if err := yaml.Unmarshal([]byte(data), &rules); err != nil {
		t.Fatal(err)
	}
	if len(rules) != 1 || rules[0].Type != RuleTiming || rules[0].ID != 3 {
		t.Errorf("unexpected rules: %+v", rules)
	}
}

func TestDeviation_LenientDecode(t *testing.T) {
	data := `{"case_id": 1042, "officer_id": "OFF-7", "deviation_type": "missing_step",
	          "rule_id": "12", "severity": "High", "description": "Credit check skipped",
	          "notes": true, "context": {"missing_step": "Credit Check"}}`
	var d Deviation
	if err := json.Unmarshal([]byte(data), &d); err != nil {
		t.Fatal(err)
	}
	if d.CaseID != "1042" {
		t.Errorf("CaseID = %q, want 1042", d.CaseID)
	}
	if d.Notes != "true" {
		t.Errorf("Notes = %q, want true", d.Notes)
	}
	if d.RuleID == nil || *d.RuleID != 12 {
		t.Errorf("RuleID = %v, want 12", d.RuleID)
	}
	if got := d.TakeCoercions(); got != 2 {
		t.Errorf("TakeCoercions() = %d, want 2", got)
	}
	if got := d.TakeCoercions(); got != 0 {
		t.Errorf("second TakeCoercions() = %d, want 0", got)
	}
	if got := d.Context.String(CtxMissingStep); got != "Credit Check" {
		t.Errorf("context missing_step = %q", got)
	}
}

func TestDeviation_CloneIsIndependent(t *testing.T) {
	id := 4
	d := Deviation{CaseID: "C1", RuleID: &id, Context: Context{"k": "v"}}
	c := d.Clone()
	c.Context["k"] = "changed"
	*c.RuleID = 9
	if d.Context["k"] != "v" || *d.RuleID != 4 {
		t.Errorf("clone shares state with original: %+v", d)
	}
}

func TestDeviation_DedupKey(t *testing.T) {
	a := Deviation{CaseID: " C1 ", OfficerID: "O1", DeviationType: "Missing_Step"}
	b := Deviation{CaseID: "C1", OfficerID: "O1 ", DeviationType: "missing_step"}
	if a.DedupKey() != b.DedupKey() {
		t.Errorf("keys differ: %q vs %q", a.DedupKey(), b.DedupKey())
	}
}

func TestDeviation_Timestamp(t *testing.T) {
	tests := []struct {
		name   string
		dev    Deviation
		want   time.Time
		wantOK bool
	}{
		{
			name:   "detected_at with fraction",
			dev:    Deviation{DetectedAt: "2024-03-04 09:15:00.123456"},
			want:   time.Date(2024, 3, 4, 9, 15, 0, 0, time.UTC),
			wantOK: true,
		},
		{
			name:   "context timestamp iso",
			dev:    Deviation{Context: Context{CtxTimestamp: "2024-03-05T22:00:00"}},
			want:   time.Date(2024, 3, 5, 22, 0, 0, 0, time.UTC),
			wantOK: true,
		},
		{
			name:   "created_at date only",
			dev:    Deviation{Context: Context{CtxCreatedAt: "2024-03-06"}},
			want:   time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC),
			wantOK: true,
		},
		{
			name: "unparseable",
			dev:  Deviation{DetectedAt: "yesterday"},
		},
		{
			name: "absent",
			dev:  Deviation{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.dev.Timestamp()
			if ok != tt.wantOK || !got.Equal(tt.want) {
				t.Errorf("Timestamp() = %v,%v, want %v,%v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestBucketOf(t *testing.T) {
	want := map[int]TimeBucket{0: Night, 5: Night, 6: Morning, 11: Morning, 12: Afternoon, 17: Afternoon, 18: Evening, 23: Evening}
	for h, b := range want {
		if got := BucketOf(h); got != b {
			t.Errorf("BucketOf(%d) = %s, want %s", h, got, b)
		}
	}
}

func TestWeekdayIndex(t *testing.T) {
	monday := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	if got := WeekdayIndex(monday); got != 0 {
		t.Errorf("Monday index = %d", got)
	}
	if got := WeekdayIndex(monday.AddDate(0, 0, 6)); got != 6 {
		t.Errorf("Sunday index = %d", got)
	}
}

func TestVocabulary(t *testing.T) {
	if KnownTypeCount() != 43 {
		t.Errorf("KnownTypeCount() = %d, want 43", KnownTypeCount())
	}
	if !KnownType(TypeWrongSequence) || KnownType("made_up") {
		t.Error("KnownType lookup wrong")
	}
}

func TestWorkflowLogEntry_Time(t *testing.T) {
	for _, ts := range []string{"2024-03-04T09:00:00Z", "2024-03-04T09:00:00", "2024-03-04 09:00:00", "2024-03-04T09:00"} {
		e := WorkflowLogEntry{CaseID: "C1", Timestamp: ts}
		got, err := e.Time()
		if err != nil {
			t.Fatalf("Time(%q): %v", ts, err)
		}
		if got.Hour() != 9 {
			t.Errorf("Time(%q) hour = %d", ts, got.Hour())
		}
	}
	if _, err := (WorkflowLogEntry{Timestamp: "soon"}).Time(); err == nil {
		t.Error("expected error for bad timestamp")
	}
}
