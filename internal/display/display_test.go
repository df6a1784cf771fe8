package display

import (
	"testing"

	"sopguard/internal/sop"
)

func TestDeviationType(t *testing.T) {
	cases := []struct {
		code, want string
	}{
		{"missing_step", "Missing Step"},
		{"wrong_sequence", "Wrong Sequence"},
		{"tat_breach", "TAT Breach"},
		{"ltv_breach", "LTV Breach"},
		{"post_disbursement_qc_missing", "Post-Disbursement QC Missing"},
		{"custom_thing", "Custom Thing"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := DeviationType(tc.code); got != tc.want {
			t.Errorf("DeviationType(%q) = %q, want %q", tc.code, got, tc.want)
		}
	}
}

func TestDeviationTypeWithCode(t *testing.T) {
	if got := DeviationTypeWithCode("missing_approval"); got != "Missing Approval (missing_approval)" {
		t.Errorf("got %q", got)
	}
	if got := DeviationTypeWithCode(""); got != "" {
		t.Errorf("got %q", got)
	}
}

func TestSeverity(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"critical", "Critical"},
		{"HIGH", "High"},
		{" low ", "Low"},
		{"crit", "Critical"},
		{"bogus", "Medium"},
	}
	for _, tc := range cases {
		if got := Severity(sop.Severity(tc.in)); got != tc.want {
			t.Errorf("Severity(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCategory(t *testing.T) {
	cases := []struct {
		name, want string
	}{
		{"kyc_aml", "KYC / AML"},
		{"data_quality", "Data Quality"},
		{"approval", "Approval"},
		{"other", "Other"},
	}
	for _, tc := range cases {
		if got := Category(tc.name); got != tc.want {
			t.Errorf("Category(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestPeriod(t *testing.T) {
	if got := Period("night"); got != "Night (00-06)" {
		t.Errorf("Period(night) = %q", got)
	}
	if got := Period("dusk"); got != "dusk" {
		t.Errorf("Period(dusk) = %q", got)
	}
}

func TestStepPath(t *testing.T) {
	got := StepPath([]string{"feature_engineering", "clustering", "anomaly_detection", "intelligent_sampling"})
	want := "Features → Cluster → Anomalies → Sample"
	if got != want {
		t.Errorf("StepPath = %q, want %q", got, want)
	}
	if got := StepPath(nil); got != "" {
		t.Errorf("StepPath(nil) = %q", got)
	}
	if got := Step("custom"); got != "custom" {
		t.Errorf("Step(custom) = %q", got)
	}
}

func TestCluster(t *testing.T) {
	if got := Cluster(-1); got != "Noise" {
		t.Errorf("Cluster(-1) = %q", got)
	}
	if got := Cluster(4); got != "Cluster 4" {
		t.Errorf("Cluster(4) = %q", got)
	}
	if got := ClusterKey("cluster_12"); got != "Cluster 12" {
		t.Errorf("ClusterKey = %q", got)
	}
	if got := ClusterKey("noise"); got != "Noise" {
		t.Errorf("ClusterKey = %q", got)
	}
	if got := ClusterKey("odd"); got != "odd" {
		t.Errorf("ClusterKey = %q", got)
	}
}

func TestReason(t *testing.T) {
	if got := Reason("insufficient_data"); got != "Not enough deviations for ML" {
		t.Errorf("got %q", got)
	}
	if got := Reason(""); got != "" {
		t.Errorf("got %q", got)
	}
}
