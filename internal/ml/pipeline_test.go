package ml

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sopguard/internal/ml/anomaly"
	"sopguard/internal/sop"
)

// twelve returns ten near-identical deviations followed by two that differ
// in every feature block.
func twelve() []sop.Deviation {
	devs := make([]sop.Deviation, 0, 12)
	for i := 0; i < 10; i++ {
		devs = append(devs, sop.Deviation{
			CaseID:        fmt.Sprintf("LOAN-%03d", i),
			OfficerID:     "OFF-1",
			DeviationType: sop.TypeMissingStep,
			Severity:      sop.SeverityLow,
			Description:   "Missing required step: document verification",
			DetectedAt:    "2024-05-06 10:00:00",
		})
	}
	devs = append(devs,
		sop.Deviation{
			CaseID:        "LOAN-900",
			OfficerID:     "OFF-7",
			DeviationType: sop.TypeMissingApproval,
			Severity:      sop.SeverityCritical,
			Description:   "Missing manager approval before disbursement of a very large unsecured loan amount",
			DetectedAt:    "2024-05-11 23:30:00",
		},
		sop.Deviation{
			CaseID:        "LOAN-901",
			OfficerID:     "OFF-8",
			DeviationType: sop.TypeTimingViolation,
			Severity:      sop.SeverityHigh,
			Description:   "Process completed too quickly, collateral appraisal skipped entirely",
			DetectedAt:    "2024-05-12 03:15:00",
		},
	)
	return devs
}

func TestRun_IncludesEveryAnomaly(t *testing.T) {
	devs := twelve()

	out := New(DefaultConfig()).Run(devs)

	meta := out.Metadata
	require.True(t, meta.MLApplied)
	assert.NotEmpty(t, meta.RunID)
	assert.Equal(t, []string{StepFeatures, StepCluster, StepAnomaly, StepSample}, meta.PipelineSteps)
	require.NotNil(t, meta.Anomaly)
	assert.Equal(t, anomaly.MethodIsolationForest, meta.Anomaly.Method)
	assert.Equal(t, 1, meta.Anomaly.NAnomalies)
	require.NotNil(t, meta.Anomaly.Analysis.MostAnomalous)
	assert.Contains(t, []string{"LOAN-900", "LOAN-901"}, meta.Anomaly.Analysis.MostAnomalous.CaseID)

	require.Len(t, out.Selected, len(out.SelectedIndices))
	assert.Contains(t, out.SelectedIndices, 10)
	assert.Contains(t, out.SelectedIndices, 11)
	anomalies := 0
	for n, d := range out.Selected {
		require.NotNil(t, d.MLLabels)
		assert.Equal(t, devs[out.SelectedIndices[n]].CaseID, d.CaseID)
		if d.MLLabels.IsAnomaly {
			anomalies++
			assert.LessOrEqual(t, d.MLLabels.AnomalyScore, 0.0)
		}
	}
	assert.Equal(t, 1, anomalies)
	assert.Equal(t, meta.Sampling.SelectedCount, len(out.SelectedIndices))

	for _, d := range devs {
		assert.Nil(t, d.MLLabels, "input must not be annotated")
	}
}

func TestRun_InsufficientData(t *testing.T) {
	devs := twelve()[:9]

	out := New(DefaultConfig()).Run(devs)

	assert.False(t, out.Metadata.MLApplied)
	assert.Equal(t, ReasonInsufficientData, out.Metadata.Reason)
	assert.Equal(t, 10, out.Metadata.MinimumRequired)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8}, out.SelectedIndices)
	assert.Equal(t, devs, out.Selected)
	assert.Empty(t, ContextText(out.Metadata))
}

func TestContextText(t *testing.T) {
	out := New(DefaultConfig()).Run(twelve())

	text := ContextText(out.Metadata)

	assert.Contains(t, text, "ML ANALYSIS CONTEXT:")
	assert.Contains(t, text, "- Method: "+out.Metadata.Clustering.Method)
	assert.Contains(t, text, "- Anomalies Detected: 1 (8.3%)")
	assert.Contains(t, text, "Most Anomalous Case:")
	assert.Contains(t, text, fmt.Sprintf("- Selected for Analysis: %d", len(out.SelectedIndices)))
	assert.Contains(t, text, "* ALL 1 anomalies (100% included)")
	assert.NotContains(t, text, "NOISE:")
}
