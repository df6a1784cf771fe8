package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sopguard/internal/sop"
)

// blobs returns len(centers) tight groups of size points each.
func blobs(centers [][2]float64, size int) [][]float64 {
	var X [][]float64
	for _, c := range centers {
		for i := 0; i < size; i++ {
			off := float64(i%5) * 0.01
			X = append(X, []float64{c[0] + off, c[1] - off})
		}
	}
	return X
}

func TestStandardize(t *testing.T) {
	X := [][]float64{{1, 5}, {3, 5}}
	got := Standardize(X)
	assert.Equal(t, [][]float64{{-1, 0}, {1, 0}}, got)
	assert.Equal(t, 1.0, X[0][0], "input must not be modified")
}

func TestDBSCAN_FindsBlobsAndNoise(t *testing.T) {
	X := blobs([][2]float64{{0, 0}, {10, 10}}, 6)
	X = append(X, []float64{5, 5})

	labels, res := DBSCAN{Eps: 0.5, MinSamples: 5}.Fit(X)

	assert.Equal(t, MethodDBSCAN, res.Method)
	assert.Equal(t, 2, res.NClusters)
	assert.Equal(t, 1, res.NoiseCount)
	assert.Equal(t, Noise, labels[12])
	assert.Equal(t, 0, labels[0])
	assert.Equal(t, 1, labels[6])
	assert.Equal(t, map[string]int{"cluster_0": 6, "cluster_1": 6}, res.ClusterSizes)
}

func TestClusterer_AcceptsDBSCAN(t *testing.T) {
	X := blobs([][2]float64{{0, 0}, {10, 0}, {0, 10}}, 10)

	labels, res := New(DefaultConfig()).Cluster(X)

	require.Equal(t, MethodDBSCAN, res.Method)
	assert.Equal(t, 3, res.NClusters)
	assert.Zero(t, res.NoiseCount)
	assert.Len(t, labels, len(X))
}

func TestClusterer_FallsBackToKMeans(t *testing.T) {
	X := blobs([][2]float64{{0, 0}, {10, 10}}, 10)

	labels, res := New(DefaultConfig()).Cluster(X)

	require.Equal(t, MethodKMeans, res.Method)
	assert.Equal(t, 4, res.NClusters, "min(10, 20/5)")
	assert.Zero(t, res.NoiseCount)
	require.NotNil(t, res.Inertia)
	for _, l := range labels {
		assert.True(t, l >= 0 && l < 4, "label %d out of range", l)
	}

	again, _ := New(DefaultConfig()).Cluster(X)
	assert.Equal(t, labels, again, "seeded runs must be reproducible")
}

func TestClusterer_InsufficientData(t *testing.T) {
	labels, res := New(DefaultConfig()).Cluster(blobs([][2]float64{{0, 0}}, 5))

	assert.Equal(t, MethodInsufficientData, res.Method)
	assert.Equal(t, 1, res.NClusters)
	assert.Equal(t, []int{0, 0, 0, 0, 0}, labels)
}

func TestKMeans_MinimumTwoClusters(t *testing.T) {
	c := New(DefaultConfig())
	m := c.Fallback(10)
	require.IsType(t, KMeans{}, m)
	assert.Equal(t, 2, m.(KMeans).K)
}

func TestRepresentatives(t *testing.T) {
	var X [][]float64
	labels := make([]int, 0, 13)
	for i := 0; i < 10; i++ {
		X = append(X, []float64{float64(i)})
		labels = append(labels, 0)
	}
	X = append(X, []float64{100}, []float64{101}, []float64{50})
	labels = append(labels, 1, 1, Noise)

	reps := Representatives(labels, X, 5)

	assert.Equal(t, map[int][]int{
		0: {0, 4, 5, 8, 9},
		1: {10, 11},
	}, reps)
}

func TestSummarize(t *testing.T) {
	devs := []sop.Deviation{
		{OfficerID: "O1", DeviationType: "missing_step", Severity: sop.SeverityHigh},
		{OfficerID: "O1", DeviationType: "missing_step", Severity: sop.SeverityHigh},
		{OfficerID: "O2", DeviationType: "timing_violation", Severity: sop.SeverityLow},
		{OfficerID: "O3", DeviationType: "missing_approval", Severity: sop.SeverityCritical},
	}
	sums := Summarize([]int{0, 0, Noise, 1}, devs)

	require.Len(t, sums, 3)
	assert.Equal(t, []string{"cluster_0", "cluster_1", "noise"}, []string{sums[0].Name, sums[1].Name, sums[2].Name})
	assert.Equal(t, 2, sums[0].Size)
	assert.Equal(t, 50.0, sums[0].Percentage)
	assert.Equal(t, "missing_step", sums[0].TopDeviationType)
	assert.Equal(t, "O1", sums[0].TopOfficer)
	assert.Equal(t, map[string]int{"critical": 1}, sums[1].SeverityDistribution)
}
