// Package cluster groups feature rows with DBSCAN, falling back to k-means
// when DBSCAN's cluster count is out of bounds.
package cluster

import (
	"fmt"
	"log/slog"
	"sort"

	"sopguard/internal/logging"
)

// Clustering method names reported in Result.Method.
const (
	MethodDBSCAN           = "DBSCAN"
	MethodKMeans           = "KMeans"
	MethodInsufficientData = "insufficient_data"
)

// Method is a clustering algorithm over a dense matrix.
type Method interface {
	Name() string
	Fit(X [][]float64) ([]int, Result)
}

// Result describes one clustering run.
type Result struct {
	Method       string         `json:"method"`
	NClusters    int            `json:"n_clusters"`
	NoiseCount   int            `json:"noise_count"`
	Eps          float64        `json:"eps,omitempty"`
	MinSamples   int            `json:"min_samples,omitempty"`
	ClusterSizes map[string]int `json:"cluster_sizes,omitempty"`
	Inertia      *float64       `json:"inertia,omitempty"`
	Summary      []Summary      `json:"cluster_summary,omitempty"`
}

func clusterName(label int) string {
	if label == Noise {
		return "noise"
	}
	return fmt.Sprintf("cluster_%d", label)
}

// describe counts clusters, noise and sizes for a label vector.
func describe(method string, labels []int) Result {
	res := Result{Method: method, ClusterSizes: make(map[string]int)}
	for _, l := range labels {
		if l == Noise {
			res.NoiseCount++
			continue
		}
		name := clusterName(l)
		if _, ok := res.ClusterSizes[name]; !ok {
			res.NClusters++
		}
		res.ClusterSizes[name]++
	}
	return res
}

// Config holds the acceptance bounds and algorithm parameters.
type Config struct {
	MinRows      int
	MinClusters  int
	MaxClusters  int
	Eps          float64
	MinSamples   int
	KMeansTarget int
	Restarts     int
	MaxIter      int
	Seed         uint64
}

// DefaultConfig returns the standard parameters.
func DefaultConfig() Config {
	return Config{
		MinRows:      10,
		MinClusters:  3,
		MaxClusters:  15,
		Eps:          0.5,
		MinSamples:   5,
		KMeansTarget: 10,
		Restarts:     10,
		MaxIter:      300,
		Seed:         42,
	}
}

// Clusterer runs the primary method and, when its cluster count falls
// outside [MinClusters, MaxClusters], the fallback.
type Clusterer struct {
	cfg      Config
	Primary  Method
	Fallback func(rows int) Method
	log      *slog.Logger
}

// New returns a DBSCAN clusterer with a k-means fallback.
func New(cfg Config) *Clusterer {
	return &Clusterer{
		cfg:     cfg,
		Primary: DBSCAN{Eps: cfg.Eps, MinSamples: cfg.MinSamples},
		Fallback: func(rows int) Method {
			k := max(min(cfg.KMeansTarget, rows/5), 2)
			return KMeans{K: k, Restarts: cfg.Restarts, MaxIter: cfg.MaxIter, Seed: cfg.Seed}
		},
		log: logging.New("cluster"),
	}
}

// Cluster standardizes X and labels every row.
func (c *Clusterer) Cluster(X [][]float64) ([]int, Result) {
	labels := make([]int, len(X))
	if len(X) < c.cfg.MinRows {
		c.log.Warn("too few rows for clustering, assigning all to one cluster", "rows", len(X))
		return labels, Result{Method: MethodInsufficientData, NClusters: 1}
	}

	scaled := Standardize(X)
	labels, res := c.Primary.Fit(scaled)
	c.log.Info("primary clustering done", "method", res.Method, "clusters", res.NClusters, "noise", res.NoiseCount)
	if res.NClusters >= c.cfg.MinClusters && res.NClusters <= c.cfg.MaxClusters {
		return labels, res
	}

	fb := c.Fallback(len(X))
	c.log.Warn("cluster count out of range, falling back",
		"clusters", res.NClusters, "min", c.cfg.MinClusters, "max", c.cfg.MaxClusters, "fallback", fb.Name())
	labels, res = fb.Fit(scaled)
	if res.Inertia != nil {
		c.log.Info("fallback clustering done", "clusters", res.NClusters, "inertia", *res.Inertia)
	}
	return labels, res
}

// Members returns the row indices of each non-noise cluster, ascending.
func Members(labels []int) map[int][]int {
	out := make(map[int][]int)
	for i, l := range labels {
		if l != Noise {
			out[l] = append(out[l], i)
		}
	}
	return out
}

// SortedLabels returns the non-noise labels in ascending order.
func SortedLabels(members map[int][]int) []int {
	out := make([]int, 0, len(members))
	for l := range members {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

// Representatives picks up to n rows per non-noise cluster: the whole
// cluster when it is small enough, otherwise the max(1, n/2) rows nearest
// the centroid plus the rest from the far edge. Indices are ascending.
func Representatives(labels []int, X [][]float64, n int) map[int][]int {
	out := make(map[int][]int)
	for label, idx := range Members(labels) {
		out[label] = Pick(X, idx, n)
	}
	return out
}

// Pick chooses up to n of the given rows by distance to their centroid.
func Pick(X [][]float64, idx []int, n int) []int {
	if len(idx) <= n {
		return append([]int(nil), idx...)
	}
	c := centroid(X, idx)
	order := append([]int(nil), idx...)
	dist := make(map[int]float64, len(idx))
	for _, i := range idx {
		dist[i] = sqDist(X[i], c)
	}
	sort.SliceStable(order, func(a, b int) bool { return dist[order[a]] < dist[order[b]] })

	nClose := max(1, n/2)
	nFar := n - nClose
	chosen := make(map[int]bool, n)
	for _, i := range order[:nClose] {
		chosen[i] = true
	}
	for _, i := range order[len(order)-nFar:] {
		chosen[i] = true
	}
	out := make([]int, 0, len(chosen))
	for i := range chosen {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
