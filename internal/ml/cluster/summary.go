package cluster

import (
	"sort"

	"sopguard/internal/sop"
	"sopguard/internal/stats"
)

// Summary characterizes the deviations in one cluster (or the noise set).
type Summary struct {
	Name                 string         `json:"name"`
	Label                int            `json:"label"`
	Size                 int            `json:"size"`
	Percentage           float64        `json:"percentage"`
	TopSeverity          string         `json:"top_severity"`
	TopDeviationType     string         `json:"top_deviation_type"`
	TopOfficer           string         `json:"top_officer"`
	SeverityDistribution map[string]int `json:"severity_distribution"`
	DeviationTypes       []stats.Count  `json:"deviation_types"`
}

// Summarize describes each cluster, ascending by label, with noise last.
func Summarize(labels []int, devs []sop.Deviation) []Summary {
	type acc struct {
		size                        int
		severities, types, officers *stats.Counter
	}
	groups := make(map[int]*acc)
	for i, l := range labels {
		g, ok := groups[l]
		if !ok {
			g = &acc{severities: stats.NewCounter(), types: stats.NewCounter(), officers: stats.NewCounter()}
			groups[l] = g
		}
		d := &devs[i]
		g.size++
		g.severities.Add(string(d.Severity))
		g.types.Add(d.DeviationType)
		g.officers.Add(d.OfficerID)
	}

	order := make([]int, 0, len(groups))
	for l := range groups {
		order = append(order, l)
	}
	sort.Slice(order, func(i, j int) bool {
		if (order[i] == Noise) != (order[j] == Noise) {
			return order[j] == Noise
		}
		return order[i] < order[j]
	})

	out := make([]Summary, 0, len(order))
	for _, l := range order {
		g := groups[l]
		out = append(out, Summary{
			Name:                 clusterName(l),
			Label:                l,
			Size:                 g.size,
			Percentage:           stats.Pct(g.size, len(labels)),
			TopSeverity:          g.severities.MostCommon(),
			TopDeviationType:     g.types.MostCommon(),
			TopOfficer:           g.officers.MostCommon(),
			SeverityDistribution: g.severities.Map(),
			DeviationTypes:       g.types.Top(3),
		})
	}
	return out
}
