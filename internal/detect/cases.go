// Package detect turns workflow logs and SOP rules into raw deviations.
package detect

import (
	"log/slog"
	"sort"
	"time"

	"sopguard/internal/sop"
)

const detectedAtLayout = "2006-01-02 15:04:05"

// caseRun is one case's log entries in execution order.
type caseRun struct {
	id      string
	entries []sop.WorkflowLogEntry
	times   []time.Time
}

func (c caseRun) officer() string {
	if len(c.entries) == 0 {
		return "unknown"
	}
	return c.entries[0].OfficerID
}

func (c caseRun) steps() []string {
	out := make([]string, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.StepName
	}
	return out
}

func (c caseRun) lastTime() time.Time {
	return c.times[len(c.times)-1]
}

// groupCases groups logs by case in first-seen order and sorts each case by
// timestamp. Entries with unparseable timestamps are dropped.
func groupCases(logs []sop.WorkflowLogEntry, logger *slog.Logger) []caseRun {
	byID := make(map[string]*caseRun)
	var order []string

	for _, e := range logs {
		t, err := e.Time()
		if err != nil {
			logger.Warn("dropping log entry", "case_id", e.CaseID, "step", e.StepName, "error", err)
			continue
		}
		c, ok := byID[e.CaseID]
		if !ok {
			c = &caseRun{id: e.CaseID}
			byID[e.CaseID] = c
			order = append(order, e.CaseID)
		}
		c.entries = append(c.entries, e)
		c.times = append(c.times, t)
	}

	out := make([]caseRun, 0, len(order))
	for _, id := range order {
		c := byID[id]
		sort.Stable(byTime{c})
		out = append(out, *c)
	}
	return out
}

type byTime struct{ c *caseRun }

func (b byTime) Len() int           { return len(b.c.entries) }
func (b byTime) Less(i, j int) bool { return b.c.times[i].Before(b.c.times[j]) }
func (b byTime) Swap(i, j int) {
	b.c.entries[i], b.c.entries[j] = b.c.entries[j], b.c.entries[i]
	b.c.times[i], b.c.times[j] = b.c.times[j], b.c.times[i]
}

// firstRuleID returns the id of the first rule of type t.
func firstRuleID(rules []sop.Rule, t sop.RuleType) *int {
	for _, r := range rules {
		if r.Type == t {
			id := r.ID
			return &id
		}
	}
	return nil
}

// stamp fills the fields shared by every deviation raised for a case.
func stamp(d sop.Deviation, c caseRun, ruleID *int) sop.Deviation {
	d.CaseID = c.id
	d.OfficerID = c.officer()
	d.DetectedAt = c.lastTime().Format(detectedAtLayout)
	if ruleID != nil {
		id := *ruleID
		d.RuleID = &id
	}
	return d
}
