package detect

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"sopguard/internal/logging"
	"sopguard/internal/sop"
)

// stepKeywords maps description phrases to canonical step names. Order
// matters: the first matching phrase wins.
var stepKeywords = []struct {
	phrases []string
	step    string
}{
	{[]string{"income verification"}, "Income Verification"},
	{[]string{"document verification", "verify documents"}, "Document Verification"},
	{[]string{"credit check"}, "Credit Check"},
	{[]string{"risk assessment"}, "Risk Assessment"},
	{[]string{"manager approval"}, "Manager Approval"},
	{[]string{"final approval"}, "Final Approval"},
	{[]string{"application received"}, "Application Received"},
}

// DefaultSequence is used when no sequence rule names a known step.
var DefaultSequence = []string{
	"Application Received",
	"Document Verification",
	"Income Verification",
	"Credit Check",
	"Risk Assessment",
	"Manager Approval",
	"Final Approval",
}

// ExpectedSequence derives the expected step order from sequence rules.
func ExpectedSequence(rules []sop.Rule) []string {
	seqRules := sop.RulesOfType(rules, sop.RuleSequence)
	sort.SliceStable(seqRules, func(i, j int) bool { return seqRules[i].Order() < seqRules[j].Order() })

	var steps []string
	seen := make(map[string]bool)
	for _, r := range seqRules {
		step := matchStep(r.Description)
		if step == "" || seen[step] {
			continue
		}
		seen[step] = true
		steps = append(steps, step)
	}
	if len(steps) == 0 {
		return append([]string(nil), DefaultSequence...)
	}
	return steps
}

func matchStep(desc string) string {
	desc = strings.ToLower(desc)
	for _, kw := range stepKeywords {
		for _, p := range kw.phrases {
			if strings.Contains(desc, p) {
				return kw.step
			}
		}
	}
	return ""
}

// SequenceChecker compares each case's executed steps with the expected order.
type SequenceChecker struct {
	log *slog.Logger
}

// NewSequenceChecker returns a checker logging under the "detect" component.
func NewSequenceChecker() *SequenceChecker {
	return &SequenceChecker{log: logging.New("detect")}
}

// Check returns missing, out-of-order and unexpected step deviations. With
// no sequence rules it returns nothing.
func (c *SequenceChecker) Check(logs []sop.WorkflowLogEntry, rules []sop.Rule) []sop.Deviation {
	ruleID := firstRuleID(rules, sop.RuleSequence)
	if ruleID == nil {
		return nil
	}
	expected := ExpectedSequence(rules)
	c.log.Debug("expected sequence", "steps", expected)

	var out []sop.Deviation
	for _, cr := range groupCases(logs, c.log) {
		for _, d := range compareSequence(expected, cr.steps()) {
			out = append(out, stamp(d, cr, ruleID))
		}
	}
	c.log.Info("sequence check done", "deviations", len(out))
	return out
}

func compareSequence(expected, actual []string) []sop.Deviation {
	var out []sop.Deviation

	inActual := make(map[string]bool, len(actual))
	for _, s := range actual {
		inActual[s] = true
	}
	for _, step := range expected {
		if inActual[step] {
			continue
		}
		out = append(out, sop.Deviation{
			DeviationType:    sop.TypeMissingStep,
			Severity:         sop.SeverityHigh,
			Description:      "Missing required step: " + step,
			ExpectedBehavior: fmt.Sprintf("Step %q should be completed", step),
			ActualBehavior:   fmt.Sprintf("Step %q was skipped", step),
			Context: sop.Context{
				sop.CtxMissingStep:    step,
				sop.CtxActualSequence: append([]string(nil), actual...),
			},
		})
	}

	pos := make(map[string]int, len(expected))
	for i, s := range expected {
		pos[s] = i
	}
	for i := 0; i+1 < len(actual); i++ {
		cur, next := actual[i], actual[i+1]
		pc, ok1 := pos[cur]
		pn, ok2 := pos[next]
		if !ok1 || !ok2 || pc <= pn {
			continue
		}
		out = append(out, sop.Deviation{
			DeviationType:    sop.TypeWrongSequence,
			Severity:         sop.SeverityHigh,
			Description:      fmt.Sprintf("Wrong step order: %s before %s", next, cur),
			ExpectedBehavior: fmt.Sprintf("%s should come before %s", cur, next),
			ActualBehavior:   fmt.Sprintf("%s was performed before %s", next, cur),
			Context: sop.Context{
				sop.CtxStep1:          cur,
				sop.CtxStep2:          next,
				sop.CtxActualSequence: append([]string(nil), actual...),
			},
		})
	}

	reported := make(map[string]bool)
	for _, step := range actual {
		if _, ok := pos[step]; ok || reported[step] {
			continue
		}
		reported[step] = true
		out = append(out, sop.Deviation{
			DeviationType:    sop.TypeUnexpectedStep,
			Severity:         sop.SeverityMedium,
			Description:      "Unexpected step performed: " + step,
			ExpectedBehavior: "Only standard SOP steps should be performed",
			ActualBehavior:   fmt.Sprintf("Unexpected step %q was performed", step),
			Context:          sop.Context{sop.CtxUnexpectedStep: step},
		})
	}
	return out
}
