package detect

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sopguard/internal/logging"
	"sopguard/internal/sop"
)

const (
	minProcessDuration = time.Hour
	maxStepGap         = 7 * 24 * time.Hour
)

// RuleValidator applies approval and timing rules per case.
type RuleValidator struct {
	log *slog.Logger
}

// NewRuleValidator returns a validator logging under the "detect" component.
func NewRuleValidator() *RuleValidator {
	return &RuleValidator{log: logging.New("detect")}
}

// Validate runs the approval check (when approval rules exist) and the
// timing check (when timing rules exist) for every case.
func (v *RuleValidator) Validate(logs []sop.WorkflowLogEntry, rules []sop.Rule) []sop.Deviation {
	approvalID := firstRuleID(rules, sop.RuleApproval)
	timingID := firstRuleID(rules, sop.RuleTiming)
	if approvalID == nil && timingID == nil {
		return nil
	}

	var out []sop.Deviation
	for _, cr := range groupCases(logs, v.log) {
		if approvalID != nil {
			for _, d := range checkApprovals(cr) {
				out = append(out, stamp(d, cr, approvalID))
			}
		}
		if timingID != nil {
			for _, d := range checkTiming(cr) {
				out = append(out, stamp(d, cr, timingID))
			}
		}
	}
	v.log.Info("rule validation done", "deviations", len(out))
	return out
}

func checkApprovals(cr caseRun) []sop.Deviation {
	performed := make([]string, len(cr.entries))
	var hasManager, hasFinal bool
	for i, e := range cr.entries {
		s := strings.ToLower(e.StepName)
		performed[i] = s
		if strings.Contains(s, "approval") {
			hasManager = hasManager || strings.Contains(s, "manager")
			hasFinal = hasFinal || strings.Contains(s, "final")
		}
	}

	var out []sop.Deviation
	if !hasManager {
		out = append(out, sop.Deviation{
			DeviationType:    sop.TypeMissingApproval,
			Severity:         sop.SeverityCritical,
			Description:      "Missing manager approval",
			ExpectedBehavior: "Manager approval required before final approval",
			ActualBehavior:   "Manager approval step not found",
			Context: sop.Context{
				sop.CtxApprovalType:   "manager",
				sop.CtxStepsPerformed: performed,
			},
		})
	}
	if !hasFinal {
		out = append(out, sop.Deviation{
			DeviationType:    sop.TypeMissingApproval,
			Severity:         sop.SeverityCritical,
			Description:      "Missing final approval",
			ExpectedBehavior: "Final approval required to complete case",
			ActualBehavior:   "Final approval step not found",
			Context: sop.Context{
				sop.CtxApprovalType:   "final",
				sop.CtxStepsPerformed: append([]string(nil), performed...),
			},
		})
	}
	return out
}

func checkTiming(cr caseRun) []sop.Deviation {
	if len(cr.entries) < 2 {
		return nil
	}
	var out []sop.Deviation

	elapsed := cr.lastTime().Sub(cr.times[0])
	if elapsed < minProcessDuration {
		hours := elapsed.Hours()
		out = append(out, sop.Deviation{
			DeviationType:    sop.TypeTimingViolation,
			Severity:         sop.SeverityMedium,
			Description:      "Process completed too quickly",
			ExpectedBehavior: "Proper review time required for each step",
			ActualBehavior:   fmt.Sprintf("Process completed in %.1f hours", hours),
			Context: sop.Context{
				sop.CtxDurationHours: hours,
				sop.CtxIssue:         "rushed_process",
			},
		})
	}

	for i := 0; i+1 < len(cr.entries); i++ {
		gap := cr.times[i+1].Sub(cr.times[i])
		if gap <= maxStepGap {
			continue
		}
		days := gap.Hours() / 24
		cur, next := cr.entries[i].StepName, cr.entries[i+1].StepName
		out = append(out, sop.Deviation{
			DeviationType:    sop.TypeTimingViolation,
			Severity:         sop.SeverityLow,
			Description:      fmt.Sprintf("Long delay between %s and %s", cur, next),
			ExpectedBehavior: "Steps should be completed in timely manner",
			ActualBehavior:   fmt.Sprintf("Gap of %.1f days between steps", days),
			Context: sop.Context{
				sop.CtxGapDays: days,
				sop.CtxStep1:   cur,
				sop.CtxStep2:   next,
			},
		})
	}
	return out
}

// Detect runs the sequence checker and the rule validator and returns the
// combined raw deviations, sequence deviations first.
func Detect(logs []sop.WorkflowLogEntry, rules []sop.Rule) []sop.Deviation {
	out := NewSequenceChecker().Check(logs, rules)
	out = append(out, NewRuleValidator().Validate(logs, rules)...)
	logging.New("detect").Info("detection complete",
		"logs", len(logs), "rules", len(rules), "deviations", len(out))
	return out
}
