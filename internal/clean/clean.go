// Package clean deduplicates, repairs and validates raw deviations before
// they reach statistics and the ML pipeline.
package clean

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"sopguard/internal/logging"
	"sopguard/internal/sop"
)

// Options toggles the optional cleaning stages. Final validation always runs.
type Options struct {
	RemoveDuplicates bool `json:"remove_duplicates" yaml:"remove_duplicates"`
	FixTypes         bool `json:"fix_types" yaml:"fix_types"`
	HandleMissing    bool `json:"handle_missing" yaml:"handle_missing"`
	NormalizeText    bool `json:"normalize_text" yaml:"normalize_text"`
}

// DefaultOptions enables every stage.
func DefaultOptions() Options {
	return Options{RemoveDuplicates: true, FixTypes: true, HandleMissing: true, NormalizeText: true}
}

// Report accounts for every record removed or modified by Clean.
type Report struct {
	OriginalCount        int      `json:"original_count"`
	DuplicatesRemoved    int      `json:"duplicates_removed"`
	InvalidTypesFixed    int      `json:"invalid_types_fixed"`
	MissingValuesHandled int      `json:"missing_values_handled"`
	TextNormalized       int      `json:"text_normalized"`
	ValidationDropped    int      `json:"validation_dropped"`
	ValidationErrors     []string `json:"validation_errors"`
	Warnings             []string `json:"warnings"`
	FinalCount           int      `json:"final_count"`
	CleanedPercentage    float64  `json:"cleaned_percentage"`
}

const minDescriptionLen = 10

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	controlChars  = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
)

// Cleaner runs the cleaning stages in a fixed order.
type Cleaner struct {
	opts Options
	log  *slog.Logger
}

// New returns a Cleaner with the given stage toggles.
func New(opts Options) *Cleaner {
	return &Cleaner{opts: opts, log: logging.New("clean")}
}

// Clean is shorthand for New(opts).Clean(devs).
func Clean(devs []sop.Deviation, opts Options) ([]sop.Deviation, Report) {
	return New(opts).Clean(devs)
}

// Clean returns the cleaned deviations and the report. devs is not modified.
func (c *Cleaner) Clean(devs []sop.Deviation) ([]sop.Deviation, Report) {
	rep := Report{
		OriginalCount:    len(devs),
		ValidationErrors: []string{},
		Warnings:         []string{},
	}
	if len(devs) == 0 {
		c.log.Warn("no deviations to clean")
		return []sop.Deviation{}, rep
	}
	c.log.Info("cleaning started", "deviations", len(devs))

	work := make([]sop.Deviation, len(devs))
	for i := range devs {
		work[i] = devs[i].Clone()
	}

	if c.opts.RemoveDuplicates {
		work, rep.DuplicatesRemoved = NewDedupIndex().Filter(work)
		c.log.Debug("dedup done", "removed", rep.DuplicatesRemoved)
	}
	if c.opts.FixTypes {
		rep.InvalidTypesFixed = c.fixTypes(work, &rep)
	}
	if c.opts.HandleMissing {
		work, rep.MissingValuesHandled = c.handleMissing(work)
	}
	if c.opts.NormalizeText {
		rep.TextNormalized = normalizeText(work)
	}
	before := len(work)
	work, rep.ValidationErrors = c.validate(work)
	rep.ValidationDropped = before - len(work)

	rep.FinalCount = len(work)
	rep.CleanedPercentage = round2(float64(rep.FinalCount) / float64(rep.OriginalCount) * 100)

	c.log.Info("cleaning complete",
		"kept", rep.FinalCount, "original", rep.OriginalCount,
		"duplicates", rep.DuplicatesRemoved, "types_fixed", rep.InvalidTypesFixed,
		"missing", rep.MissingValuesHandled, "validation_dropped", rep.ValidationDropped)
	if work == nil {
		work = []sop.Deviation{}
	}
	return work, rep
}

func (c *Cleaner) fixTypes(devs []sop.Deviation, rep *Report) int {
	fixed := 0
	for i := range devs {
		d := &devs[i]
		fixed += d.TakeCoercions()

		if strings.TrimSpace(string(d.Severity)) != "" {
			sev, repaired := sop.NormalizeSeverity(string(d.Severity))
			if repaired {
				msg := fmt.Sprintf("Invalid severity '%s' mapped to '%s'", d.Severity, sev)
				c.log.Warn("invalid severity", "case_id", d.CaseID, "raw", string(d.Severity), "mapped", string(sev))
				rep.Warnings = append(rep.Warnings, msg)
				fixed++
			}
			d.Severity = sev
		}

		if d.DeviationType != "" {
			t := sop.NormalizeType(d.DeviationType)
			if !sop.KnownType(t) {
				c.log.Warn("unknown deviation type", "type", t)
				rep.Warnings = append(rep.Warnings, "Unknown deviation type: "+t)
			}
			if t != d.DeviationType {
				d.DeviationType = t
				fixed++
			}
		}
	}
	return fixed
}

func (c *Cleaner) handleMissing(devs []sop.Deviation) ([]sop.Deviation, int) {
	handled := 0
	kept := devs[:0]
	for _, d := range devs {
		if field := missingRequired(&d); field != "" {
			c.log.Warn("deviation missing required field", "field", field, "case_id", d.CaseID)
			handled++
			continue
		}
		if d.ExpectedBehavior == "" {
			d.ExpectedBehavior = "Not specified"
		}
		if d.ActualBehavior == "" {
			d.ActualBehavior = "Not specified"
		}
		kept = append(kept, d)
	}
	return kept, handled
}

func missingRequired(d *sop.Deviation) string {
	for _, f := range []struct{ name, value string }{
		{"case_id", d.CaseID},
		{"officer_id", d.OfficerID},
		{"deviation_type", d.DeviationType},
		{"severity", string(d.Severity)},
		{"description", d.Description},
	} {
		if strings.TrimSpace(f.value) == "" {
			return f.name
		}
	}
	return ""
}

func normalizeText(devs []sop.Deviation) int {
	n := 0
	for i := range devs {
		d := &devs[i]
		for _, field := range []*string{&d.Description, &d.ExpectedBehavior, &d.ActualBehavior, &d.Notes} {
			if *field == "" {
				continue
			}
			norm := whitespaceRun.ReplaceAllString(strings.TrimSpace(*field), " ")
			norm = controlChars.ReplaceAllString(norm, "")
			if norm != *field {
				*field = norm
				n++
			}
		}
	}
	return n
}

func (c *Cleaner) validate(devs []sop.Deviation) ([]sop.Deviation, []string) {
	errs := []string{}
	kept := devs[:0]
	for i, d := range devs {
		var problems []string
		if strings.TrimSpace(d.CaseID) == "" {
			problems = append(problems, fmt.Sprintf("Invalid case_id at index %d", i))
		}
		if strings.TrimSpace(d.OfficerID) == "" {
			problems = append(problems, fmt.Sprintf("Invalid officer_id at index %d", i))
		}
		if utf8.RuneCountInString(d.Description) < minDescriptionLen {
			problems = append(problems, fmt.Sprintf("Description too short at index %d: '%s'", i, d.Description))
		}
		if len(problems) > 0 {
			c.log.Warn("validation failed", "index", i, "problems", problems)
			errs = append(errs, problems...)
			continue
		}
		if !d.Severity.Valid() {
			d.Severity, _ = sop.NormalizeSeverity(string(d.Severity))
		}
		kept = append(kept, d)
	}
	return kept, errs
}

// Quality grades a cleaning report.
type Quality struct {
	Score           float64 `json:"score"`
	Grade           string  `json:"grade"`
	Assessment      string  `json:"assessment"`
	TotalIssues     int     `json:"total_issues"`
	IssuePercentage float64 `json:"issue_percentage"`
}

var grades = []struct {
	min        float64
	grade      string
	assessment string
}{
	{95, "A", "Excellent data quality"},
	{85, "B", "Good data quality"},
	{70, "C", "Acceptable data quality"},
	{60, "D", "Poor data quality"},
	{0, "F", "Very poor data quality"},
}

// QualityScore scores a report as 100 minus the percentage of records that
// were duplicates, needed type repairs, or lacked required fields.
func QualityScore(rep Report) Quality {
	if rep.OriginalCount == 0 {
		return Quality{Grade: "N/A", Assessment: "No data to assess"}
	}
	issues := rep.DuplicatesRemoved + rep.InvalidTypesFixed + rep.MissingValuesHandled
	pct := float64(issues) / float64(rep.OriginalCount) * 100
	score := math.Max(0, 100-pct)

	q := Quality{Score: round2(score), TotalIssues: issues, IssuePercentage: round2(pct)}
	for _, g := range grades {
		if score >= g.min {
			q.Grade, q.Assessment = g.grade, g.assessment
			break
		}
	}
	return q
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
