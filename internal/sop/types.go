// Package sop defines the records exchanged by the deviation pipeline:
// workflow log entries, SOP rules and the deviations detected from them.
package sop

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Severity is the canonical severity scale. Raw input may carry any string;
// the cleaner collapses it onto the four canonical values.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Severities lists the canonical severities from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// severitySynonyms maps common shorthand onto canonical values.
var severitySynonyms = map[string]Severity{
	"crit":      SeverityCritical,
	"hi":        SeverityHigh,
	"med":       SeverityMedium,
	"lo":        SeverityLow,
	"important": SeverityHigh,
	"minor":     SeverityLow,
}

// Valid reports whether s is one of the four canonical severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Weight is 4/3/2/1 for critical/high/medium/low and 0 otherwise.
func (s Severity) Weight() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// NormalizeSeverity lowercases and trims raw, then maps synonyms and unknown
// values onto a canonical severity (unknown -> medium). repaired is true when
// the trimmed lowercase value was not already canonical.
func NormalizeSeverity(raw string) (sev Severity, repaired bool) {
	s := Severity(strings.ToLower(strings.TrimSpace(raw)))
	if s.Valid() {
		return s, false
	}
	if mapped, ok := severitySynonyms[string(s)]; ok {
		return mapped, true
	}
	return SeverityMedium, true
}

// RuleType classifies an SOP rule.
type RuleType string

const (
	RuleSequence           RuleType = "sequence"
	RuleApproval           RuleType = "approval"
	RuleTiming             RuleType = "timing"
	RuleEligibility        RuleType = "eligibility"
	RuleCreditRisk         RuleType = "credit_risk"
	RuleKYC                RuleType = "kyc"
	RuleAML                RuleType = "aml"
	RuleDocumentation      RuleType = "documentation"
	RuleCollateral         RuleType = "collateral"
	RuleDisbursement       RuleType = "disbursement"
	RulePostDisbursementQC RuleType = "post_disbursement_qc"
	RuleCollection         RuleType = "collection"
	RuleRestructuring      RuleType = "restructuring"
	RuleRegulatory         RuleType = "regulatory"
	RuleDataQuality        RuleType = "data_quality"
	RuleOperational        RuleType = "operational"
)

// RuleTypes lists every supported rule type.
var RuleTypes = []RuleType{
	RuleSequence, RuleApproval, RuleTiming, RuleEligibility, RuleCreditRisk,
	RuleKYC, RuleAML, RuleDocumentation, RuleCollateral, RuleDisbursement,
	RulePostDisbursementQC, RuleCollection, RuleRestructuring, RuleRegulatory,
	RuleDataQuality, RuleOperational,
}

// Valid reports whether t is a known rule type.
func (t RuleType) Valid() bool {
	for _, k := range RuleTypes {
		if k == t {
			return true
		}
	}
	return false
}

// Rule is one SOP rule. Rule extraction happens upstream; this is the
// structured form the checkers consume.
type Rule struct {
	ID          int      `json:"id" yaml:"id"`
	Type        RuleType `json:"rule_type" yaml:"rule_type"`
	Description string   `json:"description" yaml:"description"`
	StepNumber  *int     `json:"step_number,omitempty" yaml:"step_number,omitempty"`
	Severity    Severity `json:"severity" yaml:"severity"`
}

// UnmarshalJSON accepts the rule type under either "rule_type" or "type".
func (r *Rule) UnmarshalJSON(data []byte) error {
	type plain Rule
	var aux struct {
		plain
		LegacyType RuleType `json:"type"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = Rule(aux.plain)
	if r.Type == "" {
		r.Type = aux.LegacyType
	}
	r.Type = RuleType(strings.ToLower(strings.TrimSpace(string(r.Type))))
	return nil
}

// UnmarshalYAML mirrors UnmarshalJSON for rule files written in YAML.
func (r *Rule) UnmarshalYAML(unmarshal func(any) error) error {
	type plain Rule
	var aux struct {
		plain      `yaml:",inline"`
		LegacyType RuleType `yaml:"type"`
	}
	if err := unmarshal(&aux); err != nil {
		return err
	}
	*r = Rule(aux.plain)
	if r.Type == "" {
		r.Type = aux.LegacyType
	}
	r.Type = RuleType(strings.ToLower(strings.TrimSpace(string(r.Type))))
	return nil
}

// Order returns the rule's step number, or 999 when unset.
func (r Rule) Order() int {
	if r.StepNumber == nil {
		return 999
	}
	return *r.StepNumber
}

// RulesOfType filters rules by type, preserving order.
func RulesOfType(rules []Rule, t RuleType) []Rule {
	var out []Rule
	for _, r := range rules {
		if r.Type == t {
			out = append(out, r)
		}
	}
	return out
}

// WorkflowLogEntry is one executed workflow step.
type WorkflowLogEntry struct {
	CaseID          string `json:"case_id"`
	OfficerID       string `json:"officer_id"`
	StepName        string `json:"step_name"`
	Action          string `json:"action"`
	Timestamp       string `json:"timestamp"`
	DurationSeconds *int   `json:"duration_seconds,omitempty"`
	Status          string `json:"status,omitempty"`
}

// logLayouts are tried in order when parsing a log timestamp.
var logLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Time parses the entry's timestamp (ISO-8601 forms).
func (e WorkflowLogEntry) Time() (time.Time, error) {
	s := strings.TrimSpace(e.Timestamp)
	for _, layout := range logLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q for case %s", e.Timestamp, e.CaseID)
}
