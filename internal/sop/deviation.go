package sop

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Context keys written by the built-in checkers. Context is open: upstream
// detectors may add their own keys and downstream stages must tolerate them.
const (
	CtxMissingStep    = "missing_step"
	CtxUnexpectedStep = "unexpected_step"
	CtxActualSequence = "actual_sequence"
	CtxStep1          = "step_1"
	CtxStep2          = "step_2"
	CtxApprovalType   = "approval_type"
	CtxStepsPerformed = "steps_performed"
	CtxDurationHours  = "duration_hours"
	CtxGapDays        = "gap_days"
	CtxIssue          = "issue"
	CtxTimestamp      = "timestamp"
	CtxCreatedAt      = "created_at"
)

var typeSeparators = regexp.MustCompile(`[- ]+`)

// Context carries rule-specific detail for a deviation.
type Context map[string]any

// String returns the value at key rendered as a string, or "" if absent.
func (c Context) String(key string) string {
	v, ok := c[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// MLLabels annotates a sampled deviation with the ML pipeline's view of it.
type MLLabels struct {
	Cluster      int     `json:"cluster"`
	Noise        bool    `json:"noise,omitempty"`
	IsAnomaly    bool    `json:"is_anomaly"`
	AnomalyScore float64 `json:"anomaly_score"`
}

// Deviation is a single detected violation of an SOP rule by a case/officer pair.
type Deviation struct {
	CaseID           string    `json:"case_id"`
	OfficerID        string    `json:"officer_id"`
	DeviationType    string    `json:"deviation_type"`
	RuleID           *int      `json:"rule_id,omitempty"`
	Severity         Severity  `json:"severity"`
	Description      string    `json:"description"`
	ExpectedBehavior string    `json:"expected_behavior,omitempty"`
	ActualBehavior   string    `json:"actual_behavior,omitempty"`
	Context          Context   `json:"context,omitempty"`
	Notes            string    `json:"notes,omitempty"`
	DetectedAt       string    `json:"detected_at,omitempty"`
	MLLabels         *MLLabels `json:"ml_labels,omitempty"`

	// coercions counts string fields that arrived as non-string JSON scalars.
	coercions int
}

// Clone returns a copy that shares no mutable state with d.
func (d Deviation) Clone() Deviation {
	out := d
	if d.RuleID != nil {
		id := *d.RuleID
		out.RuleID = &id
	}
	if d.Context != nil {
		out.Context = make(Context, len(d.Context))
		for k, v := range d.Context {
			out.Context[k] = v
		}
	}
	if d.MLLabels != nil {
		l := *d.MLLabels
		out.MLLabels = &l
	}
	return out
}

// TakeCoercions returns the number of string fields that were decoded from
// non-string values and resets the counter.
func (d *Deviation) TakeCoercions() int {
	n := d.coercions
	d.coercions = 0
	return n
}

// DedupKey is the (case, officer, type) identity used for deduplication.
// The type is compared in its normalized form so that "Missing-Step" and
// "missing_step" collide.
func (d *Deviation) DedupKey() string {
	return strings.TrimSpace(d.CaseID) + "|" +
		strings.TrimSpace(d.OfficerID) + "|" +
		NormalizeType(d.DeviationType)
}

// NormalizeType lowercases a deviation type and turns runs of '-' and ' '
// into a single '_'.
func NormalizeType(t string) string {
	return typeSeparators.ReplaceAllString(strings.ToLower(strings.TrimSpace(t)), "_")
}

// UnmarshalJSON decodes a deviation leniently: numbers, booleans and nested
// values found in string fields are converted to their textual form.
func (d *Deviation) UnmarshalJSON(data []byte) error {
	var raw struct {
		CaseID           json.RawMessage `json:"case_id"`
		OfficerID        json.RawMessage `json:"officer_id"`
		DeviationType    json.RawMessage `json:"deviation_type"`
		RuleID           json.RawMessage `json:"rule_id"`
		Severity         json.RawMessage `json:"severity"`
		Description      json.RawMessage `json:"description"`
		ExpectedBehavior json.RawMessage `json:"expected_behavior"`
		ActualBehavior   json.RawMessage `json:"actual_behavior"`
		Context          Context         `json:"context"`
		Notes            json.RawMessage `json:"notes"`
		DetectedAt       json.RawMessage `json:"detected_at"`
		MLLabels         *MLLabels       `json:"ml_labels"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var sev string
	fields := []struct {
		dst *string
		src json.RawMessage
	}{
		{&d.CaseID, raw.CaseID},
		{&d.OfficerID, raw.OfficerID},
		{&d.DeviationType, raw.DeviationType},
		{&sev, raw.Severity},
		{&d.Description, raw.Description},
		{&d.ExpectedBehavior, raw.ExpectedBehavior},
		{&d.ActualBehavior, raw.ActualBehavior},
		{&d.Notes, raw.Notes},
		{&d.DetectedAt, raw.DetectedAt},
	}
	d.coercions = 0
	for _, f := range fields {
		s, coerced, err := scalarString(f.src)
		if err != nil {
			return err
		}
		*f.dst = s
		if coerced {
			d.coercions++
		}
	}
	d.Severity = Severity(sev)
	d.RuleID = lenientInt(raw.RuleID)
	d.Context = raw.Context
	d.MLLabels = raw.MLLabels
	return nil
}

// scalarString renders a raw JSON value as a string. coerced is true when
// the value was present but not a JSON string.
func scalarString(raw json.RawMessage) (s string, coerced bool, err error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false, nil
	}
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false, err
		}
		return s, false, nil
	}
	if raw[0] == '{' || raw[0] == '[' {
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return "", false, err
		}
		return buf.String(), true, nil
	}
	return string(raw), true, nil
}

// lenientInt accepts an int, a numeric string, or null.
func lenientInt(raw json.RawMessage) *int {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return &n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return &v
		}
	}
	return nil
}
