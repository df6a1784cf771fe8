package narrative

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Analysis is the collaborator's pattern analysis. Pattern lists are kept as
// decoded JSON because their item shape is up to the collaborator.
type Analysis struct {
	OverallSummary        string         `json:"overall_summary"`
	BehavioralPatterns    []any          `json:"behavioral_patterns"`
	HiddenRules           []any          `json:"hidden_rules"`
	SystemicIssues        []any          `json:"systemic_issues"`
	TimePatterns          []any          `json:"time_patterns"`
	JustificationAnalysis map[string]any `json:"justification_analysis"`
	RiskInsights          []any          `json:"risk_insights"`
	Recommendations       []string       `json:"recommendations"`
	APICallsMade          int            `json:"api_calls_made"`
	DeviationsAnalyzed    int            `json:"deviations_analyzed"`
}

// Empty is the result used whenever no usable analysis is available.
func Empty() Analysis {
	return Analysis{
		OverallSummary:     "Pattern analysis not available",
		BehavioralPatterns: []any{},
		HiddenRules:        []any{},
		SystemicIssues:     []any{},
		TimePatterns:       []any{},
		JustificationAnalysis: map[string]any{
			"most_common_reasons": []any{},
			"justified_count":     0,
			"not_justified_count": 0,
			"unclear_count":       0,
		},
		RiskInsights:    []any{"LLM analysis unavailable - manual review recommended"},
		Recommendations: []string{"Enable the narrative collaborator for pattern analysis"},
	}
}

var requiredFields = []string{
	"overall_summary",
	"behavioral_patterns",
	"hidden_rules",
	"systemic_issues",
	"recommendations",
}

var errNoJSON = errors.New("no JSON object in response")

// Parse decodes a collaborator response. It tolerates markdown code fences
// and prose around the JSON object, and turns object recommendations into
// "[PRIORITY] text" strings.
func Parse(data []byte) (Analysis, error) {
	obj, err := extractJSON(data)
	if err != nil {
		return Analysis{}, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(obj, &fields); err != nil {
		return Analysis{}, fmt.Errorf("decode response: %w", err)
	}
	for _, f := range requiredFields {
		if _, ok := fields[f]; !ok {
			return Analysis{}, fmt.Errorf("response missing %q", f)
		}
	}

	var a struct {
		Analysis
		Recommendations []any `json:"recommendations"`
	}
	if err := json.Unmarshal(obj, &a); err != nil {
		return Analysis{}, fmt.Errorf("decode response: %w", err)
	}
	out := a.Analysis
	out.Recommendations = make([]string, 0, len(a.Recommendations))
	for _, r := range a.Recommendations {
		out.Recommendations = append(out.Recommendations, recommendationText(r))
	}
	return out, nil
}

func recommendationText(r any) string {
	switch v := r.(type) {
	case string:
		return v
	case map[string]any:
		priority, ok := v["priority"].(string)
		if !ok || priority == "" {
			priority = "NORMAL"
		}
		text, ok := v["recommendation"].(string)
		if !ok {
			b, _ := json.Marshal(v)
			text = string(b)
		}
		return fmt.Sprintf("[%s] %s", priority, text)
	default:
		return fmt.Sprint(v)
	}
}

// cleanJSON strips markdown code fences and surrounding whitespace.
// Handles ```json\n{...}\n```, ```\n{...}\n``` and bare JSON.
func cleanJSON(data []byte) []byte {
	s := bytes.TrimSpace(data)
	if bytes.HasPrefix(s, []byte("```")) {
		if idx := bytes.IndexByte(s, '\n'); idx >= 0 {
			s = s[idx+1:]
		}
		if idx := bytes.LastIndex(s, []byte("```")); idx >= 0 {
			s = s[:idx]
		}
		s = bytes.TrimSpace(s)
	}
	return s
}

// extractJSON returns the outermost {...} span of the cleaned response.
func extractJSON(data []byte) ([]byte, error) {
	s := cleanJSON(data)
	start := bytes.IndexByte(s, '{')
	end := bytes.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return nil, errNoJSON
	}
	return s[start : end+1], nil
}
