// Package features turns deviations into a numeric matrix: a tf-idf block
// over descriptions, a one-hot block over deviation types and a numeric block
// (severity, time of day, officer, description length).
package features

import (
	"errors"
	"unicode/utf8"

	"sopguard/internal/logging"
	"sopguard/internal/sop"
	"sopguard/internal/stats"
)

// ErrNoRows is returned by Fit for empty input.
var ErrNoRows = errors.New("features: no deviations")

// Config bounds the fitted vocabulary and one-hot blocks.
type Config struct {
	MaxTextFeatures int
	MinDF           int
	MaxDF           float64
	MaxTopTypes     int
	MaxTopOfficers  int
}

// DefaultConfig returns the standard limits.
func DefaultConfig() Config {
	return Config{MaxTextFeatures: 100, MinDF: 2, MaxDF: 0.8, MaxTopTypes: 20, MaxTopOfficers: 20}
}

// Schema describes the columns of a fitted matrix.
type Schema struct {
	Names               []string `json:"feature_names"`
	Vocabulary          []string `json:"vocabulary"`
	TopTypes            []string `json:"deviation_types"`
	TopOfficers         []string `json:"top_officers"`
	TextFeatures        int      `json:"tfidf_features"`
	CategoricalFeatures int      `json:"categorical_features"`
	NumericFeatures     int      `json:"numerical_features"`
}

// Width is the number of columns.
func (s Schema) Width() int { return len(s.Names) }

// Matrix is one feature row per input deviation, in input order.
type Matrix struct {
	Rows   [][]float64
	Schema Schema
}

// Len returns the number of rows.
func (m *Matrix) Len() int { return len(m.Rows) }

// Width returns the number of columns.
func (m *Matrix) Width() int { return m.Schema.Width() }

const defaultTimeFeature = 0.5

// Fit builds the schema from devs and returns their feature matrix. Every run
// fits from scratch; nothing is retained between calls.
func Fit(devs []sop.Deviation, cfg Config) (*Matrix, error) {
	log := logging.New("features")
	if len(devs) == 0 {
		return nil, ErrNoRows
	}

	docs := make([][]string, len(devs))
	types, officers := stats.NewCounter(), stats.NewCounter()
	for i, d := range devs {
		docs[i] = terms(d.Description)
		types.Add(d.DeviationType)
		officers.Add(d.OfficerID)
	}

	vec := fitTFIDF(docs, cfg.MaxTextFeatures, cfg.MinDF, cfg.MaxDF)
	if len(vec.vocab) == 0 {
		log.Warn("tf-idf vocabulary empty after pruning, using zero text features")
	}

	schema := Schema{
		Vocabulary:  vec.vocab,
		TopTypes:    topKeys(types, cfg.MaxTopTypes),
		TopOfficers: topKeys(officers, cfg.MaxTopOfficers),
	}
	for _, t := range vec.vocab {
		schema.Names = append(schema.Names, "tfidf_"+t)
	}
	for _, t := range schema.TopTypes {
		schema.Names = append(schema.Names, "type_"+t)
	}
	schema.Names = append(schema.Names, "severity_score", "hour_normalized", "day_of_week_normalized")
	for _, o := range schema.TopOfficers {
		schema.Names = append(schema.Names, "officer_"+o)
	}
	schema.Names = append(schema.Names, "description_length")
	schema.TextFeatures = len(vec.vocab)
	schema.CategoricalFeatures = len(schema.TopTypes)
	schema.NumericFeatures = 4 + len(schema.TopOfficers)

	typeIdx := indexOf(schema.TopTypes)
	officerIdx := indexOf(schema.TopOfficers)

	m := &Matrix{Rows: make([][]float64, len(devs)), Schema: schema}
	for i := range devs {
		d := &devs[i]
		row := make([]float64, 0, schema.Width())
		row = append(row, vec.transform(docs[i])...)

		onehot := make([]float64, len(schema.TopTypes))
		if j, ok := typeIdx[d.DeviationType]; ok {
			onehot[j] = 1
		}
		row = append(row, onehot...)

		hour, day := defaultTimeFeature, defaultTimeFeature
		if t, ok := d.Timestamp(); ok {
			hour = float64(t.Hour()) / 24
			day = float64(sop.WeekdayIndex(t)) / 7
		}
		row = append(row, severityScore(d.Severity), hour, day)

		officer := make([]float64, len(schema.TopOfficers))
		if j, ok := officerIdx[d.OfficerID]; ok {
			officer[j] = 1
		}
		row = append(row, officer...)
		row = append(row, float64(utf8.RuneCountInString(d.Description)))

		m.Rows[i] = row
	}

	log.Info("feature engineering complete",
		"rows", m.Len(), "features", m.Width(),
		"tfidf", schema.TextFeatures, "categorical", schema.CategoricalFeatures, "numeric", schema.NumericFeatures)
	return m, nil
}

// severityScore is the severity weight; non-canonical values count as low.
func severityScore(s sop.Severity) float64 {
	if w := s.Weight(); w > 0 {
		return float64(w)
	}
	return 1
}

func topKeys(c *stats.Counter, n int) []string {
	top := c.Top(n)
	out := make([]string, len(top))
	for i, t := range top {
		out[i] = t.Key
	}
	return out
}

func indexOf(keys []string) map[string]int {
	m := make(map[string]int, len(keys))
	for i, k := range keys {
		m[k] = i
	}
	return m
}
