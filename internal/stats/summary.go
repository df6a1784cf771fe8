package stats

// Summary is the statistical profile of a set of cleaned deviations. On
// empty input only Overview is populated.
type Summary struct {
	Overview     Overview              `json:"overview"`
	Severity     *SeverityDistribution `json:"severity_distribution,omitempty"`
	Types        *TypeDistribution     `json:"deviation_type_distribution,omitempty"`
	Temporal     *Temporal             `json:"temporal_patterns,omitempty"`
	Officers     *OfficerStats         `json:"officer_statistics,omitempty"`
	Cases        *CaseStats            `json:"case_statistics,omitempty"`
	Correlations *Correlations         `json:"correlations,omitempty"`
	Risk         *RiskIndicators       `json:"risk_indicators,omitempty"`
}

// Empty returns the summary of zero deviations.
func Empty() Summary {
	return Summary{}
}

// Share is a labelled count with its percentage of the section total.
type Share struct {
	Label      string  `json:"label"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type Overview struct {
	TotalDeviations             int     `json:"total_deviations"`
	UniqueCases                 int     `json:"unique_cases"`
	UniqueOfficers              int     `json:"unique_officers"`
	AverageDeviationsPerCase    float64 `json:"average_deviations_per_case"`
	AverageDeviationsPerOfficer float64 `json:"average_deviations_per_officer"`
}

// SeverityDistribution counts canonical severities. Score is the mean
// severity weight scaled to 0-100.
type SeverityDistribution struct {
	Distribution []Share `json:"distribution"`
	MostCommon   string  `json:"most_common"`
	Score        float64 `json:"severity_score"`
	Assessment   string  `json:"severity_assessment"`
}

type TypeDistribution struct {
	UniqueTypes int     `json:"total_unique_types"`
	Top         []Share `json:"top_10_types"`
	Categories  []Share `json:"categories"`
}

type Temporal struct {
	HasData             bool       `json:"has_temporal_data"`
	Message             string     `json:"message,omitempty"`
	TotalWithTimestamps int        `json:"total_with_timestamps,omitempty"`
	Hours               []Share    `json:"hour_distribution,omitempty"`
	Days                []Share    `json:"day_distribution,omitempty"`
	Periods             []Share    `json:"period_distribution,omitempty"`
	PeakHours           []string   `json:"peak_hours,omitempty"`
	PeakDays            []string   `json:"peak_days,omitempty"`
	DateRange           *DateRange `json:"date_range,omitempty"`
}

type DateRange struct {
	Earliest string `json:"earliest"`
	Latest   string `json:"latest"`
}

// Distribution describes per-entity deviation counts.
type Distribution struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
	Min    int     `json:"min"`
	Max    int     `json:"max"`
}

type OfficerStats struct {
	TotalOfficers int              `json:"total_officers"`
	Top           []OfficerSummary `json:"top_20_officers"`
	Distribution  Distribution     `json:"distribution_stats"`
}

type OfficerSummary struct {
	OfficerID            string         `json:"officer_id"`
	TotalDeviations      int            `json:"total_deviations"`
	UniqueCases          int            `json:"unique_cases"`
	AvgDeviationsPerCase float64        `json:"avg_deviations_per_case"`
	SeverityBreakdown    map[string]int `json:"severity_breakdown"`
	TopDeviationType     string         `json:"top_deviation_type"`
}

type CaseStats struct {
	TotalCases   int           `json:"total_cases"`
	Top          []CaseSummary `json:"top_10_cases"`
	Distribution Distribution  `json:"distribution_stats"`
}

type CaseSummary struct {
	CaseID            string         `json:"case_id"`
	TotalDeviations   int            `json:"total_deviations"`
	UniqueOfficers    int            `json:"unique_officers"`
	SeverityBreakdown map[string]int `json:"severity_breakdown"`
}

type Correlations struct {
	SeverityToType   []SeverityTypes `json:"severity_to_deviation_type"`
	HighRiskOfficers []RiskyOfficer  `json:"high_risk_officers"`
}

// SeverityTypes lists the most frequent types at one severity.
type SeverityTypes struct {
	Severity string  `json:"severity"`
	Types    []Count `json:"types"`
}

type RiskyOfficer struct {
	OfficerID       string  `json:"officer_id"`
	RiskScore       float64 `json:"risk_score"`
	CriticalCount   int     `json:"critical_count"`
	HighCount       int     `json:"high_count"`
	TotalDeviations int     `json:"total_deviations"`
}

type RiskIndicators struct {
	CriticalMassScore      float64       `json:"critical_mass_score"`
	CriticalMassAssessment string        `json:"critical_mass_assessment"`
	Concentration          Concentration `json:"concentration_risk"`
	Diversity              Diversity     `json:"issue_diversity"`
}

type Concentration struct {
	Top5OfficerPercentage float64 `json:"top_5_officer_percentage"`
	IsConcentrated        bool    `json:"is_concentrated"`
	UniqueOfficers        int     `json:"unique_officers"`
}

type Diversity struct {
	UniqueTypes    int     `json:"unique_types"`
	DiversityScore float64 `json:"diversity_score"`
	Assessment     string  `json:"assessment"`
}
