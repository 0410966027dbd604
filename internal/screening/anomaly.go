package screening

import "fmt"

// Severity is the bucket an anomaly weight falls into.
type Severity string

const (
	SeverityClean  Severity = "clean"
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Breakpoints are inclusive upper bounds and must stay stable so that
// historical runs can be reproduced.
const (
	cleanMaxWeight  = 0
	lowMaxWeight    = 30
	mediumMaxWeight = 60
)

// AnomalyAssessment describes the data-quality or authenticity concerns of a submission.
type AnomalyAssessment struct {
	Weight     int      `json:"weight"`
	Severity   Severity `json:"severity"`
	Indicators []string `json:"indicators"`
}

// ClassifySeverity maps an anomaly weight in [0,100] to its severity bucket.
func ClassifySeverity(weight int) (Severity, error) {
	if err := ValidateScore("anomaly weight", weight); err != nil {
		return "", err
	}

	switch {
	case weight <= cleanMaxWeight:
		return SeverityClean, nil
	case weight <= lowMaxWeight:
		return SeverityLow, nil
	case weight <= mediumMaxWeight:
		return SeverityMedium, nil
	default:
		return SeverityHigh, nil
	}
}

// NewAnomalyAssessment classifies weight and keeps indicators verbatim and in order.
func NewAnomalyAssessment(weight int, indicators []string) (AnomalyAssessment, error) {
	severity, err := ClassifySeverity(weight)
	if err != nil {
		return AnomalyAssessment{}, err
	}

	kept := make([]string, len(indicators))
	copy(kept, indicators)

	return AnomalyAssessment{
		Weight:     weight,
		Severity:   severity,
		Indicators: kept,
	}, nil
}

// NeedsReport reports whether the assessment warrants an anomaly report.
func (a AnomalyAssessment) NeedsReport() bool {
	return a.Severity == SeverityMedium || a.Severity == SeverityHigh
}

// ParseSeverity accepts the bucket names case-insensitively; "none" is read as clean.
func ParseSeverity(s string) (Severity, error) {
	switch normalize(s) {
	case "clean", "none", "":
		return SeverityClean, nil
	case "low":
		return SeverityLow, nil
	case "medium":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	default:
		return "", fmt.Errorf("unknown anomaly severity %q", s)
	}
}
