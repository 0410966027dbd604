package screening

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultATSThreshold     = 60
	DefaultAnomalyThreshold = 30
	DefaultMatchThreshold   = 50

	// reviewBand is how far below the ATS threshold a score still lands in NEEDS_REVIEW.
	reviewBand = 10
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Thresholds is the immutable configuration of one screening run.
// Copy it by value; there is no way to change a field after construction
// other than building a new value.
type Thresholds struct {
	ATS     int `json:"atsThreshold" validate:"min=0,max=100"`
	Anomaly int `json:"anomalyThreshold" validate:"min=0,max=100"`
	Match   int `json:"matchThreshold" validate:"min=0,max=100"`
	// Version identifies the configuration a decision was taken with.
	Version int `json:"version" validate:"min=0"`
}

// DefaultThresholds returns the thresholds used when an operator supplies none.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ATS:     DefaultATSThreshold,
		Anomaly: DefaultAnomalyThreshold,
		Match:   DefaultMatchThreshold,
		Version: 1,
	}
}

// NewThresholds validates and returns a threshold configuration at version 1.
func NewThresholds(ats, anomaly, match int) (Thresholds, error) {
	t := Thresholds{ATS: ats, Anomaly: anomaly, Match: match, Version: 1}
	if err := t.Validate(); err != nil {
		return Thresholds{}, err
	}
	return t, nil
}

// WithVersion returns a copy of t carrying the given version.
func (t Thresholds) WithVersion(version int) Thresholds {
	t.Version = version
	return t
}

// Validate reports every field outside [0,100].
func (t Thresholds) Validate() error {
	err := validate.Struct(t)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidThresholds, err)
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s=%v", strings.ToLower(fe.Field()), fe.Value()))
	}

	return fmt.Errorf("%w: %w: %s", ErrInvalidThresholds, ErrInvalidScore, strings.Join(fields, ", "))
}

// ReviewFloor is the lowest ATS score that still qualifies for manual review.
func (t Thresholds) ReviewFloor() int {
	return max(0, t.ATS-reviewBand)
}

func (t Thresholds) String() string {
	return fmt.Sprintf("v%d(ats=%d anomaly=%d match=%d)", t.Version, t.ATS, t.Anomaly, t.Match)
}
