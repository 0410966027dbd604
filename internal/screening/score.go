package screening

import (
	"fmt"
	"math"
)

const (
	MinScore = 0
	MaxScore = 100

	// Weights in tenths: 0.7 for match, 0.3 for quality.
	matchTenths   = 7
	qualityTenths = 3
)

// ScoreSet holds the scores derived from one successful scoring call.
type ScoreSet struct {
	Match   int `json:"matchScore"`
	Quality int `json:"qualityScore"`
	ATS     int `json:"atsScore"`
}

// ValidateScore reports ErrInvalidScore for values outside [0,100].
func ValidateScore(name string, v int) error {
	if v < MinScore || v > MaxScore {
		return fmt.Errorf("%w: %s %d outside [%d,%d]", ErrInvalidScore, name, v, MinScore, MaxScore)
	}
	return nil
}

// Aggregate computes the composite ATS score: round(0.7*match + 0.3*quality).
func Aggregate(match, quality int) (int, error) {
	if err := ValidateScore("match score", match); err != nil {
		return 0, err
	}
	if err := ValidateScore("quality score", quality); err != nil {
		return 0, err
	}

	// Integer tenths keep .5 boundaries exact; math.Round rounds half away from zero.
	tenths := matchTenths*match + qualityTenths*quality
	ats := int(math.Round(float64(tenths) / 10))

	return min(max(ats, MinScore), MaxScore), nil
}

// NewScoreSet validates both raw scores and derives the ATS score.
func NewScoreSet(match, quality int) (ScoreSet, error) {
	ats, err := Aggregate(match, quality)
	if err != nil {
		return ScoreSet{}, err
	}
	return ScoreSet{Match: match, Quality: quality, ATS: ats}, nil
}
