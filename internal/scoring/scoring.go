// Package scoring is the boundary to the external collaborator that turns a
// submission's text into raw match, quality and anomaly signals.
package scoring

import (
	"context"
	"errors"

	"github.com/spigell/ats-screener/internal/screening"
)

var (
	// ErrMalformed is wrapped by clients when the collaborator answered with
	// something that cannot be read as a score set.
	ErrMalformed = errors.New("malformed scoring response")
	// ErrRejected is wrapped by clients when the collaborator refused one item.
	ErrRejected = errors.New("submission rejected by scoring service")
)

// Request is what a Client needs to score one submission.
type Request struct {
	JobDescription string
	SubmissionID   string
	Name           string
	Text           string
	Skills         []string
	Thresholds     screening.Thresholds
}

// Raw is the loosely validated answer of the collaborator for one submission.
type Raw struct {
	SubmissionID    string   `json:"submissionId" mapstructure:"submissionId"`
	MatchScore      int      `json:"matchScore" mapstructure:"matchScore"`
	QualityScore    int      `json:"qualityScore" mapstructure:"qualityScore"`
	AnomalyWeight   int      `json:"anomalyWeight" mapstructure:"anomalyWeight"`
	AnomalySeverity string   `json:"anomalySeverity" mapstructure:"anomalySeverity"`
	Indicators      []string `json:"indicators" mapstructure:"indicators"`
}

// Client calls the scoring collaborator. Implementations wrap
// screening.ErrUpstreamUnavailable when the service itself cannot be reached,
// and ErrMalformed or ErrRejected for item-level problems.
type Client interface {
	Score(ctx context.Context, req Request) (Raw, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, req Request) (Raw, error)

func (f ClientFunc) Score(ctx context.Context, req Request) (Raw, error) {
	return f(ctx, req)
}

// Outcome is the per-item result of a gateway call: either a score set with
// its anomaly assessment, or an item error. Exactly one side is populated.
type Outcome struct {
	SubmissionID string
	Scores       screening.ScoreSet
	Anomaly      screening.AnomalyAssessment
	Err          *screening.ItemError
}

// Ok builds a successful outcome.
func Ok(id string, scores screening.ScoreSet, anomaly screening.AnomalyAssessment) Outcome {
	return Outcome{SubmissionID: id, Scores: scores, Anomaly: anomaly}
}

// Failed builds a failed outcome of the given kind.
func Failed(id string, kind screening.ErrorKind, err error) Outcome {
	return Outcome{SubmissionID: id, Err: screening.NewItemError(id, kind, err)}
}

func (o Outcome) OK() bool {
	return o.Err == nil
}

// Unavailable reports whether the outcome means the collaborator is down for
// the whole run rather than for this item only.
func (o Outcome) Unavailable() bool {
	return o.Err != nil && o.Err.Kind == screening.KindUpstreamUnavailable
}
