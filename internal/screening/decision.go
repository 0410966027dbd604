// Package screening holds the scoring, classification and ranking rules of a
// screening run. Everything here is pure and safe for concurrent use.
package screening

import (
	"fmt"
	"strings"
	"time"
)

// Status is the outcome of screening one submission.
type Status string

const (
	StatusPending             Status = "PENDING"
	StatusShortlisted         Status = "SHORTLISTED"
	StatusShortlistedWithFlag Status = "SHORTLISTED_WITH_FLAG"
	StatusNeedsReview         Status = "NEEDS_REVIEW"
	StatusRejected            Status = "REJECTED"
)

// TerminalStatuses are the states an automated pass or an override can move into.
var TerminalStatuses = []Status{
	StatusShortlisted,
	StatusShortlistedWithFlag,
	StatusNeedsReview,
	StatusRejected,
}

// ParseStatus parses a status name, case-insensitively.
func ParseStatus(s string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(s)))
	switch status {
	case StatusPending, StatusShortlisted, StatusShortlistedWithFlag, StatusNeedsReview, StatusRejected:
		return status, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

// IsTerminal reports whether s is one of TerminalStatuses.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusShortlisted, StatusShortlistedWithFlag, StatusNeedsReview, StatusRejected:
		return true
	default:
		return false
	}
}

// favorability orders statuses from least to most favorable. Both shortlist
// variants share a level.
func (s Status) favorability() int {
	switch s {
	case StatusRejected:
		return 1
	case StatusNeedsReview:
		return 2
	case StatusShortlistedWithFlag, StatusShortlisted:
		return 3
	default:
		return 0
	}
}

// Classify is the automated transition out of PENDING. It is pure and total
// over integer inputs.
func Classify(ats, anomalyWeight, match int, t Thresholds) Status {
	status, _ := classify(ats, anomalyWeight, match, t)
	return status
}

func classify(ats, anomalyWeight, match int, t Thresholds) (Status, string) {
	clearsATS := ats >= t.ATS
	anomalyOK := anomalyWeight <= t.Anomaly
	matchOK := match >= t.Match

	switch {
	case clearsATS && anomalyOK && matchOK:
		return StatusShortlisted, fmt.Sprintf("ATS %d >= %d, anomaly %d <= %d, match %d >= %d",
			ats, t.ATS, anomalyWeight, t.Anomaly, match, t.Match)
	case clearsATS:
		var concerns []string
		if !anomalyOK {
			concerns = append(concerns, fmt.Sprintf("anomaly %d > %d", anomalyWeight, t.Anomaly))
		}
		if !matchOK {
			concerns = append(concerns, fmt.Sprintf("match %d < %d", match, t.Match))
		}
		return StatusShortlistedWithFlag, fmt.Sprintf("ATS %d >= %d but %s", ats, t.ATS, strings.Join(concerns, " and "))
	case ats >= t.ReviewFloor():
		return StatusNeedsReview, fmt.Sprintf("ATS %d within review band [%d,%d)", ats, t.ReviewFloor(), t.ATS)
	default:
		return StatusRejected, fmt.Sprintf("ATS %d < %d", ats, t.ReviewFloor())
	}
}

// Source tells who produced a decision.
type Source string

const (
	SourceAutomated Source = "automated"
	SourceOverride  Source = "override"
)

// Decision is the classification of one submission together with the
// thresholds it was taken under.
type Decision struct {
	Status     Status     `json:"status"`
	Reason     string     `json:"reason,omitempty"`
	Thresholds Thresholds `json:"thresholdSnapshot"`
	DecidedAt  time.Time  `json:"decidedAt"`
	Source     Source     `json:"source"`
	// Automated is the latest automated status, kept even while an override is in effect.
	Automated Status    `json:"automatedStatus,omitempty"`
	Override  *Override `json:"override,omitempty"`
}

// PendingDecision is the initial state of every submission.
func PendingDecision() Decision {
	return Decision{Status: StatusPending, Source: SourceAutomated}
}

// Evaluate runs the classifier over a score set and assessment. Neither
// argument is modified.
func Evaluate(scores ScoreSet, anomaly AnomalyAssessment, t Thresholds, at time.Time) Decision {
	status, reason := classify(scores.ATS, anomaly.Weight, scores.Match, t)

	return Decision{
		Status:     status,
		Reason:     reason,
		Thresholds: t,
		DecidedAt:  at.UTC(),
		Source:     SourceAutomated,
		Automated:  status,
	}
}

// Overridden reports whether a human decision is in effect.
func (d Decision) Overridden() bool {
	return d.Override != nil
}

// Override is an explicit human transition into a terminal status.
type Override struct {
	ID     string    `json:"id"`
	Status Status    `json:"status"`
	Actor  string    `json:"actor"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// Validate checks the override targets a terminal status and is timestamped.
func (o Override) Validate() error {
	if !o.Status.IsTerminal() {
		return fmt.Errorf("%w: override to %q", ErrInvalidStatus, o.Status)
	}
	if strings.TrimSpace(o.Actor) == "" {
		return fmt.Errorf("override actor is required")
	}
	if o.At.IsZero() {
		return fmt.Errorf("override timestamp is required")
	}
	return nil
}

// EventKind distinguishes automated classifications from overrides in a decision history.
type EventKind string

const (
	EventAutomated EventKind = "automated"
	EventOverride  EventKind = "override"
)

// DecisionEvent is one entry of a submission's decision history.
type DecisionEvent struct {
	ID     string    `json:"id,omitempty"`
	Kind   EventKind `json:"kind"`
	Status Status    `json:"status"`
	Actor  string    `json:"actor,omitempty"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
