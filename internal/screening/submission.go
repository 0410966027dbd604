package screening

import (
	"fmt"
	"time"
)

// Submission is one candidate item of a screening run.
type Submission struct {
	ID string `json:"id"`
	// Ordinal is the upload order and breaks ranking ties.
	Ordinal    int       `json:"ordinal"`
	Name       string    `json:"name,omitempty"`
	Text       string    `json:"text,omitempty"`
	Skills     []string  `json:"skills,omitempty"`
	UploadedAt time.Time `json:"uploadedAt,omitempty"`

	Scores   *ScoreSet          `json:"scores,omitempty"`
	Anomaly  *AnomalyAssessment `json:"anomaly,omitempty"`
	Decision Decision           `json:"decision"`
	History  []DecisionEvent    `json:"history,omitempty"`
}

// Pending reports whether the submission has not been scored yet.
func (s *Submission) Pending() bool {
	return s.Scores == nil
}

// Classified reports whether the submission carries scores and a terminal decision.
func (s *Submission) Classified() bool {
	return s.Scores != nil && s.Anomaly != nil && s.Decision.Status.IsTerminal()
}

// ApplyClassification stores the result of a successful scoring call and the
// automated decision derived from it.
func (s *Submission) ApplyClassification(scores ScoreSet, anomaly AnomalyAssessment, d Decision) {
	s.Scores = &scores
	s.Anomaly = &anomaly
	s.ApplyAutomated(d)
}

// ApplyAutomated records an automated decision. A human override stays in
// effect: only the automated status and snapshot are refreshed underneath it.
func (s *Submission) ApplyAutomated(d Decision) {
	override := s.Decision.Override

	s.Decision.Automated = d.Status
	s.Decision.Reason = d.Reason
	s.Decision.Thresholds = d.Thresholds

	if override == nil {
		s.Decision.Status = d.Status
		s.Decision.Source = SourceAutomated
		s.Decision.DecidedAt = d.DecidedAt
	}

	s.History = append(s.History, DecisionEvent{
		Kind:   EventAutomated,
		Status: d.Status,
		Reason: d.Reason,
		At:     d.DecidedAt,
	})
}

// ApplyOverride moves the decision into o.Status. The latest timestamp wins;
// an override older than the one in effect is refused with ErrStaleOverride.
func (s *Submission) ApplyOverride(o Override) error {
	if err := o.Validate(); err != nil {
		return err
	}

	o.At = o.At.UTC()
	if current := s.Decision.Override; current != nil && o.At.Before(current.At) {
		return fmt.Errorf("%w: %s at %s is older than %s at %s",
			ErrStaleOverride, o.Status, o.At.Format(time.RFC3339Nano), current.Status, current.At.Format(time.RFC3339Nano))
	}

	s.Decision.Status = o.Status
	s.Decision.Source = SourceOverride
	s.Decision.DecidedAt = o.At
	s.Decision.Override = &o

	s.History = append(s.History, DecisionEvent{
		ID:     o.ID,
		Kind:   EventOverride,
		Status: o.Status,
		Actor:  o.Actor,
		Reason: o.Reason,
		At:     o.At,
	})

	return nil
}

// Clone returns a deep copy safe to hand out of a store.
func (s *Submission) Clone() *Submission {
	if s == nil {
		return nil
	}

	c := *s
	c.Skills = append([]string(nil), s.Skills...)
	c.History = append([]DecisionEvent(nil), s.History...)

	if s.Scores != nil {
		scores := *s.Scores
		c.Scores = &scores
	}
	if s.Anomaly != nil {
		anomaly := *s.Anomaly
		anomaly.Indicators = append([]string(nil), s.Anomaly.Indicators...)
		c.Anomaly = &anomaly
	}
	if s.Decision.Override != nil {
		o := *s.Decision.Override
		c.Decision.Override = &o
	}

	return &c
}
