package screening

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidScore reports a score or threshold outside [0,100].
	ErrInvalidScore = errors.New("invalid score")
	// ErrInvalidThresholds reports a threshold configuration that failed validation.
	ErrInvalidThresholds = errors.New("invalid thresholds")
	// ErrInvalidStatus reports an unknown decision status or one not allowed for the transition.
	ErrInvalidStatus = errors.New("invalid decision status")
	// ErrItemFailure reports that scoring a single submission failed.
	ErrItemFailure = errors.New("item failure")
	// ErrUpstreamUnavailable reports that the scoring collaborator itself cannot be reached.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrTimeout reports a per-item or run-level deadline.
	ErrTimeout = errors.New("timeout")
	// ErrNotFound reports a submission or listing that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStaleOverride reports an override older than the one already recorded.
	ErrStaleOverride = errors.New("stale override")
)

// ErrorKind classifies item-level failures recorded in a run result.
type ErrorKind string

const (
	KindInvalidScore        ErrorKind = "invalid_score"
	KindItemFailure         ErrorKind = "item_failure"
	KindMalformed           ErrorKind = "malformed"
	KindRejected            ErrorKind = "rejected"
	KindUpstreamUnavailable ErrorKind = "upstream_unavailable"
	KindTimeout             ErrorKind = "timeout"
	KindNotFound            ErrorKind = "not_found"
)

// sentinel maps a kind to the taxonomy error it belongs to. Malformed and
// rejected responses are item failures.
func (k ErrorKind) sentinel() error {
	switch k {
	case KindInvalidScore:
		return ErrInvalidScore
	case KindUpstreamUnavailable:
		return ErrUpstreamUnavailable
	case KindTimeout:
		return ErrTimeout
	case KindNotFound:
		return ErrNotFound
	default:
		return ErrItemFailure
	}
}

// ItemError is the failure recorded for one submission of a run.
type ItemError struct {
	SubmissionID string    `json:"submissionId"`
	Kind         ErrorKind `json:"kind"`
	Message      string    `json:"error"`

	err error
}

// NewItemError builds an ItemError, keeping err as its cause.
func NewItemError(submissionID string, kind ErrorKind, err error) *ItemError {
	msg := string(kind)
	if err != nil {
		msg = err.Error()
	}

	return &ItemError{
		SubmissionID: submissionID,
		Kind:         kind,
		Message:      msg,
		err:          err,
	}
}

func (e *ItemError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("submission %s: %s: %s", e.SubmissionID, e.Kind, e.Message)
}

func (e *ItemError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// Is lets errors.Is match an ItemError against the sentinel of its kind.
// Every per-item kind except an unreachable service and an invalid score is
// also an ErrItemFailure.
func (e *ItemError) Is(target error) bool {
	if e == nil {
		return false
	}
	if target == e.Kind.sentinel() {
		return true
	}
	return target == ErrItemFailure && e.Kind.isItemFailure()
}

func (k ErrorKind) isItemFailure() bool {
	return k != KindUpstreamUnavailable && k != KindInvalidScore
}

// KindOf returns the kind carried by err, falling back to the sentinel it wraps.
func KindOf(err error) ErrorKind {
	var itemErr *ItemError
	if errors.As(err, &itemErr) {
		return itemErr.Kind
	}

	switch {
	case errors.Is(err, ErrUpstreamUnavailable):
		return KindUpstreamUnavailable
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidScore):
		return KindInvalidScore
	default:
		return KindItemFailure
	}
}
