package batch

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/ats-screener/internal/logger"
	"github.com/spigell/ats-screener/internal/screening"
)

// OverrideRequest is a human decision on one submission. A zero At means now.
type OverrideRequest struct {
	SubmissionID string           `json:"submissionId" validate:"required"`
	Status       screening.Status `json:"status" validate:"required"`
	Actor        string           `json:"actor" validate:"required"`
	Reason       string           `json:"reason,omitempty"`
	At           time.Time        `json:"at,omitempty"`
}

// Override records a human decision. It is always logged, accepted or not.
func (o *Orchestrator) Override(ctx context.Context, req OverrideRequest) (*screening.Submission, error) {
	at := req.At
	if at.IsZero() {
		at = o.now()
	}

	override := screening.Override{
		ID:     uuid.NewString(),
		Status: req.Status,
		Actor:  strings.TrimSpace(req.Actor),
		Reason: strings.TrimSpace(req.Reason),
		At:     at,
	}

	log := o.logger.With(
		zap.String(logger.FieldSubmissionID, req.SubmissionID),
		zap.String(logger.FieldStatus, string(req.Status)),
		zap.String("override_id", override.ID),
		zap.String("actor", override.Actor),
		zap.Time("at", at),
	)

	updated, err := o.store.Update(ctx, req.SubmissionID, func(s *screening.Submission) error {
		return s.ApplyOverride(override)
	})
	if err != nil {
		log.Warn("override refused", zap.String(logger.FieldErrorKind, string(screening.KindOf(err))), zap.Error(err))
		return nil, err
	}

	log.Info("decision overridden",
		zap.String("automated_status", string(updated.Decision.Automated)),
		zap.String("reason", override.Reason),
	)
	return updated, nil
}
