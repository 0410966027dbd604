package batch

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/ats-screener/internal/logger"
	"github.com/spigell/ats-screener/internal/screening"
)

// ErrNotScored is returned for a submission that has no score set to reclassify.
var ErrNotScored = errors.New("submission has not been scored")

// ReclassifyRequest re-applies thresholds to scored submissions. An empty
// SubmissionIDs means every scored submission.
type ReclassifyRequest struct {
	SubmissionIDs []string             `json:"submissionIds,omitempty"`
	Thresholds    screening.Thresholds `json:"thresholds"`
}

// Reclassify runs the decision classifier again over stored score sets without
// calling the scoring service. Scores are never touched and overrides stay in
// effect.
func (o *Orchestrator) Reclassify(ctx context.Context, req ReclassifyRequest) (*RunResult, error) {
	if err := req.Thresholds.Validate(); err != nil {
		return nil, err
	}

	var (
		subs     []*screening.Submission
		failures []*screening.ItemError
		err      error
	)
	if len(req.SubmissionIDs) == 0 {
		subs, err = o.store.Scored(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing scored submissions: %w", err)
		}
	} else {
		subs, failures, err = o.selectSubmissions(ctx, req.SubmissionIDs)
		if err != nil {
			return nil, err
		}
	}

	res := newRunResult(req.Thresholds, o.now())
	log := logger.WithFields(o.logger, logger.RunFields(res.RunID.String(), req.Thresholds)...)
	log.Info("starting reclassification", zap.Int("total", len(subs)+len(failures)))

	successes := make([]*screening.Submission, 0, len(subs))
	for _, s := range subs {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("reclassification cancelled: %w", err)
		}

		updated, err := o.store.Update(ctx, s.ID, func(s *screening.Submission) error {
			if s.Pending() || s.Anomaly == nil {
				return fmt.Errorf("submission %q: %w", s.ID, ErrNotScored)
			}
			s.ApplyAutomated(screening.Evaluate(*s.Scores, *s.Anomaly, req.Thresholds, o.now()))
			return nil
		})
		if err != nil {
			failures = append(failures, screening.NewItemError(s.ID, storeErrorKind(err), err))
			continue
		}
		successes = append(successes, updated)
	}

	for _, f := range failures {
		log.Warn("submission not reclassified", logger.ItemFailureFields(f)...)
	}

	res.finish(successes, failures, o.now())
	log.Info("reclassification finished",
		zap.Int("successful", res.Successful),
		zap.Int("failed", res.Failed),
	)

	return res, nil
}
