package scoring

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/ats-screener/internal/logger"
	"github.com/spigell/ats-screener/internal/screening"
)

const DefaultTimeout = 60 * time.Second

// Gateway owns the per-call timeout and turns client answers into Outcomes.
type Gateway struct {
	client  Client
	timeout time.Duration
	logger  *zap.Logger
}

func NewGateway(client Client, timeout time.Duration, log *zap.Logger) *Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Gateway{
		client:  client,
		timeout: timeout,
		logger:  logger.OrNop(log),
	}
}

// Score calls the collaborator for one submission and never returns a partially
// valid result: any raw value outside [0,100] makes the outcome malformed.
func (g *Gateway) Score(ctx context.Context, req Request) Outcome {
	log := g.logger.With(zap.String(logger.FieldSubmissionID, req.SubmissionID))

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	started := time.Now()
	raw, err := g.client.Score(callCtx, req)
	if err != nil {
		kind := classify(callCtx, err)
		log.Debug("scoring call failed",
			zap.String(logger.FieldErrorKind, string(kind)),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err),
		)
		return Failed(req.SubmissionID, kind, err)
	}

	if id := strings.TrimSpace(raw.SubmissionID); id != "" && id != req.SubmissionID {
		return Failed(req.SubmissionID, screening.KindMalformed,
			fmt.Errorf("%w: answer is for submission %q", ErrMalformed, id))
	}

	scores, err := screening.NewScoreSet(raw.MatchScore, raw.QualityScore)
	if err != nil {
		return Failed(req.SubmissionID, screening.KindMalformed, fmt.Errorf("%w: %w", ErrMalformed, err))
	}

	anomaly, err := screening.NewAnomalyAssessment(raw.AnomalyWeight, raw.Indicators)
	if err != nil {
		return Failed(req.SubmissionID, screening.KindMalformed, fmt.Errorf("%w: %w", ErrMalformed, err))
	}

	if reported, perr := screening.ParseSeverity(raw.AnomalySeverity); perr == nil &&
		raw.AnomalySeverity != "" && reported != anomaly.Severity {
		log.Debug("collaborator severity differs from weight breakpoints",
			zap.String("reported", string(reported)),
			zap.String("derived", string(anomaly.Severity)),
			zap.Int("weight", anomaly.Weight),
		)
	}

	log.Debug("scored",
		zap.Int("ats", scores.ATS),
		zap.Int("anomaly_weight", anomaly.Weight),
		zap.Duration("elapsed", time.Since(started)),
	)

	return Ok(req.SubmissionID, scores, anomaly)
}

func classify(ctx context.Context, err error) screening.ErrorKind {
	switch {
	case errors.Is(err, screening.ErrUpstreamUnavailable):
		return screening.KindUpstreamUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled),
		errors.Is(err, screening.ErrTimeout), ctx.Err() != nil:
		return screening.KindTimeout
	case errors.Is(err, ErrMalformed):
		return screening.KindMalformed
	case errors.Is(err, ErrRejected):
		return screening.KindRejected
	case errors.Is(err, screening.ErrNotFound):
		return screening.KindNotFound
	default:
		return screening.KindItemFailure
	}
}
