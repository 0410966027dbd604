// Package batch runs screening over many submissions at once: it fans scoring
// calls out over a bounded worker pool, classifies every success and ranks
// the result.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/ats-screener/internal/logger"
	"github.com/spigell/ats-screener/internal/scoring"
	"github.com/spigell/ats-screener/internal/screening"
	"github.com/spigell/ats-screener/internal/store"
)

const (
	DefaultWorkers    = 4
	DefaultRunTimeout = 5 * time.Minute
)

// Scorer is the part of scoring.Gateway the orchestrator depends on.
type Scorer interface {
	Score(ctx context.Context, req scoring.Request) scoring.Outcome
}

type Config struct {
	Workers    int           `mapstructure:"workers" validate:"gte=0"`
	RunTimeout time.Duration `mapstructure:"run-timeout" validate:"gte=0"`
}

type Orchestrator struct {
	store      store.Store
	scorer     Scorer
	workers    int
	runTimeout time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

func New(st store.Store, scorer Scorer, cfg Config, log *zap.Logger) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultRunTimeout
	}

	return &Orchestrator{
		store:      st,
		scorer:     scorer,
		workers:    cfg.Workers,
		runTimeout: cfg.RunTimeout,
		logger:     logger.OrNop(log),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// RunRequest selects what to screen. An empty SubmissionIDs means every
// pending submission; otherwise exactly the listed ones, scored or not.
type RunRequest struct {
	JobDescription string               `json:"jobDescription"`
	SubmissionIDs  []string             `json:"submissionIds,omitempty"`
	Thresholds     screening.Thresholds `json:"thresholds"`
}

// Run screens the selected submissions. Item failures are recorded in the
// result; only an unreachable scoring service or a cancelled caller fail the
// whole run.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if err := req.Thresholds.Validate(); err != nil {
		return nil, err
	}

	subs, failures, err := o.selectSubmissions(ctx, req.SubmissionIDs)
	if err != nil {
		return nil, err
	}

	res := newRunResult(req.Thresholds, o.now())
	log := logger.WithFields(o.logger, logger.RunFields(res.RunID.String(), req.Thresholds)...)
	log.Info("starting screening run",
		zap.Int("total", len(subs)+len(failures)),
		zap.Int("workers", o.workers),
		zap.Duration("run_timeout", o.runTimeout),
	)

	for _, f := range failures {
		log.Warn("submission failed", logger.ItemFailureFields(f)...)
	}

	successes, itemErrs, err := o.dispatch(ctx, log, req, subs)
	if err != nil {
		log.Error("screening run aborted", zap.Error(err))
		return nil, err
	}

	res.finish(successes, append(failures, itemErrs...), o.now())

	log.Info("screening run finished",
		zap.Int("total", res.Total),
		zap.Int("successful", res.Successful),
		zap.Int("failed", res.Failed),
		zap.Int("flagged_anomalies", len(res.FlaggedAnomalies)),
		zap.Duration("duration", res.FinishedAt.Sub(res.StartedAt)),
	)

	return res, nil
}

func (o *Orchestrator) selectSubmissions(ctx context.Context, ids []string) ([]*screening.Submission, []*screening.ItemError, error) {
	if len(ids) == 0 {
		subs, err := o.store.Pending(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("listing pending submissions: %w", err)
		}
		return subs, nil, nil
	}

	subs, missing, err := o.store.List(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("listing submissions: %w", err)
	}

	failures := make([]*screening.ItemError, 0, len(missing))
	for _, id := range missing {
		failures = append(failures, screening.NewItemError(id, screening.KindNotFound,
			fmt.Errorf("submission %q: %w", id, screening.ErrNotFound)))
	}
	return subs, failures, nil
}

// dispatch scores subs on a bounded pool. Outcomes are collected by the
// calling goroutine and persisted only once collection ends without an abort.
// Items still unsettled at the run deadline are reported as timeouts; those
// that completed before it keep their results.
func (o *Orchestrator) dispatch(
	ctx context.Context,
	log *zap.Logger,
	req RunRequest,
	subs []*screening.Submission,
) ([]*screening.Submission, []*screening.ItemError, error) {
	runCtx, cancel := context.WithTimeout(ctx, o.runTimeout)
	defer cancel()

	outcomes := make(chan scoring.Outcome, len(subs))
	done := make(chan error, 1)

	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(o.workers)

	go func() {
		for _, s := range subs {
			scoreReq := scoring.Request{
				JobDescription: req.JobDescription,
				SubmissionID:   s.ID,
				Name:           s.Name,
				Text:           s.Text,
				Skills:         s.Skills,
				Thresholds:     req.Thresholds,
			}
			g.Go(func() error {
				// Not dispatched before the run ended; reported as a timeout below.
				if gctx.Err() != nil {
					return nil
				}
				out := o.scorer.Score(gctx, scoreReq)
				outcomes <- out
				if out.Unavailable() {
					return out.Err
				}
				return nil
			})
		}
		done <- g.Wait()
	}()

	var (
		successes []*screening.Submission
		failures  []*screening.ItemError
		settled   = make(map[string]struct{}, len(subs))
	)

	// Successful outcomes are held until collection ends, so an aborted run
	// leaves the store untouched.
	var scored []scoring.Outcome

	handle := func(out scoring.Outcome) error {
		settled[out.SubmissionID] = struct{}{}

		if out.Unavailable() {
			return fmt.Errorf("screening run aborted: %w", out.Err)
		}
		if !out.OK() {
			failures = append(failures, out.Err)
			log.Warn("submission failed", logger.ItemFailureFields(out.Err)...)
			return nil
		}

		scored = append(scored, out)
		return nil
	}

	drain := func() error {
		for {
			select {
			case out := <-outcomes:
				if err := handle(out); err != nil {
					return err
				}
			default:
				return nil
			}
		}
	}

collect:
	for len(settled) < len(subs) {
		select {
		case out := <-outcomes:
			if err := handle(out); err != nil {
				return nil, nil, err
			}
		case <-done:
			if err := drain(); err != nil {
				return nil, nil, err
			}
			break collect
		case <-runCtx.Done():
			break collect
		}
	}

	if err := runCtx.Err(); err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return nil, nil, fmt.Errorf("screening run cancelled: %w", ctx.Err())
		}
		// Items that completed right before the deadline keep their results.
		if err := drain(); err != nil {
			return nil, nil, err
		}
	}

	for _, out := range scored {
		decision := screening.Evaluate(out.Scores, out.Anomaly, req.Thresholds, o.now())
		updated, err := o.store.Update(ctx, out.SubmissionID, func(s *screening.Submission) error {
			s.ApplyClassification(out.Scores, out.Anomaly, decision)
			return nil
		})
		if err != nil {
			itemErr := screening.NewItemError(out.SubmissionID, storeErrorKind(err), err)
			failures = append(failures, itemErr)
			log.Warn("submission failed", logger.ItemFailureFields(itemErr)...)
			continue
		}

		successes = append(successes, updated)
		log.Debug("submission classified",
			zap.String(logger.FieldSubmissionID, updated.ID),
			zap.String(logger.FieldStatus, string(updated.Decision.Status)),
			zap.Int("ats", updated.Scores.ATS),
		)
	}

	for _, s := range subs {
		if _, ok := settled[s.ID]; ok {
			continue
		}
		itemErr := screening.NewItemError(s.ID, screening.KindTimeout,
			fmt.Errorf("%w: run deadline of %s reached", screening.ErrTimeout, o.runTimeout))
		failures = append(failures, itemErr)
		log.Warn("submission failed", logger.ItemFailureFields(itemErr)...)
	}

	return successes, failures, nil
}

func storeErrorKind(err error) screening.ErrorKind {
	if errors.Is(err, screening.ErrNotFound) {
		return screening.KindNotFound
	}
	return screening.KindItemFailure
}

// Get returns a single submission with its current decision.
func (o *Orchestrator) Get(ctx context.Context, id string) (*screening.Submission, error) {
	return o.store.Get(ctx, id)
}
