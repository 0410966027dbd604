package batch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/ats-screener/internal/scoring"
	"github.com/spigell/ats-screener/internal/screening"
)

func TestReclassifyDoesNotCallScorerOrTouchScores(t *testing.T) {
	st := seed(t, "a", "b", "pending")
	var calls atomic.Int32
	client := scoring.ClientFunc(func(_ context.Context, req scoring.Request) (scoring.Raw, error) {
		calls.Add(1)
		return scoring.Raw{MatchScore: 70, QualityScore: 60, AnomalyWeight: 20}, nil
	})
	o := newOrchestrator(st, client, Config{}, nil)

	_, err := o.Run(context.Background(), RunRequest{
		SubmissionIDs: []string{"a", "b"},
		Thresholds:    screening.DefaultThresholds(),
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, calls.Load())

	strict, err := screening.NewThresholds(90, 10, 90)
	require.NoError(t, err)

	res, err := o.Reclassify(context.Background(), ReclassifyRequest{Thresholds: strict.WithVersion(2)})
	require.NoError(t, err)

	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, []string{"a", "b"}, rankedIDs(res))
	for _, r := range res.Ranked {
		assert.Equal(t, screening.StatusRejected, r.Decision.Status)
		assert.Equal(t, screening.ScoreSet{Match: 70, Quality: 60, ATS: 67}, r.Scores)
		assert.Equal(t, 2, r.Decision.Thresholds.Version)
	}
}

func TestReclassifySubsetReportsPendingAndMissing(t *testing.T) {
	st := seed(t, "a", "pending")
	o := newOrchestrator(st, scores{"a": {MatchScore: 80, QualityScore: 80}}.client(), Config{}, nil)

	_, err := o.Run(context.Background(), RunRequest{SubmissionIDs: []string{"a"}, Thresholds: screening.DefaultThresholds()})
	require.NoError(t, err)

	res, err := o.Reclassify(context.Background(), ReclassifyRequest{
		SubmissionIDs: []string{"a", "pending", "ghost"},
		Thresholds:    screening.DefaultThresholds(),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 1, res.Successful)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, "ghost", res.Errors[0].SubmissionID)
	assert.Equal(t, screening.KindNotFound, res.Errors[0].Kind)
	assert.Equal(t, "pending", res.Errors[1].SubmissionID)
	assert.ErrorIs(t, res.Errors[1], ErrNotScored)
}

func TestOverrideSurvivesReclassification(t *testing.T) {
	st := seed(t, "a")
	o := newOrchestrator(st, scores{"a": {MatchScore: 95, QualityScore: 95}}.client(), Config{}, nil)

	_, err := o.Run(context.Background(), RunRequest{Thresholds: screening.DefaultThresholds()})
	require.NoError(t, err)

	updated, err := o.Override(context.Background(), OverrideRequest{
		SubmissionID: "a",
		Status:       screening.StatusNeedsReview,
		Actor:        "recruiter@example.com",
		Reason:       "verify references",
	})
	require.NoError(t, err)
	assert.Equal(t, screening.StatusNeedsReview, updated.Decision.Status)
	require.NotNil(t, updated.Decision.Override)
	assert.NotEmpty(t, updated.Decision.Override.ID)

	res, err := o.Reclassify(context.Background(), ReclassifyRequest{Thresholds: screening.DefaultThresholds()})
	require.NoError(t, err)
	require.Len(t, res.Ranked, 1)
	assert.Equal(t, screening.StatusNeedsReview, res.Ranked[0].Decision.Status)
	assert.Equal(t, screening.StatusShortlisted, res.Ranked[0].Decision.Automated)
}

func TestOverrideIsAlwaysLogged(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	st := seed(t, "a")
	o := newOrchestrator(st, scores{"a": {MatchScore: 50, QualityScore: 50}}.client(), Config{}, zap.New(core))

	_, err := o.Run(context.Background(), RunRequest{Thresholds: screening.DefaultThresholds()})
	require.NoError(t, err)

	at := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	_, err = o.Override(context.Background(), OverrideRequest{SubmissionID: "a", Status: screening.StatusShortlisted, Actor: "x", At: at})
	require.NoError(t, err)

	_, err = o.Override(context.Background(), OverrideRequest{SubmissionID: "a", Status: screening.StatusRejected, Actor: "y", At: at.Add(-time.Hour)})
	assert.ErrorIs(t, err, screening.ErrStaleOverride)

	_, err = o.Override(context.Background(), OverrideRequest{SubmissionID: "ghost", Status: screening.StatusRejected, Actor: "y"})
	assert.ErrorIs(t, err, screening.ErrNotFound)

	assert.Len(t, observed.FilterMessage("decision overridden").All(), 1)
	refused := observed.FilterMessage("override refused").All()
	require.Len(t, refused, 2)
	assert.Equal(t, "not_found", refused[1].ContextMap()["error_kind"])

	got, err := o.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, screening.StatusShortlisted, got.Decision.Status)
	assert.Equal(t, "x", got.Decision.Override.Actor)
}
