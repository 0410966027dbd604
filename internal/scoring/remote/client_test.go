package remote

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spigell/ats-screener/internal/scoring"
	"github.com/spigell/ats-screener/internal/screening"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, zap.NewNop(), opts...)
	require.NoError(t, err)
	return c
}

func TestClientScore(t *testing.T) {
	var got screenRequest

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, screenPath, r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", contentType)
		_, _ = io.WriteString(w, `{
			"results": [{
				"submission_id": "s1",
				"match_score": 86.6,
				"qualityScore": "80",
				"anomalyWeight": 12,
				"anomalySeverity": "low",
				"indicators": ["Short tenure at last employer"]
			}],
			"successful": 1,
			"failed": 0,
			"errors": []
		}`)
	}, WithToken("secret"))

	raw, err := c.Score(context.Background(), scoring.Request{
		JobDescription: "Go developer",
		SubmissionID:   "s1",
		Text:           "resume",
		Thresholds:     screening.DefaultThresholds(),
	})
	require.NoError(t, err)

	assert.Equal(t, scoring.Raw{
		SubmissionID:    "s1",
		MatchScore:      87,
		QualityScore:    80,
		AnomalyWeight:   12,
		AnomalySeverity: "low",
		Indicators:      []string{"Short tenure at last employer"},
	}, raw)

	assert.Equal(t, "Go developer", got.JobDescription)
	assert.Equal(t, []string{"s1"}, got.SubmissionIDs)
	assert.Equal(t, 60, got.ATSThreshold)
	assert.Equal(t, 30, got.AnomalyThreshold)
	assert.Equal(t, 50, got.MatchThreshold)
}

func TestClientScoreGzip(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		_, _ = io.WriteString(gz, `{"results":[{"matchScore":70,"qualityScore":70,"anomalyWeight":0}]}`)
		_ = gz.Close()
	})

	raw, err := c.Score(context.Background(), scoring.Request{SubmissionID: "s9"})
	require.NoError(t, err)
	assert.Equal(t, "s9", raw.SubmissionID)
	assert.Equal(t, 70, raw.MatchScore)
}

func TestClientScoreErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "item error", status: http.StatusOK, body: `{"results":[],"failed":1,"errors":[{"submissionId":"s1","error":"unreadable pdf"}]}`, want: scoring.ErrRejected},
		{name: "bad json", status: http.StatusOK, body: `{"results": [`, want: scoring.ErrMalformed},
		{name: "wrong type", status: http.StatusOK, body: `{"results":[{"submissionId":"s1","matchScore":"high"}]}`, want: scoring.ErrMalformed},
		{name: "missing item", status: http.StatusOK, body: `{"results":[{"submissionId":"s2"},{"submissionId":"s3"}]}`, want: scoring.ErrMalformed},
		{name: "unprocessable", status: http.StatusUnprocessableEntity, body: `{"error":"no text"}`, want: scoring.ErrRejected},
		{name: "unavailable", status: http.StatusServiceUnavailable, want: screening.ErrUpstreamUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}, WithMaxRetries(0))

			_, err := c.Score(context.Background(), scoring.Request{SubmissionID: "s1"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestClientRetriesUnavailable(t *testing.T) {
	var calls atomic.Int32

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `{"results":[{"submissionId":"s1","matchScore":50,"qualityScore":50}]}`)
	}, WithMaxRetries(1))

	raw, err := c.Score(context.Background(), scoring.Request{SubmissionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, 50, raw.MatchScore)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url, nil, WithMaxRetries(0))
	require.NoError(t, err)

	_, err = c.Score(context.Background(), scoring.Request{SubmissionID: "s1"})
	assert.ErrorIs(t, err, screening.ErrUpstreamUnavailable)
}

func TestNewRequiresURL(t *testing.T) {
	_, err := New("  ", nil)
	assert.Error(t, err)
}

func TestRetryDelayDoubles(t *testing.T) {
	assert.Equal(t, retryBase, retryDelay(1))
	assert.Equal(t, 2*retryBase, retryDelay(2))
	assert.Equal(t, 4*retryBase, retryDelay(3))
	assert.Equal(t, retryLimit, retryDelay(20))

	seen := map[time.Duration]bool{}
	for attempt := 1; attempt <= 4; attempt++ {
		d := retryDelay(attempt)
		assert.False(t, seen[d], "retry %d repeats an earlier delay", attempt)
		seen[d] = true
	}
}
