// Package remote talks to the HTTP scoring service that produces match,
// quality and anomaly signals for submissions.
package remote

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/ats-screener/internal/logger"
	"github.com/spigell/ats-screener/internal/scoring"
	"github.com/spigell/ats-screener/internal/screening"
	"github.com/spigell/ats-screener/internal/utils"
)

const (
	screenPath      = "/api/screen"
	contentType     = "application/json"
	contentEncoding = "gzip"
	userAgent       = "spigell/ats-screener"

	defaultMaxRetries = 2
	retryBase         = 200 * time.Millisecond
	retryLimit        = 5 * time.Second
	maxErrorBody      = 512
)

type Client struct {
	baseURL    string
	token      string
	maxRetries int
	logger     *zap.Logger

	HTTPClient *http.Client
	UserAgent  string
}

type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.HTTPClient = hc
		}
	}
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// WithMaxRetries sets how many times a throttled or unavailable call is retried.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

func New(baseURL string, log *zap.Logger, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("scoring service url is required")
	}

	c := &Client{
		baseURL:    baseURL,
		maxRetries: defaultMaxRetries,
		logger:     logger.OrNop(log),
		HTTPClient: &http.Client{},
		UserAgent:  userAgent,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

type submissionPayload struct {
	ID     string   `json:"id"`
	Name   string   `json:"name,omitempty"`
	Text   string   `json:"text,omitempty"`
	Skills []string `json:"skills,omitempty"`
}

type screenRequest struct {
	JobDescription   string              `json:"jobDescription"`
	SubmissionIDs    []string            `json:"submissionIds"`
	Submissions      []submissionPayload `json:"submissions"`
	ATSThreshold     int                 `json:"atsThreshold"`
	AnomalyThreshold int                 `json:"anomalyThreshold"`
	MatchThreshold   int                 `json:"matchThreshold"`
}

// Score asks the service to screen a single submission. The service answers
// with the batch envelope described by screenResponse.
func (c *Client) Score(ctx context.Context, req scoring.Request) (scoring.Raw, error) {
	payload, err := json.Marshal(screenRequest{
		JobDescription: req.JobDescription,
		SubmissionIDs:  []string{req.SubmissionID},
		Submissions: []submissionPayload{{
			ID:     req.SubmissionID,
			Name:   req.Name,
			Text:   req.Text,
			Skills: req.Skills,
		}},
		ATSThreshold:     req.Thresholds.ATS,
		AnomalyThreshold: req.Thresholds.Anomaly,
		MatchThreshold:   req.Thresholds.Match,
	})
	if err != nil {
		return scoring.Raw{}, fmt.Errorf("marshal screen request: %w", err)
	}

	body, err := c.post(ctx, c.baseURL+screenPath, payload)
	if err != nil {
		return scoring.Raw{}, err
	}

	return parseScreenResponse(body, req.SubmissionID)
}

// post sends payload and returns the decoded body of a 200 answer. Throttling
// and gateway errors are retried with backoff; once retries are exhausted the
// service is reported unavailable.
func (c *Client) post(ctx context.Context, url string, payload []byte) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryDelay(attempt)
			c.logger.Debug("retrying scoring request",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if err := utils.WaitFor(ctx, delay); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req = c.setHeaders(req)
		req.Header.Set("Content-Type", contentType)

		resp, err := c.request(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			lastErr = fmt.Errorf("%w: %w", screening.ErrUpstreamUnavailable, err)
			continue
		}

		body, err := readBody(resp)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("%w: read body: %w", scoring.ErrMalformed, err)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return body, nil
		case retryable(resp.StatusCode):
			lastErr = fmt.Errorf("%w: bad status: %s", screening.ErrUpstreamUnavailable, resp.Status)
			continue
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return nil, fmt.Errorf("%w: bad status: %s: %s", scoring.ErrRejected, resp.Status, utils.TruncateForLog(string(body), maxErrorBody))
		default:
			return nil, fmt.Errorf("bad status: %s", resp.Status)
		}
	}

	return nil, lastErr
}

// retryDelay is the wait before retry number attempt, counting from 1.
func retryDelay(attempt int) time.Duration {
	return utils.Backoff(attempt, retryBase, retryLimit)
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func (c *Client) request(req *http.Request) (*http.Response, error) {
	c.logger.Debug("make request", zap.String("url", req.URL.String()))
	return c.HTTPClient.Do(req)
}

func (c *Client) setHeaders(req *http.Request) *http.Request {
	if c.token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	}
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept-Encoding", contentEncoding)

	return req
}

func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	return io.ReadAll(reader)
}
