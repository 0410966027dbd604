package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/spigell/ats-screener/internal/logger"
	"github.com/spigell/ats-screener/internal/scoring"
	"github.com/spigell/ats-screener/internal/screening"
	"github.com/spigell/ats-screener/internal/utils"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// Scorer implements scoring.Client on top of a Gemini model.
type Scorer struct {
	generator contentGenerator
	logger    *zap.Logger
	maxLogLen int
}

//go:embed prompt.md
var promptTemplate string

const defaultMaxLogLength = 200

func NewScorer(generator contentGenerator, log *zap.Logger, maxLogLength int) *Scorer {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	return &Scorer{
		generator: generator,
		logger:    logger.OrNop(log),
		maxLogLen: maxLogLength,
	}
}

func (s *Scorer) Score(ctx context.Context, req scoring.Request) (scoring.Raw, error) {
	if strings.TrimSpace(req.Text) == "" {
		return scoring.Raw{}, fmt.Errorf("%w: submission %s has no text", scoring.ErrRejected, req.SubmissionID)
	}

	submissionJSON, err := json.MarshalIndent(map[string]any{
		"id":     req.SubmissionID,
		"name":   req.Name,
		"skills": req.Skills,
		"text":   req.Text,
	}, "", "  ")
	if err != nil {
		return scoring.Raw{}, fmt.Errorf("marshal submission payload: %w", err)
	}

	prompt := buildPrompt(req.JobDescription, string(submissionJSON), req.Thresholds)

	s.logger.Debug("gemini generate content request",
		zap.String(logger.FieldSubmissionID, req.SubmissionID),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, s.maxLogLen)),
	)

	raw, err := s.generator.GenerateContent(ctx, prompt)
	if err != nil {
		return scoring.Raw{}, err
	}

	s.logger.Debug("gemini generate content response",
		zap.String(logger.FieldSubmissionID, req.SubmissionID),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, s.maxLogLen)),
	)

	result, err := parseResponse(raw)
	if err != nil {
		return scoring.Raw{}, err
	}
	result.SubmissionID = req.SubmissionID

	return result, nil
}

func buildPrompt(jobDescription, submissionJSON string, t screening.Thresholds) string {
	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Job:\n{{JOB_DESCRIPTION}}\n\nSubmission:\n{{SUBMISSION_JSON}}\n\nThresholds: {{THRESHOLDS}}\n\nJSON Response:"
	}

	thresholds := fmt.Sprintf("ATS >= %d, anomaly <= %d, match >= %d", t.ATS, t.Anomaly, t.Match)

	jobDescription = strings.TrimSpace(jobDescription)
	if jobDescription == "" {
		jobDescription = "(not provided; score quality and anomalies only, matchScore 0)"
	}

	prompt := strings.ReplaceAll(template, "{{THRESHOLDS}}", thresholds)
	prompt = strings.ReplaceAll(prompt, "{{JOB_DESCRIPTION}}", jobDescription)
	prompt = strings.ReplaceAll(prompt, "{{SUBMISSION_JSON}}", submissionJSON)
	return prompt
}

func parseResponse(raw string) (scoring.Raw, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return scoring.Raw{}, fmt.Errorf("%w: parse gemini response: %w", scoring.ErrMalformed, err)
	}

	match, err := coerceScore(data, "matchScore")
	if err != nil {
		return scoring.Raw{}, err
	}
	quality, err := coerceScore(data, "qualityScore")
	if err != nil {
		return scoring.Raw{}, err
	}
	anomaly, err := coerceScore(data, "anomalyWeight")
	if err != nil {
		return scoring.Raw{}, err
	}

	return scoring.Raw{
		MatchScore:      match,
		QualityScore:    quality,
		AnomalyWeight:   anomaly,
		AnomalySeverity: coerceString(data["anomalySeverity"]),
		Indicators:      coerceStrings(data["indicators"]),
	}, nil
}

func coerceScore(data map[string]any, key string) (int, error) {
	v, ok := data[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s is missing", scoring.ErrMalformed, key)
	}

	f := coerceFloat(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %s is not a number: %v", scoring.ErrMalformed, key, v)
	}

	return int(math.Round(f)), nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		if v == nil {
			return ""
		}
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}

// coerceStrings keeps indicator text verbatim; only empty entries are dropped.
func coerceStrings(v any) []string {
	switch val := v.(type) {
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				s = coerceString(item)
			}
			if strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if strings.TrimSpace(val) == "" {
			return nil
		}
		return []string{val}
	default:
		return nil
	}
}
