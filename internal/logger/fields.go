package logger

import (
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/ats-screener/internal/screening"
)

const (
	FieldRunID        = "run_id"
	FieldSubmissionID = "submission_id"
	FieldListingURL   = "listing_url"
	FieldStatus       = "status"
	FieldErrorKind    = "error_kind"
	FieldThresholds   = "thresholds"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields attaches fields to l, defaulting to a no-op logger when l is nil.
func WithFields(l *zap.Logger, fields ...zap.Field) *zap.Logger {
	l = OrNop(l)
	if len(fields) == 0 {
		return l
	}
	return l.With(fields...)
}

// RunFields describes a screening run: its id and the thresholds in force.
func RunFields(runID string, t screening.Thresholds) []zap.Field {
	fields := StringFields(StringField{Key: FieldRunID, Value: runID})
	return append(fields,
		zap.Stringer(FieldThresholds, t),
	)
}

// ItemFailureFields describes one failed submission of a run.
func ItemFailureFields(itemErr *screening.ItemError) []zap.Field {
	if itemErr == nil {
		return nil
	}
	return append(
		StringFields(
			StringField{Key: FieldSubmissionID, Value: itemErr.SubmissionID},
			StringField{Key: FieldErrorKind, Value: string(itemErr.Kind)},
		),
		zap.String("error", itemErr.Message),
	)
}
