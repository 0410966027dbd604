package remote

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/spigell/ats-screener/internal/scoring"
)

// screenResponse is the envelope returned by the scoring service. Results are
// kept generic and decoded item by item since the service is loose about types
// (numbers may arrive as floats or strings, keys as camelCase or snake_case).
type screenResponse struct {
	Results    []map[string]any `json:"results"`
	Successful int              `json:"successful"`
	Failed     int              `json:"failed"`
	Errors     []itemError      `json:"errors"`
}

type itemError struct {
	SubmissionID string `json:"submissionId"`
	Error        string `json:"error"`
}

func parseScreenResponse(body []byte, submissionID string) (scoring.Raw, error) {
	var response screenResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return scoring.Raw{}, fmt.Errorf("%w: %w", scoring.ErrMalformed, err)
	}

	for _, e := range response.Errors {
		if e.SubmissionID == submissionID {
			return scoring.Raw{}, fmt.Errorf("%w: %s", scoring.ErrRejected, strings.TrimSpace(e.Error))
		}
	}

	for _, item := range response.Results {
		raw, err := decodeRaw(item)
		if err != nil {
			return scoring.Raw{}, fmt.Errorf("%w: %w", scoring.ErrMalformed, err)
		}
		if raw.SubmissionID == submissionID {
			return raw, nil
		}
	}

	// A single anonymous result is accepted for the submission that was asked for.
	if len(response.Results) == 1 {
		raw, _ := decodeRaw(response.Results[0])
		if raw.SubmissionID == "" {
			raw.SubmissionID = submissionID
			return raw, nil
		}
	}

	return scoring.Raw{}, fmt.Errorf("%w: no result for submission %q", scoring.ErrMalformed, submissionID)
}

func decodeRaw(item map[string]any) (scoring.Raw, error) {
	var raw scoring.Raw

	cfg := &mapstructure.DecoderConfig{
		Result:           &raw,
		WeaklyTypedInput: true,
		DecodeHook:       roundFloats,
		MatchName:        matchName,
	}
	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return raw, err
	}
	if err := decoder.Decode(item); err != nil {
		return raw, err
	}

	raw.SubmissionID = strings.TrimSpace(raw.SubmissionID)
	return raw, nil
}

// roundFloats rounds JSON numbers before they land in integer fields; the
// default conversion would truncate 86.6 to 86.
func roundFloats(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.Float64 || to.Kind() != reflect.Int {
		return data, nil
	}
	f := data.(float64)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("invalid number %v", f)
	}
	return int(math.Round(f)), nil
}

func matchName(mapKey, fieldName string) bool {
	return strings.EqualFold(strings.ReplaceAll(mapKey, "_", ""), fieldName)
}
