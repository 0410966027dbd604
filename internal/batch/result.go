package batch

import (
	"encoding/json"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/spigell/ats-screener/internal/screening"
)

// RunResult is the outcome of one run. Successful+Failed always equals Total
// and Ranked holds exactly the successful submissions. FlaggedAnomalies lists
// successful submissions whose anomaly severity calls for a report, in rank order.
type RunResult struct {
	RunID            uuid.UUID              `json:"runId"`
	Thresholds       screening.Thresholds   `json:"thresholds"`
	Total            int                    `json:"total"`
	Successful       int                    `json:"successful"`
	Failed           int                    `json:"failed"`
	Errors           []*screening.ItemError `json:"errors"`
	Ranked           []screening.Ranked     `json:"ranked"`
	FlaggedAnomalies []FlaggedAnomaly       `json:"flaggedAnomalies,omitempty"`
	StartedAt        time.Time              `json:"startedAt"`
	FinishedAt       time.Time              `json:"finishedAt"`
}

// FlaggedAnomaly names a submission whose anomaly needs a report and its severity.
type FlaggedAnomaly struct {
	SubmissionID string             `json:"submissionId"`
	Severity     screening.Severity `json:"severity"`
}

func newRunResult(t screening.Thresholds, started time.Time) *RunResult {
	return &RunResult{
		RunID:      uuid.New(),
		Thresholds: t,
		StartedAt:  started,
	}
}

func (r *RunResult) finish(successes []*screening.Submission, failures []*screening.ItemError, finished time.Time) {
	sort.SliceStable(failures, func(i, j int) bool {
		return failures[i].SubmissionID < failures[j].SubmissionID
	})

	r.Ranked = screening.Rank(successes)
	r.Errors = failures
	if r.Errors == nil {
		r.Errors = []*screening.ItemError{}
	}
	r.Successful = len(r.Ranked)
	r.Failed = len(failures)
	r.Total = r.Successful + r.Failed
	r.FinishedAt = finished

	r.FlaggedAnomalies = nil
	for _, entry := range r.Ranked {
		if entry.Anomaly.NeedsReport() {
			r.FlaggedAnomalies = append(r.FlaggedAnomalies, FlaggedAnomaly{
				SubmissionID: entry.SubmissionID,
				Severity:     entry.Anomaly.Severity,
			})
		}
	}
}

// ReportByDecision groups ranked entries by their decision status, keeping rank order.
func (r *RunResult) ReportByDecision() map[screening.Status][]screening.Ranked {
	report := make(map[screening.Status][]screening.Ranked)
	for _, entry := range r.Ranked {
		report[entry.Decision.Status] = append(report[entry.Decision.Status], entry)
	}
	return report
}

// DumpToTmpFile writes the result as indented JSON to a new temp file and
// returns its path.
func (r *RunResult) DumpToTmpFile() (string, error) {
	file, err := os.CreateTemp("", "screening_run_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	return file.Name(), nil
}
