package screening

import "sort"

// Ranked is a classified submission with its position in the run.
type Ranked struct {
	Rank         int               `json:"rank"`
	SubmissionID string            `json:"submissionId"`
	Name         string            `json:"name,omitempty"`
	Ordinal      int               `json:"ordinal"`
	Scores       ScoreSet          `json:"scores"`
	Anomaly      AnomalyAssessment `json:"anomaly"`
	Decision     Decision          `json:"decision"`
}

// Rank orders classified submissions by ATS score descending, breaking ties
// by upload ordinal ascending, and numbers them from 1. Submissions without
// scores are left out.
func Rank(subs []*Submission) []Ranked {
	ranked := make([]Ranked, 0, len(subs))
	for _, s := range subs {
		if s == nil || s.Scores == nil || s.Anomaly == nil {
			continue
		}
		ranked = append(ranked, Ranked{
			SubmissionID: s.ID,
			Name:         s.Name,
			Ordinal:      s.Ordinal,
			Scores:       *s.Scores,
			Anomaly:      *s.Anomaly,
			Decision:     s.Decision,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Scores.ATS != ranked[j].Scores.ATS {
			return ranked[i].Scores.ATS > ranked[j].Scores.ATS
		}
		if ranked[i].Ordinal != ranked[j].Ordinal {
			return ranked[i].Ordinal < ranked[j].Ordinal
		}
		return ranked[i].SubmissionID < ranked[j].SubmissionID
	})

	for i := range ranked {
		ranked[i].Rank = i + 1
	}

	return ranked
}
