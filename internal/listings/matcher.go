package listings

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// MatchSkills scores a candidate against the skills a listing asks for. The
// score is the share of required skills the candidate has, in percent.
// Comparison ignores case and surrounding space; duplicates count once.
func MatchSkills(submissionID string, required, candidate []string, at time.Time) Match {
	have := make(map[string]struct{}, len(candidate))
	for _, s := range candidate {
		if key := skillKey(s); key != "" {
			have[key] = struct{}{}
		}
	}

	m := Match{
		SubmissionID:  submissionID,
		MatchedSkills: []string{},
		MissingSkills: []string{},
		MatchedAt:     at.UTC(),
	}

	seen := make(map[string]struct{}, len(required))
	for _, s := range required {
		key := skillKey(s)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		if _, ok := have[key]; ok {
			m.MatchedSkills = append(m.MatchedSkills, strings.TrimSpace(s))
		} else {
			m.MissingSkills = append(m.MissingSkills, strings.TrimSpace(s))
		}
	}

	if total := len(seen); total > 0 {
		score := int(math.Round(100 * float64(len(m.MatchedSkills)) / float64(total)))
		m.MatchScore = min(max(score, 0), 100)
	}

	return m
}

func skillKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Candidate is the part of a submission the matcher needs.
type Candidate struct {
	SubmissionID string
	Skills       []string
}

// MatchCandidate scores c against the active listing at url and stores the
// result on the listing.
func MatchCandidate(ctx context.Context, st Store, url string, c Candidate, at time.Time) (*Listing, Match, error) {
	found, err := st.QueryActive(ctx, ByURL(url))
	if err != nil {
		return nil, Match{}, err
	}
	if len(found) == 0 {
		return nil, Match{}, fmt.Errorf("listing %q: %w", strings.TrimSpace(url), ErrNotFound)
	}

	m := MatchSkills(c.SubmissionID, found[0].Skills, c.Skills, at)
	updated, err := st.RecordMatch(ctx, found[0].URL, m)
	if err != nil {
		return nil, Match{}, err
	}
	return updated, m, nil
}
