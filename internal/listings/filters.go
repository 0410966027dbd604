package listings

import (
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/ats-screener/internal/logger"
)

// Filter narrows the result of QueryActive.
type Filter interface {
	Name() string
	Keep(l *Listing) bool
}

// Step describes the result of applying one filter.
type Step struct {
	Initial int
	Dropped int
	Left    int
}

type matchFilter struct {
	submissionID string
	floor        int
}

// MinMatchScore keeps listings with at least one match scoring floor or more.
// The floor is inclusive: a match of exactly floor passes.
func MinMatchScore(floor int) Filter {
	return &matchFilter{floor: floor}
}

// ForSubmission keeps listings that carry a match record for the submission.
func ForSubmission(submissionID string) Filter {
	return &matchFilter{submissionID: strings.TrimSpace(submissionID)}
}

// SubmissionMinScore keeps listings where the submission's own match scores
// floor or more.
func SubmissionMinScore(submissionID string, floor int) Filter {
	return &matchFilter{submissionID: strings.TrimSpace(submissionID), floor: floor}
}

func (f *matchFilter) Name() string {
	switch {
	case f.submissionID != "" && f.floor > 0:
		return "submission_min_score"
	case f.submissionID != "":
		return "for_submission"
	default:
		return "min_match_score"
	}
}

func (f *matchFilter) Keep(l *Listing) bool {
	for _, m := range l.Matches {
		if f.submissionID != "" && m.SubmissionID != f.submissionID {
			continue
		}
		if m.MatchScore >= f.floor {
			return true
		}
	}
	return false
}

type sourceFilter struct {
	source string
}

// FromSource keeps listings scraped from the given source, case-insensitively.
func FromSource(source string) Filter {
	return &sourceFilter{source: strings.TrimSpace(source)}
}

func (f *sourceFilter) Name() string { return "from_source" }

func (f *sourceFilter) Keep(l *Listing) bool {
	return strings.EqualFold(strings.TrimSpace(l.Source), f.source)
}

// Apply runs filters in order, logging how many listings each one dropped.
func Apply(log *zap.Logger, items []*Listing, filters ...Filter) []*Listing {
	log = logger.OrNop(log)

	for _, filter := range filters {
		if filter == nil {
			continue
		}

		kept := items[:0:0]
		for _, l := range items {
			if filter.Keep(l) {
				kept = append(kept, l)
			}
		}

		step := Step{Initial: len(items), Dropped: len(items) - len(kept), Left: len(kept)}
		log.Debug("listing filter step",
			zap.String("name", filter.Name()),
			zap.Int("initial", step.Initial),
			zap.Int("dropped", step.Dropped),
			zap.Int("left", step.Left),
		)
		items = kept
	}

	return items
}

type urlFilter struct {
	url string
}

// ByURL keeps the listing stored under url.
func ByURL(url string) Filter {
	return &urlFilter{url: strings.TrimSpace(url)}
}

func (f *urlFilter) Name() string { return "by_url" }

func (f *urlFilter) Keep(l *Listing) bool {
	return l.URL == f.url
}
