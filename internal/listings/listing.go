// Package listings is a TTL-bounded cache of third-party job postings keyed by
// URL, each carrying per-submission match records.
package listings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/spigell/ats-screener/internal/screening"
)

// DefaultTTL is the freshness window of a scraped listing.
const DefaultTTL = 24 * time.Hour

var (
	// ErrNotFound is returned for a URL that is absent or already expired.
	ErrNotFound = screening.ErrNotFound
	// ErrInvalidListing reports a listing or match that failed validation.
	ErrInvalidListing = errors.New("invalid listing")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Match is how well one submission fits a listing.
type Match struct {
	SubmissionID  string    `json:"submissionId" validate:"required"`
	MatchScore    int       `json:"matchScore" validate:"min=0,max=100"`
	MatchedSkills []string  `json:"matchedSkills"`
	MissingSkills []string  `json:"missingSkills"`
	MatchedAt     time.Time `json:"matchedAt,omitempty"`
}

type Listing struct {
	URL       string    `json:"url" validate:"required,url"`
	Title     string    `json:"title,omitempty"`
	Company   string    `json:"company,omitempty"`
	Location  string    `json:"location,omitempty"`
	Source    string    `json:"source,omitempty"`
	Skills    []string  `json:"skills,omitempty"`
	ScrapedAt time.Time `json:"scrapedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Matches   []Match   `json:"matches"`
}

// Store is the narrow interface every cache backend implements. Upsert must
// keep one entry per URL even under concurrent writers.
type Store interface {
	Upsert(ctx context.Context, l Listing) (*Listing, error)
	QueryActive(ctx context.Context, filters ...Filter) ([]*Listing, error)
	RecordMatch(ctx context.Context, url string, m Match) (*Listing, error)
	Close() error
}

// Active reports whether the listing is still fresh at now.
func (l *Listing) Active(now time.Time) bool {
	return l.ExpiresAt.After(now)
}

// MatchFor returns the match record of a submission.
func (l *Listing) MatchFor(submissionID string) (Match, bool) {
	for _, m := range l.Matches {
		if m.SubmissionID == submissionID {
			return m, true
		}
	}
	return Match{}, false
}

// BestScore is the highest match score on the listing, or -1 without matches.
func (l *Listing) BestScore() int {
	best := -1
	for _, m := range l.Matches {
		best = max(best, m.MatchScore)
	}
	return best
}

func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	c := *l
	c.Skills = append([]string(nil), l.Skills...)
	c.Matches = make([]Match, 0, len(l.Matches))
	for _, m := range l.Matches {
		c.Matches = append(c.Matches, m.clone())
	}
	return &c
}

func (m Match) clone() Match {
	m.MatchedSkills = append([]string(nil), m.MatchedSkills...)
	m.MissingSkills = append([]string(nil), m.MissingSkills...)
	return m
}

// recordMatch appends m or replaces the record of the same submission.
func (l *Listing) recordMatch(m Match) {
	for i := range l.Matches {
		if l.Matches[i].SubmissionID == m.SubmissionID {
			l.Matches[i] = m.clone()
			return
		}
	}
	l.Matches = append(l.Matches, m.clone())
}

// Normalize validates l and fills the timestamps: a missing ScrapedAt becomes
// now and ExpiresAt is always ScrapedAt+ttl.
func Normalize(l Listing, ttl time.Duration, now time.Time) (Listing, error) {
	l.URL = strings.TrimSpace(l.URL)
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if l.ScrapedAt.IsZero() {
		l.ScrapedAt = now
	}
	l.ScrapedAt = l.ScrapedAt.UTC()
	l.ExpiresAt = l.ScrapedAt.Add(ttl)

	for i := range l.Matches {
		if err := normalizeMatch(&l.Matches[i], l.ScrapedAt); err != nil {
			return Listing{}, err
		}
	}

	if err := validate.Struct(l); err != nil {
		return Listing{}, invalid(err)
	}
	return l, nil
}

func normalizeMatch(m *Match, now time.Time) error {
	m.SubmissionID = strings.TrimSpace(m.SubmissionID)
	if m.MatchedAt.IsZero() {
		m.MatchedAt = now
	}
	m.MatchedAt = m.MatchedAt.UTC()
	if err := validate.Struct(m); err != nil {
		return invalid(err)
	}
	return nil
}

func invalid(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidListing, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidListing, strings.Join(fields, ", "))
}

// merge folds an incoming scrape of the same URL into existing. The newer
// scrape time wins, non-empty metadata replaces the old values and match
// records are merged by submission.
func merge(existing *Listing, incoming Listing) *Listing {
	if existing == nil {
		return incoming.Clone()
	}

	out := existing.Clone()
	if incoming.ScrapedAt.After(out.ScrapedAt) {
		out.ScrapedAt = incoming.ScrapedAt
	}
	if incoming.ExpiresAt.After(out.ExpiresAt) {
		out.ExpiresAt = incoming.ExpiresAt
	}

	setIfNotEmpty(&out.Title, incoming.Title)
	setIfNotEmpty(&out.Company, incoming.Company)
	setIfNotEmpty(&out.Location, incoming.Location)
	setIfNotEmpty(&out.Source, incoming.Source)
	if len(incoming.Skills) > 0 {
		out.Skills = append([]string(nil), incoming.Skills...)
	}

	for _, m := range incoming.Matches {
		out.recordMatch(m)
	}
	return out
}

func setIfNotEmpty(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}
