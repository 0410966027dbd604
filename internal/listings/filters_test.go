package listings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestFilters(t *testing.T) {
	items := []*Listing{
		{URL: "https://a.example.com", Source: "LinkedIn", Matches: []Match{{SubmissionID: "s1", MatchScore: 80}, {SubmissionID: "s2", MatchScore: 30}}},
		{URL: "https://b.example.com", Source: "indeed", Matches: []Match{{SubmissionID: "s2", MatchScore: 60}}},
		{URL: "https://c.example.com", Source: "linkedin"},
	}

	urls := func(ls []*Listing) []string {
		out := make([]string, 0, len(ls))
		for _, l := range ls {
			out = append(out, l.URL)
		}
		return out
	}

	cases := []struct {
		name    string
		filters []Filter
		want    []string
	}{
		{name: "none", want: []string{"https://a.example.com", "https://b.example.com", "https://c.example.com"}},
		{name: "min score inclusive", filters: []Filter{MinMatchScore(60)}, want: []string{"https://a.example.com", "https://b.example.com"}},
		{name: "min score high", filters: []Filter{MinMatchScore(81)}, want: []string{}},
		{name: "for submission", filters: []Filter{ForSubmission("s2")}, want: []string{"https://a.example.com", "https://b.example.com"}},
		{name: "submission floor", filters: []Filter{SubmissionMinScore("s2", 50)}, want: []string{"https://b.example.com"}},
		{name: "source", filters: []Filter{FromSource("linkedin")}, want: []string{"https://a.example.com", "https://c.example.com"}},
		{name: "combined", filters: []Filter{FromSource("linkedin"), MinMatchScore(50)}, want: []string{"https://a.example.com"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, urls(Apply(zap.NewNop(), items, tc.filters...)))
		})
	}

	assert.Len(t, items, 3, "input is not modified")
}

func TestFilterNames(t *testing.T) {
	assert.Equal(t, "min_match_score", MinMatchScore(1).Name())
	assert.Equal(t, "for_submission", ForSubmission("s").Name())
	assert.Equal(t, "submission_min_score", SubmissionMinScore("s", 5).Name())
	assert.Equal(t, "from_source", FromSource("x").Name())
	assert.Equal(t, "by_url", ByURL("https://x.example.com").Name())
}
