package screening

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate(t *testing.T) {
	cases := []struct {
		name    string
		match   int
		quality int
		want    int
	}{
		{name: "scenario shortlist", match: 90, quality: 80, want: 87},
		{name: "scenario reject", match: 50, quality: 40, want: 47},
		{name: "zeros", match: 0, quality: 0, want: 0},
		{name: "maximum", match: 100, quality: 100, want: 100},
		{name: "half rounds up", match: 5, quality: 0, want: 4},
		{name: "quality only", match: 0, quality: 100, want: 30},
		{name: "match only", match: 100, quality: 0, want: 70},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Aggregate(tc.match, tc.quality)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAggregateMatchesFormulaOverWholeDomain(t *testing.T) {
	for match := 0; match <= 100; match++ {
		for quality := 0; quality <= 100; quality++ {
			got, err := Aggregate(match, quality)
			require.NoError(t, err)

			want := int(math.Round((7*float64(match) + 3*float64(quality)) / 10))
			require.Equal(t, want, got, "match=%d quality=%d", match, quality)
			require.GreaterOrEqual(t, got, 0)
			require.LessOrEqual(t, got, 100)

			again, err := Aggregate(match, quality)
			require.NoError(t, err)
			require.Equal(t, got, again)
		}
	}
}

func TestAggregateRejectsOutOfRange(t *testing.T) {
	cases := [][2]int{{-1, 50}, {101, 50}, {50, -1}, {50, 101}}
	for _, c := range cases {
		_, err := Aggregate(c[0], c[1])
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidScore), "match=%d quality=%d", c[0], c[1])
	}
}

func TestNewScoreSet(t *testing.T) {
	set, err := NewScoreSet(90, 80)
	require.NoError(t, err)
	assert.Equal(t, ScoreSet{Match: 90, Quality: 80, ATS: 87}, set)

	_, err = NewScoreSet(90, 180)
	assert.ErrorIs(t, err, ErrInvalidScore)
}
