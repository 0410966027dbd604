package screening

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestItemErrorMatchesKindSentinel(t *testing.T) {
	cause := errors.New("bad json")
	err := NewItemError("s1", KindMalformed, cause)

	assert.ErrorIs(t, err, ErrItemFailure)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Equal(t, "bad json", err.Message)
	assert.Contains(t, err.Error(), "s1")

	timeout := NewItemError("s2", KindTimeout, context.DeadlineExceeded)
	assert.ErrorIs(t, timeout, ErrTimeout)
	assert.ErrorIs(t, timeout, context.DeadlineExceeded)

	bare := NewItemError("s3", KindNotFound, nil)
	assert.Equal(t, "not_found", bare.Message)
	assert.ErrorIs(t, bare, ErrNotFound)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindRejected, KindOf(fmt.Errorf("wrap: %w", NewItemError("s", KindRejected, nil))))
	assert.Equal(t, KindUpstreamUnavailable, KindOf(fmt.Errorf("dial: %w", ErrUpstreamUnavailable)))
	assert.Equal(t, KindTimeout, KindOf(ErrTimeout))
	assert.Equal(t, KindNotFound, KindOf(ErrNotFound))
	assert.Equal(t, KindInvalidScore, KindOf(ErrInvalidScore))
	assert.Equal(t, KindItemFailure, KindOf(errors.New("other")))
}

func TestItemErrorItemFailureFamily(t *testing.T) {
	cases := []struct {
		kind ErrorKind
		want bool
	}{
		{KindItemFailure, true},
		{KindMalformed, true},
		{KindRejected, true},
		{KindTimeout, true},
		{KindNotFound, true},
		{KindUpstreamUnavailable, false},
		{KindInvalidScore, false},
	}

	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			err := NewItemError("s1", tc.kind, nil)
			assert.Equal(t, tc.want, errors.Is(err, ErrItemFailure))
			assert.ErrorIs(t, err, tc.kind.sentinel())
		})
	}
}
