// Package store keeps submissions and their decisions between runs.
package store

import (
	"context"
	"sort"

	"github.com/spigell/ats-screener/internal/screening"
)

// Store is the submission repository used by the batch orchestrator and the API.
// Implementations hand out copies; mutations go through Update so concurrent
// operators never interleave a read-modify-write.
type Store interface {
	// Put inserts submissions or replaces them wholesale.
	Put(ctx context.Context, subs ...*screening.Submission) error
	// Get fails with screening.ErrNotFound for an unknown id.
	Get(ctx context.Context, id string) (*screening.Submission, error)
	// List returns the submissions that exist, ordered by upload ordinal,
	// and the requested ids that do not.
	List(ctx context.Context, ids []string) (found []*screening.Submission, missing []string, err error)
	// Pending returns submissions without a score set, ordered by upload ordinal.
	Pending(ctx context.Context) ([]*screening.Submission, error)
	// Scored returns submissions with a score set, ordered by upload ordinal.
	Scored(ctx context.Context) ([]*screening.Submission, error)
	// Update applies fn to the stored submission atomically and returns the result.
	// Nothing is written when fn returns an error.
	Update(ctx context.Context, id string, fn func(*screening.Submission) error) (*screening.Submission, error)
	Close() error
}

func sortByOrdinal(subs []*screening.Submission) {
	sort.SliceStable(subs, func(i, j int) bool {
		if subs[i].Ordinal != subs[j].Ordinal {
			return subs[i].Ordinal < subs[j].Ordinal
		}
		return subs[i].ID < subs[j].ID
	})
}

// dedupe drops repeated ids, keeping the first occurrence.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
