package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spigell/ats-screener/internal/screening"
)

const pingTimeout = 5 * time.Second

const schema = `
CREATE TABLE IF NOT EXISTS submissions (
	id          TEXT PRIMARY KEY,
	ordinal     INTEGER NOT NULL,
	scored      BOOLEAN NOT NULL DEFAULT FALSE,
	doc         JSONB NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS submissions_ordinal_idx ON submissions (scored, ordinal);
`

// Postgres stores each submission as a JSONB document next to the columns
// needed for selection and ordering.
type Postgres struct {
	pool *pgxpool.Pool
}

// ConnectPostgres opens a pool, verifies it and applies the schema.
func ConnectPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	p := &Postgres{pool: pool}
	if err := p.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// Migrate creates the submissions table when it does not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate submissions: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}

func (p *Postgres) Put(ctx context.Context, subs ...*screening.Submission) error {
	batch := &pgx.Batch{}
	for _, s := range subs {
		if s == nil || strings.TrimSpace(s.ID) == "" {
			return fmt.Errorf("submission id is required")
		}
		doc, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("failed to marshal submission %q: %w", s.ID, err)
		}
		batch.Queue(
			`INSERT INTO submissions (id, ordinal, scored, doc)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (id) DO UPDATE SET ordinal = $2, scored = $3, doc = $4, updated_at = NOW()`,
			s.ID, s.Ordinal, !s.Pending(), doc,
		)
	}

	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save submissions: %w", err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, id string) (*screening.Submission, error) {
	var doc []byte
	err := p.pool.QueryRow(ctx, `SELECT doc FROM submissions WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("submission %q: %w", id, screening.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get submission %q: %w", id, err)
	}
	return decodeSubmission(doc)
}

func (p *Postgres) List(ctx context.Context, ids []string) ([]*screening.Submission, []string, error) {
	ids = dedupe(ids)
	found, err := p.query(ctx, `SELECT doc FROM submissions WHERE id = ANY($1) ORDER BY ordinal, id`, ids)
	if err != nil {
		return nil, nil, err
	}

	present := make(map[string]struct{}, len(found))
	for _, s := range found {
		present[s.ID] = struct{}{}
	}

	var missing []string
	for _, id := range ids {
		if _, ok := present[id]; !ok {
			missing = append(missing, id)
		}
	}
	return found, missing, nil
}

func (p *Postgres) Pending(ctx context.Context) ([]*screening.Submission, error) {
	return p.query(ctx, `SELECT doc FROM submissions WHERE NOT scored ORDER BY ordinal, id`)
}

func (p *Postgres) Scored(ctx context.Context) ([]*screening.Submission, error) {
	return p.query(ctx, `SELECT doc FROM submissions WHERE scored ORDER BY ordinal, id`)
}

// Update locks the row for the duration of fn so concurrent overrides and
// automated passes are serialized per submission.
func (p *Postgres) Update(ctx context.Context, id string, fn func(*screening.Submission) error) (*screening.Submission, error) {
	var updated *screening.Submission

	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		var doc []byte
		err := tx.QueryRow(ctx, `SELECT doc FROM submissions WHERE id = $1 FOR UPDATE`, id).Scan(&doc)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("submission %q: %w", id, screening.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to lock submission %q: %w", id, err)
		}

		s, err := decodeSubmission(doc)
		if err != nil {
			return err
		}
		if err := fn(s); err != nil {
			return err
		}

		next, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("failed to marshal submission %q: %w", id, err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE submissions SET scored = $2, doc = $3, updated_at = NOW() WHERE id = $1`,
			id, !s.Pending(), next,
		); err != nil {
			return fmt.Errorf("failed to update submission %q: %w", id, err)
		}

		updated = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (p *Postgres) query(ctx context.Context, sql string, args ...any) ([]*screening.Submission, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}

	docs, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("failed to read submissions: %w", err)
	}

	out := make([]*screening.Submission, 0, len(docs))
	for _, doc := range docs {
		s, err := decodeSubmission(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func decodeSubmission(doc []byte) (*screening.Submission, error) {
	var s screening.Submission
	if err := json.Unmarshal(doc, &s); err != nil {
		return nil, fmt.Errorf("failed to decode submission: %w", err)
	}
	return &s, nil
}
