package listings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/spigell/ats-screener/internal/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS external_listings (
	url         TEXT PRIMARY KEY,
	title       TEXT NOT NULL DEFAULT '',
	company     TEXT NOT NULL DEFAULT '',
	location    TEXT NOT NULL DEFAULT '',
	source      TEXT NOT NULL DEFAULT '',
	skills      JSONB NOT NULL DEFAULT '[]',
	scraped_at  TIMESTAMPTZ NOT NULL,
	expires_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS external_listings_expires_idx ON external_listings (expires_at);
CREATE TABLE IF NOT EXISTS external_listing_matches (
	url             TEXT NOT NULL REFERENCES external_listings (url) ON DELETE CASCADE,
	submission_id   TEXT NOT NULL,
	match_score     INTEGER NOT NULL CHECK (match_score BETWEEN 0 AND 100),
	matched_skills  JSONB NOT NULL DEFAULT '[]',
	missing_skills  JSONB NOT NULL DEFAULT '[]',
	matched_at      TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (url, submission_id)
);
`

// Postgres relies on the primary keys of both tables for URL and
// per-submission uniqueness.
type Postgres struct {
	settings
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func ConnectPostgres(ctx context.Context, databaseURL string, log *zap.Logger, opts ...Option) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	p := &Postgres{settings: newSettings(opts), pool: pool, logger: logger.OrNop(log)}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate listings: %w", err)
	}
	return p, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) Upsert(ctx context.Context, l Listing) (*Listing, error) {
	l, err := Normalize(l, p.ttl, p.clock())
	if err != nil {
		return nil, err
	}
	now := p.clock()

	err = pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		// An expired row is logically gone: it is replaced, not merged into.
		if _, err := tx.Exec(ctx,
			`DELETE FROM external_listings WHERE url = $1 AND expires_at <= $2`, l.URL, now,
		); err != nil {
			return err
		}

		skills, err := jsonArray(l.Skills)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO external_listings (url, title, company, location, source, skills, scraped_at, expires_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (url) DO UPDATE SET
				title      = COALESCE(NULLIF(EXCLUDED.title, ''), external_listings.title),
				company    = COALESCE(NULLIF(EXCLUDED.company, ''), external_listings.company),
				location   = COALESCE(NULLIF(EXCLUDED.location, ''), external_listings.location),
				source     = COALESCE(NULLIF(EXCLUDED.source, ''), external_listings.source),
				skills     = CASE WHEN jsonb_array_length(EXCLUDED.skills) > 0 THEN EXCLUDED.skills ELSE external_listings.skills END,
				scraped_at = GREATEST(EXCLUDED.scraped_at, external_listings.scraped_at),
				expires_at = GREATEST(EXCLUDED.expires_at, external_listings.expires_at)`,
			l.URL, strings.TrimSpace(l.Title), strings.TrimSpace(l.Company), strings.TrimSpace(l.Location),
			strings.TrimSpace(l.Source), skills, l.ScrapedAt, l.ExpiresAt,
		); err != nil {
			return err
		}

		for _, m := range l.Matches {
			if err := upsertMatch(ctx, tx, l.URL, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert listing %q: %w", l.URL, err)
	}

	return p.get(ctx, l.URL)
}

func (p *Postgres) RecordMatch(ctx context.Context, url string, m Match) (*Listing, error) {
	url = strings.TrimSpace(url)
	if err := normalizeMatch(&m, p.clock()); err != nil {
		return nil, err
	}

	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		var one int
		err := tx.QueryRow(ctx,
			`SELECT 1 FROM external_listings WHERE url = $1 AND expires_at > $2 FOR SHARE`,
			url, p.clock(),
		).Scan(&one)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("listing %q: %w", url, ErrNotFound)
		}
		if err != nil {
			return err
		}
		return upsertMatch(ctx, tx, url, m)
	})
	if err != nil {
		return nil, err
	}

	return p.get(ctx, url)
}

func upsertMatch(ctx context.Context, tx pgx.Tx, url string, m Match) error {
	matched, err := jsonArray(m.MatchedSkills)
	if err != nil {
		return err
	}
	missing, err := jsonArray(m.MissingSkills)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO external_listing_matches (url, submission_id, match_score, matched_skills, missing_skills, matched_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (url, submission_id) DO UPDATE SET
			match_score = EXCLUDED.match_score,
			matched_skills = EXCLUDED.matched_skills,
			missing_skills = EXCLUDED.missing_skills,
			matched_at = EXCLUDED.matched_at`,
		url, m.SubmissionID, m.MatchScore, matched, missing, m.MatchedAt,
	)
	return err
}

func (p *Postgres) get(ctx context.Context, url string) (*Listing, error) {
	items, err := p.load(ctx, `WHERE url = $1 AND expires_at > $2`, url, p.clock())
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("listing %q: %w", url, ErrNotFound)
	}
	return items[0], nil
}

func (p *Postgres) QueryActive(ctx context.Context, filters ...Filter) ([]*Listing, error) {
	items, err := p.load(ctx, `WHERE expires_at > $1`, p.clock())
	if err != nil {
		return nil, err
	}
	sortListings(items)
	return Apply(p.logger, items, filters...), nil
}

// DeleteExpired physically removes listings that expired before now.
func (p *Postgres) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM external_listings WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired listings: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) load(ctx context.Context, where string, args ...any) ([]*Listing, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT l.url, l.title, l.company, l.location, l.source, l.skills, l.scraped_at, l.expires_at,
			COALESCE(
				(SELECT json_agg(json_build_object(
					'submissionId', m.submission_id,
					'matchScore', m.match_score,
					'matchedSkills', m.matched_skills,
					'missingSkills', m.missing_skills,
					'matchedAt', m.matched_at
				) ORDER BY m.submission_id)
				FROM external_listing_matches m WHERE m.url = l.url),
				'[]'
			)
		 FROM external_listings l `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer rows.Close()

	var out []*Listing
	for rows.Next() {
		var (
			l       Listing
			skills  []byte
			matches []byte
		)
		if err := rows.Scan(&l.URL, &l.Title, &l.Company, &l.Location, &l.Source, &skills,
			&l.ScrapedAt, &l.ExpiresAt, &matches); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(skills, &l.Skills); err != nil {
			return nil, fmt.Errorf("decode skills of %q: %w", l.URL, err)
		}
		if err := json.Unmarshal(matches, &l.Matches); err != nil {
			return nil, fmt.Errorf("decode matches of %q: %w", l.URL, err)
		}
		l.ScrapedAt, l.ExpiresAt = l.ScrapedAt.UTC(), l.ExpiresAt.UTC()
		out = append(out, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func jsonArray(items []string) ([]byte, error) {
	if items == nil {
		items = []string{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode string list: %w", err)
	}
	return data, nil
}
