package listings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spigell/ats-screener/internal/logger"
)

const (
	keyPrefix      = "ats-screener:listing:"
	maxTxAttempts  = 10
	redisPingLimit = 2 * time.Second
	scanBatch      = 100
)

// RedisConfig locates the Redis server.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"required"`
	Password string `mapstructure:"-" json:"-"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

// Redis keeps one JSON document per URL. Keys expire at the listing's
// ExpiresAt, so Redis reclaims stale entries on its own.
type Redis struct {
	settings
	client *redis.Client
	logger *zap.Logger
}

func NewRedis(ctx context.Context, cfg RedisConfig, log *zap.Logger, opts ...Option) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(cfg.Addr),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingLimit)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis unavailable at %s: %w", cfg.Addr, err)
	}

	return NewRedisWithClient(client, log, opts...), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, log *zap.Logger, opts ...Option) *Redis {
	return &Redis{
		settings: newSettings(opts),
		client:   client,
		logger:   logger.OrNop(log),
	}
}

func key(url string) string {
	return keyPrefix + url
}

func (r *Redis) Upsert(ctx context.Context, l Listing) (*Listing, error) {
	l, err := Normalize(l, r.ttl, r.clock())
	if err != nil {
		return nil, err
	}

	return r.update(ctx, l.URL, func(existing *Listing) (*Listing, error) {
		return merge(existing, l), nil
	})
}

func (r *Redis) RecordMatch(ctx context.Context, url string, m Match) (*Listing, error) {
	url = strings.TrimSpace(url)
	if err := normalizeMatch(&m, r.clock()); err != nil {
		return nil, err
	}

	return r.update(ctx, url, func(existing *Listing) (*Listing, error) {
		if existing == nil {
			return nil, fmt.Errorf("listing %q: %w", url, ErrNotFound)
		}
		existing.recordMatch(m)
		return existing, nil
	})
}

// update runs an optimistic read-modify-write on one key, retrying when a
// concurrent writer touched it between WATCH and EXEC.
func (r *Redis) update(ctx context.Context, url string, fn func(existing *Listing) (*Listing, error)) (*Listing, error) {
	k := key(url)
	var result *Listing

	txf := func(tx *redis.Tx) error {
		existing, err := r.get(ctx, tx, k)
		if err != nil {
			return err
		}

		next, err := fn(existing)
		if err != nil {
			return err
		}

		data, err := json.Marshal(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, data, 0)
			pipe.PExpireAt(ctx, k, next.ExpiresAt)
			return nil
		})
		if err != nil {
			return err
		}

		result = next
		return nil
	}

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := r.client.Watch(ctx, txf, k)
		if err == nil {
			return result.Clone(), nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			r.logger.Debug("listing changed concurrently, retrying",
				zap.String(logger.FieldListingURL, url),
				zap.Int("attempt", attempt+1),
			)
			continue
		}
		return nil, err
	}

	return nil, fmt.Errorf("listing %q: too many concurrent writers", url)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// get returns nil for a missing or expired entry.
func (r *Redis) get(ctx context.Context, c getter, k string) (*Listing, error) {
	data, err := c.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var l Listing
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("decode %s: %w", k, err)
	}
	if !l.Active(r.clock()) {
		return nil, nil
	}
	return &l, nil
}

func (r *Redis) QueryActive(ctx context.Context, filters ...Filter) ([]*Listing, error) {
	var out []*Listing

	iter := r.client.Scan(ctx, 0, keyPrefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		l, err := r.get(ctx, r.client, iter.Val())
		if err != nil {
			r.logger.Warn("skipping unreadable listing", zap.String("key", iter.Val()), zap.Error(err))
			continue
		}
		if l != nil {
			out = append(out, l)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	sortListings(out)
	return Apply(r.logger, out, filters...), nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
