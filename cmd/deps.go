package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/ats-screener/internal/batch"
	"github.com/spigell/ats-screener/internal/listings"
	"github.com/spigell/ats-screener/internal/scoring"
	"github.com/spigell/ats-screener/internal/scoring/gemini"
	"github.com/spigell/ats-screener/internal/scoring/remote"
	"github.com/spigell/ats-screener/internal/secrets"
	"github.com/spigell/ats-screener/internal/store"
)

const (
	envScoringAPIKey = "ATS_SCREENER_SCORING_API_KEY"
	envGeminiAPIKey  = "GEMINI_API_KEY"
	envDatabaseURL   = "DATABASE_URL"
	envRedisPassword = "ATS_SCREENER_REDIS_PASSWORD"
)

// newSubmissionStore opens the configured submission store and imports
// submissionsFile into it when given.
func newSubmissionStore(ctx context.Context, config *Config, submissionsFile string, logger *zap.Logger) (store.Store, error) {
	var (
		st  store.Store
		err error
	)

	switch config.Store.Driver {
	case "postgres":
		dsn, lerr := databaseURL(config.Store.DatabaseURLFile)
		if lerr != nil {
			return nil, lerr
		}
		st, err = store.ConnectPostgres(ctx, dsn)
	default:
		st = store.NewMemory()
	}
	if err != nil {
		return nil, err
	}

	if submissionsFile = strings.TrimSpace(submissionsFile); submissionsFile != "" {
		subs, err := store.LoadFile(submissionsFile)
		if err != nil {
			st.Close()
			return nil, err
		}
		if err := st.Put(ctx, subs...); err != nil {
			st.Close()
			return nil, fmt.Errorf("importing submissions: %w", err)
		}
		logger.Info("submissions imported", zap.String("file", submissionsFile), zap.Int("count", len(subs)))
	}

	return st, nil
}

func databaseURL(file string) (string, error) {
	return secrets.Load(secrets.Source{
		Name: "database url",
		File: file,
		Env:  envDatabaseURL,
	})
}

func newScoringClient(ctx context.Context, config *Config, logger *zap.Logger) (scoring.Client, error) {
	provider := strings.ToLower(strings.TrimSpace(config.Scoring.Provider))

	switch provider {
	case "gemini":
		cfg := config.Scoring.Gemini
		if cfg == nil {
			cfg = &GeminiConfig{}
		}

		apiKey, err := secrets.Load(secrets.Source{
			Name: "gemini api key",
			File: cfg.APIKeyFile,
			Env:  envGeminiAPIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set scoring.gemini.api-key-file or %s)", err, envGeminiAPIKey)
		}

		generator, err := gemini.NewGenerator(ctx, apiKey, cfg.Model)
		if err != nil {
			return nil, err
		}

		return gemini.NewScorer(generator, logger.With(
			zap.String("provider", "gemini"),
			zap.String("model", generator.Model()),
		), cfg.MaxLogLength), nil

	case "remote", "":
		cfg := config.Scoring.Remote
		opts := []remote.Option{remote.WithMaxRetries(cfg.MaxRetries)}

		if strings.TrimSpace(cfg.APIKeyFile) != "" || os.Getenv(envScoringAPIKey) != "" {
			token, err := secrets.Load(secrets.Source{
				Name: "scoring api key",
				File: cfg.APIKeyFile,
				Env:  envScoringAPIKey,
			})
			if err != nil {
				return nil, err
			}
			opts = append(opts, remote.WithToken(token))
		}

		return remote.New(cfg.URL, logger.With(zap.String("provider", "remote")), opts...)

	default:
		return nil, fmt.Errorf("unsupported scoring provider: %s", config.Scoring.Provider)
	}
}

func newOrchestrator(ctx context.Context, config *Config, st store.Store, logger *zap.Logger) (*batch.Orchestrator, error) {
	client, err := newScoringClient(ctx, config, logger)
	if err != nil {
		return nil, fmt.Errorf("building scoring client: %w", err)
	}

	gateway := scoring.NewGateway(client, config.Batch.ItemTimeout, logger)
	return batch.New(st, gateway, config.Batch.Config, logger), nil
}

func newListingStore(ctx context.Context, config *Config, logger *zap.Logger) (listings.Store, error) {
	opts := []listings.Option{listings.WithTTL(config.Listings.TTL)}

	switch config.Listings.Driver {
	case "redis":
		cfg := config.Listings.Redis
		if cfg == nil {
			return nil, fmt.Errorf("listings.redis is required for the redis driver")
		}

		redisCfg := cfg.RedisConfig
		if strings.TrimSpace(cfg.PasswordFile) != "" || os.Getenv(envRedisPassword) != "" {
			password, err := secrets.Load(secrets.Source{
				Name: "redis password",
				File: cfg.PasswordFile,
				Env:  envRedisPassword,
			})
			if err != nil {
				return nil, err
			}
			redisCfg.Password = password
		}
		return listings.NewRedis(ctx, redisCfg, logger, opts...)

	case "postgres":
		dsn, err := databaseURL(config.Store.DatabaseURLFile)
		if err != nil {
			return nil, err
		}
		return listings.ConnectPostgres(ctx, dsn, logger, opts...)

	default:
		return listings.NewMemory(logger, opts...), nil
	}
}

// runSweeper reclaims expired listings until ctx is done. Redis expires keys
// on its own, so there is nothing to do for it.
func runSweeper(ctx context.Context, cache listings.Store, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		return
	}

	switch c := cache.(type) {
	case *listings.Memory:
		c.RunSweeper(ctx, interval)
	case *listings.Postgres:
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				n, err := c.DeleteExpired(ctx, now)
				if err != nil {
					logger.Warn("deleting expired listings", zap.Error(err))
					continue
				}
				if n > 0 {
					logger.Debug("expired listings removed", zap.Int64("count", n))
				}
			}
		}
	}
}
