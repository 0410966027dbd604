package cmd

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/ats-screener/internal/batch"
	"github.com/spigell/ats-screener/internal/listings"
	"github.com/spigell/ats-screener/internal/screening"
)

const (
	app       = "ats-screener"
	envPrefix = "ATS_SCREENER"
)

type Config struct {
	Thresholds ThresholdsConfig `mapstructure:"thresholds"`
	Batch      BatchConfig      `mapstructure:"batch"`
	Scoring    ScoringConfig    `mapstructure:"scoring"`
	Store      StoreConfig      `mapstructure:"store"`
	Listings   ListingsConfig   `mapstructure:"listings"`
	Server     ServerConfig     `mapstructure:"server"`
}

type ThresholdsConfig struct {
	ATS     int `mapstructure:"ats" validate:"min=0,max=100"`
	Anomaly int `mapstructure:"anomaly" validate:"min=0,max=100"`
	Match   int `mapstructure:"match" validate:"min=0,max=100"`
}

type BatchConfig struct {
	batch.Config `mapstructure:",squash"`
	ItemTimeout  time.Duration `mapstructure:"item-timeout" validate:"gte=0"`
}

type ScoringConfig struct {
	Provider string        `mapstructure:"provider" validate:"oneof=remote gemini"`
	Remote   *RemoteConfig `mapstructure:"remote"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type RemoteConfig struct {
	URL        string `mapstructure:"url"`
	APIKeyFile string `mapstructure:"api-key-file"`
	MaxRetries int    `mapstructure:"max-retries" validate:"gte=0"`
}

type GeminiConfig struct {
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

type StoreConfig struct {
	Driver          string `mapstructure:"driver" validate:"oneof=memory postgres"`
	DatabaseURLFile string `mapstructure:"database-url-file"`
}

type ListingsConfig struct {
	Driver        string        `mapstructure:"driver" validate:"oneof=memory redis postgres"`
	TTL           time.Duration `mapstructure:"ttl" validate:"gte=0"`
	SweepInterval time.Duration `mapstructure:"sweep-interval" validate:"gte=0"`
	Redis         *RedisConfig  `mapstructure:"redis"`
}

type RedisConfig struct {
	listings.RedisConfig `mapstructure:",squash"`
	PasswordFile         string `mapstructure:"password-file"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:           app,
		Short:         "ats-screener scores candidate submissions against a job posting and decides who moves on",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	validate = validator.New(validator.WithRequiredStructEnabled())
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is ats-screener.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	def := screening.DefaultThresholds()
	v.SetDefault("thresholds.ats", def.ATS)
	v.SetDefault("thresholds.anomaly", def.Anomaly)
	v.SetDefault("thresholds.match", def.Match)

	v.SetDefault("batch.workers", batch.DefaultWorkers)
	v.SetDefault("batch.run-timeout", batch.DefaultRunTimeout)
	v.SetDefault("batch.item-timeout", time.Minute)

	v.SetDefault("scoring.provider", "remote")
	v.SetDefault("scoring.remote.url", "")
	v.SetDefault("scoring.remote.api-key-file", "")
	v.SetDefault("scoring.remote.max-retries", 2)
	v.SetDefault("scoring.gemini.api-key-file", "")
	v.SetDefault("scoring.gemini.model", "")
	v.SetDefault("scoring.gemini.max-log-length", 200)

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.database-url-file", "")

	v.SetDefault("listings.driver", "memory")
	v.SetDefault("listings.ttl", listings.DefaultTTL)
	v.SetDefault("listings.sweep-interval", 10*time.Minute)
	v.SetDefault("listings.redis.addr", "localhost:6379")
	v.SetDefault("listings.redis.password-file", "")
	v.SetDefault("listings.redis.db", 0)

	v.SetDefault("server.addr", ":8080")
}

func initConfig() {
	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// An explicit --config must exist and parse; the default file is optional.
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	return decodeConfig(viper.GetViper())
}

func decodeConfig(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if config.Scoring.Provider == "remote" && (config.Scoring.Remote == nil || strings.TrimSpace(config.Scoring.Remote.URL) == "") {
		return nil, errors.New("invalid config: scoring.remote.url is required for the remote provider")
	}

	return &config, nil
}

// thresholds returns the configured thresholds, or the flag overrides when set.
func (c *Config) thresholds(cmd *cobra.Command) (screening.Thresholds, error) {
	ats, anomaly, match := c.Thresholds.ATS, c.Thresholds.Anomaly, c.Thresholds.Match

	for name, dst := range map[string]*int{"ats": &ats, "anomaly": &anomaly, "match": &match} {
		if f := cmd.Flags().Lookup(name + "-threshold"); f != nil && f.Changed {
			v, err := cmd.Flags().GetInt(name + "-threshold")
			if err != nil {
				return screening.Thresholds{}, err
			}
			*dst = v
		}
	}

	t, err := screening.NewThresholds(ats, anomaly, match)
	if err != nil {
		return screening.Thresholds{}, err
	}

	if f := cmd.Flags().Lookup("thresholds-version"); f != nil && f.Changed {
		version, err := cmd.Flags().GetInt("thresholds-version")
		if err != nil {
			return screening.Thresholds{}, err
		}
		t = t.WithVersion(version)
	}
	return t, nil
}

func addThresholdFlags(cmd *cobra.Command) {
	cmd.Flags().Int("ats-threshold", 0, "minimum ATS score to shortlist (default from config)")
	cmd.Flags().Int("anomaly-threshold", 0, "maximum anomaly weight for a clean shortlist (default from config)")
	cmd.Flags().Int("match-threshold", 0, "minimum match score for a clean shortlist (default from config)")
	cmd.Flags().Int("thresholds-version", 1, "version recorded with decisions taken under these thresholds")
}
