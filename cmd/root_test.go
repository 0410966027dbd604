package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T, yaml string) *viper.Viper {
	t.Helper()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if yaml != "" {
		path := filepath.Join(t.TempDir(), "ats-screener.yaml")
		require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
		v.SetConfigFile(path)
		require.NoError(t, v.ReadInConfig())
	}
	return v
}

func TestDecodeConfigDefaults(t *testing.T) {
	config, err := decodeConfig(newViper(t, "scoring:\n  remote:\n    url: http://scoring.local\n"))
	require.NoError(t, err)

	assert.Equal(t, 60, config.Thresholds.ATS)
	assert.Equal(t, 30, config.Thresholds.Anomaly)
	assert.Equal(t, 50, config.Thresholds.Match)
	assert.Equal(t, 4, config.Batch.Workers)
	assert.Equal(t, 5*time.Minute, config.Batch.RunTimeout)
	assert.Equal(t, time.Minute, config.Batch.ItemTimeout)
	assert.Equal(t, "remote", config.Scoring.Provider)
	assert.Equal(t, 2, config.Scoring.Remote.MaxRetries)
	assert.Equal(t, "memory", config.Store.Driver)
	assert.Equal(t, 24*time.Hour, config.Listings.TTL)
	assert.Equal(t, "localhost:6379", config.Listings.Redis.Addr)
	assert.Equal(t, ":8080", config.Server.Addr)
}

func TestDecodeConfigFileAndEnv(t *testing.T) {
	t.Setenv("ATS_SCREENER_THRESHOLDS_MATCH", "70")
	t.Setenv("ATS_SCREENER_BATCH_RUN_TIMEOUT", "90s")

	config, err := decodeConfig(newViper(t, `
thresholds:
  ats: 75
batch:
  workers: 8
scoring:
  provider: gemini
  gemini:
    model: gemini-2.5-pro
listings:
  driver: redis
  ttl: 12h
  redis:
    addr: redis:6379
    db: 2
`))
	require.NoError(t, err)

	assert.Equal(t, 75, config.Thresholds.ATS)
	assert.Equal(t, 70, config.Thresholds.Match)
	assert.Equal(t, 8, config.Batch.Workers)
	assert.Equal(t, 90*time.Second, config.Batch.RunTimeout)
	assert.Equal(t, "gemini-2.5-pro", config.Scoring.Gemini.Model)
	assert.Equal(t, 12*time.Hour, config.Listings.TTL)
	assert.Equal(t, "redis:6379", config.Listings.Redis.Addr)
	assert.Equal(t, 2, config.Listings.Redis.DB)
}

func TestDecodeConfigRejects(t *testing.T) {
	cases := map[string]string{
		"threshold out of range": "thresholds:\n  ats: 120\nscoring:\n  remote:\n    url: http://x\n",
		"unknown provider":       "scoring:\n  provider: openai\n",
		"remote without url":     "scoring:\n  provider: remote\n",
		"unknown store":          "store:\n  driver: sqlite\nscoring:\n  remote:\n    url: http://x\n",
		"unknown listings":       "listings:\n  driver: mongo\nscoring:\n  remote:\n    url: http://x\n",
	}

	for name, yaml := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := decodeConfig(newViper(t, yaml))
			assert.Error(t, err)
		})
	}
}

func TestThresholdFlagsOverrideConfig(t *testing.T) {
	config := &Config{Thresholds: ThresholdsConfig{ATS: 60, Anomaly: 30, Match: 50}}

	cmd := &cobra.Command{Use: "test"}
	addThresholdFlags(cmd)
	require.NoError(t, cmd.Flags().Parse([]string{"--ats-threshold=80", "--thresholds-version=3"}))

	th, err := config.thresholds(cmd)
	require.NoError(t, err)
	assert.Equal(t, 80, th.ATS)
	assert.Equal(t, 30, th.Anomaly)
	assert.Equal(t, 50, th.Match)
	assert.Equal(t, 3, th.Version)

	require.NoError(t, cmd.Flags().Parse([]string{"--match-threshold=101"}))
	_, err = config.thresholds(cmd)
	assert.Error(t, err)
}
