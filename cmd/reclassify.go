package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/ats-screener/internal/batch"
)

var reclassifyCmd = &cobra.Command{
	Use:   "reclassify",
	Short: "Re-apply thresholds to already scored submissions without calling the scoring service",
	Run: func(cmd *cobra.Command, _ []string) {
		reclassify(cmd)
	},
}

func init() {
	rootCmd.AddCommand(reclassifyCmd)

	reclassifyCmd.Flags().StringP("submissions", "s", "", "JSON file with submissions; updated in place after the pass")
	reclassifyCmd.Flags().StringSlice("id", nil, "reclassify only these submission ids (default: every scored submission)")
	addThresholdFlags(reclassifyCmd)
}

func reclassify(cmd *cobra.Command) {
	ctx, stop := signalContext()
	defer stop()

	logger := newLogger()
	defer logger.Sync()

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	thresholds, err := config.thresholds(cmd)
	if err != nil {
		logger.Fatal("resolving thresholds", zap.Error(err))
	}

	submissionsFile, _ := cmd.Flags().GetString("submissions")
	st, err := newSubmissionStore(ctx, config, submissionsFile, logger)
	if err != nil {
		logger.Fatal("opening the submission store", zap.Error(err))
	}
	defer st.Close()

	// Reclassification never calls the scoring service, so no client is built.
	orchestrator := batch.New(st, nil, config.Batch.Config, logger)

	ids, _ := cmd.Flags().GetStringSlice("id")
	result, err := orchestrator.Reclassify(ctx, batch.ReclassifyRequest{SubmissionIDs: ids, Thresholds: thresholds})
	if err != nil {
		logger.Fatal("reclassification failed", zap.Error(err))
	}

	pretty, _ := json.MarshalIndent(result.ReportByDecision(), "", "  ")
	logger.Info(string(pretty), zap.Int("successful", result.Successful), zap.Int("failed", result.Failed))

	if submissionsFile != "" {
		if err := saveSubmissions(ctx, st, submissionsFile, logger); err != nil {
			logger.Fatal("saving results", zap.Error(err))
		}
	}
}
