package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/ats-screener/internal/batch"
	"github.com/spigell/ats-screener/internal/screening"
)

var overrideCmd = &cobra.Command{
	Use:   "override SUBMISSION_ID STATUS",
	Short: "Record a human decision on a submission",
	Long: `Record a human decision on a submission. STATUS is one of SHORTLISTED,
SHORTLISTED_WITH_FLAG, NEEDS_REVIEW or REJECTED. An override older than the
one already in effect is refused.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		override(cmd, args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(overrideCmd)

	overrideCmd.Flags().StringP("submissions", "s", "", "JSON file with submissions; updated in place")
	overrideCmd.Flags().StringP("actor", "a", "", "who takes the decision")
	overrideCmd.Flags().StringP("reason", "r", "", "why the automated decision is overridden")
	overrideCmd.Flags().String("at", "", "decision time in RFC3339 (default: now)")

	overrideCmd.MarkFlagRequired("actor")
}

func override(cmd *cobra.Command, submissionID, rawStatus string) {
	ctx, stop := signalContext()
	defer stop()

	logger := newLogger()
	defer logger.Sync()

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	status, err := screening.ParseStatus(rawStatus)
	if err != nil {
		logger.Fatal("parsing the status", zap.Error(err))
	}

	var at time.Time
	if raw, _ := cmd.Flags().GetString("at"); raw != "" {
		if at, err = time.Parse(time.RFC3339, raw); err != nil {
			logger.Fatal("parsing --at", zap.Error(err))
		}
	}

	submissionsFile, _ := cmd.Flags().GetString("submissions")
	st, err := newSubmissionStore(ctx, config, submissionsFile, logger)
	if err != nil {
		logger.Fatal("opening the submission store", zap.Error(err))
	}
	defer st.Close()

	actor, _ := cmd.Flags().GetString("actor")
	reason, _ := cmd.Flags().GetString("reason")

	orchestrator := batch.New(st, nil, config.Batch.Config, logger)
	updated, err := orchestrator.Override(ctx, batch.OverrideRequest{
		SubmissionID: submissionID,
		Status:       status,
		Actor:        actor,
		Reason:       reason,
		At:           at,
	})
	if err != nil {
		logger.Fatal("override refused", zap.Error(err))
	}

	logger.Info("current decision",
		zap.String("submission_id", updated.ID),
		zap.String("status", string(updated.Decision.Status)),
		zap.String("automated", string(updated.Decision.Automated)),
	)

	if submissionsFile != "" {
		if err := saveSubmissions(ctx, st, submissionsFile, logger); err != nil {
			logger.Fatal("saving results", zap.Error(err))
		}
	}
}
