package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/ats-screener/internal/batch"
	"github.com/spigell/ats-screener/internal/logger"
	"github.com/spigell/ats-screener/internal/store"
)

const (
	PromptSave             = "Save results to the submissions file"
	PromptReportByDecision = "Report by decision"
	PromptResultToFile     = "Dump run result to file"
	PromptExit             = "Exit"
)

var errExit = errors.New("exit requested")

var screenCmd = &cobra.Command{
	Use:   "screen",
	Short: "Score pending (or selected) submissions against a job description and classify them",
	Run: func(cmd *cobra.Command, _ []string) {
		screen(cmd)
	},
}

func init() {
	rootCmd.AddCommand(screenCmd)

	screenCmd.Flags().StringP("submissions", "s", "", "JSON file with submissions to import before the run")
	screenCmd.Flags().StringP("job-description", "J", "", "file with the job description text")
	screenCmd.Flags().StringSlice("id", nil, "screen only these submission ids (default: every pending submission)")
	screenCmd.Flags().BoolP("auto-approve", "y", false, "do not ask what to do with the result; save it when a submissions file is given")
	addThresholdFlags(screenCmd)

	screenCmd.MarkFlagRequired("job-description")
}

func newLogger() *zap.Logger {
	l, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	return l
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func screen(cmd *cobra.Command) {
	ctx, stop := signalContext()
	defer stop()

	logger := newLogger()
	defer logger.Sync()

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the ats-screener", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	thresholds, err := config.thresholds(cmd)
	if err != nil {
		logger.Fatal("resolving thresholds", zap.Error(err))
	}

	jdFile, _ := cmd.Flags().GetString("job-description")
	jd, err := os.ReadFile(jdFile)
	if err != nil {
		logger.Fatal("reading the job description", zap.Error(err))
	}

	submissionsFile, _ := cmd.Flags().GetString("submissions")
	st, err := newSubmissionStore(ctx, config, submissionsFile, logger)
	if err != nil {
		logger.Fatal("opening the submission store", zap.Error(err))
	}
	defer st.Close()

	orchestrator, err := newOrchestrator(ctx, config, st, logger)
	if err != nil {
		logger.Fatal("preparing the orchestrator", zap.Error(err))
	}

	ids, _ := cmd.Flags().GetStringSlice("id")
	result, err := orchestrator.Run(ctx, batch.RunRequest{
		JobDescription: strings.TrimSpace(string(jd)),
		SubmissionIDs:  ids,
		Thresholds:     thresholds,
	})
	if err != nil {
		logger.Fatal("screening run failed", zap.Error(err))
	}

	if result.Total == 0 {
		logger.Info("exiting", zap.String("reason", "no submissions to screen"))
		return
	}

	autoApprove, _ := cmd.Flags().GetBool("auto-approve")
	if autoApprove {
		if err := handleAction(ctx, PromptSave, st, submissionsFile, result, logger); err != nil {
			logger.Fatal("saving results", zap.Error(err))
		}
		return
	}

	items := []string{PromptReportByDecision, PromptResultToFile, PromptExit}
	if submissionsFile != "" {
		items = append([]string{PromptSave}, items...)
	}
	prompt := promptui.Select{
		Label: fmt.Sprintf("Screened %d submissions (%d failed). What next?", result.Total, result.Failed),
		Items: items,
	}

	for {
		_, action, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		if err := handleAction(ctx, action, st, submissionsFile, result, logger); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}
	}
}

func handleAction(ctx context.Context, action string, st store.Store, submissionsFile string, result *batch.RunResult, logger *zap.Logger) error {
	switch action {
	case PromptSave:
		if submissionsFile == "" {
			logger.Info("nothing to save", zap.String("reason", "no submissions file given"))
			return nil
		}
		return saveSubmissions(ctx, st, submissionsFile, logger)
	case PromptReportByDecision:
		pretty, _ := json.MarshalIndent(result.ReportByDecision(), "", "  ")
		logger.Info(string(pretty), zap.Int("submissions count", result.Total))
		return nil
	case PromptResultToFile:
		filename, err := result.DumpToTmpFile()
		if err != nil {
			return fmt.Errorf("dump results to file: %w", err)
		}
		logger.Info("dumping result to file", zap.String("filename", filename))
		return nil
	case PromptExit:
		logger.Info("exiting", zap.String("reason", "got exit from prompt"))
		return errExit
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

// saveSubmissions writes every submission in the store back to path.
func saveSubmissions(ctx context.Context, st store.Store, path string, logger *zap.Logger) error {
	pending, err := st.Pending(ctx)
	if err != nil {
		return err
	}
	scored, err := st.Scored(ctx)
	if err != nil {
		return err
	}

	all := append(pending, scored...)
	if err := store.SaveFile(path, all); err != nil {
		return err
	}

	logger.Info("submissions saved", zap.String("filename", path), zap.Int("count", len(all)))
	return nil
}
