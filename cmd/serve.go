package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/ats-screener/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the screening API over HTTP",
	Run: func(cmd *cobra.Command, _ []string) {
		serve(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("submissions", "s", "", "JSON file with submissions to import on start")
	serveCmd.Flags().String("addr", "", "listen address (default from server.addr)")
	addThresholdFlags(serveCmd)
}

func serve(cmd *cobra.Command) {
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

	orchestrator, err := newOrchestrator(ctx, config, st, logger)
	if err != nil {
		logger.Fatal("preparing the orchestrator", zap.Error(err))
	}

	cache, err := newListingStore(ctx, config, logger)
	if err != nil {
		logger.Fatal("opening the listing cache", zap.Error(err))
	}
	defer cache.Close()

	go runSweeper(ctx, cache, config.Listings.SweepInterval, logger)

	addr := config.Server.Addr
	if flagAddr, _ := cmd.Flags().GetString("addr"); flagAddr != "" {
		addr = flagAddr
	}

	srv := server.New(server.Config{Addr: addr, Thresholds: thresholds}, orchestrator, cache, logger)
	if err := srv.Listen(ctx); err != nil {
		logger.Error("http server stopped", zap.Error(err))
	}
}
