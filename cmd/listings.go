package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/ats-screener/internal/listings"
)

var listingsCmd = &cobra.Command{
	Use:   "listings",
	Short: "Manage the cache of external job listings",
}

var listingsIngestCmd = &cobra.Command{
	Use:   "ingest FILE",
	Short: "Upsert scraped listings from a JSON array file",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		ingestListings(args[0])
	},
}

var listingsQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Print the listings that have not expired",
	Run: func(cmd *cobra.Command, _ []string) {
		queryListings(cmd)
	},
}

var listingsMatchCmd = &cobra.Command{
	Use:   "match URL SUBMISSION_ID",
	Short: "Match a submission's skills against a cached listing and store the result",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		matchListing(cmd, args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(listingsCmd)
	listingsCmd.AddCommand(listingsIngestCmd, listingsQueryCmd, listingsMatchCmd)

	listingsQueryCmd.Flags().Int("min-score", -1, "keep listings with a match score at or above this value")
	listingsQueryCmd.Flags().String("submission-id", "", "keep listings matched against this submission")
	listingsQueryCmd.Flags().String("source", "", "keep listings scraped from this source")

	listingsMatchCmd.Flags().StringP("submissions", "s", "", "JSON file with submissions to import before matching")
}

func ingestListings(path string) {
	ctx, stop := signalContext()
	defer stop()

	logger := newLogger()
	defer logger.Sync()

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Fatal("reading listings", zap.Error(err))
	}

	var items []listings.Listing
	if err := json.Unmarshal(data, &items); err != nil {
		logger.Fatal("decoding listings", zap.String("file", path), zap.Error(err))
	}

	cache, err := newListingStore(ctx, config, logger)
	if err != nil {
		logger.Fatal("opening the listing cache", zap.Error(err))
	}
	defer cache.Close()

	failed := 0
	for _, l := range items {
		if _, err := cache.Upsert(ctx, l); err != nil {
			failed++
			logger.Warn("listing skipped", zap.String("listing_url", l.URL), zap.Error(err))
		}
	}

	logger.Info("listings ingested", zap.Int("count", len(items)-failed), zap.Int("skipped", failed))
}

func queryListings(cmd *cobra.Command) {
	ctx, stop := signalContext()
	defer stop()

	logger := newLogger()
	defer logger.Sync()

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	cache, err := newListingStore(ctx, config, logger)
	if err != nil {
		logger.Fatal("opening the listing cache", zap.Error(err))
	}
	defer cache.Close()

	minScore, _ := cmd.Flags().GetInt("min-score")
	submissionID, _ := cmd.Flags().GetString("submission-id")
	source, _ := cmd.Flags().GetString("source")

	var filters []listings.Filter
	switch {
	case submissionID != "" && minScore >= 0:
		filters = append(filters, listings.SubmissionMinScore(submissionID, minScore))
	case submissionID != "":
		filters = append(filters, listings.ForSubmission(submissionID))
	case minScore >= 0:
		filters = append(filters, listings.MinMatchScore(minScore))
	}
	if source != "" {
		filters = append(filters, listings.FromSource(source))
	}

	found, err := cache.QueryActive(ctx, filters...)
	if err != nil {
		logger.Fatal("querying listings", zap.Error(err))
	}

	pretty, _ := json.MarshalIndent(found, "", "  ")
	fmt.Println(string(pretty))
}

func matchListing(cmd *cobra.Command, url, submissionID string) {
	ctx, stop := signalContext()
	defer stop()

	logger := newLogger()
	defer logger.Sync()

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	submissionsFile, _ := cmd.Flags().GetString("submissions")
	st, err := newSubmissionStore(ctx, config, submissionsFile, logger)
	if err != nil {
		logger.Fatal("opening the submission store", zap.Error(err))
	}
	defer st.Close()

	sub, err := st.Get(ctx, submissionID)
	if err != nil {
		logger.Fatal("loading the submission", zap.Error(err))
	}

	cache, err := newListingStore(ctx, config, logger)
	if err != nil {
		logger.Fatal("opening the listing cache", zap.Error(err))
	}
	defer cache.Close()

	_, match, err := listings.MatchCandidate(ctx, cache, url,
		listings.Candidate{SubmissionID: sub.ID, Skills: sub.Skills}, time.Now())
	if err != nil {
		logger.Fatal("matching the listing", zap.String("listing_url", url), zap.Error(err))
	}

	logger.Info("listing matched",
		zap.String("listing_url", url),
		zap.String("submission_id", sub.ID),
		zap.Int("match_score", match.MatchScore),
		zap.Strings("missing_skills", match.MissingSkills),
	)
}
