package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/talent-radar/internal/jobs"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Store and embed job postings and candidate profiles from JSON files",
	Run: func(cmd *cobra.Command, _ []string) {
		ingestFiles(cmd)
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().String("jobs", "", "a JSON file with job postings")
	ingestCmd.Flags().String("candidates", "", "a JSON file with candidate profiles")
	ingestCmd.Flags().Bool("expire-only", false, "only drop the vectors of expired postings")
}

func ingestFiles(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, config := setup()

	jobsFile, _ := cmd.Flags().GetString("jobs")
	candidatesFile, _ := cmd.Flags().GetString("candidates")
	expireOnly, _ := cmd.Flags().GetBool("expire-only")

	if !expireOnly && jobsFile == "" && candidatesFile == "" {
		logger.Fatal("nothing to ingest", zap.String("hint", "pass --jobs and/or --candidates"))
	}

	eng, err := newEngine(ctx, config, logger, true)
	if err != nil {
		logger.Fatal("preparing the engine", zap.Error(err))
	}
	defer eng.Close()

	if expireOnly {
		// No embedder is needed to expire postings.
		expired, err := eng.store.ExpireJobs(ctx, time.Now().UTC())
		if err != nil {
			logger.Fatal("expiring jobs", zap.Error(err))
		}
		logger.Info("jobs expired", zap.Strings("ids", expired))
		return
	}

	svc, err := eng.newIngester(ctx)
	if err != nil {
		logger.Fatal("preparing the ingester", zap.Error(err))
	}

	if jobsFile != "" {
		list, err := jobs.LoadJobs(jobsFile)
		if err != nil {
			logger.Fatal("loading jobs", zap.Error(err))
		}
		summary, err := svc.Jobs(ctx, list)
		if err != nil {
			logger.Fatal("ingesting jobs", zap.Error(err))
		}
		if len(summary.Failed) > 0 {
			logger.Warn("some jobs were not indexed", zap.Strings("ids", summary.Failed))
		}
	}

	if candidatesFile != "" {
		list, err := jobs.LoadCandidates(candidatesFile)
		if err != nil {
			logger.Fatal("loading candidates", zap.Error(err))
		}
		summary, err := svc.Candidates(ctx, list)
		if err != nil {
			logger.Fatal("ingesting candidates", zap.Error(err))
		}
		if len(summary.Skipped) > 0 {
			logger.Warn("candidates without profile text", zap.Strings("ids", summary.Skipped))
		}
	}
}
