package cmd

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/talent-radar/internal/matching"
)

var matchCmd = &cobra.Command{
	Use:   "match <candidate-id>",
	Short: "Show the ranked job matches of one candidate",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		match(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().Float64("threshold", 0, "minimum cosine similarity (default from server.query)")
	matchCmd.Flags().Int("k", 0, "maximum number of matches (default from server.query)")
	matchCmd.Flags().BoolP("report", "r", false, "print matched jobs grouped by company")
	matchCmd.Flags().BoolP("do-not-exclude-applied", "f", false, "do not exclude jobs the candidate already applied to")
}

func match(cmd *cobra.Command, candidateID string) {
	ctx := context.Background()

	logger, config := setup()

	q := config.Server.Query
	if cmd.Flags().Changed("threshold") {
		q.Threshold, _ = cmd.Flags().GetFloat64("threshold")
	}
	if cmd.Flags().Changed("k") {
		q.K, _ = cmd.Flags().GetInt("k")
	}

	skipApplied, _ := cmd.Flags().GetBool("do-not-exclude-applied")
	eng, err := newEngine(ctx, config, logger, !skipApplied)
	if err != nil {
		logger.Fatal("preparing the engine", zap.Error(err))
	}
	defer eng.Close()

	res, err := eng.matcher.FindMatches(ctx, candidateID, q)
	if errors.Is(err, matching.ErrProfileIncomplete) {
		logger.Info("exiting",
			zap.String("reason", matching.ErrProfileIncomplete.Error()),
			zap.String("hint", "ingest the candidate profile first"),
		)
		return
	}
	if err != nil {
		logger.Fatal("finding matches", zap.Error(err))
	}

	if res.Len() == 0 {
		logger.Info("exiting", zap.String("reason", "no jobs above the threshold"))
		return
	}

	for _, m := range res.Matches {
		title := m.JobID
		if job := res.Jobs.FindByID(m.JobID); job != nil {
			title = job.Title
		}
		logger.Info(m.Explain(), zap.String("job_id", m.JobID), zap.String("title", title))
	}

	if report, _ := cmd.Flags().GetBool("report"); report {
		pretty, _ := json.MarshalIndent(res.Jobs.ReportByCompany(), "", "  ")
		logger.Info(string(pretty), zap.Int("jobs count", res.Jobs.Len()))
	}
}
