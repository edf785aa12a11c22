package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/talent-radar/internal/dispatcher"
)

const (
	PromptYes            = "Yes"
	PromptNo             = "No"
	PromptListCandidates = "List candidates"
)

var prompt = promptui.Select{
	Label: "Send the digest?",
	Items: []string{PromptYes, PromptNo, PromptListCandidates},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daily digest for every candidate with an embedding",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("date", "t", "", "run date as 2006-01-02 (default is today, UTC)")
	runCmd.Flags().BoolP("auto-approve", "y", false, "do not ask for confirmation before sending")
	runCmd.Flags().BoolP("do-not-exclude-applied", "f", false, "do not exclude jobs the candidate already applied to")
	runCmd.Flags().String("sink", "", "where notifications go: store or log (default from config)")
}

// run is the digest entry point for an external scheduler. Re-running the same
// date notifies nobody twice.
func run(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, config := setup()
	logger.Info("starting the digest", zap.String("version", version))

	var runDate time.Time
	if raw, _ := cmd.Flags().GetString("date"); raw != "" {
		d, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			logger.Fatal("parsing the run date", zap.String("date", raw), zap.Error(err))
		}
		runDate = d
	}
	if sink, _ := cmd.Flags().GetString("sink"); sink != "" {
		config.Notify.Sink = sink
	}

	skipApplied, _ := cmd.Flags().GetBool("do-not-exclude-applied")
	eng, err := newEngine(ctx, config, logger, !skipApplied)
	if err != nil {
		logger.Fatal("preparing the engine", zap.Error(err))
	}
	defer eng.Close()

	candidates, err := eng.store.CandidatesWithEmbedding(ctx)
	if err != nil {
		logger.Fatal("listing candidates", zap.Error(err))
	}
	if len(candidates) == 0 {
		logger.Info("exiting", zap.String("reason", "no candidates with an embedding"))
		return
	}
	logger.Info("candidates ready for the digest", zap.Int("count", len(candidates)))

	if approve, _ := cmd.Flags().GetBool("auto-approve"); !approve {
		if !confirm(logger, candidates) {
			logger.Info("exiting", zap.String("reason", "got no from prompt"))
			return
		}
	}

	d, err := eng.newDispatcher()
	if err != nil {
		logger.Fatal("preparing the dispatcher", zap.Error(err))
	}

	summary, err := d.Run(ctx, runDate)
	if err != nil {
		logger.Fatal("running the digest", zap.Error(err))
	}

	report(logger, summary)
}

// confirm asks until the answer is yes or no.
func confirm(logger *zap.Logger, candidates []string) bool {
	for {
		_, action, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		switch action {
		case PromptYes:
			return true
		case PromptNo:
			return false
		case PromptListCandidates:
			pretty, _ := json.MarshalIndent(candidates, "", "  ")
			logger.Info(string(pretty), zap.Int("candidates count", len(candidates)))
		}
	}
}

func report(logger *zap.Logger, summary *dispatcher.Summary) {
	for _, out := range summary.Outcomes {
		if out.State == dispatcher.StateFailed {
			logger.Warn("candidate failed",
				zap.String("candidate_id", out.CandidateID),
				zap.String("error_kind", string(out.ErrorKind)),
				zap.String("error", out.Error),
			)
		}
	}

	logger.Info(fmt.Sprintf("digest %s finished", summary.RunDate),
		zap.String("run_id", summary.RunID),
		zap.Int("processed", summary.Processed),
		zap.Int("notified", summary.Notified),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	)
}
