package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/talent-radar/internal/utils"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Recompute company hiring signals",
	Run: func(cmd *cobra.Command, _ []string) {
		refresh(cmd)
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)

	refreshCmd.Flags().String("as-of", "", "compute as of this instant (RFC3339 or 2006-01-02, default is now)")
}

func refresh(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, config := setup()

	var asOf time.Time
	if raw, _ := cmd.Flags().GetString("as-of"); raw != "" {
		t, err := utils.ParseInstant(raw)
		if err != nil {
			logger.Fatal("parsing as-of", zap.Error(err))
		}
		asOf = t
	}

	eng, err := newEngine(ctx, config, logger, true)
	if err != nil {
		logger.Fatal("preparing the engine", zap.Error(err))
	}
	defer eng.Close()

	summary, err := eng.signals.Refresh(ctx, asOf)
	if err != nil {
		// The previously published snapshots stay in place.
		logger.Fatal("refreshing signals", zap.Error(err))
	}

	logger.Info("signals refreshed",
		zap.Time("as_of", summary.AsOf),
		zap.Int("companies", summary.Companies),
		zap.Int("aggressive", summary.Aggressive),
		zap.Int("cooling", summary.Cooling),
		zap.Int("stable", summary.Stable),
		zap.Strings("rejected", summary.Rejected),
	)
}
