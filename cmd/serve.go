package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/talent-radar/internal/api"
	"github.com/spigell/talent-radar/internal/vectorindex"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve on-demand matches and run triggers over HTTP",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, config := setup()
	logger.Info("starting the server", zap.String("version", version))

	eng, err := newEngine(ctx, config, logger, true)
	if err != nil {
		logger.Fatal("preparing the engine", zap.Error(err))
	}
	defer eng.Close()

	digest, err := eng.newDispatcher()
	if err != nil {
		logger.Fatal("preparing the dispatcher", zap.Error(err))
	}

	server, err := api.New(config.Server.Config, api.Deps{
		Matcher:       eng.matcher,
		Board:         eng.signals.Board(),
		Digest:        digest,
		Signals:       eng.signals,
		Notifications: eng.store,
		Health:        eng.store,
		Logger:        logger.Named("http"),
	})
	if err != nil {
		logger.Fatal("preparing the http server", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vectorindex.Maintain(gctx, eng.index, config.Server.CompactInterval, config.Index.CompactRatio, logger.Named("index"))
		return nil
	})
	g.Go(func() error {
		refreshLoop(gctx, eng, config.Server.RefreshInterval, logger.Named("signals"))
		return nil
	})
	g.Go(func() error {
		return server.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
	logger.Info("server stopped")
}

// refreshLoop recomputes signals and re-syncs the index every interval. A failed
// refresh keeps the previous snapshots and is retried on the next tick.
func refreshLoop(ctx context.Context, eng *engine, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := eng.signals.Refresh(ctx, time.Time{}); err != nil {
				logger.Error("periodic refresh failed", zap.Error(err))
			}

			res, err := eng.syncIndex(ctx, time.Now().UTC())
			if err != nil {
				logger.Error("index sync failed", zap.Error(err))
				continue
			}
			if len(res.Upserted)+len(res.Removed) > 0 {
				logger.Info("index synced",
					zap.Int("upserted", len(res.Upserted)),
					zap.Int("removed", len(res.Removed)),
					zap.Int("skipped", len(res.Skipped)),
				)
			}
		}
	}
}
