package main

import (
	"context"
	"net/http"
	"sync"

	"github.com/MarcoPoloResearchLab/satisfaction/internal/analytics"
	"github.com/MarcoPoloResearchLab/satisfaction/internal/config"
	"github.com/MarcoPoloResearchLab/satisfaction/internal/connectivity"
	"github.com/MarcoPoloResearchLab/satisfaction/internal/events"
	"github.com/MarcoPoloResearchLab/satisfaction/internal/feedback"
	"github.com/MarcoPoloResearchLab/satisfaction/internal/kiosk"
	"github.com/MarcoPoloResearchLab/satisfaction/internal/localstore"
	"github.com/MarcoPoloResearchLab/satisfaction/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newKioskCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kiosk",
		Short: "Run the offline-tolerant feedback kiosk API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKiosk(cmd.Context())
		},
	}

	defaults := config.NewViper()
	flags := cmd.PersistentFlags()
	flags.String("address", defaults.GetString("kiosk.address"), "Kiosk HTTP listen address")
	flags.String("database-path", defaults.GetString("database.path"), "SQLite file holding the pending queue")
	flags.Duration("flush-interval", defaults.GetDuration("sync.flush_interval"), "Interval between pending queue flushes")
	flags.Duration("summary-interval", defaults.GetDuration("sync.summary_interval"), "Interval between summary refreshes")
	flags.Duration("probe-interval", defaults.GetDuration("sync.probe_interval"), "Interval between connectivity probes")

	bindFlag(cmd, "kiosk.address", "address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "sync.flush_interval", "flush-interval")
	bindFlag(cmd, "sync.summary_interval", "summary-interval")
	bindFlag(cmd, "sync.probe_interval", "probe-interval")
	return cmd
}

func runKiosk(ctx context.Context) error {
	appConfig, logger, err := setup(config.ModeKiosk)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	location, err := appConfig.Location()
	if err != nil {
		return err
	}

	store, err := localstore.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck

	remoteStore, err := openRemote(ctx, appConfig.Remote, logger)
	if err != nil {
		return err
	}
	defer remoteStore.close()

	dispatcher := events.NewDispatcher()
	monitor := connectivity.NewMonitor(connectivity.Config{
		Pinger:        remoteStore.service,
		ProbeInterval: appConfig.Sync.ProbeInterval,
		ProbeTimeout:  appConfig.Remote.Timeout,
		Initial:       true,
		Publisher:     dispatcher,
		Logger:        logger.Named("connectivity"),
	})

	feedbackService, err := feedback.NewService(feedback.ServiceConfig{
		Remote:       remoteStore.service,
		Table:        appConfig.Remote.Table,
		Store:        store,
		Connectivity: monitor,
		Publisher:    dispatcher,
		Location:     location,
		Logger:       logger.Named("feedback"),
	})
	if err != nil {
		return err
	}

	summaries, err := analytics.NewService(analytics.Config{
		Querier:  remoteStore.service,
		Table:    appConfig.Remote.Table,
		Location: location,
		Logger:   logger.Named("analytics"),
	})
	if err != nil {
		return err
	}

	agent, err := kiosk.NewAgent(kiosk.AgentConfig{
		Feedback:        feedbackService,
		Connectivity:    monitor,
		Summaries:       summaries,
		Publisher:       dispatcher,
		FlushInterval:   appConfig.Sync.FlushInterval,
		SummaryInterval: appConfig.Sync.SummaryInterval,
		Logger:          logger.Named("kiosk"),
	})
	if err != nil {
		return err
	}

	handler, err := server.NewKioskHandler(server.KioskDependencies{
		Feedback:     feedbackService,
		Connectivity: monitor,
		Agent:        agent,
		Events:       dispatcher,
		Logger:       logger.Named("http"),
	})
	if err != nil {
		return err
	}

	logger.Info("kiosk ready",
		zap.String("backend", appConfig.Remote.Backend),
		zap.Int("pending", feedbackService.PendingCount(ctx)))

	httpServer := &http.Server{
		Addr:    appConfig.KioskAddress,
		Handler: handler,
	}
	return serve(ctx, httpServer, logger, func(ctx context.Context) {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			monitor.Run(ctx)
		}()
		go func() {
			defer wg.Done()
			_ = agent.Run(ctx)
		}()
		wg.Wait()
	})
}
