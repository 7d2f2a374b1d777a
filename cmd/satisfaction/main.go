package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/satisfaction/internal/config"
	"github.com/MarcoPoloResearchLab/satisfaction/internal/logging"
	"github.com/MarcoPoloResearchLab/satisfaction/internal/remote"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "satisfaction",
		Short: "Customer satisfaction kiosk and reporting dashboard",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		SilenceUsage: true,
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newKioskCommand(), newDashboardCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to configuration file")
	flags.String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	flags.String("log-encoding", defaults.GetString("log.encoding"), "Log encoding (json, console)")
	flags.String("timezone", defaults.GetString("timezone"), "IANA timezone used for dates shown and stored")
	flags.String("remote-backend", defaults.GetString("remote.backend"), "Remote store backend (postgrest, postgres)")
	flags.String("remote-url", "", "PostgREST project URL")
	flags.String("remote-api-key", "", "PostgREST API key (overrides env)")
	flags.String("postgres-dsn", "", "Postgres connection string for the postgres backend")
	flags.String("remote-table", defaults.GetString("remote.table"), "Feedback table name")

	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.encoding", "log-encoding")
	bindFlag(cmd, "timezone", "timezone")
	bindFlag(cmd, "remote.backend", "remote-backend")
	bindFlag(cmd, "remote.url", "remote-url")
	bindFlag(cmd, "remote.api_key", "remote-api-key")
	bindFlag(cmd, "remote.postgres_dsn", "postgres-dsn")
	bindFlag(cmd, "remote.table", "remote-table")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

// setup loads configuration for mode and builds the logger.
func setup(mode config.Mode) (config.AppConfig, *zap.Logger, error) {
	appConfig, err := config.Load(viper.GetViper(), mode)
	if err != nil {
		return config.AppConfig{}, nil, err
	}
	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogEncoding)
	if err != nil {
		return config.AppConfig{}, nil, err
	}
	return appConfig, logger, nil
}

type remoteStack struct {
	service   remote.Service
	breaker   *remote.Breaker
	postgrest *remote.PostgRESTClient
	close     func()
}

// openRemote builds the configured backend behind a circuit breaker.
func openRemote(ctx context.Context, cfg config.RemoteConfig, logger *zap.Logger) (remoteStack, error) {
	stack := remoteStack{close: func() {}}
	var backend remote.Service

	switch cfg.Backend {
	case config.BackendPostgres:
		connectCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		store, err := remote.ConnectPostgres(connectCtx, cfg.PostgresDSN)
		if err != nil {
			return remoteStack{}, err
		}
		if cfg.EnsureSchema {
			if err := store.EnsureSchema(connectCtx, cfg.Table); err != nil {
				store.Close()
				return remoteStack{}, err
			}
		}
		stack.close = store.Close
		backend = store
	default:
		client, err := remote.NewPostgRESTClient(remote.PostgRESTConfig{
			BaseURL: cfg.URL,
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout,
			Logger:  logger,
		})
		if err != nil {
			return remoteStack{}, err
		}
		stack.postgrest = client
		backend = client
	}

	stack.breaker = remote.NewBreaker(backend, remote.BreakerConfig{
		Name:                cfg.Backend,
		ConsecutiveFailures: cfg.BreakerFailures,
		OpenTimeout:         cfg.BreakerOpen,
		Logger:              logger,
	})
	stack.service = stack.breaker
	return stack, nil
}

// serve runs httpServer until ctx ends or a termination signal arrives, then shuts it
// down. background is stopped once the server has shut down.
func serve(ctx context.Context, httpServer *http.Server, logger *zap.Logger, background func(ctx context.Context)) error {
	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backgroundCtx, cancelBackground := context.WithCancel(signalCtx)
	backgroundDone := make(chan struct{})
	go func() {
		defer close(backgroundDone)
		if background != nil {
			background(backgroundCtx)
		}
	}()
	defer func() {
		cancelBackground()
		<-backgroundDone
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", httpServer.Addr))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
