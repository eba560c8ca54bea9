package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/sunridgelabs/fieldops/backend/internal/auth"
	"github.com/sunridgelabs/fieldops/backend/internal/config"
	"github.com/sunridgelabs/fieldops/backend/internal/database"
	"github.com/sunridgelabs/fieldops/backend/internal/leaderboard"
	"github.com/sunridgelabs/fieldops/backend/internal/logging"
	"github.com/sunridgelabs/fieldops/backend/internal/metrics"
	"github.com/sunridgelabs/fieldops/backend/internal/realtime"
	"github.com/sunridgelabs/fieldops/backend/internal/server"
	"github.com/sunridgelabs/fieldops/backend/internal/sheets"
	"github.com/sunridgelabs/fieldops/backend/internal/syncer"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fieldops-api",
		Short: "FieldOps sales operations backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Backend token TTL in minutes")
	cmd.PersistentFlags().String("signing-secret", "", "Backend signing secret (overrides env)")
	cmd.PersistentFlags().String("spreadsheet-id", defaults.GetString("sheets.spreadsheet_id"), "Source spreadsheet identifier")
	cmd.PersistentFlags().StringSlice("sheet-ranges", defaults.GetStringSlice("sheets.ranges"), "Candidate sheet ranges, tried in order")
	cmd.PersistentFlags().String("sync-schedule", defaults.GetString("sync.schedule"), "Cron schedule for background full syncs")
	cmd.PersistentFlags().Bool("notify-background", defaults.GetBool("sync.notify_background"), "Broadcast completion events for scheduled syncs")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "sheets.spreadsheet_id", "spreadsheet-id")
	bindFlag(cmd, "sheets.ranges", "sheet-ranges")
	bindFlag(cmd, "sync.schedule", "sync-schedule")
	bindFlag(cmd, "sync.notify_background", "notify-background")
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
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := database.Migrate(db, logger); err != nil {
		return err
	}

	tokenManager := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        "fieldops-auth",
		Audience:      "fieldops-api",
		TokenTTL:      appConfig.TokenTTL,
	})

	appMetrics := metrics.New()
	registry := realtime.NewRegistry()
	hub, err := realtime.NewHub(realtime.HubConfig{
		Registry: registry,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	fetcher, err := sheets.NewFetcher(sheets.FetcherConfig{
		Source:    sheets.NewSource(appConfig.SpreadsheetID),
		Logger:    logger,
		BaseDelay: appConfig.RetryBaseDelay,
	})
	if err != nil {
		return err
	}

	orchestrator, err := syncer.NewOrchestrator(syncer.OrchestratorConfig{
		Database:         db,
		Fetcher:          fetcher,
		Hub:              hub,
		Logger:           logger,
		Metrics:          appMetrics,
		SpreadsheetID:    appConfig.SpreadsheetID,
		Ranges:           appConfig.SheetRanges,
		NotifyBackground: appConfig.NotifyBackground,
	})
	if err != nil {
		return err
	}

	scheduler, err := syncer.NewScheduler(syncer.SchedulerConfig{
		Orchestrator: orchestrator,
		Registry:     registry,
		Schedule:     appConfig.SyncSchedule,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	if err := scheduler.Start(); err != nil {
		return err
	}
	defer scheduler.Stop()

	leaderboardService, err := leaderboard.NewService(leaderboard.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: leaderboard.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager: tokenManager,
		Scheduler:    scheduler,
		Orchestrator: orchestrator,
		Leaderboard:  leaderboardService,
		Registry:     registry,
		Hub:          hub,
		Metrics:      appMetrics,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
