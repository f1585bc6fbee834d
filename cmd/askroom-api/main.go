package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/askroom/backend/internal/access"
	"github.com/MarcoPoloResearchLab/askroom/backend/internal/config"
	"github.com/MarcoPoloResearchLab/askroom/backend/internal/database"
	"github.com/MarcoPoloResearchLab/askroom/backend/internal/forum"
	"github.com/MarcoPoloResearchLab/askroom/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/askroom/backend/internal/metrics"
	"github.com/MarcoPoloResearchLab/askroom/backend/internal/server"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "askroom-api",
		Short: "Askroom Q&A forum backend service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply forum schema migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations()
		},
	}
	rootCmd.AddCommand(migrateCmd)

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to a dotenv file loaded before reading the environment")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("database-dsn", "", "PostgreSQL connection string")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("access-policy", defaults.GetString("access.policy"), "Access policy (public, read_only)")
	cmd.PersistentFlags().StringSlice("allowed-origins", defaults.GetStringSlice("cors.allowed_origins"), "CORS allowed origins")
	cmd.PersistentFlags().Bool("metrics-enabled", defaults.GetBool("metrics.enabled"), "Expose Prometheus metrics on /metrics")
	cmd.PersistentFlags().Int("realtime-buffer-size", defaults.GetInt("realtime.buffer_size"), "Per-subscriber realtime event buffer")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "access.policy", "access-policy")
	bindFlag(cmd, "cors.allowed_origins", "allowed-origins")
	bindFlag(cmd, "metrics.enabled", "metrics-enabled")
	bindFlag(cmd, "realtime.buffer_size", "realtime-buffer-size")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return err
		}
	}

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

func openDatabase(appConfig config.AppConfig, logger *zap.Logger) (*gorm.DB, func(), error) {
	db, err := database.Open(appConfig.DatabaseOptions(), logger)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	return db, func() { _ = sqlDB.Close() }, nil
}

func runMigrations() error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	_, closeDatabase, err := openDatabase(appConfig, logger)
	if err != nil {
		logger.Error("migration failed", zap.Error(err))
		return err
	}
	defer closeDatabase()

	logger.Info("migrations applied", zap.String("driver", appConfig.DatabaseDriver))
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

	db, closeDatabase, err := openDatabase(appConfig, logger)
	if err != nil {
		return err
	}
	defer closeDatabase()

	forumService, err := forum.NewService(forum.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: forum.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	policy, err := access.Lookup(appConfig.AccessPolicy)
	if err != nil {
		return err
	}

	var registry *metrics.Registry
	if appConfig.MetricsEnabled {
		registry = metrics.NewRegistry()
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		ForumService:   forumService,
		Policy:         policy,
		Realtime:       server.NewRealtimeDispatcher(appConfig.RealtimeBufferSize),
		Metrics:        registry,
		AllowedOrigins: appConfig.AllowedOrigins,
		Logger:         logger,
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
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("access_policy", policy.Name()),
			zap.Bool("metrics_enabled", appConfig.MetricsEnabled))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("server shutting down")
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
