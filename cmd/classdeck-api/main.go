package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/classdeck/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/classdeck/backend/internal/classroom"
	"github.com/MarcoPoloResearchLab/classdeck/backend/internal/config"
	"github.com/MarcoPoloResearchLab/classdeck/backend/internal/database"
	"github.com/MarcoPoloResearchLab/classdeck/backend/internal/draw"
	"github.com/MarcoPoloResearchLab/classdeck/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/classdeck/backend/internal/owners"
	"github.com/MarcoPoloResearchLab/classdeck/backend/internal/server"
	"github.com/MarcoPoloResearchLab/classdeck/backend/internal/store"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "classdeck-api",
		Short: "Classdeck classroom backend service",
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
	cmd.PersistentFlags().String("store-kind", defaults.GetString("store.kind"), "Record store backend (sqlite, http)")
	cmd.PersistentFlags().String("store-base-url", defaults.GetString("store.http.base_url"), "Base URL of the hosted records API")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("redis-address", defaults.GetString("redis.address"), "Redis address for draw state (optional)")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("token.ttl_minutes"), "Session token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().String("teacher-secret", "", "Teacher login secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "store.kind", "store-kind")
	bindFlag(cmd, "store.http.base_url", "store-base-url")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "redis.address", "redis-address")
	bindFlag(cmd, "token.ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "auth.teacher_secret", "teacher-secret")
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

	recordStore, ownerRegistry, closeStore, err := buildRecordStore(appConfig, logger)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	sessions := auth.NewSessionIssuer(auth.SessionIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        "classdeck-auth",
		Audience:      "classdeck-api",
		TokenTTL:      time.Duration(appConfig.TokenTTLMinutes) * time.Minute,
	})

	reconciler, err := classroom.NewReconciler(classroom.ReconcilerConfig{
		Store:  recordStore,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	drawService := buildDrawService(ctx, appConfig, logger)

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Sessions:      sessions,
		Reconciler:    reconciler,
		Draw:          drawService,
		Owners:        ownerRegistry,
		TeacherSecret: appConfig.TeacherSecret,
		Logger:        logger,
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

func buildRecordStore(appConfig config.AppConfig, logger *zap.Logger) (store.RecordStore, *owners.Service, func(), error) {
	switch appConfig.StoreKind {
	case config.StoreKindHTTP:
		httpStore, err := store.NewHTTPStore(store.HTTPStoreConfig{
			BaseURL:   appConfig.StoreBaseURL,
			AuthToken: appConfig.StoreAuthToken,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		return httpStore, nil, nil, nil

	default:
		db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, nil, err
		}
		closeStore := func() {
			_ = sqlDB.Close()
		}

		sqliteStore, err := store.NewSQLiteStore(store.SQLiteStoreConfig{
			Database: db,
			Logger:   logger,
		})
		if err != nil {
			closeStore()
			return nil, nil, nil, err
		}
		ownerRegistry, err := owners.NewService(owners.ServiceConfig{Database: db})
		if err != nil {
			closeStore()
			return nil, nil, nil, err
		}
		return sqliteStore, ownerRegistry, closeStore, nil
	}
}

func buildDrawService(ctx context.Context, appConfig config.AppConfig, logger *zap.Logger) *draw.Service {
	var client *redis.Client
	if appConfig.RedisAddress != "" {
		client = redis.NewClient(&redis.Options{Addr: appConfig.RedisAddress})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, draws run without recent-winner exclusion",
				zap.String("address", appConfig.RedisAddress),
				zap.Error(err))
			client = nil
		}
	}
	return draw.NewService(draw.ServiceConfig{Redis: client, Logger: logger})
}
