package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"auth-service/internal/auth"
	"auth-service/internal/config"
	apphttp "auth-service/internal/http"
	"auth-service/internal/repository"
	"auth-service/internal/repository/memory"
	"auth-service/internal/repository/postgres"
	"auth-service/internal/repository/sqlite"
	"auth-service/internal/security"
	"auth-service/internal/service"
	"auth-service/internal/storage"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}
	configureLogger(logger, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	userRepo, closeDB, err := buildUserRepository(ctx, cfg)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer closeDB()

	userService, err := service.NewUserService(
		userRepo,
		security.NewBcryptHasher(cfg.Auth.BcryptCost),
		security.NewRandomGenerator(),
		service.WithLogger(logger.WithField("component", "users")),
		service.WithRecoveryPolicy(cfg.RecoveryPolicy()),
	)
	if err != nil {
		logger.Fatalf("setup user service: %v", err)
	}
	if cfg.Auth.Admin.UserName != "" {
		if err := service.EnsureAdmin(ctx, userService, cfg.Auth.Admin.UserName, cfg.Auth.Admin.Password, logger.WithField("component", "users")); err != nil {
			logger.Fatalf("bootstrap admin: %v", err)
		}
	}

	storageSvc, err := buildStorage(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup storage: %v", err)
	}
	exportService := service.NewExportService(userService, storageSvc, service.ExportConfig{
		Bucket:    cfg.Export.Bucket,
		KeyPrefix: cfg.Export.KeyPrefix,
		URLExpiry: time.Duration(cfg.Export.URLExpiryMinutes) * time.Minute,
	}, logger.WithField("component", "exports"))

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(
		userService,
		exportService,
		auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.TokenTTL()),
		logger.WithField("component", "http"),
	)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}

	logger.Info("bye")
}

func configureLogger(logger *logrus.Logger, cfg config.Config) {
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	}
	if cfg.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
}

func buildUserRepository(ctx context.Context, cfg config.Config) (repository.UserRepository, func(), error) {
	var (
		db  *sql.DB
		err error
	)
	switch cfg.Database.Driver {
	case "memory":
		return memory.NewUserRepository(), func() {}, nil
	case "postgres":
		if db, err = postgres.Open(ctx, cfg.Database.DSN); err != nil {
			return nil, nil, err
		}
		return postgres.NewUserRepository(db), func() { db.Close() }, nil
	case "sqlite":
		if db, err = sqlite.Open(ctx, cfg.Database.Path); err != nil {
			return nil, nil, err
		}
		return sqlite.NewUserRepository(db), func() { db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

// buildStorage returns nil when no export bucket is configured; exports are then disabled.
func buildStorage(ctx context.Context, cfg config.Config, logger *logrus.Logger) (storage.Service, error) {
	if cfg.Export.Bucket == "" {
		logger.Info("export bucket not configured, user exports disabled")
		return nil, nil
	}

	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Export.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Export.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Export.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infof("using s3 bucket %s (region %s)", cfg.Export.Bucket, cfg.Export.Region)
	return storage.NewS3Service(client), nil
}
