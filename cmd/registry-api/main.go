package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	_ "github.com/noah-isme/civil-registry-api/api/swagger"
	"github.com/noah-isme/civil-registry-api/internal/handler"
	"github.com/noah-isme/civil-registry-api/internal/repository"
	"github.com/noah-isme/civil-registry-api/internal/service"
	"github.com/noah-isme/civil-registry-api/pkg/cache"
	"github.com/noah-isme/civil-registry-api/pkg/config"
	"github.com/noah-isme/civil-registry-api/pkg/database"
	"github.com/noah-isme/civil-registry-api/pkg/export"
	"github.com/noah-isme/civil-registry-api/pkg/jobs"
	"github.com/noah-isme/civil-registry-api/pkg/logger"
	"github.com/noah-isme/civil-registry-api/pkg/storage"
)

// @title Civil Registry API
// @version 1.0.0
// @description Vital records registration: births, deaths, marriages and divorces
// @BasePath /api
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	metrics := service.NewMetricsService()
	deps := map[string]handler.Pinger{}

	store, closeStore, err := openStore(ctx, cfg, deps)
	if err != nil {
		logr.Fatal("failed to open document store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	defer closeStore()
	store = repository.NewObservedStore(store, metrics)

	counter, redisClient, closeSequence, err := openSequence(ctx, cfg, deps)
	if err != nil {
		logr.Fatal("failed to open sequence backend", zap.String("driver", cfg.Store.SequenceDriver), zap.Error(err))
	}
	defer closeSequence()

	userRepo := repository.NewUserRepository(store)
	recordRepo := repository.NewRecordRepository(store)
	auditRepo := repository.NewAuditRepository(store)
	descriptors := service.DefaultDescriptors()

	auditSvc := service.NewAuditService(auditRepo, metrics, logr, service.AuditConfig{
		Retries: cfg.Records.AuditWriteRetries,
		Backoff: cfg.Records.AuditRetryBackoff,
	})
	auditQueue := jobs.NewQueue("audit-retry", auditSvc.HandleRetry, jobs.QueueConfig{
		Workers:    cfg.Records.AuditQueueWorkers,
		MaxRetries: cfg.Records.AuditQueueRetries,
		RetryDelay: cfg.Records.AuditQueueRetryDelay,
		OnDrop:     auditSvc.HandleDrop,
		Logger:     logr,
	})
	auditQueue.Start(ctx)
	auditSvc.UseRetryQueue(auditQueue)
	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, nil, logr)
	recordSvc := service.NewRecordService(
		descriptors,
		recordRepo,
		userRepo,
		service.NewCertificateAllocator(counter),
		service.NewFieldValidator(recordRepo, nil, logr),
		auditSvc,
		logr,
		service.RecordServiceConfig{UpdateRetries: cfg.Records.UpdateRetries},
	)
	certSvc := service.NewCertificateService(
		descriptors,
		recordRepo,
		userRepo,
		export.NewCertificateRenderer(),
		storage.NewSignedURLSigner(cfg.Certificates.SignedURLSecret, cfg.Certificates.SignedURLTTL),
		logr,
	)
	verificationCache := service.NewCacheService(
		repository.NewCacheRepository(redisClient, "registry:"),
		metrics,
		cfg.Cache.VerificationTTL,
		logr,
		cfg.Cache.Enabled && redisClient != nil,
	)
	certSvc.UseCache(verificationCache)
	recordSvc.UseVerificationCache(verificationCache)

	uploads, err := storage.NewLocalStorage(cfg.Uploads.Dir)
	if err != nil {
		logr.Fatal("failed to prepare upload storage", zap.Error(err))
	}

	if created, err := userSvc.EnsureAdmin(ctx, cfg.Bootstrap.AdminEmail, cfg.Bootstrap.AdminPassword, cfg.Bootstrap.AdminName); err != nil {
		logr.Error("failed to bootstrap administrator", zap.Error(err))
	} else if created {
		logr.Info("bootstrap administrator created", zap.String("email", cfg.Bootstrap.AdminEmail))
	}

	router := handler.NewRouter(handler.RouterConfig{
		APIPrefix:      cfg.APIPrefix,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		EnableDocs:     cfg.Env != config.EnvProduction,
		Logger:         logr,
		Metrics:        metrics,
		Tokens:         authSvc,
		Users:          userRepo,
		Descriptors:    descriptors,
		Auth:           handler.NewAuthHandler(authSvc),
		UserAdmin:      handler.NewUserHandler(userSvc),
		Records: handler.NewRecordHandler(recordSvc, certSvc, uploads, handler.UploadPolicy{
			AllowedExtensions: cfg.Uploads.AllowedExtensions,
			MaxBytes:          cfg.Uploads.MaxFileSizeBytes,
		}, logr),
		Audit:        handler.NewAuditHandler(auditSvc, recordSvc),
		Certificates: handler.NewCertificateHandler(certSvc),
		Health:       handler.NewMetricsHandler(metrics, deps),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := auditQueue.Stop(shutdownCtx); err != nil {
		logr.Error("audit retry queue did not drain", zap.Error(err))
	}
	logr.Info("server stopped")
}

func openStore(ctx context.Context, cfg *config.Config, deps map[string]handler.Pinger) (repository.DocumentStore, func(), error) {
	switch cfg.Store.Driver {
	case config.StoreMongo:
		client, db, err := database.NewMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, nil, err
		}
		store := repository.NewMongoStore(db)
		if err := store.EnsureIndexes(ctx, repository.UniqueFields); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		deps["mongo"] = handler.PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx, readpref.Primary())
		})
		return store, func() { _ = client.Disconnect(context.Background()) }, nil
	case config.StorePostgres:
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		store := repository.NewPostgresStore(db)
		if err := store.EnsureSchema(ctx, repository.UniqueFields); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		deps["postgres"] = handler.PingFunc(db.PingContext)
		return store, func() { _ = db.Close() }, nil
	case config.StoreMemory:
		return repository.NewMemoryStore(nil), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

type sequence interface {
	Next(ctx context.Context, key string) (int64, error)
}

// openSequence also returns the Redis client, when one was opened, so the
// verification cache can share it.
func openSequence(ctx context.Context, cfg *config.Config, deps map[string]handler.Pinger) (sequence, *redis.Client, func(), error) {
	switch cfg.Store.SequenceDriver {
	case config.SequenceRedis:
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, nil, err
		}
		deps["redis"] = handler.PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		return repository.NewRedisSequence(client), client, func() { _ = client.Close() }, nil
	case config.SequenceMemory:
		return repository.NewMemorySequence(), nil, func() {}, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown sequence driver %q", cfg.Store.SequenceDriver)
}
