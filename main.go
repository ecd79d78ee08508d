package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/AnTengye/contractledger/config"
	"github.com/AnTengye/contractledger/handler"
	"github.com/AnTengye/contractledger/middleware"
	"github.com/AnTengye/contractledger/pkg/logger"
	"github.com/AnTengye/contractledger/repository"
	"github.com/AnTengye/contractledger/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log := logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	log.Info("configuration loaded successfully")

	ctx := context.Background()

	db, err := repository.Open(ctx, repository.Config{
		Driver:           cfg.Database.Driver,
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		DialTimeout:      10 * time.Second,
		StatementTimeout: cfg.Database.StatementTimeout,
		ApplicationName:  cfg.Database.ApplicationName,
	}, log)
	if err != nil {
		os.Exit(1)
	}
	defer db.Close()

	if err := repository.Migrate(ctx, db); err != nil {
		log.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}

	contractRepo := repository.NewContractRepository(db, log)
	serviceRepo := repository.NewServiceRepository(db, log)
	companyAppRepo := repository.NewCompanyAppRepository(db, log)
	appRepo := repository.NewAppRepository(db, log)

	primary, elevated, closeStores, err := openStores(ctx, cfg.Storage)
	if err != nil {
		log.Error("failed to initialize object storage", "provider", cfg.Storage.Provider, "error", err)
		os.Exit(1)
	}
	defer closeStores()

	docParse := service.NewDocParseClient(service.DocParseConfig{
		APIURL:       cfg.Extraction.APIURL,
		APIToken:     cfg.Extraction.APIToken,
		ModelVersion: cfg.Extraction.ModelVersion,
	}, primary, log)
	extractor := service.NewExtractor(docParse, service.TimerScheduler{}, service.ExtractionOptions{
		PollInterval:   cfg.Extraction.PollInterval,
		MaxAttempts:    cfg.Extraction.MaxAttempts,
		ReleaseTimeout: cfg.Extraction.ReleaseTimeout,
	}, log)

	parser, err := service.NewPayloadParser()
	if err != nil {
		log.Error("failed to compile payload schema", "error", err)
		os.Exit(1)
	}

	var locker service.PairLocker = service.NopLocker{}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Error("failed to connect to redis", "addr", cfg.Redis.Addr, "error", err)
			os.Exit(1)
		}
		locker = service.NewRedisLocker(rdb, cfg.Redis.LockTTL, log)
		log.Info("contract locks backed by redis", "addr", cfg.Redis.Addr)
	}

	var notifier service.Notifier = service.NopNotifier{}
	if cfg.PubSub.Topic != "" {
		pubsub, err := service.NewPubSubNotifier(ctx, cfg.PubSub.ProjectID, cfg.PubSub.Topic, cfg.PubSub.CredentialsFile, log)
		if err != nil {
			log.Error("failed to initialize pubsub", "topic", cfg.PubSub.Topic, "error", err)
			os.Exit(1)
		}
		defer pubsub.Close()
		notifier = pubsub
	}

	contracts := service.NewContractService(contractRepo, serviceRepo, companyAppRepo, locker, log)
	pipeline := service.NewContractPipeline(service.PipelineDeps{
		Extractor:   extractor,
		Parser:      parser,
		Normalizer:  service.Normalizer{PhoneRegion: cfg.Normalizer.PhoneRegion},
		Contracts:   contracts,
		Apps:        appRepo,
		Attachments: service.NewAttachmentService(primary, elevated, log),
		Notifier:    notifier,
		Workers:     cfg.Batch.Workers,
		Logger:      log,
	})
	exporter := service.NewExporter(pipeline, log)

	maxUpload := cfg.Server.MaxUploadMB << 20
	contractHandler := handler.NewContractHandler(pipeline, exporter, maxUpload)
	appHandler := handler.NewAppHandler(pipeline)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.MaxMultipartMemory = maxUpload

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.CompanyScope())
	router.Use(middleware.RequestLogger())
	router.Use(cors.New(corsConfig(cfg.Server.AllowedOrigins)))
	router.Use(middleware.RateLimit(cfg.Server.RateLimit, time.Minute))

	router.GET("/health", func(c *gin.Context) {
		status := "ok"
		code := http.StatusOK
		if err := db.HealthCheck(c.Request.Context(), 2*time.Second); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":    status,
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	handler.RegisterRoutes(router.Group("/api"), contractHandler, appHandler)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
		// Extraction polls the remote API inside the request.
		ReadTimeout:  60 * time.Second,
		WriteTimeout: cfg.Extraction.PollInterval*time.Duration(cfg.Extraction.MaxAttempts) + 60*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("server exited gracefully")
}

// openStores builds the regular store and the elevated store used as a
// fallback when the regular credentials are refused.
func openStores(ctx context.Context, cfg config.StorageConfig) (primary, elevated service.ObjectStore, closeFn func(), err error) {
	switch cfg.Provider {
	case "gcs":
		regular, err := service.NewGCSStore(ctx, service.GCSConfig{
			Bucket:          cfg.Bucket,
			CredentialsFile: cfg.GCS.CredentialsFile,
			PublicBaseURL:   cfg.GCS.PublicBaseURL,
			ExpireDays:      cfg.ExpireDays,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		if cfg.GCS.AdminCredentialsFile == "" {
			return regular, nil, func() { regular.Close() }, nil
		}
		admin, err := service.NewGCSStore(ctx, service.GCSConfig{
			Bucket:          cfg.Bucket,
			CredentialsFile: cfg.GCS.AdminCredentialsFile,
			PublicBaseURL:   cfg.GCS.PublicBaseURL,
			ExpireDays:      cfg.ExpireDays,
		})
		if err != nil {
			regular.Close()
			return nil, nil, nil, err
		}
		return regular, admin, func() {
			regular.Close()
			admin.Close()
		}, nil

	default:
		regular, err := service.NewMinioStore(service.MinioConfig{
			Endpoint:   cfg.Minio.Endpoint,
			AccessKey:  cfg.Minio.AccessKey,
			SecretKey:  cfg.Minio.SecretKey,
			Bucket:     cfg.Bucket,
			UseSSL:     cfg.Minio.UseSSL,
			ExpireDays: cfg.ExpireDays,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		if err := regular.EnsureBucket(ctx); err != nil {
			return nil, nil, nil, err
		}
		if cfg.Minio.AdminAccessKey == "" {
			return regular, nil, func() {}, nil
		}
		admin, err := service.NewMinioStore(service.MinioConfig{
			Endpoint:   cfg.Minio.Endpoint,
			AccessKey:  cfg.Minio.AdminAccessKey,
			SecretKey:  cfg.Minio.AdminSecretKey,
			Bucket:     cfg.Bucket,
			UseSSL:     cfg.Minio.UseSSL,
			ExpireDays: cfg.ExpireDays,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		return regular, admin, func() {}, nil
	}
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
		c.AllowCredentials = false
	} else {
		c.AllowOrigins = origins
	}
	return c
}
