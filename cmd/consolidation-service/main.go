package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carelink-health/platform/pkg/canonical"
	"github.com/carelink-health/platform/pkg/common/config"
	"github.com/carelink-health/platform/pkg/common/database"
	"github.com/carelink-health/platform/pkg/common/kafka"
	"github.com/carelink-health/platform/pkg/common/logger"
	"github.com/carelink-health/platform/pkg/common/models"
	"github.com/carelink-health/platform/pkg/match"
	"github.com/carelink-health/platform/pkg/merge"
	"github.com/carelink-health/platform/pkg/observability/metrics"
	"github.com/carelink-health/platform/pkg/pipeline"
	"github.com/carelink-health/platform/pkg/policy"
	"github.com/carelink-health/platform/pkg/review"
	"github.com/carelink-health/platform/pkg/sources"
	"github.com/gorilla/mux"
)

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}

	sourceRepo := sources.NewRepository(db)
	reviewRepo := review.NewRepository(db)
	canonicalRepo := canonical.NewRepository(db)
	if err := sourceRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate source record tables")
	}
	if err := reviewRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate match decision tables")
	}
	if err := canonicalRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate canonical patient tables")
	}

	matchPolicy := policy.Default()
	if cfg.MatchPolicyPath != "" {
		matchPolicy, err = policy.Load(cfg.MatchPolicyPath)
		if err != nil {
			logger.Log.WithError(err).Fatal("failed to load match policy")
		}
	}

	canonicalProducer := kafka.NewProducer(cfg.CanonicalTopic)
	defer canonicalProducer.Close()

	reviewProducer := kafka.NewProducer(cfg.ReviewTopic)
	defer reviewProducer.Close()

	var dlq pipeline.Publisher
	if cfg.ConsolidationDLQTopic != "" {
		dlqProducer := kafka.NewProducer(cfg.ConsolidationDLQTopic)
		defer dlqProducer.Close()
		dlq = dlqProducer
	}

	redisClient := database.GetRedis()
	defer database.CloseRedis()

	reviewSvc := review.NewService(reviewRepo, reviewProducer)
	svc := pipeline.NewService(
		sourceRepo,
		canonicalRepo,
		reviewSvc,
		match.NewMatcher(matchPolicy, cfg.MatchWorkers),
		merge.NewMerger(matchPolicy),
		canonical.NewBuilder(),
		pipeline.NewRunLock(redisClient, cfg.RunLockTTL),
		pipeline.NewSummaryCache(redisClient, cfg.RunSummaryTTL),
		canonicalProducer,
		dlq,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// New source rows flag the pipeline dirty; the auto-run loop picks the
	// flag up on its next tick.
	consumer := kafka.NewConsumer(cfg.SourceRecordTopic, "consolidation-service")
	defer consumer.Close()
	go func() {
		err := consumer.Consume(ctx, func(ctx context.Context, event models.Event) error {
			svc.MarkDirty()
			return nil
		})
		if err != nil && ctx.Err() == nil {
			logger.Log.WithError(err).Fatal("consumer error")
		}
	}()

	if cfg.AutoRunInterval > 0 {
		go svc.StartAutoRuns(ctx, cfg.AutoRunInterval)
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	pipeline.NewHTTPHandler(svc).Register(api)
	review.NewHTTPHandler(reviewSvc).Register(api)
	canonical.NewHTTPHandler(canonicalRepo).Register(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Consolidation Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Consolidation Service...")
	cancel()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	if err := database.ClosePostgres(); err != nil {
		logger.Log.WithError(err).Error("failed to close postgres")
	}

	logger.Log.Info("Consolidation Service stopped")
}
