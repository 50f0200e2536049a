package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vantor/intelpost-backend/internal/app"
	rediscache "github.com/vantor/intelpost-backend/internal/clients/redis"
	"github.com/vantor/intelpost-backend/internal/db"
	"github.com/vantor/intelpost-backend/internal/handlers"
	"github.com/vantor/intelpost-backend/internal/jobs"
	"github.com/vantor/intelpost-backend/internal/logger"
	"github.com/vantor/intelpost-backend/internal/middleware"
	"github.com/vantor/intelpost-backend/internal/observability"
	"github.com/vantor/intelpost-backend/internal/repos"
	"github.com/vantor/intelpost-backend/internal/server"
	"github.com/vantor/intelpost-backend/internal/services"
	"github.com/vantor/intelpost-backend/internal/taxonomy"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Env
	log.Info("Loading configuration...")
	cfg := app.LoadConfig(log)

	// Tracing
	shutdownOtel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "intelpost",
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})
	if shutdownOtel != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownOtel(shutdownCtx)
		}()
	}

	// Database
	databaseService, err := db.NewDatabaseService(log)
	if err != nil {
		log.Fatal("Database init failed", "error", err)
	}
	if err = databaseService.AutoMigrateAll(); err != nil {
		log.Fatal("Database auto migration failed", "error", err)
	}
	gdb := databaseService.DB()

	// Taxonomy rules
	rules, err := taxonomy.LoadRules(cfg.RulesPath)
	if err != nil {
		log.Warn("Taxonomy rules load failed, using defaults", "path", cfg.RulesPath, "error", err)
	}
	extractor := taxonomy.NewExtractor(rules)
	classifier := taxonomy.NewClassifier(rules)

	// Repos
	log.Info("Setting up repos...")
	categoryRepo := repos.NewCategoryRepo(gdb, log)
	postRepo := repos.NewPostRepo(gdb, log)
	runRepo := repos.NewReconcileRunRepo(gdb, log)

	// Redis (optional tree cache)
	var treeCache rediscache.Cache
	if cfg.RedisEnabled {
		treeCache, err = rediscache.NewCache(log)
		if err != nil {
			log.Warn("Redis cache unavailable, serving tree uncached", "error", err)
			treeCache = nil
		} else {
			defer treeCache.Close()
		}
	}

	// Services
	log.Info("Setting up services...")
	hierarchyService := services.NewHierarchyService(categoryRepo, log)
	if _, err := hierarchyService.EnsureCatchAll(ctx); err != nil {
		log.Fatal("Catch-all init failed", "error", err)
	}
	treeService := services.NewCategoryTreeService(categoryRepo, treeCache, cfg.TreeCacheTTL, log)
	postSource := services.NewRepoPostSource(postRepo)
	assignmentService := services.NewAssignmentService(extractor, classifier, hierarchyService, postRepo, log)
	aggregationService := services.NewAggregationService(gdb, categoryRepo, postRepo, hierarchyService, log)

	reconcileDeps := jobs.ReconcileDeps{
		DB:         gdb,
		Log:        log,
		Source:     postSource,
		Resolver:   assignmentService,
		Aggregator: aggregationService,
		Hierarchy:  hierarchyService,
		Runs:       runRepo,
		Tree:       treeService,
	}

	// Worker
	worker := jobs.NewWorker(reconcileDeps, cfg.WorkerPollInterval, cfg.ReconcileConcurrency)
	worker.Start(ctx)

	if cfg.ReconcileOnStart != "" {
		if _, err := jobs.Enqueue(ctx, runRepo, cfg.ReconcileOnStart); err != nil {
			log.Warn("Startup reconciliation enqueue failed", "mode", cfg.ReconcileOnStart, "error", err)
		}
	}

	// HTTP
	taxonomyHandler := handlers.NewTaxonomyHandler(treeService, runRepo, log)
	router := server.NewRouter(server.RouterConfig{
		TaxonomyHandler: taxonomyHandler,
		RequestLog:      middleware.NewRequestLogMiddleware(log),
		ServiceName:     "intelpost",
		AllowOrigins:    cfg.AllowOrigins,
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	go func() {
		log.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown error", "error", err)
	}
}
