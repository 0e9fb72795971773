package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Brohammad/Insurance-Graph-Analysis/internal/circuitbreaker"
	cfg "github.com/Brohammad/Insurance-Graph-Analysis/internal/config"
	"github.com/Brohammad/Insurance-Graph-Analysis/internal/embeddings"
	"github.com/Brohammad/Insurance-Graph-Analysis/internal/eventlog"
	"github.com/Brohammad/Insurance-Graph-Analysis/internal/graph"
	"github.com/Brohammad/Insurance-Graph-Analysis/internal/health"
	"github.com/Brohammad/Insurance-Graph-Analysis/internal/httpapi"
	"github.com/Brohammad/Insurance-Graph-Analysis/internal/llm"
	_ "github.com/Brohammad/Insurance-Graph-Analysis/internal/metrics" // Import for side effects
	"github.com/Brohammad/Insurance-Graph-Analysis/internal/retrieval"
	"github.com/Brohammad/Insurance-Graph-Analysis/internal/session"
	"github.com/Brohammad/Insurance-Graph-Analysis/internal/tracing"
	"github.com/Brohammad/Insurance-Graph-Analysis/internal/vectordb"
	"github.com/Brohammad/Insurance-Graph-Analysis/internal/workflow"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Load configuration
	config, err := cfg.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if err := config.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	// Initialize distributed tracing
	if err := tracing.Initialize(tracing.Config{
		Enabled:      config.Observability.Tracing.Enabled,
		ServiceName:  config.Observability.Tracing.ServiceName,
		OTLPEndpoint: config.Observability.Tracing.OTLPEndpoint,
	}, logger); err != nil {
		logger.Warn("Tracing initialization failed, continuing without tracing", zap.Error(err))
	}

	// Start circuit breaker metrics collection
	circuitbreaker.StartMetricsCollection()

	// Graph store is the source of structured answers; refuse to start
	// without it.
	graphClient := graph.NewClient(config.Graph, logger)
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := graphClient.Ping(pingCtx); err != nil {
		cancel()
		logger.Fatal("Graph store unreachable", zap.Error(err))
	}
	cancel()
	logger.Info("Graph store connected", zap.String("url", config.Graph.URL))

	// Semantic retrieval stack, optional
	var retriever *retrieval.Retriever
	vectorClient := vectordb.NewClient(config.VectorDB, logger)
	if config.VectorDB.Enabled {
		var cache embeddings.Cache = embeddings.NewLocalLRU(1000)
		if config.Embeddings.RedisAddr != "" {
			if redisCache, err := embeddings.NewRedisCache(config.Embeddings.RedisAddr); err != nil {
				logger.Warn("Redis embedding cache unavailable, using local cache only", zap.Error(err))
			} else {
				cache = redisCache
			}
		}
		embedder := embeddings.NewService(config.Embeddings, cache, logger)
		retriever = retrieval.NewRetriever(embedder, vectorClient, logger)
		logger.Info("Semantic retrieval enabled",
			zap.String("collection", config.VectorDB.Collection),
		)
	} else {
		logger.Info("Semantic retrieval disabled, fallback runs on generation only")
	}

	// LLM client backs both classification and response generation
	llmClient := llm.NewClient(config.LLM, logger)
	classifier := llm.NewClassifier(llmClient, logger)

	// Session store with periodic TTL eviction
	sessions, err := session.NewStore(config.Session.MaxHistory, config.SessionTTL(), config.Session.PersistDir, logger)
	if err != nil {
		logger.Fatal("Failed to initialize session store", zap.Error(err))
	}
	go func() {
		ticker := time.NewTicker(config.CleanupInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := sessions.CleanupExpired(); removed > 0 {
					logger.Info("Evicted expired sessions", zap.Int("count", removed))
				}
			}
		}
	}()

	// Workflow router
	router := workflow.NewRouter(
		classifier,
		graph.NewPlanner(logger),
		graphClient,
		retrieverOrNil(retriever),
		llmClient,
		sessions,
		workflow.Options{
			ConfidenceThreshold: config.Router.ConfidenceThreshold,
			MaxRetries:          config.Router.MaxRetries,
			ContextMessages:     config.Router.ContextMessages,
			HybridSnippets:      config.Router.HybridSnippets,
			FallbackTopK:        config.Router.FallbackTopK,
			MaxContextRows:      config.Router.MaxContextRows,
		},
		logger,
	)

	// Public API
	apiHandler := httpapi.NewHandler(router, sessions, graphClient, logger)

	// Turn audit log, optional
	var turnLog *eventlog.Writer
	if config.EventLog.Enabled && config.EventLog.DSN != "" {
		turnLog, err = eventlog.NewWriter(config.EventLog.DSN, logger)
		if err != nil {
			logger.Warn("Event log unavailable, turns will not be persisted", zap.Error(err))
		} else {
			router.SetTurnObserver(func(t workflow.Turn) {
				turnLog.Record(eventlog.TurnRecord{
					SessionID:  t.SessionID,
					CustomerID: t.CustomerID,
					Query:      t.Query,
					Intent:     t.Intent,
					Confidence: t.Confidence,
					Route:      t.Route,
					Response:   t.Response,
					Retries:    t.Retries,
					Escalated:  t.Escalated,
					DurationMS: t.Duration.Milliseconds(),
				})
			})
			apiHandler.SetTurnSource(turnLog)
			logger.Info("Event log enabled")
		}
	}

	// Hot-reload the confidence threshold on config file changes
	if watcher, err := cfg.NewWatcher(func(updated *cfg.Config) {
		router.SetConfidenceThreshold(updated.Router.ConfidenceThreshold)
	}, logger); err != nil {
		logger.Warn("Config watcher unavailable", zap.Error(err))
	} else {
		go func() {
			if err := watcher.Start(ctx); err != nil {
				logger.Warn("Config watcher stopped", zap.Error(err))
			}
		}()
	}

	// Admin endpoints: metrics and health probes
	hm := health.NewManager(logger)
	registerCheckers(hm, graphClient, vectorClient, sessions, config, logger)
	if err := hm.Start(ctx); err != nil {
		logger.Warn("Health manager failed to start", zap.Error(err))
	}

	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	health.NewHTTPHandler(hm, logger).RegisterRoutes(adminMux)
	adminServer := &http.Server{
		Addr:         ":" + strconv.Itoa(config.Observability.MetricsPort),
		Handler:      adminMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("Admin HTTP server listening", zap.Int("port", config.Observability.MetricsPort))
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Admin HTTP server failed", zap.Error(err))
		}
	}()

	apiServer := httpapi.NewServer(config.API.Port, apiHandler, logger)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("API server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("API server shutdown failed", zap.Error(err))
	}
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Admin server shutdown failed", zap.Error(err))
	}
	hm.Stop()
	if turnLog != nil {
		if err := turnLog.Close(); err != nil {
			logger.Warn("Event log close failed", zap.Error(err))
		}
	}

	logger.Info("Shutdown complete")
}

// retrieverOrNil avoids a typed-nil interface when semantic search is off
func retrieverOrNil(r *retrieval.Retriever) workflow.Retriever {
	if r == nil {
		return nil
	}
	return r
}

func registerCheckers(hm *health.Manager, graphClient *graph.Client, vectorClient *vectordb.Client, sessions *session.Store, config *cfg.Config, logger *zap.Logger) {
	checks := []health.Checker{
		health.NewGraphChecker(graphClient),
		health.NewVectorStoreChecker(vectorClient),
		health.NewHTTPServiceChecker("llm", config.LLM.BaseURL+"/health", true),
		health.NewSessionStoreChecker(sessions, 0),
	}
	for _, c := range checks {
		if err := hm.RegisterChecker(c); err != nil {
			logger.Warn("Failed to register health checker", zap.String("checker", c.Name()), zap.Error(err))
		}
	}
}
