// Package main is the entry point for the alignment engine.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/groundcrew-ai/alignment-engine/internal/classifier"
	"github.com/groundcrew-ai/alignment-engine/internal/config"
	"github.com/groundcrew-ai/alignment-engine/internal/engine"
	"github.com/groundcrew-ai/alignment-engine/internal/handler"
	"github.com/groundcrew-ai/alignment-engine/internal/middleware"
	natsclient "github.com/groundcrew-ai/alignment-engine/internal/nats"
	"github.com/groundcrew-ai/alignment-engine/internal/store"
	"github.com/groundcrew-ai/alignment-engine/internal/thread"
	"github.com/groundcrew-ai/alignment-engine/internal/workflow"
	"github.com/groundcrew-ai/alignment-engine/pkg/logger"
	"github.com/groundcrew-ai/alignment-engine/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting alignment engine")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "alignment-engine", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Redis backs documents, proposals and the audit trail.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("failed to connect to redis", zap.Error(err))
		os.Exit(1)
	}
	defer rdb.Close()

	// NATS bridges the chat transport.
	nc, err := natsclient.Connect(ctx, natsclient.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Error("failed to connect to NATS", zap.Error(err))
		os.Exit(1)
	}
	defer nc.Close()

	bridge := natsclient.NewBridge(nc, log)
	if err := bridge.EnsureStream(ctx); err != nil {
		log.Error("failed to ensure stream", zap.Error(err))
		os.Exit(1)
	}

	// Classifier adapter; the engine degrades to PASS without one.
	var cls classifier.Classifier
	if cfg.AnthropicAPIKey != "" && cfg.DefaultLLM != string(classifier.ProviderOpenAI) {
		cls, err = classifier.NewAnthropicClassifier(cfg.AnthropicAPIKey)
	} else if cfg.OpenAIAPIKey != "" {
		cls, err = classifier.NewOpenAIClassifier(cfg.OpenAIAPIKey)
	}
	if err != nil {
		log.Warn("failed to create classifier, running fast-path only", zap.Error(err))
	}
	if cls == nil {
		cls = classifier.Unavailable{}
	}

	docs := store.NewDocumentStore(rdb, cfg.MaxGroundTruthWords, log)
	proposals := store.NewProposalStore(rdb)
	audit := store.NewAuditLog(rdb, log)
	wf := workflow.New(docs, proposals, audit, log)
	threads := thread.NewManager(cls, thread.Options{
		MaxWindow:            cfg.MaxThreadWindow,
		TimeWindow:           cfg.ThreadTimeWindow,
		MaxThreadsPerChannel: cfg.MaxThreadsPerChannel,
		CheckTimeout:         cfg.ClassifierTimeout,
	}, log)

	eng := engine.New(cls, threads, docs, wf, audit, bridge, cfg.ClassifierTimeout, log)

	consumeCtx, err := bridge.Consume(ctx, eng)
	if err != nil {
		log.Error("failed to start event consumer", zap.Error(err))
		os.Exit(1)
	}
	defer consumeCtx.Stop()

	healthHandler := handler.NewHealthHandler(nc, rdb)
	channelHandler := handler.NewChannelHandler(docs, audit, log)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RequireScope(middleware.ScopeDashboardRead))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/channels/{id}", func(r chi.Router) {
			r.Get("/document", channelHandler.GetDocument)
			r.Get("/changelog", channelHandler.GetChangelog)
			r.Get("/audit", channelHandler.QueryAudit)
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("stopped")
}
