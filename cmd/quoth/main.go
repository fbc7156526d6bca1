// Quoth is a multi-tenant MCP documentation knowledge-base server.
// It serves the quoth_* tool set over streamable HTTP and SSE, backed
// by PostgreSQL with pgvector for retrieval and an org-scoped agent
// message bus.
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

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/quothlabs/quoth/internal/adapter/embedprov"
	"github.com/quothlabs/quoth/internal/adapter/identity"
	"github.com/quothlabs/quoth/internal/adapter/mcp"
	natsq "github.com/quothlabs/quoth/internal/adapter/nats"
	"github.com/quothlabs/quoth/internal/adapter/otel"
	"github.com/quothlabs/quoth/internal/adapter/postgres"
	"github.com/quothlabs/quoth/internal/adapter/ragworker"
	"github.com/quothlabs/quoth/internal/adapter/reranker"
	"github.com/quothlabs/quoth/internal/adapter/ristretto"
	"github.com/quothlabs/quoth/internal/config"
	"github.com/quothlabs/quoth/internal/logger"
	"github.com/quothlabs/quoth/internal/middleware"
	"github.com/quothlabs/quoth/internal/port/embedder"
	"github.com/quothlabs/quoth/internal/port/messagequeue"
	"github.com/quothlabs/quoth/internal/service"
)

const (
	tierCacheBytes  = 16 << 20
	shutdownTimeout = 15 * time.Second
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := otel.Setup(ctx, cfg.Logging.Service, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			log.Warn("telemetry shutdown", "error", err)
		}
	}()

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	store := postgres.NewStore(pool)

	tierCache, err := ristretto.New(tierCacheBytes)
	if err != nil {
		return fmt.Errorf("tier cache: %w", err)
	}
	defer tierCache.Close()

	var queue messagequeue.Queue
	if cfg.NATS.URL != "" {
		q, err := natsq.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() {
			if err := q.Close(); err != nil {
				log.Warn("nats close", "error", err)
			}
		}()
		queue = q
	} else {
		log.Info("nats disabled; agent bus notifications off")
	}

	var idp *identity.Client
	if cfg.Auth.IdentityProviderURL != "" {
		idp = identity.New(cfg.Auth.IdentityProviderURL, cfg.Auth.IdentityServiceKey)
	}

	embedClient := embedprov.New(cfg.Embedding)
	var rerankClient embedder.Reranker
	if cfg.Reranker.Key != "" {
		rerankClient = reranker.New(cfg.Reranker)
	} else {
		log.Info("reranker disabled; searches use vector-only ranking")
	}
	var answerClient embedder.Answerer
	if cfg.RAGWorker.Key != "" {
		answerClient = ragworker.New(cfg.RAGWorker)
	} else {
		log.Info("rag worker disabled; quoth_ask returns search results only")
	}

	busSecret := cfg.Bus.SigningSecret
	if busSecret == "" {
		busSecret = cfg.Auth.JWTSecret
		log.Warn("BUS_SIGNING_SECRET unset; deriving bus signatures from JWT_SECRET")
	}

	authSvc := service.NewAuthService(store, idp, cfg.Auth)
	sessions := service.NewSessionService(store, cfg.Auth.SessionMaxIdle, log)
	usage := service.NewUsageService(store, tierCache)
	indexer := service.NewIndexerService(store, embedClient, cfg.Indexer.EmbedSpacing, log)
	retrieval := service.NewRetrievalService(store, embedClient, rerankClient, usage, log)
	answers := service.NewAnswerService(retrieval, answerClient, usage, log)
	proposals := service.NewProposalService(store, indexer, busSecret, log)
	projects := service.NewProjectService(store, log)
	bus := service.NewAgentBusService(store, queue, busSecret, log)
	analytics := service.NewAnalyticsService(store, log)
	templates := service.NewTemplateService(cfg.Templates.Dir)
	activitySvc := service.NewActivityService(store, log)
	defer activitySvc.Close()

	sessions.StartReaper(ctx, time.Hour)

	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerMinute, cfg.Rate.Window)
	stopCleanup := limiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.Window)
	defer stopCleanup()

	mcpSrv := mcp.NewServer(mcp.Deps{
		Sessions:  sessions,
		Retrieval: retrieval,
		Answers:   answers,
		Indexer:   indexer,
		Proposals: proposals,
		Projects:  projects,
		Bus:       bus,
		Analytics: analytics,
		Templates: templates,
		Activity:  activitySvc,
		Metrics:   metrics,
		Logger:    log,
	})

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(otel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(limiter.Handler)
	r.Use(middleware.Auth(authSvc))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		if err := pool.Ping(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"degraded"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Mount("/mcp", mcpSrv.HTTPHandler())
	r.Mount("/sse", mcpSrv.SSEHandler("/sse"))

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "port", cfg.Server.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}

	if n := activitySvc.Dropped(); n > 0 {
		log.Warn("activity events dropped during run", "count", n)
	}
	return nil
}
