package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/lokeshec23/GC-AI/features/extraction"
	"github.com/lokeshec23/GC-AI/features/job"
	"github.com/lokeshec23/GC-AI/internal/adapter/gemini"
	"github.com/lokeshec23/GC-AI/internal/adapter/openai"
	"github.com/lokeshec23/GC-AI/internal/config"
	"github.com/lokeshec23/GC-AI/internal/document"
	"github.com/lokeshec23/GC-AI/internal/metrics"
	"github.com/lokeshec23/GC-AI/internal/middleware"
	"github.com/lokeshec23/GC-AI/internal/provider"
	"github.com/lokeshec23/GC-AI/internal/session"
	"github.com/lokeshec23/GC-AI/internal/settings"
	"github.com/lokeshec23/GC-AI/internal/worker"
)

type App struct {
	Handler       http.Handler
	Sessions      *session.Store
	EventConsumer *worker.EventConsumer
	Metrics       *metrics.Metrics

	port   int
	gemini *gemini.Client
}

type Option func(*options)

type options struct {
	adapters map[string]provider.Adapter
	events   extraction.EventPublisher
}

// WithAdapter replaces the built-in adapter for a provider.
func WithAdapter(name string, a provider.Adapter) Option {
	return func(o *options) { o.adapters[name] = a }
}

// WithEvents publishes job events, normally to NSQ.
func WithEvents(p extraction.EventPublisher) Option {
	return func(o *options) { o.events = p }
}

func New(
	cfg *config.Config,
	db *sql.DB,
	logger *slog.Logger,
	opts ...Option,
) (*App, error) {
	o := options{adapters: map[string]provider.Adapter{}}
	for _, opt := range opts {
		opt(&o)
	}

	m := metrics.New()

	// Feature: Settings
	settingsRepo := settings.NewPostgresRepo(db)
	settingsService := settings.NewService(settingsRepo)

	// Seed credentials from config; stored values win.
	seed := settings.Settings{
		OpenAIAPIKey:     cfg.OpenAIAPIKey,
		OpenAIEndpoint:   cfg.OpenAIEndpoint,
		OpenAIDeployment: cfg.OpenAIDeployment,
		GeminiAPIKey:     cfg.GeminiAPIKey,
	}
	if err := settingsService.SeedCredentials(context.Background(), seed); err != nil {
		logger.Warn("failed to seed credentials", "error", err)
	}
	settingsHandler := settings.NewHandler(settingsService)

	// Adapters, one shared limiter per provider
	geminiClient := gemini.NewClient(logger)
	builtin := map[string]provider.Adapter{
		provider.OpenAI: openai.New(openai.Config{}, logger),
		provider.Gemini: geminiClient,
	}
	registry := provider.NewRegistry()
	for name, a := range builtin {
		if override, ok := o.adapters[name]; ok {
			a = override
		}
		limiter := rate.NewLimiter(rate.Limit(cfg.ProviderRateLimitRPS), cfg.ProviderRateLimitBurst)
		registry.Register(name, provider.WithRateLimit(a, limiter))
	}

	// Feature: Extraction
	baseDelay, maxDelay := cfg.RetryDelays()
	pool := worker.NewPool(
		worker.WithWorkers(cfg.WorkerConcurrency),
		worker.WithMaxAttempts(cfg.ChunkMaxAttempts),
		worker.WithRetryDelay(baseDelay, maxDelay),
		worker.WithCallTimeout(cfg.ProviderCallTimeout()),
		worker.WithLogger(logger),
		worker.WithMetrics(m),
	)
	store := session.NewStore(cfg.SessionTTL(),
		session.WithSweepInterval(cfg.SessionSweepInterval()),
		session.WithLogger(logger),
	)
	loader := document.NewLoader(cfg.PdftotextPath, logger)

	svcOpts := []extraction.Option{extraction.WithMetrics(m), extraction.WithLogger(logger)}
	if o.events != nil {
		svcOpts = append(svcOpts, extraction.WithEvents(o.events))
	}
	extractionService := extraction.NewService(settingsService, registry, loader, pool, store, svcOpts...)
	extractionHandler := extraction.NewHandler(extractionService, cfg.UploadDir, cfg.MaxUploadBytes())

	// Feature: Job
	jobRepo := job.NewPostgresRepo(db)
	jobService := job.NewService(jobRepo, logger)
	jobHandler := job.NewHandler(jobService)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Correlation-ID")
			w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition, X-Correlation-ID")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Routes
	mux := http.NewServeMux()

	mux.Handle("POST /ingest", middleware.CorrelationID(enableCORS(extractionHandler.Ingest)))
	mux.Handle("POST /compare", middleware.CorrelationID(enableCORS(extractionHandler.Compare)))
	mux.Handle("GET /progress/{id}", middleware.CorrelationID(enableCORS(extractionHandler.Progress)))
	mux.Handle("GET /status/{id}", middleware.CorrelationID(enableCORS(extractionHandler.Status)))
	mux.Handle("GET /preview/{id}", middleware.CorrelationID(enableCORS(extractionHandler.Preview)))
	mux.Handle("GET /download/{id}", middleware.CorrelationID(enableCORS(extractionHandler.Download)))
	mux.Handle("DELETE /sessions/{id}", middleware.CorrelationID(enableCORS(extractionHandler.Close)))

	mux.Handle("GET /settings", middleware.CorrelationID(enableCORS(settingsHandler.GetSettings)))
	mux.Handle("PUT /settings", middleware.CorrelationID(enableCORS(settingsHandler.UpdateSettings)))
	mux.Handle("GET /settings/supported-models", middleware.CorrelationID(enableCORS(settingsHandler.SupportedModels)))

	mux.Handle("GET /jobs/failed", middleware.CorrelationID(enableCORS(jobHandler.List)))
	mux.Handle("GET /jobs/{id}", middleware.CorrelationID(enableCORS(jobHandler.Get)))
	mux.Handle("DELETE /jobs/{id}", middleware.CorrelationID(enableCORS(jobHandler.Dismiss)))

	mux.Handle("GET /metrics", m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"status":          "ok",
			"active_sessions": store.Len(),
		}
		// Ledger size is best effort.
		if n, err := jobService.Count(r.Context()); err == nil {
			resp["failed_jobs"] = n
		} else {
			logger.WarnContext(r.Context(), "health: failed to count jobs", "error", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(resp)
	})

	return &App{
		Handler:       mux,
		Sessions:      store,
		EventConsumer: worker.NewEventConsumer(jobRepo),
		Metrics:       m,
		port:          cfg.ServerPort,
		gemini:        geminiClient,
	}, nil
}

// Run serves HTTP and sweeps expired sessions until ctx is done.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.port),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go a.Sessions.Run(ctx)

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
		if err := a.gemini.Close(); err != nil {
			slog.Warn("failed to close gemini clients", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
