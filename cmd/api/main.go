package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/BradenHooton/matcenter/internal/auth"
	"github.com/BradenHooton/matcenter/internal/background"
	"github.com/BradenHooton/matcenter/internal/clock"
	"github.com/BradenHooton/matcenter/internal/config"
	"github.com/BradenHooton/matcenter/internal/database"
	"github.com/BradenHooton/matcenter/internal/fingerprint"
	"github.com/BradenHooton/matcenter/internal/flashcard"
	"github.com/BradenHooton/matcenter/internal/handlers"
	"github.com/BradenHooton/matcenter/internal/history"
	"github.com/BradenHooton/matcenter/internal/lockout"
	"github.com/BradenHooton/matcenter/internal/metrics"
	middlewareCustom "github.com/BradenHooton/matcenter/internal/middleware"
	"github.com/BradenHooton/matcenter/internal/oracle"
	"github.com/BradenHooton/matcenter/internal/routes"
	"github.com/BradenHooton/matcenter/internal/services"
	"github.com/BradenHooton/matcenter/internal/session"
	"github.com/BradenHooton/matcenter/internal/store"
	pkghttp "github.com/BradenHooton/matcenter/pkg/http"
	pkglogger "github.com/BradenHooton/matcenter/pkg/logger"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("store", cfg.Store.Driver),
		pkglogger.RedactedAttr("oracle_endpoint", cfg.Oracle.Endpoint, cfg.Server.Env),
	)

	// Initialize the persistent store
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	kv, health, closeStore, err := openStore(initCtx, cfg, logger)
	initCancel()
	if err != nil {
		logger.Error("failed to open store", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeStore()

	clk := clock.System{}
	auditLogger := pkglogger.NewAuditLogger(logger)

	fp := fingerprint.NewGenerator(kv, fingerprint.HostEnvironment(fingerprint.HostOptions{
		Version:      version,
		Language:     cfg.Fingerprint.Language,
		ScreenWidth:  cfg.Fingerprint.ScreenWidth,
		ScreenHeight: cfg.Fingerprint.ScreenHeight,
		Extended:     cfg.Fingerprint.Extended,
	}, clk.Now()), logger)

	lockoutEngine := lockout.NewEngine(kv, clk, lockout.Policy{
		MaxFailedAttempts: cfg.Auth.MaxFailedAttempts,
		Durations:         cfg.Auth.LockoutDurations,
		StaleAge:          cfg.Auth.EscalationStaleAge,
	}, logger)

	authService := services.NewAuthService(services.AuthServiceDeps{
		Store:       kv,
		Source:      oracle.NewClient(oracle.Config{Endpoint: cfg.Oracle.Endpoint, Timeout: cfg.Oracle.Timeout}, logger),
		Fingerprint: fp,
		Lockout:     lockoutEngine,
		History:     history.NewRecorder(kv, fp, clk, logger),
		Sessions:    session.NewManager(kv, fp, clk, cfg.Auth.SessionLifetime, logger),
		Clock:       clk,
		Timing: auth.NewTimingDelay(auth.TimingConfig{
			BaseDelayMs:   cfg.Auth.TimingBaseDelayMs,
			RandomDelayMs: cfg.Auth.TimingRandomDelayMs,
		}),
		ResetCodeHash: cfg.Auth.ResetCodeHash,
		Logger:        logger,
		AuditLogger:   auditLogger,
	})

	deck, err := flashcard.LoadDeck(cfg.Flashcards.DeckPath)
	if err != nil {
		logger.Error("failed to load flashcard deck", slog.Any("error", err))
		os.Exit(1)
	}
	flashcardService := services.NewFlashcardService(deck, clk, cfg.Flashcards.IdleTimeout, logger)

	// Auto-login with the remembered credential
	resumeCtx, resumeCancel := context.WithTimeout(context.Background(), cfg.Oracle.Timeout+5*time.Second)
	if result, err := authService.Resume(resumeCtx); err != nil {
		logger.Warn("auto-login failed", slog.Any("error", err))
	} else {
		logger.Info("auto-login finished", slog.String("status", string(result.Status)))
	}
	resumeCancel()

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(metrics.Middleware)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	routes.RegisterRoutes(router, routes.Handlers{
		Auth:       handlers.NewAuthHandler(authService),
		Tasks:      handlers.NewTaskHandler(authService),
		Security:   handlers.NewSecurityHandler(authService),
		Flashcards: handlers.NewFlashcardHandler(flashcardService),
		Health:     handlers.NewHealthHandler(health),
	}, authService, middlewareCustom.RateLimitConfig{
		RequestsPerMinute: cfg.Server.LoginRateLimit,
		IPConfig:          ipConfig,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start background tasks
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	refreshManager := background.NewRefreshManager(authService, logger, cfg.Oracle.RefreshInterval, cfg.Oracle.Timeout)
	sweepManager := background.NewSweepManager(flashcardService, logger, cfg.Flashcards.SweepInterval)
	go refreshManager.Start(bgCtx)
	go sweepManager.Start(bgCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr), slog.String("version", version))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	bgCancel()
	refreshManager.Stop()
	sweepManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// openStore builds the configured key-value backend. The returned checker is
// nil for the in-memory store.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, handlers.HealthChecker, func(), error) {
	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		logger.Warn("using in-memory store, lockout state is lost on restart")
		return store.NewMemory(), nil, func() {}, nil

	case config.StoreDriverPostgres:
		db, err := database.NewConnection(ctx, &cfg.Store.Postgres, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, nil, fmt.Errorf("failed to migrate postgres store: %w", err)
		}
		s := store.NewPostgres(db, cfg.Store.Origin)
		return s, s, db.Close, nil

	default:
		db, err := database.OpenSQLite(ctx, cfg.Store.SQLitePath, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		s := store.NewSQLite(db, cfg.Store.Origin)
		return s, s, func() { _ = db.Close() }, nil
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
