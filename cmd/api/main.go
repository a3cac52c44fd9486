package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"calling-center/internal/archive"
	"calling-center/internal/auth"
	"calling-center/internal/calls"
	"calling-center/internal/config"
	"calling-center/internal/conversation"
	"calling-center/internal/httpapi"
	"calling-center/internal/observability"
	"calling-center/internal/reporting"
	"calling-center/internal/telephony"
	"calling-center/pkg/logger"
	"calling-center/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A local .env is optional; real env always wins.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	checks := map[string]func(ctx context.Context) error{}

	// Transcript archive: Postgres when configured, memory otherwise.
	var archiveRepo archive.Repository = archive.NewMemoryRepo()
	var db *sql.DB
	if cfg.ArchiveEnabled() {
		db, err = utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			log.Error("postgres init failed", "err", err)
			os.Exit(1)
		}
		defer db.Close()

		pg := archive.NewPostgresRepo(db)
		if err := pg.EnsureSchema(rootCtx); err != nil {
			log.Error("archive schema failed", "err", err)
			os.Exit(1)
		}
		archiveRepo = pg
		checks["postgres"] = func(ctx context.Context) error { return utils.HealthCheck(ctx, db, time.Second) }
	}
	archiveSvc := archive.NewService(archiveRepo)

	var limiter calls.Limiter
	if cfg.CapEnabled() {
		rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()

		rl, err := calls.NewRedisLimiter(rdb, cfg.Calls.MaxConcurrent, 0)
		if err != nil {
			log.Error("call limiter init failed", "err", err)
			os.Exit(1)
		}
		limiter = rl
		checks["redis"] = func(ctx context.Context) error { return pingRedis(ctx, rdb) }
	}

	metrics := observability.NewMetrics("calling_center")

	placer, err := telephony.NewTwilioPlacer(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.PhoneNumber)
	if err != nil {
		log.Error("twilio init failed", "err", err)
		os.Exit(1)
	}

	gen := conversation.NewOpenAIGenerator(cfg.OpenAI.APIKey,
		conversation.WithBaseURL(cfg.OpenAI.BaseURL),
		conversation.WithModel(cfg.OpenAI.Model),
	)
	processor := conversation.NewProcessor(gen)

	store := calls.NewStore()
	store.OnTerminal(archiveSvc.Hook(log, 5*time.Second))

	controller := calls.NewController(store, processor, cfg.SpeechCallbackURL(), metrics)
	initiator := calls.NewInitiator(store, placer, calls.InitiatorConfig{
		Greeting:  calls.Greeting{AgentName: cfg.Agent.Name, CompanyName: cfg.Agent.CompanyName},
		SpeechURL: cfg.SpeechCallbackURL(),
		StatusURL: cfg.StatusCallbackURL(),
		Limiter:   limiter,
		Metrics:   metrics,
	})

	if cfg.Calls.Retention > 0 {
		store.StartJanitor(rootCtx, time.Minute, cfg.Calls.Retention, func(removed int) {
			log.Info("expired sessions removed", "count", removed, "remaining", store.Len())
		})
	}

	var authMW gin.HandlerFunc
	if cfg.AuthEnabled() {
		authManager, err := auth.NewManager(cfg.Auth)
		if err != nil {
			log.Error("auth init failed", "err", err)
			os.Exit(1)
		}
		authMW = auth.RequireAccessToken(authManager)
	} else {
		log.Warn("JWT_SECRET not set; operator routes are unauthenticated")
	}

	h := httpapi.Handlers{
		Initiator:  initiator,
		Controller: controller,
		Sessions:   store,
		Reports:    reporting.NewService(reporting.NewStoreRepo(store)),
		Archive:    archiveSvc,
		Checks:     checks,
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log, "/health", "/healthz", "/metrics"))

	registerRoutes(r, routeDeps{
		Handlers:   h,
		AuthMW:     authMW,
		CORSOrigin: cfg.App.CORSAllowOrigin,
		Metrics:    metrics.Handler(),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Speech turns wait on the generation service.
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("api listening",
			"addr", srv.Addr,
			"env", cfg.App.Env,
			"public_base_url", cfg.App.PublicBaseURL,
			"archive", cfg.ArchiveEnabled(),
			"call_cap", cfg.Calls.MaxConcurrent,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated", "live_sessions", store.Len())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}

func pingRedis(ctx context.Context, rdb *redis.Client) error {
	return rdb.Ping(ctx).Err()
}
